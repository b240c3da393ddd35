package registry

import (
	"testing"

	"github.com/ggonzalez94/kadena-cli/internal/id"
)

func TestChainwebBaseURL(t *testing.T) {
	got := ChainwebBaseURL(id.Mainnet, "3", "")
	if got != "https://api.chainweb.com/chainweb/0.0/mainnet01/chain/3/pact" {
		t.Fatalf("unexpected mainnet url %s", got)
	}
	got = ChainwebBaseURL(id.Testnet, "0", "")
	if got != "https://api.testnet.chainweb.com/chainweb/0.0/testnet04/chain/0/pact" {
		t.Fatalf("unexpected testnet url %s", got)
	}
	got = ChainwebBaseURL(id.Testnet, "7", "http://127.0.0.1:8080/")
	if got != "http://127.0.0.1:8080/chainweb/0.0/testnet04/chain/7/pact" {
		t.Fatalf("unexpected override url %s", got)
	}
}

func TestGraphQLEndpoint(t *testing.T) {
	if GraphQLEndpoint(id.Mainnet, "") != MainnetGraphQLEndpoint {
		t.Fatal("expected mainnet graphql endpoint")
	}
	if GraphQLEndpoint(id.Testnet, "") != TestnetGraphQLEndpoint {
		t.Fatal("expected testnet graphql endpoint")
	}
	if GraphQLEndpoint(id.Mainnet, " http://localhost:4000/graphql ") != "http://localhost:4000/graphql" {
		t.Fatal("expected override to win")
	}
}

func TestExplorerTxURL(t *testing.T) {
	if got := ExplorerTxURL(id.Mainnet, "abc"); got != "https://explorer.kadena.io/mainnet/transaction/abc" {
		t.Fatalf("unexpected explorer url %s", got)
	}
	if got := ExplorerTxURL(id.Testnet, "abc"); got != "https://explorer.kadena.io/testnet/transaction/abc" {
		t.Fatalf("unexpected explorer url %s", got)
	}
}

func TestIsAllowedEndpointOverride(t *testing.T) {
	allowed := []string{"", "https://api.chainweb.com", "http://localhost:8080", "http://127.0.0.1:1848"}
	for _, endpoint := range allowed {
		if !IsAllowedEndpointOverride(endpoint) {
			t.Fatalf("expected %q to be allowed", endpoint)
		}
	}
	blocked := []string{"http://example.com", "ftp://localhost", "not a url", "https://"}
	for _, endpoint := range blocked {
		if IsAllowedEndpointOverride(endpoint) {
			t.Fatalf("expected %q to be rejected", endpoint)
		}
	}
}

func TestExchangeFor(t *testing.T) {
	ex, ok := ExchangeFor("KDSwap")
	if !ok || ex.Module != "kdlaunch.kdswap-exchange" || ex.ChainID != "1" || ex.Sender != "kdswap-gas-payer" {
		t.Fatalf("unexpected kdswap exchange %+v", ex)
	}
	ex, ok = ExchangeFor("mercatus")
	if !ok || ex.Module != "kaddex.exchange" || ex.ChainID != "2" || ex.GasUser != "kaddex-free-gas" {
		t.Fatalf("unexpected mercatus exchange %+v", ex)
	}
	if _, ok := ExchangeFor("uniswap"); ok {
		t.Fatal("did not expect unknown platform")
	}
}
