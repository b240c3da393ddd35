package registry

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"github.com/ggonzalez94/kadena-cli/internal/id"
)

const (
	MainnetChainwebHost = "https://api.chainweb.com"
	TestnetChainwebHost = "https://api.testnet.chainweb.com"

	MainnetGraphQLEndpoint = "https://graph.kadena.network/graphql"
	TestnetGraphQLEndpoint = "https://graph.testnet.kadena.network/graphql"

	ExplorerBaseURL = "https://explorer.kadena.io"
)

func ChainwebHost(network id.Network) string {
	if network == id.Testnet {
		return TestnetChainwebHost
	}
	return MainnetChainwebHost
}

// ChainwebBaseURL returns the pact API root for one chain. A non-empty host
// replaces the public gateway, which is how devnets are targeted.
func ChainwebBaseURL(network id.Network, chainID, host string) string {
	root := strings.TrimSuffix(strings.TrimSpace(host), "/")
	if root == "" {
		root = ChainwebHost(network)
	}
	return fmt.Sprintf("%s/chainweb/0.0/%s/chain/%s/pact", root, network, chainID)
}

func GraphQLEndpoint(network id.Network, override string) string {
	if v := strings.TrimSpace(override); v != "" {
		return v
	}
	if network == id.Testnet {
		return TestnetGraphQLEndpoint
	}
	return MainnetGraphQLEndpoint
}

func ExplorerTxURL(network id.Network, requestKey string) string {
	return fmt.Sprintf("%s/%s/transaction/%s", ExplorerBaseURL, network.ExplorerSegment(), requestKey)
}

// IsAllowedEndpointOverride accepts https endpoints anywhere and plain http
// only on loopback hosts.
func IsAllowedEndpointOverride(endpoint string) bool {
	if strings.TrimSpace(endpoint) == "" {
		return true
	}
	parsed, err := url.Parse(strings.TrimSpace(endpoint))
	if err != nil {
		return false
	}
	if strings.TrimSpace(parsed.Hostname()) == "" {
		return false
	}
	scheme := strings.ToLower(strings.TrimSpace(parsed.Scheme))
	if isLoopbackHost(parsed.Hostname()) {
		return scheme == "http" || scheme == "https"
	}
	return scheme == "https"
}

func isLoopbackHost(host string) bool {
	h := strings.TrimSpace(strings.ToLower(host))
	if h == "localhost" {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
