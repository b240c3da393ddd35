package indexer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ggonzalez94/kadena-cli/internal/httpx"
	"github.com/ggonzalez94/kadena-cli/internal/id"
)

type capturedRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func newTestClient(t *testing.T, respond func(req capturedRequest) string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		var req capturedRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		_, _ = w.Write([]byte(respond(req)))
	}))
	t.Cleanup(srv.Close)
	return New(httpx.New(2*time.Second, 0), id.Mainnet, srv.URL)
}

func TestFetchAccountBalances(t *testing.T) {
	client := newTestClient(t, func(req capturedRequest) string {
		if !strings.Contains(req.Query, "fungibleChainAccounts") {
			t.Errorf("unexpected query %s", req.Query)
		}
		if req.Variables["accountName"] != "k:abc" || req.Variables["fungibleName"] != "coin" {
			t.Errorf("unexpected variables %#v", req.Variables)
		}
		return `{"data":{"fungibleChainAccounts":[{"balance":1.5,"chainId":"0"},{"balance":"2.25","chainId":"3"}]}}`
	})
	balances, err := client.FetchAccountBalances(context.Background(), "k:abc", "coin")
	if err != nil {
		t.Fatalf("FetchAccountBalances failed: %v", err)
	}
	if len(balances) != 2 || balances[1].ChainID != "3" || balances[1].Balance.String() != "2.25" {
		t.Fatalf("unexpected balances %+v", balances)
	}
}

func TestFetchAccountBalancesEmpty(t *testing.T) {
	client := newTestClient(t, func(capturedRequest) string {
		return `{"data":{"fungibleChainAccounts":[]}}`
	})
	balances, err := client.FetchAccountBalances(context.Background(), "k:abc", "coin")
	if err != nil || balances == nil || len(balances) != 0 {
		t.Fatalf("expected empty non-nil list, got %#v err=%v", balances, err)
	}
}

func TestFetchAccountBalanceOnChainMissing(t *testing.T) {
	client := newTestClient(t, func(req capturedRequest) string {
		if req.Variables["chainId"] != "7" {
			t.Errorf("unexpected chain %v", req.Variables["chainId"])
		}
		return `{"data":{"fungibleChainAccount":null}}`
	})
	balance, err := client.FetchAccountBalanceOnChain(context.Background(), "k:abc", "7", "free.token")
	if err != nil {
		t.Fatalf("FetchAccountBalanceOnChain failed: %v", err)
	}
	if balance != nil {
		t.Fatalf("expected nil balance, got %s", balance)
	}
}

func TestFetchOnChainReadAndDecode(t *testing.T) {
	client := newTestClient(t, func(req capturedRequest) string {
		if req.Variables["chainId"] != "1" || !strings.Contains(req.Variables["code"].(string), "get-pair") {
			t.Errorf("unexpected variables %#v", req.Variables)
		}
		return `{"data":{"pactQuery":[{"result":"{\"account\":\"pair-acct\",\"kda\":1.0}","status":"success","error":null}]}}`
	})
	rows, err := client.FetchOnChainRead(context.Background(), "1", "(kdlaunch.kdswap-exchange.get-pair coin free.token)")
	if err != nil {
		t.Fatalf("FetchOnChainRead failed: %v", err)
	}
	var out struct {
		Account string `json:"account"`
	}
	if err := DecodeFirst(rows, &out); err != nil {
		t.Fatalf("DecodeFirst failed: %v", err)
	}
	if out.Account != "pair-acct" {
		t.Fatalf("unexpected account %q", out.Account)
	}
}

func TestDecodeFirstRejectsFailedRow(t *testing.T) {
	err := DecodeFirst([]ReadResult{{Status: "error", Error: "module not found"}}, &struct{}{})
	if err == nil || !strings.Contains(err.Error(), "module not found") {
		t.Fatalf("expected row error, got %v", err)
	}
}

func TestGraphQLErrorsSurface(t *testing.T) {
	client := newTestClient(t, func(capturedRequest) string {
		return `{"data":null,"errors":[{"message":"rate limit"}]}`
	})
	if _, err := client.FetchAccountBalances(context.Background(), "k:abc", "coin"); err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Fatalf("expected graphql error, got %v", err)
	}
}
