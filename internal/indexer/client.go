// Package indexer queries the Kadena GraphQL indexer for balances and read-only Pact calls.
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/httpx"
	"github.com/ggonzalez94/kadena-cli/internal/id"
	"github.com/ggonzalez94/kadena-cli/internal/registry"
)

const chainAccountsQuery = `query ChainAccounts($accountName: String!, $fungibleName: String!) {
  fungibleChainAccounts(accountName: $accountName, fungibleName: $fungibleName) {
    balance
    chainId
  }
}`

const chainAccountQuery = `query ChainAccount($accountName: String!, $chainId: String!, $fungibleName: String!) {
  fungibleChainAccount(accountName: $accountName, chainId: $chainId, fungibleName: $fungibleName) {
    balance
  }
}`

const pactQuery = `query PactQuery($chainId: String!, $code: String!) {
  pactQuery(pactQuery: {chainId: $chainId, code: $code}) {
    result
    status
    error
  }
}`

type ChainBalance struct {
	ChainID string          `json:"chainId"`
	Balance decimal.Decimal `json:"balance"`
}

// ReadResult is one pactQuery row. Result holds the Pact value as JSON text.
type ReadResult struct {
	Result string `json:"result"`
	Status string `json:"status"`
	Error  string `json:"error"`
}

type graphQLError struct {
	Message string `json:"message"`
}

type chainAccountsResponse struct {
	Data struct {
		FungibleChainAccounts []ChainBalance `json:"fungibleChainAccounts"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type chainAccountResponse struct {
	Data struct {
		FungibleChainAccount *struct {
			Balance decimal.Decimal `json:"balance"`
		} `json:"fungibleChainAccount"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type pactQueryResponse struct {
	Data struct {
		PactQuery []ReadResult `json:"pactQuery"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type Client struct {
	http     *httpx.Client
	endpoint string
}

func New(httpClient *httpx.Client, network id.Network, endpointOverride string) *Client {
	return &Client{http: httpClient, endpoint: registry.GraphQLEndpoint(network, endpointOverride)}
}

func (c *Client) Endpoint() string { return c.endpoint }

// FetchAccountBalances lists the account's balance on every chain where it exists.
func (c *Client) FetchAccountBalances(ctx context.Context, account, fungible string) ([]ChainBalance, error) {
	var resp chainAccountsResponse
	if err := c.query(ctx, chainAccountsQuery, map[string]any{
		"accountName":  account,
		"fungibleName": fungible,
	}, &resp); err != nil {
		return nil, err
	}
	if err := firstError(resp.Errors); err != nil {
		return nil, err
	}
	out := resp.Data.FungibleChainAccounts
	if out == nil {
		out = []ChainBalance{}
	}
	return out, nil
}

// FetchAccountBalanceOnChain returns nil when the account does not exist on chainID.
func (c *Client) FetchAccountBalanceOnChain(ctx context.Context, account, chainID, fungible string) (*decimal.Decimal, error) {
	var resp chainAccountResponse
	if err := c.query(ctx, chainAccountQuery, map[string]any{
		"accountName":  account,
		"chainId":      chainID,
		"fungibleName": fungible,
	}, &resp); err != nil {
		return nil, err
	}
	if err := firstError(resp.Errors); err != nil {
		return nil, err
	}
	if resp.Data.FungibleChainAccount == nil {
		return nil, nil
	}
	balance := resp.Data.FungibleChainAccount.Balance
	return &balance, nil
}

// FetchOnChainRead runs read-only Pact code through the indexer.
func (c *Client) FetchOnChainRead(ctx context.Context, chainID, code string) ([]ReadResult, error) {
	var resp pactQueryResponse
	if err := c.query(ctx, pactQuery, map[string]any{
		"chainId": chainID,
		"code":    code,
	}, &resp); err != nil {
		return nil, err
	}
	if err := firstError(resp.Errors); err != nil {
		return nil, err
	}
	if len(resp.Data.PactQuery) == 0 {
		return nil, clierr.New(clierr.CodeUnavailable, "indexer pactQuery returned no rows")
	}
	return resp.Data.PactQuery, nil
}

// DecodeFirst unmarshals the JSON text of the first successful row into out.
func DecodeFirst(rows []ReadResult, out any) error {
	if len(rows) == 0 {
		return clierr.New(clierr.CodeUnavailable, "indexer returned no rows")
	}
	row := rows[0]
	if row.Status != "" && !strings.EqualFold(row.Status, "success") {
		return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("pact read failed: %s", strings.TrimSpace(row.Error)))
	}
	if err := json.Unmarshal([]byte(row.Result), out); err != nil {
		return clierr.Wrap(clierr.CodeUnavailable, "decode pact read result", err)
	}
	return nil
}

func (c *Client) query(ctx context.Context, query string, variables map[string]any, out any) error {
	body, err := json.Marshal(map[string]any{"query": query, "variables": variables})
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "marshal graphql query", err)
	}
	if _, err := httpx.DoBodyJSON(ctx, c.http, http.MethodPost, c.endpoint, body, nil, out); err != nil {
		return err
	}
	return nil
}

func firstError(errs []graphQLError) error {
	if len(errs) == 0 {
		return nil
	}
	return clierr.New(clierr.CodeUnavailable, fmt.Sprintf("indexer graphql error: %s", errs[0].Message))
}
