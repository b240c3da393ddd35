package wallet

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/kadena-cli/internal/cache"
	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/id"
	"github.com/ggonzalez94/kadena-cli/internal/indexer"
	"github.com/ggonzalez94/kadena-cli/internal/registry"
)

const walletAccount = "k:b9b798dd046eccd4d2c42c18445859c62c199a8d673b8c1bf7afcfca6a6a81e3"

type fakeReader struct {
	oracle     string
	balances   map[string][]indexer.ChainBalance
	onChain    *decimal.Decimal
	oracleErr  error
	reads      int
	listCalls  int
	lastToken  string
	lastChain  string
	lastReadID string
}

func (f *fakeReader) FetchAccountBalances(_ context.Context, _ string, fungible string) ([]indexer.ChainBalance, error) {
	f.listCalls++
	f.lastToken = fungible
	return f.balances[fungible], nil
}

func (f *fakeReader) FetchAccountBalanceOnChain(_ context.Context, _ string, chainID, fungible string) (*decimal.Decimal, error) {
	f.lastToken = fungible
	f.lastChain = chainID
	return f.onChain, nil
}

func (f *fakeReader) FetchOnChainRead(_ context.Context, chainID, code string) ([]indexer.ReadResult, error) {
	f.reads++
	f.lastReadID = chainID
	if f.oracleErr != nil {
		return nil, f.oracleErr
	}
	if code != registry.OracleCode {
		return nil, errors.New("unexpected code " + code)
	}
	return []indexer.ReadResult{{Result: f.oracle, Status: "success"}}, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func newAggregator(t *testing.T, reader Reader, c *cache.Tiered) *Aggregator {
	t.Helper()
	a, err := New(Config{Network: id.Mainnet, Account: walletAccount, Reader: reader, Cache: c})
	require.NoError(t, err)
	return a
}

func TestParsePriceBothEncodings(t *testing.T) {
	for _, raw := range []string{
		`{"value":0.81,"timestamp":{"time":"2024-01-01T00:00:00Z"}}`,
		`{"value":{"decimal":"0.81"}}`,
		`{"value":"0.81"}`,
	} {
		price, err := ParsePrice(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, "0.81", price.String(), raw)
	}

	_, err := ParsePrice(`{"timestamp":1}`)
	assert.True(t, clierr.HasCode(err, clierr.CodeUnavailable))
	_, err = ParsePrice(`not json`)
	assert.True(t, clierr.HasCode(err, clierr.CodeUnavailable))
}

func TestGetPortfolio(t *testing.T) {
	reader := &fakeReader{
		oracle: `{"value":{"decimal":"0.81"}}`,
		balances: map[string][]indexer.ChainBalance{
			"coin": {
				{ChainID: "0", Balance: dec("10.126")},
				{ChainID: "1", Balance: dec("2.5")},
			},
		},
	}
	p, err := newAggregator(t, reader, nil).GetPortfolio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Portfolio{KDAUSD: "0.81", Balance: "12.63", Value: "10.23"}, p)
	assert.Equal(t, "1", reader.lastReadID)
	assert.Equal(t, "coin", reader.lastToken)
}

func TestGetPortfolioWithoutChainsIsZero(t *testing.T) {
	reader := &fakeReader{oracle: `{"value":0.81}`, balances: map[string][]indexer.ChainBalance{}}
	p, err := newAggregator(t, reader, nil).GetPortfolio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "0.00", p.Balance)
	assert.Equal(t, "0.00", p.Value)
}

func TestGetPortfolioOracleFailure(t *testing.T) {
	reader := &fakeReader{oracleErr: clierr.New(clierr.CodeUnavailable, "indexer down")}
	_, err := newAggregator(t, reader, nil).GetPortfolio(context.Background())
	assert.True(t, clierr.HasCode(err, clierr.CodeUnavailable))
}

func TestGetPortfolioUsesCacheTiers(t *testing.T) {
	dir := t.TempDir()
	store, err := cache.Open(filepath.Join(dir, "cache.db"), filepath.Join(dir, "cache.lock"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reader := &fakeReader{
		oracle:   `{"value":0.5}`,
		balances: map[string][]indexer.ChainBalance{"coin": {{ChainID: "3", Balance: dec("4")}}},
	}
	var lookups []string
	first, err := New(Config{
		Network: id.Mainnet, Account: walletAccount, Reader: reader,
		Cache:         cache.NewTiered(store, nil),
		OnCacheLookup: func(status string) { lookups = append(lookups, status) },
	})
	require.NoError(t, err)

	p1, err := first.GetPortfolio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2.00", p1.Value)
	assert.Equal(t, 1, reader.listCalls)

	p2, err := first.GetPortfolio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p1, p2)
	assert.Equal(t, 1, reader.listCalls)

	// A fresh process-local tier still finds the entry in the persistent tier.
	second := newAggregator(t, reader, cache.NewTiered(store, nil))
	p3, err := second.GetPortfolio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, p1, p3)
	assert.Equal(t, 1, reader.listCalls)
	assert.Equal(t, 1, reader.reads)

	assert.Equal(t, []string{"miss", "miss", "hit"}, lookups)
}

func TestBalancesAllChainsWithUSD(t *testing.T) {
	reader := &fakeReader{
		oracle: `{"value":2}`,
		balances: map[string][]indexer.ChainBalance{
			"coin": {{ChainID: "0", Balance: dec("1.5")}, {ChainID: "4", Balance: dec("0.25")}},
		},
	}
	report, err := newAggregator(t, reader, nil).Balances(context.Background(), BalanceRequest{Token: "KDA"})
	require.NoError(t, err)
	assert.Equal(t, walletAccount, report.Address)
	require.Len(t, report.Balances, 2)
	assert.Equal(t, TokenBalance{Chain: "0", Token: "KDA", Amount: "1.5", USDValue: "3.00"}, report.Balances[0])
	assert.Equal(t, TokenBalance{Chain: "4", Token: "KDA", Amount: "0.25", USDValue: "0.50"}, report.Balances[1])
	assert.Contains(t, report.Text(), "KDA on chain 4: 0.25 ($0.50)")
}

func TestBalancesSingleChainMissingIsZero(t *testing.T) {
	reader := &fakeReader{oracle: `{"value":2}`, balances: map[string][]indexer.ChainBalance{}}
	report, err := newAggregator(t, reader, nil).Balances(context.Background(), BalanceRequest{Chain: "7"})
	require.NoError(t, err)
	assert.Equal(t, "7", report.Chain)
	assert.Equal(t, &TokenBalance{Token: "KDA", Amount: "0", USDValue: "0.00"}, report.Balance)
}

func TestBalancesOtherToken(t *testing.T) {
	amount := dec("42.1")
	reader := &fakeReader{onChain: &amount}
	report, err := newAggregator(t, reader, nil).Balances(context.Background(), BalanceRequest{Chain: "2", Token: "kaddex.kdx"})
	require.NoError(t, err)
	assert.Equal(t, &TokenBalance{Token: "kaddex.kdx", Amount: "42.1"}, report.Balance)
	assert.Equal(t, "2", reader.lastChain)
	assert.Zero(t, reader.reads)

	reader.onChain = nil
	report, err = newAggregator(t, reader, nil).Balances(context.Background(), BalanceRequest{Chain: "2", Token: "kaddex.kdx"})
	require.NoError(t, err)
	assert.Equal(t, "0", report.Balance.Amount)
}

func TestBalancesAddressSelection(t *testing.T) {
	other := "k:0000000000000000000000000000000000000000000000000000000000000001"
	reader := &fakeReader{oracle: `{"value":1}`, balances: map[string][]indexer.ChainBalance{}}
	a := newAggregator(t, reader, nil)

	report, err := a.Balances(context.Background(), BalanceRequest{Address: other})
	require.NoError(t, err)
	assert.Equal(t, other, report.Address)

	report, err = a.Balances(context.Background(), BalanceRequest{Address: "k:short"})
	require.NoError(t, err)
	assert.Equal(t, walletAccount, report.Address)

	_, err = a.Balances(context.Background(), BalanceRequest{Address: "0000000000000000000000000000000000000000000000000000000000000000001"})
	assert.True(t, clierr.HasCode(err, clierr.CodeValidation))

	_, err = a.Balances(context.Background(), BalanceRequest{Chain: "20"})
	assert.True(t, clierr.HasCode(err, clierr.CodeValidation))
}
