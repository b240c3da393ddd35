package actions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/swap"
	"github.com/ggonzalez94/kadena-cli/internal/transfer"
	"github.com/ggonzalez94/kadena-cli/internal/wallet"
)

type fakeTransferer struct {
	got transfer.Request
	err error
}

func (f *fakeTransferer) Transfer(_ context.Context, req transfer.Request) (transfer.Result, error) {
	f.got = req
	if f.err != nil {
		return transfer.Result{}, f.err
	}
	to := req.ToChain
	if to == "" {
		to = req.FromChain
	}
	return transfer.Result{
		Success:     true,
		RequestKey:  "rk-1",
		Amount:      "2.000000000000",
		FromChain:   req.FromChain,
		ToChain:     to,
		ExplorerURL: "https://explorer.kadena.io/mainnet/transaction/rk-1",
	}, nil
}

type fakeSwapper struct{ got swap.Request }

func (f *fakeSwapper) Swap(_ context.Context, req swap.Request) (swap.Result, error) {
	f.got = req
	return swap.Result{Success: true, Hash: "swap-rk", Amount: req.Amount, FromToken: req.FromToken, ToToken: req.ToToken, Platform: "kdswap"}, nil
}

type fakeWallet struct{ got wallet.BalanceRequest }

func (f *fakeWallet) GetPortfolio(context.Context) (wallet.Portfolio, error) {
	return wallet.Portfolio{KDAUSD: "0.81", Balance: "10.00", Value: "8.10"}, nil
}

func (f *fakeWallet) Balances(_ context.Context, req wallet.BalanceRequest) (wallet.BalanceReport, error) {
	f.got = req
	return wallet.BalanceReport{Address: "k:abc", Chain: req.Chain, Balance: &wallet.TokenBalance{Token: "KDA", Amount: "1", USDValue: "0.81"}}, nil
}

func TestResolveSimiles(t *testing.T) {
	for input, want := range map[string]string{
		"TRANSFER_KDA":         ActionTransfer,
		"cross-chain-transfer": ActionTransfer,
		"check_balance":        ActionBalance,
		" trade_tokens ":       ActionSwap,
	} {
		got, ok := Resolve(input)
		require.True(t, ok, input)
		assert.Equal(t, want, got, input)
	}
	_, ok := Resolve("MINT")
	assert.False(t, ok)
}

func TestDispatchTransfer(t *testing.T) {
	tr := &fakeTransferer{}
	d := NewDispatcher(tr, nil, nil, nil)

	out, err := d.Dispatch(context.Background(), "TRANSFER_KDA", []byte(`{"recipient":"k:1234","amount":2,"fromChain":"5"}`))
	require.NoError(t, err)
	assert.Equal(t, transfer.Request{Recipient: "k:1234", Amount: "2", FromChain: "5"}, tr.got)
	assert.Contains(t, out.Text, "Successfully transferred 2.000000000000 KDA on chain 5")
	res, ok := out.Content.(transfer.Result)
	require.True(t, ok)
	assert.True(t, res.Success)
	assert.Equal(t, "rk-1", res.RequestKey)

	out, err = d.Dispatch(context.Background(), "SEND_TO_CHAIN", []byte(`{"recipient":"k:abcd","amount":5,"fromChain":"1","toChain":"3"}`))
	require.NoError(t, err)
	assert.Contains(t, out.Text, "from chain 1 to chain 3")
}

func TestDispatchTransferFailureBecomesErrorContent(t *testing.T) {
	tr := &fakeTransferer{err: clierr.New(clierr.CodeDryRunRejected, "local dry run rejected: Insufficient funds")}
	d := NewDispatcher(tr, nil, nil, nil)

	out, err := d.Dispatch(context.Background(), ActionTransfer, []byte(`{"recipient":"k:abcd","amount":5,"fromChain":"1","toChain":"3"}`))
	require.Error(t, err)
	assert.True(t, clierr.HasCode(err, clierr.CodeDryRunRejected))
	assert.Equal(t, ErrorContent{Error: "local dry run rejected: Insufficient funds"}, out.Content)
	assert.Equal(t, "Transfer error: local dry run rejected: Insufficient funds", out.Text)
}

func TestDispatchMalformedIntent(t *testing.T) {
	d := NewDispatcher(&fakeTransferer{}, nil, nil, nil)
	out, err := d.Dispatch(context.Background(), ActionTransfer, []byte(`{"amount":`))
	require.Error(t, err)
	assert.True(t, clierr.HasCode(err, clierr.CodeValidation))
	_, isErr := out.Content.(ErrorContent)
	assert.True(t, isErr)
}

func TestDispatchUnknownAndUnconfigured(t *testing.T) {
	d := NewDispatcher(nil, nil, nil, nil)

	out, err := d.Dispatch(context.Background(), "MINT", nil)
	assert.True(t, clierr.HasCode(err, clierr.CodeUsage))
	assert.IsType(t, ErrorContent{}, out.Content)

	_, err = d.Dispatch(context.Background(), ActionSwap, []byte(`{}`))
	assert.True(t, clierr.HasCode(err, clierr.CodeConfig))
}

func TestDispatchSwapAndBalance(t *testing.T) {
	sw := &fakeSwapper{}
	w := &fakeWallet{}
	d := NewDispatcher(nil, sw, w, nil)

	out, err := d.Dispatch(context.Background(), "SWAP_TOKEN", []byte(`{"fromToken":"kda","toToken":"kdlaunch.token","amount":1.5}`))
	require.NoError(t, err)
	assert.Equal(t, "1.5", sw.got.Amount)
	assert.Contains(t, out.Text, "Submitted swap 1.5 kda to kdlaunch.token on kdswap")

	out, err = d.Dispatch(context.Background(), "GET_BALANCE", []byte(`{"chain":2,"token":"kda"}`))
	require.NoError(t, err)
	assert.Equal(t, wallet.BalanceRequest{Chain: "2", Token: "kda"}, w.got)
	assert.Equal(t, "Balance on chain 2:\n• KDA: 1 ($0.81)", out.Text)

	out, err = d.Portfolio(context.Background())
	require.NoError(t, err)
	assert.Equal(t, wallet.Portfolio{KDAUSD: "0.81", Balance: "10.00", Value: "8.10"}, out.Content)
}
