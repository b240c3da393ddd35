package swap

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/kadena-cli/internal/chainweb"
	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/execution"
	"github.com/ggonzalez94/kadena-cli/internal/execution/signer"
	"github.com/ggonzalez94/kadena-cli/internal/id"
	"github.com/ggonzalez94/kadena-cli/internal/indexer"
	"github.com/ggonzalez94/kadena-cli/internal/pact"
)

const testSecretKey = "251a920c403ae8c8f65f59142316af3c82b631fba46ddea92ee8c95035bd2898"

type fakePairs struct {
	chain string
	code  string
	rows  []indexer.ReadResult
}

func (f *fakePairs) FetchOnChainRead(_ context.Context, chainID, code string) ([]indexer.ReadResult, error) {
	f.chain = chainID
	f.code = code
	return f.rows, nil
}

type fakeClient struct {
	chain     string
	localFail string
	locals    int
	sent      []pact.SignedTransaction
}

func (c *fakeClient) Local(_ context.Context, _ pact.SignedTransaction, _ chainweb.LocalOptions) (chainweb.CommandResult, error) {
	c.locals++
	if c.localFail != "" {
		return chainweb.CommandResult{Result: chainweb.PactResult{
			Status: chainweb.StatusFailure,
			Error:  json.RawMessage(`{"message":"` + c.localFail + `"}`),
		}}, nil
	}
	return chainweb.CommandResult{Result: chainweb.PactResult{Status: chainweb.StatusSuccess}}, nil
}

func (c *fakeClient) Submit(_ context.Context, tx pact.SignedTransaction) (chainweb.Submission, error) {
	c.sent = append(c.sent, tx)
	return chainweb.Submission{RequestKey: "swap-rk", ChainID: c.chain}, nil
}

func (c *fakeClient) PollOne(context.Context, chainweb.Submission) (chainweb.CommandResult, error) {
	panic("swap does not poll")
}

func (c *fakeClient) PollCreateSPV(context.Context, chainweb.Submission, string) (string, error) {
	panic("swap does not request proofs")
}

func newService(t *testing.T, client *fakeClient, pairs *fakePairs) *Service {
	t.Helper()
	s, err := signer.NewLocalSigner(signer.LocalSignerConfig{SecretKeyHex: testSecretKey})
	require.NoError(t, err)
	svc, err := New(Config{
		Network: id.Mainnet,
		Builder: pact.NewBuilder(id.Mainnet),
		Signer:  s,
		Clients: func(chainID string) (execution.ChainClient, error) {
			client.chain = chainID
			return client, nil
		},
		Pairs: pairs,
	})
	require.NoError(t, err)
	return svc
}

func pairRows(account string) []indexer.ReadResult {
	return []indexer.ReadResult{{
		Result: `{"kda":1000.5,"token":20.1,"account":"` + account + `"}`,
		Status: "success",
	}}
}

func TestSwapOnKdswap(t *testing.T) {
	client := &fakeClient{}
	pairs := &fakePairs{rows: pairRows("pair-acct")}
	svc := newService(t, client, pairs)

	res, err := svc.Swap(context.Background(), Request{FromToken: "KDA", ToToken: "kdlaunch.token", Amount: "1.5", Platform: "kdswap"})
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, "swap-rk", res.Hash)
	assert.Equal(t, "kdswap", res.Platform)
	assert.Equal(t, "https://explorer.kadena.io/mainnet/transaction/swap-rk", res.ExplorerURL)
	assert.Equal(t, "1", pairs.chain)
	assert.Contains(t, pairs.code, "(kdlaunch.kdswap-exchange.get-pair coin kdlaunch.token)")
	assert.Equal(t, "1", client.chain)
	require.Len(t, client.sent, 1)

	cmd, err := pact.ParseCommand(client.sent[0].Cmd)
	require.NoError(t, err)
	assert.Equal(t, "kdswap-gas-payer", cmd.Meta.Sender)
	assert.True(t, strings.HasPrefix(cmd.Payload.Exec.Code, "(kdlaunch.kdswap-exchange.swap-exact-in"))
	assert.Contains(t, cmd.Payload.Exec.Code, "[coin kdlaunch.token]")
	clist := cmd.Signers[0].Clist
	require.Len(t, clist, 2)
	assert.Equal(t, "kdlaunch.kdswap-gas-station.GAS_PAYER", clist[0].Name)
	assert.Equal(t, "coin.TRANSFER", clist[1].Name)
	assert.Equal(t, "pair-acct", clist[1].Args[1])
	assert.EqualValues(t, 0, cmd.Payload.Exec.Data["token1AmountWithSlippage"])
}

func TestSwapOnMercatusUsesChainTwo(t *testing.T) {
	client := &fakeClient{}
	pairs := &fakePairs{rows: pairRows("kaddex-pair")}
	svc := newService(t, client, pairs)

	res, err := svc.Swap(context.Background(), Request{FromToken: "kaddex.kdx", ToToken: "kda", Amount: "3", Platform: "Mercatus"})
	require.NoError(t, err)
	assert.Equal(t, "mercatus", res.Platform)
	assert.Equal(t, "2", pairs.chain)
	assert.Contains(t, pairs.code, "(kaddex.exchange.get-pair coin kaddex.kdx)")
	assert.Equal(t, "2", client.chain)
}

func TestSwapDryRunRejectionSkipsSubmit(t *testing.T) {
	client := &fakeClient{localFail: "insufficient liquidity"}
	svc := newService(t, client, &fakePairs{rows: pairRows("pair-acct")})

	_, err := svc.Swap(context.Background(), Request{FromToken: "kda", ToToken: "kdlaunch.token", Amount: "1"})
	require.Error(t, err)
	assert.True(t, clierr.HasCode(err, clierr.CodeDryRunRejected))
	assert.Contains(t, err.Error(), "insufficient liquidity")
	assert.Equal(t, 1, client.locals)
	assert.Empty(t, client.sent)
}

func TestSwapValidation(t *testing.T) {
	cases := []Request{
		{FromToken: "kda", ToToken: "kdlaunch.token", Amount: "1", Platform: "uniswap"},
		{FromToken: "kda", ToToken: "kda", Amount: "1"},
		{FromToken: "kda", ToToken: "kdlaunch.token", Amount: "0"},
		{FromToken: "", ToToken: "kdlaunch.token", Amount: "1"},
	}
	for _, req := range cases {
		client := &fakeClient{}
		pairs := &fakePairs{}
		svc := newService(t, client, pairs)
		_, err := svc.Swap(context.Background(), req)
		require.Error(t, err, "request %+v", req)
		assert.True(t, clierr.HasCode(err, clierr.CodeValidation), "request %+v", req)
		assert.Empty(t, pairs.code)
		assert.Zero(t, client.locals)
	}
}

func TestPairAccountMissing(t *testing.T) {
	client := &fakeClient{}
	svc := newService(t, client, &fakePairs{rows: []indexer.ReadResult{{Result: `{"kda":0}`, Status: "success"}}})
	_, err := svc.Swap(context.Background(), Request{FromToken: "kda", ToToken: "kdlaunch.token", Amount: "1"})
	require.Error(t, err)
	assert.True(t, clierr.HasCode(err, clierr.CodeUnavailable))
	assert.Zero(t, client.locals)
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest([]byte(`{"fromToken":"KDA","toToken":"kdlaunch.token","amount":2.5,"platform":"kdswap"}`))
	require.NoError(t, err)
	assert.Equal(t, Request{FromToken: "KDA", ToToken: "kdlaunch.token", Amount: "2.5", Platform: "kdswap"}, req)
}
