// Package actions exposes transfers, swaps and balance queries as named
// actions that take a structured JSON intent and always produce an Output.
package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/swap"
	"github.com/ggonzalez94/kadena-cli/internal/transfer"
	"github.com/ggonzalez94/kadena-cli/internal/wallet"
)

const (
	ActionTransfer = "TRANSFER_KDA"
	ActionBalance  = "GET_BALANCE"
	ActionSwap     = "SWAP_TOKEN"
)

type Descriptor struct {
	Name        string   `json:"name"`
	Similes     []string `json:"similes"`
	Description string   `json:"description"`
	Example     string   `json:"example"`
}

var catalog = []Descriptor{
	{
		Name:        ActionTransfer,
		Similes:     []string{"CROSS_CHAIN_TRANSFER", "SEND_TO_CHAIN", "TRANSFER_BETWEEN_CHAINS"},
		Description: "Transfer KDA on one chain or between two chains of the network",
		Example:     `{"recipient":"k:1234","amount":2,"fromChain":"5"}`,
	},
	{
		Name:        ActionBalance,
		Similes:     []string{"CHECK_BALANCE", "BALANCE", "GET_TOKEN_BALANCE", "SHOW_BALANCE", "CHECK_KDA"},
		Description: "Get the balance of a token for an address on one or all chains",
		Example:     `{"token":"kda","chain":"2"}`,
	},
	{
		Name:        ActionSwap,
		Similes:     []string{"EXCHANGE_TOKEN", "TRADE_TOKEN", "SWAP_TOKENS", "EXCHANGE_TOKENS", "TRADE_TOKENS"},
		Description: "Swap tokens on kdswap or mercatus",
		Example:     `{"fromToken":"kda","toToken":"kdlaunch.token","amount":1,"platform":"kdswap"}`,
	},
}

func Catalog() []Descriptor {
	out := make([]Descriptor, len(catalog))
	copy(out, catalog)
	return out
}

// Resolve maps an action name or one of its similes to the canonical name.
func Resolve(name string) (string, bool) {
	key := strings.ToUpper(strings.TrimSpace(name))
	key = strings.ReplaceAll(key, "-", "_")
	for _, d := range catalog {
		if d.Name == key {
			return d.Name, true
		}
		for _, s := range d.Similes {
			if s == key {
				return d.Name, true
			}
		}
	}
	return "", false
}

// Output is what an action hands back to its caller: a human readable line
// and either the result record or an ErrorContent.
type Output struct {
	Text    string `json:"text"`
	Content any    `json:"content"`
}

type ErrorContent struct {
	Error string `json:"error"`
}

type Transferer interface {
	Transfer(ctx context.Context, req transfer.Request) (transfer.Result, error)
}

type Swapper interface {
	Swap(ctx context.Context, req swap.Request) (swap.Result, error)
}

type Wallet interface {
	GetPortfolio(ctx context.Context) (wallet.Portfolio, error)
	Balances(ctx context.Context, req wallet.BalanceRequest) (wallet.BalanceReport, error)
}

type Dispatcher struct {
	transfers Transferer
	swaps     Swapper
	wallet    Wallet
	log       *logrus.Entry
}

func NewDispatcher(transfers Transferer, swaps Swapper, w Wallet, log *logrus.Entry) *Dispatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Dispatcher{transfers: transfers, swaps: swaps, wallet: w, log: log}
}

// Dispatch runs the named action. The returned Output is always populated;
// err is non-nil when Output carries an ErrorContent.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, intent []byte) (Output, error) {
	canonical, ok := Resolve(name)
	if !ok {
		err := clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown action %q", name))
		return failure("Unknown action", err), err
	}
	log := d.log.WithField("action", canonical)
	var (
		out Output
		err error
	)
	switch canonical {
	case ActionTransfer:
		out, err = d.transfer(ctx, intent)
	case ActionSwap:
		out, err = d.swap(ctx, intent)
	case ActionBalance:
		out, err = d.balance(ctx, intent)
	}
	if err != nil {
		log.WithError(err).Warn("action failed")
		return out, err
	}
	log.Info("action completed")
	return out, nil
}

func (d *Dispatcher) transfer(ctx context.Context, intent []byte) (Output, error) {
	if d.transfers == nil {
		err := clierr.New(clierr.CodeConfig, "transfers are not configured")
		return failure("Transfer error", err), err
	}
	req, err := transfer.ParseRequest(intent)
	if err != nil {
		return failure("Transfer error", err), err
	}
	res, err := d.transfers.Transfer(ctx, req)
	if err != nil {
		return failure("Transfer error", err), err
	}
	where := "on chain " + res.FromChain
	if res.FromChain != res.ToChain {
		where = fmt.Sprintf("from chain %s to chain %s", res.FromChain, res.ToChain)
	}
	return Output{
		Text:    fmt.Sprintf("Successfully transferred %s KDA %s\nTransaction ID: %s\nExplorer: %s", res.Amount, where, res.RequestKey, res.ExplorerURL),
		Content: res,
	}, nil
}

func (d *Dispatcher) swap(ctx context.Context, intent []byte) (Output, error) {
	if d.swaps == nil {
		err := clierr.New(clierr.CodeConfig, "swaps are not configured")
		return failure("Swap error", err), err
	}
	req, err := swap.ParseRequest(intent)
	if err != nil {
		return failure("Swap error", err), err
	}
	res, err := d.swaps.Swap(ctx, req)
	if err != nil {
		return failure(fmt.Sprintf("Swap error on %s %s to %s", req.Amount, req.FromToken, req.ToToken), err), err
	}
	return Output{
		Text:    fmt.Sprintf("Submitted swap %s %s to %s on %s\nTransaction: %s\nView on Explorer: %s", res.Amount, res.FromToken, res.ToToken, res.Platform, res.Hash, res.ExplorerURL),
		Content: res,
	}, nil
}

func (d *Dispatcher) balance(ctx context.Context, intent []byte) (Output, error) {
	if d.wallet == nil {
		err := clierr.New(clierr.CodeConfig, "wallet is not configured")
		return failure("Balance error", err), err
	}
	req, err := parseBalanceRequest(intent)
	if err != nil {
		return failure("Balance error", err), err
	}
	report, err := d.wallet.Balances(ctx, req)
	if err != nil {
		return failure("Balance error", err), err
	}
	return Output{Text: report.Text(), Content: report}, nil
}

// Portfolio renders the wallet provider's view of the account.
func (d *Dispatcher) Portfolio(ctx context.Context) (Output, error) {
	if d.wallet == nil {
		err := clierr.New(clierr.CodeConfig, "wallet is not configured")
		return failure("Unable to fetch wallet information", err), err
	}
	p, err := d.wallet.GetPortfolio(ctx)
	if err != nil {
		return failure("Unable to fetch wallet information", err), err
	}
	return Output{Text: p.Text(), Content: p}, nil
}

// parseBalanceRequest accepts chain as a JSON string or number.
func parseBalanceRequest(intent []byte) (wallet.BalanceRequest, error) {
	if len(bytes.TrimSpace(intent)) == 0 {
		return wallet.BalanceRequest{}, nil
	}
	var in struct {
		Address string          `json:"address"`
		Chain   json.RawMessage `json:"chain"`
		Token   string          `json:"token"`
	}
	if err := json.Unmarshal(intent, &in); err != nil {
		return wallet.BalanceRequest{}, clierr.Wrap(clierr.CodeValidation, "parse balance intent", err)
	}
	chain := strings.Trim(string(bytes.TrimSpace(in.Chain)), `"`)
	if chain == "null" {
		chain = ""
	}
	return wallet.BalanceRequest{Address: in.Address, Chain: chain, Token: in.Token}, nil
}

func failure(prefix string, err error) Output {
	return Output{
		Text:    fmt.Sprintf("%s: %s", prefix, err.Error()),
		Content: ErrorContent{Error: err.Error()},
	}
}
