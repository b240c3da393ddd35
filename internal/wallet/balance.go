package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/id"
)

// fullAccountLength is the length of "k:" plus a hex public key; shorter
// address input is ignored in favour of the wallet account.
const fullAccountLength = 64

type BalanceRequest struct {
	Address string `json:"address,omitempty"`
	Chain   string `json:"chain,omitempty"`
	Token   string `json:"token,omitempty"`
}

type TokenBalance struct {
	Chain    string `json:"chain,omitempty"`
	Token    string `json:"token"`
	Amount   string `json:"amount"`
	USDValue string `json:"usdValue,omitempty"`
}

type BalanceReport struct {
	Address  string         `json:"address"`
	Chain    string         `json:"chain,omitempty"`
	Balance  *TokenBalance  `json:"balance,omitempty"`
	Balances []TokenBalance `json:"balances,omitempty"`
}

func (r BalanceReport) Text() string {
	switch {
	case r.Balance != nil:
		line := fmt.Sprintf("Balance on chain %s:\n• %s: %s", r.Chain, r.Balance.Token, r.Balance.Amount)
		if r.Balance.USDValue != "" {
			line += fmt.Sprintf(" ($%s)", r.Balance.USDValue)
		}
		return line
	case len(r.Balances) > 0:
		var b strings.Builder
		fmt.Fprintf(&b, "Balances for %s:", r.Address)
		for _, bal := range r.Balances {
			fmt.Fprintf(&b, "\n• %s on chain %s: %s", bal.Token, bal.Chain, bal.Amount)
			if bal.USDValue != "" {
				fmt.Fprintf(&b, " ($%s)", bal.USDValue)
			}
		}
		return b.String()
	default:
		return "No balance information found"
	}
}

// Balances reports token balances for one chain or all chains. KDA balances
// carry a USD value; other tokens do not.
func (a *Aggregator) Balances(ctx context.Context, req BalanceRequest) (BalanceReport, error) {
	address := a.cfg.Account
	if candidate := strings.TrimSpace(req.Address); len(candidate) > fullAccountLength {
		address = candidate
	}
	if err := id.ValidateAccount(address); err != nil {
		return BalanceReport{}, err
	}
	tokenInput := req.Token
	if strings.TrimSpace(tokenInput) == "" {
		tokenInput = id.CoinModule
	}
	token, err := id.NormalizeToken(tokenInput)
	if err != nil {
		return BalanceReport{}, err
	}
	chain := ""
	if strings.TrimSpace(req.Chain) != "" {
		chain, err = id.ParseChainID(req.Chain)
		if err != nil {
			return BalanceReport{}, clierr.Wrap(clierr.CodeValidation, "invalid chain", err)
		}
	}

	if id.IsCoin(token) {
		return a.coinBalances(ctx, address, chain)
	}
	report := BalanceReport{Address: address, Chain: chain}
	if chain != "" {
		bal, err := a.cfg.Reader.FetchAccountBalanceOnChain(ctx, address, chain, token)
		if err != nil {
			return BalanceReport{}, err
		}
		amount := "0"
		if bal != nil {
			amount = bal.String()
		}
		report.Balance = &TokenBalance{Token: token, Amount: amount}
		return report, nil
	}
	rows, err := a.cfg.Reader.FetchAccountBalances(ctx, address, token)
	if err != nil {
		return BalanceReport{}, err
	}
	for _, row := range rows {
		report.Balances = append(report.Balances, TokenBalance{Chain: row.ChainID, Token: token, Amount: row.Balance.String()})
	}
	return report, nil
}

func (a *Aggregator) coinBalances(ctx context.Context, address, chain string) (BalanceReport, error) {
	price, err := a.Price(ctx)
	if err != nil {
		return BalanceReport{}, err
	}
	rows, err := a.cfg.Reader.FetchAccountBalances(ctx, address, id.CoinModule)
	if err != nil {
		return BalanceReport{}, err
	}
	usd := func(d decimal.Decimal) string { return id.FormatFiat(d.Mul(price).Round(2)) }

	report := BalanceReport{Address: address, Chain: chain}
	if chain != "" {
		bal := &TokenBalance{Token: "KDA", Amount: "0", USDValue: "0.00"}
		for _, row := range rows {
			if row.ChainID == chain {
				bal.Amount = row.Balance.String()
				bal.USDValue = usd(row.Balance)
				break
			}
		}
		report.Balance = bal
		return report, nil
	}
	for _, row := range rows {
		report.Balances = append(report.Balances, TokenBalance{
			Chain:    row.ChainID,
			Token:    "KDA",
			Amount:   row.Balance.String(),
			USDValue: usd(row.Balance),
		})
	}
	return report, nil
}
