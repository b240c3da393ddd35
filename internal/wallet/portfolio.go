// Package wallet reports the configured account's KDA holdings and their USD value.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/kadena-cli/internal/cache"
	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/id"
	"github.com/ggonzalez94/kadena-cli/internal/indexer"
	"github.com/ggonzalez94/kadena-cli/internal/registry"
)

const CacheTTL = 5 * time.Minute

// Reader is the account query surface the aggregator needs.
type Reader interface {
	FetchAccountBalances(ctx context.Context, account, fungible string) ([]indexer.ChainBalance, error)
	FetchAccountBalanceOnChain(ctx context.Context, account, chainID, fungible string) (*decimal.Decimal, error)
	FetchOnChainRead(ctx context.Context, chainID, code string) ([]indexer.ReadResult, error)
}

type Config struct {
	Network id.Network
	Account string
	Reader  Reader
	Cache   *cache.Tiered
	// OnCacheLookup receives hit, miss or bypass for every cached read.
	OnCacheLookup func(status string)
	Logger        *logrus.Entry
}

type Aggregator struct {
	cfg Config
	log *logrus.Entry
}

func New(cfg Config) (*Aggregator, error) {
	if cfg.Reader == nil {
		return nil, clierr.New(clierr.CodeInternal, "wallet aggregator requires an account reader")
	}
	if err := id.ValidateAccount(cfg.Account); err != nil {
		return nil, err
	}
	if cfg.Cache == nil {
		cfg.Cache = cache.Disabled()
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Aggregator{cfg: cfg, log: log}, nil
}

func (a *Aggregator) Account() string { return a.cfg.Account }

type Portfolio struct {
	KDAUSD  string `json:"kda_usd"`
	Balance string `json:"balance"`
	Value   string `json:"value"`
}

func (p Portfolio) Text() string {
	return fmt.Sprintf("Wallet holds %s KDA worth $%s (KDA/USD %s)", p.Balance, p.Value, p.KDAUSD)
}

// GetPortfolio sums the account's coin balance across chains and values it
// at the oracle price. An account with no chains is worth 0.00.
func (a *Aggregator) GetPortfolio(ctx context.Context) (Portfolio, error) {
	key := fmt.Sprintf("portfolio/%s/%s", a.cfg.Network, a.cfg.Account)
	var cached Portfolio
	if a.lookup(ctx, key, &cached) {
		return cached, nil
	}

	price, err := a.Price(ctx)
	if err != nil {
		return Portfolio{}, err
	}
	chains, err := a.cfg.Reader.FetchAccountBalances(ctx, a.cfg.Account, id.CoinModule)
	if err != nil {
		return Portfolio{}, err
	}
	total := decimal.Zero
	for _, c := range chains {
		total = total.Add(c.Balance)
	}
	balance := total.Round(2)
	value := balance.Mul(price).Round(2)

	p := Portfolio{
		KDAUSD:  price.String(),
		Balance: id.FormatFiat(balance),
		Value:   id.FormatFiat(value),
	}
	a.store(ctx, key, p)
	return p, nil
}

// Price returns the KDA/USD oracle value, cached per network.
func (a *Aggregator) Price(ctx context.Context) (decimal.Decimal, error) {
	key := "price/" + string(a.cfg.Network)
	var cached string
	if a.lookup(ctx, key, &cached) {
		if d, err := decimal.NewFromString(cached); err == nil {
			return d, nil
		}
	}
	rows, err := a.cfg.Reader.FetchOnChainRead(ctx, registry.OracleChainID, registry.OracleCode)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if len(rows) == 0 {
		return decimal.Decimal{}, clierr.New(clierr.CodeUnavailable, "price oracle returned no rows")
	}
	price, err := ParsePrice(rows[0].Result)
	if err != nil {
		return decimal.Decimal{}, err
	}
	a.store(ctx, key, price.String())
	return price, nil
}

// ParsePrice reads the oracle's value field, which is either a bare number
// or a {"decimal": "..."} object.
func ParsePrice(result string) (decimal.Decimal, error) {
	var payload struct {
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal([]byte(result), &payload); err != nil {
		return decimal.Decimal{}, clierr.Wrap(clierr.CodeUnavailable, "decode oracle result", err)
	}
	raw := bytes.TrimSpace(payload.Value)
	if len(raw) == 0 {
		return decimal.Decimal{}, clierr.New(clierr.CodeUnavailable, "oracle result has no value")
	}
	var text string
	switch raw[0] {
	case '{':
		var wrapped struct {
			Decimal string          `json:"decimal"`
			Int     json.RawMessage `json:"int"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return decimal.Decimal{}, clierr.Wrap(clierr.CodeUnavailable, "decode oracle value", err)
		}
		text = wrapped.Decimal
		if text == "" {
			text = string(bytes.Trim(wrapped.Int, `"`))
		}
	case '"':
		if err := json.Unmarshal(raw, &text); err != nil {
			return decimal.Decimal{}, clierr.Wrap(clierr.CodeUnavailable, "decode oracle value", err)
		}
	default:
		text = string(raw)
	}
	price, err := decimal.NewFromString(text)
	if err != nil {
		return decimal.Decimal{}, clierr.Wrap(clierr.CodeUnavailable, fmt.Sprintf("invalid oracle value %q", text), err)
	}
	return price, nil
}

func (a *Aggregator) lookup(ctx context.Context, key string, out any) bool {
	status, err := a.cfg.Cache.Get(ctx, cache.NamespaceWallet, key, out)
	if err != nil {
		a.log.WithError(err).WithField("key", key).Debug("wallet cache read failed")
		status = cache.StatusMiss
	}
	if a.cfg.OnCacheLookup != nil {
		a.cfg.OnCacheLookup(string(status))
	}
	return status == cache.StatusHit
}

func (a *Aggregator) store(ctx context.Context, key string, value any) {
	if err := a.cfg.Cache.Set(ctx, cache.NamespaceWallet, key, value, CacheTTL); err != nil {
		a.log.WithError(err).WithField("key", key).Warn("wallet cache write failed")
	}
}
