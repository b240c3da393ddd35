// Package swap submits exact-in swaps against the kdswap and mercatus exchanges.
package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/execution"
	"github.com/ggonzalez94/kadena-cli/internal/execution/signer"
	"github.com/ggonzalez94/kadena-cli/internal/id"
	"github.com/ggonzalez94/kadena-cli/internal/indexer"
	"github.com/ggonzalez94/kadena-cli/internal/pact"
	"github.com/ggonzalez94/kadena-cli/internal/registry"
)

const (
	DefaultPlatform = "kdswap"
	stepSwap        = "swap"
)

type Request struct {
	FromToken string `json:"fromToken"`
	ToToken   string `json:"toToken"`
	Amount    string `json:"amount"`
	Platform  string `json:"platform,omitempty"`
}

// ParseRequest decodes a JSON swap intent; amount may be a number or a string.
func ParseRequest(raw []byte) (Request, error) {
	var in struct {
		FromToken string      `json:"fromToken"`
		ToToken   string      `json:"toToken"`
		Amount    json.Number `json:"amount"`
		Platform  string      `json:"platform"`
	}
	if err := json.Unmarshal(raw, &in); err != nil {
		return Request{}, clierr.Wrap(clierr.CodeValidation, "parse swap intent", err)
	}
	return Request{FromToken: in.FromToken, ToToken: in.ToToken, Amount: in.Amount.String(), Platform: in.Platform}, nil
}

type Result struct {
	Success     bool   `json:"success"`
	Hash        string `json:"hash"`
	Amount      string `json:"amount"`
	FromToken   string `json:"fromToken"`
	ToToken     string `json:"toToken"`
	Platform    string `json:"platform"`
	ExplorerURL string `json:"explorerUrl"`
	ActionID    string `json:"actionId"`
}

// PairReader runs read-only Pact code through the account query service.
type PairReader interface {
	FetchOnChainRead(ctx context.Context, chainID, code string) ([]indexer.ReadResult, error)
}

type Config struct {
	Network  id.Network
	Builder  *pact.Builder
	Signer   signer.Signer
	Clients  execution.ClientFactory
	Pairs    PairReader
	Recorder execution.Recorder
	Hooks    []execution.TransitionHook
	Logger   *logrus.Entry
}

type Service struct {
	cfg      Config
	pipeline execution.Pipeline
	log      *logrus.Entry
}

func New(cfg Config) (*Service, error) {
	if cfg.Builder == nil || cfg.Signer == nil || cfg.Clients == nil || cfg.Pairs == nil {
		return nil, clierr.New(clierr.CodeInternal, "swap service requires a builder, a signer, a client factory and a pair reader")
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Service{
		cfg:      cfg,
		pipeline: execution.Pipeline{Builder: cfg.Builder, Signer: cfg.Signer, Log: log},
		log:      log,
	}, nil
}

// Swap looks up the pair account, then builds, dry-runs and submits the swap.
// The minimum output is always zero.
func (s *Service) Swap(ctx context.Context, req Request) (Result, error) {
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	if platform == "" {
		platform = DefaultPlatform
	}
	exchange, ok := registry.ExchangeFor(platform)
	if !ok {
		return Result{}, clierr.New(clierr.CodeValidation, fmt.Sprintf("unsupported platform %q (use %s)", req.Platform, strings.Join(registry.Platforms(), " or ")))
	}
	from, err := id.NormalizeToken(req.FromToken)
	if err != nil {
		return Result{}, err
	}
	to, err := id.NormalizeToken(req.ToToken)
	if err != nil {
		return Result{}, err
	}
	if from == to {
		return Result{}, clierr.New(clierr.CodeValidation, "fromToken and toToken must differ")
	}
	amount, err := id.ParseAmount(req.Amount)
	if err != nil {
		return Result{}, err
	}

	action := execution.NewAction(execution.NewActionID(), execution.IntentSwap, string(s.cfg.Network), exchange.ChainID)
	action.Provider = exchange.Platform
	action.FromAccount = s.cfg.Signer.Account()
	action.InputAmount = id.FormatAmount(amount)
	action.Metadata = map[string]string{"from_token": from, "to_token": to}
	action.AddStep(execution.ActionStep{
		StepID:      stepSwap,
		Type:        execution.StepTypeSwap,
		ChainID:     exchange.ChainID,
		Description: fmt.Sprintf("swap %s %s to %s on %s", id.FormatAmount(amount), from, to, exchange.Platform),
	})
	opts := []execution.SagaOption{execution.WithLogger(s.log)}
	if s.cfg.Recorder != nil {
		opts = append(opts, execution.WithRecorder(s.cfg.Recorder))
	}
	for _, hook := range s.cfg.Hooks {
		opts = append(opts, execution.WithHook(hook))
	}
	saga := execution.NewSaga(action, false, opts...)

	pairAccount, err := PairAccount(ctx, s.cfg.Pairs, exchange, pairToken(from, to))
	if err != nil {
		return Result{}, saga.Fail(ctx, err)
	}
	s.log.WithFields(logrus.Fields{"platform": exchange.Platform, "pair_account": pairAccount}).Debug("resolved pair account")
	saga.Mutate(func(a *execution.Action) {
		a.ToAccount = pairAccount
	})

	client, err := s.cfg.Clients(exchange.ChainID)
	if err != nil {
		return Result{}, saga.Fail(ctx, err)
	}
	spec := pact.Swap(pact.SwapParams{
		Exchange:    exchange,
		Account:     s.cfg.Signer.Account(),
		PublicKey:   s.cfg.Signer.PublicKey(),
		FromToken:   from,
		ToToken:     to,
		PairAccount: pairAccount,
		Amount:      amount,
	})
	signed, err := s.pipeline.Prepare(ctx, saga, client, spec, stepSwap, execution.SourceStages)
	if err != nil {
		return Result{}, err
	}
	sub, err := s.pipeline.Submit(ctx, saga, client, signed, stepSwap, clierr.CodeSubmission)
	if err != nil {
		return Result{}, err
	}
	if err := saga.Advance(ctx, execution.StateSubmitted); err != nil {
		return Result{}, saga.Fail(ctx, err)
	}
	return Result{
		Success:     true,
		Hash:        sub.RequestKey,
		Amount:      req.Amount,
		FromToken:   req.FromToken,
		ToToken:     req.ToToken,
		Platform:    exchange.Platform,
		ExplorerURL: registry.ExplorerTxURL(s.cfg.Network, sub.RequestKey),
		ActionID:    saga.Action().ActionID,
	}, nil
}

// pairToken is the non-coin leg; exchange pairs are keyed against coin.
func pairToken(from, to string) string {
	if id.IsCoin(to) {
		return from
	}
	return to
}

// PairAccount reads the liquidity pair of coin and token on the exchange and
// returns the account that receives the input leg.
func PairAccount(ctx context.Context, reader PairReader, exchange registry.Exchange, token string) (string, error) {
	code := fmt.Sprintf(`(let*
  (
    (result (%[1]s.get-pair coin %[2]s))
    (kda (at 'reserve (at 'leg0 result)))
    (token (at 'reserve (at 'leg1 result)))
  )
  {
  "kda":kda,
  "token":token,
  "account":(at 'account result)
  }
)`, exchange.Module, token)
	rows, err := reader.FetchOnChainRead(ctx, exchange.ChainID, code)
	if err != nil {
		return "", err
	}
	var pair struct {
		Account string `json:"account"`
	}
	if err := indexer.DecodeFirst(rows, &pair); err != nil {
		return "", err
	}
	if pair.Account == "" {
		return "", clierr.New(clierr.CodeUnavailable, fmt.Sprintf("no %s pair for coin/%s", exchange.Platform, token))
	}
	return pair.Account, nil
}
