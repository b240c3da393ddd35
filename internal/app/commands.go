package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ggonzalez94/kadena-cli/internal/actions"
	"github.com/ggonzalez94/kadena-cli/internal/api"
	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/execution"
	"github.com/ggonzalez94/kadena-cli/internal/logging"
	"github.com/ggonzalez94/kadena-cli/internal/model"
	"github.com/ggonzalez94/kadena-cli/internal/schema"
	"github.com/ggonzalez94/kadena-cli/internal/swap"
	"github.com/ggonzalez94/kadena-cli/internal/transfer"
	"github.com/ggonzalez94/kadena-cli/internal/wallet"
)

func (s *runtimeState) newSchemaCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "schema [command path]",
		Short: "Print machine-readable command schema",
		Args:  cobra.ArbitraryArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := schema.Build(s.root, strings.Join(args, " "))
			if err != nil {
				return clierr.Wrap(clierr.CodeUsage, "build schema", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), data)
		},
	}
}

func (s *runtimeState) newTransferCommand() *cobra.Command {
	var req transfer.Request
	var intent, confirmTimeout, proofTimeout string
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Transfer KDA on one chain or from one chain to another",
		Example: `  kda transfer --recipient k:abcd... --amount 2 --from-chain 5
  kda transfer --intent '{"recipient":"k:abcd...","amount":5,"fromChain":"1","toChain":"3"}'`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(intent) != "" {
				parsed, err := transfer.ParseRequest([]byte(intent))
				if err != nil {
					return err
				}
				req = parsed
			}
			if err := s.applyPollTimeouts(confirmTimeout, proofTimeout); err != nil {
				return err
			}
			svc, err := s.ensureServices(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.transfers.Transfer(cmd.Context(), req)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res)
		},
	}
	cmd.Flags().StringVar(&req.Recipient, "recipient", "", "Recipient account (k:<64 hex>)")
	cmd.Flags().StringVar(&req.Amount, "amount", "", "Amount of KDA to send")
	cmd.Flags().StringVar(&req.FromChain, "from-chain", "", "Source chain (default: configured default chain)")
	cmd.Flags().StringVar(&req.ToChain, "to-chain", "", "Target chain (default: source chain)")
	cmd.Flags().StringVar(&intent, "intent", "", "Transfer intent as JSON; replaces the other request flags")
	cmd.Flags().StringVar(&confirmTimeout, "confirm-timeout", "", "Bound on waiting for the source step (e.g. 5m)")
	cmd.Flags().StringVar(&proofTimeout, "proof-timeout", "", "Bound on waiting for the SPV proof (e.g. 10m)")
	return cmd
}

func (s *runtimeState) applyPollTimeouts(confirm, proof string) error {
	for _, item := range []struct {
		raw  string
		flag string
		dst  *time.Duration
	}{
		{confirm, "--confirm-timeout", &s.settings.ConfirmTimeout},
		{proof, "--proof-timeout", &s.settings.ProofTimeout},
	} {
		if strings.TrimSpace(item.raw) == "" {
			continue
		}
		d, err := time.ParseDuration(item.raw)
		if err != nil || d < 0 {
			return clierr.New(clierr.CodeUsage, fmt.Sprintf("invalid %s value %q", item.flag, item.raw))
		}
		*item.dst = d
	}
	return nil
}

func (s *runtimeState) newSwapCommand() *cobra.Command {
	var req swap.Request
	var intent string
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap tokens on kdswap or mercatus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(intent) != "" {
				parsed, err := swap.ParseRequest([]byte(intent))
				if err != nil {
					return err
				}
				req = parsed
			}
			svc, err := s.ensureServices(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.swaps.Swap(cmd.Context(), req)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res)
		},
	}
	cmd.Flags().StringVar(&req.FromToken, "from-token", "", "Token to sell (kda or a module name)")
	cmd.Flags().StringVar(&req.ToToken, "to-token", "", "Token to buy (kda or a module name)")
	cmd.Flags().StringVar(&req.Amount, "amount", "", "Amount of the sold token")
	cmd.Flags().StringVar(&req.Platform, "platform", swap.DefaultPlatform, "Exchange (kdswap|mercatus)")
	cmd.Flags().StringVar(&intent, "intent", "", "Swap intent as JSON; replaces the other request flags")
	return cmd
}

func (s *runtimeState) newBalanceCommand() *cobra.Command {
	var req wallet.BalanceRequest
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Token balance of the wallet (or an address) on one or all chains",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := s.ensureServices(cmd.Context())
			if err != nil {
				return err
			}
			report, err := svc.wallet.Balances(cmd.Context(), req)
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), report)
		},
	}
	cmd.Flags().StringVar(&req.Address, "address", "", "Account to inspect (default: the signing account)")
	cmd.Flags().StringVar(&req.Chain, "chain", "", "Single chain to query (default: all chains)")
	cmd.Flags().StringVar(&req.Token, "token", "", "Token module (default: coin)")
	return cmd
}

func (s *runtimeState) newPortfolioCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "portfolio",
		Short: "KDA price, total balance and USD value of the signing account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := s.ensureServices(cmd.Context())
			if err != nil {
				return err
			}
			p, err := svc.wallet.GetPortfolio(cmd.Context())
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), p)
		},
	}
}

func (s *runtimeState) newActionsCommand() *cobra.Command {
	root := &cobra.Command{Use: "actions", Short: "Named actions and recorded sagas"}

	root.AddCommand(&cobra.Command{
		Use:   "catalog",
		Short: "List named actions and their similes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), actions.Catalog())
		},
	})

	var intent string
	runCmd := &cobra.Command{
		Use:   "run <name>",
		Short: "Run a named action with a JSON intent",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, ok := actions.Resolve(args[0]); !ok {
				return clierr.New(clierr.CodeUsage, fmt.Sprintf("unknown action %q", args[0]))
			}
			svc, err := s.ensureServices(cmd.Context())
			if err != nil {
				return err
			}
			res, err := svc.dispatcher.Dispatch(cmd.Context(), args[0], []byte(intent))
			if err != nil {
				return err
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), res)
		},
	}
	runCmd.Flags().StringVar(&intent, "intent", "", "Action intent as JSON")
	root.AddCommand(runCmd)

	var listStatus string
	var listLimit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded sagas, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := s.ensureActionStore(); err != nil {
				return err
			}
			items, err := s.actionStore.List(cmd.Context(), listStatus, listLimit)
			if err != nil {
				return clierr.Wrap(clierr.CodeInternal, "list actions", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), summarize(items))
		},
	}
	listCmd.Flags().StringVar(&listStatus, "status", "", "Filter by status (planned|running|completed|failed)")
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Maximum actions to return")
	root.AddCommand(listCmd)

	var statusActionID string
	statusCmd := &cobra.Command{
		Use:   "status [action id or request key]",
		Short: "Show one recorded saga",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			positional := ""
			if len(args) > 0 {
				positional = args[0]
			}
			ref, err := resolveActionID(statusActionID, positional)
			if err != nil {
				return err
			}
			if err := s.ensureActionStore(); err != nil {
				return err
			}
			action, err := s.actionStore.Get(cmd.Context(), ref)
			if err != nil {
				if errors.Is(err, execution.ErrActionNotFound) {
					return clierr.Wrap(clierr.CodeUsage, "load action", err)
				}
				return clierr.Wrap(clierr.CodeInternal, "load action", err)
			}
			return s.emitSuccess(trimRootPath(cmd.CommandPath()), action)
		},
	}
	statusCmd.Flags().StringVar(&statusActionID, "action-id", "", "Action identifier or source request key")
	root.AddCommand(statusCmd)
	return root
}

func (s *runtimeState) newServeCommand() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the named actions over HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := s.ensureServices(cmd.Context())
			if err != nil {
				return err
			}
			if strings.TrimSpace(addr) == "" {
				addr = s.settings.ServeAddr
			}
			cfg := api.Config{
				Addr:     addr,
				Runner:   svc.dispatcher,
				Metrics:  s.metrics,
				Gatherer: s.registry,
				Logger:   logging.Component(s.log, "api"),
			}
			if store := s.tryActionStore(); store != nil {
				cfg.Sagas = store
			}
			if err := api.NewServer(cfg).Start(cmd.Context()); err != nil {
				return clierr.Wrap(clierr.CodeUnavailable, "serve actions", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (default from config, 127.0.0.1:8787)")
	return cmd
}

// resolveActionID accepts the reference from --action-id or the positional
// argument; both may be given only when they agree.
func resolveActionID(flagValue, positional string) (string, error) {
	flagValue = strings.TrimSpace(flagValue)
	positional = strings.TrimSpace(positional)
	switch {
	case flagValue == "" && positional == "":
		return "", clierr.New(clierr.CodeUsage, "an action id or request key is required")
	case flagValue != "" && positional != "" && flagValue != positional:
		return "", clierr.New(clierr.CodeUsage, "--action-id and the positional argument differ")
	case flagValue != "":
		return flagValue, nil
	default:
		return positional, nil
	}
}

func summarize(items []execution.Action) []model.ActionSummary {
	out := make([]model.ActionSummary, 0, len(items))
	for _, a := range items {
		out = append(out, model.ActionSummary{
			ActionID:      a.ActionID,
			IntentType:    a.IntentType,
			State:         string(a.State),
			Status:        string(a.Status),
			Network:       a.Network,
			ChainID:       a.ChainID,
			TargetChainID: a.TargetChainID,
			RequestKey:    a.RequestKey,
			UpdatedAt:     a.UpdatedAt,
		})
	}
	return out
}
