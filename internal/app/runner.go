package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ggonzalez94/kadena-cli/internal/cache"
	"github.com/ggonzalez94/kadena-cli/internal/config"
	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/events"
	"github.com/ggonzalez94/kadena-cli/internal/execution"
	"github.com/ggonzalez94/kadena-cli/internal/logging"
	"github.com/ggonzalez94/kadena-cli/internal/metrics"
	"github.com/ggonzalez94/kadena-cli/internal/model"
	"github.com/ggonzalez94/kadena-cli/internal/out"
	"github.com/ggonzalez94/kadena-cli/internal/policy"
	"github.com/ggonzalez94/kadena-cli/internal/version"
)

type Runner struct {
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time
}

func NewRunner() *Runner {
	return NewRunnerWithWriters(os.Stdout, os.Stderr)
}

func NewRunnerWithWriters(stdout, stderr io.Writer) *Runner {
	return &Runner{
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
	}
}

type runtimeState struct {
	runner   *Runner
	flags    config.GlobalFlags
	settings config.Settings
	root     *cobra.Command

	lastCommand string

	// statusMu guards the per-command status collected from service
	// callbacks, which run on echo request goroutines under serve.
	statusMu  sync.Mutex
	lastCache cache.Status
	sources   map[string]*model.SourceStatus

	log         *logrus.Logger
	registry    *prometheus.Registry
	metrics     *metrics.Metrics
	cache       *cache.Tiered
	actionStore *execution.Store
	emitter     events.Emitter
	services    *services
}

func (r *Runner) Run(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := &runtimeState{runner: r}
	root := state.newRootCommand()
	state.root = root
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	root.SilenceUsage = true
	root.SilenceErrors = true

	err := root.ExecuteContext(ctx)
	err = normalizeRunError(err)
	defer state.close()
	if err == nil {
		return 0
	}
	state.renderError(err)
	return clierr.ExitCode(err)
}

func (s *runtimeState) close() {
	if s.cache != nil {
		_ = s.cache.Close()
	}
	if s.actionStore != nil {
		_ = s.actionStore.Close()
	}
	if s.emitter != nil {
		_ = s.emitter.Close()
	}
}

func (s *runtimeState) newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   version.CLIName,
		Short: "Kadena wallet CLI: balances, transfers across chains and swaps",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			settings, err := config.Load(s.flags)
			if err != nil {
				return clierr.Wrap(clierr.CodeConfig, "load configuration", err)
			}
			s.settings = settings

			path := trimRootPath(cmd.CommandPath())
			s.lastCommand = path
			if err := policy.CheckCommandAllowed(settings.EnableCommands, path); err != nil {
				return err
			}
			return s.initObservability()
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return clierr.Wrap(clierr.CodeUsage, "parse flags", err)
	})

	pf := cmd.PersistentFlags()
	pf.BoolVar(&s.flags.JSON, "json", false, "Output JSON (default)")
	pf.BoolVar(&s.flags.Plain, "plain", false, "Output plain text")
	pf.StringVar(&s.flags.Select, "select", "", "Select fields from data (comma-separated)")
	pf.BoolVar(&s.flags.ResultsOnly, "results-only", false, "Output only data payload")
	pf.StringVar(&s.flags.EnableCommands, "enable-commands", "", "Allowlist command paths (comma-separated)")
	pf.StringVar(&s.flags.Timeout, "timeout", "", "Per-request timeout for chainweb and indexer calls")
	pf.IntVar(&s.flags.Retries, "retries", -1, "Retries per upstream request")
	pf.BoolVar(&s.flags.NoCache, "no-cache", false, "Disable cache reads and writes")
	pf.StringVar(&s.flags.ConfigPath, "config", "", "Path to config file")
	pf.StringVar(&s.flags.EnvFile, "env-file", "", "Load KEY=VALUE pairs from this file (default .env when present)")
	pf.StringVar(&s.flags.Network, "network", "", "Kadena network (mainnet01|testnet04)")
	pf.StringVar(&s.flags.DefaultChain, "default-chain", "", "Chain used when a request names none")
	pf.StringVar(&s.flags.KeySource, "key-source", "", "Signing key source (auto|env|file|keystore)")
	pf.StringVar(&s.flags.LogLevel, "log-level", "", "Log level (debug|info|warn|error)")

	cmd.AddCommand(s.newSchemaCommand())
	cmd.AddCommand(s.newTransferCommand())
	cmd.AddCommand(s.newSwapCommand())
	cmd.AddCommand(s.newBalanceCommand())
	cmd.AddCommand(s.newPortfolioCommand())
	cmd.AddCommand(s.newActionsCommand())
	cmd.AddCommand(s.newServeCommand())
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func (s *runtimeState) initObservability() error {
	if s.log != nil {
		return nil
	}
	logger, err := logging.New(logging.Config{
		Level:  s.settings.LogLevel,
		Format: logging.Format(s.settings.LogFormat),
		Output: s.runner.stderr,
	})
	if err != nil {
		return clierr.Wrap(clierr.CodeConfig, "configure logging", err)
	}
	s.log = logger
	s.registry = prometheus.NewRegistry()
	s.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	s.metrics = metrics.New(s.registry, logger)
	return nil
}

func newVersionCommand() *cobra.Command {
	var long bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			if long {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.Long())
				return
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), version.CLIVersion)
		},
	}
	cmd.Flags().BoolVar(&long, "long", false, "Print extended build metadata")
	return cmd
}

func (s *runtimeState) emitSuccess(commandPath string, data any) error {
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: true,
		Data:    data,
		Meta:    s.meta(commandPath),
	}
	return out.Render(s.runner.stdout, env, s.settings)
}

func (s *runtimeState) meta(commandPath string) model.EnvelopeMeta {
	cacheStatus := s.cacheStatus()
	return model.EnvelopeMeta{
		RequestID: uuid.NewString(),
		Timestamp: s.runner.now().UTC(),
		Command:   commandPath,
		Network:   string(s.settings.Network),
		Sources:   s.sourceStatuses(),
		Cache:     model.CacheStatus{Status: string(cacheStatus)},
	}
}

func (s *runtimeState) renderError(err error) {
	commandPath := s.lastCommand
	if commandPath == "" {
		commandPath = version.CLIName
	}
	code := clierr.ExitCode(err)
	typ := clierr.CodeInternal.Type()
	message := err.Error()
	if cErr, ok := clierr.As(err); ok {
		typ = cErr.Code.Type()
	}

	settings := s.settings
	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	settings.ResultsOnly = false
	settings.SelectFields = nil
	env := model.Envelope{
		Version: model.EnvelopeVersion,
		Success: false,
		Data:    []any{},
		Error: &model.ErrorBody{
			Code:    code,
			Type:    typ,
			Message: message,
		},
		Meta: s.meta(commandPath),
	}
	_ = out.Render(s.runner.stderr, env, settings)
}

// observeRPC feeds both the prometheus collectors and the envelope's
// per-upstream summary.
func (s *runtimeState) observeRPC(host string, status int, elapsed time.Duration) {
	s.metrics.ObserveRPC(host, status, elapsed)
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.sources == nil {
		s.sources = map[string]*model.SourceStatus{}
	}
	entry, ok := s.sources[host]
	if !ok {
		entry = &model.SourceStatus{Name: host}
		s.sources[host] = entry
	}
	entry.Status = statusFromHTTP(status)
	entry.LatencyMS += elapsed.Milliseconds()
}

func (s *runtimeState) sourceStatuses() []model.SourceStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if len(s.sources) == 0 {
		return nil
	}
	out := make([]model.SourceStatus, 0, len(s.sources))
	for _, entry := range s.sources {
		out = append(out, *entry)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// recordCacheLookup keeps the first lookup of the command for the envelope.
func (s *runtimeState) recordCacheLookup(status string) {
	s.metrics.CacheLookup(status)
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.lastCache == "" {
		s.lastCache = cache.Status(status)
	}
}

func (s *runtimeState) cacheStatus() cache.Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.lastCache == "" {
		return cache.StatusBypass
	}
	return s.lastCache
}

func statusFromHTTP(status int) string {
	switch {
	case status == 0:
		return "unavailable"
	case status == 429:
		return "rate_limited"
	case status == 401 || status == 403:
		return "auth_error"
	case status >= 400:
		return "error"
	default:
		return "ok"
	}
}

func trimRootPath(path string) string {
	parts := strings.Fields(path)
	if len(parts) <= 1 {
		return path
	}
	return strings.Join(parts[1:], " ")
}

func normalizeRunError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := clierr.As(err); ok {
		return err
	}
	if isLikelyUsageError(err) {
		return clierr.Wrap(clierr.CodeUsage, "invalid command input", err)
	}
	return clierr.Wrap(clierr.CodeInternal, "execute command", err)
}

func isLikelyUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	patterns := []string{
		"unknown command",
		"unknown flag",
		"required flag(s)",
		"flag needs an argument",
		"requires at least",
		"requires exactly",
		"accepts ",
		"invalid argument",
		"invalid args",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
