package app

import (
	"context"
	"strings"

	"github.com/ggonzalez94/kadena-cli/internal/actions"
	"github.com/ggonzalez94/kadena-cli/internal/cache"
	"github.com/ggonzalez94/kadena-cli/internal/chainweb"
	"github.com/ggonzalez94/kadena-cli/internal/config"
	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/events"
	"github.com/ggonzalez94/kadena-cli/internal/execution"
	execsigner "github.com/ggonzalez94/kadena-cli/internal/execution/signer"
	"github.com/ggonzalez94/kadena-cli/internal/httpx"
	"github.com/ggonzalez94/kadena-cli/internal/indexer"
	"github.com/ggonzalez94/kadena-cli/internal/logging"
	"github.com/ggonzalez94/kadena-cli/internal/pact"
	"github.com/ggonzalez94/kadena-cli/internal/swap"
	"github.com/ggonzalez94/kadena-cli/internal/transfer"
	"github.com/ggonzalez94/kadena-cli/internal/wallet"
)

// services is everything a signing command needs, built once per process.
type services struct {
	signer     *execsigner.LocalSigner
	wallet     *wallet.Aggregator
	transfers  *transfer.Orchestrator
	swaps      *swap.Service
	dispatcher *actions.Dispatcher
}

func (s *runtimeState) ensureServices(ctx context.Context) (*services, error) {
	if s.services != nil {
		return s.services, nil
	}
	settings := s.settings

	txSigner, err := execsigner.NewLocalSignerFromInputs(settings.KeySource, "")
	if err != nil {
		return nil, clierr.Wrap(clierr.CodeConfig, "load signing key", err)
	}

	httpClient := httpx.New(settings.Timeout, settings.Retries,
		httpx.WithRateLimit(settings.RPCRate),
		httpx.WithObserver(s.observeRPC),
		httpx.WithLogger(logging.Component(s.log, "http")),
	)
	factory := chainweb.NewFactory(httpClient, settings.Network,
		chainweb.WithHost(settings.ChainwebHost),
		chainweb.WithPollInterval(settings.PollInterval),
		chainweb.WithLogger(logging.Component(s.log, "chainweb")),
	)
	graph := indexer.New(httpClient, settings.Network, settings.GraphQLURL)
	builder := pact.NewBuilder(settings.Network)
	clients := execution.ChainwebClients(factory)

	tiered := s.ensureCache(ctx)
	var recorder execution.Recorder
	if store := s.tryActionStore(); store != nil {
		recorder = store
	}
	hooks := []execution.TransitionHook{s.metrics.SagaTransition}
	if emitter := s.ensureEmitter(); !isNoop(emitter) {
		hooks = append(hooks, events.Hook(emitter, logging.Component(s.log, "events")))
	}

	w, err := wallet.New(wallet.Config{
		Network:       settings.Network,
		Account:       txSigner.Account(),
		Reader:        graph,
		Cache:         tiered,
		OnCacheLookup: s.recordCacheLookup,
		Logger:        logging.Component(s.log, "wallet"),
	})
	if err != nil {
		return nil, err
	}
	transfers, err := transfer.New(transfer.Config{
		Network:        settings.Network,
		DefaultChain:   settings.DefaultChain,
		Builder:        builder,
		Signer:         txSigner,
		Clients:        clients,
		Recorder:       recorder,
		Hooks:          hooks,
		ConfirmTimeout: settings.ConfirmTimeout,
		ProofTimeout:   settings.ProofTimeout,
		Logger:         logging.Component(s.log, "transfer"),
	})
	if err != nil {
		return nil, err
	}
	swaps, err := swap.New(swap.Config{
		Network:  settings.Network,
		Builder:  builder,
		Signer:   txSigner,
		Clients:  clients,
		Pairs:    graph,
		Recorder: recorder,
		Hooks:    hooks,
		Logger:   logging.Component(s.log, "swap"),
	})
	if err != nil {
		return nil, err
	}

	s.services = &services{
		signer:     txSigner,
		wallet:     w,
		transfers:  transfers,
		swaps:      swaps,
		dispatcher: actions.NewDispatcher(transfers, swaps, w, logging.Component(s.log, "actions")),
	}
	return s.services, nil
}

// ensureCache opens the configured persistent tier. A tier that cannot be
// opened degrades to the in-process cache.
func (s *runtimeState) ensureCache(ctx context.Context) *cache.Tiered {
	if s.cache != nil {
		return s.cache
	}
	log := logging.Component(s.log, "cache")
	if !s.settings.CacheEnabled {
		s.cache = cache.Disabled()
		return s.cache
	}
	var persistent cache.Persistent
	switch s.settings.CacheBackend {
	case config.CacheBackendRedis:
		store, err := cache.NewRedisStore(ctx, cache.RedisConfig{
			Address:  s.settings.RedisAddr,
			Password: s.settings.RedisPassword,
			DB:       s.settings.RedisDB,
			Prefix:   "kda:" + string(s.settings.Network) + ":",
		})
		if err != nil {
			log.WithError(err).Warn("redis cache unavailable, using in-process cache only")
		} else {
			persistent = store
		}
	default:
		store, err := cache.Open(s.settings.CachePath, s.settings.CacheLockPath)
		if err != nil {
			log.WithError(err).Warn("sqlite cache unavailable, using in-process cache only")
		} else {
			persistent = store
		}
	}
	s.cache = cache.NewTiered(persistent, log)
	return s.cache
}

func (s *runtimeState) ensureActionStore() error {
	if s.actionStore != nil {
		return nil
	}
	store, err := execution.OpenStore(s.settings.ActionStorePath, s.settings.ActionLockPath)
	if err != nil {
		return clierr.Wrap(clierr.CodeInternal, "open action store", err)
	}
	s.actionStore = store
	return nil
}

// tryActionStore returns nil when the store cannot be opened; sagas then run
// without a recorder.
func (s *runtimeState) tryActionStore() *execution.Store {
	if err := s.ensureActionStore(); err != nil {
		logging.Component(s.log, "execution").WithError(err).Warn("saga snapshots will not be persisted")
		return nil
	}
	return s.actionStore
}

func (s *runtimeState) ensureEmitter() events.Emitter {
	if s.emitter != nil {
		return s.emitter
	}
	if len(s.settings.KafkaBrokers) == 0 || strings.TrimSpace(s.settings.KafkaTopic) == "" {
		s.emitter = events.Noop{}
		return s.emitter
	}
	emitter, err := events.NewKafkaEmitter(s.settings.KafkaBrokers, s.settings.KafkaTopic, logging.Component(s.log, "events"))
	if err != nil {
		logging.Component(s.log, "events").WithError(err).Warn("saga events disabled")
		s.emitter = events.Noop{}
		return s.emitter
	}
	s.emitter = emitter
	return s.emitter
}

func isNoop(e events.Emitter) bool {
	_, ok := e.(events.Noop)
	return ok
}
