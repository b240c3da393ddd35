// Package metrics exposes Prometheus collectors for sagas, outbound RPC and
// the HTTP action service.
package metrics

import (
	"errors"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/kadena-cli/internal/execution"
)

const namespace = "kda"

type Metrics struct {
	sagaTransitions *prometheus.CounterVec
	sagaOutcomes    *prometheus.CounterVec
	rpcRequests     *prometheus.CounterVec
	rpcDuration     *prometheus.HistogramVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	httpErrors      *prometheus.CounterVec
	cacheLookups    *prometheus.CounterVec
}

// New creates the collectors and registers them on reg. Collectors that are
// already registered are reused silently.
func New(reg prometheus.Registerer, logger *logrus.Logger) *Metrics {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	m := &Metrics{
		sagaTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "transitions_total",
			Help:      "Saga state transitions by intent and state",
		}, []string{"intent", "state"}),
		sagaOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "saga",
			Name:      "outcomes_total",
			Help:      "Terminal saga outcomes by intent",
		}, []string{"intent", "outcome"}),
		rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "requests_total",
			Help:      "Outbound chainweb and indexer requests",
		}, []string{"host", "status"}),
		rpcDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "request_duration_seconds",
			Help:      "Outbound request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"host"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path"}),
		httpErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "http_errors_total",
			Help:      "Total number of HTTP errors (status >= 500)",
		}, []string{"method", "path", "status"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result",
		}, []string{"status"}),
	}
	if reg == nil {
		return m
	}
	registerIfNotExists(reg, collectors.NewGoCollector(), "go_collector", logger)
	registerIfNotExists(reg, collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}), "process_collector", logger)
	m.sagaTransitions = registerVec(reg, m.sagaTransitions, "saga_transitions_total", logger)
	m.sagaOutcomes = registerVec(reg, m.sagaOutcomes, "saga_outcomes_total", logger)
	m.rpcRequests = registerVec(reg, m.rpcRequests, "rpc_requests_total", logger)
	m.rpcDuration = registerHistogram(reg, m.rpcDuration, "rpc_request_duration", logger)
	m.httpRequests = registerVec(reg, m.httpRequests, "http_requests_total", logger)
	m.httpDuration = registerHistogram(reg, m.httpDuration, "http_request_duration", logger)
	m.httpErrors = registerVec(reg, m.httpErrors, "http_errors_total", logger)
	m.cacheLookups = registerVec(reg, m.cacheLookups, "cache_lookups_total", logger)
	return m
}

func registerIfNotExists(reg prometheus.Registerer, collector prometheus.Collector, name string, logger *logrus.Logger) prometheus.Collector {
	if err := reg.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if errors.As(err, &alreadyRegErr) {
			logger.Debugf("%s already registered", name)
			return alreadyRegErr.ExistingCollector
		}
		logger.Errorf("Failed to register %s: %v", name, err)
	}
	return collector
}

func registerVec(reg prometheus.Registerer, vec *prometheus.CounterVec, name string, logger *logrus.Logger) *prometheus.CounterVec {
	if existing, ok := registerIfNotExists(reg, vec, name, logger).(*prometheus.CounterVec); ok {
		return existing
	}
	return vec
}

func registerHistogram(reg prometheus.Registerer, vec *prometheus.HistogramVec, name string, logger *logrus.Logger) *prometheus.HistogramVec {
	if existing, ok := registerIfNotExists(reg, vec, name, logger).(*prometheus.HistogramVec); ok {
		return existing
	}
	return vec
}

// SagaTransition is a saga hook.
func (m *Metrics) SagaTransition(action execution.Action) {
	if m == nil {
		return
	}
	m.sagaTransitions.WithLabelValues(action.IntentType, string(action.State)).Inc()
	switch action.Status {
	case execution.ActionStatusCompleted:
		m.sagaOutcomes.WithLabelValues(action.IntentType, "completed").Inc()
	case execution.ActionStatusFailed:
		m.sagaOutcomes.WithLabelValues(action.IntentType, "failed").Inc()
	}
}

// ObserveRPC matches httpx.Observer.
func (m *Metrics) ObserveRPC(host string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.rpcRequests.WithLabelValues(host, label).Inc()
	m.rpcDuration.WithLabelValues(host).Observe(elapsed.Seconds())
}

func (m *Metrics) CacheLookup(status string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(status).Inc()
}

// HTTPMiddleware instruments echo routes by their pattern.
func (m *Metrics) HTTPMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			method := c.Request().Method
			path := c.Path()
			if path == "" {
				path = "unknown"
			}

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := strconv.Itoa(c.Response().Status)
			m.httpRequests.WithLabelValues(method, path, status).Inc()
			m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
			if c.Response().Status >= 500 {
				m.httpErrors.WithLabelValues(method, path, status).Inc()
			}
			return nil
		}
	}
}
