// Package api serves the wallet actions over HTTP for agent runtimes.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ggonzalez94/kadena-cli/internal/actions"
	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/execution"
	"github.com/ggonzalez94/kadena-cli/internal/metrics"
)

const shutdownTimeout = 5 * time.Second

type Runner interface {
	Dispatch(ctx context.Context, name string, intent []byte) (actions.Output, error)
	Portfolio(ctx context.Context) (actions.Output, error)
}

type SagaReader interface {
	Get(ctx context.Context, ref string) (execution.Action, error)
}

type Config struct {
	Addr     string
	Runner   Runner
	Sagas    SagaReader
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   *logrus.Entry
}

type Server struct {
	cfg  Config
	echo *echo.Echo
	log  *logrus.Entry
}

func NewServer(cfg Config) *Server {
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{cfg: cfg, log: log}
	s.echo = s.routes()
	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler { return s.echo }

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit("1M"))
	e.Use(s.cfg.Metrics.HTTPMiddleware())

	e.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))
	e.GET("/v1/actions", s.handleCatalog)
	e.POST("/v1/actions/:name", s.handleAction)
	e.GET("/v1/portfolio", s.handlePortfolio)
	e.GET("/v1/sagas/:id", s.handleSaga)
	return e
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.echo.Start(s.cfg.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.WithField("addr", s.cfg.Addr).Info("action service listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			s.log.WithError(err).Warn("shutdown action service")
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleCatalog(c echo.Context) error {
	return c.JSON(http.StatusOK, actions.Catalog())
}

func (s *Server) handleAction(c echo.Context) error {
	name := c.Param("name")
	if _, ok := actions.Resolve(name); !ok {
		return c.JSON(http.StatusNotFound, actions.ErrorContent{Error: "unknown action " + name})
	}
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return c.JSON(http.StatusBadRequest, actions.ErrorContent{Error: "read request body: " + err.Error()})
	}
	out, err := s.cfg.Runner.Dispatch(c.Request().Context(), name, body)
	return c.JSON(statusFor(err), out)
}

func (s *Server) handlePortfolio(c echo.Context) error {
	out, err := s.cfg.Runner.Portfolio(c.Request().Context())
	return c.JSON(statusFor(err), out)
}

func (s *Server) handleSaga(c echo.Context) error {
	if s.cfg.Sagas == nil {
		return c.JSON(http.StatusServiceUnavailable, actions.ErrorContent{Error: "action store is not configured"})
	}
	action, err := s.cfg.Sagas.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, execution.ErrActionNotFound) {
			return c.JSON(http.StatusNotFound, actions.ErrorContent{Error: err.Error()})
		}
		return c.JSON(http.StatusInternalServerError, actions.ErrorContent{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, action)
}

func statusFor(err error) int {
	if err == nil {
		return http.StatusOK
	}
	cErr, ok := clierr.As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch cErr.Code {
	case clierr.CodeValidation, clierr.CodeUsage:
		return http.StatusBadRequest
	case clierr.CodeDryRunRejected:
		return http.StatusUnprocessableEntity
	case clierr.CodeRateLimited:
		return http.StatusTooManyRequests
	case clierr.CodeConfig, clierr.CodeUnavailable, clierr.CodeProofUnavailable:
		return http.StatusServiceUnavailable
	case clierr.CodeSubmission, clierr.CodeSourceConfirmation, clierr.CodeContinuation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
