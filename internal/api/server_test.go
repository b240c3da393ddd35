package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ggonzalez94/kadena-cli/internal/actions"
	clierr "github.com/ggonzalez94/kadena-cli/internal/errors"
	"github.com/ggonzalez94/kadena-cli/internal/execution"
	"github.com/ggonzalez94/kadena-cli/internal/metrics"
)

type fakeRunner struct {
	name   string
	intent string
	err    error
}

func (f *fakeRunner) Dispatch(_ context.Context, name string, intent []byte) (actions.Output, error) {
	f.name = name
	f.intent = string(intent)
	if f.err != nil {
		return actions.Output{Text: "Transfer error: " + f.err.Error(), Content: actions.ErrorContent{Error: f.err.Error()}}, f.err
	}
	return actions.Output{Text: "ok", Content: map[string]any{"success": true, "requestKey": "rk-1"}}, nil
}

func (f *fakeRunner) Portfolio(context.Context) (actions.Output, error) {
	return actions.Output{Text: "portfolio", Content: map[string]string{"kda_usd": "0.81", "balance": "0.00", "value": "0.00"}}, nil
}

type fakeSagas struct{}

func (fakeSagas) Get(_ context.Context, ref string) (execution.Action, error) {
	if ref == "act_1" {
		return execution.Action{ActionID: "act_1", State: execution.StateContinuationSubmitted}, nil
	}
	return execution.Action{}, fmt.Errorf("%w: %s", execution.ErrActionNotFound, ref)
}

func newTestServer(runner Runner) *Server {
	reg := prometheus.NewRegistry()
	return NewServer(Config{
		Runner:   runner,
		Sagas:    fakeSagas{},
		Metrics:  metrics.New(reg, nil),
		Gatherer: reg,
	})
}

func do(t *testing.T, s *Server, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var decoded map[string]any
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") && strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestActionRoute(t *testing.T) {
	runner := &fakeRunner{}
	s := newTestServer(runner)

	rec, body := do(t, s, http.MethodPost, "/v1/actions/TRANSFER_KDA", `{"recipient":"k:1234","amount":2,"fromChain":"5"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TRANSFER_KDA", runner.name)
	assert.JSONEq(t, `{"recipient":"k:1234","amount":2,"fromChain":"5"}`, runner.intent)
	assert.Equal(t, "ok", body["text"])
	content := body["content"].(map[string]any)
	assert.Equal(t, true, content["success"])
}

func TestActionRouteErrorStatus(t *testing.T) {
	cases := map[clierr.Code]int{
		clierr.CodeValidation:       http.StatusBadRequest,
		clierr.CodeDryRunRejected:   http.StatusUnprocessableEntity,
		clierr.CodeProofUnavailable: http.StatusServiceUnavailable,
		clierr.CodeContinuation:     http.StatusBadGateway,
	}
	for code, want := range cases {
		runner := &fakeRunner{err: clierr.New(code, "boom")}
		rec, body := do(t, newTestServer(runner), http.MethodPost, "/v1/actions/TRANSFER_KDA", `{}`)
		assert.Equal(t, want, rec.Code, code.Type())
		assert.Equal(t, map[string]any{"error": "boom"}, body["content"])
	}
}

func TestUnknownActionIsNotFound(t *testing.T) {
	runner := &fakeRunner{}
	rec, body := do(t, newTestServer(runner), http.MethodPost, "/v1/actions/MINT", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "unknown action MINT", body["error"])
	assert.Empty(t, runner.name)
}

func TestPortfolioSagaAndHealth(t *testing.T) {
	s := newTestServer(&fakeRunner{})

	rec, body := do(t, s, http.MethodGet, "/v1/portfolio", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "portfolio", body["text"])

	rec, body = do(t, s, http.MethodGet, "/v1/sagas/act_1", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CONTINUATION_SUBMITTED", body["state"])

	rec, _ = do(t, s, http.MethodGet, "/v1/sagas/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = do(t, s, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestMetricsEndpointExposesHTTPCounters(t *testing.T) {
	s := newTestServer(&fakeRunner{})
	do(t, s, http.MethodGet, "/healthz", "")

	rec, _ := do(t, s, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `kda_server_http_requests_total{method="GET",path="/healthz",status="200"} 1`)
}
