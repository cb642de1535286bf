package observability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/simonvc/chainledger/internal/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `chainledger_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `chainledger_http_request_duration_seconds_bucket{route="/test"`)
}

func TestLedgerMetrics(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveOperation("post", nil)
	metrics.ObserveOperation("post", fmt.Errorf("wrap: %w", ledger.ErrLockTimeout))
	metrics.ObservePost(20 * time.Millisecond)
	metrics.SetChainLength(3)
	metrics.ObserveVerification(false)

	body := scrape(t, metrics)
	assert.Contains(t, body, `chainledger_operations_total{operation="post",outcome="ok"} 1`)
	assert.Contains(t, body, `chainledger_operations_total{operation="post",outcome="contention"} 1`)
	assert.Contains(t, body, `chainledger_post_duration_seconds_count 1`)
	assert.Contains(t, body, `chainledger_chain_length 3`)
	assert.Contains(t, body, `chainledger_chain_verifications_total{result="violation"} 1`)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "ok", Outcome(nil))
	assert.Equal(t, "validation", Outcome(ledger.ErrUnbalanced))
	assert.Equal(t, "invalid_state", Outcome(ledger.ErrNotPending))
	assert.Equal(t, "contention", Outcome(ledger.ErrChainTipMoved))
	assert.Equal(t, "not_found", Outcome(ledger.ErrTransactionNotFound))
	assert.Equal(t, "integrity", Outcome(ledger.ErrIntegrityViolation))
	assert.Equal(t, "error", Outcome(errors.New("boom")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.ObserveOperation("post", nil)
	m.ObservePost(time.Second)
	m.SetChainLength(1)
	m.ObserveVerification(true)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})
	assert.NotNil(t, m.Middleware(next))

	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
