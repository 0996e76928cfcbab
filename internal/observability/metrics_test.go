package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
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

func TestMiddlewareRecordsRoutePattern(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/users/{id}")
	req := httptest.NewRequest(http.MethodPut, "/users/42", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `cuecast_http_requests_total{code="418",route="/users/{id}"} 1`)
	assert.Contains(t, body, `cuecast_http_request_duration_seconds_bucket{route="/users/{id}"`)
}

func TestDecisionAndMutationCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObserveDecision("role:admin", "forbidden")
	metrics.ObserveMutation("update", "invariant_violation")
	metrics.ObserveMutation("update", "invariant_violation")

	body := scrape(t, metrics)
	assert.Contains(t, body, `cuecast_authz_decisions_total{outcome="forbidden",requirement="role:admin"} 1`)
	assert.Contains(t, body, `cuecast_account_mutations_total{operation="update",result="invariant_violation"} 2`)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var metrics *Metrics
	metrics.ObserveDecision("x", "allowed")
	metrics.ObserveMutation("create", "ok")

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })
	rr := httptest.NewRecorder()
	metrics.Middleware(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)

	rr = httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}
