package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/cartledger/ledger"
)

func TestResult(t *testing.T) {
	assert.Equal(t, "ok", Result(nil))
	assert.Equal(t, "validation", Result(&ledger.ValidationError{Field: "x", Reason: "y"}))
	assert.Equal(t, "not_found", Result(ledger.ErrNotFound))
	assert.Equal(t, "conflict", Result(ledger.ErrDuplicate))
	assert.Equal(t, "transient", Result(&ledger.TransientError{Op: "x", Err: errors.New("busy")}))
	assert.Equal(t, "error", Result(errors.New("boom")))
}

func TestRecorder(t *testing.T) {
	m := New()

	m.BalanceEdited("edit_payment", nil)
	m.BalanceEdited("edit_payment", ledger.ErrConcurrentModification)
	m.RolloverFinished(nil, 10*time.Millisecond)
	m.BulkRolloverFinished(ledger.BulkResult{SuccessCount: 2, ErrorCount: 1})
	m.SnapshotCaptured(ledger.SnapshotManual)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.balanceEdits.WithLabelValues("edit_payment", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.balanceEdits.WithLabelValues("edit_payment", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.rollovers.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.bulkRuns.WithLabelValues("partial")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.bulkLastSuccess))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.snapshots.WithLabelValues("manual")))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics

	m.BalanceEdited("open", nil)
	m.RolloverFinished(nil, time.Second)
	m.BulkRolloverFinished(ledger.BulkResult{})
	m.SnapshotCaptured(ledger.SnapshotRollover)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestMiddleware_LabelsRoutePattern(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/balances/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/balances/abc", nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `cartledger_http_requests_total{code="404",route="/api/balances/{id}"} 1`))
}
