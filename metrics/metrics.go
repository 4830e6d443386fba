// Package metrics exposes Prometheus metrics for the HTTP layer and the
// ledger services. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/warp/cartledger/ledger"
)

// Metrics collects HTTP and ledger metrics on a private registry.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec

	balanceEdits     *prometheus.CounterVec
	rollovers        *prometheus.CounterVec
	rolloverDuration prometheus.Histogram
	bulkRuns         *prometheus.CounterVec
	bulkLastSuccess  prometheus.Gauge
	bulkLastErrors   prometheus.Gauge
	snapshots        *prometheus.CounterVec
}

var _ ledger.Recorder = (*Metrics)(nil)

func New() *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartledger_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cartledger_http_request_duration_seconds",
			Help:    "HTTP request duration by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		balanceEdits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartledger_balance_edits_total",
			Help: "Live balance writes by operation and result.",
		}, []string{"op", "result"}),
		rollovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartledger_rollovers_total",
			Help: "Single-customer rollovers by result.",
		}, []string{"result"}),
		rolloverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cartledger_rollover_duration_seconds",
			Help:    "Duration of one rollover including lock wait and retries.",
			Buckets: prometheus.DefBuckets,
		}),
		bulkRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartledger_bulk_rollover_runs_total",
			Help: "Bulk rollover runs by outcome.",
		}, []string{"outcome"}),
		bulkLastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cartledger_bulk_rollover_last_success_count",
			Help: "Customers rolled over by the most recent bulk run.",
		}),
		bulkLastErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cartledger_bulk_rollover_last_error_count",
			Help: "Customers that failed in the most recent bulk run.",
		}),
		snapshots: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cartledger_snapshots_captured_total",
			Help: "Summary snapshots written by kind.",
		}, []string{"kind"}),
	}
	registry.MustRegister(
		m.requestsTotal, m.requestDuration,
		m.balanceEdits, m.rollovers, m.rolloverDuration,
		m.bulkRuns, m.bulkLastSuccess, m.bulkLastErrors,
		m.snapshots,
	)
	m.handler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
	return m
}

// Handler serves /metrics.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records request count and duration per chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// Registerer exposes the registry for extra collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

// Gatherer exposes the registry for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// =============================================================================
// ledger.Recorder
// =============================================================================

func (m *Metrics) BalanceEdited(op string, err error) {
	if m == nil {
		return
	}
	m.balanceEdits.WithLabelValues(op, Result(err)).Inc()
}

func (m *Metrics) RolloverFinished(err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.rollovers.WithLabelValues(Result(err)).Inc()
	m.rolloverDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) BulkRolloverFinished(res ledger.BulkResult) {
	if m == nil {
		return
	}
	m.bulkRuns.WithLabelValues(string(res.Outcome())).Inc()
	m.bulkLastSuccess.Set(float64(res.SuccessCount))
	m.bulkLastErrors.Set(float64(res.ErrorCount))
}

func (m *Metrics) SnapshotCaptured(kind ledger.SnapshotKind) {
	if m == nil {
		return
	}
	m.snapshots.WithLabelValues(string(kind)).Inc()
}

// Result classifies err into a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case ledger.IsClientError(err):
		return "validation"
	case ledger.IsNotFound(err):
		return "not_found"
	case ledger.IsConflict(err):
		return "conflict"
	case ledger.IsRetryable(err):
		return "transient"
	default:
		return "error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
