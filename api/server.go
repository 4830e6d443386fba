/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     zap access log (method, route, status, duration)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard
  5. Metrics:    Prometheus request count and latency per route
  6. Rate limit: Per-IP limit on mutating /api requests (httprate)

ROUTE GROUPS:
  /api/owners/*, /api/customers/*   Registry
  /api/balances/*, /api/history     Live balances and edits
  /api/rollover/*                   Single and bulk rollover
  /api/summary/*, /api/snapshots/*  Reporting and archived snapshots
  /api/scenarios/*                  Demo data (dev only)
  /healthz, /metrics                Operations

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/cartledger/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"go.uber.org/zap"

	"github.com/warp/cartledger/metrics"
)

// RouterOptions configures the middleware stack. Zero values disable the
// optional pieces (no rate limit, no metrics, allow every origin).
type RouterOptions struct {
	CORSOrigins        []string
	RateLimitPerMinute int
	Metrics            *metrics.Metrics
	Logger             *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(log.Named("http")))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(opts.Metrics.Middleware)

	r.Get("/healthz", h.Health)
	r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		if opts.RateLimitPerMinute > 0 {
			r.Use(mutatingOnly(httprate.Limit(
				opts.RateLimitPerMinute, time.Minute,
				httprate.WithKeyFuncs(httprate.KeyByIP),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, http.StatusTooManyRequests, "Too many requests", nil)
				}),
			)))
		}

		// Owner routes
		r.Route("/owners", func(r chi.Router) {
			r.Get("/", h.ListOwners)
			r.Post("/", h.CreateOwner)
		})

		// Customer routes
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.Post("/", h.CreateCustomer)
			r.Get("/{id}", h.GetCustomer)
		})

		// Balance routes
		r.Route("/balances", func(r chi.Router) {
			r.Get("/", h.ListBalances)
			r.Post("/", h.OpenBalance)
			r.Get("/{id}", h.GetBalance)
			r.Delete("/{id}", h.DeleteBalance)
			r.Patch("/{id}/fees", h.EditFees)
			r.Put("/{id}/payment", h.EditPayment)
			r.Post("/{id}/payments", h.RecordPayment)
		})
		r.Get("/history", h.ListHistory)

		// Rollover routes
		r.Route("/rollover", func(r chi.Router) {
			r.Post("/", h.RolloverBalance)
			r.Post("/bulk", h.BulkRollover)
			r.Get("/runs", h.ListRolloverRuns)
		})

		// Summary and snapshot routes
		r.Route("/summary", func(r chi.Router) {
			r.Get("/", h.GetSummary)
			r.Get("/export", h.ExportSummary)
		})
		r.Route("/snapshots", func(r chi.Router) {
			r.Get("/", h.ListSnapshots)
			r.Post("/", h.CaptureSnapshot)
			r.Get("/{id}", h.GetSnapshot)
			r.Get("/{id}/export", h.ExportSnapshot)
			r.Delete("/{id}", h.DeleteSnapshot)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}

// mutatingOnly applies limit to every method except reads.
func mutatingOnly(limit func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := limit(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
			default:
				limited.ServeHTTP(w, r)
			}
		})
	}
}

// requestLogger is chi's middleware.Logger rewritten on zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			}
			if status >= http.StatusInternalServerError {
				log.Warn("request", fields...)
				return
			}
			log.Debug("request", fields...)
		})
	}
}
