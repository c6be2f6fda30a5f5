/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Access log: One zap line per request, plus the latency histogram
                 labeled by chi route pattern (not raw path)
  4. CORS:       Cross-origin requests for the budgeting frontend

ROUTE GROUPS:
  /health               Liveness
  /metrics              Prometheus exposition (when metrics are enabled)
  /api/positions/*      Position cost
  /api/divisions/*      Division rollup
  /api/departments/*    Department rollups, scoped list
  /api/organization/*   Organization rollup
  /api/hardware/*       Hardware catalog
  /api/software/*       Software catalog and coverage
  /api/history/*        Cost history
  /api/exports/*        CSV / XLSX downloads

SECURITY NOTE:
  No authentication middleware. Scope parameters are trusted as given;
  deployments put the API behind the authorization proxy.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/budget-engine/metrics"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins []string

	// Metrics, when set, records request latency and serves /metrics.
	Metrics *metrics.Metrics
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(accessLog(h.Logger, opts.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/positions/{id}/cost", h.GetPositionCost)
		r.Get("/divisions/{id}/cost", h.GetDivisionCost)
		r.Get("/organization/cost", h.GetOrganizationCost)

		r.Route("/departments", func(r chi.Router) {
			r.Get("/cost", h.ListDepartmentCosts)
			r.Get("/{id}/cost", h.GetDepartmentCost)
		})

		r.Route("/hardware", func(r chi.Router) {
			r.Post("/", h.CreateHardware)
			r.Get("/{id}", h.GetHardware)
			r.Patch("/{id}", h.UpdateHardware)
			r.Delete("/{id}", h.DeactivateHardware)
		})

		r.Route("/software", func(r chi.Router) {
			r.Post("/", h.CreateSoftware)
			r.Get("/{id}", h.GetSoftware)
			r.Patch("/{id}", h.UpdateSoftware)
			r.Delete("/{id}", h.DeactivateSoftware)
			r.Get("/{id}/coverage", h.GetCoverage)
		})

		r.Get("/history/{kind}/{id}", h.GetCostHistory)

		r.Route("/exports", func(r chi.Router) {
			r.Get("/departments.csv", h.ExportDepartments("csv"))
			r.Get("/departments.xlsx", h.ExportDepartments("xlsx"))
			r.Get("/positions.csv", h.ExportPositions("csv"))
			r.Get("/positions.xlsx", h.ExportPositions("xlsx"))
		})
	})

	return r
}

// accessLog logs each request and feeds the latency histogram.
func accessLog(logger *zap.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			route := "unmatched"
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			elapsed := time.Since(start)

			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", elapsed),
				zap.String("request_id", requestID(r)))
			if m != nil {
				m.ObserveRequest(r.Method, route, status, elapsed)
			}
		})
	}
}

func requestID(r *http.Request) string {
	return middleware.GetReqID(r.Context())
}
