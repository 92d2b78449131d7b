package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blocksense-network/agentfs/internal/logger"
	"github.com/blocksense-network/agentfs/pkg/core"
	"github.com/blocksense-network/agentfs/pkg/metrics"
)

// NewRouter builds the read-only HTTP introspection surface for inst:
//
//	GET /healthz          -- liveness
//	GET /readyz            -- readiness (backstore capabilities reachable)
//	GET /metrics            -- Prometheus exposition, when metrics.InitRegistry ran
//	GET /v1/snapshots        -- spec.md §4.5 snapshot_list
//	GET /v1/branches         -- live branches + process_bindings
//	GET /v1/content/stats     -- Content Store aggregate usage
//
// Grounded on the teacher's pkg/api.NewRouter: RequestID/RealIP/Recoverer/
// Timeout middleware stack plus a custom slog-backed request logger.
func NewRouter(inst *core.Instance) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	h := NewHandlers(inst)

	r.Get("/healthz", h.Liveness)
	r.Get("/readyz", h.Readiness)
	if reg := metrics.GetRegistry(); reg != nil {
		r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/snapshots", h.Snapshots)
		r.Get("/branches", h.Branches)
		r.Get("/content/stats", h.ContentStats)
	})

	return r
}

// requestLogger logs each request's completion at INFO via the shared slog
// wrapper, mirroring the teacher's router.requestLogger.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.InfoCtx(r.Context(), "httpapi request",
			logger.Operation(r.Method+" "+r.URL.Path),
			logger.Status(ww.Status()),
			logger.DurationMs(logger.Duration(start)),
		)
	})
}
