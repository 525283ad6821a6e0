package api

import (
	"deadkm-service/internal/api/handlers"
	"deadkm-service/internal/domain"
	"deadkm-service/internal/platform/metrics"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Engine      handlers.Engine
	Constraints domain.Constraints
	// Named readiness probes reported by /health.
	Checks map[string]handlers.HealthCheck
}

// NewRouter wires HTTP handlers with their dependencies and returns an http.Handler.
// This is the API composition root (handlers stay unaware of concrete adapters).
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware)
	r.Use(middleware.Recoverer)

	h := &handlers.DeadKMHandler{Engine: deps.Engine, Constraints: deps.Constraints}
	health := &handlers.HealthHandler{Checks: deps.Checks}

	r.Get("/health", health.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Post("/generate_matrix", h.GenerateMatrix)
	r.Post("/optimize", h.Optimize)
	r.Post("/calculate", h.Calculate)
	r.Get("/progress/{task_id}", h.Progress)

	r.Get("/export/csv", handlers.ExportCSV)
	r.Post("/export/csv", handlers.ExportCSV)
	r.Get("/export/xlsx", handlers.ExportXLSX)
	r.Post("/export/xlsx", handlers.ExportXLSX)

	return r
}
