package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/datapolicy/policyscan/internal/api/handlers"
	"github.com/datapolicy/policyscan/internal/api/middleware"
	"github.com/datapolicy/policyscan/internal/config"
	"github.com/datapolicy/policyscan/internal/pkg/logger"
	"github.com/datapolicy/policyscan/internal/pkg/metrics"
)

// Handlers bundles the HTTP handlers the router mounts
type Handlers struct {
	Health    *handlers.HealthHandler
	Scan      *handlers.ScanHandler
	Schedule  *handlers.ScheduleHandler
	Rule      *handlers.RuleHandler
	Violation *handlers.ViolationHandler
	Target    *handlers.TargetHandler
}

func New(cfg *config.Config, log *logger.Logger, h *Handlers) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))
	r.Use(middleware.DefaultCORS(cfg.Server.FrontendURL))
	r.Use(middleware.RateLimit(100, 200))
	r.Use(metrics.Middleware)

	// Health checks and metrics
	r.Get("/health", h.Health.Healthz)
	r.Get("/healthz", h.Health.Healthz)
	r.Get("/readyz", h.Health.Readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// Scans
	r.Route("/api/v1/scans", func(r chi.Router) {
		r.Post("/", h.Scan.Trigger)
		r.Get("/", h.Scan.List)
		r.Get("/status", h.Scan.Status)
		r.Get("/{id}", h.Scan.Get)
	})

	// Schedule
	r.Route("/api/v1/schedule", func(r chi.Router) {
		r.Get("/", h.Schedule.Get)
		r.Put("/", h.Schedule.Update)
	})

	// Rules
	r.Route("/api/v1/rules", func(r chi.Router) {
		r.Get("/", h.Rule.List)
		r.Post("/", h.Rule.Create)
		r.Get("/{id}", h.Rule.Get)
		r.Patch("/{id}", h.Rule.Update)
		r.Delete("/{id}", h.Rule.Delete)
	})

	// Violations
	r.Route("/api/v1/violations", func(r chi.Router) {
		r.Get("/", h.Violation.List)
		r.Get("/summary", h.Violation.Summary)
		r.Get("/{id}", h.Violation.Get)
		r.Put("/{id}/review", h.Violation.Review)
	})

	// Target database
	r.Route("/api/v1/target", func(r chi.Router) {
		r.Post("/test", h.Target.Test)
		r.Get("/schema", h.Target.Schema)
	})

	return r
}
