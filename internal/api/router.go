// Package api assembles the episode HTTP surface.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/skyleedevzero86/Health-mr-sub001/internal/api/handlers"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/api/middleware"
	"github.com/skyleedevzero86/Health-mr-sub001/internal/episode"
)

// RouterConfig holds what the router needs besides the coordinator
type RouterConfig struct {
	Service string
	APIKeys []string
	Checks  []handlers.Check
	// Metrics records request durations; nil disables it
	Metrics middleware.RequestObserver
	// MetricsHandler is mounted at /metrics when set
	MetricsHandler http.Handler
}

// NewRouter mounts every episode resource behind the middleware chain.
// Health, readiness and metrics stay outside API key auth.
func NewRouter(c *episode.Coordinator, cfg RouterConfig, logger *zap.Logger) chi.Router {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recover(logger))
	r.Use(middleware.CORS)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	r.Use(middleware.Tracing(cfg.Service))
	r.Use(middleware.Logger(logger))

	health := handlers.NewHealthHandler(cfg.Service, cfg.Checks...)
	r.Get("/health", health.Live)
	r.Get("/ready", health.Ready)
	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.APIKeys))
		r.Mount("/reservations", handlers.NewReservationHandler(c, logger).Routes())
		r.Mount("/check-ins", handlers.NewCheckInHandler(c, logger).Routes())
		r.Mount("/treatments", handlers.NewTreatmentHandler(c, logger).Routes())
		r.Mount("/prescriptions", handlers.NewPrescriptionHandler(c, logger).Routes())
		r.Mount("/payments", handlers.NewPaymentHandler(c, logger).Routes())
	})
	return r
}
