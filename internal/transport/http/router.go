// Package http wires the service layer to the HTTP surface. Handlers decode,
// delegate and encode; policy lives in the services.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lumenpay/internal/platform/middleware"
)

// RouterConfig carries the dependencies the HTTP surface needs.
type RouterConfig struct {
	Identity    IdentityService
	Resolver    ResolverService
	Settlements SettlementService
	Health      HealthChecker

	JWTSigningKey string
	Logger        *slog.Logger
}

// NewRouter assembles the full route tree. Everything under /v1 requires a
// bearer token; health and metrics stay open for probes and scrapers.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &handlers{
		identity:    cfg.Identity,
		resolver:    cfg.Resolver,
		settlements: cfg.Settlements,
		health:      cfg.Health,
		logger:      cfg.Logger,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", h.healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSigningKey, cfg.Logger))

		r.Get("/identities/availability", h.checkAvailability)
		r.Post("/identities/claim", h.claim)
		r.Get("/identities/me", h.myIdentity)
		r.Get("/resolve", h.resolve)

		r.Post("/payments", h.settle)
		r.Post("/payments/{id}/reconcile", h.reconcile)
		r.Get("/payments/history", h.history)
		r.Get("/balances", h.balances)
	})

	return r
}
