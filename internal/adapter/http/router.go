package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/iho/timebank/internal/adapter/http/handler"
	"github.com/iho/timebank/internal/adapter/http/middleware"
	"github.com/iho/timebank/internal/domain"
	"github.com/iho/timebank/internal/infrastructure/metrics"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	ParticipantHandler *handler.ParticipantHandler
	SessionHandler     *handler.SessionHandler
	LedgerHandler      *handler.LedgerHandler
	RoomHandler        *handler.RoomHandler
	AdminHandler       *handler.AdminHandler
	HealthHandler      *handler.HealthHandler

	Authenticator *middleware.Authenticator
	Idempotency   *middleware.IdempotencyMiddleware
	RateLimiter   *middleware.RateLimiter

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer
	Logger   zerolog.Logger

	CORSAllowedOrigins []string
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.NewLoggingMiddleware(cfg.Logger).Wrap)
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Limit)
	}
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type", middleware.IdempotencyKeyHeader},
			ExposedHeaders: []string{middleware.IdempotencyReplayHeader},
			MaxAge:         300,
		}))
	}

	// Health endpoints
	r.Get("/health", cfg.HealthHandler.Liveness)
	r.Get("/ready", cfg.HealthHandler.Readiness)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(cfg.Authenticator.Wrap)
		// Idempotency keys are scoped by caller, so this runs after authentication.
		if cfg.Idempotency != nil {
			r.Use(cfg.Idempotency.Wrap)
		}

		r.Get("/me", cfg.ParticipantHandler.Me)

		r.Route("/participants", func(r chi.Router) {
			r.Post("/", cfg.ParticipantHandler.Register)
			r.Get("/", cfg.ParticipantHandler.List)
			r.Get("/{id}", cfg.ParticipantHandler.Get)
			r.Put("/{id}/offering", cfg.ParticipantHandler.UpdateOffering)
			r.Delete("/{id}", cfg.ParticipantHandler.Deactivate)
			r.Get("/{id}/sessions", cfg.SessionHandler.ListByParticipant)
		})

		r.Route("/accounts", func(r chi.Router) {
			r.Get("/{id}", cfg.ParticipantHandler.GetAccount)
			r.Get("/{id}/transactions", cfg.LedgerHandler.ListByAccount)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", cfg.SessionHandler.Book)
			r.Get("/{id}", cfg.SessionHandler.Get)
			r.Post("/{id}/confirm", cfg.SessionHandler.Confirm)
			r.Post("/{id}/start", cfg.SessionHandler.Start)
			r.Post("/{id}/complete", cfg.SessionHandler.Complete)
			r.Post("/{id}/cancel", cfg.SessionHandler.Cancel)
			r.Post("/{id}/review", cfg.SessionHandler.Review)

			r.Post("/{id}/room", cfg.RoomHandler.Join)
			r.Get("/{id}/room", cfg.RoomHandler.Members)
			r.Delete("/{id}/room", cfg.RoomHandler.Leave)
		})

		r.Route("/transactions", func(r chi.Router) {
			r.With(middleware.RequireRole(domain.RoleAdmin, domain.RoleService)).
				Get("/stream", cfg.LedgerHandler.Stream)
			r.Get("/{id}", cfg.LedgerHandler.GetTransaction)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(domain.RoleAdmin))

			r.Post("/credits", cfg.LedgerHandler.Credit)
			r.Post("/transactions/{id}/reverse", cfg.LedgerHandler.Reverse)
			r.Get("/consistency", cfg.AdminHandler.Consistency)
		})
	})

	return r
}
