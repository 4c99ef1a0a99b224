package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/insightora-auth/internal/config"
	"github.com/insightora-auth/internal/transport/http/handler"
	appmiddleware "github.com/insightora-auth/internal/transport/http/middleware"
)

// NewRouter builds and returns the application router.
func NewRouter(cfg *config.Config, deps *Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(appmiddleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	limit := deps.RateLimit
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	healthH := handler.NewHealthHandler(deps.HealthChecks)
	authH := handler.NewAuthHandler(deps.Auth)
	deviceH := handler.NewDeviceHandler(deps.Auth)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		// ── Public routes (no auth) ──────────────────────────────────────────
		r.Get("/health-check/ready", healthH.Ready)
		r.Get("/health-check/{action}", healthH.Ping)

		r.Route("/auth", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(limit)
				r.Post("/register", authH.Register)
				r.Post("/resend-verification", authH.ResendVerification)
				r.Post("/verify-registration", authH.VerifyRegistration)
				r.Post("/login", authH.Login)
				r.Post("/verify-login", authH.VerifyLogin)
				r.Post("/password-reset/request", authH.RequestPasswordReset)
				r.Post("/password-reset/confirm", authH.ResetPassword)
			})
			r.Post("/refresh", authH.Refresh)

			r.With(appmiddleware.Auth(deps.Tokens)).Get("/me", authH.Me)
			r.With(limit, appmiddleware.Auth(deps.Tokens)).Post("/password/change", authH.ChangePassword)
		})

		// ── Authenticated routes ─────────────────────────────────────────────
		r.Group(func(r chi.Router) {
			r.Use(appmiddleware.Auth(deps.Tokens))

			r.Get("/devices", deviceH.List)
			r.Post("/devices/revoke-all", deviceH.RevokeAll)
			r.Delete("/devices/{fingerprint}", deviceH.Delete)
		})
	})

	return r
}
