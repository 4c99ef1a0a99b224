package http

import (
	"net/http"

	"github.com/insightora-auth/internal/application/auth"
	"github.com/insightora-auth/internal/transport/http/handler"
	"github.com/insightora-auth/internal/transport/http/middleware"
)

// Deps holds everything the router needs from the wired application.
type Deps struct {
	Auth   auth.Service
	Tokens middleware.AccessVerifier
	// RateLimit guards the public auth endpoints; nil leaves them unlimited.
	RateLimit func(http.Handler) http.Handler
	// HealthChecks back the readiness endpoint, keyed by dependency name.
	HealthChecks map[string]handler.Check
}
