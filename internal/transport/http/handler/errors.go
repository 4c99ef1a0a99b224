package handler

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/insightora-auth/internal/domain"
)

// writeServiceError maps a service error to its HTTP response. Typed auth
// errors keep their code and hints; anything else is logged and reported as
// a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if ae, ok := domain.AsAuthError(err); ok {
		env := ErrorEnvelope{Error: ae.Message, Code: ae.Code}
		if ae.Code == domain.CodeOTPMismatch {
			n := ae.AttemptsRemaining
			env.AttemptsRemaining = &n
		}
		if ae.RetryAfter > 0 {
			secs := int(math.Ceil(ae.RetryAfter.Seconds()))
			env.RetryAfterSeconds = &secs
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		writeJSON(w, statusFor(ae), env)
		return
	}
	if status := statusFor(err); status != http.StatusInternalServerError {
		writeError(w, status, "", http.StatusText(status))
		return
	}
	slog.Error("request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"request_id", chimiddleware.GetReqID(r.Context()),
		"err", err,
	)
	writeError(w, http.StatusInternalServerError, "", "internal server error")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrTooManyRequests):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
