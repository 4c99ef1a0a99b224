package handler

import (
	"encoding/json"
	"net/http"

	"github.com/insightora-auth/internal/domain"
	"github.com/insightora-auth/internal/pkg/validate"
)

// MessageEnvelope is the generic response wrapper.
type MessageEnvelope struct {
	Message string `json:"message"`
}

// ErrorEnvelope is the body of every error response.
type ErrorEnvelope struct {
	Error             string           `json:"error"`
	Code              domain.ErrorCode `json:"code,omitempty"`
	AttemptsRemaining *int             `json:"attempts_remaining,omitempty"`
	RetryAfterSeconds *int             `json:"retry_after_seconds,omitempty"`
}

// Next steps a client follows after a registration call.
const nextStepVerifyRegistration = "verify_registration"

type RegisterEnvelope struct {
	UserID   string `json:"user_id"`
	Email    string `json:"email"`
	OTPSent  bool   `json:"otp_sent"`
	NextStep string `json:"next_step"`
}

type VerifyRegistrationEnvelope struct {
	User     *domain.UserProfile `json:"user"`
	NextStep string              `json:"next_step"`
}

// LoginEnvelope carries either the pending-code marker or, for a trusted
// device, the finished session.
type LoginEnvelope struct {
	RequiresOTP bool                `json:"requires_otp"`
	MaskedEmail string              `json:"masked_email,omitempty"`
	User        *domain.UserProfile `json:"user,omitempty"`
	Tokens      *domain.TokenPair   `json:"tokens,omitempty"`
}

type VerifyLoginEnvelope struct {
	User          *domain.UserProfile `json:"user"`
	Tokens        *domain.TokenPair   `json:"tokens"`
	DeviceTrusted bool                `json:"device_trusted"`
}

type TokensEnvelope struct {
	Tokens *domain.TokenPair `json:"tokens"`
}

type DevicesEnvelope struct {
	Devices []domain.TrustedDevice `json:"devices"`
}

type CountEnvelope struct {
	Count int `json:"count"`
}

const maxBodyBytes = 64 << 10

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code domain.ErrorCode, msg string) {
	writeJSON(w, status, ErrorEnvelope{Error: msg, Code: code})
}

// decode reads a JSON body into dst and runs its validate tags. On failure
// the 400 response is already written.
func decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	return decodeThen(w, r, dst, nil)
}

// decodeThen is decode with a prep step between parsing and validation.
func decodeThen(w http.ResponseWriter, r *http.Request, dst interface{}, prep func()) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeValidationFailed, "invalid request body")
		return false
	}
	if prep != nil {
		prep()
	}
	if err := validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, domain.CodeValidationFailed, err.Error())
		return false
	}
	return true
}
