package handler

import (
	"net/http"
	"strings"

	"github.com/insightora-auth/internal/application/auth"
	"github.com/insightora-auth/internal/domain"
	"github.com/insightora-auth/internal/pkg/device"
	"github.com/insightora-auth/internal/transport/http/middleware"
)

// AuthHandler handles the registration, login and session endpoints.
type AuthHandler struct {
	svc auth.Service
}

func NewAuthHandler(svc auth.Service) *AuthHandler { return &AuthHandler{svc: svc} }

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req auth.RegisterRequest
	if !decodeWithEmail(w, r, &req, &req.Email) {
		return
	}
	res, err := h.svc.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, RegisterEnvelope{
		UserID:   res.UserID,
		Email:    res.Email,
		OTPSent:  res.OTPSent,
		NextStep: nextStepVerifyRegistration,
	})
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req auth.EmailRequest
	if !decodeWithEmail(w, r, &req, &req.Email) {
		return
	}
	if err := h.svc.ResendVerification(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "if the account is awaiting verification, a new code has been sent"})
}

func (h *AuthHandler) VerifyRegistration(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyCodeRequest
	if !decodeWithEmail(w, r, &req, &req.Email) {
		return
	}
	res, err := h.svc.VerifyRegistration(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyRegistrationEnvelope{User: res.User, NextStep: res.NextStep})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest
	if !decodeWithEmail(w, r, &req, &req.Email) {
		return
	}
	req.Device = device.SignalFromRequest(r)
	res, err := h.svc.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LoginEnvelope{
		RequiresOTP: res.RequiresOTP,
		MaskedEmail: res.MaskedEmail,
		User:        res.User,
		Tokens:      res.Tokens,
	})
}

func (h *AuthHandler) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	var req auth.VerifyLoginRequest
	if !decodeWithEmail(w, r, &req, &req.Email) {
		return
	}
	req.Device = device.SignalFromRequest(r)
	res, err := h.svc.VerifyLogin(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, VerifyLoginEnvelope{User: res.User, Tokens: res.Tokens, DeviceTrusted: res.DeviceTrusted})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req auth.RefreshRequest
	if !decode(w, r, &req) {
		return
	}
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TokensEnvelope{Tokens: pair})
}

func (h *AuthHandler) RequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req auth.EmailRequest
	if !decodeWithEmail(w, r, &req, &req.Email) {
		return
	}
	if err := h.svc.RequestPasswordReset(r.Context(), req.Email); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "if the account exists, a reset code has been sent"})
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req auth.ResetPasswordRequest
	if !decodeWithEmail(w, r, &req, &req.Email) {
		return
	}
	if err := h.svc.ResetPassword(r.Context(), req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password updated"})
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.CodeInvalidToken, "unauthorized")
		return
	}
	var req auth.ChangePasswordRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.svc.ChangePassword(r.Context(), claims.Subject, req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "password changed"})
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.CodeInvalidToken, "unauthorized")
		return
	}
	profile, err := h.svc.Me(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// decodeWithEmail trims the email before validation so pasted whitespace
// does not fail the email tag.
func decodeWithEmail(w http.ResponseWriter, r *http.Request, dst interface{}, email *string) bool {
	return decodeThen(w, r, dst, func() { *email = strings.TrimSpace(*email) })
}
