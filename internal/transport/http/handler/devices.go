package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/insightora-auth/internal/application/auth"
	"github.com/insightora-auth/internal/domain"
	"github.com/insightora-auth/internal/transport/http/middleware"
)

// DeviceHandler handles the signed-in user's trusted devices.
type DeviceHandler struct {
	svc auth.Service
}

func NewDeviceHandler(svc auth.Service) *DeviceHandler { return &DeviceHandler{svc: svc} }

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.CodeInvalidToken, "unauthorized")
		return
	}
	devices, err := h.svc.ListDevices(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if devices == nil {
		devices = []domain.TrustedDevice{}
	}
	writeJSON(w, http.StatusOK, DevicesEnvelope{Devices: devices})
}

func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.CodeInvalidToken, "unauthorized")
		return
	}
	n, err := h.svc.UntrustDevice(r.Context(), claims.Subject, chi.URLParam(r, "fingerprint"))
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if n == 0 {
		writeError(w, http.StatusNotFound, "", "device not found")
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "device removed"})
}

func (h *DeviceHandler) RevokeAll(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, domain.CodeInvalidToken, "unauthorized")
		return
	}
	n, err := h.svc.RevokeAllDevices(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CountEnvelope{Count: n})
}
