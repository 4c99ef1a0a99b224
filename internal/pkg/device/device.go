package device

import (
	"net"
	"net/http"
	"strings"

	"github.com/insightora-auth/internal/domain"
)

// SignalFromRequest captures the client attributes used to fingerprint a
// device: the User-Agent header and the client network origin.
func SignalFromRequest(r *http.Request) domain.DeviceSignal {
	return domain.DeviceSignal{
		UserAgent:     strings.TrimSpace(r.UserAgent()),
		NetworkOrigin: RealIP(r),
	}
}

// RealIP returns the client address, preferring the first X-Forwarded-For
// hop, then X-Real-Ip, then the host part of RemoteAddr.
func RealIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if xr := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xr != "" {
		return xr
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
