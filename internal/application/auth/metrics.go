package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/insightora-auth/internal/domain"
)

var outcomes = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_operations_total",
		Help: "Auth operations by outcome (ok, an error code, or internal)",
	},
	[]string{"operation", "outcome"},
)

func observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "internal"
		if ae, ok := domain.AsAuthError(err); ok {
			outcome = string(ae.Code)
		}
	}
	outcomes.WithLabelValues(op, outcome).Inc()
}
