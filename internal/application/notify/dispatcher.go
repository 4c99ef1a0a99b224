package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/insightora-auth/internal/domain"
)

var deliveries = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_notifications_total",
		Help: "Outbound notifications by result",
	},
	[]string{"result"},
)

// Mailer delivers one rendered email.
type Mailer interface {
	Send(ctx context.Context, e domain.Email) error
}

// Dispatcher delivers emails in the background. Delivery failures are
// logged and counted, never returned to the caller.
type Dispatcher struct {
	mailer  Mailer
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewDispatcher(mailer Mailer, timeout time.Duration) *Dispatcher {
	return &Dispatcher{mailer: mailer, timeout: timeout}
}

// Dispatch queues e for delivery and returns immediately. The delivery
// outlives ctx cancellation but keeps its values.
func (d *Dispatcher) Dispatch(ctx context.Context, e domain.Email) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()
		if err := d.mailer.Send(sendCtx, e); err != nil {
			deliveries.WithLabelValues("failed").Inc()
			slog.Warn("email delivery failed", "to", e.To, "subject", e.Subject, "err", err)
			return
		}
		deliveries.WithLabelValues("sent").Inc()
	}()
}

// Wait blocks until every queued delivery has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
