package housekeeping

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var swept = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "auth_housekeeping_removed_total",
		Help: "Rows cleaned up by the housekeeping sweep",
	},
	[]string{"kind"},
)

type codeSweeper interface {
	DeleteExpired(ctx context.Context) (int, error)
}

type deviceSweeper interface {
	DeactivateExpired(ctx context.Context) (int, error)
}

// Result counts what one sweep cleaned up.
type Result struct {
	Codes   int
	Devices int
}

// Sweeper removes used or expired codes and flips expired device trust
// inactive. Both already expire lazily on read; the sweep keeps the tables
// small.
type Sweeper struct {
	codes   codeSweeper
	devices deviceSweeper
}

func NewSweeper(codes codeSweeper, devices deviceSweeper) *Sweeper {
	return &Sweeper{codes: codes, devices: devices}
}

// Sweep runs both passes once. A failure in one pass does not skip the other.
func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result
	var errs []error

	n, err := s.codes.DeleteExpired(ctx)
	res.Codes = n
	if err != nil {
		errs = append(errs, err)
	}
	swept.WithLabelValues("codes").Add(float64(n))

	n, err = s.devices.DeactivateExpired(ctx)
	res.Devices = n
	if err != nil {
		errs = append(errs, err)
	}
	swept.WithLabelValues("devices").Add(float64(n))

	return res, errors.Join(errs...)
}

// Run sweeps every interval until ctx is done. A non-positive interval
// returns immediately.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil {
				slog.Warn("housekeeping sweep failed", "err", err)
			}
			slog.Debug("housekeeping sweep", "codes", res.Codes, "devices", res.Devices)
		}
	}
}
