package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/insightora-auth/internal/pkg/device"
)

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-IP token-bucket rate limiter with automatic stale-entry cleanup.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	r        rate.Limit
	burst    int
}

// NewRateLimiter creates a per-IP limiter: r requests/second, burst up to
// burst requests. Stale entries are dropped until ctx is done.
func NewRateLimiter(ctx context.Context, r rate.Limit, burst int) *RateLimiter {
	rl := &RateLimiter{
		limiters: make(map[string]*ipLimiter),
		r:        r,
		burst:    burst,
	}
	go rl.cleanup(ctx)
	return rl
}

// PerMinute builds a limiter allowing n requests per minute per IP, all of
// which may arrive at once.
func PerMinute(ctx context.Context, n int) *RateLimiter {
	return NewRateLimiter(ctx, rate.Limit(float64(n)/60), n)
}

func (rl *RateLimiter) get(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if v, ok := rl.limiters[ip]; ok {
		v.lastSeen = time.Now()
		return v.limiter
	}
	l := rate.NewLimiter(rl.r, rl.burst)
	rl.limiters[ip] = &ipLimiter{limiter: l, lastSeen: time.Now()}
	return l
}

// cleanup removes stale entries every 5 minutes.
func (rl *RateLimiter) cleanup(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		rl.mu.Lock()
		for ip, v := range rl.limiters {
			if time.Since(v.lastSeen) > 10*time.Minute {
				delete(rl.limiters, ip)
			}
		}
		rl.mu.Unlock()
	}
}

// Limit is the middleware handler that enforces the rate limit per client IP.
func (rl *RateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.get(device.RealIP(r)).Allow() {
			writeJSONError(w, http.StatusTooManyRequests, "", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Counter increments a key that expires window after its first increment.
type Counter interface {
	IncrWithExpire(ctx context.Context, key string, window time.Duration) (int64, error)
}

// SharedRateLimiter is a fixed-window per-IP limiter backed by a shared
// counter, so the budget holds across replicas.
type SharedRateLimiter struct {
	counter Counter
	limit   int64
	window  time.Duration
	prefix  string
}

func NewSharedRateLimiter(counter Counter, limit int, window time.Duration) *SharedRateLimiter {
	return &SharedRateLimiter{counter: counter, limit: int64(limit), window: window, prefix: "ratelimit:"}
}

// Limit enforces the budget. When the counter is unreachable requests pass.
func (rl *SharedRateLimiter) Limit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := device.RealIP(r)
		n, err := rl.counter.IncrWithExpire(r.Context(), rl.prefix+ip, rl.window)
		if err != nil {
			slog.Warn("rate limit counter unavailable", "ip", ip, "err", err)
			next.ServeHTTP(w, r)
			return
		}
		if n > rl.limit {
			w.Header().Set("Retry-After", strconv.Itoa(int(rl.window/time.Second)))
			writeJSONError(w, http.StatusTooManyRequests, "", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}
