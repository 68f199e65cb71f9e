package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the per-client sliding window limiter. Scanner
// stations fire requests in bursts when a consignment comes in, so the limit
// slides instead of resetting on fixed boundaries.
type RateLimitConfig struct {
	// Max is the request budget per window.
	Max int
	// Window is the sliding window length.
	Window time.Duration
	// KeyFunc derives the client key. Nil means client IP.
	KeyFunc func(*http.Request) string
}

// bucket keeps counts for one client across the current window and the one
// before it, so consumption can be interpolated between them.
type bucket struct {
	prevCount float64
	prevStart time.Time
	curCount  float64
	curStart  time.Time
}

type limiter struct {
	cfg     RateLimitConfig
	mu      sync.Mutex
	buckets map[string]*bucket
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	return &limiter{cfg: cfg, buckets: make(map[string]*bucket)}
}

// take consumes one request from the client's budget. It reports the budget
// left, when the window resets, and whether this request fit.
func (l *limiter) take(key string, now time.Time) (remaining int, resetAt time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	b, exists := l.buckets[key]
	if !exists {
		b = &bucket{curStart: now}
		l.buckets[key] = b
	}

	if now.Sub(b.curStart) >= l.cfg.Window {
		b.prevCount = b.curCount
		b.prevStart = b.curStart
		b.curCount = 0
		b.curStart = now.Truncate(l.cfg.Window)
		if now.Sub(b.prevStart) >= 2*l.cfg.Window {
			b.prevCount = 0
		}
	}

	// Weight the previous window by how much of it the sliding window still
	// covers.
	elapsed := now.Sub(b.curStart)
	overlap := 1.0 - elapsed.Seconds()/l.cfg.Window.Seconds()
	if overlap < 0 {
		overlap = 0
	}
	used := b.prevCount*overlap + b.curCount
	resetAt = b.curStart.Add(l.cfg.Window)

	if used >= float64(l.cfg.Max) {
		return 0, resetAt, false
	}

	b.curCount++
	used++

	remaining = int(float64(l.cfg.Max) - used)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, resetAt, true
}

// sweep drops buckets whose both windows have expired.
func (l *limiter) sweep(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for key, b := range l.buckets {
		if now.Sub(b.curStart) >= 2*l.cfg.Window {
			delete(l.buckets, key)
		}
	}
}

// RateLimit returns a sliding-window rate limit middleware. Rejected requests
// get a 429 with a JSON body; every response carries X-RateLimit-Limit,
// X-RateLimit-Remaining and X-RateLimit-Reset.
//
// Stale client buckets are never evicted; use RateLimitWithCleanup in
// long-running servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return limitMiddleware(newLimiter(cfg))
}

// RateLimitWithCleanup is RateLimit plus a background sweeper that drops
// expired client buckets every two windows until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.sweep(now)
			}
		}
	}()
	return limitMiddleware(l)
}

func limitMiddleware(l *limiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			remaining, resetAt, ok := l.take(l.cfg.KeyFunc(r), time.Now())

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !ok {
				retryAfter := time.Until(resetAt)
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    429,
					"message": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the caller's address: first hop of X-Forwarded-For, then
// X-Real-IP, then the socket address.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
