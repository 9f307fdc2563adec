package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"

	"golang.org/x/time/rate"

	"mercator-hq/saturn/pkg/proxy/types"
)

// RateLimiter applies a per-caller request rate with a burst allowance.
// Limiters are keyed by token digest, so raw token values never reach this
// layer. A caller that stays idle simply keeps a full bucket; the map is
// bounded by the number of configured tokens.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int

	rejected atomic.Int64
}

// NewRateLimiter creates a limiter allowing the given sustained rate and
// burst per caller.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
	}
}

// SetLimits replaces the rate settings. Existing per-caller buckets are
// discarded so the new settings take effect immediately.
func (l *RateLimiter) SetLimits(requestsPerSecond float64, burst int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rps = rate.Limit(requestsPerSecond)
	l.burst = burst
	l.limiters = make(map[string]*rate.Limiter)
}

// Allow reports whether the caller identified by key may proceed now.
func (l *RateLimiter) Allow(key string) bool {
	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	return limiter.Allow()
}

// Middleware enforces the limit for authenticated requests. It must run
// after AuthMiddleware; requests without an identity (health probes and
// other skip paths) pass through untouched.
//
// Example usage:
//
//	limiter := NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst)
//	handler = limiter.Middleware(handler)
func (l *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := GetIdentity(r.Context())
		if identity == nil {
			next.ServeHTTP(w, r)
			return
		}

		if !l.Allow(identity.TokenDigest) {
			l.rejected.Add(1)
			slog.WarnContext(r.Context(), "request rate limited",
				"request_id", GetRequestID(r.Context()),
				"token", identity.TokenDigest,
				"path", r.URL.Path,
			)

			errResp := types.NewRateLimitError("Request rate exceeded. Slow down and retry.")

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(errResp)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Rejected returns the cumulative number of requests rejected by the
// limiter since startup. Exposed for the metrics collector.
func (l *RateLimiter) Rejected() int64 {
	return l.rejected.Load()
}
