package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// bucket pairs a per-IP token bucket with an atomically-updated last-seen
// timestamp (unix nanoseconds), so a hot path can refresh it without taking
// the limiter's write lock.
type bucket struct {
	limiter      *rate.Limiter
	lastSeenNano atomic.Int64
}

// GlobalRateLimiter throttles requests per source IP ahead of the router. It
// never looks at request bodies, so it has no effect on engine results —
// only on whether a request reaches the engine at all (rate limiting sits
// outside the leasing semantics entirely).
//
// Idle buckets are reclaimed by a background sweep tied to the context
// passed to NewGlobalRateLimiter, so the limiter shuts down cleanly with the
// rest of the server instead of leaking a goroutine.
type GlobalRateLimiter struct {
	buckets   sync.Map // ip string -> *bucket
	rps       rate.Limit
	burst     int
	idleAfter time.Duration
}

// NewGlobalRateLimiter builds a limiter admitting rps requests per second
// per source IP, with the given burst allowance. The sweep goroutine that
// evicts idle IPs stops when ctx is cancelled.
func NewGlobalRateLimiter(ctx context.Context, rps, burst int) *GlobalRateLimiter {
	rl := &GlobalRateLimiter{
		rps:       rate.Limit(rps),
		burst:     burst,
		idleAfter: 3 * time.Minute,
	}
	go rl.sweep(ctx, time.Minute)
	return rl
}

func (rl *GlobalRateLimiter) bucketFor(ip string) *bucket {
	if existing, ok := rl.buckets.Load(ip); ok {
		b := existing.(*bucket)
		b.lastSeenNano.Store(time.Now().UnixNano())
		return b
	}

	b := &bucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
	b.lastSeenNano.Store(time.Now().UnixNano())
	actual, loaded := rl.buckets.LoadOrStore(ip, b)
	if loaded {
		b = actual.(*bucket)
		b.lastSeenNano.Store(time.Now().UnixNano())
	}
	return b
}

// sweep periodically drops buckets that haven't been touched within
// idleAfter, so long-running servers don't accumulate one entry per
// distinct client IP forever.
func (rl *GlobalRateLimiter) sweep(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := time.Now().Add(-rl.idleAfter).UnixNano()
			rl.buckets.Range(func(key, value any) bool {
				if value.(*bucket).lastSeenNano.Load() < cutoff {
					rl.buckets.Delete(key)
				}
				return true
			})
		}
	}
}

func clientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return ip
	}
	return strings.Trim(r.RemoteAddr, "[]")
}

// Middleware enforces the per-IP limit ahead of every handler it wraps,
// rejecting over-limit requests with 429 before they touch the engine.
func (rl *GlobalRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.bucketFor(clientIP(r)).limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, map[string]string{
				"result": "OTHERS",
				"error":  "rate limit exceeded",
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
