package httpmiddleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstMultiplier   = 2
	cleanupInterval   = 5 * time.Minute
	idleLimiterMaxAge = 1 * time.Hour
)

// RateLimiter decides whether a request from the given source should be
// allowed through. source is typically a remote IP; implementations may
// also key by customer or API client.
type RateLimiter interface {
	Allow(source string) bool
}

// InMemoryRateLimiter enforces a global limit plus a per-source limit using
// golang.org/x/time/rate token buckets. It is the right fit for a single
// pixel-ingress process; fronting multiple ingress replicas with a shared
// limit would need a Redis-backed implementation behind the same
// RateLimiter interface.
type InMemoryRateLimiter struct {
	global *rate.Limiter

	mu        sync.Mutex
	perSource map[string]*sourceLimiter
	sourceRPS int
	burst     int

	done chan struct{}
}

type sourceLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// NewInMemoryRateLimiter builds a limiter allowing globalRPS requests/sec
// overall and sourceRPS requests/sec per distinct source, each with burst
// capacity of 2x its rate. A background goroutine evicts sources idle for
// more than an hour so the map does not grow unbounded.
func NewInMemoryRateLimiter(globalRPS, sourceRPS int) *InMemoryRateLimiter {
	rl := &InMemoryRateLimiter{
		global:    rate.NewLimiter(rate.Limit(globalRPS), globalRPS*burstMultiplier),
		perSource: make(map[string]*sourceLimiter),
		sourceRPS: sourceRPS,
		burst:     sourceRPS * burstMultiplier,
		done:      make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Allow implements RateLimiter.
func (rl *InMemoryRateLimiter) Allow(source string) bool {
	if !rl.global.Allow() {
		return false
	}

	rl.mu.Lock()
	sl, ok := rl.perSource[source]
	if !ok {
		sl = &sourceLimiter{limiter: rate.NewLimiter(rate.Limit(rl.sourceRPS), rl.burst)}
		rl.perSource[source] = sl
	}
	sl.lastAccess = time.Now()
	rl.mu.Unlock()

	return sl.limiter.Allow()
}

// Close stops the background cleanup goroutine.
func (rl *InMemoryRateLimiter) Close() {
	close(rl.done)
}

func (rl *InMemoryRateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.done:
			return
		}
	}
}

func (rl *InMemoryRateLimiter) cleanup() {
	cutoff := time.Now().Add(-idleLimiterMaxAge)

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for source, sl := range rl.perSource {
		if sl.lastAccess.Before(cutoff) {
			delete(rl.perSource, source)
		}
	}
}

// RateLimit returns middleware that rejects requests exceeding limiter's
// per-remote-address budget with 429 Too Many Requests. If limiter is nil
// the middleware is a no-op, so callers can wire rate limiting optionally.
func RateLimit(limiter RateLimiter) Option {
	if limiter == nil {
		return func(next http.Handler) http.Handler { return next }
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			source := sourceAddr(r)

			if !limiter.Allow(source) {
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"title":"Too Many Requests","status":429}`))

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func sourceAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}
