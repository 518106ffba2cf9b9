package middleware

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/wolfman30/ridgeline-site/internal/apierr"
)

const (
	guardSweepInterval = 5 * time.Minute
	guardIdleTTL       = 10 * time.Minute
)

// BurstGuard keeps a token bucket per client key. It smooths bursts on
// endpoints that have no business-level quota, such as the identity proxy.
type BurstGuard struct {
	mu       sync.Mutex
	limiters map[string]*guardEntry
	rps      rate.Limit
	burst    int
	now      func() time.Time
}

type guardEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewBurstGuard allows rps requests/sec with the given burst size per key.
func NewBurstGuard(rps float64, burst int) *BurstGuard {
	if burst < 1 {
		burst = 1
	}
	return &BurstGuard{
		limiters: make(map[string]*guardEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
	}
}

// Allow reports whether a request from key may proceed now.
func (g *BurstGuard) Allow(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	e, ok := g.limiters[key]
	if !ok {
		e = &guardEntry{limiter: rate.NewLimiter(g.rps, g.burst)}
		g.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// RetryAfter is the time until one token is replenished.
func (g *BurstGuard) RetryAfter() time.Duration {
	if g.rps <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Second) / float64(g.rps))
}

// Sweep drops keys idle for longer than ttl and returns how many were removed.
func (g *BurstGuard) Sweep(ttl time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := g.now().Add(-ttl)
	removed := 0
	for key, e := range g.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(g.limiters, key)
			removed++
		}
	}
	return removed
}

// Run sweeps idle keys until stop is closed.
func (g *BurstGuard) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(guardSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			g.Sweep(guardIdleTTL)
		}
	}
}

// clientHost strips the port from a RemoteAddr. Forwarding headers are
// not read here; chi's RealIP rewrites RemoteAddr when the deployment
// trusts them.
func clientHost(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	return addr
}

// RateLimit returns an HTTP middleware that rejects requests exceeding the
// guard's rate with 429 Too Many Requests.
func RateLimit(guard *BurstGuard) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !guard.Allow(clientHost(r.RemoteAddr)) {
				apierr.Write(w, apierr.RateLimited(guard.RetryAfter()))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
