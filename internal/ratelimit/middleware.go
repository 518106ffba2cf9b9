package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/wolfman30/ridgeline-site/internal/apierr"
	"github.com/wolfman30/ridgeline-site/internal/observability/metrics"
	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

// KeyFunc extracts the caller identity from a request.
type KeyFunc func(r *http.Request) string

// DefaultKeyFunc identifies callers by IP. Forwarding headers are
// client-controlled, so X-Forwarded-For (first entry) and X-Real-Ip are
// consulted only when trustForwarded is set; otherwise the RemoteAddr host
// is the identity.
func DefaultKeyFunc(trustForwarded bool) KeyFunc {
	return func(r *http.Request) string {
		if trustForwarded {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				first, _, _ := strings.Cut(xff, ",")
				if ip := strings.TrimSpace(first); ip != "" {
					return ip
				}
			}
			if xri := strings.TrimSpace(r.Header.Get("X-Real-Ip")); xri != "" {
				return xri
			}
		}
		return RemoteHost(r)
	}
}

// RemoteHost returns the host part of r.RemoteAddr, or "unknown".
func RemoteHost(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil && host != "" {
		return host
	}
	if addr != "" {
		return addr
	}
	return "unknown"
}

// MiddlewareOptions configures Middleware.
type MiddlewareOptions struct {
	Limiter *Limiter
	KeyFn   KeyFunc
	Scope   string
	Logger  *logging.Logger
	Metrics *metrics.SiteMetrics
}

// Middleware rejects callers over the limit with 429 and a Retry-After
// header; the wrapped handler does not run for rejected requests. Store
// failures are logged and the request is let through.
func Middleware(opts MiddlewareOptions) func(http.Handler) http.Handler {
	if opts.Limiter == nil {
		panic("ratelimit: limiter cannot be nil")
	}
	if opts.KeyFn == nil {
		opts.KeyFn = DefaultKeyFunc(false)
	}
	if opts.Logger == nil {
		opts.Logger = logging.Default()
	}
	if opts.Scope == "" {
		opts.Scope = "default"
	}
	limiter := opts.Limiter

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Preflight requests carry no submission.
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			key := opts.KeyFn(r)
			dec, err := limiter.Check(r.Context(), opts.Scope+":"+key)
			if err != nil {
				opts.Logger.Error("rate limit store unavailable, allowing request",
					"error", err,
					"scope", opts.Scope,
				)
			}
			opts.Metrics.ObserveRateLimit(opts.Scope, dec.Allowed)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(dec.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(dec.Remaining))
			if !dec.Allowed {
				opts.Logger.Warn("rate limit exceeded",
					"scope", opts.Scope,
					"identity", key,
					"count", dec.Count,
					"limit", dec.Limit,
				)
				apierr.Write(w, apierr.RateLimited(dec.RetryAfter))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
