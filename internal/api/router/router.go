package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/wolfman30/ridgeline-site/internal/apierr"
	"github.com/wolfman30/ridgeline-site/internal/forms"
	httpmiddleware "github.com/wolfman30/ridgeline-site/internal/http/middleware"
	"github.com/wolfman30/ridgeline-site/internal/identityproxy"
	"github.com/wolfman30/ridgeline-site/internal/observability/metrics"
	"github.com/wolfman30/ridgeline-site/internal/ratelimit"
	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

// LeadCaptureScope prefixes rate-limit keys for the lead-capture form.
const LeadCaptureScope = "lead-capture"

// Config holds router configuration
type Config struct {
	Logger             *logging.Logger
	Metrics            *metrics.SiteMetrics
	FormsHandler       *forms.Handler
	CSRFHandler        http.Handler
	LeadLimiter        *ratelimit.Limiter
	RateLimitKeyFunc   ratelimit.KeyFunc
	RateLimitAdmin     *ratelimit.AdminHandler
	IdentityProxy      *identityproxy.Proxy
	IdentityGuard      *httpmiddleware.BurstGuard
	AdminAuthSecret    string
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string
	// TrustForwardedHeaders installs chi's RealIP. Only enable it behind a
	// proxy that overwrites X-Forwarded-For and X-Real-IP.
	TrustForwardedHeaders bool
}

// New creates a new Chi router with all routes configured
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	if cfg.TrustForwardedHeaders {
		r.Use(middleware.RealIP)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	// Browser-facing form endpoints
	r.Group(func(site chi.Router) {
		if len(cfg.CORSAllowedOrigins) > 0 {
			site.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
		}
		if cfg.CSRFHandler != nil {
			site.Handle("/csrf-token", cfg.CSRFHandler)
		}
		if cfg.FormsHandler == nil {
			return
		}
		site.HandleFunc("/contact", cfg.FormsHandler.Contact)

		lead := site.With()
		if cfg.LeadLimiter != nil {
			lead = site.With(ratelimit.Middleware(ratelimit.MiddlewareOptions{
				Limiter: cfg.LeadLimiter,
				KeyFn:   cfg.RateLimitKeyFunc,
				Scope:   LeadCaptureScope,
				Logger:  cfg.Logger,
				Metrics: cfg.Metrics,
			}))
		}
		lead.HandleFunc("/lead-capture", cfg.FormsHandler.LeadCapture)
	})

	// Identity proxy sets its own single-origin CORS headers
	if cfg.IdentityProxy != nil {
		r.Group(func(idp chi.Router) {
			if cfg.IdentityGuard != nil {
				idp.Use(httpmiddleware.RateLimit(cfg.IdentityGuard))
			}
			prefix := cfg.IdentityProxy.Prefix()
			idp.Handle(prefix, cfg.IdentityProxy)
			idp.Handle(prefix+"/*", cfg.IdentityProxy)
		})
	}

	// Admin endpoints require a signed JWT
	if cfg.AdminAuthSecret != "" && cfg.RateLimitAdmin != nil {
		r.Route("/admin", func(admin chi.Router) {
			admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))
			admin.Mount("/rate-limits", cfg.RateLimitAdmin.Routes())
		})
	}

	return r
}

func health(w http.ResponseWriter, _ *http.Request) {
	apierr.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
