// Package bootstrap assembles the HTTP application from configuration. Both
// the long-running server and the Lambda entrypoint build through here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/ridgeline-site/internal/api/router"
	appconfig "github.com/wolfman30/ridgeline-site/internal/config"
	"github.com/wolfman30/ridgeline-site/internal/csrf"
	"github.com/wolfman30/ridgeline-site/internal/forms"
	httpmiddleware "github.com/wolfman30/ridgeline-site/internal/http/middleware"
	"github.com/wolfman30/ridgeline-site/internal/identityproxy"
	"github.com/wolfman30/ridgeline-site/internal/notify"
	"github.com/wolfman30/ridgeline-site/internal/observability/metrics"
	"github.com/wolfman30/ridgeline-site/internal/ratelimit"
	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

// Options carries the collaborators BuildApp cannot derive from config.
type Options struct {
	// Registry receives the site collectors and backs /metrics. A fresh
	// registry is used when nil.
	Registry *prometheus.Registry
	// LoadAWS is only called for the ses notifier or the dynamodb store.
	LoadAWS AWSConfigLoader
	// Notifier overrides the provider selected by config.
	Notifier notify.Notifier
}

// App is a wired HTTP handler plus the resources it holds.
type App struct {
	Handler http.Handler
	Limiter *ratelimit.Limiter

	closers []func()
}

// Close stops background work and releases connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// BuildApp validates cfg and wires every component behind the router.
func BuildApp(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, opts Options) (*App, error) {
	if cfg == nil {
		return nil, errors.New("bootstrap: config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("bootstrap: invalid config: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}
	reg := opts.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	app := &App{}
	fail := func(err error) (*App, error) {
		app.Close()
		return nil, err
	}

	m := metrics.NewSiteMetrics(reg)

	csrfSvc, err := buildCSRF(cfg, logger)
	if err != nil {
		return fail(err)
	}

	notifier := opts.Notifier
	if notifier == nil {
		notifier, err = BuildNotifier(ctx, cfg, opts.LoadAWS, logger)
		if err != nil {
			return fail(err)
		}
	}

	formsHandler, err := forms.NewHandler(forms.Config{
		Notifier:   notifier,
		CSRF:       csrfSvc,
		Recipients: cfg.NotificationRecipients,
		Logger:     logger,
		Metrics:    m,
	})
	if err != nil {
		return fail(err)
	}

	store, closeStore, err := BuildRateLimitStore(ctx, cfg, opts.LoadAWS, logger)
	app.closers = append(app.closers, closeStore)
	if err != nil {
		return fail(err)
	}
	limiter, err := ratelimit.NewLimiter(store, cfg.RateLimitMax, cfg.RateLimitWindow)
	if err != nil {
		return fail(err)
	}
	app.Limiter = limiter

	proxy, err := identityproxy.New(identityproxy.Config{
		UpstreamURL:   cfg.IdentityUpstreamURL,
		AllowedOrigin: cfg.IdentityAllowedOrigin,
		Timeout:       cfg.IdentityTimeout,
	}, logger, m)
	if err != nil {
		return fail(err)
	}
	guard := httpmiddleware.NewBurstGuard(cfg.IdentityRPS, cfg.IdentityBurst)
	stopGuard := make(chan struct{})
	go guard.Run(stopGuard)
	app.closers = append(app.closers, func() { close(stopGuard) })

	var admin *ratelimit.AdminHandler
	if cfg.AdminJWTSecret != "" {
		admin = ratelimit.NewAdminHandler(limiter, logger)
	}

	app.Handler = router.New(&router.Config{
		Logger:             logger,
		Metrics:            m,
		FormsHandler:       formsHandler,
		CSRFHandler:        csrf.NewHandler(csrfSvc, logger, m),
		LeadLimiter:        limiter,
		RateLimitKeyFunc:   ratelimit.DefaultKeyFunc(cfg.TrustXForwardedFor),
		RateLimitAdmin:     admin,
		IdentityProxy:      proxy,
		IdentityGuard:      guard,
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,

		TrustForwardedHeaders: cfg.TrustXForwardedFor,
	})
	return app, nil
}

func buildCSRF(cfg *appconfig.Config, logger *logging.Logger) (*csrf.Service, error) {
	secret := []byte(cfg.CSRFSecret)
	if len(secret) == 0 {
		// Validate already refused this in production.
		generated, err := csrf.EphemeralSecret()
		if err != nil {
			return nil, fmt.Errorf("bootstrap: generate csrf secret: %w", err)
		}
		secret = generated
		logger.Warn("CSRF_SECRET not set; using an ephemeral key, tokens will not survive a restart or validate across instances")
	}
	return csrf.NewService(secret, csrf.WithTTL(cfg.CSRFTTL))
}
