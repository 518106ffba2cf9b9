// Package identityproxy forwards browser traffic for the CMS identity
// service through the site origin so the browser never makes a
// cross-origin call to the identity host.
package identityproxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/wolfman30/ridgeline-site/internal/apierr"
	"github.com/wolfman30/ridgeline-site/internal/observability/metrics"
	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

const (
	DefaultPrefix  = "/identity-proxy"
	DefaultTimeout = 10 * time.Second

	maxRequestBody = 1 << 20

	allowMethods = "GET, POST, OPTIONS"
	allowHeaders = "Content-Type, Authorization"
)

var tracer = otel.Tracer("ridgeline.internal.identityproxy")

// Config holds the proxy settings.
type Config struct {
	UpstreamURL   string
	Prefix        string
	AllowedOrigin string
	Timeout       time.Duration
	Client        *http.Client
}

// Proxy is a stateless forwarder to a single identity upstream.
type Proxy struct {
	upstream      *url.URL
	prefix        string
	allowedOrigin string
	timeout       time.Duration
	client        *http.Client
	logger        *logging.Logger
	metrics       *metrics.SiteMetrics
}

// New validates cfg and builds a Proxy.
func New(cfg Config, logger *logging.Logger, m *metrics.SiteMetrics) (*Proxy, error) {
	u, err := url.Parse(cfg.UpstreamURL)
	if err != nil {
		return nil, fmt.Errorf("identityproxy: parse upstream: %w", err)
	}
	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return nil, fmt.Errorf("identityproxy: upstream %q must be an absolute http(s) URL", cfg.UpstreamURL)
	}
	if strings.TrimSpace(cfg.AllowedOrigin) == "" {
		return nil, errors.New("identityproxy: allowed origin is required")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Proxy{
		upstream:      u,
		prefix:        strings.TrimRight(cfg.Prefix, "/"),
		allowedOrigin: cfg.AllowedOrigin,
		timeout:       cfg.Timeout,
		client:        client,
		logger:        logger,
		metrics:       m,
	}, nil
}

// Prefix is the path prefix the proxy is mounted under.
func (p *Proxy) Prefix() string { return p.prefix }

func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.setCORS(w.Header())

	switch r.Method {
	case http.MethodOptions:
		p.metrics.ObserveProxy(r.Method, http.StatusOK)
		w.WriteHeader(http.StatusOK)
		return
	case http.MethodGet, http.MethodPost:
	default:
		p.metrics.ObserveProxy(r.Method, http.StatusMethodNotAllowed)
		apierr.Write(w, apierr.MethodNotAllowed(http.MethodGet, http.MethodPost, http.MethodOptions))
		return
	}

	status, err := p.forward(w, r)
	if err != nil {
		p.logger.Error("identity proxy upstream failed", "error", err, "method", r.Method, "path", r.URL.Path)
		status = http.StatusInternalServerError
		apierr.Write(w, apierr.Upstream(err))
	}
	p.metrics.ObserveProxy(r.Method, status)
}

// Target maps an incoming request path and query onto the upstream.
func (p *Proxy) Target(r *http.Request) *url.URL {
	rest := strings.TrimPrefix(r.URL.Path, p.prefix)
	rest = path.Clean("/" + rest)

	target := *p.upstream
	if rest == "/" {
		target.Path = p.upstream.Path
	} else {
		target.Path = strings.TrimRight(p.upstream.Path, "/") + rest
	}
	target.RawPath = ""
	target.RawQuery = r.URL.RawQuery
	return &target
}

func (p *Proxy) forward(w http.ResponseWriter, r *http.Request) (int, error) {
	ctx, span := tracer.Start(r.Context(), "identityproxy.forward")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	target := p.Target(r)
	span.SetAttributes(
		attribute.String("http.method", r.Method),
		attribute.String("upstream.path", target.Path),
	)

	var body io.Reader
	if r.Method == http.MethodPost && r.Body != nil {
		body = io.LimitReader(r.Body, maxRequestBody)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target.String(), body)
	if err != nil {
		return 0, fmt.Errorf("build upstream request: %w", err)
	}
	if ct := r.Header.Get("Content-Type"); ct != "" {
		req.Header.Set("Content-Type", ct)
	}
	if auth := r.Header.Get("Authorization"); auth != "" {
		req.Header.Set("Authorization", auth)
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	p.metrics.ObserveUpstreamLatency("identity", time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upstream unreachable")
		return 0, fmt.Errorf("upstream request: %w", err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	if _, err := io.Copy(w, resp.Body); err != nil {
		// Headers are already sent; nothing useful can go back to the client.
		p.logger.Warn("identity proxy response copy interrupted", "error", err)
	}
	return resp.StatusCode, nil
}

func (p *Proxy) setCORS(h http.Header) {
	h.Set("Access-Control-Allow-Origin", p.allowedOrigin)
	h.Set("Access-Control-Allow-Methods", allowMethods)
	h.Set("Access-Control-Allow-Headers", allowHeaders)
	h.Set("Access-Control-Allow-Credentials", "true")
	h.Add("Vary", "Origin")
}
