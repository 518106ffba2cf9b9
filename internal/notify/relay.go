package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/net/idna"

	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

const (
	// DefaultRelayBaseURL is used whenever no acceptable override is configured.
	DefaultRelayBaseURL = "https://www.ridgelinepa.com"
	// RelayPath is the notification function mounted on the site host.
	RelayPath = "/.netlify/functions/send-notification"
	// DefaultRelayTimeout bounds a single relay attempt.
	DefaultRelayTimeout = 8 * time.Second
)

var (
	// ErrRelayStatus is returned when the relay answers with a non-2xx status.
	ErrRelayStatus = errors.New("notify: relay returned non-success status")
	// ErrRelayHostNotAllowed marks an override URL whose host is not allow-listed.
	ErrRelayHostNotAllowed = errors.New("notify: relay host not allowed")
)

var relayHosts = map[string]struct{}{
	"www.ridgelinepa.com":     {},
	"ridgelinepa.com":         {},
	"ridgelinepa.netlify.app": {},
	"localhost":               {},
}

var tracer = otel.Tracer("ridgeline.internal.notify")

// ResolveRelayURL returns the relay endpoint for the given base-URL override.
// An empty override yields the default. A non-empty override that fails the
// host allow-list also yields the default, together with ErrRelayHostNotAllowed
// so the caller can warn about it.
func ResolveRelayURL(override string) (string, error) {
	def := DefaultRelayBaseURL + RelayPath
	override = strings.TrimSpace(override)
	if override == "" {
		return def, nil
	}

	u, err := url.Parse(override)
	if err != nil || u.Host == "" || u.User != nil {
		return def, fmt.Errorf("%w: %q", ErrRelayHostNotAllowed, override)
	}

	host, err := canonicalHost(u.Hostname())
	if err != nil {
		return def, fmt.Errorf("%w: %q", ErrRelayHostNotAllowed, override)
	}
	if _, ok := relayHosts[host]; !ok {
		return def, fmt.Errorf("%w: %q", ErrRelayHostNotAllowed, host)
	}

	switch u.Scheme {
	case "https":
	case "http":
		if host != "localhost" {
			return def, fmt.Errorf("%w: plain http only for localhost", ErrRelayHostNotAllowed)
		}
	default:
		return def, fmt.Errorf("%w: scheme %q", ErrRelayHostNotAllowed, u.Scheme)
	}

	hostport := host
	if port := u.Port(); port != "" {
		hostport = host + ":" + port
	}
	return u.Scheme + "://" + hostport + RelayPath, nil
}

func canonicalHost(h string) (string, error) {
	h = strings.TrimSuffix(strings.ToLower(h), ".")
	if h == "" {
		return "", errors.New("empty host")
	}
	return idna.Lookup.ToASCII(h)
}

// RelayConfig configures a RelayNotifier.
type RelayConfig struct {
	BaseURLOverride string
	Timeout         time.Duration
	Client          *http.Client
}

// RelayNotifier posts submissions as JSON to the site's notification function.
type RelayNotifier struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	logger   *logging.Logger
}

type relayPayload struct {
	Type         string            `json:"type"`
	SubmissionID string            `json:"submissionId,omitempty"`
	Subject      string            `json:"subject"`
	Recipients   []string          `json:"recipients"`
	ReplyTo      string            `json:"replyTo,omitempty"`
	Data         map[string]string `json:"data"`
	Timestamp    string            `json:"timestamp"`
}

// NewRelayNotifier resolves the endpoint once and builds the notifier.
func NewRelayNotifier(cfg RelayConfig, logger *logging.Logger) *RelayNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	endpoint, err := ResolveRelayURL(cfg.BaseURLOverride)
	if err != nil {
		logger.Warn("ignoring relay base URL override", "error", err, "endpoint", endpoint)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRelayTimeout
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &RelayNotifier{
		endpoint: endpoint,
		timeout:  cfg.Timeout,
		client:   client,
		logger:   logger,
	}
}

// Endpoint reports the resolved relay URL.
func (r *RelayNotifier) Endpoint() string { return r.endpoint }

// Name implements Notifier.
func (r *RelayNotifier) Name() string { return "relay" }

// Notify sends one POST to the relay. There is no retry.
func (r *RelayNotifier) Notify(ctx context.Context, n Notification) error {
	ctx, span := tracer.Start(ctx, "notify.relay")
	defer span.End()
	span.SetAttributes(
		attribute.String("notify.form", n.Form),
		attribute.Int("notify.recipients", len(n.Recipients)),
	)

	err := r.send(ctx, n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "relay failed")
	}
	return err
}

func (r *RelayNotifier) send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(relayPayload{
		Type:         n.Form,
		SubmissionID: n.ID,
		Subject:      n.Subject,
		Recipients:   n.Recipients,
		ReplyTo:      n.ReplyTo,
		Data:         n.Data(),
		Timestamp:    n.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("notify: encode relay payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: relay request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: %d", ErrRelayStatus, resp.StatusCode)
	}
	r.logger.Debug("relay notification sent", "form", n.Form, "submission_id", n.ID, "status", resp.StatusCode)
	return nil
}

var _ Notifier = (*RelayNotifier)(nil)
