// Package forms implements the contact and lead-capture endpoints.
package forms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/ridgeline-site/internal/apierr"
	"github.com/wolfman30/ridgeline-site/internal/csrf"
	"github.com/wolfman30/ridgeline-site/internal/notify"
	"github.com/wolfman30/ridgeline-site/internal/observability/metrics"
	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

// MaxBodyBytes caps the size of a form submission.
const MaxBodyBytes = 64 << 10

const (
	contactThanks = "Thank you for reaching out. A member of our team will be in touch shortly."
	leadThanks    = "Thank you! Your guide is ready to download."
)

var tracer = otel.Tracer("ridgeline.internal.forms")

// Config wires the form handlers to their collaborators.
type Config struct {
	Notifier   notify.Notifier
	CSRF       *csrf.Service
	Recipients []string
	Logger     *logging.Logger
	Metrics    *metrics.SiteMetrics
	Now        func() time.Time
}

// Handler handles HTTP requests for the site forms
type Handler struct {
	notifier   notify.Notifier
	csrf       *csrf.Service
	recipients []string
	logger     *logging.Logger
	metrics    *metrics.SiteMetrics
	now        func() time.Time
}

// NewHandler creates a new forms handler
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Notifier == nil {
		return nil, errors.New("forms: notifier is required")
	}
	if cfg.CSRF == nil {
		return nil, errors.New("forms: csrf service is required")
	}
	if len(cfg.Recipients) == 0 {
		return nil, errors.New("forms: at least one notification recipient is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Handler{
		notifier:   cfg.Notifier,
		csrf:       cfg.CSRF,
		recipients: cfg.Recipients,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
		now:        cfg.Now,
	}, nil
}

// Contact handles POST /contact requests
func (h *Handler) Contact(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.reject(w, FormContact, apierr.MethodNotAllowed(http.MethodPost))
		return
	}

	var req ContactRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.logger.Warn("failed to decode contact request", "error", err)
		h.reject(w, FormContact, ErrInvalidBody)
		return
	}
	if err := req.Validate(); err != nil {
		h.reject(w, FormContact, err)
		return
	}

	sub := NewContactSubmission(uuid.NewString(), req, h.now())
	h.deliver(r.Context(), sub)

	h.metrics.ObserveSubmission(FormContact, "accepted")
	apierr.WriteJSON(w, http.StatusOK, Response{
		Message: contactThanks,
		Data: ContactData{
			Name:         sub.Name,
			Email:        sub.Email,
			PracticeArea: sub.Category,
			Timestamp:    sub.Timestamp.Format(time.RFC3339),
		},
	})
}

// LeadCapture handles POST /lead-capture requests
func (h *Handler) LeadCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.reject(w, FormLead, apierr.MethodNotAllowed(http.MethodPost))
		return
	}

	var req LeadRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.logger.Warn("failed to decode lead request", "error", err)
		h.reject(w, FormLead, ErrInvalidBody)
		return
	}

	if err := h.checkCSRF(r, req.CSRFToken); err != nil {
		h.logger.Warn("lead capture csrf rejected", "error", err)
		h.reject(w, FormLead, apierr.Authorization(ErrInvalidCSRF.Message, err))
		return
	}
	if err := req.Validate(); err != nil {
		h.reject(w, FormLead, err)
		return
	}

	sub := NewLeadSubmission(uuid.NewString(), req, h.now())
	h.deliver(r.Context(), sub)

	h.metrics.ObserveSubmission(FormLead, "accepted")
	apierr.WriteJSON(w, http.StatusOK, Response{
		Message: leadThanks,
		Data: LeadData{
			Name:            sub.Name,
			Email:           sub.Email,
			Industry:        sub.Category,
			DownloadedGuide: sub.DownloadedGuide,
			Timestamp:       sub.Timestamp.Format(time.RFC3339),
		},
	})
}

func (h *Handler) checkCSRF(r *http.Request, bodyToken string) error {
	_, span := tracer.Start(r.Context(), "forms.csrf")
	defer span.End()

	token := csrf.TokenFromRequest(r, bodyToken)
	err := h.csrf.Validate(token)
	span.SetAttributes(attribute.Bool("csrf.valid", err == nil))
	return err
}

// deliver hands the submission to the notifier. Failures are logged and
// counted but never reach the submitter.
func (h *Handler) deliver(ctx context.Context, sub Submission) {
	ctx, span := tracer.Start(context.WithoutCancel(ctx), "forms.deliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("form", sub.Form),
		attribute.String("submission.id", sub.ID),
		attribute.String("notify.provider", h.notifier.Name()),
	)

	start := time.Now()
	err := h.notifier.Notify(ctx, sub.Notification(h.recipients))
	h.metrics.ObserveUpstreamLatency(h.notifier.Name(), time.Since(start).Seconds())
	h.metrics.ObserveDelivery(h.notifier.Name(), err == nil)
	if err != nil {
		span.RecordError(err)
		h.logger.Error("notification delivery failed", "error", err, "form", sub.Form, "submission_id", sub.ID, "provider", h.notifier.Name())
		return
	}
	h.logger.Info("form submission relayed", "form", sub.Form, "submission_id", sub.ID, "provider", h.notifier.Name())
}

func (h *Handler) reject(w http.ResponseWriter, form string, err error) {
	apiErr := apierr.From(err)
	h.metrics.ObserveSubmission(form, apiErr.Kind.String())
	apierr.Write(w, apiErr)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return fmt.Errorf("decode: %w", err)
	}
	if dec.More() {
		return errors.New("trailing data after JSON object")
	}
	return nil
}
