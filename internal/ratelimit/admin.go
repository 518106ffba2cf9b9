package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/ridgeline-site/internal/apierr"
	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

// AdminHandler lets operators inspect and clear counters, e.g. to unblock
// a client after an incident.
type AdminHandler struct {
	limiter *Limiter
	logger  *logging.Logger
}

// NewAdminHandler creates an admin handler.
func NewAdminHandler(limiter *Limiter, logger *logging.Logger) *AdminHandler {
	if limiter == nil {
		panic("ratelimit: limiter cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdminHandler{limiter: limiter, logger: logger}
}

// StatusResponse describes one counter.
type StatusResponse struct {
	Key       string     `json:"key"`
	Count     int        `json:"count"`
	Limit     int        `json:"limit"`
	Remaining int        `json:"remaining"`
	Blocked   bool       `json:"blocked"`
	ResetAt   *time.Time `json:"reset_at,omitempty"`
}

// Routes mounts GET and DELETE /{key}.
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{key}", h.Get)
	r.Delete("/{key}", h.Delete)
	return r
}

// Get handles GET /admin/rate-limits/{key}.
func (h *AdminHandler) Get(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		apierr.Write(w, apierr.Validation("key", "missing key"))
		return
	}
	dec, err := h.limiter.Peek(r.Context(), key)
	if err != nil {
		h.logger.Error("failed to read rate limit", "error", err, "key", key)
		apierr.Write(w, apierr.Unexpected(err))
		return
	}
	resp := StatusResponse{
		Key:       key,
		Count:     dec.Count,
		Limit:     dec.Limit,
		Remaining: dec.Remaining,
		Blocked:   !dec.Allowed,
	}
	if !dec.ResetAt.IsZero() {
		resetAt := dec.ResetAt.UTC()
		resp.ResetAt = &resetAt
	}
	apierr.WriteJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /admin/rate-limits/{key}.
func (h *AdminHandler) Delete(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		apierr.Write(w, apierr.Validation("key", "missing key"))
		return
	}
	if err := h.limiter.Reset(r.Context(), key); err != nil {
		h.logger.Error("failed to reset rate limit", "error", err, "key", key)
		apierr.Write(w, apierr.Unexpected(err))
		return
	}
	h.logger.Info("rate limit reset", "key", key)
	w.WriteHeader(http.StatusNoContent)
}
