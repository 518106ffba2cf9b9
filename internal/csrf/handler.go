package csrf

import (
	"net/http"
	"time"

	"github.com/wolfman30/ridgeline-site/internal/apierr"
	"github.com/wolfman30/ridgeline-site/internal/observability/metrics"
	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

// TokenResponse is the body of GET /csrf-token.
type TokenResponse struct {
	Token      string `json:"token"`
	Expiration string `json:"expiration"`
	ExpiresAt  int64  `json:"expiresAt"`
}

// Handler serves freshly issued tokens.
type Handler struct {
	svc     *Service
	logger  *logging.Logger
	metrics *metrics.SiteMetrics
}

// NewHandler creates a token issuing handler.
func NewHandler(svc *Service, logger *logging.Logger, m *metrics.SiteMetrics) *Handler {
	if svc == nil {
		panic("csrf: service cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{svc: svc, logger: logger, metrics: m}
}

// ServeHTTP handles GET /csrf-token.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.Write(w, apierr.MethodNotAllowed(http.MethodGet))
		return
	}

	tok, err := h.svc.Issue()
	if err != nil {
		h.logger.Error("failed to issue csrf token", "error", err)
		apierr.Write(w, apierr.Unexpected(err))
		return
	}

	h.metrics.ObserveCSRFIssued()

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")
	apierr.WriteJSON(w, http.StatusOK, TokenResponse{
		Token:      tok.String(),
		Expiration: tok.Expiration.UTC().Format(time.RFC3339),
		ExpiresAt:  tok.Expiration.UnixMilli(),
	})
}
