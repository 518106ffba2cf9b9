package ratelimit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

func TestAdminHandlerGetAndDelete(t *testing.T) {
	limiter, err := NewLimiter(NewMemoryStore(), 1, time.Hour)
	require.NoError(t, err)
	_, _ = limiter.Check(context.Background(), "lead_capture:10.0.0.1")
	_, _ = limiter.Check(context.Background(), "lead_capture:10.0.0.1")

	router := NewAdminHandler(limiter, logging.Discard()).Routes()

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lead_capture:10.0.0.1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var status StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.Equal(t, 2, status.Count)
	assert.True(t, status.Blocked)
	assert.NotNil(t, status.ResetAt)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/lead_capture:10.0.0.1", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/lead_capture:10.0.0.1", nil))
	var cleared StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&cleared))
	assert.Equal(t, 0, cleared.Count)
	assert.False(t, cleared.Blocked)
	assert.Nil(t, cleared.ResetAt)
}
