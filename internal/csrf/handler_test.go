package csrf

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/ridgeline-site/pkg/logging"
)

func TestHandlerIssuesToken(t *testing.T) {
	svc, err := NewService([]byte("handler-secret"))
	require.NoError(t, err)
	h := NewHandler(svc, logging.Discard(), nil)

	var tokens []string
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/csrf-token", nil))

		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "no-store", rec.Header().Get("Cache-Control"))

		var body TokenResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		require.NotEmpty(t, body.Token)
		exp, err := time.Parse(time.RFC3339, body.Expiration)
		require.NoError(t, err)
		assert.WithinDuration(t, time.Now().Add(DefaultTTL), exp, time.Minute)
		assert.NoError(t, svc.Validate(body.Token))
		tokens = append(tokens, body.Token)
	}
	assert.NotEqual(t, tokens[0], tokens[1])
}

func TestHandlerRejectsPost(t *testing.T) {
	svc, err := NewService([]byte("handler-secret"))
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	NewHandler(svc, nil, nil).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/csrf-token", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, http.MethodGet, rec.Header().Get("Allow"))
}
