package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func captureLog(t *testing.T, h http.Handler, target string) map[string]interface{} {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	SecureLogger(logger, nil)(h).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, target, nil))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	return entry
}

func TestSecureLogger_RedactsSensitiveQuery(t *testing.T) {
	entry := captureLog(t, okHandler(), "/admin/security/attempts?key=egk_secret&limit=5")

	assert.Equal(t, "/admin/security/attempts?[REDACTED]", entry["path"])
	assert.NotContains(t, entry["path"], "egk_secret")
}

func TestSecureLogger_KeepsPlainQuery(t *testing.T) {
	entry := captureLog(t, okHandler(), "/admin/security/events?type=blocked")

	assert.Equal(t, "/admin/security/events?type=blocked", entry["path"])
	assert.Equal(t, "INFO", entry["level"])
}

func TestSecureLogger_LevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusTooManyRequests, "WARN"},
		{http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		entry := captureLog(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(AttemptIDHeader, "attempt-1")
			w.WriteHeader(tt.status)
		}), "/devices/register")

		assert.Equal(t, tt.level, entry["level"])
		assert.Equal(t, float64(tt.status), entry["status"])
		assert.Equal(t, "attempt-1", entry["attempt_id"])
	}
}
