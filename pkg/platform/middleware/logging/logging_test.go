package logging

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"semear/internal/platform/logger"
	"semear/pkg/platform/middleware/metadata"
	"semear/pkg/platform/middleware/requestid"
)

func TestMiddlewareLevelFollowsStatus(t *testing.T) {
	tests := []struct {
		status int
		level  string
	}{
		{http.StatusCreated, "INFO"},
		{http.StatusNotFound, "WARN"},
		{http.StatusServiceUnavailable, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			var buf bytes.Buffer
			handler := requestid.Middleware(metadata.ClientMetadata(Middleware(logger.NewWithWriter(&buf, "debug"))(
				http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
					w.WriteHeader(tt.status)
				}),
			)))

			req := httptest.NewRequest(http.MethodPost, "/api/credentials", nil)
			req.Header.Set("User-Agent", "Mozilla/5.0 (Linux; Android 13; Pixel 7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36")
			req.RemoteAddr = "192.0.2.10:4000"
			handler.ServeHTTP(httptest.NewRecorder(), req)

			var line map[string]any
			require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
			assert.Equal(t, tt.level, line["level"])
			assert.Equal(t, "http request", line["msg"])
			assert.Equal(t, "/api/credentials", line["path"])
			assert.EqualValues(t, tt.status, line["status"])
			assert.Equal(t, "192.0.2.10", line["ip"])
			assert.Equal(t, true, line["mobile"])
			assert.NotEmpty(t, line["request_id"])
		})
	}
}

func TestMiddlewareDefaultsToOK(t *testing.T) {
	var buf bytes.Buffer
	handler := Middleware(logger.NewWithWriter(&buf, "info"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/health", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.EqualValues(t, http.StatusOK, line["status"])
}
