package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, h http.Handler) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return rec.Code, body
}

func TestHealthChecker_Liveness(t *testing.T) {
	h := NewHealthChecker(nil)
	h.SetReady(false)

	code, body := serve(t, h.LivenessHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
}

func TestHealthChecker_Readiness(t *testing.T) {
	tests := []struct {
		name       string
		ready      bool
		upstream   error
		wantCode   int
		wantChecks map[string]any
	}{
		{
			name:     "all ok",
			ready:    true,
			wantCode: http.StatusOK,
			wantChecks: map[string]any{
				"ready": "ok", "shutdown": "ok", "upstream": "ok",
			},
		},
		{
			name:     "not ready",
			ready:    false,
			wantCode: http.StatusServiceUnavailable,
			wantChecks: map[string]any{
				"ready": "not ready", "shutdown": "ok", "upstream": "ok",
			},
		},
		{
			name:     "upstream down",
			ready:    true,
			upstream: errors.New("upstream unreachable"),
			wantCode: http.StatusServiceUnavailable,
			wantChecks: map[string]any{
				"ready": "ok", "shutdown": "ok", "upstream": "upstream unreachable",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHealthChecker(nil)
			h.SetReady(tt.ready)
			h.AddCheck("upstream", func(context.Context) error { return tt.upstream })

			code, body := serve(t, h.ReadinessHandler())
			assert.Equal(t, tt.wantCode, code)
			assert.Equal(t, tt.wantChecks, body["checks"])
		})
	}
}

func TestHealthChecker_ShuttingDown(t *testing.T) {
	sc := newTestServerContext(t)
	h := NewHealthChecker(sc)
	require.NoError(t, sc.Shutdown())

	code, body := serve(t, h.ReadinessHandler())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "shutting down", body["checks"].(map[string]any)["shutdown"])

	code, body = serve(t, h.DetailedHealthHandler())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "shutting down", body["status"])
}

func TestHealthChecker_Detailed(t *testing.T) {
	sc := newTestServerContext(t)
	_, err := sc.Store("session-1")
	require.NoError(t, err)

	code, body := serve(t, NewHealthChecker(sc).DetailedHealthHandler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(1), body["sessions"])
	assert.NotEmpty(t, body["uptime"])
}

func TestHealthChecker_Register(t *testing.T) {
	mux := http.NewServeMux()
	NewHealthChecker(nil).RegisterHealthEndpoints(mux)

	for _, path := range []string{"/healthz", "/readyz", "/healthz/detailed"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
