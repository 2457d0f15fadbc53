package relay

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveGenerate(t *testing.T, upstreamURL, body string) *httptest.ResponseRecorder {
	t.Helper()

	h := NewHandler(New(Config{Endpoint: upstreamURL}), nil)
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHandler_Streams(t *testing.T) {
	srv, _ := ndjsonUpstream(t,
		`{"message":{"content":"Voici"}}`+"\n",
		`{"message":{"content":" la réponse"}}`+"\n",
		`{"done":true}`+"\n",
	)

	rec := serveGenerate(t, srv.URL, `{"prompt":"hi"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentTypeText, rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-transform", rec.Header().Get("Cache-Control"))
	assert.Equal(t, "Voici la réponse", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestHandler_EmptyStreamIsStill200(t *testing.T) {
	srv, _ := ndjsonUpstream(t, `{"done":true}`+"\n")

	rec := serveGenerate(t, srv.URL, `{"emailContent":"body text"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ContentTypeText, rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Body.String())
}

func TestHandler_Errors(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, "loading model")
	}))
	defer failing.Close()

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantError  string
		check      func(t *testing.T, out map[string]any)
	}{
		{
			name:       "missing prompt and content",
			body:       `{}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing prompt or emailContent",
		},
		{
			name:       "attachments alone",
			body:       `{"attachments":[{"filename":"a.png","data":"AAAA"}]}`,
			wantStatus: http.StatusBadRequest,
			wantError:  "Missing prompt or emailContent",
		},
		{
			name:       "malformed json",
			body:       `{"prompt":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid JSON body",
		},
		{
			name:       "upstream failure",
			body:       `{"prompt":"hi"}`,
			wantStatus: http.StatusBadGateway,
			wantError:  "Ollama error",
			check: func(t *testing.T, out map[string]any) {
				assert.Equal(t, float64(http.StatusServiceUnavailable), out["status"])
				assert.Equal(t, "loading model", out["details"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serveGenerate(t, failing.URL, tt.body)
			assert.Equal(t, tt.wantStatus, rec.Code)
			out := decodeJSON(t, rec)
			assert.Equal(t, tt.wantError, out["error"])
			if tt.check != nil {
				tt.check(t, out)
			}
		})
	}
}

func TestHandler_PassthroughKeepsContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-custom")
	}))
	defer srv.Close()

	rec := serveGenerate(t, srv.URL, `{"prompt":"hi"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-custom", rec.Header().Get("Content-Type"))
	assert.Empty(t, rec.Body.String())
}

func TestHandler_BodyTooLarge(t *testing.T) {
	h := NewHandler(New(Config{}), nil)
	req := httptest.NewRequest(http.MethodPost, "/generate", strings.NewReader(`{"prompt":"`+strings.Repeat("a", 64)+`"}`))
	rec := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(rec, req.Body, 16)

	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
