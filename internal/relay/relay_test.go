package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxpilot/internal/stream"
)

// ndjsonUpstream streams the given lines, flushing after each one, and
// records the decoded request body.
func ndjsonUpstream(t *testing.T, lines ...string) (*httptest.Server, *chatRequest) {
	t.Helper()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/x-ndjson")
		for _, line := range lines {
			_, _ = io.WriteString(w, line)
			w.(http.Flusher).Flush()
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

type collectSink struct {
	mu    sync.Mutex
	parts []string
	err   error
}

func (c *collectSink) WriteFragment(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.parts = append(c.parts, text)
	return nil
}

func (c *collectSink) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return strings.Join(c.parts, "")
}

func TestGenerationRequest(t *testing.T) {
	tests := []struct {
		name        string
		req         GenerationRequest
		wantErr     bool
		wantContent string
	}{
		{name: "empty", req: GenerationRequest{}, wantErr: true},
		{name: "attachments only", req: GenerationRequest{Attachments: []Attachment{{Data: "AAAA"}}}, wantErr: true},
		{name: "prompt only", req: GenerationRequest{Prompt: "hi"}, wantContent: "hi"},
		{name: "email only", req: GenerationRequest{EmailContent: "body text"}, wantContent: "body text"},
		{name: "both", req: GenerationRequest{Prompt: " Résume ", EmailContent: "corps\n"}, wantContent: "Résume \n\ncorps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				var badReq *BadRequestError
				require.ErrorAs(t, err, &badReq)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantContent, tt.req.Content())
		})
	}
}

func TestRelay_Generate(t *testing.T) {
	srv, got := ndjsonUpstream(t,
		`{"model":"m","message":{"role":"assistant","content":"Bonjour"},"done":false}`+"\n",
		`{"model":"m","message":{"role":"assistant","content":" le "},"done":false}`+"\n{\"message\":{\"content\":\"mo",
		`nde"},"done":false}`+"\n",
		`{"model":"m","message":{"role":"assistant","content":""},"done":true}`+"\n",
	)

	r := New(Config{Endpoint: srv.URL, Model: "test-model"})
	sink := &collectSink{}
	err := r.Generate(context.Background(), GenerationRequest{
		Prompt:       "Résume cet email",
		EmailContent: "Réunion demain",
		Attachments:  []Attachment{{Filename: "a.png", Data: "iVBORw0"}},
	}, sink)
	require.NoError(t, err)

	assert.Equal(t, "Bonjour le monde", sink.String())
	assert.Equal(t, []string{"Bonjour", " le ", "monde"}, sink.parts)

	assert.Equal(t, "test-model", got.Model)
	assert.True(t, got.Stream)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "user", got.Messages[0].Role)
	assert.Equal(t, "Résume cet email\n\nRéunion demain", got.Messages[0].Content)
	assert.Equal(t, []Attachment{{Filename: "a.png", Data: "iVBORw0"}}, got.Images)
}

func TestRelay_OmitsImagesWithoutAttachments(t *testing.T) {
	var raw map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
		_, _ = io.WriteString(w, `{"text":"ok"}`)
	}))
	defer srv.Close()

	sink := &collectSink{}
	require.NoError(t, New(Config{Endpoint: srv.URL}).Generate(context.Background(), GenerationRequest{Prompt: "p"}, sink))
	assert.Equal(t, "ok", sink.String())
	assert.NotContains(t, raw, "images")
	assert.Equal(t, DefaultModel, raw["model"])
}

func TestRelay_PassesThroughNonJSONLines(t *testing.T) {
	srv, _ := ndjsonUpstream(t, "ligne un\r\n", "\n  \n", "ligne deux")

	sink := &collectSink{}
	require.NoError(t, New(Config{Endpoint: srv.URL}).Generate(context.Background(), GenerationRequest{Prompt: "p"}, sink))
	assert.Equal(t, "ligne un\nligne deux", sink.String())
}

func TestRelay_BadRequestNeverCallsUpstream(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer srv.Close()

	err := New(Config{Endpoint: srv.URL}).Generate(context.Background(), GenerationRequest{}, &collectSink{})
	var badReq *BadRequestError
	require.ErrorAs(t, err, &badReq)
	assert.False(t, called)
}

func TestRelay_UpstreamStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	sink := &collectSink{}
	err := New(Config{Endpoint: srv.URL}).Generate(context.Background(), GenerationRequest{Prompt: "p"}, sink)

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusNotFound, upstream.Status)
	assert.Contains(t, upstream.Details(), "model not found")
	assert.Empty(t, sink.parts)
}

func TestRelay_UpstreamUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	endpoint := srv.URL
	srv.Close()

	err := New(Config{Endpoint: endpoint}).Generate(context.Background(), GenerationRequest{Prompt: "p"}, &collectSink{})

	var upstream *UpstreamError
	require.ErrorAs(t, err, &upstream)
	assert.Zero(t, upstream.Status)
	assert.NotEmpty(t, upstream.Details())
	assert.Contains(t, upstream.Error(), "unreachable")
}

func TestRelay_TransportFailureEndsWithMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":{"content":"début"}}`+"\n")
		w.(http.Flusher).Flush()

		conn, _, err := w.(http.Hijacker).Hijack()
		require.NoError(t, err)
		_ = conn.Close()
	}))
	defer srv.Close()

	sink := &collectSink{}
	err := New(Config{Endpoint: srv.URL}).Generate(context.Background(), GenerationRequest{Prompt: "p"}, sink)
	require.NoError(t, err)
	assert.Equal(t, "début"+stream.FailureMarker, sink.String())
}

func TestRelay_TimeoutEndsWithMarker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"message":{"content":"lent"}}`+"\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	sink := &collectSink{}
	r := New(Config{Endpoint: srv.URL, Timeout: 100 * time.Millisecond})
	require.NoError(t, r.Generate(context.Background(), GenerationRequest{Prompt: "p"}, sink))
	assert.Equal(t, "lent"+stream.FailureMarker, sink.String())
}

func TestRelay_SinkErrorAbandonsStream(t *testing.T) {
	srv, _ := ndjsonUpstream(t, `{"text":"a"}`+"\n", `{"text":"b"}`+"\n")

	gone := errors.New("client gone")
	err := New(Config{Endpoint: srv.URL}).Generate(context.Background(), GenerationRequest{Prompt: "p"}, &collectSink{err: gone})
	assert.ErrorIs(t, err, gone)
}

func TestRelay_PassthroughWithoutBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-custom")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	resp, err := New(Config{Endpoint: srv.URL}).Open(context.Background(), GenerationRequest{Prompt: "p"})
	require.NoError(t, err)
	defer resp.Close()

	assert.True(t, resp.Passthrough())
	assert.Equal(t, "application/x-custom", resp.ContentType())

	var sb strings.Builder
	require.NoError(t, resp.Forward(&sb))
	assert.Empty(t, sb.String())
}

func TestTee(t *testing.T) {
	a, b := &collectSink{}, &collectSink{}
	sink := Tee(a, nil, b)
	require.NoError(t, sink.WriteFragment("x"))
	assert.Equal(t, "x", a.String())
	assert.Equal(t, "x", b.String())

	failing := &collectSink{err: errors.New("nope")}
	after := &collectSink{}
	assert.Error(t, Tee(failing, after).WriteFragment("y"))
	assert.Empty(t, after.parts)
}

func TestRelay_Ping(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = io.WriteString(w, "Ollama is running")
	}))
	defer srv.Close()

	r := New(Config{Endpoint: srv.URL + "/api/chat"})
	require.NoError(t, r.Ping(context.Background()))
	assert.Equal(t, "/", path)

	srv.Close()
	err := r.Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upstream unreachable")
}
