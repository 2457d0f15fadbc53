package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestNew(t *testing.T) {
	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		New(&buf, slog.LevelInfo, FormatJSON).Info("hello", "k", "v")

		var entry map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
		assert.Equal(t, "hello", entry["msg"])
		assert.Equal(t, "v", entry["k"])
	})

	t.Run("text", func(t *testing.T) {
		var buf bytes.Buffer
		New(&buf, slog.LevelInfo, "TEXT").Info("hello")
		assert.Contains(t, buf.String(), "msg=hello")
	})

	t.Run("level filters", func(t *testing.T) {
		var buf bytes.Buffer
		New(&buf, slog.LevelWarn, FormatJSON).Info("hidden")
		assert.Zero(t, buf.Len())
	})
}

func TestContextLogger(t *testing.T) {
	fallback := slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil))
	assert.Same(t, fallback, FromContext(context.Background(), fallback))
	assert.Same(t, slog.Default(), FromContext(context.Background(), nil))

	scoped := fallback.With(KeyRequestID, "req-1")
	ctx := WithContext(context.Background(), scoped)
	assert.Same(t, scoped, FromContext(ctx, fallback))
}
