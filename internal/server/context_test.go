package server

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxpilot/internal/assistant"
	"github.com/teemow/inboxpilot/internal/relay"
)

type nopGenerator struct{}

func (nopGenerator) Generate(context.Context, relay.GenerationRequest, relay.FragmentSink) error {
	return nil
}

type staticAuth struct {
	calls int
}

func (a *staticAuth) HTTPClient(context.Context, string) *http.Client {
	a.calls++
	return http.DefaultClient
}

func newTestServerContext(t *testing.T) *ServerContext {
	t.Helper()
	sc, err := NewServerContext(context.Background(), Config{
		Auth:       &staticAuth{},
		Dispatcher: assistant.NewDispatcher(nopGenerator{}),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })
	return sc
}

func TestNewServerContext_RequiresDispatcher(t *testing.T) {
	_, err := NewServerContext(context.Background(), Config{})
	assert.Error(t, err)
}

func TestServerContext_StorePerSession(t *testing.T) {
	sc := newTestServerContext(t)

	a1, err := sc.Store("a")
	require.NoError(t, err)
	a2, err := sc.Store("a")
	require.NoError(t, err)
	b, err := sc.Store("b")
	require.NoError(t, err)

	assert.Same(t, a1, a2)
	assert.NotSame(t, a1, b)
	assert.Equal(t, 2, sc.SessionCount())
}

func TestServerContext_GmailClientCached(t *testing.T) {
	auth := &staticAuth{}
	sc, err := NewServerContext(context.Background(), Config{
		Auth:       auth,
		Dispatcher: assistant.NewDispatcher(nopGenerator{}),
	})
	require.NoError(t, err)
	defer func() { _ = sc.Shutdown() }()

	c1, err := sc.GmailClient("a")
	require.NoError(t, err)
	c2, err := sc.GmailClient("a")
	require.NoError(t, err)

	assert.Same(t, c1, c2)
	assert.Equal(t, 1, auth.calls)
}

func TestServerContext_GmailClientWithoutAuth(t *testing.T) {
	sc, err := NewServerContext(context.Background(), Config{Dispatcher: assistant.NewDispatcher(nopGenerator{})})
	require.NoError(t, err)
	defer func() { _ = sc.Shutdown() }()

	_, err = sc.GmailClient("a")
	assert.Error(t, err)
}

func TestServerContext_EndSession(t *testing.T) {
	sc := newTestServerContext(t)

	before, err := sc.Store("a")
	require.NoError(t, err)
	before.AppendUserMessage("hello")

	sc.EndSession("a")
	sc.EndSession("a")
	assert.Equal(t, 0, sc.SessionCount())

	after, err := sc.Store("a")
	require.NoError(t, err)
	assert.NotSame(t, before, after)
	assert.Equal(t, 1, after.Active().Len())
}

func TestServerContext_ExpireIdle(t *testing.T) {
	sc := newTestServerContext(t)

	_, err := sc.Store("idle")
	require.NoError(t, err)
	_, err = sc.Store("busy")
	require.NoError(t, err)

	sc.mu.Lock()
	sc.sessions["idle"].lastAccess = time.Now().Add(-2 * DefaultSessionTimeout)
	sc.mu.Unlock()

	assert.Equal(t, 1, sc.expireIdle(time.Now()))
	assert.Equal(t, 1, sc.SessionCount())

	_, err = sc.Store("busy")
	require.NoError(t, err)
}

func TestServerContext_Shutdown(t *testing.T) {
	sc := newTestServerContext(t)
	_, err := sc.Store("a")
	require.NoError(t, err)

	require.NoError(t, sc.Shutdown())
	require.NoError(t, sc.Shutdown())

	assert.True(t, sc.IsShutdown())
	assert.Equal(t, 0, sc.SessionCount())
	assert.Error(t, sc.Context().Err())

	_, err = sc.Store("a")
	assert.ErrorIs(t, err, ErrShutdown)
	_, err = sc.GmailClient("a")
	assert.ErrorIs(t, err, ErrShutdown)
}
