package assistant_tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxpilot/internal/assistant"
	"github.com/teemow/inboxpilot/internal/conversation"
	"github.com/teemow/inboxpilot/internal/gmail"
	"github.com/teemow/inboxpilot/internal/gmail/gmailtest"
	"github.com/teemow/inboxpilot/internal/relay"
	"github.com/teemow/inboxpilot/internal/server"
)

// scriptedGenerator streams fixed fragments and records the requests.
type scriptedGenerator struct {
	mu        sync.Mutex
	fragments []string
	err       error
	requests  []relay.GenerationRequest
}

func (g *scriptedGenerator) Generate(_ context.Context, req relay.GenerationRequest, sink relay.FragmentSink) error {
	g.mu.Lock()
	g.requests = append(g.requests, req)
	g.mu.Unlock()
	for _, f := range g.fragments {
		if err := sink.WriteFragment(f); err != nil {
			return err
		}
	}
	return g.err
}

type fixture struct {
	mcp   *mcpserver.MCPServer
	sc    *server.ServerContext
	gmail *gmailtest.Server
	gen   *scriptedGenerator
}

func newFixture(t *testing.T, readOnly bool) *fixture {
	t.Helper()

	gen := &scriptedGenerator{fragments: []string{"Bonjour", ", voici le résumé."}}
	sc, err := server.NewServerContext(context.Background(), server.Config{
		Dispatcher: assistant.NewDispatcher(gen),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sc.Shutdown() })

	fake := gmailtest.New(t)
	fake.AddEmail("m1", "Alice Martin <alice@example.com>", "Budget 2025", "<p>Voici le budget.</p>")
	fake.AddEmail("m2", "bob@example.com", "Réunion", "<p>On se voit mardi?</p>")
	sc.SetGmailClient("default", fake.Client(t))

	s := mcpserver.NewMCPServer("test", "test", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterTools(s, sc, readOnly))

	return &fixture{mcp: s, sc: sc, gmail: fake, gen: gen}
}

func (f *fixture) call(t *testing.T, tool string, args map[string]any) (*mcp.CallToolResult, string) {
	t.Helper()
	st, ok := f.mcp.ListTools()[tool]
	require.True(t, ok, "tool %s not registered", tool)

	var req mcp.CallToolRequest
	req.Params.Name = tool
	req.Params.Arguments = args

	result, err := st.Handler(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := mcp.AsTextContent(result.Content[0])
	require.True(t, ok)
	return result, text.Text
}

func TestRegisterTools(t *testing.T) {
	read := []string{"mailbox_list_messages", "mailbox_get_message", "assistant_switch_context", "assistant_conversation", "assistant_run"}
	write := []string{"mailbox_archive_messages", "mailbox_delete_messages"}

	readOnly := newFixture(t, true).mcp.ListTools()
	for _, name := range read {
		assert.Contains(t, readOnly, name)
	}
	for _, name := range write {
		assert.NotContains(t, readOnly, name)
	}

	all := newFixture(t, false).mcp.ListTools()
	for _, name := range append(read, write...) {
		assert.Contains(t, all, name)
	}
}

func TestListMessages(t *testing.T) {
	f := newFixture(t, true)

	result, text := f.call(t, "mailbox_list_messages", map[string]any{"senders": "alice@example.com"})
	require.False(t, result.IsError, text)

	var page gmail.MessagePage
	require.NoError(t, json.Unmarshal([]byte(text), &page))
	require.Len(t, page.Messages, 2)
	assert.Equal(t, "m1", page.Messages[0].ID)
	assert.Equal(t, "Alice Martin", page.Messages[0].Sender)
	assert.Equal(t, "Budget 2025", page.Messages[0].Subject)
}

func TestListMessages_Unauthorized(t *testing.T) {
	f := newFixture(t, true)
	f.gmail.FailWith(http.StatusUnauthorized)

	result, text := f.call(t, "mailbox_list_messages", nil)
	assert.True(t, result.IsError)
	assert.Contains(t, text, "expired or was revoked")
}

func TestGetMessage(t *testing.T) {
	f := newFixture(t, true)

	result, text := f.call(t, "mailbox_get_message", map[string]any{"id": "m2"})
	require.False(t, result.IsError, text)

	var email gmail.Email
	require.NoError(t, json.Unmarshal([]byte(text), &email))
	assert.Equal(t, "Réunion", email.Subject)
	assert.Equal(t, "<p>On se voit mardi?</p>", email.Body)

	result, _ = f.call(t, "mailbox_get_message", map[string]any{})
	assert.True(t, result.IsError)

	result, text = f.call(t, "mailbox_get_message", map[string]any{"id": "missing"})
	assert.True(t, result.IsError)
	assert.Contains(t, text, "Failed to get message")
}

func TestArchiveMessages(t *testing.T) {
	f := newFixture(t, false)

	result, text := f.call(t, "mailbox_archive_messages", map[string]any{"ids": []any{"m1", "nope"}})
	require.False(t, result.IsError, text)
	assert.Contains(t, text, `"successful": 1`)
	assert.Contains(t, text, `"failed": 1`)
	assert.Equal(t, []string{"m1"}, f.gmail.Archived())

	result, _ = f.call(t, "mailbox_archive_messages", map[string]any{"ids": []any{}})
	assert.True(t, result.IsError)
}

func TestDeleteMessages_DiscardsConversations(t *testing.T) {
	f := newFixture(t, false)

	store, err := f.sc.Store("default")
	require.NoError(t, err)
	store.SwitchContext(conversation.Context{Key: "m1"})

	result, text := f.call(t, "mailbox_delete_messages", map[string]any{"ids": "m1"})
	require.False(t, result.IsError, text)
	assert.Equal(t, "Deleted 1 messages", text)
	assert.Equal(t, []string{"m1"}, f.gmail.Deleted())

	_, ok := store.Get("m1")
	assert.False(t, ok)
	assert.Equal(t, conversation.GeneralKey, store.ActiveKey())
}

func TestSwitchContextAndConversation(t *testing.T) {
	f := newFixture(t, true)

	result, text := f.call(t, "assistant_switch_context", map[string]any{"key": "m1", "sender": "Alice", "subject": "Budget"})
	require.False(t, result.IsError, text)

	var snapshot conversation.Snapshot
	require.NoError(t, json.Unmarshal([]byte(text), &snapshot))
	assert.Equal(t, "m1", snapshot.Key)
	assert.True(t, snapshot.Active)
	require.Len(t, snapshot.Messages, 1)
	assert.Contains(t, snapshot.Messages[0].Text, "Alice")

	_, text = f.call(t, "assistant_conversation", nil)
	require.NoError(t, json.Unmarshal([]byte(text), &snapshot))
	assert.Equal(t, "m1", snapshot.Key)

	_, text = f.call(t, "assistant_conversation", map[string]any{"key": "general"})
	require.NoError(t, json.Unmarshal([]byte(text), &snapshot))
	assert.Equal(t, conversation.GeneralKey, snapshot.Key)
	assert.False(t, snapshot.Active)

	result, _ = f.call(t, "assistant_conversation", map[string]any{"key": "unknown"})
	assert.True(t, result.IsError)
}

func TestRun_SummaryOfOneEmail(t *testing.T) {
	f := newFixture(t, true)

	result, text := f.call(t, "assistant_run", map[string]any{"intent": "summary", "emailIds": []any{"m1"}})
	require.False(t, result.IsError, text)
	assert.Equal(t, "Bonjour, voici le résumé.", text)

	require.Len(t, f.gen.requests, 1)
	assert.Contains(t, f.gen.requests[0].Prompt, "Budget 2025")
	assert.Equal(t, "<p>Voici le budget.</p>", f.gen.requests[0].EmailContent)

	store, err := f.sc.Store("default")
	require.NoError(t, err)
	assert.Equal(t, "m1", store.ActiveKey())
	snapshot, ok := store.Snapshot("m1")
	require.True(t, ok)
	require.Len(t, snapshot.Messages, 2)
	assert.Equal(t, "Bonjour, voici le résumé.", snapshot.Messages[1].Text)
	assert.True(t, snapshot.Messages[1].Complete)
}

func TestRun_AskInGeneralConversation(t *testing.T) {
	f := newFixture(t, true)

	result, text := f.call(t, "assistant_run", map[string]any{"intent": "ask", "input": "Quels emails sont urgents?"})
	require.False(t, result.IsError, text)

	store, err := f.sc.Store("default")
	require.NoError(t, err)
	snapshot, _ := store.Snapshot(conversation.GeneralKey)
	require.Len(t, snapshot.Messages, 3)
	assert.Equal(t, conversation.RoleUser, snapshot.Messages[1].Role)
	assert.Equal(t, "Quels emails sont urgents?", snapshot.Messages[1].Text)
}

func TestRun_AskAboutOpenEmail(t *testing.T) {
	f := newFixture(t, true)

	result, text := f.call(t, "assistant_switch_context", map[string]any{"key": "m1", "sender": "Alice", "subject": "Budget"})
	require.False(t, result.IsError, text)

	result, text = f.call(t, "assistant_run", map[string]any{"intent": "ask", "input": "Qui paie?"})
	require.False(t, result.IsError, text)

	require.Len(t, f.gen.requests, 1)
	assert.Equal(t, "Qui paie?", f.gen.requests[0].Prompt)
	assert.Equal(t, "<p>Voici le budget.</p>", f.gen.requests[0].EmailContent)

	store, err := f.sc.Store("default")
	require.NoError(t, err)
	snapshot, ok := store.Snapshot("m1")
	require.True(t, ok)
	require.Len(t, snapshot.Messages, 3)
	assert.Equal(t, "Qui paie?", snapshot.Messages[1].Text)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want string
	}{
		{name: "unknown intent", args: map[string]any{"intent": "dance"}, want: "dance"},
		{name: "summary without emails", args: map[string]any{"intent": "summary"}, want: "emailIds"},
		{name: "ask without input", args: map[string]any{"intent": "ask"}, want: "invalid"},
		{name: "missing email", args: map[string]any{"intent": "summary", "emailIds": []any{"missing"}}, want: "Failed to fetch emails"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			result, text := f.call(t, "assistant_run", tt.args)
			assert.True(t, result.IsError)
			assert.Contains(t, strings.ToLower(text), strings.ToLower(tt.want))
			assert.Empty(t, f.gen.requests)
		})
	}
}

func TestRun_GenerationFailure(t *testing.T) {
	f := newFixture(t, true)
	f.gen.fragments = nil
	f.gen.err = &relay.UpstreamError{Err: errors.New("connection refused")}

	result, text := f.call(t, "assistant_run", map[string]any{"intent": "reply", "emailIds": []any{"m2"}})
	assert.True(t, result.IsError)
	assert.True(t, strings.HasPrefix(text, conversation.ErrorPrefix), text)
}

func TestRun_InterruptedKeepsPartialText(t *testing.T) {
	f := newFixture(t, true)
	f.gen.err = errors.New("connection reset")

	result, text := f.call(t, "assistant_run", map[string]any{"intent": "reply", "emailIds": []any{"m2"}})
	assert.True(t, result.IsError)
	assert.Contains(t, text, "Bonjour, voici le résumé.")
	assert.Contains(t, text, "connection reset")
}
