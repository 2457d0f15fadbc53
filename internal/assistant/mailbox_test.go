package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxpilot/internal/conversation"
	"github.com/teemow/inboxpilot/internal/gmail"
)

type getterFunc func(ctx context.Context, id string) (*gmail.Email, error)

func (f getterFunc) GetMessage(ctx context.Context, id string) (*gmail.Email, error) {
	return f(ctx, id)
}

func TestFromMailbox(t *testing.T) {
	e := FromMailbox(&gmail.Email{
		ID:      "m1",
		Subject: "Budget",
		From:    "Alice Martin <alice@example.com>",
		Body:    "<p>Hello</p>",
		Attachments: []gmail.Attachment{
			{Filename: "scan.png", MimeType: "image/png", Size: 3, Data: "AAAA"},
		},
	})

	assert.Equal(t, "m1", e.ID)
	assert.Equal(t, "Alice Martin", e.Sender)
	assert.Equal(t, "Budget", e.Subject)
	assert.Equal(t, "<p>Hello</p>", e.Content)
	require.Len(t, e.Attachments, 1)
	assert.Equal(t, "scan.png", e.Attachments[0].Filename)
	assert.Equal(t, "AAAA", e.Attachments[0].Data)
}

func TestFetchEmails_PreservesOrder(t *testing.T) {
	delays := map[string]time.Duration{"a": 30 * time.Millisecond, "b": 0, "c": 10 * time.Millisecond}
	getter := getterFunc(func(ctx context.Context, id string) (*gmail.Email, error) {
		time.Sleep(delays[id])
		return &gmail.Email{ID: id, Subject: "s-" + id}, nil
	})

	emails, err := FetchEmails(context.Background(), getter, []string{"a", "b", "c"})
	require.NoError(t, err)

	require.Len(t, emails, 3)
	for i, id := range []string{"a", "b", "c"} {
		assert.Equal(t, id, emails[i].ID)
		assert.Equal(t, "s-"+id, emails[i].Subject)
	}
}

func TestFetchEmails_Failure(t *testing.T) {
	boom := errors.New("not found")
	getter := getterFunc(func(ctx context.Context, id string) (*gmail.Email, error) {
		if id == "bad" {
			return nil, boom
		}
		return &gmail.Email{ID: id}, nil
	})

	_, err := FetchEmails(context.Background(), getter, []string{"ok", "bad"})
	require.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "bad")
}

func TestNewAction(t *testing.T) {
	one := []Email{{ID: "m1"}}

	ask := NewAction(IntentAsk, one, "Qui?")
	require.NotNil(t, ask.Open)
	assert.Equal(t, "m1", ask.Open.ID)
	assert.Equal(t, "m1", ask.ContextKey())

	general := NewAction(IntentAsk, nil, "Bonjour")
	assert.Nil(t, general.Open)
	assert.Empty(t, general.ContextKey())

	summary := NewAction(IntentSummary, one, "")
	assert.Nil(t, summary.Open)
	assert.Equal(t, "Qui?", ask.Input)
}

func TestEmailIDsFor(t *testing.T) {
	tests := []struct {
		name      string
		intent    Intent
		ids       []string
		activeKey string
		want      []string
	}{
		{name: "explicit ids win", intent: IntentAsk, ids: []string{"m2"}, activeKey: "m1", want: []string{"m2"}},
		{name: "ask reads the open email", intent: IntentAsk, activeKey: "m1", want: []string{"m1"}},
		{name: "ask in the general conversation", intent: IntentAsk, activeKey: conversation.GeneralKey},
		{name: "ask without active key", intent: IntentAsk},
		{name: "summary never guesses", intent: IntentSummary, activeKey: "m1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, EmailIDsFor(tt.intent, tt.ids, tt.activeKey))
		})
	}
}
