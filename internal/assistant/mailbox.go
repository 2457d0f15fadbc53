package assistant

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxpilot/internal/conversation"
	"github.com/teemow/inboxpilot/internal/gmail"
	"github.com/teemow/inboxpilot/internal/relay"
)

// maxParallelFetches bounds concurrent message fetches for one action.
const maxParallelFetches = 5

// MessageGetter fetches one message in full. *gmail.Client implements it.
type MessageGetter interface {
	GetMessage(ctx context.Context, id string) (*gmail.Email, error)
}

// FromMailbox converts a fetched message into the email an action works on.
func FromMailbox(m *gmail.Email) Email {
	e := Email{
		ID:      m.ID,
		Sender:  gmail.SenderName(m.From),
		Subject: m.Subject,
		Content: m.Body,
	}
	for _, a := range m.Attachments {
		e.Attachments = append(e.Attachments, relay.Attachment{Filename: a.Filename, Data: a.Data})
	}
	return e
}

// FetchEmails fetches ids in parallel and returns them in the given order.
// Any failure fails the whole fetch.
func FetchEmails(ctx context.Context, getter MessageGetter, ids []string) ([]Email, error) {
	emails := make([]Email, len(ids))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i, id := range ids {
		g.Go(func() error {
			m, err := getter.GetMessage(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to fetch email %s: %w", id, err)
			}
			emails[i] = FromMailbox(m)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return emails, nil
}

// NewAction builds the action for an intent over the fetched emails. An ask
// about a single email treats it as the open email.
func NewAction(intent Intent, emails []Email, input string) Action {
	a := Action{Intent: intent, Emails: emails, Input: input}
	if intent == IntentAsk && len(emails) == 1 {
		a.Open = &emails[0]
	}
	return a
}

// EmailIDsFor returns the ids an action has to fetch. Explicit ids win. An
// ask without ids reads the email whose conversation is active, if any.
func EmailIDsFor(intent Intent, ids []string, activeKey string) []string {
	if len(ids) > 0 || intent != IntentAsk || activeKey == "" || activeKey == conversation.GeneralKey {
		return ids
	}
	return []string{activeKey}
}
