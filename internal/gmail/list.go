package gmail

import (
	"context"
	"fmt"
	"net/mail"
	"regexp"
	"slices"
	"strings"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxpilot/internal/instrumentation"
)

// PageSize is the number of messages per inbox page.
const PageSize = 20

// Summary is one row of the inbox list.
type Summary struct {
	ID            string    `json:"id"`
	ThreadID      string    `json:"threadId,omitempty"`
	Subject       string    `json:"subject"`
	Sender        string    `json:"sender"`
	From          string    `json:"from"`
	Date          string    `json:"date,omitempty"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
	Preview       string    `json:"preview"`
	HasAttachment bool      `json:"hasAttachment"`
	IsUnread      bool      `json:"isUnread"`
	IsStarred     bool      `json:"isStarred"`
}

// MessagePage is one page of the inbox.
type MessagePage struct {
	Messages      []Summary `json:"emails"`
	NextPageToken string    `json:"nextPageToken,omitempty"`
}

var addressPart = regexp.MustCompile(`<.*>`)

// ListMessages lists one page of inbox messages matching query and fetches
// their headers. The page keeps the order Gmail returned.
func (c *Client) ListMessages(ctx context.Context, query, pageToken string) (*MessagePage, error) {
	var res *gmail.ListMessagesResponse
	err := c.observe(ctx, instrumentation.OperationList, func(ctx context.Context) error {
		call := c.svc.Messages.List(me).LabelIds(inboxLabel).MaxResults(PageSize).Q(query).Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}
		var err error
		res, err = call.Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	page := &MessagePage{
		Messages:      make([]Summary, len(res.Messages)),
		NextPageToken: res.NextPageToken,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for i, m := range res.Messages {
		g.Go(func() error {
			var msg *gmail.Message
			err := c.observe(gctx, instrumentation.OperationGet, func(ctx context.Context) error {
				var err error
				msg, err = c.svc.Messages.Get(me, m.Id).
					Format("metadata").
					MetadataHeaders("Subject", "From", "Date").
					Context(ctx).
					Do()
				return err
			})
			if err != nil {
				return fmt.Errorf("failed to get message %s: %w", m.Id, err)
			}
			page.Messages[i] = summarize(msg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return page, nil
}

func summarize(m *gmail.Message) Summary {
	s := Summary{
		ID:        m.Id,
		ThreadID:  m.ThreadId,
		Subject:   HeaderValue(m, "Subject"),
		From:      HeaderValue(m, "From"),
		Date:      HeaderValue(m, "Date"),
		Preview:   m.Snippet,
		IsUnread:  slices.Contains(m.LabelIds, "UNREAD"),
		IsStarred: slices.Contains(m.LabelIds, "STARRED"),
	}
	if s.Subject == "" {
		s.Subject = "No Subject"
	}
	if s.From == "" {
		s.From = "Unknown Sender"
	}
	s.Sender = SenderName(s.From)
	if t, err := mail.ParseDate(s.Date); err == nil {
		s.Timestamp = t
	}
	if m.Payload != nil {
		s.HasAttachment = slices.ContainsFunc(m.Payload.Parts, func(p *gmail.MessagePart) bool {
			return p.Filename != ""
		})
	}
	return s
}

// SenderName strips the <address> part of a From header.
//
//	SenderName(`"Jane Doe" <jane@example.com>`) // `"Jane Doe"`
//	SenderName("jane@example.com")              // "jane@example.com"
func SenderName(from string) string {
	name := strings.TrimSpace(addressPart.ReplaceAllString(from, ""))
	if name == "" {
		return strings.TrimSpace(from)
	}
	return name
}
