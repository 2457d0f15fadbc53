package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
	"golang.org/x/sync/errgroup"

	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/logging"
)

const (
	// MaxAttachmentSize defines the maximum attachment size in bytes (25MB)
	MaxAttachmentSize = 25 * 1024 * 1024
)

// Attachment is a downloaded attachment. Data is standard base64.
type Attachment struct {
	Filename string `json:"filename"`
	MimeType string `json:"mimeType,omitempty"`
	Size     int64  `json:"size,omitempty"`
	Data     string `json:"data,omitempty"`
}

// Email is a message with its decoded body.
type Email struct {
	ID          string       `json:"id"`
	ThreadID    string       `json:"threadId,omitempty"`
	Subject     string       `json:"subject"`
	From        string       `json:"from"`
	To          string       `json:"to"`
	Date        string       `json:"date,omitempty"`
	Body        string       `json:"body"`
	Attachments []Attachment `json:"attachments"`
}

// GetMessage fetches a message with its body and attachments. Attachments
// that fail to download or exceed MaxAttachmentSize are skipped.
func (c *Client) GetMessage(ctx context.Context, messageID string) (*Email, error) {
	if messageID == "" {
		return nil, fmt.Errorf("messageID is required")
	}

	var msg *gmail.Message
	err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
		var err error
		msg, err = c.svc.Messages.Get(me, messageID).Format("full").Context(ctx).Do()
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get message %s: %w", messageID, err)
	}

	email := &Email{
		ID:          msg.Id,
		ThreadID:    msg.ThreadId,
		Subject:     HeaderValue(msg, "Subject"),
		From:        HeaderValue(msg, "From"),
		To:          HeaderValue(msg, "To"),
		Date:        HeaderValue(msg, "Date"),
		Attachments: []Attachment{},
	}
	if email.ID == "" {
		email.ID = messageID
	}
	if email.Subject == "" {
		email.Subject = "No Subject"
	}
	if msg.Payload == nil {
		return email, nil
	}

	email.Body = extractBody(msg.Payload)
	email.Attachments = c.downloadAttachments(ctx, messageID, msg.Payload)
	return email, nil
}

// extractBody prefers the first HTML part, then the first plain text part,
// then the payload's own body.
func extractBody(payload *gmail.MessagePart) string {
	for _, mimeType := range []string{"text/html", "text/plain"} {
		var found string
		for _, part := range payload.Parts {
			walkParts(part, func(p *gmail.MessagePart) {
				if found == "" && p.MimeType == mimeType && p.Body != nil && p.Body.Data != "" {
					if decoded, err := decodeData(p.Body.Data); err == nil {
						found = string(decoded)
					}
				}
			})
		}
		if found != "" {
			return found
		}
	}
	if payload.Body != nil && payload.Body.Data != "" {
		if decoded, err := decodeData(payload.Body.Data); err == nil {
			return string(decoded)
		}
	}
	return ""
}

func (c *Client) downloadAttachments(ctx context.Context, messageID string, payload *gmail.MessagePart) []Attachment {
	var parts []*gmail.MessagePart
	walkParts(payload, func(p *gmail.MessagePart) {
		if p.Filename != "" && p.Body != nil && (p.Body.AttachmentId != "" || p.Body.Data != "") {
			parts = append(parts, p)
		}
	})

	found := make([]*Attachment, len(parts))
	var g errgroup.Group
	g.SetLimit(c.concurrency)
	for i, part := range parts {
		g.Go(func() error {
			a, err := c.fetchAttachment(ctx, messageID, part)
			if err != nil {
				c.logger.Warn("skipping attachment",
					slog.String("filename", SanitizeFilename(part.Filename)),
					logging.Err(err))
				return nil
			}
			found[i] = a
			return nil
		})
	}
	_ = g.Wait()

	out := make([]Attachment, 0, len(found))
	for _, a := range found {
		if a != nil {
			out = append(out, *a)
		}
	}
	return out
}

func (c *Client) fetchAttachment(ctx context.Context, messageID string, part *gmail.MessagePart) (*Attachment, error) {
	if part.Body.Size > MaxAttachmentSize {
		return nil, fmt.Errorf("attachment size %d exceeds maximum size %d", part.Body.Size, MaxAttachmentSize)
	}

	raw := part.Body.Data
	size := part.Body.Size
	if part.Body.AttachmentId != "" {
		var body *gmail.MessagePartBody
		err := c.observe(ctx, instrumentation.OperationGet, func(ctx context.Context) error {
			var err error
			body, err = c.svc.Messages.Attachments.Get(me, messageID, part.Body.AttachmentId).Context(ctx).Do()
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("failed to get attachment %s: %w", part.Body.AttachmentId, err)
		}
		if body.Size > MaxAttachmentSize {
			return nil, fmt.Errorf("attachment size %d exceeds maximum size %d", body.Size, MaxAttachmentSize)
		}
		raw = body.Data
		size = body.Size
	}

	data, err := decodeData(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to decode attachment data: %w", err)
	}
	if size == 0 {
		size = int64(len(data))
	}

	return &Attachment{
		Filename: part.Filename,
		MimeType: part.MimeType,
		Size:     size,
		Data:     base64.StdEncoding.EncodeToString(data),
	}, nil
}

// decodeData decodes Gmail's base64url payloads, accepting padded, unpadded
// and standard base64.
func decodeData(s string) ([]byte, error) {
	var err error
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.RawURLEncoding, base64.StdEncoding, base64.RawStdEncoding} {
		var data []byte
		if data, err = enc.DecodeString(s); err == nil {
			return data, nil
		}
	}
	return nil, err
}

// walkParts recursively walks through message parts
func walkParts(part *gmail.MessagePart, fn func(*gmail.MessagePart)) {
	if part == nil {
		return
	}

	fn(part)

	for _, subpart := range part.Parts {
		walkParts(subpart, fn)
	}
}

// SanitizeFilename sanitizes a filename to prevent path traversal attacks
func SanitizeFilename(filename string) string {
	filename = strings.ReplaceAll(filename, "/", "_")
	filename = strings.ReplaceAll(filename, "\\", "_")
	filename = strings.ReplaceAll(filename, "..", "_")
	return filename
}
