package gmail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"golang.org/x/oauth2"

	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/tools/batch"
)

// ErrNoIDs is returned by bulk operations called without message ids.
var ErrNoIDs = errors.New("no message ids provided")

// DeleteMessages permanently deletes the messages and returns how many were
// deleted.
func (c *Client) DeleteMessages(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, ErrNoIDs
	}

	err := c.observe(ctx, instrumentation.OperationDelete, func(ctx context.Context) error {
		return c.svc.Messages.BatchDelete(me, &gmail.BatchDeleteMessagesRequest{Ids: ids}).Context(ctx).Do()
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete messages: %w", err)
	}
	return len(ids), nil
}

// ArchiveMessages removes the INBOX label from every message and reports the
// outcome per id.
func (c *Client) ArchiveMessages(ctx context.Context, ids []string) ([]batch.Result, error) {
	if len(ids) == 0 {
		return nil, ErrNoIDs
	}

	return batch.Run(ctx, ids, c.concurrency, func(ctx context.Context, id string) (string, error) {
		err := c.observe(ctx, instrumentation.OperationArchive, func(ctx context.Context) error {
			_, err := c.svc.Messages.Modify(me, id, &gmail.ModifyMessageRequest{
				RemoveLabelIds: []string{inboxLabel},
			}).Context(ctx).Do()
			return err
		})
		if err != nil {
			return "", err
		}
		return "archived", nil
	}), nil
}

// IsUnauthorized reports whether err means the user's Google grant is no
// longer usable: a 401 from the API, or an expired or revoked refresh token.
func IsUnauthorized(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Code == 401 {
		return true
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		if retrieveErr.ErrorCode == "invalid_grant" {
			return true
		}
		desc := strings.ToLower(retrieveErr.ErrorDescription)
		if strings.Contains(desc, "expired") || strings.Contains(desc, "revoked") {
			return true
		}
	}

	return strings.Contains(err.Error(), "invalid_grant")
}
