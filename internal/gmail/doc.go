// Package gmail is the mailbox collaborator of inboxpilot. It lists the inbox
// with the filters of the web UI, fetches a message with its decoded body and
// attachments, and deletes or archives messages.
//
// A Client is bound to one signed-in user through the *http.Client it is
// built with, normally an oauth2 client whose token source refreshes the
// user's Google token:
//
//	client, err := gmail.NewClient(ctx, oauth2.NewClient(ctx, tokenSource),
//		gmail.WithMetrics(metrics))
//	if err != nil {
//		return err
//	}
//	page, err := client.ListMessages(ctx, gmail.Filter{Subject: "facture"}.Query(), "")
//
// Errors caused by a revoked or expired grant satisfy IsUnauthorized.
package gmail
