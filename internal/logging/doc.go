// Package logging provides structured logging helpers on top of log/slog.
//
// It centralizes attribute names so logs from the relay, the assistant and
// the mailbox client can be queried the same way, and it keeps personal data
// out of the logs:
//
//	logger := logging.WithService(slog.Default(), "gmail")
//	logger.Info("listed messages", logging.UserHash(email), logging.Status("success"))
//
// Email addresses and session ids are only ever logged as hashes (UserHash,
// Session).
//
// New builds the process logger from LOG_LEVEL/LOG_FORMAT, and
// WithContext/FromContext carry the request-scoped logger set by the HTTP
// middleware.
package logging
