package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
)

// Attribute keys shared by every package that logs.
const (
	KeyOperation  = "operation"
	KeyService    = "service"
	KeyUserHash   = "user_hash"
	KeyDuration   = "duration"
	KeyStatus     = "status"
	KeyError      = "error"
	KeyTool       = "tool"
	KeyIntent     = "intent"
	KeyContextKey = "context_key"
	KeyMessageID  = "message_id"
	KeySession    = "session"
	KeyRequestID  = "request_id"
)

// WithService returns a child logger tagged with service.
func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(Service(service))
}

func Operation(op string) slog.Attr { return slog.String(KeyOperation, op) }
func Service(svc string) slog.Attr { return slog.String(KeyService, svc) }
func Tool(tool string) slog.Attr { return slog.String(KeyTool, tool) }
func Status(status string) slog.Attr { return slog.String(KeyStatus, status) }
func Intent(intent string) slog.Attr { return slog.String(KeyIntent, intent) }
func ContextKey(key string) slog.Attr { return slog.String(KeyContextKey, key) }
func MessageID(id string) slog.Attr { return slog.String(KeyMessageID, id) }

// Session identifies a browser session by a hash of its cookie value.
func Session(sessionID string) slog.Attr {
	return slog.String(KeySession, digest("session:", sessionID))
}

// UserHash identifies an account by a hash of its address so entries can be
// correlated without logging the address itself.
func UserHash(email string) slog.Attr {
	return slog.String(KeyUserHash, digest("user:", email))
}

// Err is safe to call with a nil error; slog drops the empty group.
//
//	logger.Info("archived", logging.Err(err))
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// digest returns prefix followed by the first 8 bytes of the SHA-256 of
// value in hex, or "" for an empty value.
func digest(prefix, value string) string {
	if value == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(value))
	return prefix + hex.EncodeToString(sum[:8])
}
