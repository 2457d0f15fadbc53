package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/teemow/inboxpilot/internal/logging"
)

// ToolInvocation is the audit record of one user-triggered operation: an MCP
// tool call or an assistant action coming in over HTTP.
//
// UserEmail is PII. Unless the AuditLogger was built with IncludePII only its
// domain and hash are written.
type ToolInvocation struct {
	Tool      string
	UserEmail string

	ServiceName string
	Operation   string

	Intent     string
	ContextKey string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation starts the clock on a record for tool.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{Tool: tool, StartTime: time.Now()}
}

func (ti *ToolInvocation) WithUser(email string) *ToolInvocation {
	ti.UserEmail = email
	return ti
}

// WithService tags the record as a Google API operation.
func (ti *ToolInvocation) WithService(serviceName, operation string) *ToolInvocation {
	ti.ServiceName, ti.Operation = serviceName, operation
	return ti
}

// WithAction tags the record with an assistant intent and the conversation
// it was appended to.
func (ti *ToolInvocation) WithAction(intent, contextKey string) *ToolInvocation {
	ti.Intent, ti.ContextKey = intent, contextKey
	return ti
}

// WithSpanContext copies the ids of the span in ctx, if any.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		ti.TraceID = sc.TraceID().String()
		ti.SpanID = sc.SpanID().String()
	}
	return ti
}

// Complete stops the clock. err, when set, is kept as text.
func (ti *ToolInvocation) Complete(success bool, err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = success
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

func (ti *ToolInvocation) CompleteWithError(err error) *ToolInvocation {
	return ti.Complete(false, err)
}

func (ti *ToolInvocation) CompleteSuccess() *ToolInvocation {
	return ti.Complete(true, nil)
}

func (ti *ToolInvocation) UserDomain() string {
	return ExtractUserDomain(ti.UserEmail)
}

func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

// LogAttrs returns the record with the user reduced to domain and hash.
func (ti *ToolInvocation) LogAttrs() []slog.Attr {
	user := []slog.Attr{slog.String("user_domain", ti.UserDomain())}
	if ti.UserEmail != "" {
		user = append(user, logging.UserHash(ti.UserEmail))
	}
	return ti.attrs(user)
}

// LogAuditAttrs returns the record with the full user address and span id.
func (ti *ToolInvocation) LogAuditAttrs() []slog.Attr {
	user := []slog.Attr{slog.String("user", ti.UserEmail)}
	if ti.SpanID != "" {
		user = append(user, slog.String("span_id", ti.SpanID))
	}
	return ti.attrs(user)
}

func (ti *ToolInvocation) attrs(user []slog.Attr) []slog.Attr {
	attrs := append([]slog.Attr{slog.String(logging.KeyTool, ti.Tool)}, user...)
	attrs = append(attrs,
		slog.Duration(logging.KeyDuration, ti.Duration),
		slog.Bool("success", ti.Success),
	)
	for _, kv := range [...]struct{ key, value string }{
		{"service", ti.ServiceName},
		{"operation", ti.Operation},
		{logging.KeyIntent, ti.Intent},
		{logging.KeyContextKey, ti.ContextKey},
		{"trace_id", ti.TraceID},
		{logging.KeyError, ti.Error},
	} {
		if kv.value != "" {
			attrs = append(attrs, slog.String(kv.key, kv.value))
		}
	}
	return attrs
}

// AuditLogger writes ToolInvocation records. A nil or disabled AuditLogger
// drops them.
type AuditLogger struct {
	logger *slog.Logger
	config AuditLoggingConfig
}

// NewAuditLogger returns an enabled AuditLogger that anonymizes users.
func NewAuditLogger(logger *slog.Logger) *AuditLogger {
	return NewAuditLoggerWithConfig(logger, AuditLoggingConfig{Enabled: true})
}

func NewAuditLoggerWithConfig(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{logger: logger, config: config}
}

// LogToolInvocation writes tool_executed at info or tool_failed at warn.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.config.Enabled {
		return
	}

	attrs := ti.LogAttrs()
	if al.config.IncludePII {
		attrs = ti.LogAuditAttrs()
	}

	level, msg := slog.LevelInfo, "tool_executed"
	if !ti.Success {
		level, msg = slog.LevelWarn, "tool_failed"
	}
	al.logger.LogAttrs(context.Background(), level, msg, attrs...)
}
