package common

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/logging"
	"github.com/teemow/inboxpilot/internal/server"
)

// ToolHandler is the mcp-go tool handler signature.
type ToolHandler = func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)

// InstrumentedToolHandler wraps a tool handler with a span, metrics and
// audit logging.
//
//	s.AddTool(tool, common.InstrumentedToolHandler("mailbox_list_messages", sc, handler))
func InstrumentedToolHandler(toolName string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return instrumented(toolName, "", "", sc, handler)
}

// InstrumentedToolHandlerWithService is like InstrumentedToolHandler but also
// records the call as a Google API operation of the given service.
func InstrumentedToolHandlerWithService(toolName, serviceName, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return instrumented(toolName, serviceName, operation, sc, handler)
}

func instrumented(toolName, serviceName, operation string, sc *server.ServerContext, handler ToolHandler) ToolHandler {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := request.GetArguments()
		intent, _ := args["intent"].(string)

		ctx, span := instrumentation.StartToolSpan(ctx, toolName, intent)
		defer span.End()

		start := time.Now()
		account := GetAccountFromArgs(args)

		invocation := instrumentation.NewToolInvocation(toolName).WithSpanContext(ctx)
		if strings.Contains(account, "@") {
			invocation.WithUser(account)
		}
		if serviceName != "" {
			invocation.WithService(serviceName, operation)
		}
		if intent != "" {
			invocation.WithAction(intent, "")
		}

		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		switch {
		case err != nil:
			status = instrumentation.StatusError
			invocation.CompleteWithError(err)
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
			invocation.Complete(false, nil)
		default:
			invocation.CompleteSuccess()
			instrumentation.SetSpanSuccess(span)
		}

		metrics := sc.Metrics()
		metrics.RecordToolInvocationWithAccount(ctx, toolName, status, account, duration)
		if serviceName != "" {
			metrics.RecordGoogleAPIOperation(ctx, serviceName, operation, status, duration)
		}

		if audit := sc.Audit(); audit != nil {
			audit.LogToolInvocation(invocation)
		}

		sc.Logger().Debug("tool invoked",
			logging.Tool(toolName),
			logging.Status(status),
			logging.Err(err),
			slog.Duration(logging.KeyDuration, duration))

		return result, err
	}
}
