package assistant_tools

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxpilot/internal/gmail"
	"github.com/teemow/inboxpilot/internal/google"
	"github.com/teemow/inboxpilot/internal/server"
)

// RegisterTools registers the mailbox and assistant tools. Write tools are
// only registered when readOnly is false.
func RegisterTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := RegisterMailboxTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register mailbox tools: %w", err)
	}
	if err := RegisterAssistantTools(s, sc); err != nil {
		return fmt.Errorf("failed to register assistant tools: %w", err)
	}
	return nil
}

func accountOption() mcp.ToolOption {
	return mcp.WithString("account",
		mcp.Description("Account name (default: 'default')"),
	)
}

// errorResult turns a failure into a tool error, with a re-authentication
// hint for expired Google credentials.
func errorResult(account, action string, err error) *mcp.CallToolResult {
	if errors.Is(err, google.ErrUnauthenticated) || gmail.IsUnauthorized(err) {
		return mcp.NewToolResultError(fmt.Sprintf(
			"Google authorization for account %q expired or was revoked. Provide a fresh GOOGLE_REFRESH_TOKEN and restart the MCP server.",
			account))
	}
	return mcp.NewToolResultError(fmt.Sprintf("Failed to %s: %v", action, err))
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
