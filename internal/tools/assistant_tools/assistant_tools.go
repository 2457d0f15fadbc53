package assistant_tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxpilot/internal/assistant"
	"github.com/teemow/inboxpilot/internal/conversation"
	"github.com/teemow/inboxpilot/internal/server"
	"github.com/teemow/inboxpilot/internal/tools/batch"
	"github.com/teemow/inboxpilot/internal/tools/common"
)

// RegisterAssistantTools registers the conversation and assistant tools.
func RegisterAssistantTools(s *mcpserver.MCPServer, sc *server.ServerContext) error {
	switchTool := mcp.NewTool("assistant_switch_context",
		mcp.WithDescription("Make the conversation about an email active, creating it with a greeting if needed. Without a key the general conversation becomes active."),
		accountOption(),
		mcp.WithString("key", mcp.Description("Email ID the conversation is about")),
		mcp.WithString("sender", mcp.Description("Sender name, used in the greeting")),
		mcp.WithString("subject", mcp.Description("Email subject, used in the greeting")),
	)
	s.AddTool(switchTool, common.InstrumentedToolHandler("assistant_switch_context", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleSwitchContext(ctx, request, sc)
		}))

	conversationTool := mcp.NewTool("assistant_conversation",
		mcp.WithDescription("Show a conversation with the assistant. Without a key the active conversation is shown."),
		accountOption(),
		mcp.WithString("key", mcp.Description("Email ID, or 'general'")),
	)
	s.AddTool(conversationTool, common.InstrumentedToolHandler("assistant_conversation", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleConversation(ctx, request, sc)
		}))

	runTool := mcp.NewTool("assistant_run",
		mcp.WithDescription("Run the email assistant and wait for its reply. The reply is also added to the conversation of the email, or to the general conversation."),
		accountOption(),
		mcp.WithString("intent",
			mcp.Required(),
			mcp.Description("What to do with the emails"),
			mcp.Enum(intentNames()...),
		),
		mcp.WithArray("emailIds",
			mcp.Description("Emails to act on, in order. Required for every intent but 'ask'."),
			mcp.WithStringItems(),
		),
		mcp.WithString("input", mcp.Description("The question, for the 'ask' intent")),
	)
	s.AddTool(runTool, common.InstrumentedToolHandler("assistant_run", sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRun(ctx, request, sc)
		}))

	return nil
}

func intentNames() []string {
	names := make([]string, len(assistant.Intents))
	for i, intent := range assistant.Intents {
		names[i] = intent.String()
	}
	return names
}

func handleSwitchContext(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	account := common.GetAccountFromArgs(request.GetArguments())

	store, err := sc.Store(account)
	if err != nil {
		return errorResult(account, "open conversation store", err), nil
	}

	conv := store.SwitchContext(conversation.Context{
		Key:     strings.TrimSpace(request.GetString("key", "")),
		Sender:  request.GetString("sender", ""),
		Subject: request.GetString("subject", ""),
	})
	snapshot, _ := store.Snapshot(conv.Key())
	return jsonResult(snapshot)
}

func handleConversation(_ context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	account := common.GetAccountFromArgs(request.GetArguments())

	store, err := sc.Store(account)
	if err != nil {
		return errorResult(account, "open conversation store", err), nil
	}

	key := strings.TrimSpace(request.GetString("key", ""))
	if key == "" {
		key = store.ActiveKey()
	}
	snapshot, ok := store.Snapshot(key)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("No conversation for %q", key)), nil
	}
	return jsonResult(snapshot)
}

func handleRun(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(args)

	intent, err := assistant.ParseIntent(request.GetString("intent", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var ids []string
	if intent.NeedsEmails() || args["emailIds"] != nil {
		ids, err = batch.ParseIDs(args["emailIds"], "emailIds")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	store, err := sc.Store(account)
	if err != nil {
		return errorResult(account, "open conversation store", err), nil
	}

	ids = assistant.EmailIDsFor(intent, ids, store.ActiveKey())

	var emails []assistant.Email
	if len(ids) > 0 {
		client, err := sc.GmailClient(account)
		if err != nil {
			return errorResult(account, "create Gmail client", err), nil
		}
		emails, err = assistant.FetchEmails(ctx, client, ids)
		if err != nil {
			return errorResult(account, "fetch emails", err), nil
		}
	}

	action := assistant.NewAction(intent, emails, request.GetString("input", ""))

	// Acting on one email is like opening it: its conversation becomes active.
	if key := action.ContextKey(); key != "" && key != store.ActiveKey() {
		first := emails[0]
		store.SwitchContext(conversation.Context{Key: key, Sender: first.Sender, Subject: first.Subject})
	}

	completion, err := sc.Dispatcher().Dispatch(ctx, store, action, nil)
	if err != nil {
		switch {
		case errors.Is(err, assistant.ErrDispatchPending):
			return mcp.NewToolResultError("The assistant is still answering in this conversation. Try again when it is done."), nil
		case errors.Is(err, assistant.ErrInvalidAction):
			return mcp.NewToolResultError(err.Error()), nil
		default:
			return errorResult(account, "run assistant", err), nil
		}
	}

	outcome, err := completion.Wait(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Stopped waiting for the assistant: %v", err)), nil
	}
	if outcome.Err != nil {
		if strings.HasPrefix(outcome.Text, conversation.ErrorPrefix) {
			return mcp.NewToolResultError(outcome.Text), nil
		}
		// The answer was cut short; keep what was streamed.
		return mcp.NewToolResultError(fmt.Sprintf("%s\n\n[interrupted: %v]", outcome.Text, outcome.Err)), nil
	}
	return mcp.NewToolResultText(outcome.Text), nil
}
