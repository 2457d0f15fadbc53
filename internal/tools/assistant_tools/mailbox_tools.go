package assistant_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxpilot/internal/gmail"
	"github.com/teemow/inboxpilot/internal/instrumentation"
	"github.com/teemow/inboxpilot/internal/server"
	"github.com/teemow/inboxpilot/internal/tools/batch"
	"github.com/teemow/inboxpilot/internal/tools/common"
)

// RegisterMailboxTools registers the mailbox tools.
func RegisterMailboxTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listTool := mcp.NewTool("mailbox_list_messages",
		mcp.WithDescription("List inbox messages, newest first, 20 per page. Promotions and social updates are excluded."),
		accountOption(),
		mcp.WithString("subject", mcp.Description("Only messages whose subject matches")),
		mcp.WithString("contains", mcp.Description("Free text the message must contain")),
		mcp.WithString("date", mcp.Description("Only messages from this day (YYYY-MM-DD). Takes precedence over dateStart/dateEnd.")),
		mcp.WithString("dateStart", mcp.Description("Only messages on or after this day (YYYY-MM-DD)")),
		mcp.WithString("dateEnd", mcp.Description("Only messages on or before this day (YYYY-MM-DD)")),
		mcp.WithString("senders", mcp.Description("Comma-separated sender addresses or names")),
		mcp.WithString("pageToken", mcp.Description("Token of the next page from a previous call")),
	)
	s.AddTool(listTool, common.InstrumentedToolHandlerWithService("mailbox_list_messages",
		instrumentation.ServiceGmail, instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListMessages(ctx, request, sc)
		}))

	getTool := mcp.NewTool("mailbox_get_message",
		mcp.WithDescription("Get a message with its body and the list of its attachments"),
		accountOption(),
		mcp.WithString("id",
			mcp.Required(),
			mcp.Description("Message ID"),
		),
	)
	s.AddTool(getTool, common.InstrumentedToolHandlerWithService("mailbox_get_message",
		instrumentation.ServiceGmail, instrumentation.OperationGet, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleGetMessage(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	archiveTool := mcp.NewTool("mailbox_archive_messages",
		mcp.WithDescription("Archive one or more messages by removing them from the inbox"),
		accountOption(),
		mcp.WithArray("ids",
			mcp.Required(),
			mcp.Description("Message IDs to archive"),
			mcp.WithStringItems(),
		),
	)
	s.AddTool(archiveTool, common.InstrumentedToolHandlerWithService("mailbox_archive_messages",
		instrumentation.ServiceGmail, instrumentation.OperationArchive, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleArchiveMessages(ctx, request, sc)
		}))

	deleteTool := mcp.NewTool("mailbox_delete_messages",
		mcp.WithDescription("Permanently delete one or more messages. Their assistant conversations are discarded."),
		accountOption(),
		mcp.WithArray("ids",
			mcp.Required(),
			mcp.Description("Message IDs to delete"),
			mcp.WithStringItems(),
		),
	)
	s.AddTool(deleteTool, common.InstrumentedToolHandlerWithService("mailbox_delete_messages",
		instrumentation.ServiceGmail, instrumentation.OperationDelete, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleDeleteMessages(ctx, request, sc)
		}))

	return nil
}

func handleListMessages(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	account := common.GetAccountFromArgs(request.GetArguments())

	client, err := sc.GmailClient(account)
	if err != nil {
		return errorResult(account, "create Gmail client", err), nil
	}

	filter := gmail.Filter{
		Subject:    request.GetString("subject", ""),
		Contains:   request.GetString("contains", ""),
		SingleDate: request.GetString("date", ""),
		DateStart:  request.GetString("dateStart", ""),
		DateEnd:    request.GetString("dateEnd", ""),
		Senders:    gmail.ParseSenders(request.GetString("senders", "")),
	}

	page, err := client.ListMessages(ctx, filter.Query(), request.GetString("pageToken", ""))
	if err != nil {
		return errorResult(account, "list messages", err), nil
	}
	return jsonResult(page)
}

func handleGetMessage(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	account := common.GetAccountFromArgs(request.GetArguments())

	id, err := request.RequireString("id")
	if err != nil || id == "" {
		return mcp.NewToolResultError("id is required"), nil
	}

	client, err := sc.GmailClient(account)
	if err != nil {
		return errorResult(account, "create Gmail client", err), nil
	}

	email, err := client.GetMessage(ctx, id)
	if err != nil {
		return errorResult(account, "get message", err), nil
	}

	// Attachment data is only useful to the assistant.
	for i := range email.Attachments {
		email.Attachments[i].Data = ""
	}
	return jsonResult(email)
}

func handleArchiveMessages(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(args)

	ids, err := batch.ParseIDs(args["ids"], "ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := sc.GmailClient(account)
	if err != nil {
		return errorResult(account, "create Gmail client", err), nil
	}

	results, err := client.ArchiveMessages(ctx, ids)
	if err != nil {
		return errorResult(account, "archive messages", err), nil
	}
	return mcp.NewToolResultText(batch.Format(results)), nil
}

func handleDeleteMessages(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	account := common.GetAccountFromArgs(args)

	ids, err := batch.ParseIDs(args["ids"], "ids")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	client, err := sc.GmailClient(account)
	if err != nil {
		return errorResult(account, "create Gmail client", err), nil
	}

	deleted, err := client.DeleteMessages(ctx, ids)
	if err != nil {
		return errorResult(account, "delete messages", err), nil
	}

	if store, err := sc.Store(account); err == nil {
		for _, id := range ids {
			store.Discard(id)
		}
	}
	return mcp.NewToolResultText(fmt.Sprintf("Deleted %d messages", deleted)), nil
}
