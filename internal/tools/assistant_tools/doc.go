// Package assistant_tools exposes the mailbox and the email assistant as MCP
// tools.
//
// Read tools:
//   - mailbox_list_messages: list the inbox with the same filters as the web UI
//   - mailbox_get_message: fetch one message with its body
//   - assistant_switch_context: make the conversation of an email (or the
//     general conversation) active
//   - assistant_conversation: show a conversation
//   - assistant_run: run an assistant intent and wait for the reply
//
// Write tools, registered only when write access is enabled:
//   - mailbox_archive_messages
//   - mailbox_delete_messages
//
// Every tool takes an optional "account" argument naming the signed-in
// session, "default" for the local user.
package assistant_tools
