// Package cmd implements the command-line interface for inboxpilot.
//
// This package provides the following commands:
//   - serve: Start the HTTP API for the web UI, with health and metrics endpoints
//   - mcp: Serve the mailbox and assistant tools to AI assistants over stdio
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for all MCP tools
//
// The serve command is the default command when no subcommand is specified.
// Every command first loads a .env file (see --env-file) into the environment.
package cmd
