package cmd

import (
	"context"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/inboxpilot/internal/assistant"
	"github.com/teemow/inboxpilot/internal/relay"
	"github.com/teemow/inboxpilot/internal/server"
	"github.com/teemow/inboxpilot/internal/tools/assistant_tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate MCP tool documentation",
		Long: `Generate markdown documentation for all available MCP tools.
This command introspects the registered tools and outputs their documentation
in markdown format, so the documentation always matches the tool definitions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd, outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

// docsTools registers every tool, write tools included, on a server that
// never talks to Google or the model.
func docsTools() ([]mcp.Tool, error) {
	serverContext, err := server.NewServerContext(context.Background(), server.Config{
		Dispatcher: assistant.NewDispatcher(relay.New(relay.Config{})),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create server context: %w", err)
	}
	defer func() { _ = serverContext.Shutdown() }()

	mcpSrv := mcpserver.NewMCPServer("inboxpilot", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := assistant_tools.RegisterTools(mcpSrv, serverContext, false); err != nil {
		return nil, err
	}

	serverTools := mcpSrv.ListTools()
	tools := make([]mcp.Tool, 0, len(serverTools))
	for _, serverTool := range serverTools {
		tools = append(tools, serverTool.Tool)
	}
	return tools, nil
}

func runGenerateDocs(cmd *cobra.Command, outputFile string) error {
	tools, err := docsTools()
	if err != nil {
		return err
	}
	markdown := generateToolsMarkdown(tools)

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(markdown), 0644); err != nil {
			return fmt.Errorf("failed to write output file: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Documentation written to: %s\n", outputFile)
		return nil
	}
	fmt.Fprint(cmd.OutOrStdout(), markdown)
	return nil
}

// toolCategories maps a tool name prefix to its section heading.
var toolCategories = map[string]string{
	"mailbox":   "Mailbox Tools",
	"assistant": "Assistant Tools",
}

func toolCategory(name string) string {
	prefix, _, _ := strings.Cut(name, "_")
	if category, ok := toolCategories[prefix]; ok {
		return category
	}
	return "Other"
}

const docsPreamble = `# MCP Tools Reference

This document provides a complete reference of all tools available when running ` + "`inboxpilot mcp`" + `.

**Note:** This documentation is automatically generated from the tool definitions.

`

const docsAccounts = `## Accounts

Every tool accepts an optional ` + "`account`" + ` argument. Each account has its own Gmail credentials and its own assistant conversations. Without it the ` + "`default`" + ` account is used.

Archive and delete tools are only registered with ` + "`--yolo`" + `.

`

func generateToolsMarkdown(tools []mcp.Tool) string {
	byCategory := make(map[string][]mcp.Tool)
	for _, tool := range tools {
		category := toolCategory(tool.Name)
		byCategory[category] = append(byCategory[category], tool)
	}
	categories := slices.Sorted(maps.Keys(byCategory))

	var sb strings.Builder
	sb.WriteString(docsPreamble)

	sb.WriteString("## Table of Contents\n\n")
	for _, category := range categories {
		fmt.Fprintf(&sb, "- [%s](#%s)\n", category, strings.ToLower(strings.ReplaceAll(category, " ", "-")))
	}
	sb.WriteString("\n")
	sb.WriteString(docsAccounts)

	for _, category := range categories {
		fmt.Fprintf(&sb, "## %s\n\n", category)
		section := byCategory[category]
		slices.SortFunc(section, func(a, b mcp.Tool) int { return strings.Compare(a.Name, b.Name) })
		for _, tool := range section {
			writeTool(&sb, tool)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// writeTool renders one tool as a heading, its description and an argument
// table. Enum values are appended to the argument description.
func writeTool(sb *strings.Builder, tool mcp.Tool) {
	fmt.Fprintf(sb, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(sb, "%s\n\n", tool.Description)
	}

	props := tool.InputSchema.Properties
	if len(props) == 0 {
		return
	}

	sb.WriteString("| Argument | Type | Required | Description |\n|---|---|---|---|\n")
	for _, name := range slices.Sorted(maps.Keys(props)) {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		required := "no"
		if slices.Contains(tool.InputSchema.Required, name) {
			required = "yes"
		}
		desc, _ := prop["description"].(string)
		if enum, ok := prop["enum"].([]string); ok && len(enum) > 0 {
			desc = strings.TrimSpace(desc + " One of: `" + strings.Join(enum, "`, `") + "`.")
		}
		fmt.Fprintf(sb, "| `%s` | %s | %s | %s |\n", name, schemaType(prop), required, desc)
	}
	sb.WriteString("\n")
}

func schemaType(prop map[string]any) string {
	t, ok := prop["type"].(string)
	if !ok {
		return "any"
	}
	if items, ok := prop["items"].(map[string]any); ok && t == "array" {
		return "array of " + schemaType(items)
	}
	return t
}
