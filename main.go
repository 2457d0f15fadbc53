// Command inboxpilot serves the mail assistant API and its MCP tools.
package main

import "github.com/teemow/inboxpilot/cmd"

// Overridden at release time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	cmd.SetVersion(version)
	cmd.Execute()
}
