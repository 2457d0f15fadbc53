// Package common provides helpers shared by the MCP tool packages: account
// resolution and the instrumentation wrapper every tool handler goes through.
package common
