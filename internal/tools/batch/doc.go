// Package batch runs one operation per id and reports per-id outcomes, so a
// partial failure never hides the items that succeeded.
//
// It is shared by the mailbox archive endpoint and the MCP write tools.
package batch
