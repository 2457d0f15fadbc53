package common

import "strings"

// DefaultAccount is the session the local MCP user is signed in as.
const DefaultAccount = "default"

// GetAccountFromArgs returns the "account" argument, or DefaultAccount when it
// is missing, blank or not a string.
func GetAccountFromArgs(args map[string]any) string {
	if account, ok := args["account"].(string); ok {
		if account = strings.TrimSpace(account); account != "" {
			return account
		}
	}
	return DefaultAccount
}
