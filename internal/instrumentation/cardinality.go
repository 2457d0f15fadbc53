package instrumentation

import "strings"

// ExtractUserDomain reduces an email address to its domain so it can be used
// as a metric label without exploding cardinality.
//
//	ExtractUserDomain("jane@example.com")  // "example.com"
//	ExtractUserDomain("invalid")           // "unknown"
func ExtractUserDomain(email string) string {
	if email == "" {
		return "unknown"
	}

	parts := strings.Split(email, "@")
	if len(parts) == 2 && parts[1] != "" {
		return parts[1]
	}

	return "unknown"
}

// Operation types for Google API metrics.
const (
	OperationList     = "list"
	OperationGet      = "get"
	OperationDelete   = "delete"
	OperationArchive  = "archive"
	OperationExchange = "exchange"
	OperationRefresh  = "refresh"
)

// Label values shared by the recorders.
const (
	StatusSuccess = "success"
	StatusError   = "error"

	OAuthResultSuccess = "success"
	OAuthResultFailure = "failure"
	OAuthResultExpired = "expired"

	ServiceGmail    = "gmail"
	ServiceOAuth    = "oauth2"
	ServiceUpstream = "ollama"

	FragmentRecognized   = "recognized"
	FragmentUnrecognized = "unrecognized"
	FragmentFailure      = "transport_failure"
)
