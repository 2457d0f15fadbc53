package assistant

import (
	"fmt"
	"strings"
)

// Intent is a discrete assistant action.
type Intent string

const (
	IntentSummary        Intent = "summary"
	IntentReply          Intent = "reply"
	IntentSchedule       Intent = "schedule"
	IntentArchiveSuggest Intent = "archive-suggest"
	IntentAsk            Intent = "ask"
)

// Intents lists every intent in a stable order.
var Intents = []Intent{IntentSummary, IntentReply, IntentSchedule, IntentArchiveSuggest, IntentAsk}

var intentAliases = map[string]Intent{
	"summary":         IntentSummary,
	"resume":          IntentSummary,
	"résumé":          IntentSummary,
	"reply":           IntentReply,
	"repondre":        IntentReply,
	"répondre":        IntentReply,
	"schedule":        IntentSchedule,
	"planifier":       IntentSchedule,
	"archive-suggest": IntentArchiveSuggest,
	"archive":         IntentArchiveSuggest,
	"archiver":        IntentArchiveSuggest,
	"ask":             IntentAsk,
}

// ParseIntent accepts the canonical intent names and their French aliases,
// case-insensitively.
func ParseIntent(s string) (Intent, error) {
	if intent, ok := intentAliases[strings.ToLower(strings.TrimSpace(s))]; ok {
		return intent, nil
	}
	return "", fmt.Errorf("%w: unknown intent %q", ErrInvalidAction, s)
}

// NeedsEmails reports whether the intent operates on a selection of emails.
func (i Intent) NeedsEmails() bool {
	return i != IntentAsk
}

func (i Intent) String() string {
	return string(i)
}
