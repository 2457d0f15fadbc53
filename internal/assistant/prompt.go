package assistant

import (
	"errors"
	"fmt"
	"strings"

	"github.com/teemow/inboxpilot/internal/relay"
)

// ErrInvalidAction is wrapped by every error caused by an unusable Action.
var ErrInvalidAction = errors.New("invalid assistant action")

// Email is the part of a message the assistant reads.
type Email struct {
	ID          string
	Sender      string
	Subject     string
	Content     string
	Attachments []relay.Attachment
}

// Action is one user request to the assistant. Emails is the selection, in
// the order the user made it. Open is the email currently displayed, if any,
// and is only read by IntentAsk.
type Action struct {
	Intent Intent
	Emails []Email
	Input  string
	Open   *Email
}

// ContextKey is the conversation the action's answer belongs to: the open
// email, then the single selected email, then the general conversation.
func (a Action) ContextKey() string {
	switch {
	case a.Open != nil && a.Open.ID != "":
		return a.Open.ID
	case len(a.Emails) == 1 && a.Emails[0].ID != "":
		return a.Emails[0].ID
	default:
		return ""
	}
}

const (
	promptSummaryOne  = "Fais un résumé concis, en français, de l'email suivant.\n\nObjet : %s\nDe : %s"
	promptSummaryMany = "Voici %d emails. Pour chacun, donne un résumé d'une ligne en français et l'action recommandée."
	promptReplyOne    = "Rédige une réponse polie en français à cet email de %s concernant \"%s\". Reste bref et professionnel."
	promptReplyMany   = "Rédige une courte réponse groupée en français qui traite ces %d emails."
	promptSchedule    = "Analyse cet email et propose, en français, un créneau de réunion et un bref ordre du jour."
	promptArchive     = "Propose, en français, un nom de dossier d'archive et quelques étiquettes courtes pour cet email, d'après son contenu."

	segmentHeader = "--- Email %d - From: %s Subject: %s"
)

// BuildRequest synthesizes the generation request for an action.
//
// Summary and reply cover the whole selection: bodies are joined with one
// header line per email and attachments are concatenated in selection order.
// Schedule and archive-suggest only read the first selected email. Ask sends
// the user input as the prompt with the open email's content, or the joined
// selection when no email is open, and no attachments.
func BuildRequest(a Action) (relay.GenerationRequest, error) {
	if a.Intent == IntentAsk {
		input := strings.TrimSpace(a.Input)
		if input == "" {
			return relay.GenerationRequest{}, fmt.Errorf("%w: empty question", ErrInvalidAction)
		}
		req := relay.GenerationRequest{Prompt: input}
		switch {
		case a.Open != nil:
			req.EmailContent = a.Open.Content
		case len(a.Emails) > 0:
			req.EmailContent = joinContents(a.Emails)
		}
		return req, nil
	}

	if len(a.Emails) == 0 {
		return relay.GenerationRequest{}, fmt.Errorf("%w: %s needs at least one email", ErrInvalidAction, a.Intent)
	}
	first := a.Emails[0]
	single := len(a.Emails) == 1

	var req relay.GenerationRequest
	switch a.Intent {
	case IntentSummary:
		if single {
			req.Prompt = fmt.Sprintf(promptSummaryOne, first.Subject, first.Sender)
		} else {
			req.Prompt = fmt.Sprintf(promptSummaryMany, len(a.Emails))
		}
		req.EmailContent = joinContents(a.Emails)
		req.Attachments = flattenAttachments(a.Emails)
	case IntentReply:
		if single {
			req.Prompt = fmt.Sprintf(promptReplyOne, first.Sender, first.Subject)
		} else {
			req.Prompt = fmt.Sprintf(promptReplyMany, len(a.Emails))
		}
		req.EmailContent = joinContents(a.Emails)
		req.Attachments = flattenAttachments(a.Emails)
	case IntentSchedule:
		req.Prompt = promptSchedule
		req.EmailContent = first.Content
		req.Attachments = flattenAttachments(a.Emails[:1])
	case IntentArchiveSuggest:
		req.Prompt = promptArchive
		req.EmailContent = first.Content
		req.Attachments = flattenAttachments(a.Emails[:1])
	default:
		return relay.GenerationRequest{}, fmt.Errorf("%w: unknown intent %q", ErrInvalidAction, a.Intent)
	}
	return req, nil
}

func joinContents(emails []Email) string {
	if len(emails) == 1 {
		return emails[0].Content
	}
	segments := make([]string, 0, len(emails))
	for i, e := range emails {
		header := fmt.Sprintf(segmentHeader, i+1, e.Sender, e.Subject)
		segments = append(segments, header+"\n\n"+e.Content)
	}
	return strings.Join(segments, "\n\n")
}

func flattenAttachments(emails []Email) []relay.Attachment {
	var out []relay.Attachment
	for _, e := range emails {
		out = append(out, e.Attachments...)
	}
	return out
}
