package conversation

import (
	"time"
)

// Role is the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// GeneralKey identifies the conversation that is not tied to an email.
const GeneralKey = "general"

// ErrorPrefix starts the text of an assistant message whose generation failed.
const ErrorPrefix = "Erreur: "

// Message is one chat message. Values returned by the Store are copies.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	// Complete is false while an assistant reply is still streaming.
	Complete bool `json:"complete"`
	Failed   bool `json:"failed,omitempty"`
}

// Context describes what a conversation is about. Sender and Subject are only
// used to word the greeting of a new email conversation.
type Context struct {
	Key     string
	Sender  string
	Subject string
}

// Snapshot is a point-in-time copy of a conversation.
type Snapshot struct {
	Key      string    `json:"key"`
	Active   bool      `json:"active"`
	Messages []Message `json:"messages"`
}

// Greeting returns the first assistant message of a new conversation.
func Greeting(c Context) string {
	if c.Key == "" || c.Key == GeneralKey {
		return "Bonjour! Je suis votre assistant intelligent. Comment puis-je vous aider aujourd'hui?"
	}
	sender := c.Sender
	if sender == "" {
		sender = "un expéditeur inconnu"
	}
	subject := c.Subject
	if subject == "" {
		subject = "(sans objet)"
	}
	return "Vous consultez l'email de " + sender + " concernant \"" + subject + "\". Comment puis-je vous aider avec cet email?"
}
