package relay

import (
	"strings"
)

// Attachment is an email attachment forwarded to the multimodal upstream.
// Data is passed through as received (base64 or data URL).
type Attachment struct {
	Filename string `json:"filename,omitempty"`
	Data     string `json:"data,omitempty"`
}

// GenerationRequest is what the relay accepts from its callers.
type GenerationRequest struct {
	Prompt       string       `json:"prompt,omitempty"`
	EmailContent string       `json:"emailContent,omitempty"`
	Attachments  []Attachment `json:"attachments,omitempty"`
}

// Validate rejects requests with neither a prompt nor email content.
func (r GenerationRequest) Validate() error {
	if r.Prompt == "" && r.EmailContent == "" {
		return &BadRequestError{Message: "Missing prompt or emailContent"}
	}
	return nil
}

// Content is the text of the single user turn sent upstream.
func (r GenerationRequest) Content() string {
	return strings.TrimSpace(r.Prompt + "\n\n" + r.EmailContent)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Stream   bool          `json:"stream"`
	Images   []Attachment  `json:"images,omitempty"`
}

func newChatRequest(model string, r GenerationRequest) chatRequest {
	return chatRequest{
		Model: model,
		Messages: []chatMessage{
			{Role: "user", Content: r.Content()},
		},
		Stream: true,
		Images: r.Attachments,
	}
}
