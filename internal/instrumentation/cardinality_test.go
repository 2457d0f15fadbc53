package instrumentation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractUserDomain(t *testing.T) {
	tests := map[string]string{
		"jane@example.com":    "example.com",
		"user@mail.orange.fr": "mail.orange.fr",
		"invalid":             "unknown",
		"user@":               "unknown",
		"a@b@c":               "unknown",
		"":                    "unknown",
	}

	for email, want := range tests {
		assert.Equal(t, want, ExtractUserDomain(email), email)
	}
}
