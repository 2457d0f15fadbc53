package google

import (
	"context"

	"golang.org/x/oauth2"
)

// TokenStore persists tokens by session id.
type TokenStore interface {
	GetToken(ctx context.Context, id string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, id string, token *oauth2.Token) error
}

// tokenDeleter is implemented by stores that can forget a token.
type tokenDeleter interface {
	DeleteToken(ctx context.Context, id string) error
}
