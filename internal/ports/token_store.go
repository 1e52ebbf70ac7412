package ports

import (
	"context"
	"errors"

	"golang.org/x/oauth2"
)

// ErrTokenNotFound is returned when no token is stored for an account
var ErrTokenNotFound = errors.New("token not found")

// TokenStore defines the interface for persisting OAuth tokens between runs
type TokenStore interface {
	// Load retrieves the token stored for an account
	Load(ctx context.Context, account string) (*oauth2.Token, error)

	// Save stores or replaces the token for an account
	Save(ctx context.Context, account string, token *oauth2.Token) error

	// Delete removes the token for an account
	Delete(ctx context.Context, account string) error
}
