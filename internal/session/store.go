package session

import (
	"context"
	"errors"
)

// ErrNotFound indicates a missing or expired session token.
var ErrNotFound = errors.New("session not found")

// Store issues and resolves opaque session tokens. Tokens expire after
// the TTL configured on the concrete store.
type Store interface {
	// Create starts a session for username and returns its token.
	Create(ctx context.Context, username string) (string, error)
	// Get resolves a token to its username, or ErrNotFound.
	Get(ctx context.Context, token string) (string, error)
	// Delete ends the session. Deleting an unknown token is not an error.
	Delete(ctx context.Context, token string) error
}
