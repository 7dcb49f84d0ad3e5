// Package storage provides the persistence capability for session data.
// Adapters are purely storage: no validation, expiry checks, or network
// calls happen here. All access is mediated by a single session.Service
// instance that owns the adapter.
package storage

import (
	"context"
	"time"

	"github.com/mymanybooks/go-auth/users"
)

// Tokens is the cached token pair plus its absolute expiry. The expiry is
// computed once from the server-supplied relative expiresIn and consulted
// before either token is handed to a caller.
type Tokens struct {
	IdentityToken string    `json:"identityToken"`
	AccessToken   string    `json:"accessToken"`
	ExpiresAt     time.Time `json:"expiresAt"`
}

// Adapter persists and retrieves the current session. Absent values are
// reported as (nil, nil) rather than an error so callers can distinguish
// "not logged in" from a broken store.
//
// Two lifetime variants conform to this interface: Memory is volatile and
// relies on the httpOnly refresh cookie as the true durable credential,
// while File (and Redis) survive a process restart.
type Adapter interface {
	Tokens(ctx context.Context) (*Tokens, error)
	SetTokens(ctx context.Context, tokens *Tokens) error

	User(ctx context.Context) (*users.User, error)
	SetUser(ctx context.Context, user *users.User) error

	// Clear removes both tokens and user. No intermediate state where only
	// one of the pair remains is observable through this adapter.
	Clear(ctx context.Context) error
}
