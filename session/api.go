package session

import (
	"context"

	"github.com/mymanybooks/go-auth/authapi"
)

// API is the slice of the HTTP boundary the session service consumes.
// *authapi.Client satisfies it; tests substitute fakes.
type API interface {
	Login(ctx context.Context, email, password string) (*authapi.LoginResult, error)
	Register(ctx context.Context, reg authapi.Registration) (*authapi.RegisterResult, error)
	Refresh(ctx context.Context) (*authapi.TokenResponse, error)
	Logout(ctx context.Context) error
}

var _ API = (*authapi.Client)(nil)
