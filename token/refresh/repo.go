package refresh

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("refresh token not found")

// StoredRefreshToken is the server-side record for an opaque refresh token.
type StoredRefreshToken struct {
	Token  string    // Opaque token value (hex-encoded random bytes)
	UserID string    // User this token belongs to
	Iat    time.Time // When the token was issued
}

// Repo defines the storage operations for refresh tokens.
type Repo interface {
	// Upsert creates or replaces a refresh token record
	Upsert(token *StoredRefreshToken) error

	// Get retrieves a refresh token by its value, or ErrNotFound
	Get(token string) (*StoredRefreshToken, error)

	// Delete removes a refresh token by its value
	Delete(token string) error

	// GetByUserID retrieves the refresh token for a user, or ErrNotFound
	GetByUserID(userID string) (*StoredRefreshToken, error)
}
