// Package refresh manages the opaque refresh tokens that back the silent
// refresh flow. The token value never reaches client code directly: it
// travels in an httpOnly cookie and is only ever consumed by the server.
package refresh

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

const tokenLength = 32 // bytes of entropy, 256 bits

// Manager handles refresh token creation, validation, and rotation.
type Manager struct {
	repo   Repo
	expiry time.Duration
}

// NewManager creates a new refresh token manager. expiry bounds how long a
// refresh token stays usable after issuance.
func NewManager(repo Repo, expiry time.Duration) *Manager {
	return &Manager{repo: repo, expiry: expiry}
}

// Create generates a new refresh token for the user and stores it. Any
// existing token for the same user is deleted first - one refresh token per
// user, so a login on a new device invalidates the old session's cookie.
func (m *Manager) Create(userID string) (string, error) {
	if existing, err := m.repo.GetByUserID(userID); err == nil && existing != nil {
		if err := m.repo.Delete(existing.Token); err != nil {
			return "", fmt.Errorf("failed to delete existing refresh token: %w", err)
		}
	}

	tokenBytes := make([]byte, tokenLength)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	tokenStr := hex.EncodeToString(tokenBytes)
	if err := m.repo.Upsert(&StoredRefreshToken{
		Token:  tokenStr,
		UserID: userID,
		Iat:    NowTimeFunc(),
	}); err != nil {
		return "", fmt.Errorf("failed to store refresh token: %w", err)
	}

	return tokenStr, nil
}

// Redeem validates a presented refresh token and rotates it: the old token
// is deleted and a fresh one is issued for the same user. Returns the user
// ID and the replacement token.
func (m *Manager) Redeem(token string) (userID string, rotated string, err error) {
	stored, err := m.repo.Get(token)
	if err != nil {
		return "", "", fmt.Errorf("refresh token lookup: %w", err)
	}

	if NowTimeFunc().Sub(stored.Iat) > m.expiry {
		_ = m.repo.Delete(stored.Token)
		return "", "", fmt.Errorf("refresh token expired")
	}

	if err := m.repo.Delete(stored.Token); err != nil {
		return "", "", fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	rotated, err = m.Create(stored.UserID)
	if err != nil {
		return "", "", err
	}
	return stored.UserID, rotated, nil
}

// Revoke removes a refresh token. Revoking an unknown token is not an error.
func (m *Manager) Revoke(token string) error {
	if err := m.repo.Delete(token); err != nil && err != ErrNotFound {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}
