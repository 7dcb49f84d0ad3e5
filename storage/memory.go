package storage

import (
	"context"
	"sync"

	"github.com/mymanybooks/go-auth/users"
)

var _ Adapter = (*Memory)(nil)

// Memory holds the session in process memory only. It is deliberately lost
// on restart: the refresh cookie re-derives the session cheaply on startup,
// which keeps tokens out of any durable medium.
type Memory struct {
	tokens *Tokens
	user   *users.User
	lock   sync.RWMutex
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Tokens(ctx context.Context) (*Tokens, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if m.tokens == nil {
		return nil, nil
	}
	tokens := *m.tokens
	return &tokens, nil
}

func (m *Memory) SetTokens(ctx context.Context, tokens *Tokens) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if tokens == nil {
		m.tokens = nil
		return nil
	}
	copied := *tokens
	m.tokens = &copied
	return nil
}

func (m *Memory) User(ctx context.Context) (*users.User, error) {
	m.lock.RLock()
	defer m.lock.RUnlock()

	if m.user == nil {
		return nil, nil
	}
	user := *m.user
	return &user, nil
}

func (m *Memory) SetUser(ctx context.Context, user *users.User) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	if user == nil {
		m.user = nil
		return nil
	}
	copied := *user
	m.user = &copied
	return nil
}

func (m *Memory) Clear(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.tokens = nil
	m.user = nil
	return nil
}
