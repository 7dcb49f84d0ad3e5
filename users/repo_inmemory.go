package users

import (
	"strings"
	"sync"
)

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory user store. It backs the reference
// auth server and tests; swap it for a database-backed Repo in deployments
// that need durability.
type InMemoryRepo struct {
	byID    map[string]*User
	byEmail map[string]string // normalized email -> user ID
	lock    sync.RWMutex
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		byID:    make(map[string]*User),
		byEmail: make(map[string]string),
	}
}

func (r *InMemoryRepo) Create(user *User) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	email := normalizeEmail(user.Email)
	if _, ok := r.byEmail[email]; ok {
		return ErrDuplicateEmail
	}

	stored := *user
	r.byID[user.ID] = &stored
	r.byEmail[email] = user.ID
	return nil
}

func (r *InMemoryRepo) GetByEmail(email string) (*User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	user := *r.byID[id]
	return &user, nil
}

func (r *InMemoryRepo) GetByID(id string) (*User, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	user, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (r *InMemoryRepo) Update(user *User) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	existing, ok := r.byID[user.ID]
	if !ok {
		return ErrNotFound
	}
	if !strings.EqualFold(existing.Email, user.Email) {
		delete(r.byEmail, normalizeEmail(existing.Email))
		r.byEmail[normalizeEmail(user.Email)] = user.ID
	}

	stored := *user
	r.byID[user.ID] = &stored
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
