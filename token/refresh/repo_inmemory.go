package refresh

import "sync"

var _ Repo = (*InMemoryRepo)(nil)

// InMemoryRepo is a thread-safe in-memory refresh token store.
type InMemoryRepo struct {
	tokens map[string]*StoredRefreshToken
	byUser map[string]string // userID -> token value
	lock   sync.RWMutex
}

func NewInMemoryRepo() *InMemoryRepo {
	return &InMemoryRepo{
		tokens: make(map[string]*StoredRefreshToken),
		byUser: make(map[string]string),
	}
}

func (r *InMemoryRepo) Upsert(token *StoredRefreshToken) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	stored := *token
	r.tokens[token.Token] = &stored
	r.byUser[token.UserID] = token.Token
	return nil
}

func (r *InMemoryRepo) Get(token string) (*StoredRefreshToken, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	stored, ok := r.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *stored
	return &copied, nil
}

func (r *InMemoryRepo) Delete(token string) error {
	r.lock.Lock()
	defer r.lock.Unlock()

	stored, ok := r.tokens[token]
	if !ok {
		return ErrNotFound
	}
	delete(r.tokens, token)
	if r.byUser[stored.UserID] == token {
		delete(r.byUser, stored.UserID)
	}
	return nil
}

func (r *InMemoryRepo) GetByUserID(userID string) (*StoredRefreshToken, error) {
	r.lock.RLock()
	defer r.lock.RUnlock()

	token, ok := r.byUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *r.tokens[token]
	return &copied, nil
}
