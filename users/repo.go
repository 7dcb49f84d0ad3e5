package users

import "errors"

var (
	ErrNotFound       = errors.New("user not found")
	ErrDuplicateEmail = errors.New("email already registered")
)

// Repo defines the storage operations the auth server needs for user accounts.
type Repo interface {
	// Create stores a new user. Returns ErrDuplicateEmail if the email is taken.
	Create(user *User) error

	// GetByEmail retrieves a user by email address.
	GetByEmail(email string) (*User, error)

	// GetByID retrieves a user by ID.
	GetByID(id string) (*User, error)

	// Update replaces the stored user.
	Update(user *User) error
}
