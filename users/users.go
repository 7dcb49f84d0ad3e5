package users

import (
	"fmt"
	"time"
	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents a user's role within the application.
type RoleType string

const (
	RoleUser  RoleType = "user"  // Regular account, can only manage its own collection
	RoleAdmin RoleType = "admin" // Can manage shared catalogue data
)

// User is the account profile shared between the session SDK and the auth
// server. The client-side copy of Role and IsActive is derived from token
// claims and server responses for display purposes only - every privileged
// request is re-authorized server side.
type User struct {
	ID           string    `json:"id,omitempty"`       // Unique identifier for the user
	Email        string    `json:"email,omitempty"`    // User's email address
	Name         string    `json:"name,omitempty"`     // First name
	Surname      string    `json:"surname,omitempty"`  // Family name
	PasswordHash string    `json:"-"`                  // Hashed password - never serialize
	Role         RoleType  `json:"role,omitempty"`     // Application role
	IsActive     bool      `json:"isActive"`           // Account enabled flag
	Verified     bool      `json:"verified,omitempty"` // Email address has been verified
	DateJoined   time.Time `json:"dateJoined,omitempty"`
	LastLogin    time.Time `json:"lastLogin,omitempty"`
}

// FullName returns the display name composed from the name parts.
func (u User) FullName() string {
	if u.Surname == "" {
		return u.Name
	}
	return u.Name + " " + u.Surname
}

// ValidatePasswordStrength checks if a password meets the security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("bcrypt.GenerateFromPassword: %w", err)
	}
	return string(bytes), nil
}

// CheckPasswordHash compares a plaintext password against a bcrypt hash.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
