// Package identity persists credential records: who a user is and how
// their password verifies. Password digests are produced by
// cmd/security/password and never leave this package except through
// VerifyPassword-style checks in the auth handlers.
package identity

import (
	"strings"
	"time"
)

// User is a public credential record. It never carries the password hash.
type User struct {
	ID        string
	Username  string
	Email     string
	Roles     []string
	CreatedAt time.Time
}

// UserAuth pairs a user with its stored password digest for login checks.
type UserAuth struct {
	User         User
	PasswordHash string
}

// CreateUserInput is the registration payload. Password arrives in plain
// text and is hashed inside CreateUser; it must never be logged.
type CreateUserInput struct {
	Username string
	Email    string
	Password string
	Now      time.Time
}

// NormalizeEmail performs case-insensitive canonicalization.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// NormalizeUsername trims surrounding whitespace. Usernames keep their
// case for display; uniqueness is enforced on the lowercased form.
func NormalizeUsername(s string) string {
	return strings.TrimSpace(s)
}
