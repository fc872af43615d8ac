package password

import "errors"

var (
	// ErrHashing is returned on internal hashing failures (RNG).
	ErrHashing = errors.New("password hashing failed")

	// ErrInvalidHash is returned for malformed or unsupported hash strings.
	ErrInvalidHash = errors.New("invalid argon2id hash")
)
