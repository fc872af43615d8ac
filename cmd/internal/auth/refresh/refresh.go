// Package refresh persists long-lived opaque refresh secrets.
//
// Only the digest of a secret is ever stored; the raw value is returned
// to the caller exactly once at issuance. Redeeming a secret is a
// rotation: the presented secret is invalidated and a replacement is
// issued atomically, so every refresh secret is single-use.
package refresh

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidRefreshToken is returned when a presented secret is
	// unknown, already redeemed, revoked or expired. The cases are
	// deliberately indistinguishable to prevent enumeration and timing
	// leaks about which secrets once existed.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrDigestCollision is returned when a freshly generated secret
	// digests to an existing live record. With >=40 random bytes this is
	// an integrity failure (or broken RNG), not a retry condition.
	ErrDigestCollision = errors.New("refresh token digest collision")
)

// Config controls secret entropy and lifetime.
type Config struct {
	// TTL is the absolute lifetime of an issued secret.
	TTL time.Duration
	// SecretBytes is the entropy of the raw secret before encoding.
	SecretBytes int
}

// DefaultConfig matches the web deployment: 7-day secrets, 40 bytes.
func DefaultConfig() Config {
	return Config{TTL: 7 * 24 * time.Hour, SecretBytes: 40}
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 7 * 24 * time.Hour
	}
	if c.SecretBytes < 32 {
		c.SecretBytes = 40
	}
	return c
}

// Issued is the result of issuing or rotating a refresh secret.
type Issued struct {
	// Secret is the raw opaque value. It is never persisted; transport
	// (typically an HTTP-only cookie) is the caller's responsibility.
	Secret    string
	ExpiresAt time.Time
}

// Rotated is the result of a successful redemption.
type Rotated struct {
	UserID string
	Next   Issued
}

// Store issues, rotates and revokes refresh secrets.
//
// Redeem must be linearizable per digest: two concurrent calls presenting
// the same raw secret result in exactly one success and one
// ErrInvalidRefreshToken.
type Store interface {
	// Issue mints a new secret for userID and persists its digest.
	Issue(ctx context.Context, now time.Time, userID string) (Issued, error)

	// Redeem invalidates the presented secret and issues a replacement
	// bound to the same user. A secret already redeemed, revoked, unknown
	// or past expiry fails with ErrInvalidRefreshToken.
	Redeem(ctx context.Context, now time.Time, rawSecret string) (Rotated, error)

	// Revoke deletes the record matching the secret. Revoking a secret
	// that is already gone is a no-op, not an error.
	Revoke(ctx context.Context, rawSecret string) error

	// RevokeAll deletes every live secret owned by userID.
	RevokeAll(ctx context.Context, userID string) error

	// DeleteExpired removes records past their expiry. Expiry is checked
	// logically in Redeem as well; the sweep only reclaims storage.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
