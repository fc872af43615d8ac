package refresh

import (
	"context"
	"strings"
	"sync"
	"time"

	"pinboard/cmd/security/token"
)

// MemoryStore is an in-process Store for tests and DB-less dev runs.
// The mutex makes Redeem linearizable per digest, matching the
// transactional guarantees of the Postgres implementation.
type MemoryStore struct {
	cfg Config

	mu      sync.Mutex
	byHash  map[string]memRecord
	digests func(string) string
}

type memRecord struct {
	userID    string
	expiresAt time.Time
}

// NewMemoryStore creates an in-memory refresh secret store.
func NewMemoryStore(cfg Config) *MemoryStore {
	return &MemoryStore{
		cfg:     cfg.withDefaults(),
		byHash:  make(map[string]memRecord),
		digests: token.DigestHex,
	}
}

// Issue mints a new secret and records its digest.
func (s *MemoryStore) Issue(ctx context.Context, now time.Time, userID string) (Issued, error) {
	if err := ctx.Err(); err != nil {
		return Issued{}, err
	}
	raw, err := token.NewOpaqueSecret(s.cfg.SecretBytes)
	if err != nil {
		return Issued{}, err
	}
	exp := now.Add(s.cfg.TTL)

	s.mu.Lock()
	defer s.mu.Unlock()
	digest := s.digests(raw)
	if _, exists := s.byHash[digest]; exists {
		return Issued{}, ErrDigestCollision
	}
	s.byHash[digest] = memRecord{userID: userID, expiresAt: exp}
	return Issued{Secret: raw, ExpiresAt: exp}, nil
}

// Redeem rotates the presented secret under the store lock.
func (s *MemoryStore) Redeem(ctx context.Context, now time.Time, rawSecret string) (Rotated, error) {
	if err := ctx.Err(); err != nil {
		return Rotated{}, err
	}
	rawSecret = strings.TrimSpace(rawSecret)
	if rawSecret == "" || len(rawSecret) > 4096 {
		return Rotated{}, ErrInvalidRefreshToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	digest := s.digests(rawSecret)
	rec, ok := s.byHash[digest]
	if !ok {
		return Rotated{}, ErrInvalidRefreshToken
	}
	delete(s.byHash, digest)

	if !rec.expiresAt.After(now) {
		return Rotated{}, ErrInvalidRefreshToken
	}

	raw, err := token.NewOpaqueSecret(s.cfg.SecretBytes)
	if err != nil {
		return Rotated{}, err
	}
	exp := now.Add(s.cfg.TTL)
	s.byHash[s.digests(raw)] = memRecord{userID: rec.userID, expiresAt: exp}

	return Rotated{UserID: rec.userID, Next: Issued{Secret: raw, ExpiresAt: exp}}, nil
}

// Revoke deletes the record matching the secret (idempotent).
func (s *MemoryStore) Revoke(ctx context.Context, rawSecret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rawSecret = strings.TrimSpace(rawSecret)
	if rawSecret == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.byHash, s.digests(rawSecret))
	return nil
}

// RevokeAll deletes every live secret for a user.
func (s *MemoryStore) RevokeAll(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for digest, rec := range s.byHash {
		if rec.userID == userID {
			delete(s.byHash, digest)
		}
	}
	return nil
}

// DeleteExpired sweeps records past their expiry.
func (s *MemoryStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for digest, rec := range s.byHash {
		if !rec.expiresAt.After(now) {
			delete(s.byHash, digest)
			n++
		}
	}
	return n, nil
}
