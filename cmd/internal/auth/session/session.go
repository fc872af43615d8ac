// Package session implements the server-side session variant of
// authentication: identity state held in Redis, keyed by an opaque
// session id carried in an HTTP-only cookie.
//
// Fixation defense is structural: Regenerate mints a brand-new id and
// destroys the old one, and callers must invoke it on every
// privilege-relevant transition (login). Logout destroys the server-side
// record, not just the cookie, so a replayed cookie value is useless.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"pinboard/cmd/security/token"
)

// ErrSessionNotFound is returned when a session id does not resolve to
// live state. Unknown, destroyed, and expired are indistinguishable.
var ErrSessionNotFound = errors.New("session not found")

// Default timeouts for Redis operations.
const (
	defaultReadTimeout  = 3 * time.Second
	defaultWriteTimeout = 3 * time.Second
)

// State is the identity payload held server-side for one browser context.
type State struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles,omitempty"`
}

// Config controls session lifetime and key layout.
type Config struct {
	// TTL is the absolute session lifetime.
	TTL time.Duration
	// Rolling renews the TTL on every successful Get.
	Rolling bool
	// KeyPrefix namespaces session keys in Redis.
	KeyPrefix string
	// IDBytes is the entropy of a session id before encoding.
	IDBytes int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig matches the web deployment: 24h rolling sessions.
func DefaultConfig() Config {
	return Config{
		TTL:          24 * time.Hour,
		Rolling:      true,
		KeyPrefix:    "sess:",
		IDBytes:      32,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if strings.TrimSpace(c.KeyPrefix) == "" {
		c.KeyPrefix = "sess:"
	}
	if c.IDBytes < 16 {
		c.IDBytes = 32
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = defaultReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

// Store is a Redis-backed session store. The client is owned by the
// caller; Store never closes it.
type Store struct {
	cfg    Config
	client redis.UniversalClient
}

// NewStore creates a session store over an existing Redis client.
func NewStore(client redis.UniversalClient, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("session: nil redis client")
	}
	return &Store{cfg: cfg.withDefaults(), client: client}, nil
}

// Create mints a fresh session id and persists state under it.
func (s *Store) Create(ctx context.Context, state State) (string, error) {
	sid, err := token.NewOpaqueSecret(s.cfg.IDBytes)
	if err != nil {
		return "", err
	}
	if err := s.write(ctx, sid, state); err != nil {
		return "", err
	}
	return sid, nil
}

// Get resolves a session id to its state. With Rolling enabled the TTL is
// renewed on every hit, so active browsers stay signed in.
func (s *Store) Get(ctx context.Context, sid string) (State, error) {
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return State{}, ErrSessionNotFound
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.key(sid)).Result()
	if errors.Is(err, redis.Nil) {
		return State{}, ErrSessionNotFound
	}
	if err != nil {
		return State{}, fmt.Errorf("session: get: %w", err)
	}

	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return State{}, fmt.Errorf("session: decode: %w", err)
	}

	if s.cfg.Rolling {
		// Best-effort renewal; a failed EXPIRE only shortens the session.
		_ = s.client.Expire(ctx, s.key(sid), s.cfg.TTL).Err()
	}
	return state, nil
}

// Regenerate replaces the session id while keeping state, destroying the
// old record. Call on login so a pre-set id never survives authentication.
func (s *Store) Regenerate(ctx context.Context, oldSID string, state State) (string, error) {
	sid, err := s.Create(ctx, state)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(oldSID) != "" {
		if err := s.Destroy(ctx, oldSID); err != nil {
			return "", err
		}
	}
	return sid, nil
}

// Destroy removes the server-side record (idempotent).
func (s *Store) Destroy(ctx context.Context, sid string) error {
	sid = strings.TrimSpace(sid)
	if sid == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key(sid)).Err(); err != nil {
		return fmt.Errorf("session: destroy: %w", err)
	}
	return nil
}

func (s *Store) write(ctx context.Context, sid string, state State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.WriteTimeout)
	defer cancel()

	if err := s.client.Set(ctx, s.key(sid), payload, s.cfg.TTL).Err(); err != nil {
		return fmt.Errorf("session: set: %w", err)
	}
	return nil
}

func (s *Store) key(sid string) string {
	return s.cfg.KeyPrefix + sid
}
