package refresh

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"pinboard/cmd/security/token"
)

// PostgresStore implements Store over pinboard.refresh_tokens.
//
// Rotation safety: Redeem runs inside a single transaction and locks the
// presented row with SELECT ... FOR UPDATE before deleting it, so the
// delete of the old record and the insert of its replacement are
// linearizable per digest. The pgx pool is owned by the caller.
type PostgresStore struct {
	cfg  Config
	pool *pgxpool.Pool
}

// NewPostgresStore creates a Postgres-backed refresh secret store.
func NewPostgresStore(pool *pgxpool.Pool, cfg Config) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("refresh: nil pool")
	}
	return &PostgresStore{cfg: cfg.withDefaults(), pool: pool}, nil
}

// Issue mints a new secret and persists {userID, digest, expiry}.
func (s *PostgresStore) Issue(ctx context.Context, now time.Time, userID string) (Issued, error) {
	raw, err := token.NewOpaqueSecret(s.cfg.SecretBytes)
	if err != nil {
		return Issued{}, err
	}
	exp := now.Add(s.cfg.TTL)

	if err := s.insert(ctx, s.pool, now, userID, token.DigestHex(raw), exp); err != nil {
		return Issued{}, err
	}
	return Issued{Secret: raw, ExpiresAt: exp}, nil
}

// Redeem rotates the presented secret under a per-digest row lock.
func (s *PostgresStore) Redeem(ctx context.Context, now time.Time, rawSecret string) (Rotated, error) {
	rawSecret = strings.TrimSpace(rawSecret)
	// Sanity bounds to avoid digesting pathological inputs.
	if rawSecret == "" || len(rawSecret) > 4096 {
		return Rotated{}, ErrInvalidRefreshToken
	}
	digest := token.DigestHex(rawSecret)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Rotated{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var (
		id        string
		userID    string
		expiresAt time.Time
	)
	err = tx.QueryRow(ctx, `
		SELECT id, user_id, expires_at
		FROM pinboard.refresh_tokens
		WHERE token_digest = $1
		FOR UPDATE
	`, digest).Scan(&id, &userID, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Rotated{}, ErrInvalidRefreshToken
	}
	if err != nil {
		return Rotated{}, err
	}

	// Logical expiry: an expired-but-unswept record must still fail.
	if !expiresAt.After(now) {
		if _, err := tx.Exec(ctx, `DELETE FROM pinboard.refresh_tokens WHERE id = $1`, id); err != nil {
			return Rotated{}, err
		}
		if err := tx.Commit(ctx); err != nil {
			return Rotated{}, err
		}
		return Rotated{}, ErrInvalidRefreshToken
	}

	if _, err := tx.Exec(ctx, `DELETE FROM pinboard.refresh_tokens WHERE id = $1`, id); err != nil {
		return Rotated{}, err
	}

	raw, err := token.NewOpaqueSecret(s.cfg.SecretBytes)
	if err != nil {
		return Rotated{}, err
	}
	exp := now.Add(s.cfg.TTL)

	if err := s.insert(ctx, tx, now, userID, token.DigestHex(raw), exp); err != nil {
		return Rotated{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Rotated{}, err
	}
	return Rotated{UserID: userID, Next: Issued{Secret: raw, ExpiresAt: exp}}, nil
}

// Revoke deletes the record matching the secret (idempotent).
func (s *PostgresStore) Revoke(ctx context.Context, rawSecret string) error {
	rawSecret = strings.TrimSpace(rawSecret)
	if rawSecret == "" {
		return nil
	}
	_, err := s.pool.Exec(ctx, `
		DELETE FROM pinboard.refresh_tokens
		WHERE token_digest = $1
	`, token.DigestHex(rawSecret))
	return err
}

// RevokeAll deletes every live secret for a user.
func (s *PostgresStore) RevokeAll(ctx context.Context, userID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM pinboard.refresh_tokens
		WHERE user_id = $1
	`, userID)
	return err
}

// DeleteExpired sweeps records past their expiry.
func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM pinboard.refresh_tokens
		WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (s *PostgresStore) insert(ctx context.Context, db execer, now time.Time, userID, digest string, expiresAt time.Time) error {
	_, err := db.Exec(ctx, `
		INSERT INTO pinboard.refresh_tokens (id, user_id, token_digest, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ulid.Make().String(), userID, digest, now, expiresAt)
	if isUniqueViolation(err) {
		return ErrDigestCollision
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" // unique_violation
}
