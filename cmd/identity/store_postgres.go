package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/oklog/ulid/v2"

	"pinboard/cmd/security/password"
)

// PostgresStore implements identity persistence over pinboard.users.
// The pgx pool is owned by the caller; this store must not close it.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs a PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, errors.New("identity: nil pool")
	}
	return &PostgresStore{pool: pool}, nil
}

// CreateUser hashes the password and inserts the credential record.
// A duplicate email or username maps to ConflictError.
func (s *PostgresStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	const op = "identity.CreateUser"

	username := NormalizeUsername(in.Username)
	email := NormalizeEmail(in.Email)
	if username == "" || email == "" || in.Password == "" {
		return User{}, fmt.Errorf("%s: %w: username, email and password are required", op, ErrInvalidInput)
	}

	now := in.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	hash, err := password.Hash(in.Password, password.DefaultParams())
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	u := User{
		ID:        ulid.Make().String(),
		Username:  username,
		Email:     email,
		Roles:     []string{"user"},
		CreatedAt: now,
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO pinboard.users (id, username, email, password_hash, roles, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, u.ID, u.Username, u.Email, hash, u.Roles, u.CreatedAt)
	if err != nil {
		if field, ok := classifyUniqueViolation(err); ok {
			return User{}, ConflictError{Op: op, Field: field}
		}
		return User{}, fmt.Errorf("%s: %w", op, err)
	}

	return u, nil
}

// UserAuthByEmail loads the credential record for a login check.
func (s *PostgresStore) UserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	const op = "identity.UserAuthByEmail"

	var (
		ua   UserAuth
		hash string
	)
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, password_hash, roles, created_at
		FROM pinboard.users
		WHERE email = $1
	`, NormalizeEmail(email)).Scan(
		&ua.User.ID,
		&ua.User.Username,
		&ua.User.Email,
		&hash,
		&ua.User.Roles,
		&ua.User.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserAuth{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return UserAuth{}, fmt.Errorf("%s: %w", op, err)
	}

	ua.PasswordHash = hash
	return ua, nil
}

// UserByID loads a public user record.
func (s *PostgresStore) UserByID(ctx context.Context, id string) (User, error) {
	const op = "identity.UserByID"

	var u User
	err := s.pool.QueryRow(ctx, `
		SELECT id, username, email, roles, created_at
		FROM pinboard.users
		WHERE id = $1
	`, id).Scan(&u.ID, &u.Username, &u.Email, &u.Roles, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, NotFoundError{Op: op, Resource: "user"}
	}
	if err != nil {
		return User{}, fmt.Errorf("%s: %w", op, err)
	}
	return u, nil
}

func classifyUniqueViolation(err error) (field string, ok bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return "", false
	}

	c := strings.ToLower(strings.TrimSpace(pgErr.ConstraintName))
	switch {
	case strings.Contains(c, "email"):
		return "email", true
	case strings.Contains(c, "username"):
		return "username", true
	default:
		return "unique", true
	}
}
