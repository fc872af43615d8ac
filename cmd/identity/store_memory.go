package identity

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"pinboard/cmd/security/password"
)

// MemoryStore is an in-process credential store with the same observable
// semantics as PostgresStore. It backs handler tests and storeless
// development; nothing survives a restart.
type MemoryStore struct {
	params password.Params

	mu      sync.Mutex
	byEmail map[string]UserAuth
	byName  map[string]string // lowercased username -> email key
	byID    map[string]User
}

// NewMemoryStore creates an empty in-memory store hashing with params.
func NewMemoryStore(params password.Params) *MemoryStore {
	if params.KeyLength == 0 {
		params = password.DefaultParams()
	}
	return &MemoryStore{
		params:  params,
		byEmail: make(map[string]UserAuth),
		byName:  make(map[string]string),
		byID:    make(map[string]User),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, in CreateUserInput) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}

	const op = "create user"
	email := NormalizeEmail(in.Email)
	username := NormalizeUsername(in.Username)
	if email == "" || username == "" || in.Password == "" {
		return User{}, ErrInvalidInput
	}
	if in.Now.IsZero() {
		in.Now = time.Now()
	}

	hash, err := password.Hash(in.Password, s.params)
	if err != nil {
		return User{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.byEmail[email]; dup {
		return User{}, ConflictError{Op: op, Field: "email"}
	}
	if _, dup := s.byName[strings.ToLower(username)]; dup {
		return User{}, ConflictError{Op: op, Field: "username"}
	}

	u := User{
		ID:        ulid.Make().String(),
		Username:  username,
		Email:     email,
		Roles:     []string{"user"},
		CreatedAt: in.Now.UTC(),
	}
	s.byEmail[email] = UserAuth{User: u, PasswordHash: hash}
	s.byName[strings.ToLower(username)] = email
	s.byID[u.ID] = u
	return u, nil
}

func (s *MemoryStore) UserAuthByEmail(ctx context.Context, email string) (UserAuth, error) {
	if err := ctx.Err(); err != nil {
		return UserAuth{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byEmail[NormalizeEmail(email)]
	if !ok {
		return UserAuth{}, NotFoundError{Op: "user by email", Resource: "user"}
	}
	return rec, nil
}

func (s *MemoryStore) UserByID(ctx context.Context, id string) (User, error) {
	if err := ctx.Err(); err != nil {
		return User{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.byID[id]
	if !ok {
		return User{}, NotFoundError{Op: "user by id", Resource: "user"}
	}
	return u, nil
}
