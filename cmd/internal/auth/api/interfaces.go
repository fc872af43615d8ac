package authapi

import (
	"context"
	"time"

	"pinboard/cmd/identity"
	"pinboard/cmd/internal/auth/session"
)

// IdentityStore is the slice of identity persistence the handlers need.
// Implemented by *identity.PostgresStore.
type IdentityStore interface {
	CreateUser(ctx context.Context, in identity.CreateUserInput) (identity.User, error)
	UserAuthByEmail(ctx context.Context, email string) (identity.UserAuth, error)
	UserByID(ctx context.Context, id string) (identity.User, error)
}

// Sessions is the server-session store surface. Implemented by
// *session.Store.
type Sessions interface {
	Create(ctx context.Context, state session.State) (string, error)
	Get(ctx context.Context, sid string) (session.State, error)
	Regenerate(ctx context.Context, oldSID string, state session.State) (string, error)
	Destroy(ctx context.Context, sid string) error
}

// LoginLimiter throttles login attempts per client address. The concrete
// infrastructure lives behind this interface; handlers only see the
// decision.
type LoginLimiter interface {
	Allow(ctx context.Context, addr string) (allowed bool, retryAfter time.Duration, err error)
}

// NoopLimiter admits everything; used when no Redis is configured and in
// tests that are not about throttling.
type NoopLimiter struct{}

// Allow always admits.
func (NoopLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return true, 0, nil
}
