package authapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"pinboard/cmd/internal/auth"
	"pinboard/cmd/internal/auth/session"
	authtoken "pinboard/cmd/internal/auth/token"
	"pinboard/cmd/internal/httpx"
)

// BearerStrategy authenticates via an Authorization: Bearer access token.
type BearerStrategy struct {
	tokens *authtoken.Manager
	now    func() time.Time
}

// NewBearerStrategy builds the stateless verifier.
func NewBearerStrategy(tokens *authtoken.Manager) (*BearerStrategy, error) {
	if tokens == nil {
		return nil, errors.New("authapi: nil token manager")
	}
	return &BearerStrategy{tokens: tokens, now: time.Now}, nil
}

// Authenticate verifies the bearer token. Missing, malformed and expired
// tokens are all the same ErrUnauthenticated.
func (s *BearerStrategy) Authenticate(r *http.Request) (auth.Identity, error) {
	raw := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(raw) <= len(prefix) || !strings.EqualFold(raw[:len(prefix)], prefix) {
		return auth.Identity{}, auth.ErrUnauthenticated
	}

	claims, err := s.tokens.Verify(strings.TrimSpace(raw[len(prefix):]), s.now())
	if err != nil {
		return auth.Identity{}, fmt.Errorf("%w: %w", auth.ErrUnauthenticated, err)
	}
	return auth.Identity{UserID: claims.UserID, Roles: claims.Roles}, nil
}

// SessionStrategy authenticates via the session id cookie.
type SessionStrategy struct {
	cookieName string
	sessions   Sessions
	timeout    time.Duration
}

// NewSessionStrategy builds the session-cookie verifier.
func NewSessionStrategy(cookieName string, sessions Sessions, timeout time.Duration) (*SessionStrategy, error) {
	if sessions == nil {
		return nil, errors.New("authapi: nil session store")
	}
	if cookieName == "" {
		cookieName = DefaultConfig().SessionCookieName
	}
	if timeout <= 0 {
		timeout = DefaultConfig().StoreTimeout
	}
	return &SessionStrategy{cookieName: cookieName, sessions: sessions, timeout: timeout}, nil
}

// Authenticate resolves the session cookie against the server-side store.
func (s *SessionStrategy) Authenticate(r *http.Request) (auth.Identity, error) {
	c, err := r.Cookie(s.cookieName)
	if err != nil || c.Value == "" {
		return auth.Identity{}, auth.ErrUnauthenticated
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	state, err := s.sessions.Get(ctx, c.Value)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			return auth.Identity{}, auth.ErrUnauthenticated
		}
		return auth.Identity{}, err
	}
	return auth.Identity{
		UserID:   state.UserID,
		Username: state.Username,
		Email:    state.Email,
		Roles:    state.Roles,
	}, nil
}

// strategy returns the request verifier for the configured deployment
// strategy. Exactly one verifier exists per handler.
func (h *Handler) strategy() auth.Strategy {
	if h.cfg.Strategy == StrategySession {
		s, _ := NewSessionStrategy(h.cfg.SessionCookieName, h.sessions, h.cfg.StoreTimeout)
		return s
	}
	s, _ := NewBearerStrategy(h.tokens)
	return s
}

// RequireAuth gates next behind the deployment's credential verifier.
// All denial paths produce the same generic 401 body.
func (h *Handler) RequireAuth(next http.Handler) http.Handler {
	verifier := h.strategy()
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := verifier.Authenticate(r)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			h.log.Error("authentication check failed", "error", err)
			httpx.WriteInternalError(w, err, h.cfg.Production)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}
