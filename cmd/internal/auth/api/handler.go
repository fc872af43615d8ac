// Package authapi exposes the authentication HTTP surface: signup, login,
// logout, refresh-secret rotation and the authenticated profile endpoint.
//
// A deployment serves exactly one strategy. Under StrategyBearer the
// handlers mint short-lived access tokens and a rotating refresh cookie;
// under StrategySession they drive the server-side session store. The two
// route trees are registered exclusively, never together.
package authapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"pinboard/cmd/identity"
	"pinboard/cmd/internal/auth"
	"pinboard/cmd/internal/auth/refresh"
	"pinboard/cmd/internal/auth/session"
	authtoken "pinboard/cmd/internal/auth/token"
	"pinboard/cmd/internal/httpx"
	"pinboard/cmd/internal/metrics"
	"pinboard/cmd/security/password"
)

// Responses deliberately identical for unknown email and wrong password.
const msgInvalidCredentials = "Invalid credentials"

// Handler serves the /auth route tree.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	identity IdentityStore
	tokens   *authtoken.Manager
	refresh  refresh.Store
	sessions Sessions
	limiter  LoginLimiter

	// dummyHash is verified against on login when the email is unknown,
	// so both failure modes spend an argon2id verification.
	dummyHash string

	now func() time.Time
}

// NewHandler wires the auth surface. tokens and refresh are required
// under StrategyBearer, sessions under StrategySession.
func NewHandler(log *slog.Logger, cfg Config, ids IdentityStore, tokens *authtoken.Manager, ref refresh.Store, sess Sessions, limiter LoginLimiter) (*Handler, error) {
	cfg = cfg.withDefaults()
	if log == nil {
		log = slog.Default()
	}
	if ids == nil {
		return nil, errors.New("authapi: nil identity store")
	}
	switch cfg.Strategy {
	case StrategyBearer:
		if tokens == nil || ref == nil {
			return nil, errors.New("authapi: bearer strategy requires token manager and refresh store")
		}
	case StrategySession:
		if sess == nil {
			return nil, errors.New("authapi: session strategy requires a session store")
		}
	}
	if limiter == nil {
		limiter = NoopLimiter{}
	}

	dummy, err := password.Hash("pinboard-credential-chaff", password.DefaultParams())
	if err != nil {
		return nil, err
	}

	return &Handler{
		log:       log,
		cfg:       cfg,
		identity:  ids,
		tokens:    tokens,
		refresh:   ref,
		sessions:  sess,
		limiter:   limiter,
		dummyHash: dummy,
		now:       time.Now,
	}, nil
}

// Register mounts the auth routes for the configured strategy.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /auth/signup", h.handleSignup)
	mux.HandleFunc("POST /auth/login", h.handleLogin)
	mux.HandleFunc("POST /auth/logout", h.handleLogout)
	mux.Handle("GET /auth/me", h.RequireAuth(http.HandlerFunc(h.handleMe)))
	if h.cfg.Strategy == StrategyBearer {
		mux.HandleFunc("GET /auth/refresh-token", h.handleRefresh)
	}
}

func (h *Handler) storeCtx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.cfg.StoreTimeout)
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if fields := validateSignup(req); len(fields) > 0 {
		httpx.WriteValidationError(w, "validation failed", fields)
		return
	}

	ctx, cancel := h.storeCtx(r)
	defer cancel()

	user, err := h.identity.CreateUser(ctx, identity.CreateUserInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		Now:      h.now(),
	})
	if err != nil {
		var conflict identity.ConflictError
		if errors.As(err, &conflict) {
			metrics.Signups.WithLabelValues("conflict").Inc()
			switch conflict.Field {
			case "email":
				httpx.WriteError(w, http.StatusBadRequest, "Email already used")
			default:
				httpx.WriteError(w, http.StatusBadRequest, "Username already used")
			}
			return
		}
		metrics.Signups.WithLabelValues("error").Inc()
		h.log.Error("signup failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}
	metrics.Signups.WithLabelValues("ok").Inc()
	h.log.Info("user registered", "user_id", user.ID)

	h.establish(w, r, user, http.StatusCreated)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	allowed, retryAfter, err := h.limiter.Allow(r.Context(), clientAddr(r))
	if err != nil {
		// Fail open: a throttle outage must not lock everyone out.
		h.log.Warn("login limiter unavailable", "error", err)
	} else if !allowed {
		metrics.Logins.WithLabelValues("rate_limited").Inc()
		if retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter/time.Second)+1))
		}
		httpx.WriteError(w, http.StatusTooManyRequests, "Too many login attempts, try again later")
		return
	}

	var req loginRequest
	if err := httpx.DecodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if fields := validateLogin(req); len(fields) > 0 {
		httpx.WriteValidationError(w, "validation failed", fields)
		return
	}

	ctx, cancel := h.storeCtx(r)
	defer cancel()

	rec, lookupErr := h.identity.UserAuthByEmail(ctx, req.Email)
	if lookupErr != nil && !identity.IsNotFound(lookupErr) {
		metrics.Logins.WithLabelValues("error").Inc()
		h.log.Error("login lookup failed", "error", lookupErr)
		httpx.WriteInternalError(w, lookupErr, h.cfg.Production)
		return
	}

	hash := h.dummyHash
	if lookupErr == nil {
		hash = rec.PasswordHash
	}
	ok, err := password.Verify(req.Password, hash)
	if err != nil {
		metrics.Logins.WithLabelValues("error").Inc()
		h.log.Error("password verify failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}
	if lookupErr != nil || !ok {
		metrics.Logins.WithLabelValues("invalid").Inc()
		httpx.WriteError(w, http.StatusBadRequest, msgInvalidCredentials)
		return
	}

	metrics.Logins.WithLabelValues("ok").Inc()
	h.log.Info("user logged in", "user_id", rec.User.ID)

	h.establish(w, r, rec.User, http.StatusOK)
}

// establish issues the post-authentication credential for the configured
// strategy and writes the success response.
func (h *Handler) establish(w http.ResponseWriter, r *http.Request, user identity.User, status int) {
	ctx, cancel := h.storeCtx(r)
	defer cancel()

	switch h.cfg.Strategy {
	case StrategySession:
		state := session.State{
			UserID:   user.ID,
			Username: user.Username,
			Email:    user.Email,
			Roles:    user.Roles,
		}
		// A fresh id on every authentication: any sid the browser held
		// before this point never gains privileges.
		var (
			sid string
			err error
		)
		if old, cErr := h.sessionIDFromCookie(r); cErr == nil {
			sid, err = h.sessions.Regenerate(ctx, old, state)
		} else {
			sid, err = h.sessions.Create(ctx, state)
		}
		if err != nil {
			h.log.Error("session create failed", "error", err)
			httpx.WriteInternalError(w, err, h.cfg.Production)
			return
		}
		h.setSessionCookie(w, sid)
		httpx.WriteJSON(w, status, authResponse{User: toUserResponse(user)})

	default: // StrategyBearer
		access, _, err := h.tokens.Issue(user.ID, user.Roles, h.now())
		if err != nil {
			h.log.Error("access token issue failed", "error", err)
			httpx.WriteInternalError(w, err, h.cfg.Production)
			return
		}
		issued, err := h.refresh.Issue(ctx, h.now(), user.ID)
		if err != nil {
			h.log.Error("refresh issue failed", "error", err)
			httpx.WriteInternalError(w, err, h.cfg.Production)
			return
		}
		h.setRefreshCookie(w, issued.Secret, issued.ExpiresAt)
		httpx.WriteJSON(w, status, authResponse{User: toUserResponse(user), AccessToken: access})
	}
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := h.storeCtx(r)
	defer cancel()

	switch h.cfg.Strategy {
	case StrategySession:
		if sid, err := h.sessionIDFromCookie(r); err == nil {
			if err := h.sessions.Destroy(ctx, sid); err != nil {
				h.log.Warn("session destroy failed", "error", err)
			}
		}
		h.clearSessionCookie(w)

	default:
		if secret, err := h.refreshSecretFromCookie(r); err == nil {
			if err := h.refresh.Revoke(ctx, secret); err != nil {
				h.log.Warn("refresh revoke failed", "error", err)
			}
		}
		h.clearRefreshCookie(w)
	}

	// Logout succeeds even without a live credential; it is idempotent.
	httpx.WriteJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

// handleRefresh rotates the presented refresh secret and mints a new
// access token. Any failure is a uniform 401 with a cleared cookie, so a
// stolen or replayed secret learns nothing about why it was refused.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	secret, err := h.refreshSecretFromCookie(r)
	if err != nil {
		h.refreshDenied(w)
		return
	}

	ctx, cancel := h.storeCtx(r)
	defer cancel()

	rotated, err := h.refresh.Redeem(ctx, h.now(), secret)
	if err != nil {
		if errors.Is(err, refresh.ErrInvalidRefreshToken) {
			metrics.RefreshRotations.WithLabelValues("invalid").Inc()
			h.refreshDenied(w)
			return
		}
		metrics.RefreshRotations.WithLabelValues("error").Inc()
		h.log.Error("refresh redeem failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}

	user, err := h.identity.UserByID(ctx, rotated.UserID)
	if err != nil {
		if identity.IsNotFound(err) {
			// Account deleted after the secret was issued.
			metrics.RefreshRotations.WithLabelValues("invalid").Inc()
			h.refreshDenied(w)
			return
		}
		metrics.RefreshRotations.WithLabelValues("error").Inc()
		h.log.Error("refresh user lookup failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}

	access, _, err := h.tokens.Issue(user.ID, user.Roles, h.now())
	if err != nil {
		metrics.RefreshRotations.WithLabelValues("error").Inc()
		h.log.Error("access token issue failed", "error", err)
		httpx.WriteInternalError(w, err, h.cfg.Production)
		return
	}

	metrics.RefreshRotations.WithLabelValues("ok").Inc()
	h.setRefreshCookie(w, rotated.Next.Secret, rotated.Next.ExpiresAt)
	httpx.WriteJSON(w, http.StatusOK, refreshResponse{AccessToken: access, User: toUserResponse(user)})
}

func (h *Handler) refreshDenied(w http.ResponseWriter) {
	h.clearRefreshCookie(w)
	httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	// Bearer claims carry no email; fill the profile from the store.
	if id.Email == "" || id.Username == "" {
		ctx, cancel := h.storeCtx(r)
		defer cancel()
		user, err := h.identity.UserByID(ctx, id.UserID)
		if err != nil {
			if identity.IsNotFound(err) {
				httpx.WriteError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			h.log.Error("profile lookup failed", "error", err)
			httpx.WriteInternalError(w, err, h.cfg.Production)
			return
		}
		id.Username = user.Username
		id.Email = user.Email
	}

	httpx.WriteJSON(w, http.StatusOK, meResponse{ID: id.UserID, Username: id.Username, Email: id.Email})
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
