package authapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"pinboard/cmd/identity"
	"pinboard/cmd/internal/auth/refresh"
	"pinboard/cmd/internal/auth/session"
	authtoken "pinboard/cmd/internal/auth/token"
	"pinboard/cmd/security/password"
)

// fastParams keeps argon2id cheap in tests while staying inside the
// verifier's accepted bounds.
var fastParams = password.Params{
	MemoryKiB:   8 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

type fakeIdentity struct {
	mu      sync.Mutex
	byEmail map[string]identity.UserAuth
	byID    map[string]identity.User
	nextID  int
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{
		byEmail: make(map[string]identity.UserAuth),
		byID:    make(map[string]identity.User),
	}
}

func (f *fakeIdentity) CreateUser(_ context.Context, in identity.CreateUserInput) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	email := identity.NormalizeEmail(in.Email)
	if _, ok := f.byEmail[email]; ok {
		return identity.User{}, identity.ConflictError{Op: "create user", Field: "email"}
	}
	hash, err := password.Hash(in.Password, fastParams)
	if err != nil {
		return identity.User{}, err
	}

	f.nextID++
	u := identity.User{
		ID:        fmt.Sprintf("user-%04d", f.nextID),
		Username:  identity.NormalizeUsername(in.Username),
		Email:     email,
		Roles:     []string{"user"},
		CreatedAt: in.Now,
	}
	f.byEmail[email] = identity.UserAuth{User: u, PasswordHash: hash}
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeIdentity) UserAuthByEmail(_ context.Context, email string) (identity.UserAuth, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.byEmail[identity.NormalizeEmail(email)]
	if !ok {
		return identity.UserAuth{}, identity.NotFoundError{Op: "user by email", Resource: "user"}
	}
	return rec, nil
}

func (f *fakeIdentity) UserByID(_ context.Context, id string) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return identity.User{}, identity.NotFoundError{Op: "user by id", Resource: "user"}
	}
	return u, nil
}

type denyLimiter struct{ retryAfter time.Duration }

func (d denyLimiter) Allow(context.Context, string) (bool, time.Duration, error) {
	return false, d.retryAfter, nil
}

func newBearerHandler(t *testing.T) (*Handler, *fakeIdentity, *http.ServeMux) {
	t.Helper()

	tokens, err := authtoken.NewManager("pinboard", 15*time.Minute, "0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	ids := newFakeIdentity()
	cfg := DefaultConfig()
	h, err := NewHandler(nil, cfg, ids, tokens, refresh.NewMemoryStore(refresh.DefaultConfig()), nil, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	return h, ids, mux
}

func newSessionHandler(t *testing.T) (*Handler, *http.ServeMux) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sess, err := session.NewStore(client, session.DefaultConfig())
	if err != nil {
		t.Fatalf("session.NewStore: %v", err)
	}

	cfg := DefaultConfig()
	cfg.Strategy = StrategySession
	h, err := NewHandler(nil, cfg, newFakeIdentity(), nil, nil, sess, nil)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}

	mux := http.NewServeMux()
	h.Register(mux)
	return h, mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func cookieByName(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	t.Fatalf("response has no %q cookie", name)
	return nil
}

func signup(t *testing.T, mux *http.ServeMux, username, email, pw string) *httptest.ResponseRecorder {
	t.Helper()
	rec := doJSON(t, mux, http.MethodPost, "/auth/signup",
		`{"username":"`+username+`","email":"`+email+`","password":"`+pw+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup status = %d, body %s", rec.Code, rec.Body.String())
	}
	return rec
}

func TestSignupIssuesCredentials(t *testing.T) {
	_, _, mux := newBearerHandler(t)

	rec := signup(t, mux, "ada", "ada@example.com", "correct horse battery")

	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.User.Email != "ada@example.com" || resp.User.Username != "ada" {
		t.Fatalf("unexpected user payload: %+v", resp.User)
	}
	if resp.AccessToken == "" {
		t.Fatal("expected an access token")
	}

	c := cookieByName(t, rec, "refreshToken")
	if !c.HttpOnly {
		t.Fatal("refresh cookie must be HttpOnly")
	}
	if c.SameSite != http.SameSiteLaxMode {
		t.Fatalf("refresh cookie SameSite = %v, want Lax", c.SameSite)
	}
	if len(c.Value) < 50 {
		t.Fatalf("refresh secret suspiciously short: %d chars", len(c.Value))
	}
}

func TestSignupDuplicateEmail(t *testing.T) {
	_, _, mux := newBearerHandler(t)
	signup(t, mux, "ada", "ada@example.com", "correct horse battery")

	rec := doJSON(t, mux, http.MethodPost, "/auth/signup",
		`{"username":"other","email":"ada@example.com","password":"different password"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Email already used") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestSignupValidation(t *testing.T) {
	_, _, mux := newBearerHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/auth/signup",
		`{"username":"x","email":"not-an-email","password":"short"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	var body struct {
		Success bool `json:"success"`
		Errors  []struct {
			Field string `json:"field"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Success {
		t.Fatal("success should be false")
	}
	if len(body.Errors) != 3 {
		t.Fatalf("got %d field errors, want 3", len(body.Errors))
	}
}

func TestLoginFailuresAreIndistinguishable(t *testing.T) {
	_, _, mux := newBearerHandler(t)
	signup(t, mux, "ada", "ada@example.com", "correct horse battery")

	unknown := doJSON(t, mux, http.MethodPost, "/auth/login",
		`{"email":"nobody@example.com","password":"whatever password"}`)
	wrongPw := doJSON(t, mux, http.MethodPost, "/auth/login",
		`{"email":"ada@example.com","password":"wrong password here"}`)

	if unknown.Code != http.StatusBadRequest || wrongPw.Code != http.StatusBadRequest {
		t.Fatalf("statuses = %d, %d, want 400, 400", unknown.Code, wrongPw.Code)
	}
	if unknown.Body.String() != wrongPw.Body.String() {
		t.Fatalf("failure bodies differ:\n%s\n%s", unknown.Body.String(), wrongPw.Body.String())
	}
}

func TestLoginSuccess(t *testing.T) {
	h, _, mux := newBearerHandler(t)
	signup(t, mux, "ada", "ada@example.com", "correct horse battery")

	rec := doJSON(t, mux, http.MethodPost, "/auth/login",
		`{"email":"ada@example.com","password":"correct horse battery"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	claims, err := h.tokens.Verify(resp.AccessToken, time.Now())
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if claims.UserID != resp.User.ID {
		t.Fatalf("token subject %q != user id %q", claims.UserID, resp.User.ID)
	}
	cookieByName(t, rec, "refreshToken")
}

func TestRefreshRotatesSecret(t *testing.T) {
	_, _, mux := newBearerHandler(t)
	login := signup(t, mux, "ada", "ada@example.com", "correct horse battery")
	first := cookieByName(t, login, "refreshToken")

	rec := doJSON(t, mux, http.MethodGet, "/auth/refresh-token", "", first)
	if rec.Code != http.StatusOK {
		t.Fatalf("refresh status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp refreshResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AccessToken == "" {
		t.Fatal("rotation must mint a new access token")
	}
	second := cookieByName(t, rec, "refreshToken")
	if second.Value == first.Value {
		t.Fatal("rotation returned the same secret")
	}

	// The first secret is spent; replaying it must fail.
	replay := doJSON(t, mux, http.MethodGet, "/auth/refresh-token", "", first)
	if replay.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", replay.Code)
	}

	// The rotated secret still works.
	next := doJSON(t, mux, http.MethodGet, "/auth/refresh-token", "", second)
	if next.Code != http.StatusOK {
		t.Fatalf("rotated secret status = %d", next.Code)
	}
}

func TestRefreshWithoutCookie(t *testing.T) {
	_, _, mux := newBearerHandler(t)

	rec := doJSON(t, mux, http.MethodGet, "/auth/refresh-token", "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Unauthorized") {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestLogoutRevokesRefreshSecret(t *testing.T) {
	_, _, mux := newBearerHandler(t)
	login := signup(t, mux, "ada", "ada@example.com", "correct horse battery")
	c := cookieByName(t, login, "refreshToken")

	out := doJSON(t, mux, http.MethodPost, "/auth/logout", "", c)
	if out.Code != http.StatusOK {
		t.Fatalf("logout status = %d", out.Code)
	}
	cleared := cookieByName(t, out, "refreshToken")
	if cleared.Value != "" || cleared.MaxAge != -1 {
		t.Fatalf("logout did not clear the cookie: %+v", cleared)
	}

	rec := doJSON(t, mux, http.MethodGet, "/auth/refresh-token", "", c)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked secret refresh status = %d, want 401", rec.Code)
	}
}

func TestLogoutWithoutCredentialIsOK(t *testing.T) {
	_, _, mux := newBearerHandler(t)

	rec := doJSON(t, mux, http.MethodPost, "/auth/logout", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestMeRequiresBearerToken(t *testing.T) {
	_, _, mux := newBearerHandler(t)
	login := signup(t, mux, "ada", "ada@example.com", "correct horse battery")

	var resp authResponse
	if err := json.Unmarshal(login.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}

	// No credential.
	anon := doJSON(t, mux, http.MethodGet, "/auth/me", "")
	if anon.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", anon.Code)
	}

	// Garbage credential gets the same generic denial.
	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	junk := httptest.NewRecorder()
	mux.ServeHTTP(junk, req)
	if junk.Code != http.StatusUnauthorized {
		t.Fatalf("junk token status = %d, want 401", junk.Code)
	}
	if anon.Body.String() != junk.Body.String() {
		t.Fatal("401 bodies must not distinguish missing from malformed credentials")
	}

	// Valid credential.
	req = httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	ok := httptest.NewRecorder()
	mux.ServeHTTP(ok, req)
	if ok.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, body %s", ok.Code, ok.Body.String())
	}
	var me meResponse
	if err := json.Unmarshal(ok.Body.Bytes(), &me); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if me.Email != "ada@example.com" {
		t.Fatalf("me email = %q", me.Email)
	}
}

func TestLoginRateLimited(t *testing.T) {
	tokens, err := authtoken.NewManager("pinboard", 15*time.Minute, "0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	h, err := NewHandler(nil, DefaultConfig(), newFakeIdentity(), tokens,
		refresh.NewMemoryStore(refresh.DefaultConfig()), nil, denyLimiter{retryAfter: 90 * time.Second})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	mux := http.NewServeMux()
	h.Register(mux)

	rec := doJSON(t, mux, http.MethodPost, "/auth/login",
		`{"email":"ada@example.com","password":"correct horse battery"}`)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected a Retry-After header")
	}
}

func TestRedisLoginLimiterWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	lim, err := NewRedisLoginLimiter(client, 3, time.Minute)
	if err != nil {
		t.Fatalf("NewRedisLoginLimiter: %v", err)
	}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, _, err := lim.Allow(ctx, "10.0.0.1")
		if err != nil || !ok {
			t.Fatalf("attempt %d: ok=%v err=%v", i+1, ok, err)
		}
	}
	ok, retryAfter, err := lim.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if ok {
		t.Fatal("fourth attempt should be denied")
	}
	if retryAfter <= 0 || retryAfter > time.Minute {
		t.Fatalf("retryAfter = %v", retryAfter)
	}

	// A different address is unaffected.
	if ok, _, _ := lim.Allow(ctx, "10.0.0.2"); !ok {
		t.Fatal("limit leaked across addresses")
	}

	// The window expires.
	mr.FastForward(2 * time.Minute)
	if ok, _, _ := lim.Allow(ctx, "10.0.0.1"); !ok {
		t.Fatal("attempt after window expiry should be admitted")
	}
}

func TestSessionLoginRegeneratesID(t *testing.T) {
	_, mux := newSessionHandler(t)

	rec := signup(t, mux, "ada", "ada@example.com", "correct horse battery")
	var resp authResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.AccessToken != "" {
		t.Fatal("session strategy must not mint access tokens")
	}
	first := cookieByName(t, rec, "sid")

	// Logging in with a pre-existing cookie must leave that id behind.
	login := doJSON(t, mux, http.MethodPost, "/auth/login",
		`{"email":"ada@example.com","password":"correct horse battery"}`, first)
	if login.Code != http.StatusOK {
		t.Fatalf("login status = %d, body %s", login.Code, login.Body.String())
	}
	second := cookieByName(t, login, "sid")
	if second.Value == first.Value {
		t.Fatal("session id must change across authentication")
	}

	// The old id is dead server-side, not just replaced in the browser.
	stale := doJSON(t, mux, http.MethodGet, "/auth/me", "", first)
	if stale.Code != http.StatusUnauthorized {
		t.Fatalf("stale session status = %d, want 401", stale.Code)
	}
	live := doJSON(t, mux, http.MethodGet, "/auth/me", "", second)
	if live.Code != http.StatusOK {
		t.Fatalf("live session status = %d", live.Code)
	}
}

func TestSessionLogoutDestroysServerState(t *testing.T) {
	_, mux := newSessionHandler(t)

	rec := signup(t, mux, "ada", "ada@example.com", "correct horse battery")
	sid := cookieByName(t, rec, "sid")

	out := doJSON(t, mux, http.MethodPost, "/auth/logout", "", sid)
	if out.Code != http.StatusOK {
		t.Fatalf("logout status = %d", out.Code)
	}

	// Replaying the cookie after logout is useless.
	rec = doJSON(t, mux, http.MethodGet, "/auth/me", "", sid)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("replayed session status = %d, want 401", rec.Code)
	}
}

func TestSessionStrategyHasNoRefreshRoute(t *testing.T) {
	_, mux := newSessionHandler(t)

	rec := doJSON(t, mux, http.MethodGet, "/auth/refresh-token", "")
	if rec.Code == http.StatusOK {
		t.Fatal("session deployments must not expose the refresh route")
	}
}
