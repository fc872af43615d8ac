package authapi

import "time"

// Strategy selects the identity carrier for the whole deployment.
// The two variants are never mixed within one route tree.
type Strategy string

const (
	// StrategyBearer authenticates via stateless access tokens plus a
	// rotating refresh-secret cookie.
	StrategyBearer Strategy = "bearer"
	// StrategySession authenticates via a server-side session id cookie.
	StrategySession Strategy = "session"
)

// Config controls auth API behavior and cookie policy.
type Config struct {
	Strategy Strategy

	// Production gates Secure cookies and response detail.
	Production bool

	MaxBodyBytes int64
	// StoreTimeout bounds every external-store call made by a handler.
	StoreTimeout time.Duration

	RefreshCookieName string
	SessionCookieName string
	CookiePath        string
	CookieDomain      string

	// RefreshTTL drives the refresh cookie max-age; it must match the
	// refresh store's configured lifetime.
	RefreshTTL time.Duration
	// SessionTTL drives the session cookie max-age.
	SessionTTL time.Duration

	LoginMax    int
	LoginWindow time.Duration
}

// DefaultConfig returns defaults matching the web deployment.
func DefaultConfig() Config {
	return Config{
		Strategy:          StrategyBearer,
		MaxBodyBytes:      1 << 20, // 1 MiB
		StoreTimeout:      3 * time.Second,
		RefreshCookieName: "refreshToken",
		SessionCookieName: "sid",
		CookiePath:        "/",
		RefreshTTL:        7 * 24 * time.Hour,
		SessionTTL:        24 * time.Hour,
		LoginMax:          5,
		LoginWindow:       15 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.Strategy != StrategySession {
		c.Strategy = StrategyBearer
	}
	if c.MaxBodyBytes <= 0 {
		c.MaxBodyBytes = def.MaxBodyBytes
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = def.StoreTimeout
	}
	if c.RefreshCookieName == "" {
		c.RefreshCookieName = def.RefreshCookieName
	}
	if c.SessionCookieName == "" {
		c.SessionCookieName = def.SessionCookieName
	}
	if c.CookiePath == "" {
		c.CookiePath = def.CookiePath
	}
	if c.RefreshTTL <= 0 {
		c.RefreshTTL = def.RefreshTTL
	}
	if c.SessionTTL <= 0 {
		c.SessionTTL = def.SessionTTL
	}
	return c
}
