// Package authtoken issues and verifies short-lived, stateless access
// tokens (JWT, HS256).
//
// Access tokens are purely cryptographic assertions: verification never
// touches a store, and an issued token cannot be revoked before its
// natural expiry. That blast radius is bounded by the short TTL, which is
// why long-lived credentials live in the refresh store instead.
package authtoken

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any verification failure: bad signature,
// wrong algorithm, wrong issuer, expired, malformed. Callers must not
// distinguish between these cases toward clients.
var ErrInvalidToken = errors.New("invalid access token")

// Claims is the identity envelope carried by an access token.
type Claims struct {
	UserID    string
	Roles     []string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type jwtClaims struct {
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies access tokens with a process-wide secret.
type Manager struct {
	issuer string
	ttl    time.Duration
	secret []byte
}

// NewManager constructs a Manager. An empty secret is a configuration
// error and must be fatal at startup, not deferred to request time.
func NewManager(issuer string, ttl time.Duration, secret string) (*Manager, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("authtoken: empty signing secret")
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	if strings.TrimSpace(issuer) == "" {
		issuer = "pinboard"
	}
	return &Manager{issuer: issuer, ttl: ttl, secret: []byte(secret)}, nil
}

// Issue signs a token for userID carrying its role set.
func (m *Manager) Issue(userID string, roles []string, now time.Time) (string, time.Time, error) {
	exp := now.Add(m.ttl)

	claims := jwtClaims{
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// Verify checks signature integrity, algorithm, issuer and expiry at the
// given instant. There is no replay-window grace period.
func (m *Manager) Verify(tokenStr string, now time.Time) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &jwtClaims{},
		func(t *jwt.Token) (any, error) {
			if t.Method != jwt.SigningMethodHS256 {
				return nil, ErrInvalidToken
			}
			return m.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return now }),
	)
	if err != nil {
		return Claims{}, ErrInvalidToken
	}

	claims, ok := parsed.Claims.(*jwtClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}

	var iat, exp time.Time
	if claims.IssuedAt != nil {
		iat = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		exp = claims.ExpiresAt.Time
	}

	return Claims{
		UserID:    claims.Subject,
		Roles:     claims.Roles,
		Issuer:    claims.Issuer,
		IssuedAt:  iat,
		ExpiresAt: exp,
	}, nil
}
