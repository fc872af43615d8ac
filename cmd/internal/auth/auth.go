// Package auth defines the authenticated-identity envelope shared by the
// HTTP layer and the credential verifiers.
//
// A deployment runs exactly one identity-carrier strategy (bearer access
// tokens or server-side sessions), selected at startup and never mixed
// within one route tree.
package auth

import (
	"context"
	"errors"
	"net/http"
)

// ErrUnauthenticated is returned by a Strategy when the request carries no
// usable credential. Callers must not surface more detail than a generic
// 401: distinguishing "expired" from "malformed" is an oracle.
var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the verified principal attached to a request context.
type Identity struct {
	UserID   string
	Username string
	Email    string
	Roles    []string
}

// Strategy authenticates an incoming request.
type Strategy interface {
	// Authenticate extracts and validates the request credential.
	// On failure it returns ErrUnauthenticated (possibly wrapped).
	Authenticate(r *http.Request) (Identity, error)
}

type ctxKey struct{}

// WithIdentity returns a context carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the Identity previously attached by the gate.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
