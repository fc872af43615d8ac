package app

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"pinboard/cmd/internal/httpx"
	"pinboard/cmd/internal/metrics"
)

// Double-submit CSRF: the token lives in a script-readable cookie and
// must be echoed back in a header on every mutating request. A foreign
// origin can trigger the request but cannot read the cookie to forge the
// header.
const (
	csrfCookieName = "XSRF-TOKEN"
	csrfHeaderName = "X-CSRF-Token"
	csrfTokenBytes = 32
)

// WithCSRF issues the CSRF cookie and enforces the header check on
// mutating methods.
func WithCSRF(next http.Handler, production bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ := ensureCSRFCookie(w, r, production)

		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
			header := r.Header.Get(csrfHeaderName)
			if got == "" || header == "" ||
				subtle.ConstantTimeCompare([]byte(got), []byte(header)) != 1 {
				metrics.CSRFRejections.Inc()
				httpx.WriteError(w, http.StatusForbidden, "invalid csrf token")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// HandleCSRFToken serves GET /csrf-token: it guarantees the cookie exists
// and returns its value so single-page apps can seed the header.
func HandleCSRFToken(production bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value, err := ensureCSRFCookie(w, r, production)
		if err != nil {
			httpx.WriteInternalError(w, err, production)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"csrfToken": value})
	}
}

// ensureCSRFCookie returns the request's CSRF token, minting and setting
// a fresh one when the cookie is absent.
func ensureCSRFCookie(w http.ResponseWriter, r *http.Request, production bool) (string, error) {
	if c, err := r.Cookie(csrfCookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}

	buf := make([]byte, csrfTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	value := hex.EncodeToString(buf)
	// Deliberately not HttpOnly: the browser app reads it to fill the
	// header. Session-scoped, so a fresh browser gets a fresh token.
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    value,
		Path:     "/",
		Secure:   production,
		SameSite: http.SameSiteLaxMode,
	})
	return value, nil
}
