package authapi

import (
	"errors"
	"net/http"
	"time"
)

var errNoCookie = errors.New("authapi: cookie not present")

// setRefreshCookie delivers a refresh secret to the browser. The cookie
// is HttpOnly so script can never read it; rotation on every redeem
// bounds the damage of a leaked value to a single use.
func (h *Handler) setRefreshCookie(w http.ResponseWriter, secret string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.RefreshCookieName,
		Value:    secret,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		Expires:  expiresAt,
		MaxAge:   int(time.Until(expiresAt) / time.Second),
		HttpOnly: true,
		Secure:   h.cfg.Production,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.RefreshCookieName,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Production,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) refreshSecretFromCookie(r *http.Request) (string, error) {
	c, err := r.Cookie(h.cfg.RefreshCookieName)
	if err != nil || c.Value == "" {
		return "", errNoCookie
	}
	return c.Value, nil
}

// Session cookies carry only an opaque id; state lives server side.
// No Expires is set, the server-side TTL is the authority and the
// cookie itself stays a session cookie.
func (h *Handler) setSessionCookie(w http.ResponseWriter, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    sid,
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		HttpOnly: true,
		Secure:   h.cfg.Production,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cfg.SessionCookieName,
		Value:    "",
		Path:     h.cfg.CookiePath,
		Domain:   h.cfg.CookieDomain,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cfg.Production,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) sessionIDFromCookie(r *http.Request) (string, error) {
	c, err := r.Cookie(h.cfg.SessionCookieName)
	if err != nil || c.Value == "" {
		return "", errNoCookie
	}
	return c.Value, nil
}
