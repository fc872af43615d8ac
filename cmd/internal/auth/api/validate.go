package authapi

import (
	"strings"

	"pinboard/cmd/internal/httpx"
)

// Validation thresholds. Password policy lives here, at the request
// boundary, not in the hasher.
const (
	minUsernameLen = 3
	maxUsernameLen = 64
	minPasswordLen = 8
	maxPasswordLen = 256
	maxEmailLen    = 254
)

func validateSignup(req signupRequest) []httpx.FieldError {
	var fields []httpx.FieldError

	username := strings.TrimSpace(req.Username)
	if len(username) < minUsernameLen || len(username) > maxUsernameLen {
		fields = append(fields, httpx.FieldError{Field: "username", Message: "username must be 3-64 characters"})
	}
	if !emailLooksValid(req.Email) {
		fields = append(fields, httpx.FieldError{Field: "email", Message: "a valid email is required"})
	}
	if len(req.Password) < minPasswordLen || len(req.Password) > maxPasswordLen {
		fields = append(fields, httpx.FieldError{Field: "password", Message: "password must be 8-256 characters"})
	}
	return fields
}

func validateLogin(req loginRequest) []httpx.FieldError {
	var fields []httpx.FieldError
	if !emailLooksValid(req.Email) {
		fields = append(fields, httpx.FieldError{Field: "email", Message: "a valid email is required"})
	}
	if req.Password == "" {
		fields = append(fields, httpx.FieldError{Field: "password", Message: "password is required"})
	}
	return fields
}

// emailLooksValid is a cheap structural check; real verification belongs
// to a confirmation flow, which this service does not have.
func emailLooksValid(s string) bool {
	s = strings.TrimSpace(s)
	if len(s) < 3 || len(s) > maxEmailLen {
		return false
	}
	at := strings.IndexByte(s, '@')
	if at <= 0 || at == len(s)-1 {
		return false
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return false
	}
	return strings.IndexByte(s[at+1:], '.') > 0
}
