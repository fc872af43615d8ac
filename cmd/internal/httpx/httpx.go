// Package httpx is the single HTTP boundary formatter.
//
// Every handler error funnels through WriteError so the wire shape is
// uniform: {"success":false,"message":...}, with field-level detail only
// for validation failures and internal detail only outside production.
package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// FieldError carries field-level validation detail.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"msg"`
}

type errorResponse struct {
	Success bool         `json:"success"`
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors,omitempty"`
	Detail  string       `json:"detail,omitempty"`
}

// WriteJSON writes v as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes the uniform failure envelope.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, errorResponse{Success: false, Message: msg})
}

// WriteValidationError writes a 400 with field-level detail.
func WriteValidationError(w http.ResponseWriter, msg string, fields []FieldError) {
	WriteJSON(w, http.StatusBadRequest, errorResponse{Success: false, Message: msg, Errors: fields})
}

// WriteInternalError writes a 500 (or 503 for store timeouts). Internal
// detail is included only when production is false.
func WriteInternalError(w http.ResponseWriter, err error, production bool) {
	status := http.StatusInternalServerError
	msg := "Internal Server Error"
	if IsStoreUnavailable(err) {
		status = http.StatusServiceUnavailable
		msg = "service temporarily unavailable"
	}

	resp := errorResponse{Success: false, Message: msg}
	if !production && err != nil {
		resp.Detail = err.Error()
	}
	WriteJSON(w, status, resp)
}

// IsStoreUnavailable reports whether err looks like a bounded-timeout or
// connectivity failure against an external store, i.e. retryable by the
// caller rather than a bug.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}

// DecodeJSON strictly decodes a single JSON value from the request body.
func DecodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, dst any) error {
	if r.Body == nil {
		return errors.New("empty body")
	}
	defer func() { _ = r.Body.Close() }()

	body := http.MaxBytesReader(w, r.Body, maxBytes)
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	// No trailing data after the first JSON value.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return errors.New("extra data after JSON object")
	}
	return nil
}
