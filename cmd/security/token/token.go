package token

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"os"
	"strings"
)

// HMACEnvKey is the env var name for the optional digest HMAC secret.
// #nosec G101 -- not a credential; it's an environment variable name.
const HMACEnvKey = "PINBOARD_TOKEN_HMAC_KEY"

// NewOpaqueSecret returns nBytes of cryptographic randomness encoded as
// URL-safe base64 without padding. The raw value is handed to the client
// once and never persisted; the server keeps only DigestHex(secret).
func NewOpaqueSecret(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = 40
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Hex returns a SHA-256 hex digest of s.
func SHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// DigestHex digests an opaque secret for server-side storage.
// If PINBOARD_TOKEN_HMAC_KEY is set (non-empty), uses HMAC-SHA256;
// otherwise plain SHA-256.
func DigestHex(secret string) string {
	key := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if key == "" {
		return SHA256Hex(secret)
	}
	return HMACSHA256Hex(secret, []byte(key))
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed),
// enforcing a minimum byte length. Missing/blank -> ErrHMACKeyMissing,
// too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}
