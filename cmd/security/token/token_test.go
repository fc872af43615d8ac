package token

import (
	"strings"
	"testing"
)

func TestNewOpaqueSecretLengthAndUniqueness(t *testing.T) {
	a, err := NewOpaqueSecret(40)
	if err != nil {
		t.Fatalf("NewOpaqueSecret: %v", err)
	}
	b, err := NewOpaqueSecret(40)
	if err != nil {
		t.Fatalf("NewOpaqueSecret: %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct secrets")
	}
	// 40 bytes -> ceil(40*8/6) = 54 base64url chars, no padding.
	if len(a) != 54 {
		t.Fatalf("unexpected secret length: %d", len(a))
	}
	if strings.ContainsAny(a, "+/=") {
		t.Fatalf("secret is not URL-safe: %q", a)
	}
}

func TestSHA256HexDeterministic(t *testing.T) {
	d1 := SHA256Hex("secret-value")
	d2 := SHA256Hex("secret-value")
	if d1 != d2 {
		t.Fatalf("digest must be deterministic")
	}
	if len(d1) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(d1))
	}
	if d1 == SHA256Hex("secret-value2") {
		t.Fatalf("distinct inputs must not collide trivially")
	}
}

func TestDigestHexModes(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	plain := DigestHex("tok")
	if plain != SHA256Hex("tok") {
		t.Fatalf("expected SHA-256 fallback without key")
	}

	t.Setenv(HMACEnvKey, "0123456789abcdef0123456789abcdef")
	keyed := DigestHex("tok")
	if keyed == plain {
		t.Fatalf("HMAC mode must change the digest")
	}
	if len(keyed) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(keyed))
	}
}

func TestHMACKeyFromEnv(t *testing.T) {
	t.Setenv(HMACEnvKey, "")
	if _, err := HMACKeyFromEnv(32); err != ErrHMACKeyMissing {
		t.Fatalf("expected ErrHMACKeyMissing, got %v", err)
	}

	t.Setenv(HMACEnvKey, "short")
	if _, err := HMACKeyFromEnv(32); err != ErrHMACKeyTooShort {
		t.Fatalf("expected ErrHMACKeyTooShort, got %v", err)
	}

	t.Setenv(HMACEnvKey, "0123456789abcdef0123456789abcdef")
	key, err := HMACKeyFromEnv(32)
	if err != nil {
		t.Fatalf("HMACKeyFromEnv: %v", err)
	}
	if len(key) != 32 {
		t.Fatalf("unexpected key length: %d", len(key))
	}
}
