// Package token provides digest primitives for opaque secrets.
//
// It is the single source of truth for how refresh secrets and other
// server-stored opaque tokens are digested before persistence:
//
//   - Default mode: SHA-256(secret), deterministic and unsalted so the
//     store can look records up by exact digest match.
//   - Keyed mode: HMAC-SHA256(secret, key) when PINBOARD_TOKEN_HMAC_KEY
//     is set, which keeps digests unlinkable to secrets even if the
//     database leaks.
//
// Output is always a stable 64-char hex string.
package token
