// Package password implements one-way password hashing (Argon2id).
//
// Hashes are self-describing PHC strings: parameters and a per-call
// random salt are embedded in the output, so no separate salt storage
// is needed and parameters can be raised without breaking old hashes.
//
// This package deliberately enforces no password policy; length and
// strength rules belong to request validation, not to the hasher.
package password
