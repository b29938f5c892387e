// Package vault derives the per-account note key from a passphrase and seals
// note content with it.
//
// Derivation is PBKDF2-HMAC-SHA256 with 200,000 iterations over a 16-byte
// account salt. Sealing is AES-256-GCM with a random 12-byte IV per call.
// Nothing in this package touches the network or disk; the key lives only in
// the memory of the process that derived it.
package vault
