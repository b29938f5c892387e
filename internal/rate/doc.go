// Package rate provides the Redis-backed per-IP throttles for login and
// signup.
//
// # Window semantics
//
// Fixed-window counters: INCR + conditional EXPIRE on first hit. Key kinds
// under the configured prefix:
//   - ali: failed logins per IP
//   - asi: signups per IP
//
// # What this package must NOT do
//
//   - Implement per-user MFA policies (those live in internal/limiters).
//   - Be imported outside the notevault module.
package rate
