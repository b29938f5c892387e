// Package lockout implements the brute-force lockout rule applied to password checks.
//
// A [Policy] is pure: it maps a [State] and the outcome of one password check
// to the next State. Credential stores apply it atomically per account, either
// under a per-account mutex or as a single conditional SQL update.
//
// # Rule
//
//   - success resets Attempts to 0 and clears LockUntil
//   - failure increments Attempts; reaching Threshold sets LockUntil = now + Duration
//   - a failure after LockUntil has elapsed starts a new window at Attempts = 1
//
// Callers must reject attempts while [Policy.Locked] is true before hashing.
package lockout
