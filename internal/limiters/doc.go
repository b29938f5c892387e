// Package limiters provides the Redis-backed MFA protections.
//
// # Limiters
//
//   - [MFALimiter]: per-user failure counter shared by TOTP and backup
//     codes; fixed window, INCR + EXPIRE on first hit.
//   - [ReplayGuard]: SETNX per accepted TOTP step so a code works once.
//
// All types are nil-safe: calling any method on a nil receiver is a no-op
// that allows the attempt.
//
// # What this package must NOT do
//
//   - Import notevault or any sibling internal package.
//   - Make policy decisions beyond counting; flow functions decide
//     consequences.
package limiters
