// Package flows contains the orchestration behind every Engine operation.
//
// Each flow function (RunSignup, RunLogin, RunConfirmEnrollment, RunRefresh,
// ...) accepts a typed dependency struct and returns results without side
// effects beyond those dependencies. The Engine owns the stores, limiters,
// token manager, audit dispatcher and metrics; flows only call them.
//
// # What this package must NOT do
//
//   - Hold mutable state between calls.
//   - Import notevault (to avoid import cycles).
//   - Perform I/O directly; all I/O is mediated through dependency funcs.
package flows
