// Package notevault is the authentication core of a zero-knowledge notes
// service: signup with mandatory TOTP enrollment, login with account
// lockout and a second factor, stateless JWT sessions, and the per-account
// encryption salt that clients use to derive their note key.
//
// The server never sees note plaintext or the key. It stores the salt and
// opaque envelopes; derivation, encryption and decryption happen in the
// client (see the vault and client packages).
//
// Engine methods are safe to call from multiple goroutines after
// initialization through [Builder.Build].
//
// # Architecture boundaries
//
// notevault is the public surface. It exposes [Engine], [Builder], [Config]
// and value types. Flow orchestration, rate limiting, audit dispatch and
// metrics live under internal/ and are never exported. HTTP transport lives
// in internal/server and the middleware package; persistence behind
// [UserStore] lives in internal/store.
//
// # Token model
//
// Four token purposes share two secrets: access and the short-lived MFA
// tokens are signed with the access secret, refresh tokens with the refresh
// secret. Each endpoint family accepts exactly one purpose. Validation of
// access tokens is stateless and never touches Redis or the user store.
package notevault
