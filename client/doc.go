// Package client talks to the notevault HTTP API and keeps the note
// encryption key for one signed-in session.
//
// [API] is the transport. It carries the session cookies, retries a call
// once after refreshing an expired access token and reports server errors
// as [*APIError]. [Session] is the state machine a terminal or desktop
// front end drives: it authenticates through [API], derives the vault key
// from the passphrase and encrypts and decrypts notes. The key exists only
// inside a Session and is destroyed on Lock and Logout.
package client
