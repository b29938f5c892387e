// Package middleware adapts engine access-token validation to net/http.
//
// [Guard] reads the access token from the session cookie (or a bearer
// header for non-browser clients), calls Engine.ValidateAccess and injects
// the [notevault.AuthResult] into the request context. The cookie helpers
// set and clear the accessToken/refreshToken pair with the attributes every
// endpoint shares.
//
// This package does not parse tokens itself and never touches storage.
package middleware
