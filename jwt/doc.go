// Package jwt issues and verifies the purpose-scoped tokens used by notevault:
// access, refresh, mfa-setup and mfa-login.
//
// Verification is stateless and side-effect free. Every failure is classified
// as expired, malformed or wrong-purpose so transports can report a distinct
// reason without string matching.
package jwt
