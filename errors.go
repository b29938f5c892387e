package notevault

import (
	"errors"

	"github.com/MrEthical07/notevault/internal/account"
	"github.com/MrEthical07/notevault/jwt"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or a wrong
	// password. Callers cannot tell the two apart.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrAccountLocked is returned while the account is inside a lockout
	// window, whether or not the password is correct.
	ErrAccountLocked = errors.New("account locked")
	// ErrUserNotFound is returned by UserStore lookups.
	ErrUserNotFound = account.ErrUserNotFound
	// ErrEmailTaken is returned by signup and UserStore.CreateUser for a
	// duplicate email.
	ErrEmailTaken = account.ErrEmailTaken
	// ErrPasswordPolicy wraps the violations reported by password.Policy.
	ErrPasswordPolicy = errors.New("password policy violation")
	// ErrValidation is returned for malformed engine inputs.
	ErrValidation = errors.New("validation error")

	// ErrInvalidMFACode is returned for a wrong, malformed or replayed TOTP
	// code.
	ErrInvalidMFACode = errors.New("invalid mfa code")
	// ErrMFARequired is returned by Login when MFA is enabled and no code
	// was supplied inline.
	ErrMFARequired = errors.New("mfa code required")
	// ErrMFAAlreadyEnrolled is returned by VerifyMFA for an account whose
	// MFA is already enabled.
	ErrMFAAlreadyEnrolled = errors.New("mfa already enrolled")
	// ErrMFANotEnrolled is returned by MFA login completion for an account
	// without MFA.
	ErrMFANotEnrolled = errors.New("mfa not enrolled")
	// ErrMFARateLimited is returned after too many failed MFA codes.
	ErrMFARateLimited = errors.New("mfa attempts rate limited")
	// ErrMFAUnavailable wraps Redis failures in the MFA limiter and replay
	// guard.
	ErrMFAUnavailable = errors.New("mfa backend unavailable")
	// ErrBackupCodeInvalid is returned for an unknown or already used
	// backup code.
	ErrBackupCodeInvalid = errors.New("invalid backup code")

	// ErrLoginRateLimited is returned by the per-IP login throttle.
	ErrLoginRateLimited = errors.New("login rate limited")
	// ErrSignupRateLimited is returned by the per-IP signup throttle.
	ErrSignupRateLimited = errors.New("signup rate limited")
	// ErrRateLimitUnavailable wraps Redis failures in the IP throttles.
	ErrRateLimitUnavailable = errors.New("rate limit backend unavailable")

	// ErrSaltAlreadySet is returned when the account encryption salt has
	// already been persisted.
	ErrSaltAlreadySet = errors.New("encryption salt already set")
	// ErrInvalidSalt is returned for a salt that is not base64 of 16 bytes.
	ErrInvalidSalt = errors.New("invalid encryption salt")

	// ErrStoreUnavailable wraps credential store failures.
	ErrStoreUnavailable = errors.New("credential store unavailable")
	// ErrEngineNotReady is returned by a nil or partially built Engine.
	ErrEngineNotReady = errors.New("engine not initialized")
)

// Token errors are re-exported so transport code can classify them without
// importing the jwt package.
var (
	// ErrTokenMissing is returned when no token was presented.
	ErrTokenMissing = errors.New("token missing")
	// ErrTokenExpired is returned for a well-formed token past its exp.
	ErrTokenExpired = jwt.ErrTokenExpired
	// ErrTokenMalformed is returned for a token with a bad encoding,
	// signature or claim set.
	ErrTokenMalformed = jwt.ErrTokenMalformed
	// ErrTokenWrongPurpose is returned for a validly signed token presented
	// to the wrong endpoint.
	ErrTokenWrongPurpose = jwt.ErrTokenWrongPurpose
)

// TokenErrorReason maps a token error to the short reason string sent to
// clients. It returns "" for errors that are not token errors.
func TokenErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrTokenMissing):
		return "missing"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenWrongPurpose):
		return "wrong_purpose"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	default:
		return ""
	}
}
