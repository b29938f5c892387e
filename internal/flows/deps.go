package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/notevault/internal/audit"
)

// Metrics carries the metric IDs flows increment. IDs are plain ints so this
// package never imports the engine's metrics registry.
type Metrics struct {
	SignupSuccess      int
	SignupDuplicate    int
	SignupRateLimited  int
	LoginSuccess       int
	LoginFailure       int
	LoginLocked        int
	LoginRateLimited   int
	AccountLockTrigger int
	MFARequired        int
	MFAEnrolled        int
	MFASuccess         int
	MFAFailure         int
	MFARateLimited     int
	MFAReplayAttempt   int
	BackupCodeUsed     int
	BackupCodeFailed   int
	RefreshSuccess     int
	RefreshFailure     int
	AccessRejected     int
	PasswordRehashed   int
	EncryptionSaltSet  int
}

// Errors carries host-level sentinel errors so callers can match them with
// errors.Is after a flow returns.
type Errors struct {
	EngineNotReady       error
	Validation           error
	InvalidCredentials   error
	AccountLocked        error
	UserNotFound         error
	EmailTaken           error
	PasswordPolicy       error
	InvalidMFACode       error
	MFAAlreadyEnrolled   error
	MFANotEnrolled       error
	MFARateLimited       error
	MFAUnavailable       error
	BackupCodeInvalid    error
	LoginRateLimited     error
	SignupRateLimited    error
	RateLimitUnavailable error
	SaltAlreadySet       error
	InvalidSalt          error
	StoreUnavailable     error
	TokenMissing         error
	TokenMalformed       error
}

// Common holds the side effects shared by every flow.
type Common struct {
	Now       func() time.Time
	MetricInc func(int)
	EmitAudit func(ctx context.Context, event audit.Type, success bool, userID string, err error, metadata func() map[string]string)
	Warn      func(msg string, keysAndValues ...any)

	ClientIPFromContext  func(context.Context) string
	UserAgentFromContext func(context.Context) string

	Metrics Metrics
	Errors  Errors
}

func (c *Common) normalize() {
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.MetricInc == nil {
		c.MetricInc = func(int) {}
	}
	if c.EmitAudit == nil {
		c.EmitAudit = func(context.Context, audit.Type, bool, string, error, func() map[string]string) {}
	}
	if c.Warn == nil {
		c.Warn = func(string, ...any) {}
	}
	if c.ClientIPFromContext == nil {
		c.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if c.UserAgentFromContext == nil {
		c.UserAgentFromContext = func(context.Context) string { return "" }
	}
}
