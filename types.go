package notevault

import (
	"context"
	"io"
	"time"

	"github.com/MrEthical07/notevault/internal/account"
	internalaudit "github.com/MrEthical07/notevault/internal/audit"
)

// BackupCode is one single-use MFA recovery code. Only the SHA-256 hash is
// stored; see [BackupCodeHash].
type BackupCode = account.BackupCode

// MFA is the second-factor state of an account.
type MFA = account.MFA

// User is the credential record held by a [UserStore].
type User = account.User

// SafeUser is the only user shape that leaves the server.
type SafeUser = account.SafeUser

// CreateUserInput is the input for [UserStore.CreateUser]. Email is already
// normalized.
type CreateUserInput = account.CreateUserInput

// UserStore is the credential store the engine authenticates against.
//
// Implementations return [ErrUserNotFound] for missing users and
// [ErrEmailTaken] for a duplicate email; any other error is treated as a
// backend failure. RecordLoginAttempt must be one atomic read-modify-write
// per account.
type UserStore = account.Store

// NormalizeEmail trims and lower-cases an address.
func NormalizeEmail(email string) string {
	return account.NormalizeEmail(email)
}

// WelcomeNotice is sent once MFA enrollment completes.
type WelcomeNotice struct {
	Email string
	Name  string
}

// LoginNotice is sent after every successful login.
type LoginNotice struct {
	Email     string
	Name      string
	IP        string
	UserAgent string
	At        time.Time
}

// Notifier delivers account notifications. Failures are logged and never
// fail the request that triggered them.
type Notifier interface {
	NotifyWelcome(ctx context.Context, n WelcomeNotice) error
	NotifyLogin(ctx context.Context, n LoginNotice) error
}

type noopNotifier struct{}

func (noopNotifier) NotifyWelcome(context.Context, WelcomeNotice) error { return nil }
func (noopNotifier) NotifyLogin(context.Context, LoginNotice) error     { return nil }

// Tokens is an issued access/refresh pair with expiries for cookie MaxAge.
type Tokens = account.Tokens

// SignupRequest is the input for [Engine.Signup].
type SignupRequest struct {
	Name     string
	Email    string
	Password string
}

// SignupResult carries everything the client needs to enroll MFA.
type SignupResult struct {
	User *User
	// TempToken is an mfa-setup token for [Engine.VerifyMFA].
	TempToken string
	// QRCode is a data:image/png;base64 URL of the provisioning URI.
	QRCode string
	// Secret is the base32 TOTP secret for manual entry.
	Secret string
	// URI is the otpauth:// provisioning URI.
	URI string
}

// LoginResult is returned by [Engine.Login] and the MFA completion paths.
// Either MFARequired is set with TempToken, or User and Tokens are set.
type LoginResult struct {
	MFARequired bool
	// TempToken is an mfa-login token when MFARequired.
	TempToken string

	User   *User
	Tokens Tokens
}

// VerifyMFAResult is returned by [Engine.VerifyMFA].
type VerifyMFAResult struct {
	User   *User
	Tokens Tokens
	// BackupCodes are the formatted plaintext recovery codes. They are
	// returned exactly once.
	BackupCodes []string
}

// RefreshResult is returned by [Engine.Refresh].
type RefreshResult struct {
	User   *User
	Tokens Tokens
}

// AuthResult is the identity attached to an authenticated request.
type AuthResult struct {
	UserID    string
	TokenID   string
	ExpiresAt time.Time
}

// AuditEvent is a structured audit record emitted by the engine.
type AuditEvent = internalaudit.Event

// AuditEventType names an [AuditEvent]; its Category and Critical methods
// classify it.
type AuditEventType = internalaudit.Type

// AuditSink receives [AuditEvent] values from the engine's audit dispatcher.
type AuditSink = internalaudit.Sink

// NoOpSink is an [AuditSink] that discards all events.
type NoOpSink = internalaudit.NoOpSink

// ChannelSink is a buffered channel-based [AuditSink].
type ChannelSink = internalaudit.ChannelSink

// JSONWriterSink writes one JSON-encoded event per line to an [io.Writer].
type JSONWriterSink = internalaudit.JSONWriterSink

// NewChannelSink creates a [ChannelSink] with the given buffer capacity.
func NewChannelSink(buffer int) *ChannelSink {
	return internalaudit.NewChannelSink(buffer)
}

// NewJSONWriterSink creates a [JSONWriterSink] that writes to w.
func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return internalaudit.NewJSONWriterSink(w)
}
