package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MrEthical07/notevault/internal/account"
	"github.com/MrEthical07/notevault/internal/audit"
	"github.com/MrEthical07/notevault/jwt"
	"github.com/MrEthical07/notevault/lockout"
)

// MFA methods accepted by RunCompleteLoginMFA.
const (
	MFAMethodTOTP   = "totp"
	MFAMethodBackup = "backup"
)

// LoginOutput is either an MFA challenge or an authenticated session.
type LoginOutput struct {
	MFARequired bool
	TempToken   string

	User   *account.User
	Tokens account.Tokens
}

// LoginDeps captures login and MFA-completion dependencies.
type LoginDeps struct {
	Common

	Policy                 lockout.Policy
	PasswordUpgradeOnLogin bool
	NotifyLogins           bool

	CheckLoginRate     func(ctx context.Context, ip string) error
	IncrementLoginRate func(ctx context.Context, ip string) error
	IsRateLimited      func(error) bool

	GetUserByEmail     func(ctx context.Context, email string) (*account.User, error)
	GetUserByID        func(ctx context.Context, userID string) (*account.User, error)
	RecordLoginAttempt func(ctx context.Context, userID string, success bool, policy lockout.Policy, now time.Time) (lockout.State, error)
	TouchLastLogin     func(ctx context.Context, userID string, at time.Time) error
	UpdatePasswordHash func(ctx context.Context, userID, hash string) error

	VerifyPassword       func(password, encoded string) (bool, error)
	VerifyDummy          func(password string)
	PasswordNeedsUpgrade func(encoded string) (bool, error)
	HashPassword         func(password string) (string, error)

	VerifyTOTP        func(ctx context.Context, user *account.User, code string) error
	ConsumeBackupCode func(ctx context.Context, user *account.User, code string) error

	IssueToken   func(purpose jwt.Purpose, userID string) (string, time.Time, error)
	IssueSession func(ctx context.Context, userID string) (account.Tokens, error)
	NotifyLogin  func(ctx context.Context, user *account.User, ip, userAgent string, at time.Time)
}

func (d *LoginDeps) ready() bool {
	return d.GetUserByEmail != nil && d.GetUserByID != nil && d.RecordLoginAttempt != nil &&
		d.VerifyPassword != nil && d.IssueToken != nil && d.IssueSession != nil
}

func (d *LoginDeps) normalizeLogin() {
	d.normalize()
	if d.IsRateLimited == nil {
		d.IsRateLimited = func(error) bool { return false }
	}
	if d.VerifyDummy == nil {
		d.VerifyDummy = func(string) {}
	}
}

// RunLogin checks the password against the lockout policy and either
// finishes the login or returns an mfa-login challenge. A non-empty mfaCode
// completes the challenge inline.
func RunLogin(ctx context.Context, email, password, mfaCode string, deps LoginDeps) (*LoginOutput, error) {
	deps.normalizeLogin()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	email = account.NormalizeEmail(email)
	ip := deps.ClientIPFromContext(ctx)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, ip); err != nil {
			return nil, loginRateError(ctx, email, err, &deps)
		}
	}

	if password == "" || email == "" {
		return nil, failLogin(ctx, "", email, ip, "empty_credentials", &deps)
	}

	user, err := deps.GetUserByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, deps.Errors.UserNotFound) {
			return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
		}
		deps.VerifyDummy(password)
		return nil, failLogin(ctx, "", email, ip, "user_not_found", &deps)
	}

	now := deps.Now()
	if deps.Policy.Locked(user.LockState(), now) {
		deps.MetricInc(deps.Metrics.LoginLocked)
		deps.EmitAudit(ctx, audit.LoginLocked, false, user.ID, deps.Errors.AccountLocked, func() map[string]string {
			return map[string]string{"lock_until": user.LockUntil.UTC().Format(time.RFC3339)}
		})
		return nil, deps.Errors.AccountLocked
	}

	ok, verr := deps.VerifyPassword(password, user.PasswordHash)
	if verr != nil {
		deps.Warn("stored password hash unreadable", "user_id", user.ID, "error", verr)
		ok = false
	}

	state, err := deps.RecordLoginAttempt(ctx, user.ID, ok, deps.Policy, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	user.LoginAttempts = state.Attempts
	user.LockUntil = state.LockUntil

	if ok && deps.Policy.Locked(state, now) {
		// Locked by a concurrent failure while this password was hashed.
		deps.MetricInc(deps.Metrics.LoginLocked)
		deps.EmitAudit(ctx, audit.LoginLocked, false, user.ID, deps.Errors.AccountLocked, func() map[string]string {
			return map[string]string{"lock_until": state.LockUntil.UTC().Format(time.RFC3339)}
		})
		return nil, deps.Errors.AccountLocked
	}

	if !ok {
		if deps.Policy.Locked(state, now) {
			deps.MetricInc(deps.Metrics.AccountLockTrigger)
			deps.EmitAudit(ctx, audit.AccountLocked, false, user.ID, deps.Errors.AccountLocked, func() map[string]string {
				return map[string]string{"attempts": fmt.Sprint(state.Attempts)}
			})
		}
		return nil, failLogin(ctx, user.ID, email, ip, "password_mismatch", &deps)
	}

	if deps.PasswordUpgradeOnLogin {
		upgradePasswordHash(ctx, user, password, &deps)
	}
	password = ""

	if user.MFA.Enabled {
		if strings.TrimSpace(mfaCode) != "" {
			if deps.VerifyTOTP == nil {
				return nil, deps.Errors.EngineNotReady
			}
			if err := deps.VerifyTOTP(ctx, user, mfaCode); err != nil {
				return nil, err
			}
			return finishLogin(ctx, user, &deps)
		}

		tempToken, _, err := deps.IssueToken(jwt.PurposeMFALogin, user.ID)
		if err != nil {
			return nil, err
		}
		deps.MetricInc(deps.Metrics.MFARequired)
		deps.EmitAudit(ctx, audit.MFARequired, true, user.ID, nil, nil)
		return &LoginOutput{MFARequired: true, TempToken: tempToken}, nil
	}

	return finishLogin(ctx, user, &deps)
}

// RunCompleteLoginMFA finishes a login for the subject of a verified
// mfa-login token using either a TOTP or a backup code.
func RunCompleteLoginMFA(ctx context.Context, userID, code, method string, deps LoginDeps) (*LoginOutput, error) {
	deps.normalizeLogin()
	if !deps.ready() {
		return nil, deps.Errors.EngineNotReady
	}

	user, err := deps.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			return nil, deps.Errors.UserNotFound
		}
		return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}
	if deps.Policy.Locked(user.LockState(), deps.Now()) {
		deps.MetricInc(deps.Metrics.LoginLocked)
		return nil, deps.Errors.AccountLocked
	}
	if !user.MFA.Enabled {
		return nil, deps.Errors.MFANotEnrolled
	}

	switch method {
	case MFAMethodTOTP, "":
		if deps.VerifyTOTP == nil {
			return nil, deps.Errors.EngineNotReady
		}
		err = deps.VerifyTOTP(ctx, user, code)
	case MFAMethodBackup:
		if deps.ConsumeBackupCode == nil {
			return nil, deps.Errors.EngineNotReady
		}
		err = deps.ConsumeBackupCode(ctx, user, code)
	default:
		err = deps.Errors.Validation
	}
	if err != nil {
		return nil, err
	}

	return finishLogin(ctx, user, &deps)
}

func finishLogin(ctx context.Context, user *account.User, deps *LoginDeps) (*LoginOutput, error) {
	now := deps.Now()
	if deps.TouchLastLogin != nil {
		if err := deps.TouchLastLogin(ctx, user.ID, now); err != nil {
			deps.Warn("last login update failed", "user_id", user.ID, "error", err)
		} else {
			user.LastLogin = &now
		}
	}

	tokens, err := deps.IssueSession(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	if deps.NotifyLogins && deps.NotifyLogin != nil {
		deps.NotifyLogin(ctx, user, deps.ClientIPFromContext(ctx), deps.UserAgentFromContext(ctx), now)
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, audit.LoginSuccess, true, user.ID, nil, nil)
	return &LoginOutput{User: user, Tokens: tokens}, nil
}

func failLogin(ctx context.Context, userID, email, ip, reason string, deps *LoginDeps) error {
	if deps.IncrementLoginRate != nil {
		if err := deps.IncrementLoginRate(ctx, ip); err != nil && !deps.IsRateLimited(err) {
			deps.Warn("login throttle update failed", "error", err)
		}
	}
	deps.MetricInc(deps.Metrics.LoginFailure)
	deps.EmitAudit(ctx, audit.LoginFailure, false, userID, deps.Errors.InvalidCredentials, func() map[string]string {
		return map[string]string{
			"identifier": email,
			"reason":     reason,
		}
	})
	return deps.Errors.InvalidCredentials
}

func loginRateError(ctx context.Context, email string, err error, deps *LoginDeps) error {
	if deps.IsRateLimited(err) {
		deps.MetricInc(deps.Metrics.LoginRateLimited)
		deps.EmitAudit(ctx, audit.LoginRateLimited, false, "", deps.Errors.LoginRateLimited, func() map[string]string {
			return map[string]string{"identifier": email}
		})
		return deps.Errors.LoginRateLimited
	}
	return fmt.Errorf("%w: %v", deps.Errors.RateLimitUnavailable, err)
}

func upgradePasswordHash(ctx context.Context, user *account.User, password string, deps *LoginDeps) {
	if deps.PasswordNeedsUpgrade == nil || deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return
	}
	needsUpgrade, err := deps.PasswordNeedsUpgrade(user.PasswordHash)
	if err != nil || !needsUpgrade {
		return
	}
	upgraded, err := deps.HashPassword(password)
	if err != nil {
		deps.Warn("password hash upgrade generation failed", "user_id", user.ID, "error", err)
		return
	}
	if err := deps.UpdatePasswordHash(ctx, user.ID, upgraded); err != nil {
		deps.Warn("password hash upgrade update failed", "user_id", user.ID, "error", err)
		return
	}
	user.PasswordHash = upgraded
	deps.MetricInc(deps.Metrics.PasswordRehashed)
}
