package flows

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/MrEthical07/notevault/internal/account"
	"github.com/MrEthical07/notevault/internal/audit"
)

// TOTPDeps captures the code check shared by enrollment and login.
type TOTPDeps struct {
	Common

	EnforceReplayProtection bool

	VerifyCode func(secret, code string, now time.Time) (bool, int64, error)

	CheckFailures func(ctx context.Context, userID string) error
	RecordFailure func(ctx context.Context, userID string) error
	ResetFailures func(ctx context.Context, userID string) error
	IsRateLimited func(error) bool
	MarkStepUsed  func(ctx context.Context, userID string, step int64) (bool, error)
}

func (d *TOTPDeps) normalizeTOTP() {
	d.normalize()
	if d.IsRateLimited == nil {
		d.IsRateLimited = func(error) bool { return false }
	}
}

// RunVerifyTOTP checks code for user. Failures count against the per-user
// MFA limiter and never touch the password lockout. Accepted codes are
// recorded so the same step cannot be used twice.
func RunVerifyTOTP(ctx context.Context, user *account.User, code string, deps TOTPDeps) error {
	deps.normalizeTOTP()
	if deps.VerifyCode == nil {
		return deps.Errors.EngineNotReady
	}
	if user == nil || user.MFA.Secret == "" {
		return deps.Errors.MFANotEnrolled
	}

	if deps.CheckFailures != nil {
		if err := deps.CheckFailures(ctx, user.ID); err != nil {
			return mfaLimiterError(ctx, user.ID, err, &deps)
		}
	}

	ok, step, err := deps.VerifyCode(user.MFA.Secret, code, deps.Now())
	if err != nil {
		return fmt.Errorf("%w: %v", deps.Errors.MFAUnavailable, err)
	}
	if !ok {
		return recordTOTPFailure(ctx, user.ID, "invalid_code", &deps)
	}

	if deps.EnforceReplayProtection && deps.MarkStepUsed != nil {
		fresh, err := deps.MarkStepUsed(ctx, user.ID, step)
		if err != nil {
			return fmt.Errorf("%w: %v", deps.Errors.MFAUnavailable, err)
		}
		if !fresh {
			deps.MetricInc(deps.Metrics.MFAReplayAttempt)
			deps.EmitAudit(ctx, audit.MFAReplay, false, user.ID, deps.Errors.InvalidMFACode, func() map[string]string {
				return map[string]string{"step": strconv.FormatInt(step, 10)}
			})
			return recordTOTPFailure(ctx, user.ID, "replay", &deps)
		}
	}

	if deps.ResetFailures != nil {
		if err := deps.ResetFailures(ctx, user.ID); err != nil {
			deps.Warn("mfa limiter reset failed", "user_id", user.ID, "error", err)
		}
	}
	deps.MetricInc(deps.Metrics.MFASuccess)
	deps.EmitAudit(ctx, audit.MFASuccess, true, user.ID, nil, nil)
	return nil
}

func recordTOTPFailure(ctx context.Context, userID, reason string, deps *TOTPDeps) error {
	deps.MetricInc(deps.Metrics.MFAFailure)
	deps.EmitAudit(ctx, audit.MFAFailure, false, userID, deps.Errors.InvalidMFACode, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	if deps.RecordFailure != nil {
		if err := deps.RecordFailure(ctx, userID); err != nil && !deps.IsRateLimited(err) {
			return fmt.Errorf("%w: %v", deps.Errors.MFAUnavailable, err)
		}
	}
	return deps.Errors.InvalidMFACode
}

func mfaLimiterError(ctx context.Context, userID string, err error, deps *TOTPDeps) error {
	if deps.IsRateLimited(err) {
		deps.MetricInc(deps.Metrics.MFARateLimited)
		deps.EmitAudit(ctx, audit.MFARateLimited, false, userID, deps.Errors.MFARateLimited, nil)
		return deps.Errors.MFARateLimited
	}
	return fmt.Errorf("%w: %v", deps.Errors.MFAUnavailable, err)
}

// EnrollDeps captures MFA enrollment confirmation dependencies.
type EnrollDeps struct {
	TOTP TOTPDeps

	BackupCodeCount  int
	BackupCodeLength int
	RandomIndex      func(int) (int, error)

	GetUserByID func(ctx context.Context, userID string) (*account.User, error)
	EnableMFA   func(ctx context.Context, userID string, codes []account.BackupCode) (bool, error)
}

// EnrollOutput is returned by RunConfirmEnrollment.
type EnrollOutput struct {
	User        *account.User
	BackupCodes []string
}

// RunConfirmEnrollment verifies the first code from a pending enrollment,
// enables MFA and issues the recovery codes.
func RunConfirmEnrollment(ctx context.Context, userID, code string, deps EnrollDeps) (*EnrollOutput, error) {
	deps.TOTP.normalizeTOTP()
	errs := deps.TOTP.Errors
	if deps.GetUserByID == nil || deps.EnableMFA == nil {
		return nil, errs.EngineNotReady
	}

	user, err := deps.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, errs.UserNotFound) {
			return nil, errs.UserNotFound
		}
		return nil, fmt.Errorf("%w: %v", errs.StoreUnavailable, err)
	}
	if user.MFA.Enabled {
		return nil, errs.MFAAlreadyEnrolled
	}

	if err := RunVerifyTOTP(ctx, user, code, deps.TOTP); err != nil {
		return nil, err
	}

	records, codes, err := GenerateBackupCodes(user.ID, deps.BackupCodeCount, deps.BackupCodeLength, deps.RandomIndex)
	if err != nil {
		return nil, err
	}

	enabled, err := deps.EnableMFA(ctx, user.ID, records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.StoreUnavailable, err)
	}
	if !enabled {
		return nil, errs.MFAAlreadyEnrolled
	}

	user.MFA.Enabled = true
	user.MFA.BackupCodes = records
	deps.TOTP.MetricInc(deps.TOTP.Metrics.MFAEnrolled)
	deps.TOTP.EmitAudit(ctx, audit.MFAEnrolled, true, user.ID, nil, func() map[string]string {
		return map[string]string{"backup_codes": strconv.Itoa(len(records))}
	})
	return &EnrollOutput{User: user, BackupCodes: codes}, nil
}
