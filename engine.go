package notevault

import (
	"context"
	"time"

	"github.com/MrEthical07/notevault/internal/account"
	internalaudit "github.com/MrEthical07/notevault/internal/audit"
	internalflows "github.com/MrEthical07/notevault/internal/flows"
	"github.com/MrEthical07/notevault/internal/limiters"
	"github.com/MrEthical07/notevault/internal/rate"
	"github.com/MrEthical07/notevault/jwt"
	"github.com/MrEthical07/notevault/password"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const notifyTimeout = 10 * time.Second

// Engine is the authentication core: signup with MFA enrollment, login with
// lockout and MFA, token issuance and validation, and the account
// encryption salt.
//
// Engine instances are configured once through [Builder] and are immutable
// and safe for concurrent use afterwards.
type Engine struct {
	config   Config
	users    UserStore
	notifier Notifier
	logger   *zap.Logger
	clock    func() time.Time
	redis    redis.UniversalClient

	rateLimiter  *rate.Limiter
	mfaLimiter   *limiters.MFALimiter
	replayGuard  *limiters.ReplayGuard
	audit        *internalaudit.Dispatcher
	metrics      *Metrics
	passwordHash *password.Hasher
	totp         *totpManager
	jwtManager   *jwt.Manager
}

// Close flushes and stops the audit dispatcher.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped returns the number of audit events discarded because the
// dispatcher buffer was full.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a point-in-time copy of the engine counters. It
// is safe to call concurrently.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	if e == nil {
		return Config{}
	}
	return cloneConfig(e.config)
}

// TokenTTL returns the lifetime of tokens with the given purpose. Transport
// code uses it for cookie MaxAge.
func (e *Engine) TokenTTL(purpose jwt.Purpose) time.Duration {
	if e == nil || e.jwtManager == nil {
		return 0
	}
	return e.jwtManager.TTL(purpose)
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) now() time.Time {
	if e == nil || e.clock == nil {
		return time.Now()
	}
	return e.clock()
}

func (e *Engine) warn(msg string, keysAndValues ...any) {
	if e == nil || e.logger == nil {
		return
	}
	e.logger.Sugar().Warnw(msg, keysAndValues...)
}

func (e *Engine) issueToken(purpose jwt.Purpose, userID string) (string, time.Time, error) {
	if e == nil || e.jwtManager == nil {
		return "", time.Time{}, ErrEngineNotReady
	}
	return e.jwtManager.Issue(purpose, userID)
}

func (e *Engine) parseToken(expected jwt.Purpose, token string) (*jwt.Claims, error) {
	if e == nil || e.jwtManager == nil {
		return nil, ErrEngineNotReady
	}
	return e.jwtManager.Parse(expected, token)
}

// issueSession mints a fresh access/refresh pair. Refresh rotates by
// calling it again; old refresh tokens stay valid until they expire.
func (e *Engine) issueSession(_ context.Context, userID string) (Tokens, error) {
	access, accessExp, err := e.issueToken(jwt.PurposeAccess, userID)
	if err != nil {
		return Tokens{}, err
	}
	refresh, refreshExp, err := e.issueToken(jwt.PurposeRefresh, userID)
	if err != nil {
		return Tokens{}, err
	}
	return Tokens{
		AccessToken:      access,
		AccessExpiresAt:  accessExp,
		RefreshToken:     refresh,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// notifyAsync runs send on its own goroutine with a context detached from
// the request. Failures are logged only.
func (e *Engine) notifyAsync(ctx context.Context, kind, userID string, send func(context.Context) error) {
	if e == nil || e.notifier == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	go func() {
		nctx, cancel := context.WithTimeout(base, notifyTimeout)
		defer cancel()
		if err := send(nctx); err != nil {
			e.logger.Warn("notification failed",
				zap.String("kind", kind),
				zap.String("user_id", userID),
				zap.String("request_id", RequestIDFromContext(base)),
				zap.Error(err),
			)
		}
	}()
}

func (e *Engine) notifyLogin(ctx context.Context, user *account.User, ip, userAgent string, at time.Time) {
	notice := LoginNotice{
		Email:     user.Email,
		Name:      user.Name,
		IP:        ip,
		UserAgent: userAgent,
		At:        at,
	}
	e.notifyAsync(ctx, "login", user.ID, func(nctx context.Context) error {
		return e.notifier.NotifyLogin(nctx, notice)
	})
}

func (e *Engine) notifyWelcome(ctx context.Context, user *account.User) {
	notice := WelcomeNotice{Email: user.Email, Name: user.Name}
	e.notifyAsync(ctx, "welcome", user.ID, func(nctx context.Context) error {
		return e.notifier.NotifyWelcome(nctx, notice)
	})
}

/*
====================================
FLOW DEPENDENCIES
====================================
*/

func (e *Engine) flowCommon() internalflows.Common {
	return internalflows.Common{
		Now: e.now,
		MetricInc: func(id int) {
			e.metricInc(MetricID(id))
		},
		EmitAudit:            e.emitAudit,
		Warn:                 e.warn,
		ClientIPFromContext:  clientIPFromContext,
		UserAgentFromContext: userAgentFromContext,
		Metrics: internalflows.Metrics{
			SignupSuccess:      int(MetricSignupSuccess),
			SignupDuplicate:    int(MetricSignupDuplicate),
			SignupRateLimited:  int(MetricSignupRateLimited),
			LoginSuccess:       int(MetricLoginSuccess),
			LoginFailure:       int(MetricLoginFailure),
			LoginLocked:        int(MetricLoginLocked),
			LoginRateLimited:   int(MetricLoginRateLimited),
			AccountLockTrigger: int(MetricAccountLockTriggered),
			MFARequired:        int(MetricMFARequired),
			MFAEnrolled:        int(MetricMFAEnrolled),
			MFASuccess:         int(MetricMFASuccess),
			MFAFailure:         int(MetricMFAFailure),
			MFARateLimited:     int(MetricMFARateLimited),
			MFAReplayAttempt:   int(MetricMFAReplayAttempt),
			BackupCodeUsed:     int(MetricBackupCodeUsed),
			BackupCodeFailed:   int(MetricBackupCodeFailed),
			RefreshSuccess:     int(MetricRefreshSuccess),
			RefreshFailure:     int(MetricRefreshFailure),
			AccessRejected:     int(MetricAccessRejected),
			PasswordRehashed:   int(MetricPasswordRehashed),
			EncryptionSaltSet:  int(MetricEncryptionSaltSet),
		},
		Errors: internalflows.Errors{
			EngineNotReady:       ErrEngineNotReady,
			Validation:           ErrValidation,
			InvalidCredentials:   ErrInvalidCredentials,
			AccountLocked:        ErrAccountLocked,
			UserNotFound:         ErrUserNotFound,
			EmailTaken:           ErrEmailTaken,
			PasswordPolicy:       ErrPasswordPolicy,
			InvalidMFACode:       ErrInvalidMFACode,
			MFAAlreadyEnrolled:   ErrMFAAlreadyEnrolled,
			MFANotEnrolled:       ErrMFANotEnrolled,
			MFARateLimited:       ErrMFARateLimited,
			MFAUnavailable:       ErrMFAUnavailable,
			BackupCodeInvalid:    ErrBackupCodeInvalid,
			LoginRateLimited:     ErrLoginRateLimited,
			SignupRateLimited:    ErrSignupRateLimited,
			RateLimitUnavailable: ErrRateLimitUnavailable,
			SaltAlreadySet:       ErrSaltAlreadySet,
			InvalidSalt:          ErrInvalidSalt,
			StoreUnavailable:     ErrStoreUnavailable,
			TokenMissing:         ErrTokenMissing,
			TokenMalformed:       ErrTokenMalformed,
		},
	}
}

func (e *Engine) totpFlowDeps() internalflows.TOTPDeps {
	deps := internalflows.TOTPDeps{
		Common:                  e.flowCommon(),
		EnforceReplayProtection: e.config.TOTP.EnforceReplayProtection,
		IsRateLimited:           limiters.IsRateLimited,
	}
	if e.totp != nil {
		deps.VerifyCode = e.totp.VerifyCode
	}
	if e.mfaLimiter != nil {
		deps.CheckFailures = e.mfaLimiter.Check
		deps.RecordFailure = e.mfaLimiter.RecordFailure
		deps.ResetFailures = e.mfaLimiter.Reset
	}
	if e.replayGuard != nil {
		deps.MarkStepUsed = e.replayGuard.MarkUsed
	}
	return deps
}

func (e *Engine) backupCodeFlowDeps() internalflows.BackupCodeDeps {
	deps := internalflows.BackupCodeDeps{
		Common:        e.flowCommon(),
		IsRateLimited: limiters.IsRateLimited,
	}
	if e.users != nil {
		deps.ConsumeBackupCode = e.users.ConsumeBackupCode
	}
	if e.mfaLimiter != nil {
		deps.CheckFailures = e.mfaLimiter.Check
		deps.RecordFailure = e.mfaLimiter.RecordFailure
		deps.ResetFailures = e.mfaLimiter.Reset
	}
	return deps
}

func (e *Engine) enrollFlowDeps() internalflows.EnrollDeps {
	deps := internalflows.EnrollDeps{
		TOTP:             e.totpFlowDeps(),
		BackupCodeCount:  e.config.TOTP.BackupCodeCount,
		BackupCodeLength: e.config.TOTP.BackupCodeLength,
	}
	if e.users != nil {
		deps.GetUserByID = e.users.GetUserByID
		deps.EnableMFA = e.users.EnableMFA
	}
	return deps
}

func (e *Engine) loginFlowDeps() internalflows.LoginDeps {
	deps := internalflows.LoginDeps{
		Common:                 e.flowCommon(),
		Policy:                 e.config.lockoutPolicy(),
		PasswordUpgradeOnLogin: e.config.Password.UpgradeOnLogin,
		NotifyLogins:           e.config.Security.NotifyLogins,
		IsRateLimited:          rate.IsRateLimited,
		IssueToken:             e.issueToken,
		IssueSession:           e.issueSession,
		NotifyLogin:            e.notifyLogin,
		VerifyTOTP: func(ctx context.Context, user *account.User, code string) error {
			return internalflows.RunVerifyTOTP(ctx, user, code, e.totpFlowDeps())
		},
		ConsumeBackupCode: func(ctx context.Context, user *account.User, code string) error {
			return internalflows.RunConsumeBackupCode(ctx, user, code, e.backupCodeFlowDeps())
		},
	}
	if e.rateLimiter != nil {
		deps.CheckLoginRate = e.rateLimiter.CheckLogin
		deps.IncrementLoginRate = e.rateLimiter.IncrementLogin
	}
	if e.users != nil {
		deps.GetUserByEmail = e.users.GetUserByEmail
		deps.GetUserByID = e.users.GetUserByID
		deps.RecordLoginAttempt = e.users.RecordLoginAttempt
		deps.TouchLastLogin = e.users.TouchLastLogin
		deps.UpdatePasswordHash = e.users.UpdatePasswordHash
	}
	if e.passwordHash != nil {
		deps.VerifyPassword = e.passwordHash.Verify
		deps.VerifyDummy = e.passwordHash.VerifyDummy
		deps.PasswordNeedsUpgrade = e.passwordHash.NeedsUpgrade
		deps.HashPassword = e.passwordHash.Hash
	}
	return deps
}

func (e *Engine) signupFlowDeps() internalflows.SignupDeps {
	deps := internalflows.SignupDeps{
		Common:        e.flowCommon(),
		IsRateLimited: rate.IsRateLimited,
		CheckPolicy:   e.config.Password.Policy.Check,
		IssueToken:    e.issueToken,
	}
	if e.rateLimiter != nil {
		deps.CheckSignupRate = e.rateLimiter.HitSignup
	}
	if e.passwordHash != nil {
		deps.HashPassword = e.passwordHash.Hash
	}
	if e.totp != nil {
		deps.EnrollTOTP = e.totp.Enroll
	}
	if e.users != nil {
		deps.CreateUser = e.users.CreateUser
	}
	return deps
}

func (e *Engine) refreshFlowDeps() internalflows.RefreshDeps {
	deps := internalflows.RefreshDeps{
		Common:       e.flowCommon(),
		Policy:       e.config.lockoutPolicy(),
		ParseToken:   e.parseToken,
		IssueSession: e.issueSession,
	}
	if e.users != nil {
		deps.GetUserByID = e.users.GetUserByID
	}
	return deps
}
