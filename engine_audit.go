package notevault

import (
	"context"
	"errors"

	internalaudit "github.com/MrEthical07/notevault/internal/audit"
)

const (
	auditEventSignup            = internalaudit.Signup
	auditEventLoginFailure      = internalaudit.LoginFailure
	auditEventLoginLocked       = internalaudit.LoginLocked
	auditEventAccountLocked     = internalaudit.AccountLocked
	auditEventMFAEnrolled       = internalaudit.MFAEnrolled
	auditEventBackupCodeUsed    = internalaudit.BackupCodeUsed
	auditEventRefreshSuccess    = internalaudit.RefreshSuccess
	auditEventRefreshFailure    = internalaudit.RefreshFailure
	auditEventLogout            = internalaudit.Logout
	auditEventEncryptionSaltSet = internalaudit.EncryptionSaltSet
)

// AuditErrorCode is the short, stable error label recorded on audit events.
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrAccountLocked      AuditErrorCode = "account_locked"
	auditErrRateLimited        AuditErrorCode = "rate_limited"
	auditErrTokenMissing       AuditErrorCode = "token_missing"
	auditErrTokenExpired       AuditErrorCode = "token_expired"
	auditErrTokenWrongPurpose  AuditErrorCode = "token_wrong_purpose"
	auditErrInvalidToken       AuditErrorCode = "invalid_token"
	auditErrUserNotFound       AuditErrorCode = "user_not_found"
	auditErrDuplicate          AuditErrorCode = "duplicate"
	auditErrPasswordPolicy     AuditErrorCode = "password_policy"
	auditErrMFAInvalid         AuditErrorCode = "mfa_invalid"
	auditErrMFAAlreadyEnrolled AuditErrorCode = "mfa_already_enrolled"
	auditErrMFANotEnrolled     AuditErrorCode = "mfa_not_enrolled"
	auditErrBackupCodeInvalid  AuditErrorCode = "backup_code_invalid"
	auditErrSaltAlreadySet     AuditErrorCode = "salt_already_set"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType AuditEventType,
	success bool,
	userID string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	event := internalaudit.New(eventType, e.now(), internalaudit.Source{
		RequestID: RequestIDFromContext(ctx),
		IP:        clientIPFromContext(ctx),
		UserAgent: userAgentFromContext(ctx),
	}).ForUser(userID)
	if !success {
		event = event.Failed(string(auditErrorCode(err)))
	}
	if metadataBuilder != nil {
		event = event.With(metadataBuilder())
	}

	e.audit.Emit(ctx, event)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrAccountLocked):
		return auditErrAccountLocked
	case errors.Is(err, ErrLoginRateLimited),
		errors.Is(err, ErrSignupRateLimited),
		errors.Is(err, ErrMFARateLimited):
		return auditErrRateLimited
	case errors.Is(err, ErrTokenMissing):
		return auditErrTokenMissing
	case errors.Is(err, ErrTokenExpired):
		return auditErrTokenExpired
	case errors.Is(err, ErrTokenWrongPurpose):
		return auditErrTokenWrongPurpose
	case errors.Is(err, ErrTokenMalformed):
		return auditErrInvalidToken
	case errors.Is(err, ErrUserNotFound):
		return auditErrUserNotFound
	case errors.Is(err, ErrEmailTaken):
		return auditErrDuplicate
	case errors.Is(err, ErrPasswordPolicy):
		return auditErrPasswordPolicy
	case errors.Is(err, ErrInvalidMFACode):
		return auditErrMFAInvalid
	case errors.Is(err, ErrMFAAlreadyEnrolled):
		return auditErrMFAAlreadyEnrolled
	case errors.Is(err, ErrMFANotEnrolled):
		return auditErrMFANotEnrolled
	case errors.Is(err, ErrBackupCodeInvalid):
		return auditErrBackupCodeInvalid
	case errors.Is(err, ErrSaltAlreadySet):
		return auditErrSaltAlreadySet
	case errors.Is(err, ErrStoreUnavailable),
		errors.Is(err, ErrMFAUnavailable),
		errors.Is(err, ErrRateLimitUnavailable):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
