package notevault

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	internalflows "github.com/MrEthical07/notevault/internal/flows"
)

// encryptionSaltBytes is the decoded length of an account encryption salt.
const encryptionSaltBytes = 16

// ValidateAccess verifies an access token and returns the identity it
// carries. It is stateless: no store lookup happens here.
func (e *Engine) ValidateAccess(ctx context.Context, token string) (*AuthResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := internalflows.RunValidateAccess(ctx, token, internalflows.ValidateDeps{
		Common:     e.flowCommon(),
		ParseToken: e.parseToken,
	})
	if err != nil {
		return nil, err
	}

	out := &AuthResult{
		UserID:  claims.UserID(),
		TokenID: claims.ID,
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// Refresh rotates a refresh token into a new access/refresh pair.
//
// Any token problem is returned as the matching token error, so callers
// can clear cookies and report the reason. A locked account gets
// [ErrAccountLocked] and a deleted one [ErrUserNotFound].
func (e *Engine) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	res := internalflows.RunRefresh(ctx, refreshToken, e.refreshFlowDeps())
	switch res.Failure {
	case internalflows.RefreshFailureNone:
		return &RefreshResult{User: res.User, Tokens: res.Tokens}, nil
	case internalflows.RefreshFailureStore:
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	default:
		return nil, res.Err
	}
}

// Me returns the account behind an authenticated request.
func (e *Engine) Me(ctx context.Context, userID string) (*User, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	user, err := e.users.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if e.config.lockoutPolicy().Locked(user.LockState(), e.now()) {
		return nil, ErrAccountLocked
	}
	return user, nil
}

// Logout records the logout. Tokens are stateless, so there is nothing to
// revoke; transports clear their cookies regardless of the outcome. Either
// token may be empty or invalid.
func (e *Engine) Logout(ctx context.Context, accessToken, refreshToken string) {
	if e == nil {
		return
	}
	internalflows.RunLogout(ctx, accessToken, refreshToken, internalflows.LogoutDeps{
		Common:     e.flowCommon(),
		ParseToken: e.parseToken,
		MetricID:   int(MetricLogout),
	})
}

// SetEncryptionSalt stores the account encryption salt on first unlock.
//
// salt must be standard base64 of exactly 16 bytes. The salt can be set
// once; later calls return [ErrSaltAlreadySet] so an existing account key
// can never be silently replaced.
func (e *Engine) SetEncryptionSalt(ctx context.Context, userID, salt string) (*User, error) {
	if e == nil || e.users == nil {
		return nil, ErrEngineNotReady
	}
	salt = strings.TrimSpace(salt)
	raw, err := base64.StdEncoding.DecodeString(salt)
	if err != nil || len(raw) != encryptionSaltBytes {
		return nil, ErrInvalidSalt
	}

	set, err := e.users.SetEncryptionSalt(ctx, userID, salt)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if !set {
		e.emitAudit(ctx, auditEventEncryptionSaltSet, false, userID, ErrSaltAlreadySet, nil)
		return nil, ErrSaltAlreadySet
	}

	e.metricInc(MetricEncryptionSaltSet)
	e.emitAudit(ctx, auditEventEncryptionSaltSet, true, userID, nil, nil)
	return e.Me(ctx, userID)
}
