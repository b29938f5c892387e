package flows

import (
	"context"
	"errors"
	"strings"

	"github.com/MrEthical07/notevault/internal/account"
	"github.com/MrEthical07/notevault/internal/audit"
	"github.com/MrEthical07/notevault/jwt"
	"github.com/MrEthical07/notevault/lockout"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureMissing
	RefreshFailureToken
	RefreshFailureUserNotFound
	RefreshFailureLocked
	RefreshFailureStore
	RefreshFailureIssue
)

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure RefreshFailureKind
	Err     error
	UserID  string
	User    *account.User
	Tokens  account.Tokens
}

// RefreshDeps captures refresh flow dependencies.
type RefreshDeps struct {
	Common

	Policy lockout.Policy

	ParseToken   func(expected jwt.Purpose, token string) (*jwt.Claims, error)
	GetUserByID  func(ctx context.Context, userID string) (*account.User, error)
	IssueSession func(ctx context.Context, userID string) (account.Tokens, error)
}

// RunRefresh verifies a refresh token and mints a new pair. Nothing is
// stored server-side: rotation only replaces the client's cookies.
func RunRefresh(ctx context.Context, refreshToken string, deps RefreshDeps) RefreshResult {
	deps.normalize()
	if deps.ParseToken == nil || deps.GetUserByID == nil || deps.IssueSession == nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: deps.Errors.EngineNotReady}
	}

	if strings.TrimSpace(refreshToken) == "" {
		return refreshFailed(ctx, "", RefreshFailureMissing, deps.Errors.TokenMissing, &deps)
	}

	claims, err := deps.ParseToken(jwt.PurposeRefresh, refreshToken)
	if err != nil {
		return refreshFailed(ctx, "", RefreshFailureToken, err, &deps)
	}
	userID := claims.UserID()

	user, err := deps.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			return refreshFailed(ctx, userID, RefreshFailureUserNotFound, deps.Errors.UserNotFound, &deps)
		}
		return refreshFailed(ctx, userID, RefreshFailureStore, err, &deps)
	}
	if deps.Policy.Locked(user.LockState(), deps.Now()) {
		return refreshFailed(ctx, userID, RefreshFailureLocked, deps.Errors.AccountLocked, &deps)
	}

	tokens, err := deps.IssueSession(ctx, user.ID)
	if err != nil {
		return refreshFailed(ctx, userID, RefreshFailureIssue, err, &deps)
	}

	deps.MetricInc(deps.Metrics.RefreshSuccess)
	deps.EmitAudit(ctx, audit.RefreshSuccess, true, user.ID, nil, nil)
	return RefreshResult{
		Failure: RefreshFailureNone,
		UserID:  user.ID,
		User:    user,
		Tokens:  tokens,
	}
}

func refreshFailed(ctx context.Context, userID string, kind RefreshFailureKind, err error, deps *RefreshDeps) RefreshResult {
	deps.MetricInc(deps.Metrics.RefreshFailure)
	deps.EmitAudit(ctx, audit.RefreshFailure, false, userID, err, nil)
	return RefreshResult{Failure: kind, Err: err, UserID: userID}
}
