package flows

import (
	"context"

	"github.com/MrEthical07/notevault/internal/audit"
	"github.com/MrEthical07/notevault/jwt"
)

// LogoutDeps captures logout flow dependencies.
type LogoutDeps struct {
	Common

	ParseToken func(expected jwt.Purpose, token string) (*jwt.Claims, error)
	MetricID   int
}

// RunLogout resolves the caller from whichever token is still valid so the
// audit trail names the user. Logout itself always succeeds: tokens are
// stateless and the transport clears the cookies.
func RunLogout(ctx context.Context, accessToken, refreshToken string, deps LogoutDeps) string {
	deps.normalize()

	userID := ""
	if deps.ParseToken != nil {
		if claims, err := deps.ParseToken(jwt.PurposeAccess, accessToken); err == nil {
			userID = claims.UserID()
		} else if claims, err := deps.ParseToken(jwt.PurposeRefresh, refreshToken); err == nil {
			userID = claims.UserID()
		}
	}

	deps.MetricInc(deps.MetricID)
	deps.EmitAudit(ctx, audit.Logout, true, userID, nil, nil)
	return userID
}
