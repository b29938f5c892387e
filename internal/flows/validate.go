package flows

import (
	"context"
	"strings"

	"github.com/MrEthical07/notevault/jwt"
)

// ValidateDeps captures access-token validation dependencies.
type ValidateDeps struct {
	Common

	ParseToken func(expected jwt.Purpose, token string) (*jwt.Claims, error)
}

// RunValidateAccess verifies an access token without touching storage.
func RunValidateAccess(ctx context.Context, token string, deps ValidateDeps) (*jwt.Claims, error) {
	deps.normalize()
	if deps.ParseToken == nil {
		return nil, deps.Errors.EngineNotReady
	}
	if strings.TrimSpace(token) == "" {
		deps.MetricInc(deps.Metrics.AccessRejected)
		return nil, deps.Errors.TokenMissing
	}
	claims, err := deps.ParseToken(jwt.PurposeAccess, token)
	if err != nil {
		deps.MetricInc(deps.Metrics.AccessRejected)
		return nil, err
	}
	return claims, nil
}
