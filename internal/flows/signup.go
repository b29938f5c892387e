package flows

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/notevault/internal/account"
	"github.com/MrEthical07/notevault/internal/audit"
	"github.com/MrEthical07/notevault/jwt"
)

const maxNameLength = 100

// TOTPEnrollment is a freshly generated TOTP secret with its provisioning
// URI and QR rendering.
type TOTPEnrollment struct {
	Secret string
	URI    string
	QRCode string
}

// SignupInput is the raw signup request.
type SignupInput struct {
	Name     string
	Email    string
	Password string
}

// SignupOutput is returned by RunSignup.
type SignupOutput struct {
	User      *account.User
	TempToken string
	Enroll    TOTPEnrollment
}

// SignupDeps captures signup dependencies.
type SignupDeps struct {
	Common

	CheckSignupRate func(ctx context.Context, ip string) error
	IsRateLimited   func(error) bool

	CheckPolicy  func(password string) error
	HashPassword func(password string) (string, error)
	EnrollTOTP   func(accountName string) (TOTPEnrollment, error)
	CreateUser   func(ctx context.Context, in account.CreateUserInput) (*account.User, error)
	IssueToken   func(purpose jwt.Purpose, userID string) (string, time.Time, error)
}

// RunSignup creates an account with MFA pending and returns the material
// the client needs to finish enrollment.
func RunSignup(ctx context.Context, in SignupInput, deps SignupDeps) (*SignupOutput, error) {
	deps.normalize()
	if deps.IsRateLimited == nil {
		deps.IsRateLimited = func(error) bool { return false }
	}
	if deps.CheckPolicy == nil || deps.HashPassword == nil || deps.EnrollTOTP == nil ||
		deps.CreateUser == nil || deps.IssueToken == nil {
		return nil, deps.Errors.EngineNotReady
	}

	name := strings.TrimSpace(in.Name)
	email := account.NormalizeEmail(in.Email)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, fmt.Errorf("%w: name must be 1-%d characters", deps.Errors.Validation, maxNameLength)
	}
	if !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: email is invalid", deps.Errors.Validation)
	}

	ip := deps.ClientIPFromContext(ctx)
	if deps.CheckSignupRate != nil {
		if err := deps.CheckSignupRate(ctx, ip); err != nil {
			if deps.IsRateLimited(err) {
				deps.MetricInc(deps.Metrics.SignupRateLimited)
				deps.EmitAudit(ctx, audit.SignupRateLimited, false, "", deps.Errors.SignupRateLimited, nil)
				return nil, deps.Errors.SignupRateLimited
			}
			return nil, fmt.Errorf("%w: %v", deps.Errors.RateLimitUnavailable, err)
		}
	}

	if err := deps.CheckPolicy(in.Password); err != nil {
		return nil, fmt.Errorf("%w: %w", deps.Errors.PasswordPolicy, err)
	}

	hash, err := deps.HashPassword(in.Password)
	if err != nil {
		return nil, err
	}

	enrollment, err := deps.EnrollTOTP(email)
	if err != nil {
		return nil, err
	}

	user, err := deps.CreateUser(ctx, account.CreateUserInput{
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		MFASecret:    enrollment.Secret,
	})
	if err != nil {
		if errors.Is(err, deps.Errors.EmailTaken) {
			deps.MetricInc(deps.Metrics.SignupDuplicate)
			deps.EmitAudit(ctx, audit.Signup, false, "", deps.Errors.EmailTaken, nil)
			return nil, deps.Errors.EmailTaken
		}
		return nil, fmt.Errorf("%w: %v", deps.Errors.StoreUnavailable, err)
	}

	tempToken, _, err := deps.IssueToken(jwt.PurposeMFASetup, user.ID)
	if err != nil {
		return nil, err
	}

	deps.MetricInc(deps.Metrics.SignupSuccess)
	deps.EmitAudit(ctx, audit.Signup, true, user.ID, nil, nil)

	return &SignupOutput{
		User:      user,
		TempToken: tempToken,
		Enroll:    enrollment,
	}, nil
}
