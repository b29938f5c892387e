package notevault

import (
	"context"

	internalflows "github.com/MrEthical07/notevault/internal/flows"
	"github.com/MrEthical07/notevault/jwt"
)

// Signup creates an account with MFA pending verification.
//
// The result carries the TOTP secret, its QR rendering and an mfa-setup
// token for [Engine.VerifyMFA]. No session tokens are issued until MFA is
// verified. Signup returns [ErrEmailTaken], [ErrPasswordPolicy] or
// [ErrValidation] for rejected input and [ErrSignupRateLimited] when the
// per-IP throttle trips.
func (e *Engine) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	out, err := internalflows.RunSignup(ctx, internalflows.SignupInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
	}, e.signupFlowDeps())
	if err != nil {
		return nil, err
	}
	return &SignupResult{
		User:      out.User,
		TempToken: out.TempToken,
		QRCode:    out.Enroll.QRCode,
		Secret:    out.Enroll.Secret,
		URI:       out.Enroll.URI,
	}, nil
}

// VerifyMFA completes enrollment for the subject of an mfa-setup token.
//
// The first valid code enables MFA, issues the one-time backup codes and a
// session. Token errors are returned unchanged so callers can report the
// reason; an account already enrolled gets [ErrMFAAlreadyEnrolled].
func (e *Engine) VerifyMFA(ctx context.Context, setupToken, code string) (*VerifyMFAResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.parseTempToken(jwt.PurposeMFASetup, setupToken)
	if err != nil {
		return nil, err
	}

	out, err := internalflows.RunConfirmEnrollment(ctx, claims.UserID(), code, e.enrollFlowDeps())
	if err != nil {
		return nil, err
	}

	now := e.now()
	if err := e.users.TouchLastLogin(ctx, out.User.ID, now); err != nil {
		e.warn("last login update failed", "user_id", out.User.ID, "error", err)
	} else {
		out.User.LastLogin = &now
	}

	tokens, err := e.issueSession(ctx, out.User.ID)
	if err != nil {
		return nil, err
	}
	e.notifyWelcome(ctx, out.User)

	return &VerifyMFAResult{
		User:        out.User,
		Tokens:      tokens,
		BackupCodes: out.BackupCodes,
	}, nil
}

// Login checks email and password.
//
// For an account with MFA enabled, Login returns a result with MFARequired
// and an mfa-login token unless mfaCode is non-empty, in which case the
// code is verified inline. Wrong email and wrong password both return
// [ErrInvalidCredentials]; a locked account returns [ErrAccountLocked]
// before the password is hashed.
func (e *Engine) Login(ctx context.Context, email, password, mfaCode string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	start := e.now()
	out, err := internalflows.RunLogin(ctx, email, password, mfaCode, e.loginFlowDeps())
	if e.metrics != nil {
		e.metrics.Observe(MetricLoginLatency, e.now().Sub(start))
	}
	if err != nil {
		return nil, err
	}
	return loginResult(out), nil
}

// CompleteLoginMFA finishes a login with a TOTP code for the subject of an
// mfa-login token.
func (e *Engine) CompleteLoginMFA(ctx context.Context, tempToken, code string) (*LoginResult, error) {
	return e.completeLogin(ctx, tempToken, code, internalflows.MFAMethodTOTP)
}

// LoginWithBackupCode finishes a login by consuming one backup code. Each
// code works exactly once.
func (e *Engine) LoginWithBackupCode(ctx context.Context, tempToken, code string) (*LoginResult, error) {
	return e.completeLogin(ctx, tempToken, code, internalflows.MFAMethodBackup)
}

func (e *Engine) completeLogin(ctx context.Context, tempToken, code, method string) (*LoginResult, error) {
	if e == nil {
		return nil, ErrEngineNotReady
	}
	claims, err := e.parseTempToken(jwt.PurposeMFALogin, tempToken)
	if err != nil {
		return nil, err
	}
	out, err := internalflows.RunCompleteLoginMFA(ctx, claims.UserID(), code, method, e.loginFlowDeps())
	if err != nil {
		return nil, err
	}
	return loginResult(out), nil
}

func (e *Engine) parseTempToken(purpose jwt.Purpose, token string) (*jwt.Claims, error) {
	if token == "" {
		return nil, ErrTokenMissing
	}
	return e.parseToken(purpose, token)
}

func loginResult(out *internalflows.LoginOutput) *LoginResult {
	if out == nil {
		return nil
	}
	return &LoginResult{
		MFARequired: out.MFARequired,
		TempToken:   out.TempToken,
		User:        out.User,
		Tokens:      out.Tokens,
	}
}
