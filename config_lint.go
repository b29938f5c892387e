package notevault

import (
	"errors"
	"strings"
	"time"
)

// LintSeverity ranks configuration warnings.
type LintSeverity uint8

const (
	LintInfo LintSeverity = iota
	LintWarn
	LintHigh
)

func (s LintSeverity) String() string {
	switch s {
	case LintInfo:
		return "INFO"
	case LintWarn:
		return "WARN"
	case LintHigh:
		return "HIGH"
	default:
		return "UNKNOWN"
	}
}

// LintWarning is a configuration that validates but weakens the deployment.
type LintWarning struct {
	Code     string
	Severity LintSeverity
	Message  string
}

// LintResult is the ordered list of warnings from [Config.Lint].
type LintResult []LintWarning

// Codes returns the warning codes in order.
func (r LintResult) Codes() []string {
	out := make([]string, 0, len(r))
	for _, w := range r {
		out = append(out, w.Code)
	}
	return out
}

// BySeverity returns warnings at or above min.
func (r LintResult) BySeverity(min LintSeverity) LintResult {
	var out LintResult
	for _, w := range r {
		if w.Severity >= min {
			out = append(out, w)
		}
	}
	return out
}

// AsError joins warnings at or above min into one error, or returns nil.
func (r LintResult) AsError(min LintSeverity) error {
	hits := r.BySeverity(min)
	if len(hits) == 0 {
		return nil
	}
	msgs := make([]string, 0, len(hits))
	for _, w := range hits {
		msgs = append(msgs, w.Code+": "+w.Message)
	}
	return errors.New("config lint: " + strings.Join(msgs, "; "))
}

// Lint reports settings that pass Validate but are weaker than the
// defaults. The server logs the result at startup and refuses to start in
// production mode on HIGH warnings.
func (c *Config) Lint() LintResult {
	var ws LintResult
	add := func(code string, sev LintSeverity, msg string) {
		ws = append(ws, LintWarning{Code: code, Severity: sev, Message: msg})
	}

	if c.JWT.AccessTTL > 15*time.Minute {
		add("access_ttl_long", LintWarn, "access tokens outlive the 15m default")
	}
	if c.JWT.RefreshTTL > 30*24*time.Hour {
		add("refresh_ttl_long", LintWarn, "refresh tokens live longer than 30 days without a revocation list")
	}
	if c.JWT.Leeway > 30*time.Second {
		add("leeway_large", LintWarn, "JWT leeway above 30s extends every token lifetime")
	}
	if c.JWT.MFALoginTTL > 10*time.Minute {
		add("mfa_login_ttl_long", LintWarn, "mfa-login temp tokens outlive 10m")
	}

	if c.Password.Memory < 64*1024 {
		add("argon2_memory_low", LintWarn, "Argon2id memory below 64 MiB")
	}
	if c.Password.Policy.MinLength < 10 {
		add("password_min_length_low", LintWarn, "password policy allows fewer than 10 characters")
	}

	if c.Lockout.Threshold > 10 {
		add("lockout_threshold_high", LintWarn, "more than 10 failures allowed before lockout")
	}
	if c.Lockout.Duration < 5*time.Minute {
		add("lockout_duration_short", LintWarn, "lockout window shorter than 5m")
	}

	if !c.TOTP.EnforceReplayProtection {
		add("totp_replay_unprotected", LintHigh, "accepted TOTP codes can be replayed inside their window")
	}
	if c.TOTP.Skew > 1 {
		add("totp_skew_wide", LintWarn, "TOTP accepts codes more than one step away")
	}

	if !c.RateLimit.EnableIPThrottle {
		add("ip_throttle_disabled", LintWarn, "per-IP login and signup throttles are off")
	}
	if !c.Audit.Enabled {
		add("audit_disabled", LintInfo, "audit events are not emitted")
	}
	if !c.Security.ProductionMode {
		add("non_production", LintInfo, "cookies are sent without the Secure attribute")
	}

	return ws
}
