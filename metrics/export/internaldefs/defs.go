package internaldefs

import (
	notevault "github.com/MrEthical07/notevault"
)

// CounterDef binds a metric slot to its exported name.
type CounterDef struct {
	ID   notevault.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram slot to its exported name.
type HistogramDef struct {
	ID   notevault.MetricID
	Name string
	Help string
}

// CounterDefs lists every exported counter in a stable order.
var CounterDefs = []CounterDef{
	{ID: notevault.MetricSignupSuccess, Name: "notevault_signup_success_total", Help: "Accounts created."},
	{ID: notevault.MetricSignupDuplicate, Name: "notevault_signup_duplicate_total", Help: "Signups rejected for an existing email."},
	{ID: notevault.MetricSignupRateLimited, Name: "notevault_signup_rate_limited_total", Help: "Signups rejected by the per-IP throttle."},
	{ID: notevault.MetricLoginSuccess, Name: "notevault_login_success_total", Help: "Logins that issued a token pair."},
	{ID: notevault.MetricLoginFailure, Name: "notevault_login_failure_total", Help: "Logins rejected for invalid credentials."},
	{ID: notevault.MetricLoginLocked, Name: "notevault_login_locked_total", Help: "Logins rejected because the account was locked."},
	{ID: notevault.MetricLoginRateLimited, Name: "notevault_login_rate_limited_total", Help: "Logins rejected by the per-IP throttle."},
	{ID: notevault.MetricAccountLockTriggered, Name: "notevault_account_lock_triggered_total", Help: "Failed attempts that started a lockout window."},
	{ID: notevault.MetricMFARequired, Name: "notevault_mfa_required_total", Help: "Password successes that required a second factor."},
	{ID: notevault.MetricMFAEnrolled, Name: "notevault_mfa_enrolled_total", Help: "Completed MFA enrollments."},
	{ID: notevault.MetricMFASuccess, Name: "notevault_mfa_success_total", Help: "Accepted TOTP codes."},
	{ID: notevault.MetricMFAFailure, Name: "notevault_mfa_failure_total", Help: "Rejected TOTP codes."},
	{ID: notevault.MetricMFARateLimited, Name: "notevault_mfa_rate_limited_total", Help: "MFA attempts rejected by the failure limiter."},
	{ID: notevault.MetricMFAReplayAttempt, Name: "notevault_mfa_replay_attempt_total", Help: "TOTP codes rejected as replays."},
	{ID: notevault.MetricBackupCodeUsed, Name: "notevault_backup_code_used_total", Help: "Backup codes consumed."},
	{ID: notevault.MetricBackupCodeFailed, Name: "notevault_backup_code_failed_total", Help: "Rejected backup codes."},
	{ID: notevault.MetricRefreshSuccess, Name: "notevault_refresh_success_total", Help: "Rotated token pairs."},
	{ID: notevault.MetricRefreshFailure, Name: "notevault_refresh_failure_total", Help: "Rejected refresh tokens."},
	{ID: notevault.MetricAccessRejected, Name: "notevault_access_rejected_total", Help: "Requests rejected for a missing or invalid access token."},
	{ID: notevault.MetricLogout, Name: "notevault_logout_total", Help: "Logouts."},
	{ID: notevault.MetricEncryptionSaltSet, Name: "notevault_encryption_salt_set_total", Help: "Account encryption salts persisted."},
	{ID: notevault.MetricPasswordRehashed, Name: "notevault_password_rehashed_total", Help: "Password hashes upgraded on login."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: notevault.MetricLoginLatency, Name: "notevault_login_latency_seconds", Help: "Password verification latency."},
}

// HistogramBounds are the upper bounds of the fixed buckets in seconds.
var HistogramBounds = []string{
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"2.5",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds in instrument-name form.
var HistogramBoundSuffix = []string{
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"2_5",
	"inf",
}

// NormalizeBuckets copies raw into a fixed array, zero-filling short input.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts to Prometheus cumulative form.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
