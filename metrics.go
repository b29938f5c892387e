package notevault

import internalmetrics "github.com/MrEthical07/notevault/internal/metrics"

// MetricID identifies a counter in the in-process metrics system.
type MetricID = internalmetrics.MetricID

const (
	MetricSignupSuccess        = internalmetrics.MetricSignupSuccess
	MetricSignupDuplicate      = internalmetrics.MetricSignupDuplicate
	MetricSignupRateLimited    = internalmetrics.MetricSignupRateLimited
	MetricLoginSuccess         = internalmetrics.MetricLoginSuccess
	MetricLoginFailure         = internalmetrics.MetricLoginFailure
	MetricLoginLocked          = internalmetrics.MetricLoginLocked
	MetricLoginRateLimited     = internalmetrics.MetricLoginRateLimited
	MetricAccountLockTriggered = internalmetrics.MetricAccountLockTriggered
	MetricMFARequired          = internalmetrics.MetricMFARequired
	MetricMFAEnrolled          = internalmetrics.MetricMFAEnrolled
	MetricMFASuccess           = internalmetrics.MetricMFASuccess
	MetricMFAFailure           = internalmetrics.MetricMFAFailure
	MetricMFARateLimited       = internalmetrics.MetricMFARateLimited
	MetricMFAReplayAttempt     = internalmetrics.MetricMFAReplayAttempt
	MetricBackupCodeUsed       = internalmetrics.MetricBackupCodeUsed
	MetricBackupCodeFailed     = internalmetrics.MetricBackupCodeFailed
	MetricRefreshSuccess       = internalmetrics.MetricRefreshSuccess
	MetricRefreshFailure       = internalmetrics.MetricRefreshFailure
	MetricAccessRejected       = internalmetrics.MetricAccessRejected
	MetricLogout               = internalmetrics.MetricLogout
	MetricEncryptionSaltSet    = internalmetrics.MetricEncryptionSaltSet
	MetricPasswordRehashed     = internalmetrics.MetricPasswordRehashed
	MetricLoginLatency         = internalmetrics.MetricLoginLatency
)

// Metrics holds atomic counters and the optional login latency histogram.
type Metrics = internalmetrics.Metrics

// MetricsSnapshot is a point-in-time copy of all metrics.
type MetricsSnapshot = internalmetrics.Snapshot

// NewMetrics creates a [Metrics] instance. When cfg.Enabled is false every
// operation is a no-op.
func NewMetrics(cfg MetricsConfig) *Metrics {
	return internalmetrics.New(internalmetrics.Config{
		Enabled:       cfg.Enabled,
		EnableLatency: cfg.EnableLatencyHistograms,
	})
}
