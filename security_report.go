package notevault

import (
	"bytes"

	"github.com/MrEthical07/notevault/internal/security"
)

// SecurityReport is a secret-free summary of the engine's configuration.
type SecurityReport = security.Report

// SecurityReport returns the posture of the built engine.
func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	cfg := e.config
	return security.BuildReport(security.ReportInput{
		ProductionMode:        cfg.Security.ProductionMode,
		SigningAlgorithm:      "HS256",
		AccessTTL:             cfg.JWT.AccessTTL,
		RefreshTTL:            cfg.JWT.RefreshTTL,
		MFASetupTTL:           cfg.JWT.MFASetupTTL,
		MFALoginTTL:           cfg.JWT.MFALoginTTL,
		SeparateRefreshSecret: !bytes.Equal(cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret),
		Password: security.PasswordReport{
			Memory:      cfg.Password.Memory,
			Time:        cfg.Password.Time,
			Parallelism: cfg.Password.Parallelism,
			SaltLength:  cfg.Password.SaltLength,
			KeyLength:   cfg.Password.KeyLength,
		},
		PasswordMinLength: cfg.Password.Policy.MinLength,
		BackupCodeCount:   cfg.TOTP.BackupCodeCount,
		EnforceReplay:     cfg.TOTP.EnforceReplayProtection,
		LockoutThreshold:  cfg.Lockout.Threshold,
		LockoutDuration:   cfg.Lockout.Duration,
		IPThrottle:        cfg.RateLimit.EnableIPThrottle,
		MFAMaxFailures:    cfg.TOTP.MaxFailures,
		AuditEnabled:      cfg.Audit.Enabled,
		NotifyLogins:      cfg.Security.NotifyLogins,
	})
}
