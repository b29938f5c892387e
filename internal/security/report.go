package security

import "time"

// PasswordReport is the Argon2id cost in effect.
type PasswordReport struct {
	Memory      uint32
	Time        uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Report summarizes the security posture of a running engine. It carries
// no secrets and is safe to log.
type Report struct {
	ProductionMode         bool
	SigningAlgorithm       string
	AccessTTL              time.Duration
	RefreshTTL             time.Duration
	MFATokenTTL            time.Duration
	SeparateRefreshSecret  bool
	Argon2                 PasswordReport
	PasswordMinLength      int
	BackupCodes            int
	TOTPReplayProtection   bool
	LockoutActive          bool
	RateLimitingActive     bool
	AuditActive            bool
	LoginNotificationsSent bool
}

// ReportInput is the configuration a [Report] is derived from.
type ReportInput struct {
	ProductionMode        bool
	SigningAlgorithm      string
	AccessTTL             time.Duration
	RefreshTTL            time.Duration
	MFASetupTTL           time.Duration
	MFALoginTTL           time.Duration
	SeparateRefreshSecret bool
	Password              PasswordReport
	PasswordMinLength     int
	BackupCodeCount       int
	EnforceReplay         bool
	LockoutThreshold      int
	LockoutDuration       time.Duration
	IPThrottle            bool
	MFAMaxFailures        int
	AuditEnabled          bool
	NotifyLogins          bool
}

func BuildReport(input ReportInput) Report {
	mfaTTL := input.MFASetupTTL
	if input.MFALoginTTL > mfaTTL {
		mfaTTL = input.MFALoginTTL
	}

	return Report{
		ProductionMode:         input.ProductionMode,
		SigningAlgorithm:       input.SigningAlgorithm,
		AccessTTL:              input.AccessTTL,
		RefreshTTL:             input.RefreshTTL,
		MFATokenTTL:            mfaTTL,
		SeparateRefreshSecret:  input.SeparateRefreshSecret,
		Argon2:                 input.Password,
		PasswordMinLength:      input.PasswordMinLength,
		BackupCodes:            input.BackupCodeCount,
		TOTPReplayProtection:   input.EnforceReplay,
		LockoutActive:          input.LockoutThreshold > 0 && input.LockoutDuration > 0,
		RateLimitingActive:     input.IPThrottle || input.MFAMaxFailures > 0,
		AuditActive:            input.AuditEnabled,
		LoginNotificationsSent: input.NotifyLogins,
	}
}
