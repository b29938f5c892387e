package notevault

import (
	"errors"
	"time"

	"github.com/MrEthical07/notevault/lockout"
	"github.com/MrEthical07/notevault/password"
)

// Config holds every engine tunable. Use [New] for defaults and
// [Builder.WithConfig] to override; the builder validates the result.
type Config struct {
	JWT       JWTConfig
	Password  PasswordConfig
	Lockout   LockoutConfig
	TOTP      TOTPConfig
	RateLimit RateLimitConfig
	Redis     RedisConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	Security  SecurityConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig holds signing secrets and per-purpose lifetimes.
type JWTConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte

	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	MFASetupTTL time.Duration
	MFALoginTTL time.Duration

	Issuer   string
	Audience string
	Leeway   time.Duration
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds Argon2id cost parameters and the signup policy.
type PasswordConfig struct {
	Memory         uint32 // in KB
	Time           uint32
	Parallelism    uint8
	SaltLength     uint32
	KeyLength      uint32
	UpgradeOnLogin bool

	Policy password.Policy
}

/*
====================================
LOCKOUT CONFIG
====================================
*/

// LockoutConfig controls per-account brute-force lockout.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
}

/*
====================================
TOTP CONFIG
====================================
*/

// TOTPConfig controls enrollment, verification and the MFA failure limiter.
type TOTPConfig struct {
	Issuer string
	Digits int
	Period int
	Skew   int

	EnforceReplayProtection bool
	MaxFailures             int
	FailureWindow           time.Duration

	BackupCodeCount  int
	BackupCodeLength int
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig controls the per-IP login and signup throttles.
type RateLimitConfig struct {
	EnableIPThrottle bool
	MaxLoginPerIP    int
	LoginWindow      time.Duration
	MaxSignupPerIP   int
	SignupWindow     time.Duration
}

// RedisConfig controls the key layout shared by every Redis-backed limiter.
type RedisConfig struct {
	KeyPrefix string
}

// AuditConfig controls the async audit dispatcher.
type AuditConfig struct {
	Enabled     bool
	BufferSize  int
	DropIfFull  bool
	SinkTimeout time.Duration
}

// MetricsConfig enables in-process counters.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

// SecurityConfig holds deployment-wide switches.
type SecurityConfig struct {
	ProductionMode bool
	// NotifyLogins sends a login notification after every successful
	// login.
	NotifyLogins bool
}

/*
====================================
DEFAULT CONFIG
====================================
*/

func defaultConfig() Config {
	pw := password.DefaultConfig()
	lp := lockout.Default()

	return Config{
		JWT: JWTConfig{
			AccessTTL:   15 * time.Minute,
			RefreshTTL:  7 * 24 * time.Hour,
			MFASetupTTL: 10 * time.Minute,
			MFALoginTTL: 5 * time.Minute,
			Issuer:      "notevault",
			Audience:    "notevault-api",
			Leeway:      5 * time.Second,
		},
		Password: PasswordConfig{
			Memory:         pw.Memory,
			Time:           pw.Time,
			Parallelism:    pw.Parallelism,
			SaltLength:     pw.SaltLength,
			KeyLength:      pw.KeyLength,
			UpgradeOnLogin: true,
			Policy:         password.DefaultPolicy(),
		},
		Lockout: LockoutConfig{
			Threshold: lp.Threshold,
			Duration:  lp.Duration,
		},
		TOTP: TOTPConfig{
			Issuer:                  "Secure Notes Vault",
			Digits:                  6,
			Period:                  30,
			Skew:                    1,
			EnforceReplayProtection: true,
			MaxFailures:             5,
			FailureWindow:           5 * time.Minute,
			BackupCodeCount:         10,
			BackupCodeLength:        10,
		},
		RateLimit: RateLimitConfig{
			EnableIPThrottle: true,
			MaxLoginPerIP:    20,
			LoginWindow:      15 * time.Minute,
			MaxSignupPerIP:   5,
			SignupWindow:     time.Hour,
		},
		Redis: RedisConfig{
			KeyPrefix: "nv",
		},
		Audit: AuditConfig{
			Enabled:     true,
			BufferSize:  1024,
			DropIfFull:  true,
			SinkTimeout: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		Security: SecurityConfig{
			ProductionMode: false,
			NotifyLogins:   true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.AccessSecret = cloneBytes(cfg.JWT.AccessSecret)
	out.JWT.RefreshSecret = cloneBytes(cfg.JWT.RefreshSecret)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// DefaultConfig returns the production defaults without secrets. Callers
// must set JWT.AccessSecret and JWT.RefreshSecret.
func DefaultConfig() Config {
	return defaultConfig()
}

// lockoutPolicy returns the policy value handed to UserStore.
func (c *Config) lockoutPolicy() lockout.Policy {
	return lockout.Policy{Threshold: c.Lockout.Threshold, Duration: c.Lockout.Duration}
}

func (c *Config) passwordConfig() password.Config {
	return password.Config{
		Memory:      c.Password.Memory,
		Time:        c.Password.Time,
		Parallelism: c.Password.Parallelism,
		SaltLength:  c.Password.SaltLength,
		KeyLength:   c.Password.KeyLength,
	}
}

/*
====================================
VALIDATION
====================================
*/

// Validate checks cross-field invariants. Build calls it; callers loading
// configuration from the environment may call it earlier to fail fast.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.AccessSecret) == 0 || len(c.JWT.RefreshSecret) == 0 {
		return errors.New("JWT AccessSecret and RefreshSecret are required")
	}
	if c.Security.ProductionMode && (len(c.JWT.AccessSecret) < 32 || len(c.JWT.RefreshSecret) < 32) {
		return errors.New("JWT secrets must be >= 32 bytes in production mode")
	}
	if c.JWT.AccessTTL <= 0 || c.JWT.RefreshTTL <= 0 {
		return errors.New("JWT AccessTTL and RefreshTTL must be > 0")
	}
	if c.JWT.MFASetupTTL <= 0 || c.JWT.MFALoginTTL <= 0 {
		return errors.New("JWT MFASetupTTL and MFALoginTTL must be > 0")
	}
	if c.JWT.RefreshTTL <= c.JWT.AccessTTL {
		return errors.New("JWT RefreshTTL must be > AccessTTL")
	}

	// Password
	if c.Password.Memory < 8*1024 {
		return errors.New("Password Memory must be >= 8192 KB")
	}
	if c.Password.Time < 1 {
		return errors.New("Password Time must be >= 1")
	}
	if c.Password.Parallelism < 1 {
		return errors.New("Password Parallelism must be >= 1")
	}
	if c.Password.SaltLength < 16 {
		return errors.New("Password SaltLength must be >= 16")
	}
	if c.Password.KeyLength < 16 {
		return errors.New("Password KeyLength must be >= 16")
	}
	if c.Password.Policy.MinLength < 8 {
		return errors.New("Password Policy MinLength must be >= 8")
	}

	// Lockout
	if err := c.lockoutPolicy().Validate(); err != nil {
		return err
	}

	// TOTP
	if c.TOTP.Issuer == "" {
		return errors.New("TOTP Issuer must be set")
	}
	if c.TOTP.Digits != 6 && c.TOTP.Digits != 8 {
		return errors.New("TOTP Digits must be 6 or 8")
	}
	if c.TOTP.Period <= 0 {
		return errors.New("TOTP Period must be > 0")
	}
	if c.TOTP.Skew < 0 || c.TOTP.Skew > 2 {
		return errors.New("TOTP Skew must be between 0 and 2")
	}
	if c.TOTP.MaxFailures <= 0 || c.TOTP.FailureWindow <= 0 {
		return errors.New("TOTP MaxFailures and FailureWindow must be > 0")
	}
	if c.TOTP.BackupCodeCount <= 0 || c.TOTP.BackupCodeCount > 20 {
		return errors.New("TOTP BackupCodeCount must be between 1 and 20")
	}
	if c.TOTP.BackupCodeLength < 8 || c.TOTP.BackupCodeLength > 16 {
		return errors.New("TOTP BackupCodeLength must be between 8 and 16")
	}

	// Rate limits
	if c.RateLimit.EnableIPThrottle {
		if c.RateLimit.MaxLoginPerIP <= 0 || c.RateLimit.LoginWindow <= 0 {
			return errors.New("RateLimit MaxLoginPerIP and LoginWindow must be > 0")
		}
		if c.RateLimit.MaxSignupPerIP <= 0 || c.RateLimit.SignupWindow <= 0 {
			return errors.New("RateLimit MaxSignupPerIP and SignupWindow must be > 0")
		}
	}

	if c.Redis.KeyPrefix == "" {
		return errors.New("Redis KeyPrefix must be set")
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when enabled")
	}

	return nil
}
