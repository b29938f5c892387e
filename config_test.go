package notevault

import (
	"testing"
	"time"
)

func validTestConfig() Config {
	cfg := defaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-access-secret-0001")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-refresh-secret-01")
	return cfg
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{name: "defaults with secrets", mutate: func(*Config) {}, wantValid: true},
		{name: "missing secrets", mutate: func(c *Config) { c.JWT.AccessSecret = nil }, wantValid: false},
		{
			name: "short secrets in production",
			mutate: func(c *Config) {
				c.Security.ProductionMode = true
				c.JWT.AccessSecret = []byte("0123456789abcdef")
			},
			wantValid: false,
		},
		{name: "zero access ttl", mutate: func(c *Config) { c.JWT.AccessTTL = 0 }, wantValid: false},
		{name: "zero mfa setup ttl", mutate: func(c *Config) { c.JWT.MFASetupTTL = 0 }, wantValid: false},
		{name: "refresh not longer than access", mutate: func(c *Config) { c.JWT.RefreshTTL = c.JWT.AccessTTL }, wantValid: false},
		{name: "argon2 memory too low", mutate: func(c *Config) { c.Password.Memory = 1024 }, wantValid: false},
		{name: "argon2 salt too short", mutate: func(c *Config) { c.Password.SaltLength = 8 }, wantValid: false},
		{name: "policy min length too low", mutate: func(c *Config) { c.Password.Policy.MinLength = 4 }, wantValid: false},
		{name: "lockout threshold zero", mutate: func(c *Config) { c.Lockout.Threshold = 0 }, wantValid: false},
		{name: "lockout duration zero", mutate: func(c *Config) { c.Lockout.Duration = 0 }, wantValid: false},
		{name: "totp digits 7", mutate: func(c *Config) { c.TOTP.Digits = 7 }, wantValid: false},
		{name: "totp digits 8", mutate: func(c *Config) { c.TOTP.Digits = 8 }, wantValid: true},
		{name: "totp skew 3", mutate: func(c *Config) { c.TOTP.Skew = 3 }, wantValid: false},
		{name: "totp issuer empty", mutate: func(c *Config) { c.TOTP.Issuer = "" }, wantValid: false},
		{name: "backup code count zero", mutate: func(c *Config) { c.TOTP.BackupCodeCount = 0 }, wantValid: false},
		{name: "backup code length short", mutate: func(c *Config) { c.TOTP.BackupCodeLength = 4 }, wantValid: false},
		{name: "ip throttle zero limit", mutate: func(c *Config) { c.RateLimit.MaxLoginPerIP = 0 }, wantValid: false},
		{
			name: "ip throttle off ignores limits",
			mutate: func(c *Config) {
				c.RateLimit.EnableIPThrottle = false
				c.RateLimit.MaxLoginPerIP = 0
			},
			wantValid: true,
		},
		{name: "empty redis prefix", mutate: func(c *Config) { c.Redis.KeyPrefix = "" }, wantValid: false},
		{name: "audit zero buffer", mutate: func(c *Config) { c.Audit.BufferSize = 0 }, wantValid: false},
		{
			name: "audit disabled zero buffer",
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.BufferSize = 0
			},
			wantValid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tt.wantValid && err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestDefaultConfigMatchesTokenLifetimes(t *testing.T) {
	cfg := defaultConfig()
	if cfg.JWT.AccessTTL != 15*time.Minute ||
		cfg.JWT.RefreshTTL != 7*24*time.Hour ||
		cfg.JWT.MFASetupTTL != 10*time.Minute ||
		cfg.JWT.MFALoginTTL != 5*time.Minute {
		t.Fatalf("unexpected token lifetimes: %+v", cfg.JWT)
	}
	if cfg.Lockout.Threshold != 5 || cfg.Lockout.Duration != 30*time.Minute {
		t.Fatalf("unexpected lockout defaults: %+v", cfg.Lockout)
	}
}

func TestCloneConfigCopiesSecrets(t *testing.T) {
	cfg := validTestConfig()
	clone := cloneConfig(cfg)
	cfg.JWT.AccessSecret[0] = 'X'
	if clone.JWT.AccessSecret[0] == 'X' {
		t.Fatal("cloneConfig must not alias secret slices")
	}
}
