package notevault

import (
	"context"
	"errors"
	"testing"
)

func TestHealthReportsRedis(t *testing.T) {
	h := newEngineHarness(t, nil)
	ctx := context.Background()

	if st := h.engine.Health(ctx); !st.RedisAvailable {
		t.Fatalf("expected redis available, got %+v", st)
	}
	if err := h.engine.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	h.redis.Close()
	if st := h.engine.Health(ctx); st.RedisAvailable {
		t.Fatal("expected redis unavailable after shutdown")
	}
	if err := h.engine.Ping(ctx); !errors.Is(err, ErrRateLimitUnavailable) {
		t.Fatalf("expected ErrRateLimitUnavailable, got %v", err)
	}

	var nilEngine *Engine
	if st := nilEngine.Health(ctx); st.RedisAvailable {
		t.Fatal("nil engine must report unavailable")
	}
}

func TestSecurityReportReflectsConfig(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) { cfg.Audit.Enabled = false })
	r := h.engine.SecurityReport()

	if r.SigningAlgorithm != "HS256" || !r.SeparateRefreshSecret {
		t.Fatalf("unexpected signing posture: %+v", r)
	}
	if !r.LockoutActive || !r.TOTPReplayProtection || r.AuditActive {
		t.Fatalf("unexpected report: %+v", r)
	}
	if r.BackupCodes != 10 || r.MFATokenTTL != h.engine.TokenTTL("mfa-setup") {
		t.Fatalf("unexpected MFA posture: %+v", r)
	}
}
