package notevault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/MrEthical07/notevault/internal/store/memory"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type gateSink struct {
	gate chan struct{}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func eventsOfType(events []AuditEvent, eventType AuditEventType) []AuditEvent {
	var out []AuditEvent
	for _, ev := range events {
		if ev.Type == eventType {
			out = append(out, ev)
		}
	}
	return out
}

func TestAuditDisabledNoSinkCalls(t *testing.T) {
	h := newEngineHarness(t, func(cfg *Config) { cfg.Audit.Enabled = false })
	h.enrolledUser(t, "quiet@example.com")
	_, _ = h.engine.Login(context.Background(), "quiet@example.com", "Wr0ng!Password", "")

	if events := h.drainAudit(); len(events) != 0 {
		t.Fatalf("expected no events, got %d", len(events))
	}
	if h.engine.AuditDropped() != 0 {
		t.Fatal("disabled audit must not count drops")
	}
}

func TestAuditLockoutSequence(t *testing.T) {
	h := newEngineHarness(t, nil)
	h.enrolledUser(t, "locked@example.com")
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = h.engine.Login(ctx, "locked@example.com", "Wr0ng!Password", "")
	}
	if _, err := h.engine.Login(ctx, "locked@example.com", testPassword, ""); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}

	events := h.drainAudit()
	if got := len(eventsOfType(events, auditEventLoginFailure)); got != 5 {
		t.Fatalf("expected 5 login failures, got %d", got)
	}
	locked := eventsOfType(events, auditEventAccountLocked)
	if len(locked) != 1 || locked[0].Metadata["attempts"] != "5" {
		t.Fatalf("expected one account_locked event at 5 attempts, got %+v", locked)
	}
	rejected := eventsOfType(events, auditEventLoginLocked)
	if len(rejected) != 1 || rejected[0].Error != string(auditErrAccountLocked) {
		t.Fatalf("expected the locked login to be audited, got %+v", rejected)
	}
}

func TestAuditEnrollmentAndSessionEvents(t *testing.T) {
	h := newEngineHarness(t, nil)
	_, vr := h.enrolledUser(t, "events@example.com")
	ctx := context.Background()

	if _, err := h.engine.Refresh(ctx, vr.Tokens.RefreshToken); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	_, _ = h.engine.Refresh(ctx, "junk")
	h.engine.Logout(ctx, vr.Tokens.AccessToken, vr.Tokens.RefreshToken)

	events := h.drainAudit()
	enrolled := eventsOfType(events, auditEventMFAEnrolled)
	if len(enrolled) != 1 || enrolled[0].UserID != vr.User.ID {
		t.Fatalf("unexpected mfa_enrolled events: %+v", enrolled)
	}
	if enrolled[0].Metadata["backup_codes"] != fmt.Sprint(len(vr.BackupCodes)) {
		t.Fatalf("expected backup code count, got %q", enrolled[0].Metadata["backup_codes"])
	}
	if len(eventsOfType(events, auditEventRefreshSuccess)) != 1 {
		t.Fatal("expected one refresh_success event")
	}
	failed := eventsOfType(events, auditEventRefreshFailure)
	if len(failed) != 1 || failed[0].Error != string(auditErrInvalidToken) {
		t.Fatalf("unexpected refresh_failure events: %+v", failed)
	}
	if len(eventsOfType(events, auditEventLogout)) != 1 {
		t.Fatal("expected one logout event")
	}
}

func TestAuditNoSecretsInEvents(t *testing.T) {
	h := newEngineHarness(t, nil)
	su, vr := h.enrolledUser(t, "secrets@example.com")
	ctx := context.Background()

	login, err := h.engine.Login(ctx, "secrets@example.com", testPassword, "")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := h.engine.LoginWithBackupCode(ctx, login.TempToken, vr.BackupCodes[0]); err != nil {
		t.Fatalf("LoginWithBackupCode failed: %v", err)
	}

	secrets := []string{testPassword, su.Secret, su.TempToken, vr.Tokens.AccessToken, vr.Tokens.RefreshToken, login.TempToken}
	secrets = append(secrets, vr.BackupCodes...)

	events := h.drainAudit()
	if len(eventsOfType(events, auditEventBackupCodeUsed)) != 1 {
		t.Fatal("expected a backup_code_used event")
	}
	for _, ev := range events {
		for k, v := range ev.Metadata {
			for _, s := range secrets {
				if strings.Contains(v, s) {
					t.Fatalf("event %s leaks a secret in %s", ev.Type, k)
				}
			}
		}
	}
}

func TestAuditFullBufferDropsWithoutBlocking(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	cfg := engineTestConfig()
	cfg.Audit.BufferSize = 1
	cfg.Audit.DropIfFull = true

	sink := &gateSink{gate: make(chan struct{})}
	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(memory.New()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 4; i++ {
			_, _ = engine.Login(context.Background(), "nobody@example.com", testPassword, "")
		}
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("login blocked on a full audit buffer")
	}

	if engine.AuditDropped() == 0 {
		t.Fatal("expected dropped events")
	}
	close(sink.gate)
	engine.Close()
}

func TestAuditErrorCodeMapping(t *testing.T) {
	tests := []struct {
		err  error
		want AuditErrorCode
	}{
		{nil, ""},
		{ErrInvalidCredentials, auditErrInvalidCredentials},
		{fmt.Errorf("wrapped: %w", ErrAccountLocked), auditErrAccountLocked},
		{ErrMFARateLimited, auditErrRateLimited},
		{ErrTokenExpired, auditErrTokenExpired},
		{ErrSaltAlreadySet, auditErrSaltAlreadySet},
		{ErrStoreUnavailable, auditErrUnavailable},
		{errors.New("boom"), auditErrInternal},
	}
	for _, tc := range tests {
		if got := auditErrorCode(tc.err); got != tc.want {
			t.Errorf("auditErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
