package notevault

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"
)

func TestRefreshRotatesPair(t *testing.T) {
	h := newEngineHarness(t, nil)
	_, vr := h.enrolledUser(t, "refresh@example.com")

	h.clock.Advance(time.Minute)
	res, err := h.engine.Refresh(context.Background(), vr.Tokens.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if res.Tokens.AccessToken == vr.Tokens.AccessToken || res.Tokens.RefreshToken == vr.Tokens.RefreshToken {
		t.Fatal("expected a fresh pair")
	}
	if !res.Tokens.RefreshExpiresAt.After(vr.Tokens.RefreshExpiresAt) {
		t.Fatal("rotated refresh token must expire later")
	}
	if res.User.ID != vr.User.ID {
		t.Fatalf("expected user %q, got %q", vr.User.ID, res.User.ID)
	}
	if _, err := h.engine.ValidateAccess(context.Background(), res.Tokens.AccessToken); err != nil {
		t.Fatalf("rotated access token invalid: %v", err)
	}
}

func TestRefreshRejections(t *testing.T) {
	h := newEngineHarness(t, nil)
	_, vr := h.enrolledUser(t, "refreshbad@example.com")

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "missing", token: "", want: ErrTokenMissing},
		{name: "access token", token: vr.Tokens.AccessToken, want: ErrTokenWrongPurpose},
		{name: "garbage", token: "not-a-jwt", want: ErrTokenMalformed},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.engine.Refresh(context.Background(), tc.token)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if TokenErrorReason(err) == "" {
				t.Fatalf("expected a token error reason for %v", err)
			}
		})
	}

	h.clock.Advance(8 * 24 * time.Hour)
	if _, err := h.engine.Refresh(context.Background(), vr.Tokens.RefreshToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestRefreshRejectsLockedAccount(t *testing.T) {
	h := newEngineHarness(t, nil)
	_, vr := h.enrolledUser(t, "refreshlock@example.com")

	for i := 0; i < 5; i++ {
		_, _ = h.engine.Login(context.Background(), "refreshlock@example.com", "Wr0ng!Password", "")
	}
	if _, err := h.engine.Refresh(context.Background(), vr.Tokens.RefreshToken); !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestAccessTokenExpires(t *testing.T) {
	h := newEngineHarness(t, nil)
	_, vr := h.enrolledUser(t, "expiry@example.com")

	auth, err := h.engine.ValidateAccess(context.Background(), vr.Tokens.AccessToken)
	if err != nil {
		t.Fatalf("ValidateAccess failed: %v", err)
	}
	if auth.TokenID == "" || !auth.ExpiresAt.Equal(vr.Tokens.AccessExpiresAt.Truncate(time.Second)) {
		t.Fatalf("unexpected auth result: %+v", auth)
	}

	h.clock.Advance(16 * time.Minute)
	_, err = h.engine.ValidateAccess(context.Background(), vr.Tokens.AccessToken)
	if !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
	if TokenErrorReason(err) != "expired" {
		t.Fatalf("expected reason expired, got %q", TokenErrorReason(err))
	}
	if _, err := h.engine.ValidateAccess(context.Background(), ""); !errors.Is(err, ErrTokenMissing) {
		t.Fatalf("expected ErrTokenMissing, got %v", err)
	}
}

func TestLogoutAcceptsAnyTokens(t *testing.T) {
	h := newEngineHarness(t, nil)
	_, vr := h.enrolledUser(t, "logout@example.com")

	h.engine.Logout(context.Background(), vr.Tokens.AccessToken, vr.Tokens.RefreshToken)
	h.engine.Logout(context.Background(), "", "")
	h.engine.Logout(context.Background(), "junk", "junk")

	if got := h.engine.MetricsSnapshot().Counters[MetricLogout]; got != 3 {
		t.Fatalf("expected 3 logouts, got %d", got)
	}
}

func TestMeReturnsStoredUser(t *testing.T) {
	h := newEngineHarness(t, nil)
	_, vr := h.enrolledUser(t, "me@example.com")

	user, err := h.engine.Me(context.Background(), vr.User.ID)
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	safe := user.Safe()
	if safe.Email != "me@example.com" || !safe.MFAEnabled || safe.EncryptionSalt != "" {
		t.Fatalf("unexpected safe user: %+v", safe)
	}
	if _, err := h.engine.Me(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestSetEncryptionSaltOnce(t *testing.T) {
	h := newEngineHarness(t, nil)
	_, vr := h.enrolledUser(t, "salt@example.com")
	ctx := context.Background()

	for _, bad := range []string{"", "not base64!", base64.StdEncoding.EncodeToString(make([]byte, 8))} {
		if _, err := h.engine.SetEncryptionSalt(ctx, vr.User.ID, bad); !errors.Is(err, ErrInvalidSalt) {
			t.Fatalf("salt %q: expected ErrInvalidSalt, got %v", bad, err)
		}
	}

	salt := base64.StdEncoding.EncodeToString([]byte("0123456789abcdef"))
	user, err := h.engine.SetEncryptionSalt(ctx, vr.User.ID, salt)
	if err != nil {
		t.Fatalf("SetEncryptionSalt failed: %v", err)
	}
	if user.EncryptionSalt != salt {
		t.Fatalf("expected salt %q, got %q", salt, user.EncryptionSalt)
	}

	other := base64.StdEncoding.EncodeToString([]byte("fedcba9876543210"))
	if _, err := h.engine.SetEncryptionSalt(ctx, vr.User.ID, other); !errors.Is(err, ErrSaltAlreadySet) {
		t.Fatalf("expected ErrSaltAlreadySet, got %v", err)
	}
	user, err = h.engine.Me(ctx, vr.User.ID)
	if err != nil {
		t.Fatalf("Me failed: %v", err)
	}
	if user.EncryptionSalt != salt {
		t.Fatal("existing salt must never be replaced")
	}

	if _, err := h.engine.SetEncryptionSalt(ctx, "missing", salt); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}
