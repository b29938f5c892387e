package jwt

import (
	"errors"
	"testing"
	"time"

	gjwt "github.com/golang-jwt/jwt/v5"
)

func testConfig() Config {
	return Config{
		AccessSecret:  []byte("access-secret-access-secret-0123"),
		RefreshSecret: []byte("refresh-secret-refresh-secret-01"),
		AccessTTL:     15 * time.Minute,
		RefreshTTL:    7 * 24 * time.Hour,
		MFASetupTTL:   10 * time.Minute,
		MFALoginTTL:   5 * time.Minute,
		Issuer:        "notevault",
		Audience:      "notevault-api",
	}
}

func newTestManager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	m, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager error: %v", err)
	}
	return m
}

func TestIssueAndParseEveryPurpose(t *testing.T) {
	m := newTestManager(t, testConfig())

	for _, purpose := range []Purpose{PurposeAccess, PurposeRefresh, PurposeMFASetup, PurposeMFALogin} {
		token, exp, err := m.Issue(purpose, "user-1")
		if err != nil {
			t.Fatalf("%s: Issue error: %v", purpose, err)
		}
		if time.Until(exp) <= 0 {
			t.Fatalf("%s: expected expiry in the future, got %v", purpose, exp)
		}

		claims, err := m.Parse(purpose, token)
		if err != nil {
			t.Fatalf("%s: Parse error: %v", purpose, err)
		}
		if claims.UserID() != "user-1" {
			t.Fatalf("%s: expected subject user-1, got %q", purpose, claims.UserID())
		}
		if claims.Purpose != purpose {
			t.Fatalf("%s: expected purpose claim %q, got %q", purpose, purpose, claims.Purpose)
		}
		if claims.ID == "" {
			t.Fatalf("%s: expected jti to be set", purpose)
		}
	}
}

func TestParseRejectsCrossPurpose(t *testing.T) {
	m := newTestManager(t, testConfig())

	cases := []struct {
		issued   Purpose
		expected Purpose
	}{
		{PurposeMFASetup, PurposeMFALogin},
		{PurposeMFALogin, PurposeMFASetup},
		{PurposeRefresh, PurposeAccess},
		{PurposeAccess, PurposeRefresh},
		{PurposeMFALogin, PurposeAccess},
	}

	for _, tc := range cases {
		token, _, err := m.Issue(tc.issued, "user-1")
		if err != nil {
			t.Fatalf("Issue(%s) error: %v", tc.issued, err)
		}
		if _, err := m.Parse(tc.expected, token); !errors.Is(err, ErrTokenWrongPurpose) {
			t.Fatalf("%s as %s: expected ErrTokenWrongPurpose, got %v", tc.issued, tc.expected, err)
		}
	}
}

func TestParseExpired(t *testing.T) {
	cfg := testConfig()
	past := time.Now().Add(-8 * 24 * time.Hour)
	cfg.Now = func() time.Time { return past }
	issuer := newTestManager(t, cfg)

	token, _, err := issuer.Issue(PurposeRefresh, "user-1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}

	verifier := newTestManager(t, testConfig())
	if _, err := verifier.Parse(PurposeRefresh, token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestParseMalformed(t *testing.T) {
	m := newTestManager(t, testConfig())

	for _, input := range []string{"", "   ", "not.a.jwt", "eyJhbGciOiJub25lIn0.eyJzdWIiOiJ4In0."} {
		if _, err := m.Parse(PurposeAccess, input); !errors.Is(err, ErrTokenMalformed) {
			t.Fatalf("input %q: expected ErrTokenMalformed, got %v", input, err)
		}
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	m := newTestManager(t, testConfig())

	other := testConfig()
	other.AccessSecret = []byte("another-access-secret-0123456789")
	forger := newTestManager(t, other)

	token, _, err := forger.Issue(PurposeAccess, "user-1")
	if err != nil {
		t.Fatalf("Issue error: %v", err)
	}
	if _, err := m.Parse(PurposeAccess, token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed for foreign signature, got %v", err)
	}
}

func TestParseRejectsForgedPurposeClaim(t *testing.T) {
	m := newTestManager(t, testConfig())

	// A refresh claim signed with the access secret must not verify.
	claims := Claims{
		Purpose: PurposeRefresh,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "notevault",
			Audience:  gjwt.ClaimStrings{"notevault-api"},
			IssuedAt:  gjwt.NewNumericDate(time.Now()),
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testConfig().AccessSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(PurposeRefresh, token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected ErrTokenMalformed, got %v", err)
	}
}

func TestParseRejectsWrongAlgorithm(t *testing.T) {
	m := newTestManager(t, testConfig())

	claims := Claims{
		Purpose: PurposeAccess,
		RegisteredClaims: gjwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: gjwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}
	token, err := gjwt.NewWithClaims(gjwt.SigningMethodHS512, claims).SignedString(testConfig().AccessSecret)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	if _, err := m.Parse(PurposeAccess, token); !errors.Is(err, ErrTokenMalformed) {
		t.Fatalf("expected wrong algorithm to be rejected, got %v", err)
	}
}

func TestParseIssuerAndAudience(t *testing.T) {
	m := newTestManager(t, testConfig())

	other := testConfig()
	other.Issuer = "someone-else"
	wrongIssuer := newTestManager(t, other)
	token, _, _ := wrongIssuer.Issue(PurposeAccess, "user-1")
	if _, err := m.Parse(PurposeAccess, token); err == nil {
		t.Fatal("expected wrong issuer to fail")
	}

	other = testConfig()
	other.Audience = "other-api"
	wrongAudience := newTestManager(t, other)
	token, _, _ = wrongAudience.Issue(PurposeAccess, "user-1")
	if _, err := m.Parse(PurposeAccess, token); err == nil {
		t.Fatal("expected wrong audience to fail")
	}
}

func TestNewManagerValidation(t *testing.T) {
	cfg := testConfig()
	cfg.RefreshSecret = cfg.AccessSecret
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected identical secrets to be rejected")
	}

	cfg = testConfig()
	cfg.AccessSecret = []byte("short")
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected short secret to be rejected")
	}

	cfg = testConfig()
	cfg.MFALoginTTL = 0
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected zero TTL to be rejected")
	}

	cfg = testConfig()
	cfg.Leeway = time.Hour
	if _, err := NewManager(cfg); err == nil {
		t.Fatal("expected large leeway to be rejected")
	}
}
