package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Purpose scopes a token to the single endpoint family allowed to consume it.
type Purpose string

const (
	// PurposeAccess authorizes API calls.
	PurposeAccess Purpose = "access"
	// PurposeRefresh authorizes minting a new token pair.
	PurposeRefresh Purpose = "refresh"
	// PurposeMFASetup authorizes completing MFA enrollment after signup.
	PurposeMFASetup Purpose = "mfa-setup"
	// PurposeMFALogin authorizes the second login step for enrolled users.
	PurposeMFALogin Purpose = "mfa-login"
)

const minSecretBytes = 16

var (
	// ErrTokenExpired is returned when the token's exp is in the past.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMalformed covers undecodable tokens, bad signatures and invalid claims.
	ErrTokenMalformed = errors.New("token malformed or signature invalid")
	// ErrTokenWrongPurpose is returned for a validly signed token presented to the wrong endpoint.
	ErrTokenWrongPurpose = errors.New("token purpose mismatch")
)

// Config holds signing secrets and lifetimes for every purpose.
//
// Access, mfa-setup and mfa-login tokens share AccessSecret; refresh tokens
// are signed with RefreshSecret so a leaked access secret cannot mint sessions.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte

	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	MFASetupTTL time.Duration
	MFALoginTTL time.Duration

	Issuer       string
	Audience     string
	Leeway       time.Duration
	MaxFutureIAT time.Duration

	// Now is used for issuance and validation; defaults to time.Now.
	Now func() time.Time
}

// Claims is the payload of every token. Subject carries the user ID.
type Claims struct {
	Purpose Purpose `json:"purpose"`
	jwt.RegisteredClaims
}

// UserID returns the token subject.
func (c *Claims) UserID() string {
	if c == nil {
		return ""
	}
	return c.Subject
}

// Manager issues and verifies purpose-scoped HS256 tokens.
//
// Manager is immutable after NewManager and safe for concurrent use.
type Manager struct {
	config Config
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if len(cfg.AccessSecret) < minSecretBytes {
		return nil, errors.New("access secret must be at least 16 bytes")
	}
	if len(cfg.RefreshSecret) < minSecretBytes {
		return nil, errors.New("refresh secret must be at least 16 bytes")
	}
	if string(cfg.AccessSecret) == string(cfg.RefreshSecret) {
		return nil, errors.New("access and refresh secrets must differ")
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 || cfg.MFASetupTTL <= 0 || cfg.MFALoginTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	cfg.Issuer = strings.TrimSpace(cfg.Issuer)
	cfg.Audience = strings.TrimSpace(cfg.Audience)
	cfg.AccessSecret = append([]byte(nil), cfg.AccessSecret...)
	cfg.RefreshSecret = append([]byte(nil), cfg.RefreshSecret...)

	return &Manager{config: cfg}, nil
}

// TTL returns the configured lifetime for purpose, or 0 when unknown.
func (m *Manager) TTL(purpose Purpose) time.Duration {
	switch purpose {
	case PurposeAccess:
		return m.config.AccessTTL
	case PurposeRefresh:
		return m.config.RefreshTTL
	case PurposeMFASetup:
		return m.config.MFASetupTTL
	case PurposeMFALogin:
		return m.config.MFALoginTTL
	default:
		return 0
	}
}

// Issue signs a token for userID scoped to purpose.
func (m *Manager) Issue(purpose Purpose, userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, errors.New("empty subject")
	}
	key, err := m.key(purpose)
	if err != nil {
		return "", time.Time{}, err
	}

	now := m.config.Now()
	expiresAt := now.Add(m.TTL(purpose))
	claims := Claims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    m.config.Issuer,
		},
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// Parse verifies tokenStr and requires its purpose to equal expected.
//
// The verification key is selected from the token's own purpose claim, so a
// validly signed token of another purpose yields ErrTokenWrongPurpose rather
// than a signature failure. Errors wrap ErrTokenExpired, ErrTokenMalformed
// or ErrTokenWrongPurpose.
func (m *Manager) Parse(expected Purpose, tokenStr string) (*Claims, error) {
	if _, err := m.key(expected); err != nil {
		return nil, err
	}
	if strings.TrimSpace(tokenStr) == "" {
		return nil, ErrTokenMalformed
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.config.Now),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		claims, ok := t.Claims.(*Claims)
		if !ok {
			return nil, errors.New("unexpected claims type")
		}
		return m.key(claims.Purpose)
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %v", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrTokenMalformed
	}
	if claims.IssuedAt != nil && claims.IssuedAt.Time.After(m.config.Now().Add(m.config.MaxFutureIAT)) {
		return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenMalformed)
	}
	if claims.Purpose != expected {
		return nil, fmt.Errorf("%w: got %q, want %q", ErrTokenWrongPurpose, claims.Purpose, expected)
	}

	return claims, nil
}

func (m *Manager) key(purpose Purpose) ([]byte, error) {
	switch purpose {
	case PurposeAccess, PurposeMFASetup, PurposeMFALogin:
		return m.config.AccessSecret, nil
	case PurposeRefresh:
		return m.config.RefreshSecret, nil
	default:
		return nil, fmt.Errorf("%w: unknown purpose %q", ErrTokenMalformed, purpose)
	}
}
