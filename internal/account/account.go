// Package account holds the credential record shared by the engine, its
// flows and the store implementations.
package account

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/notevault/lockout"
)

var (
	// ErrUserNotFound is returned by Store lookups for a missing account.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned by Store.CreateUser for a duplicate email.
	ErrEmailTaken = errors.New("user already exists with this email")
)

// BackupCode is one single-use MFA recovery code. Only the hash is stored.
type BackupCode struct {
	Hash [32]byte
	Used bool
}

// MFA is the second-factor state of an account.
type MFA struct {
	Enabled bool
	// Secret is the base32 TOTP secret. It is set at signup and never
	// leaves the server after the enrollment response.
	Secret      string
	BackupCodes []BackupCode
}

// User is the credential record held by a Store.
type User struct {
	ID           string
	Name         string
	Email        string
	PasswordHash string
	MFA          MFA

	// EncryptionSalt is the base64 account salt for note-key derivation.
	// Empty until the first client unlock persists it.
	EncryptionSalt string

	LoginAttempts int
	LockUntil     *time.Time
	LastLogin     *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockState returns the lockout counters of u.
func (u *User) LockState() lockout.State {
	if u == nil {
		return lockout.State{}
	}
	return lockout.State{Attempts: u.LoginAttempts, LockUntil: u.LockUntil}
}

// Safe returns the client-facing projection of u.
func (u *User) Safe() SafeUser {
	if u == nil {
		return SafeUser{}
	}
	return SafeUser{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		MFAEnabled:     u.MFA.Enabled,
		EncryptionSalt: u.EncryptionSalt,
		LastLogin:      u.LastLogin,
		CreatedAt:      u.CreatedAt,
	}
}

// Clone returns a deep copy of u so stores never hand out shared slices.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	if len(u.MFA.BackupCodes) > 0 {
		out.MFA.BackupCodes = append([]BackupCode(nil), u.MFA.BackupCodes...)
	}
	if u.LockUntil != nil {
		t := *u.LockUntil
		out.LockUntil = &t
	}
	if u.LastLogin != nil {
		t := *u.LastLogin
		out.LastLogin = &t
	}
	return &out
}

// RemainingBackupCodes counts unused recovery codes.
func (u *User) RemainingBackupCodes() int {
	if u == nil {
		return 0
	}
	n := 0
	for _, c := range u.MFA.BackupCodes {
		if !c.Used {
			n++
		}
	}
	return n
}

// SafeUser is the only user shape that leaves the server. It carries no
// hashes, secrets or lockout counters.
type SafeUser struct {
	ID             string     `json:"id"`
	Name           string     `json:"name"`
	Email          string     `json:"email"`
	MFAEnabled     bool       `json:"mfaEnabled"`
	EncryptionSalt string     `json:"encryptionSalt"`
	LastLogin      *time.Time `json:"lastLogin,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// CreateUserInput is the input for Store.CreateUser. Email is already
// normalized.
type CreateUserInput struct {
	Name         string
	Email        string
	PasswordHash string
	MFASecret    string
}

// Tokens is an issued access/refresh pair with expiries for cookie MaxAge.
type Tokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// Store is the credential store the engine authenticates against.
//
// Implementations return ErrUserNotFound for missing users and ErrEmailTaken
// for a duplicate email; any other error is treated as a
// backend failure.
type Store interface {
	CreateUser(ctx context.Context, in CreateUserInput) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	GetUserByID(ctx context.Context, userID string) (*User, error)

	// RecordLoginAttempt applies policy.Next to the stored lockout state in
	// one atomic read-modify-write and returns the new state. Concurrent
	// failures for the same account must never be lost.
	RecordLoginAttempt(ctx context.Context, userID string, success bool, policy lockout.Policy, now time.Time) (lockout.State, error)

	UpdatePasswordHash(ctx context.Context, userID, hash string) error
	TouchLastLogin(ctx context.Context, userID string, at time.Time) error

	// EnableMFA flips MFA.Enabled from false to true and stores codes. It
	// reports false, without writing, when MFA was already enabled.
	EnableMFA(ctx context.Context, userID string, codes []BackupCode) (bool, error)
	// ConsumeBackupCode marks the unused code with the given hash as used
	// and reports whether one was found.
	ConsumeBackupCode(ctx context.Context, userID string, hash [32]byte) (bool, error)
	// SetEncryptionSalt stores salt if none is set and reports whether it
	// did.
	SetEncryptionSalt(ctx context.Context, userID, salt string) (bool, error)
}

// NormalizeEmail trims and lower-cases an address before every lookup and
// insert.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
