package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/MrEthical07/notevault/vault"
)

// State is where a Session is in the sign-in sequence.
type State int

const (
	StateLoggedOut State = iota
	// StateAwaitingMFA holds a temp token from signup or login.
	StateAwaitingMFA
	// StateLocked is authenticated without a vault key.
	StateLocked
	// StateUnlocked is authenticated with a vault key; notes can be read
	// and written.
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged out"
	case StateAwaitingMFA:
		return "awaiting mfa"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

var (
	// ErrInvalidTransition is returned when an operation is not allowed in
	// the current state.
	ErrInvalidTransition = errors.New("operation not allowed in current session state")
	// ErrSessionLocked is returned by note operations without a vault key,
	// including ones that raced with Lock.
	ErrSessionLocked = errors.New("session is locked")
)

type mfaKind int

const (
	mfaEnroll mfaKind = iota + 1
	mfaLogin
)

// Session is one user's client session. All methods are safe for
// concurrent use; note operations run outside the state lock so Lock can
// proceed while they finish.
type Session struct {
	api *API

	mu        sync.Mutex
	state     State
	user      *User
	tempToken string
	pending   mfaKind
	key       *vault.Key
}

// NewSession returns a logged-out session over api. A failed token refresh
// inside api drops the session to StateLoggedOut.
func NewSession(api *API) *Session {
	s := &Session{api: api}
	api.onSessionLost(s.dropToLoggedOut)
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// User returns a copy of the signed-in account, or nil.
func (s *Session) User() *User {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

func (s *Session) expect(states ...State) error {
	for _, st := range states {
		if s.state == st {
			return nil
		}
	}
	return fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.state)
}

// Signup creates an account and moves to StateAwaitingMFA. The result
// carries the QR code and secret for the authenticator app.
func (s *Session) Signup(ctx context.Context, name, email, password string) (*SignupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(StateLoggedOut); err != nil {
		return nil, err
	}

	res, err := s.api.Signup(ctx, name, email, password)
	if err != nil {
		return nil, err
	}
	s.state, s.tempToken, s.pending = StateAwaitingMFA, res.TempToken, mfaEnroll
	return res, nil
}

// Login checks the password. It moves to StateAwaitingMFA when the account
// requires a second factor and to StateLocked otherwise.
func (s *Session) Login(ctx context.Context, email, password string) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(StateLoggedOut); err != nil {
		return s.state, err
	}

	res, err := s.api.Login(ctx, email, password, "")
	if err != nil {
		return s.state, err
	}
	if res.RequiresMFA {
		s.state, s.tempToken, s.pending = StateAwaitingMFA, res.TempToken, mfaLogin
		return s.state, nil
	}
	s.authenticated(res.User)
	return s.state, nil
}

// VerifyMFA submits a TOTP code for the pending enrollment or login and
// moves to StateLocked. Backup codes are returned after an enrollment.
// A rejected code leaves the session awaiting MFA.
func (s *Session) VerifyMFA(ctx context.Context, code string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(StateAwaitingMFA); err != nil {
		return nil, err
	}

	if s.pending == mfaEnroll {
		res, err := s.api.VerifyMFA(ctx, s.tempToken, code)
		if err != nil {
			return nil, err
		}
		user := res.User
		s.authenticated(&user)
		return res.BackupCodes, nil
	}

	res, err := s.api.LoginMFA(ctx, s.tempToken, code)
	if err != nil {
		return nil, err
	}
	s.authenticated(res.User)
	return nil, nil
}

// VerifyBackupCode finishes a pending login with a backup code.
func (s *Session) VerifyBackupCode(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(StateAwaitingMFA); err != nil {
		return err
	}
	if s.pending != mfaLogin {
		return fmt.Errorf("%w: backup codes only complete a login", ErrInvalidTransition)
	}

	res, err := s.api.LoginBackupCode(ctx, s.tempToken, code)
	if err != nil {
		return err
	}
	s.authenticated(res.User)
	return nil
}

// Resume restores an authenticated session from stored credentials and
// moves to StateLocked.
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	if err := s.expect(StateLoggedOut); err != nil {
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	if !s.api.HasCredentials() {
		return ErrSessionExpired
	}
	// Me may refresh, and a failed refresh calls dropToLoggedOut, so the
	// state lock is not held here.
	user, err := s.api.Me(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(StateLoggedOut); err != nil {
		return err
	}
	s.authenticated(user)
	return nil
}

func (s *Session) authenticated(user *User) {
	s.state, s.tempToken, s.pending = StateLocked, "", 0
	if user != nil {
		u := *user
		s.user = &u
	}
}

// Unlock derives the vault key from passphrase and moves to StateUnlocked.
// On the first unlock of an account a fresh salt is generated and saved to
// the server.
func (s *Session) Unlock(ctx context.Context, passphrase []byte) error {
	s.mu.Lock()
	if err := s.expect(StateLocked); err != nil {
		s.mu.Unlock()
		return err
	}
	var salt string
	if s.user != nil {
		salt = s.user.EncryptionSalt
	}
	s.mu.Unlock()

	key, err := s.deriveKey(ctx, passphrase, salt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateLocked {
		key.Destroy()
		return fmt.Errorf("%w: session is %s", ErrInvalidTransition, s.state)
	}
	s.key, s.state = key, StateUnlocked
	return nil
}

func (s *Session) deriveKey(ctx context.Context, passphrase []byte, salt string) (*vault.Key, error) {
	if salt != "" {
		return vault.DeriveKeyBase64(passphrase, salt)
	}

	if err := vault.ValidatePassphrase(passphrase); err != nil {
		return nil, err
	}
	key, err := vault.DeriveKey(passphrase, nil)
	if err != nil {
		return nil, err
	}

	user, err := s.api.SetEncryptionSalt(ctx, key.SaltBase64())
	if IsStatus(err, http.StatusConflict) {
		// Another device set the salt first. Derive against the stored one.
		key.Destroy()
		if user, err = s.api.Me(ctx); err != nil {
			return nil, err
		}
		s.setUser(user)
		return vault.DeriveKeyBase64(passphrase, user.EncryptionSalt)
	}
	if err != nil {
		key.Destroy()
		return nil, err
	}
	s.setUser(user)
	return key, nil
}

func (s *Session) setUser(user *User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user != nil {
		u := *user
		s.user = &u
	}
}

// Lock destroys the vault key and moves to StateLocked. Note operations
// already running finish with the old key; later ones fail with
// ErrSessionLocked.
func (s *Session) Lock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.expect(StateUnlocked); err != nil {
		return err
	}
	s.destroyKey()
	s.state = StateLocked
	return nil
}

// Logout ends the session from any state. Local state is cleared even if
// the server call fails.
func (s *Session) Logout(ctx context.Context) error {
	s.mu.Lock()
	loggedIn := s.state != StateLoggedOut
	s.reset()
	s.mu.Unlock()

	if !loggedIn && !s.api.HasCredentials() {
		return nil
	}
	return s.api.Logout(ctx)
}

func (s *Session) dropToLoggedOut() {
	s.mu.Lock()
	s.reset()
	s.mu.Unlock()
}

func (s *Session) reset() {
	s.destroyKey()
	s.state, s.user, s.tempToken, s.pending = StateLoggedOut, nil, "", 0
}

func (s *Session) destroyKey() {
	if s.key != nil {
		s.key.Destroy()
		s.key = nil
	}
}

// withKey runs fn with the vault key. It does not hold the state lock
// while fn runs.
func (s *Session) withKey(fn func(*vault.Key) error) error {
	s.mu.Lock()
	if s.state != StateUnlocked || s.key == nil {
		s.mu.Unlock()
		return ErrSessionLocked
	}
	key := s.key
	s.mu.Unlock()

	err := fn(key)
	if errors.Is(err, vault.ErrKeyDestroyed) {
		return ErrSessionLocked
	}
	return err
}
