package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/notevault/internal/account"
	"github.com/MrEthical07/notevault/internal/notes"
	"github.com/MrEthical07/notevault/middleware"
	"github.com/MrEthical07/notevault/vault"
)

// ErrSessionExpired is returned when an authenticated call got a 401 and
// the refresh that followed failed. The stored credentials are gone.
var ErrSessionExpired = errors.New("session expired, log in again")

// User is the account as the server reports it.
type User = account.SafeUser

// FieldError is one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string       `json:"message"`
	Reason  string       `json:"reason"`
	Errors  []FieldError `json:"errors"`
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if len(e.Errors) > 0 {
		parts := make([]string, 0, len(e.Errors))
		for _, f := range e.Errors {
			parts = append(parts, f.Field+" "+f.Message)
		}
		msg += ": " + strings.Join(parts, "; ")
	}
	return fmt.Sprintf("%s (%d)", msg, e.Status)
}

// IsStatus reports whether err is an *APIError with the given status.
func IsStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}

// Option configures an API.
type Option func(*API)

// WithHTTPClient replaces the default client, which has a 30s timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(a *API) { a.http = c }
}

// API is a client for the notevault HTTP API.
type API struct {
	base  *url.URL
	http  *http.Client
	store TokenStore

	mu         sync.Mutex
	creds      Credentials
	onAuthLost func()
}

// NewAPI returns a client for the server at baseURL. Credentials are read
// from store, or kept in memory when store is nil.
func NewAPI(baseURL string, store TokenStore, opts ...Option) (*API, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("server url %q must be http or https", baseURL)
	}
	if store == nil {
		store = &MemoryStore{}
	}

	a := &API{
		base:  base,
		http:  &http.Client{Timeout: 30 * time.Second},
		store: store,
	}
	for _, opt := range opts {
		opt(a)
	}

	creds, err := store.Load()
	if err != nil {
		return nil, err
	}
	a.creds = creds
	return a, nil
}

// HasCredentials reports whether session cookies are held.
func (a *API) HasCredentials() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return !a.creds.Empty()
}

// onSessionLost registers fn to run after a failed refresh.
func (a *API) onSessionLost(fn func()) {
	a.mu.Lock()
	a.onAuthLost = fn
	a.mu.Unlock()
}

// clearCredentials forgets and unpersists the session cookies.
func (a *API) clearCredentials() error {
	a.mu.Lock()
	a.creds = Credentials{}
	a.mu.Unlock()
	return a.store.Clear()
}

// do performs one request. in is sent as JSON when non-nil; a 2xx body is
// decoded into out when non-nil.
func (a *API) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.base.String()+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	a.mu.Lock()
	creds := a.creds
	a.mu.Unlock()
	if creds.AccessToken != "" {
		req.AddCookie(&http.Cookie{Name: middleware.AccessCookie, Value: creds.AccessToken})
	}
	if creds.RefreshToken != "" {
		req.AddCookie(&http.Cookie{Name: middleware.RefreshCookie, Value: creds.RefreshToken})
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if err := a.captureCookies(resp); err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(apiErr)
		return apiErr
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// captureCookies stores session cookies set or cleared by resp.
func (a *API) captureCookies(resp *http.Response) error {
	a.mu.Lock()
	next := a.creds
	changed := false
	for _, c := range resp.Cookies() {
		value := c.Value
		if c.MaxAge < 0 {
			value = ""
		}
		switch c.Name {
		case middleware.AccessCookie:
			next.AccessToken, changed = value, true
		case middleware.RefreshCookie:
			next.RefreshToken, changed = value, true
		}
	}
	a.creds = next
	a.mu.Unlock()

	if !changed {
		return nil
	}
	return a.store.Save(next)
}

// doAuthed is do with one refresh-and-replay after a 401. If the refresh
// fails the credentials are cleared, the session-lost hook runs and
// ErrSessionExpired is returned.
func (a *API) doAuthed(ctx context.Context, method, path string, in, out any) error {
	err := a.do(ctx, method, path, in, out)
	if !IsStatus(err, http.StatusUnauthorized) {
		return err
	}

	// The server clears both cookies on any refresh error, so every
	// failure ends the session, including throttling and transport errors.
	if rerr := a.do(ctx, http.MethodPost, "/api/auth/refresh", nil, nil); rerr != nil {
		a.loseSession()
		return fmt.Errorf("%w: %w", ErrSessionExpired, rerr)
	}
	return a.do(ctx, method, path, in, out)
}

func (a *API) loseSession() {
	_ = a.clearCredentials()
	a.mu.Lock()
	fn := a.onAuthLost
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// SignupResult is the enrollment material returned by signup.
type SignupResult struct {
	Message   string `json:"message"`
	TempToken string `json:"tempToken"`
	QRCode    string `json:"qrCode"`
	Secret    string `json:"secret"`
}

// Signup creates an account. MFA enrollment must follow with VerifyMFA.
func (a *API) Signup(ctx context.Context, name, email, password string) (*SignupResult, error) {
	var out SignupResult
	err := a.do(ctx, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": name, "email": email, "password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyMFAResult is the reply to a completed enrollment.
type VerifyMFAResult struct {
	User        User     `json:"user"`
	BackupCodes []string `json:"backupCodes"`
}

// VerifyMFA completes enrollment with the first TOTP code and opens a
// session.
func (a *API) VerifyMFA(ctx context.Context, token, code string) (*VerifyMFAResult, error) {
	var out VerifyMFAResult
	err := a.do(ctx, http.MethodPost, "/api/auth/verify-mfa", map[string]string{
		"token": token, "mfaCode": code,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginResult is the reply of every login step. When RequiresMFA is set,
// TempToken must be passed to LoginMFA or LoginBackupCode.
type LoginResult struct {
	RequiresMFA bool   `json:"requiresMFA"`
	TempToken   string `json:"tempToken"`
	Message     string `json:"message"`
	User        *User  `json:"user"`
}

// Login checks the password. mfaCode may be empty.
func (a *API) Login(ctx context.Context, email, password, mfaCode string) (*LoginResult, error) {
	req := map[string]string{"email": email, "password": password}
	if mfaCode != "" {
		req["mfaCode"] = mfaCode
	}
	var out LoginResult
	if err := a.do(ctx, http.MethodPost, "/api/auth/login", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginMFA finishes a login with a TOTP code.
func (a *API) LoginMFA(ctx context.Context, token, code string) (*LoginResult, error) {
	var out LoginResult
	err := a.do(ctx, http.MethodPost, "/api/auth/login/mfa", map[string]string{
		"token": token, "mfaCode": code,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// LoginBackupCode finishes a login with a single-use backup code.
func (a *API) LoginBackupCode(ctx context.Context, token, code string) (*LoginResult, error) {
	var out LoginResult
	err := a.do(ctx, http.MethodPost, "/api/auth/login/backup-code", map[string]string{
		"token": token, "code": code,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// Me returns the signed-in user.
func (a *API) Me(ctx context.Context) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	if err := a.doAuthed(ctx, http.MethodGet, "/api/auth/me", nil, &out); err != nil {
		return nil, err
	}
	return &out.User, nil
}

// SetEncryptionSalt records the account salt. It fails with a 409
// *APIError when one is already set.
func (a *API) SetEncryptionSalt(ctx context.Context, salt string) (*User, error) {
	var out struct {
		User User `json:"user"`
	}
	err := a.doAuthed(ctx, http.MethodPut, "/api/auth/encryption-salt", map[string]string{"salt": salt}, &out)
	if err != nil {
		return nil, err
	}
	return &out.User, nil
}

// Logout ends the session on the server and forgets the cookies locally,
// even when the server cannot be reached.
func (a *API) Logout(ctx context.Context) error {
	err := a.do(ctx, http.MethodPost, "/api/auth/logout", nil, nil)
	if cerr := a.clearCredentials(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// ListNotes returns the stored notes matching f.
func (a *API) ListNotes(ctx context.Context, f notes.Filter) ([]*notes.Note, error) {
	q := url.Values{}
	if f.Favorite {
		q.Set("favorite", "true")
	}
	if f.Deleted {
		q.Set("deleted", "true")
	}
	path := "/api/notes"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []*notes.Note
	if err := a.doAuthed(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetNote returns one stored note.
func (a *API) GetNote(ctx context.Context, id string) (*notes.Note, error) {
	var out notes.Note
	if err := a.doAuthed(ctx, http.MethodGet, "/api/notes/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// NoteWrite is the body of a note create or update. Nil fields are left
// out of an update.
type NoteWrite struct {
	Title      *string         `json:"title,omitempty"`
	Content    *vault.Envelope `json:"content,omitempty"`
	IsFavorite *bool           `json:"isFavorite,omitempty"`
	Tags       *[]string       `json:"tags,omitempty"`
}

// CreateNote stores a new note.
func (a *API) CreateNote(ctx context.Context, w NoteWrite) (*notes.Note, error) {
	var out notes.Note
	if err := a.doAuthed(ctx, http.MethodPost, "/api/notes", w, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateNote applies a partial update.
func (a *API) UpdateNote(ctx context.Context, id string, w NoteWrite) (*notes.Note, error) {
	var out notes.Note
	if err := a.doAuthed(ctx, http.MethodPatch, "/api/notes/"+url.PathEscape(id), w, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrashNote moves a note to the trash.
func (a *API) TrashNote(ctx context.Context, id string) error {
	return a.doAuthed(ctx, http.MethodDelete, "/api/notes/"+url.PathEscape(id), nil, nil)
}

// RestoreNote takes a note out of the trash.
func (a *API) RestoreNote(ctx context.Context, id string) (*notes.Note, error) {
	var out struct {
		Note notes.Note `json:"note"`
	}
	if err := a.doAuthed(ctx, http.MethodPost, "/api/notes/"+url.PathEscape(id)+"/restore", nil, &out); err != nil {
		return nil, err
	}
	return &out.Note, nil
}

// PurgeNote permanently deletes a trashed note.
func (a *API) PurgeNote(ctx context.Context, id string) error {
	return a.doAuthed(ctx, http.MethodDelete, "/api/notes/"+url.PathEscape(id)+"/hard", nil, nil)
}
