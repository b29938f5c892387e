package client

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	notevault "github.com/MrEthical07/notevault"
	"github.com/MrEthical07/notevault/internal/notes"
	"github.com/MrEthical07/notevault/internal/server"
	"github.com/MrEthical07/notevault/internal/store/memory"
	"github.com/MrEthical07/notevault/vault"
	"github.com/alicebob/miniredis/v2"
	"github.com/pquerna/otp/totp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPassword   = "Str0ng!Passw0rd"
	testPassphrase = "correct horse battery staple"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type backend struct {
	url   string
	clock *fakeClock
}

func newBackend(t *testing.T) *backend {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = rdb.Close() })

	clk := &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
	store := memory.New().WithClock(clk.Now)

	cfg := notevault.DefaultConfig()
	cfg.JWT.AccessSecret = []byte("access-secret-access-secret-0001")
	cfg.JWT.RefreshSecret = []byte("refresh-secret-refresh-secret-01")
	cfg.Password.Memory = 8 * 1024
	cfg.Password.Time = 1
	cfg.Password.Parallelism = 1

	engine, err := notevault.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserStore(store).
		WithClock(clk.Now).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	srv, err := server.New(server.Options{
		Engine: engine,
		Notes:  notes.NewService(store, clk.Now),
		Now:    clk.Now,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &backend{url: ts.URL, clock: clk}
}

func (b *backend) code(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCode(secret, b.clock.Now())
	require.NoError(t, err)
	return code
}

func (b *backend) session(t *testing.T) *Session {
	t.Helper()
	api, err := NewAPI(b.url, nil)
	require.NoError(t, err)
	return NewSession(api)
}

// enrolled returns an unlocked session for a new account and its TOTP
// secret.
func (b *backend) enrolled(t *testing.T, email string) (*Session, string, []string) {
	t.Helper()
	ctx := context.Background()
	s := b.session(t)

	res, err := s.Signup(ctx, "Ada", email, testPassword)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingMFA, s.State())

	codes, err := s.VerifyMFA(ctx, b.code(t, res.Secret))
	require.NoError(t, err)
	require.Len(t, codes, 10)
	assert.Equal(t, StateLocked, s.State())
	b.clock.Advance(30 * time.Second)

	require.NoError(t, s.Unlock(ctx, []byte(testPassphrase)))
	assert.Equal(t, StateUnlocked, s.State())
	return s, res.Secret, codes
}

func TestSessionEnrollUnlockAndNotes(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	s, _, _ := b.enrolled(t, "flow@example.com")

	salt := s.User().EncryptionSalt
	require.NotEmpty(t, salt, "first unlock must persist the salt")

	created, err := s.CreateNote(ctx, NoteInput{Title: "secret plans", Body: "world domination", Tags: []string{"work"}})
	require.NoError(t, err)
	assert.Equal(t, "secret plans", created.Title)
	assert.False(t, created.Unreadable)

	list, err := s.ListNotes(ctx, notes.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "world domination", list[0].Body)

	body := "take over the world"
	fav := true
	updated, err := s.UpdateNote(ctx, created.ID, NoteUpdate{Body: &body, IsFavorite: &fav})
	require.NoError(t, err)
	assert.Equal(t, "secret plans", updated.Title)
	assert.Equal(t, body, updated.Body)
	assert.True(t, updated.IsFavorite)

	require.NoError(t, s.Lock())
	assert.Equal(t, StateLocked, s.State())
	_, err = s.ListNotes(ctx, notes.Filter{})
	assert.ErrorIs(t, err, ErrSessionLocked)
	_, err = s.CreateNote(ctx, NoteInput{Body: "x"})
	assert.ErrorIs(t, err, ErrSessionLocked)

	require.NoError(t, s.Unlock(ctx, []byte("a different passphrase")))
	assert.Equal(t, salt, s.User().EncryptionSalt, "later unlocks reuse the stored salt")
	list, err = s.ListNotes(ctx, notes.Filter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Unreadable)
	assert.ErrorIs(t, list[0].DecryptErr, vault.ErrDecryptionFailed)

	require.NoError(t, s.Lock())
	require.NoError(t, s.Unlock(ctx, []byte(testPassphrase)))
	require.NoError(t, s.TrashNote(ctx, created.ID))
	trashed, err := s.ListNotes(ctx, notes.Filter{Deleted: true})
	require.NoError(t, err)
	require.Len(t, trashed, 1)
	restored, err := s.RestoreNote(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, restored.IsDeleted)
}

func TestSessionLoginWithMFA(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	first, secret, codes := b.enrolled(t, "login@example.com")
	require.NoError(t, first.Logout(ctx))
	assert.Equal(t, StateLoggedOut, first.State())

	s := b.session(t)
	state, err := s.Login(ctx, "login@example.com", testPassword)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingMFA, state)

	_, err = s.VerifyMFA(ctx, b.code(t, secret))
	require.NoError(t, err)
	assert.Equal(t, StateLocked, s.State())
	assert.NotEmpty(t, s.User().EncryptionSalt)

	other := b.session(t)
	_, err = other.Login(ctx, "login@example.com", testPassword)
	require.NoError(t, err)
	require.NoError(t, other.VerifyBackupCode(ctx, codes[0]))
	assert.Equal(t, StateLocked, other.State())
}

func TestSessionRejectsInvalidTransitions(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	s := b.session(t)

	assert.ErrorIs(t, s.Unlock(ctx, []byte(testPassphrase)), ErrInvalidTransition)
	assert.ErrorIs(t, s.Lock(), ErrInvalidTransition)
	_, err := s.VerifyMFA(ctx, "123456")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	res, err := s.Signup(ctx, "Ada", "transitions@example.com", testPassword)
	require.NoError(t, err)
	_, err = s.Login(ctx, "transitions@example.com", testPassword)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.ErrorIs(t, s.VerifyBackupCode(ctx, "ABCDE-FGHJK"), ErrInvalidTransition)

	_, err = s.VerifyMFA(ctx, b.code(t, res.Secret))
	require.NoError(t, err)
	assert.ErrorIs(t, s.Unlock(ctx, []byte("short")), vault.ErrWeakPassphrase)
	assert.Equal(t, StateLocked, s.State())
}

func TestSessionRefreshesAndExpires(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()
	s, _, _ := b.enrolled(t, "expiry@example.com")

	b.clock.Advance(16 * time.Minute)
	_, err := s.ListNotes(ctx, notes.Filter{})
	require.NoError(t, err, "an expired access token is refreshed transparently")

	b.clock.Advance(8 * 24 * time.Hour)
	_, err = s.ListNotes(ctx, notes.Filter{})
	require.ErrorIs(t, err, ErrSessionExpired)
	assert.Equal(t, StateLoggedOut, s.State())
	assert.Nil(t, s.User())
}

func TestSessionResume(t *testing.T) {
	b := newBackend(t)
	ctx := context.Background()

	store := &MemoryStore{}
	api, err := NewAPI(b.url, store)
	require.NoError(t, err)
	s := NewSession(api)
	res, err := s.Signup(ctx, "Ada", "resume@example.com", testPassword)
	require.NoError(t, err)
	_, err = s.VerifyMFA(ctx, b.code(t, res.Secret))
	require.NoError(t, err)

	api2, err := NewAPI(b.url, store)
	require.NoError(t, err)
	resumed := NewSession(api2)
	require.NoError(t, resumed.Resume(ctx))
	assert.Equal(t, StateLocked, resumed.State())
	assert.Equal(t, "resume@example.com", resumed.User().Email)

	fresh, err := NewAPI(b.url, nil)
	require.NoError(t, err)
	assert.ErrorIs(t, NewSession(fresh).Resume(ctx), ErrSessionExpired)
}
