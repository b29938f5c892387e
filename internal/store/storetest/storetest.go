// Package storetest is a conformance suite run against every credential
// and note store implementation.
package storetest

import (
	"context"
	"crypto/sha256"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/notevault/internal/account"
	"github.com/MrEthical07/notevault/internal/notes"
	"github.com/MrEthical07/notevault/lockout"
	"github.com/MrEthical07/notevault/vault"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Store is what a full backend implements.
type Store interface {
	account.Store
	notes.Store
}

var policy = lockout.Policy{Threshold: 3, Duration: 30 * time.Minute}

func createUser(t *testing.T, s Store, email string) *account.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), account.CreateUserInput{
		Name:         "Test User",
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=65536,t=3,p=2$c2FsdA$aGFzaA",
		MFASecret:    "JBSWY3DPEHPK3PXP",
	})
	require.NoError(t, err)
	return u
}

func uniqueEmail() string {
	return uuid.NewString() + "@Example.com"
}

// RunUserStore exercises account.Store semantics.
func RunUserStore(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	t.Run("CreateAndLookup", func(t *testing.T) {
		s := newStore(t)
		email := uniqueEmail()
		u := createUser(t, s, "  "+email+" ")
		assert.Equal(t, account.NormalizeEmail(email), u.Email)
		assert.False(t, u.MFA.Enabled)
		assert.Equal(t, "JBSWY3DPEHPK3PXP", u.MFA.Secret)

		byEmail, err := s.GetUserByEmail(ctx, email)
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)

		byID, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, byID.Email)
	})

	t.Run("DuplicateEmail", func(t *testing.T) {
		s := newStore(t)
		email := uniqueEmail()
		createUser(t, s, email)
		_, err := s.CreateUser(ctx, account.CreateUserInput{Name: "x", Email: email, PasswordHash: "h"})
		assert.ErrorIs(t, err, account.ErrEmailTaken)
	})

	t.Run("NotFound", func(t *testing.T) {
		s := newStore(t)
		_, err := s.GetUserByEmail(ctx, uniqueEmail())
		assert.ErrorIs(t, err, account.ErrUserNotFound)
		_, err = s.GetUserByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, account.ErrUserNotFound)
		_, err = s.RecordLoginAttempt(ctx, uuid.NewString(), false, policy, time.Now())
		assert.ErrorIs(t, err, account.ErrUserNotFound)
	})

	t.Run("LockoutMatchesPolicy", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s, uniqueEmail())
		now := time.Now().UTC().Truncate(time.Microsecond)

		var want lockout.State
		for i := 0; i < policy.Threshold; i++ {
			got, err := s.RecordLoginAttempt(ctx, u.ID, false, policy, now)
			require.NoError(t, err)
			want = policy.Next(want, false, now)
			assertState(t, want, got)
		}
		assert.True(t, policy.Locked(want, now))

		later := now.Add(policy.Duration + time.Second)
		got, err := s.RecordLoginAttempt(ctx, u.ID, false, policy, later)
		require.NoError(t, err)
		want = policy.Next(want, false, later)
		assertState(t, want, got)
		assert.Equal(t, 1, got.Attempts)
		assert.False(t, policy.Locked(got, later))

		got, err = s.RecordLoginAttempt(ctx, u.ID, true, policy, later)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Attempts)
		assert.Nil(t, got.LockUntil)

		stored, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, stored.LoginAttempts)
		assert.Nil(t, stored.LockUntil)
	})

	t.Run("SuccessKeepsActiveLock", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s, uniqueEmail())
		now := time.Now().UTC().Truncate(time.Microsecond)

		// A correct password judged against a snapshot taken before the
		// lock must not reset the counter once the lock is stored.
		var locked lockout.State
		for i := 0; i < policy.Threshold; i++ {
			var err error
			locked, err = s.RecordLoginAttempt(ctx, u.ID, false, policy, now)
			require.NoError(t, err)
		}
		require.True(t, policy.Locked(locked, now))

		got, err := s.RecordLoginAttempt(ctx, u.ID, true, policy, now.Add(time.Second))
		require.NoError(t, err)
		assertState(t, locked, got)
		assert.True(t, policy.Locked(got, now.Add(time.Second)))

		stored, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, policy.Threshold, stored.LoginAttempts)
		require.NotNil(t, stored.LockUntil)
	})

	t.Run("ConcurrentFailuresAreNotLost", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s, uniqueEmail())
		wide := lockout.Policy{Threshold: 1000, Duration: time.Minute}
		now := time.Now()

		const workers = 50
		var wg sync.WaitGroup
		wg.Add(workers)
		for i := 0; i < workers; i++ {
			go func() {
				defer wg.Done()
				_, err := s.RecordLoginAttempt(ctx, u.ID, false, wide, now)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		stored, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, workers, stored.LoginAttempts)
	})

	t.Run("EnableMFAOnce", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s, uniqueEmail())
		codes := []account.BackupCode{{Hash: sha256.Sum256([]byte("a"))}, {Hash: sha256.Sum256([]byte("b"))}}

		ok, err := s.EnableMFA(ctx, u.ID, codes)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.EnableMFA(ctx, u.ID, codes)
		require.NoError(t, err)
		assert.False(t, ok)

		stored, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.True(t, stored.MFA.Enabled)
		assert.Len(t, stored.MFA.BackupCodes, 2)
	})

	t.Run("BackupCodeSingleUse", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s, uniqueEmail())
		hash := sha256.Sum256([]byte("code"))
		_, err := s.EnableMFA(ctx, u.ID, []account.BackupCode{{Hash: hash}})
		require.NoError(t, err)

		ok, err := s.ConsumeBackupCode(ctx, u.ID, hash)
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.ConsumeBackupCode(ctx, u.ID, hash)
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = s.ConsumeBackupCode(ctx, u.ID, sha256.Sum256([]byte("other")))
		require.NoError(t, err)
		assert.False(t, ok)

		stored, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, stored.RemainingBackupCodes())
	})

	t.Run("EncryptionSaltSetOnce", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s, uniqueEmail())

		ok, err := s.SetEncryptionSalt(ctx, u.ID, "c2FsdHNhbHRzYWx0c2FsdA==")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.SetEncryptionSalt(ctx, u.ID, "b3RoZXJvdGhlcm90aGVyMQ==")
		require.NoError(t, err)
		assert.False(t, ok)

		stored, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "c2FsdHNhbHRzYWx0c2FsdA==", stored.EncryptionSalt)

		_, err = s.SetEncryptionSalt(ctx, uuid.NewString(), "c2FsdHNhbHRzYWx0c2FsdA==")
		assert.ErrorIs(t, err, account.ErrUserNotFound)
	})

	t.Run("PasswordAndLastLogin", func(t *testing.T) {
		s := newStore(t)
		u := createUser(t, s, uniqueEmail())
		at := time.Now().UTC().Truncate(time.Microsecond)

		require.NoError(t, s.UpdatePasswordHash(ctx, u.ID, "new-hash"))
		require.NoError(t, s.TouchLastLogin(ctx, u.ID, at))

		stored, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, "new-hash", stored.PasswordHash)
		require.NotNil(t, stored.LastLogin)
		assert.True(t, at.Equal(*stored.LastLogin))

		assert.ErrorIs(t, s.UpdatePasswordHash(ctx, uuid.NewString(), "x"), account.ErrUserNotFound)
	})
}

// RunNoteStore exercises notes.Store semantics through notes.Service.
func RunNoteStore(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()
	env := vault.Envelope{Ciphertext: "Y2lwaGVy", IV: "aXZpdml2aXZpdml2", Salt: "c2FsdHNhbHRzYWx0c2FsdA=="}

	newService := func(t *testing.T) (*notes.Service, Store, string) {
		s := newStore(t)
		u := createUser(t, s, uniqueEmail())
		clock := time.Now().UTC().Truncate(time.Millisecond)
		svc := notes.NewService(s, func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		})
		return svc, s, u.ID
	}

	t.Run("CreateListNewestFirst", func(t *testing.T) {
		svc, _, userID := newService(t)
		first, err := svc.Create(ctx, userID, notes.CreateInput{Content: env, Tags: []string{" Work ", "work", "Ideas"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"work", "ideas"}, first.Tags)
		second, err := svc.Create(ctx, userID, notes.CreateInput{Content: env, IsFavorite: true})
		require.NoError(t, err)

		list, err := svc.List(ctx, userID, notes.Filter{})
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, second.ID, list[0].ID)
		assert.Equal(t, first.ID, list[1].ID)

		favs, err := svc.List(ctx, userID, notes.Filter{Favorite: true})
		require.NoError(t, err)
		require.Len(t, favs, 1)
		assert.Equal(t, second.ID, favs[0].ID)
	})

	t.Run("OwnershipIsolation", func(t *testing.T) {
		svc, s, userID := newService(t)
		other := createUser(t, s, uniqueEmail())
		n, err := svc.Create(ctx, userID, notes.CreateInput{Content: env})
		require.NoError(t, err)

		_, err = svc.Get(ctx, other.ID, n.ID)
		assert.ErrorIs(t, err, notes.ErrNotFound)
		_, err = svc.Trash(ctx, other.ID, n.ID)
		assert.ErrorIs(t, err, notes.ErrNotFound)
		list, err := svc.List(ctx, other.ID, notes.Filter{})
		require.NoError(t, err)
		assert.Empty(t, list)
	})

	t.Run("UpdatePartial", func(t *testing.T) {
		svc, _, userID := newService(t)
		n, err := svc.Create(ctx, userID, notes.CreateInput{Content: env, Tags: []string{"a"}})
		require.NoError(t, err)

		fav := true
		updated, err := svc.Update(ctx, userID, n.ID, notes.UpdateInput{IsFavorite: &fav})
		require.NoError(t, err)
		assert.True(t, updated.IsFavorite)
		assert.Equal(t, []string{"a"}, updated.Tags)
		assert.Equal(t, env, updated.Content)
		assert.True(t, updated.UpdatedAt.After(n.UpdatedAt))
	})

	t.Run("TrashRestorePurge", func(t *testing.T) {
		svc, _, userID := newService(t)
		n, err := svc.Create(ctx, userID, notes.CreateInput{Content: env})
		require.NoError(t, err)

		_, err = svc.Restore(ctx, userID, n.ID)
		assert.ErrorIs(t, err, notes.ErrNotFound, "live note cannot be restored")
		assert.ErrorIs(t, svc.Purge(ctx, userID, n.ID), notes.ErrNotFound, "live note cannot be purged")

		trashed, err := svc.Trash(ctx, userID, n.ID)
		require.NoError(t, err)
		assert.True(t, trashed.IsDeleted)
		require.NotNil(t, trashed.DeletedAt)

		live, err := svc.List(ctx, userID, notes.Filter{})
		require.NoError(t, err)
		assert.Empty(t, live)
		trash, err := svc.List(ctx, userID, notes.Filter{Deleted: true})
		require.NoError(t, err)
		require.Len(t, trash, 1)

		restored, err := svc.Restore(ctx, userID, n.ID)
		require.NoError(t, err)
		assert.False(t, restored.IsDeleted)
		assert.Nil(t, restored.DeletedAt)

		_, err = svc.Trash(ctx, userID, n.ID)
		require.NoError(t, err)
		require.NoError(t, svc.Purge(ctx, userID, n.ID))
		_, err = svc.Get(ctx, userID, n.ID)
		assert.ErrorIs(t, err, notes.ErrNotFound)
	})

	t.Run("RejectsInvalid", func(t *testing.T) {
		svc, _, userID := newService(t)
		_, err := svc.Create(ctx, userID, notes.CreateInput{Content: vault.Envelope{Ciphertext: "x", IV: "y"}})
		assert.ErrorIs(t, err, notes.ErrInvalidNote)

		long := make([]rune, notes.MaxTitleLength+1)
		for i := range long {
			long[i] = 'a'
		}
		_, err = svc.Create(ctx, userID, notes.CreateInput{Title: string(long), Content: env})
		assert.ErrorIs(t, err, notes.ErrInvalidNote)

		_, err = svc.Get(ctx, userID, "not-a-uuid")
		assert.ErrorIs(t, err, notes.ErrNotFound)
	})
}

func assertState(t *testing.T, want, got lockout.State) {
	t.Helper()
	assert.Equal(t, want.Attempts, got.Attempts)
	if want.LockUntil == nil {
		assert.Nil(t, got.LockUntil)
		return
	}
	require.NotNil(t, got.LockUntil)
	assert.WithinDuration(t, *want.LockUntil, *got.LockUntil, time.Millisecond)
}
