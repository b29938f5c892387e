// Package memory is an in-process credential and note store for tests,
// local development and NOTEVAULT_STORE=memory deployments.
//
// Every account has its own mutex, so the lockout read-modify-write and
// the MFA, backup-code and salt updates are atomic per account without
// serializing unrelated users.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/MrEthical07/notevault/internal/account"
	"github.com/MrEthical07/notevault/internal/notes"
	"github.com/MrEthical07/notevault/lockout"
	"github.com/google/uuid"
)

type userEntry struct {
	mu   sync.Mutex
	user *account.User
}

// Store implements account.Store and notes.Store in memory.
type Store struct {
	mu      sync.RWMutex
	users   map[string]*userEntry
	byEmail map[string]string

	notesMu sync.RWMutex
	notes   map[string]*notes.Note

	now func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:   make(map[string]*userEntry),
		byEmail: make(map[string]string),
		notes:   make(map[string]*notes.Note),
		now:     time.Now,
	}
}

// WithClock overrides the timestamps written on create and update.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) entry(userID string) (*userEntry, error) {
	s.mu.RLock()
	e, ok := s.users[userID]
	s.mu.RUnlock()
	if !ok {
		return nil, account.ErrUserNotFound
	}
	return e, nil
}

// update runs fn on the stored user under its account lock.
func (s *Store) update(userID string, fn func(u *account.User) error) error {
	e, err := s.entry(userID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return fn(e.user)
}

/*
====================================
CREDENTIALS
====================================
*/

func (s *Store) CreateUser(_ context.Context, in account.CreateUserInput) (*account.User, error) {
	email := account.NormalizeEmail(in.Email)
	now := s.now().UTC()
	u := &account.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        email,
		PasswordHash: in.PasswordHash,
		MFA:          account.MFA{Secret: in.MFASecret},
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[email]; taken {
		return nil, account.ErrEmailTaken
	}
	s.users[u.ID] = &userEntry{user: u}
	s.byEmail[email] = u.ID
	return u.Clone(), nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*account.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[account.NormalizeEmail(email)]
	s.mu.RUnlock()
	if !ok {
		return nil, account.ErrUserNotFound
	}
	return s.GetUserByID(ctx, id)
}

func (s *Store) GetUserByID(_ context.Context, userID string) (*account.User, error) {
	var out *account.User
	err := s.update(userID, func(u *account.User) error {
		out = u.Clone()
		return nil
	})
	return out, err
}

func (s *Store) RecordLoginAttempt(_ context.Context, userID string, success bool, policy lockout.Policy, now time.Time) (lockout.State, error) {
	var next lockout.State
	err := s.update(userID, func(u *account.User) error {
		next = policy.Next(u.LockState(), success, now)
		u.LoginAttempts = next.Attempts
		u.LockUntil = next.LockUntil
		u.UpdatedAt = s.now().UTC()
		return nil
	})
	return next, err
}

func (s *Store) UpdatePasswordHash(_ context.Context, userID, hash string) error {
	return s.update(userID, func(u *account.User) error {
		u.PasswordHash = hash
		u.UpdatedAt = s.now().UTC()
		return nil
	})
}

func (s *Store) TouchLastLogin(_ context.Context, userID string, at time.Time) error {
	return s.update(userID, func(u *account.User) error {
		t := at.UTC()
		u.LastLogin = &t
		return nil
	})
}

func (s *Store) EnableMFA(_ context.Context, userID string, codes []account.BackupCode) (bool, error) {
	enabled := false
	err := s.update(userID, func(u *account.User) error {
		if u.MFA.Enabled {
			return nil
		}
		u.MFA.Enabled = true
		u.MFA.BackupCodes = append([]account.BackupCode(nil), codes...)
		u.UpdatedAt = s.now().UTC()
		enabled = true
		return nil
	})
	return enabled, err
}

func (s *Store) ConsumeBackupCode(_ context.Context, userID string, hash [32]byte) (bool, error) {
	consumed := false
	err := s.update(userID, func(u *account.User) error {
		for i := range u.MFA.BackupCodes {
			c := &u.MFA.BackupCodes[i]
			if !c.Used && c.Hash == hash {
				c.Used = true
				consumed = true
				return nil
			}
		}
		return nil
	})
	return consumed, err
}

func (s *Store) SetEncryptionSalt(_ context.Context, userID, salt string) (bool, error) {
	set := false
	err := s.update(userID, func(u *account.User) error {
		if u.EncryptionSalt != "" {
			return nil
		}
		u.EncryptionSalt = salt
		u.UpdatedAt = s.now().UTC()
		set = true
		return nil
	})
	return set, err
}

/*
====================================
NOTES
====================================
*/

func (s *Store) CreateNote(_ context.Context, n *notes.Note) error {
	s.notesMu.Lock()
	defer s.notesMu.Unlock()
	s.notes[n.ID] = n.Clone()
	return nil
}

func (s *Store) ListNotes(_ context.Context, userID string, f notes.Filter) ([]*notes.Note, error) {
	s.notesMu.RLock()
	out := make([]*notes.Note, 0)
	for _, n := range s.notes {
		if n.UserID == userID && f.Match(n) {
			out = append(out, n.Clone())
		}
	}
	s.notesMu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetNote(_ context.Context, userID, noteID string) (*notes.Note, error) {
	s.notesMu.RLock()
	defer s.notesMu.RUnlock()
	n, ok := s.notes[noteID]
	if !ok || n.UserID != userID {
		return nil, notes.ErrNotFound
	}
	return n.Clone(), nil
}

func (s *Store) UpdateNote(_ context.Context, userID, noteID string, in notes.UpdateInput, now time.Time) (*notes.Note, error) {
	return s.mutateNote(userID, noteID, func(n *notes.Note) bool {
		if in.Title != nil {
			n.Title = *in.Title
		}
		if in.Content != nil {
			n.Content = *in.Content
		}
		if in.IsFavorite != nil {
			n.IsFavorite = *in.IsFavorite
		}
		if in.SetTags {
			n.Tags = append([]string(nil), in.Tags...)
		}
		n.UpdatedAt = now
		return true
	})
}

func (s *Store) TrashNote(_ context.Context, userID, noteID string, now time.Time) (*notes.Note, error) {
	return s.mutateNote(userID, noteID, func(n *notes.Note) bool {
		t := now
		n.IsDeleted = true
		n.DeletedAt = &t
		n.UpdatedAt = now
		return true
	})
}

func (s *Store) RestoreNote(_ context.Context, userID, noteID string, now time.Time) (*notes.Note, error) {
	return s.mutateNote(userID, noteID, func(n *notes.Note) bool {
		if !n.IsDeleted {
			return false
		}
		n.IsDeleted = false
		n.DeletedAt = nil
		n.UpdatedAt = now
		return true
	})
}

func (s *Store) PurgeNote(_ context.Context, userID, noteID string) error {
	s.notesMu.Lock()
	defer s.notesMu.Unlock()
	n, ok := s.notes[noteID]
	if !ok || n.UserID != userID || !n.IsDeleted {
		return notes.ErrNotFound
	}
	delete(s.notes, noteID)
	return nil
}

// mutateNote applies fn under the notes lock. fn returning false means the
// note is not in a state the caller accepts.
func (s *Store) mutateNote(userID, noteID string, fn func(n *notes.Note) bool) (*notes.Note, error) {
	s.notesMu.Lock()
	defer s.notesMu.Unlock()
	n, ok := s.notes[noteID]
	if !ok || n.UserID != userID {
		return nil, notes.ErrNotFound
	}
	working := n.Clone()
	if !fn(working) {
		return nil, notes.ErrNotFound
	}
	s.notes[noteID] = working
	return working.Clone(), nil
}
