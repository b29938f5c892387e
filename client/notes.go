package client

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/notevault/internal/notes"
	"github.com/MrEthical07/notevault/vault"
)

// Note is a decrypted note.
type Note struct {
	ID         string
	Title      string
	Body       string
	Tags       []string
	IsFavorite bool
	IsDeleted  bool
	DeletedAt  *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time

	// Unreadable is set when the content could not be decrypted with this
	// session's key. Title and Body are empty and DecryptErr holds the
	// vault.ErrDecryptionFailed error.
	Unreadable bool
	DecryptErr error
}

// notePayload is the plaintext sealed into the note envelope. The title is
// encrypted with the body; the server-side title stays empty.
type notePayload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// NoteInput is the plaintext for a new note.
type NoteInput struct {
	Title      string
	Body       string
	Tags       []string
	IsFavorite bool
}

// NoteUpdate changes a note. Nil fields are kept.
type NoteUpdate struct {
	Title      *string
	Body       *string
	Tags       *[]string
	IsFavorite *bool
}

// ListNotes fetches and decrypts the notes matching f. Notes that cannot
// be decrypted are returned with Unreadable set rather than failing the
// whole list.
func (s *Session) ListNotes(ctx context.Context, f notes.Filter) ([]Note, error) {
	if err := s.requireUnlocked(); err != nil {
		return nil, err
	}
	stored, err := s.api.ListNotes(ctx, f)
	if err != nil {
		return nil, err
	}

	out := make([]Note, 0, len(stored))
	for _, n := range stored {
		note, err := s.open(n)
		if err != nil {
			return nil, err
		}
		out = append(out, note)
	}
	return out, nil
}

// GetNote fetches and decrypts one note.
func (s *Session) GetNote(ctx context.Context, id string) (Note, error) {
	if err := s.requireUnlocked(); err != nil {
		return Note{}, err
	}
	n, err := s.api.GetNote(ctx, id)
	if err != nil {
		return Note{}, err
	}
	return s.open(n)
}

// CreateNote encrypts and stores a note.
func (s *Session) CreateNote(ctx context.Context, in NoteInput) (Note, error) {
	var env vault.Envelope
	err := s.withKey(func(k *vault.Key) error {
		var err error
		env, err = vault.SealJSON(k, notePayload{Title: in.Title, Body: in.Body})
		return err
	})
	if err != nil {
		return Note{}, err
	}

	tags := in.Tags
	n, err := s.api.CreateNote(ctx, NoteWrite{
		Content:    &env,
		IsFavorite: &in.IsFavorite,
		Tags:       &tags,
	})
	if err != nil {
		return Note{}, err
	}
	return s.open(n)
}

// UpdateNote applies u. Changing the title or body re-encrypts the whole
// payload under a fresh IV.
func (s *Session) UpdateNote(ctx context.Context, id string, u NoteUpdate) (Note, error) {
	w := NoteWrite{IsFavorite: u.IsFavorite, Tags: u.Tags}

	if u.Title != nil || u.Body != nil {
		current, err := s.GetNote(ctx, id)
		if err != nil {
			return Note{}, err
		}
		if current.Unreadable {
			return Note{}, current.DecryptErr
		}
		payload := notePayload{Title: current.Title, Body: current.Body}
		if u.Title != nil {
			payload.Title = *u.Title
		}
		if u.Body != nil {
			payload.Body = *u.Body
		}

		var env vault.Envelope
		err = s.withKey(func(k *vault.Key) error {
			var err error
			env, err = vault.SealJSON(k, payload)
			return err
		})
		if err != nil {
			return Note{}, err
		}
		w.Content = &env
	}

	n, err := s.api.UpdateNote(ctx, id, w)
	if err != nil {
		return Note{}, err
	}
	return s.open(n)
}

// TrashNote moves a note to the trash.
func (s *Session) TrashNote(ctx context.Context, id string) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	return s.api.TrashNote(ctx, id)
}

// RestoreNote takes a note out of the trash.
func (s *Session) RestoreNote(ctx context.Context, id string) (Note, error) {
	if err := s.requireUnlocked(); err != nil {
		return Note{}, err
	}
	n, err := s.api.RestoreNote(ctx, id)
	if err != nil {
		return Note{}, err
	}
	return s.open(n)
}

// PurgeNote permanently deletes a trashed note.
func (s *Session) PurgeNote(ctx context.Context, id string) error {
	if err := s.requireUnlocked(); err != nil {
		return err
	}
	return s.api.PurgeNote(ctx, id)
}

func (s *Session) requireUnlocked() error {
	return s.withKey(func(*vault.Key) error { return nil })
}

// open decrypts n. Only a lost key is an error; anything the key cannot
// open marks the note unreadable.
func (s *Session) open(n *notes.Note) (Note, error) {
	out := Note{
		ID:         n.ID,
		Title:      n.Title,
		Tags:       n.Tags,
		IsFavorite: n.IsFavorite,
		IsDeleted:  n.IsDeleted,
		DeletedAt:  n.DeletedAt,
		CreatedAt:  n.CreatedAt,
		UpdatedAt:  n.UpdatedAt,
	}

	var payload notePayload
	err := s.withKey(func(k *vault.Key) error {
		return vault.OpenJSON(k, n.Content, &payload)
	})
	switch {
	case err == nil:
		if payload.Title != "" {
			out.Title = payload.Title
		}
		out.Body = payload.Body
	case errors.Is(err, vault.ErrDecryptionFailed):
		out.Unreadable, out.DecryptErr = true, err
	default:
		return Note{}, err
	}
	return out, nil
}
