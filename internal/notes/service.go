package notes

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MrEthical07/notevault/vault"
	"github.com/google/uuid"
)

// Service applies note rules on top of a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService returns a Service over store. A nil now defaults to time.Now.
func NewService(store Store, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, now: now}
}

// List returns the user's notes matching f, newest first.
func (s *Service) List(ctx context.Context, userID string, f Filter) ([]*Note, error) {
	return s.store.ListNotes(ctx, userID, f)
}

// Get returns one note owned by userID.
func (s *Service) Get(ctx context.Context, userID, noteID string) (*Note, error) {
	if !validID(noteID) {
		return nil, ErrNotFound
	}
	return s.store.GetNote(ctx, userID, noteID)
}

// Create stores a new note for userID.
func (s *Service) Create(ctx context.Context, userID string, in CreateInput) (*Note, error) {
	title := strings.TrimSpace(in.Title)
	if err := checkTitle(title); err != nil {
		return nil, err
	}
	if err := CheckEnvelope(in.Content); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	n := &Note{
		ID:         uuid.NewString(),
		UserID:     userID,
		Title:      title,
		Content:    in.Content,
		IsFavorite: in.IsFavorite,
		Tags:       NormalizeTags(in.Tags),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateNote(ctx, n); err != nil {
		return nil, fmt.Errorf("create note: %w", err)
	}
	return n, nil
}

// Update applies a partial update. An update that changes nothing returns
// the note unchanged.
func (s *Service) Update(ctx context.Context, userID, noteID string, in UpdateInput) (*Note, error) {
	if !validID(noteID) {
		return nil, ErrNotFound
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if err := checkTitle(title); err != nil {
			return nil, err
		}
		in.Title = &title
	}
	if in.Content != nil {
		if err := CheckEnvelope(*in.Content); err != nil {
			return nil, err
		}
	}
	if in.SetTags {
		in.Tags = NormalizeTags(in.Tags)
	}
	if in.Empty() {
		return s.store.GetNote(ctx, userID, noteID)
	}
	return s.store.UpdateNote(ctx, userID, noteID, in, s.now().UTC())
}

// Trash soft-deletes a note.
func (s *Service) Trash(ctx context.Context, userID, noteID string) (*Note, error) {
	if !validID(noteID) {
		return nil, ErrNotFound
	}
	return s.store.TrashNote(ctx, userID, noteID, s.now().UTC())
}

// Restore takes a note out of the trash.
func (s *Service) Restore(ctx context.Context, userID, noteID string) (*Note, error) {
	if !validID(noteID) {
		return nil, ErrNotFound
	}
	return s.store.RestoreNote(ctx, userID, noteID, s.now().UTC())
}

// Purge permanently deletes a trashed note.
func (s *Service) Purge(ctx context.Context, userID, noteID string) error {
	if !validID(noteID) {
		return ErrNotFound
	}
	return s.store.PurgeNote(ctx, userID, noteID)
}

// CheckEnvelope verifies the envelope has every field. The server never
// decodes or decrypts it.
func CheckEnvelope(env vault.Envelope) error {
	if strings.TrimSpace(env.Ciphertext) == "" || strings.TrimSpace(env.IV) == "" || strings.TrimSpace(env.Salt) == "" {
		return fmt.Errorf("%w: content requires ciphertext, iv and salt", ErrInvalidNote)
	}
	return nil
}

func checkTitle(title string) error {
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidNote, MaxTitleLength)
	}
	return nil
}

func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
