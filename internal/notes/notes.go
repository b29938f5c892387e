// Package notes holds the encrypted note model and the service the HTTP
// layer calls. Note content is an opaque vault envelope; the server never
// sees plaintext.
package notes

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/MrEthical07/notevault/vault"
)

// MaxTitleLength is the longest plaintext title accepted, in characters.
const MaxTitleLength = 200

var (
	// ErrNotFound is returned for a note that does not exist, belongs to
	// another user, or is not in the state the operation requires.
	ErrNotFound = errors.New("note not found")
	// ErrInvalidNote is returned for a note that fails shape checks.
	ErrInvalidNote = errors.New("invalid note")
)

// Note is one stored note. Content is ciphertext produced by the client.
type Note struct {
	ID         string         `json:"id"`
	UserID     string         `json:"-"`
	Title      string         `json:"title"`
	Content    vault.Envelope `json:"content"`
	IsFavorite bool           `json:"isFavorite"`
	IsDeleted  bool           `json:"isDeleted"`
	DeletedAt  *time.Time     `json:"deletedAt"`
	Tags       []string       `json:"tags"`
	CreatedAt  time.Time      `json:"createdAt"`
	UpdatedAt  time.Time      `json:"updatedAt"`
}

// Clone returns a deep copy of n.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	out := *n
	out.Tags = append([]string(nil), n.Tags...)
	if n.DeletedAt != nil {
		t := *n.DeletedAt
		out.DeletedAt = &t
	}
	return &out
}

// Filter selects notes for List. Trashed notes are returned only when
// Deleted is set, and then exclusively.
type Filter struct {
	Favorite bool
	Deleted  bool
}

// Match reports whether n passes f.
func (f Filter) Match(n *Note) bool {
	if f.Favorite && !n.IsFavorite {
		return false
	}
	return n.IsDeleted == f.Deleted
}

// CreateInput is the client payload for a new note.
type CreateInput struct {
	Title      string
	Content    vault.Envelope
	IsFavorite bool
	Tags       []string
}

// UpdateInput is a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Title      *string
	Content    *vault.Envelope
	IsFavorite *bool
	Tags       []string
	SetTags    bool
}

// Empty reports whether in changes nothing.
func (in UpdateInput) Empty() bool {
	return in.Title == nil && in.Content == nil && in.IsFavorite == nil && !in.SetTags
}

// Store persists notes. Every method is scoped by userID; a note owned by
// another user behaves as missing.
type Store interface {
	CreateNote(ctx context.Context, n *Note) error
	ListNotes(ctx context.Context, userID string, f Filter) ([]*Note, error)
	GetNote(ctx context.Context, userID, noteID string) (*Note, error)
	UpdateNote(ctx context.Context, userID, noteID string, in UpdateInput, now time.Time) (*Note, error)
	// TrashNote moves a live or trashed note to the trash.
	TrashNote(ctx context.Context, userID, noteID string, now time.Time) (*Note, error)
	// RestoreNote takes a trashed note out of the trash. A live note is
	// ErrNotFound.
	RestoreNote(ctx context.Context, userID, noteID string, now time.Time) (*Note, error)
	// PurgeNote removes a trashed note permanently. A live note is
	// ErrNotFound.
	PurgeNote(ctx context.Context, userID, noteID string) error
}

// NormalizeTags trims and lower-cases tags and drops empties and
// duplicates, keeping first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
