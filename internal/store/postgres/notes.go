package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/MrEthical07/notevault/internal/notes"
	"github.com/jackc/pgx/v5"
)

var noteColumns = []string{
	"id", "user_id", "title", "ciphertext", "iv", "salt",
	"is_favorite", "is_deleted", "deleted_at", "tags", "created_at", "updated_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

func (s *Store) CreateNote(ctx context.Context, n *notes.Note) error {
	query := psql.Insert("notes").
		Columns(noteColumns...).
		Values(n.ID, n.UserID, n.Title, n.Content.Ciphertext, n.Content.IV, n.Content.Salt,
			n.IsFavorite, n.IsDeleted, n.DeletedAt, tagsOrEmpty(n.Tags), n.CreatedAt, n.UpdatedAt)

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

func (s *Store) ListNotes(ctx context.Context, userID string, f notes.Filter) ([]*notes.Note, error) {
	query := psql.Select(noteColumns...).
		From("notes").
		Where(sq.Eq{"user_id": userID, "is_deleted": f.Deleted}).
		OrderBy("created_at DESC", "id DESC")
	if f.Favorite {
		query = query.Where(sq.Eq{"is_favorite": true})
	}

	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	out := make([]*notes.Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		out = append(out, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return out, nil
}

func (s *Store) GetNote(ctx context.Context, userID, noteID string) (*notes.Note, error) {
	query := psql.Select(noteColumns...).
		From("notes").
		Where(sq.Eq{"id": noteID, "user_id": userID})
	return s.noteRow(ctx, query)
}

func (s *Store) UpdateNote(ctx context.Context, userID, noteID string, in notes.UpdateInput, now time.Time) (*notes.Note, error) {
	query := psql.Update("notes").Set("updated_at", now)
	if in.Title != nil {
		query = query.Set("title", *in.Title)
	}
	if in.Content != nil {
		query = query.
			Set("ciphertext", in.Content.Ciphertext).
			Set("iv", in.Content.IV).
			Set("salt", in.Content.Salt)
	}
	if in.IsFavorite != nil {
		query = query.Set("is_favorite", *in.IsFavorite)
	}
	if in.SetTags {
		query = query.Set("tags", tagsOrEmpty(in.Tags))
	}
	query = query.Where(sq.Eq{"id": noteID, "user_id": userID})
	return s.updateReturning(ctx, query)
}

func (s *Store) TrashNote(ctx context.Context, userID, noteID string, now time.Time) (*notes.Note, error) {
	query := psql.Update("notes").
		Set("is_deleted", true).
		Set("deleted_at", now).
		Set("updated_at", now).
		Where(sq.Eq{"id": noteID, "user_id": userID})
	return s.updateReturning(ctx, query)
}

func (s *Store) RestoreNote(ctx context.Context, userID, noteID string, now time.Time) (*notes.Note, error) {
	query := psql.Update("notes").
		Set("is_deleted", false).
		Set("deleted_at", nil).
		Set("updated_at", now).
		Where(sq.Eq{"id": noteID, "user_id": userID, "is_deleted": true})
	return s.updateReturning(ctx, query)
}

func (s *Store) PurgeNote(ctx context.Context, userID, noteID string) error {
	sqlStr, args, err := psql.Delete("notes").
		Where(sq.Eq{"id": noteID, "user_id": userID, "is_deleted": true}).
		ToSql()
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, sqlStr, args...)
	if err != nil {
		return fmt.Errorf("purge note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notes.ErrNotFound
	}
	return nil
}

func (s *Store) updateReturning(ctx context.Context, query sq.UpdateBuilder) (*notes.Note, error) {
	sqlStr, args, err := query.Suffix("RETURNING " + strings.Join(noteColumns, ", ")).ToSql()
	if err != nil {
		return nil, err
	}
	n, err := scanNote(s.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notes.ErrNotFound
		}
		return nil, fmt.Errorf("update note: %w", err)
	}
	return n, nil
}

func (s *Store) noteRow(ctx context.Context, query sq.SelectBuilder) (*notes.Note, error) {
	sqlStr, args, err := query.ToSql()
	if err != nil {
		return nil, err
	}
	n, err := scanNote(s.pool.QueryRow(ctx, sqlStr, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, notes.ErrNotFound
		}
		return nil, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

func scanNote(row pgx.Row) (*notes.Note, error) {
	var n notes.Note
	err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.Title,
		&n.Content.Ciphertext,
		&n.Content.IV,
		&n.Content.Salt,
		&n.IsFavorite,
		&n.IsDeleted,
		&n.DeletedAt,
		&n.Tags,
		&n.CreatedAt,
		&n.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}
