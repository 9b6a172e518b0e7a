package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/ninenotes/internal/core/apperr"
	"github.com/jinford/ninenotes/internal/core/note"
)

// NoteRepository は core/note.Repository を実装する PostgreSQL リポジトリ。
type NoteRepository struct {
	pool *pgxpool.Pool
}

// NewNoteRepository は新しい NoteRepository を返す。
func NewNoteRepository(pool *pgxpool.Pool) *NoteRepository {
	return &NoteRepository{pool: pool}
}

var _ note.Repository = (*NoteRepository)(nil)

func (r *NoteRepository) Create(ctx context.Context, n *note.Note) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO notes (id, title, content, owner_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		UUIDToPgtype(n.ID),
		n.Title,
		StringPtrToPgtext(n.Content),
		UUIDToPgtype(n.OwnerID),
		TimeToPgtype(n.CreatedAt),
		TimeToPgtype(n.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	return nil
}

func (r *NoteRepository) Update(ctx context.Context, n *note.Note) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE notes SET title = $2, content = $3, updated_at = $4
		WHERE id = $1`,
		UUIDToPgtype(n.ID),
		n.Title,
		StringPtrToPgtext(n.Content),
		TimeToPgtype(n.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: note %s", apperr.ErrNotFound, n.ID)
	}
	return nil
}

func (r *NoteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM notes WHERE id = $1`, UUIDToPgtype(id))
	if err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: note %s", apperr.ErrNotFound, id)
	}
	return nil
}

func (r *NoteRepository) GetByID(ctx context.Context, id uuid.UUID) (*note.Note, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, title, content, owner_id, created_at, updated_at
		FROM notes WHERE id = $1`,
		UUIDToPgtype(id),
	)

	n, err := scanNote(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: note %s", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get note: %w", err)
	}
	return n, nil
}

func (r *NoteRepository) ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*note.Note, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, content, owner_id, created_at, updated_at
		FROM notes
		WHERE owner_id = $1
		ORDER BY updated_at DESC
		LIMIT $2 OFFSET $3`,
		UUIDToPgtype(ownerID), int32(limit), int32(offset),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}
	defer rows.Close()

	return collectNotes(rows)
}

func (r *NoteRepository) CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM notes WHERE owner_id = $1`,
		UUIDToPgtype(ownerID),
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count notes: %w", err)
	}
	return int(count), nil
}

func (r *NoteRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*note.Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, title, content, owner_id, created_at, updated_at
		FROM notes WHERE id = ANY($1)`,
		UUIDsToPgtype(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes by ids: %w", err)
	}
	defer rows.Close()

	return collectNotes(rows)
}

func scanNote(row pgx.Row) (*note.Note, error) {
	var (
		id        pgtype.UUID
		title     string
		content   pgtype.Text
		ownerID   pgtype.UUID
		createdAt pgtype.Timestamp
		updatedAt pgtype.Timestamp
	)
	if err := row.Scan(&id, &title, &content, &ownerID, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	return &note.Note{
		ID:        PgtypeToUUID(id),
		Title:     title,
		Content:   PgtextToStringPtr(content),
		OwnerID:   PgtypeToUUID(ownerID),
		CreatedAt: PgtypeToTime(createdAt),
		UpdatedAt: PgtypeToTime(updatedAt),
	}, nil
}

func collectNotes(rows pgx.Rows) ([]*note.Note, error) {
	notes := make([]*note.Note, 0)
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan note: %w", err)
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read notes: %w", err)
	}
	return notes, nil
}
