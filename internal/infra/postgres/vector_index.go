package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/ninenotes/internal/core/note"
)

// EmbeddingDimension は note_embeddings.embedding 列の vector 次元数。
// Embedder の出力次元はこの値と一致していなければならない
const EmbeddingDimension = 1536

// VectorIndex は core/note.VectorIndex を実装する pgvector ベースのインデックス。
// スコアはコサイン距離から 1 - distance で類似度に変換して返す。
type VectorIndex struct {
	pool *pgxpool.Pool
}

// NewVectorIndex は新しい VectorIndex を返す。
func NewVectorIndex(pool *pgxpool.Pool) *VectorIndex {
	return &VectorIndex{pool: pool}
}

var _ note.VectorIndex = (*VectorIndex)(nil)

func (x *VectorIndex) Upsert(ctx context.Context, noteID uuid.UUID, vector []float32, ownerID uuid.UUID) error {
	_, err := x.pool.Exec(ctx, `
		INSERT INTO note_embeddings (note_id, owner_id, embedding, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (note_id) DO UPDATE
		SET owner_id = EXCLUDED.owner_id, embedding = EXCLUDED.embedding, updated_at = now()`,
		UUIDToPgtype(noteID),
		UUIDToPgtype(ownerID),
		pgvector.NewVector(vector),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert embedding: %w", err)
	}
	return nil
}

func (x *VectorIndex) Query(ctx context.Context, vector []float32, topK int, ownerID uuid.UUID) ([]*note.Match, error) {
	// owner_id による絞り込みは必須。他ユーザーのノートが混ざる形の
	// クエリをこの層から発行してはならない
	rows, err := x.pool.Query(ctx, `
		SELECT note_id, 1 - (embedding <=> $1) AS score
		FROM note_embeddings
		WHERE owner_id = $2
		ORDER BY embedding <=> $1
		LIMIT $3`,
		pgvector.NewVector(vector),
		UUIDToPgtype(ownerID),
		int32(topK),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query embeddings: %w", err)
	}
	defer rows.Close()

	matches := make([]*note.Match, 0, topK)
	for rows.Next() {
		var (
			noteID pgtype.UUID
			score  float64
		)
		if err := rows.Scan(&noteID, &score); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, &note.Match{
			NoteID: PgtypeToUUID(noteID),
			Score:  score,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read matches: %w", err)
	}
	return matches, nil
}

func (x *VectorIndex) Delete(ctx context.Context, noteID uuid.UUID) error {
	// 既に存在しないエントリの削除は成功扱い
	_, err := x.pool.Exec(ctx, `DELETE FROM note_embeddings WHERE note_id = $1`, UUIDToPgtype(noteID))
	if err != nil {
		return fmt.Errorf("failed to delete embedding: %w", err)
	}
	return nil
}
