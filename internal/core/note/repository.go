package note

import (
	"context"

	"github.com/google/uuid"
)

// Repository はノートの永続化インターフェース
type Repository interface {
	// Create はノートを作成する
	Create(ctx context.Context, n *Note) error

	// Update はノートのタイトルと本文を更新する
	Update(ctx context.Context, n *Note) error

	// Delete はノートを削除する
	Delete(ctx context.Context, id uuid.UUID) error

	// GetByID はIDでノートを取得する。存在しない場合は apperr.ErrNotFound を返す
	GetByID(ctx context.Context, id uuid.UUID) (*Note, error)

	// ListByOwner は所有者のノートを更新日時の降順で取得する
	ListByOwner(ctx context.Context, ownerID uuid.UUID, limit, offset int) ([]*Note, error)

	// CountByOwner は所有者のノート総数を返す
	CountByOwner(ctx context.Context, ownerID uuid.UUID) (int, error)

	// ListByIDs はIDの集合に一致するノートを一括取得する。
	// 存在しないIDは結果から黙って除外される
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*Note, error)
}

// VectorIndex はノートEmbeddingのインデックスインターフェース
type VectorIndex interface {
	// Upsert はノートのEmbeddingを所有者メタデータ付きで登録・更新する
	Upsert(ctx context.Context, noteID uuid.UUID, vector []float32, ownerID uuid.UUID) error

	// Query はクエリベクトルに近い上位topK件を所有者で絞り込んで返す。
	// ownerID による絞り込みは必須であり、省略は許されない
	Query(ctx context.Context, vector []float32, topK int, ownerID uuid.UUID) ([]*Match, error)

	// Delete はノートのEmbeddingをインデックスから削除する
	Delete(ctx context.Context, noteID uuid.UUID) error
}

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}
