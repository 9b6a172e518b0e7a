package note

import (
	"time"

	"github.com/google/uuid"
)

// Note はユーザーが所有するノートを表す
type Note struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	Content   *string   `json:"content"`
	OwnerID   uuid.UUID `json:"ownerId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// EmbeddingText はベクトル化の対象となるテキストを返す。
// インデックス登録と検索で同じ結合規則を使うこと。
func (n *Note) EmbeddingText() string {
	content := ""
	if n.Content != nil {
		content = *n.Content
	}
	return n.Title + "\n\n" + content
}

// ListResult はページネーション付きノート一覧の結果を表す
type ListResult struct {
	Notes       []*Note `json:"notes"`
	CurrentPage int     `json:"currentPage"`
	TotalPages  int     `json:"totalPages"`
	TotalCount  int     `json:"totalCount"`
}

// Match はベクトル検索の1件のヒットを表す
type Match struct {
	NoteID uuid.UUID // ヒットしたノートID
	Score  float64   // 類似度スコア
}
