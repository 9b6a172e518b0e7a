package user

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// User はアカウントを表す
type User struct {
	ID           uuid.UUID `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Name         *string   `json:"name"`
	AvatarURL    *string   `json:"avatarUrl"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Repository はユーザーの永続化インターフェース
type Repository interface {
	// Create はユーザーを作成する。メールアドレス重複時は apperr.ErrValidation を返す
	Create(ctx context.Context, u *User) error

	// GetByEmail はメールアドレスでユーザーを取得する
	GetByEmail(ctx context.Context, email string) (*User, error)

	// GetByID はIDでユーザーを取得する
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)

	// UpdateProfile は表示名とアバターURLを更新する
	UpdateProfile(ctx context.Context, u *User) error
}

// TokenIssuer はセッショントークンの発行・検証インターフェース
type TokenIssuer interface {
	// Issue はユーザーのセッショントークンを発行する
	Issue(userID uuid.UUID, email string) (string, error)

	// Verify はトークンを検証し、ユーザーIDを返す。
	// 検証に失敗した場合は apperr.ErrUnauthenticated を返す
	Verify(token string) (uuid.UUID, error)
}

// BlobStore はアバター画像の保存先インターフェース
type BlobStore interface {
	// Put はオブジェクトを保存し、公開URLを返す
	Put(ctx context.Context, key, contentType string, body []byte) (string, error)

	// Delete はオブジェクトを削除する
	Delete(ctx context.Context, key string) error
}
