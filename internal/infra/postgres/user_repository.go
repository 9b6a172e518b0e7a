package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/ninenotes/internal/core/apperr"
	"github.com/jinford/ninenotes/internal/core/user"
)

// uniqueViolation は PostgreSQL の一意制約違反コード
const uniqueViolation = "23505"

// UserRepository は core/user.Repository を実装する PostgreSQL リポジトリ。
type UserRepository struct {
	pool *pgxpool.Pool
}

// NewUserRepository は新しい UserRepository を返す。
func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

var _ user.Repository = (*UserRepository)(nil)

func (r *UserRepository) Create(ctx context.Context, u *user.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, password_hash, name, avatar_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		UUIDToPgtype(u.ID),
		u.Email,
		u.PasswordHash,
		StringPtrToPgtext(u.Name),
		StringPtrToPgtext(u.AvatarURL),
		TimeToPgtype(u.CreatedAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return fmt.Errorf("%w: email already registered", apperr.ErrValidation)
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}
	return nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, name, avatar_url, created_at
		FROM users WHERE email = $1`,
		email,
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, email)
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (*user.User, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, email, password_hash, name, avatar_url, created_at
		FROM users WHERE id = $1`,
		UUIDToPgtype(id),
	)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %s", apperr.ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get user by id: %w", err)
	}
	return u, nil
}

func (r *UserRepository) UpdateProfile(ctx context.Context, u *user.User) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE users SET name = $2, avatar_url = $3 WHERE id = $1`,
		UUIDToPgtype(u.ID),
		StringPtrToPgtext(u.Name),
		StringPtrToPgtext(u.AvatarURL),
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: user %s", apperr.ErrNotFound, u.ID)
	}
	return nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var (
		id           pgtype.UUID
		email        string
		passwordHash string
		name         pgtype.Text
		avatarURL    pgtype.Text
		createdAt    pgtype.Timestamp
	)
	if err := row.Scan(&id, &email, &passwordHash, &name, &avatarURL, &createdAt); err != nil {
		return nil, err
	}
	return &user.User{
		ID:           PgtypeToUUID(id),
		Email:        email,
		PasswordHash: passwordHash,
		Name:         PgtextToStringPtr(name),
		AvatarURL:    PgtextToStringPtr(avatarURL),
		CreatedAt:    PgtypeToTime(createdAt),
	}, nil
}
