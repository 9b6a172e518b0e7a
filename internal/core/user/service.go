package user

import (
	"context"
	"fmt"
	"log/slog"
	"net/mail"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"golang.org/x/crypto/bcrypt"

	"github.com/jinford/ninenotes/internal/core/apperr"
	"github.com/jinford/ninenotes/internal/core/note"
)

const (
	// minPasswordLength はパスワードの最小長
	minPasswordLength = 8

	// avatarKeyPrefix はアバターオブジェクトのキー接頭辞
	avatarKeyPrefix = "avatars"
)

// welcomeNoteTitle / welcomeNoteContent はサインアップ時に投入するサンプルノート。
// アシスタントへの最初の質問の種になる
const welcomeNoteTitle = "Quantum Computing: A New Era of Computation"

const welcomeNoteContent = `Quantum computing is a revolutionary paradigm that leverages the principles of quantum mechanics to perform calculations exponentially faster than classical computers.

Qubits: Unlike classical bits, qubits can exist in multiple states simultaneously due to a phenomenon called superposition.
Entanglement: Qubits can become entangled, meaning the state of one qubit is linked to the state of another, regardless of their distance.
Quantum Gates: Operations that manipulate qubits to perform quantum algorithms, such as the Hadamard gate and the CNOT gate.

Questions you can ask the assistant:
Q1: What is the difference between classical and quantum computers?
Q2: Explain the concept of quantum supremacy.
Q3: How does entanglement enable quantum computation?`

// NoteSeeder はサインアップ時のサンプルノート投入に使うインターフェース
type NoteSeeder interface {
	Create(ctx context.Context, ownerID uuid.UUID, params note.CreateParams) (*note.Note, error)
}

// Service はアカウントとプロフィールのビジネスロジックを提供する
type Service struct {
	repo   Repository
	tokens TokenIssuer
	blobs  BlobStore
	seeder NoteSeeder
	logger *slog.Logger
}

// ServiceOption は Service 構築時のオプション
type ServiceOption func(*Service)

// WithServiceLogger はロガーを差し替える
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService は新しい Service を作成する
func NewService(repo Repository, tokens TokenIssuer, blobs BlobStore, seeder NoteSeeder, opts ...ServiceOption) *Service {
	svc := &Service{
		repo:   repo,
		tokens: tokens,
		blobs:  blobs,
		seeder: seeder,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Session はサインアップ・サインイン成功時の結果を表す
type Session struct {
	User  *User  `json:"user"`
	Token string `json:"token"`
}

// SignUp はユーザーを作成し、サンプルノートを投入してセッションを発行する
func (s *Service) SignUp(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, fmt.Errorf("%w: invalid email address", apperr.ErrValidation)
	}
	if len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", apperr.ErrValidation, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	u := &User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}

	if err := s.repo.Create(ctx, u); err != nil {
		return nil, err
	}

	// サンプルノートの投入はベストエフォート。失敗してもサインアップは成立する
	if _, err := s.seeder.Create(ctx, u.ID, note.CreateParams{
		Title:   welcomeNoteTitle,
		Content: mo.Some(welcomeNoteContent),
	}); err != nil {
		s.logger.Error("failed to seed welcome note", "userID", u.ID.String(), "error", err)
	}

	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	return &Session{User: u, Token: token}, nil
}

// SignIn は資格情報を検証してセッションを発行する
func (s *Service) SignIn(ctx context.Context, email, password string) (*Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))

	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		// 存在しないユーザーと誤パスワードを区別しない
		return nil, fmt.Errorf("%w: invalid email or password", apperr.ErrUnauthenticated)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, fmt.Errorf("%w: invalid email or password", apperr.ErrUnauthenticated)
	}

	token, err := s.tokens.Issue(u.ID, u.Email)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	return &Session{User: u, Token: token}, nil
}

// Profile はユーザーのプロフィールを返す
func (s *Service) Profile(ctx context.Context, userID uuid.UUID) (*User, error) {
	return s.repo.GetByID(ctx, userID)
}

// UpdateProfileParams はプロフィール部分更新のパラメータ
type UpdateProfileParams struct {
	Name      mo.Option[string]
	AvatarURL mo.Option[string]
}

// UpdateProfile は指定されたフィールドのみを更新する
func (s *Service) UpdateProfile(ctx context.Context, userID uuid.UUID, params UpdateProfileParams) (*User, error) {
	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if name, ok := params.Name.Get(); ok {
		u.Name = &name
	}
	if avatarURL, ok := params.AvatarURL.Get(); ok {
		u.AvatarURL = &avatarURL
	}

	if err := s.repo.UpdateProfile(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return u, nil
}

// UploadAvatar はアバター画像を保存してプロフィールを更新する。
// 旧アバターの削除はベストエフォートで行う
func (s *Service) UploadAvatar(ctx context.Context, userID uuid.UUID, filename, contentType string, body []byte) (*User, error) {
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: avatar file is empty", apperr.ErrValidation)
	}

	u, err := s.repo.GetByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%s/%s/%s%s", avatarKeyPrefix, userID.String(), uuid.NewString(), path.Ext(filename))
	url, err := s.blobs.Put(ctx, key, contentType, body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to store avatar: %v", apperr.ErrUpstream, err)
	}

	previous := u.AvatarURL
	u.AvatarURL = &url
	if err := s.repo.UpdateProfile(ctx, u); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	if previous != nil {
		if oldKey, ok := objectKeyFromURL(*previous); ok {
			if err := s.blobs.Delete(ctx, oldKey); err != nil {
				s.logger.Warn("failed to delete previous avatar", "key", oldKey, "error", err)
			}
		}
	}

	return u, nil
}

// objectKeyFromURL は公開URLからオブジェクトキー部分を取り出す
func objectKeyFromURL(url string) (string, bool) {
	idx := strings.Index(url, avatarKeyPrefix+"/")
	if idx < 0 {
		return "", false
	}
	return url[idx:], true
}
