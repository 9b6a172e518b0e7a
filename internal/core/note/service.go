package note

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/ninenotes/internal/core/apperr"
)

const (
	// DefaultPageSize は一覧取得時のデフォルト件数
	DefaultPageSize = 10

	// MaxPageSize は一覧取得時の上限件数
	MaxPageSize = 100

	// indexSyncTimeout はバックグラウンドのインデックス同期1件あたりのタイムアウト
	indexSyncTimeout = 30 * time.Second
)

// TaskRunner は書き込み応答と切り離してタスクを実行する。
// 本番ではgoroutineで detach し、テストでは同期実行に差し替える。
type TaskRunner func(task func(ctx context.Context))

func defaultTaskRunner(task func(ctx context.Context)) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), indexSyncTimeout)
		defer cancel()
		task(ctx)
	}()
}

// Service はノートCRUDのビジネスロジックを提供する。
// 書き込み成功後のインデックス同期はベストエフォートで行い、
// 失敗してもCRUD自体の結果には影響させない。
type Service struct {
	repo     Repository
	index    VectorIndex
	embedder Embedder
	runner   TaskRunner
	logger   *slog.Logger
}

// ServiceOption は Service 構築時のオプション
type ServiceOption func(*Service)

// WithServiceLogger はロガーを差し替える
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithTaskRunner はインデックス同期タスクの実行方法を差し替える
func WithTaskRunner(runner TaskRunner) ServiceOption {
	return func(s *Service) {
		s.runner = runner
	}
}

// NewService は新しい Service を作成する
func NewService(repo Repository, index VectorIndex, embedder Embedder, opts ...ServiceOption) *Service {
	svc := &Service{
		repo:     repo,
		index:    index,
		embedder: embedder,
		runner:   defaultTaskRunner,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	if svc.runner == nil {
		svc.runner = defaultTaskRunner
	}
	return svc
}

// CreateParams はノート作成のパラメータ
type CreateParams struct {
	Title   string
	Content mo.Option[string]
}

// Create はノートを作成し、Embeddingの登録をバックグラウンドで予約する
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, params CreateParams) (*Note, error) {
	if strings.TrimSpace(params.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}

	now := time.Now()
	n := &Note{
		ID:        uuid.New(),
		Title:     params.Title,
		OwnerID:   ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if content, ok := params.Content.Get(); ok {
		n.Content = &content
	}

	if err := s.repo.Create(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to create note: %w", err)
	}

	s.scheduleUpsert(n)

	return n, nil
}

// UpdateParams はノート更新のパラメータ
type UpdateParams struct {
	ID      uuid.UUID
	Title   string
	Content mo.Option[string]
}

// Update は所有者を確認した上でノートを更新し、再インデックスを予約する
func (s *Service) Update(ctx context.Context, callerID uuid.UUID, params UpdateParams) (*Note, error) {
	if strings.TrimSpace(params.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", apperr.ErrValidation)
	}

	n, err := s.repo.GetByID(ctx, params.ID)
	if err != nil {
		return nil, err
	}
	if n.OwnerID != callerID {
		return nil, fmt.Errorf("%w: note %s is not owned by caller", apperr.ErrForbidden, params.ID)
	}

	n.Title = params.Title
	n.Content = nil
	if content, ok := params.Content.Get(); ok {
		n.Content = &content
	}
	n.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, n); err != nil {
		return nil, fmt.Errorf("failed to update note: %w", err)
	}

	s.scheduleUpsert(n)

	return n, nil
}

// Delete は所有者を確認した上でノートを削除し、インデックスからの削除を予約する
func (s *Service) Delete(ctx context.Context, callerID uuid.UUID, id uuid.UUID) error {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if n.OwnerID != callerID {
		return fmt.Errorf("%w: note %s is not owned by caller", apperr.ErrForbidden, id)
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete note: %w", err)
	}

	s.runner(func(ctx context.Context) {
		if err := s.index.Delete(ctx, id); err != nil {
			s.logger.Error("failed to delete note embedding from index",
				"noteID", id.String(),
				"error", err,
			)
			return
		}
		s.logger.Info("note embedding deleted from index", "noteID", id.String())
	})

	return nil
}

// List は所有者のノートを更新日時の降順でページネーション付きで返す
func (s *Service) List(ctx context.Context, ownerID uuid.UUID, page, limit int) (*ListResult, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	notes, err := s.repo.ListByOwner(ctx, ownerID, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes: %w", err)
	}

	total, err := s.repo.CountByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to count notes: %w", err)
	}

	totalPages := (total + limit - 1) / limit

	return &ListResult{
		Notes:       notes,
		CurrentPage: page,
		TotalPages:  totalPages,
		TotalCount:  total,
	}, nil
}

// scheduleUpsert はノートのEmbedding生成とインデックス登録を予約する。
// 応答は先に返しており、失敗はログに残すのみで呼び出し元へは伝えない。
func (s *Service) scheduleUpsert(n *Note) {
	noteID := n.ID
	ownerID := n.OwnerID
	text := n.EmbeddingText()

	s.runner(func(ctx context.Context) {
		vector, err := s.embedder.Embed(ctx, text)
		if err != nil {
			s.logger.Error("failed to generate note embedding",
				"noteID", noteID.String(),
				"error", err,
			)
			return
		}

		if err := s.index.Upsert(ctx, noteID, vector, ownerID); err != nil {
			s.logger.Error("failed to upsert note embedding",
				"noteID", noteID.String(),
				"error", err,
			)
			return
		}

		s.logger.Info("note embedding upserted", "noteID", noteID.String())
	})
}
