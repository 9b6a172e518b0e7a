// Package container はアプリケーション全体の依存関係を構築・保持する。
// クライアントはプロセス起動時に一度だけ生成し、リクエスト間で共有する。
package container

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jinford/ninenotes/internal/core/chat"
	"github.com/jinford/ninenotes/internal/core/note"
	"github.com/jinford/ninenotes/internal/core/user"
	"github.com/jinford/ninenotes/internal/infra/auth"
	"github.com/jinford/ninenotes/internal/infra/ipinfo"
	"github.com/jinford/ninenotes/internal/infra/openai"
	"github.com/jinford/ninenotes/internal/infra/postgres"
	"github.com/jinford/ninenotes/internal/infra/s3"
	"github.com/jinford/ninenotes/internal/platform/config"
	"github.com/jinford/ninenotes/internal/platform/database"
)

// ServiceContainer はサービス層の依存関係を保持する
type ServiceContainer struct {
	NoteService *note.Service
	ChatService *chat.Service
	UserService *user.Service
	Location    *ipinfo.Client
	TokenIssuer user.TokenIssuer

	logger   *slog.Logger
	database *database.Database
}

type containerOptions struct {
	logger    *slog.Logger
	embedder  note.Embedder
	completer chat.Completer
	blobStore user.BlobStore
	counter   chat.TokenCounter
	runner    note.TaskRunner
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder note.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerCompleter は生成クライアントを差し替える
func WithContainerCompleter(completer chat.Completer) ContainerOption {
	return func(opts *containerOptions) {
		opts.completer = completer
	}
}

// WithContainerBlobStore はアバター保存先を差し替える
func WithContainerBlobStore(store user.BlobStore) ContainerOption {
	return func(opts *containerOptions) {
		opts.blobStore = store
	}
}

// WithContainerTokenCounter はトークン計測器を差し替える
func WithContainerTokenCounter(counter chat.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.counter = counter
	}
}

// WithContainerTaskRunner はインデックス同期タスクの実行方法を差し替える
func WithContainerTaskRunner(runner note.TaskRunner) ContainerOption {
	return func(opts *containerOptions) {
		opts.runner = runner
	}
}

// NewContainer は設定からコンテナを生成する。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	db, err := database.New(ctx, database.ConnectionParams{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	cont, err := NewContainerWithDB(ctx, cfg, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	return cont, nil
}

// NewContainerWithDB は既存の Database を受け取りコンテナを生成する。
func NewContainerWithDB(ctx context.Context, cfg *config.Config, db *database.Database, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		oaiEmbedder := openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
		)
		// インデックス側の vector 次元と食い違ったまま起動させない
		if dim := oaiEmbedder.Dimension(); dim != postgres.EmbeddingDimension {
			return nil, fmt.Errorf("Embeddingの次元数 %d がインデックスの次元数 %d と一致しません", dim, postgres.EmbeddingDimension)
		}
		embedder = oaiEmbedder
	}

	// 生成クライアント (OpenAI)
	completer := options.completer
	if completer == nil {
		chatClient, err := openai.NewChatClient(cfg.OpenAI.APIKey, cfg.OpenAI.ChatModel)
		if err != nil {
			return nil, fmt.Errorf("OpenAIクライアント初期化に失敗しました: %w", err)
		}
		completer = chatClient
	}

	// トークン計測器 (tiktoken)
	counter := options.counter
	if counter == nil {
		tokenCounter, err := openai.NewTokenCounter()
		if err != nil {
			return nil, fmt.Errorf("TokenCounter 初期化に失敗しました: %w", err)
		}
		counter = tokenCounter
	}

	// アバター保存先 (S3)
	blobStore := options.blobStore
	if blobStore == nil {
		storage, err := s3.New(ctx, s3.Config{
			Region:        cfg.Storage.Region,
			Bucket:        cfg.Storage.Bucket,
			Endpoint:      cfg.Storage.Endpoint,
			PublicBaseURL: cfg.Storage.PublicBaseURL,
		})
		if err != nil {
			return nil, fmt.Errorf("ストレージ初期化に失敗しました: %w", err)
		}
		blobStore = storage
	}

	// セッショントークン
	tokenIssuer, err := auth.NewJWTIssuer(
		[]byte(cfg.Auth.JWTSecret),
		cfg.Auth.Issuer,
		time.Duration(cfg.Auth.TokenTTLMin)*time.Minute,
	)
	if err != nil {
		return nil, fmt.Errorf("トークン発行器の初期化に失敗しました: %w", err)
	}

	// Repository (PostgreSQL)
	noteRepo := postgres.NewNoteRepository(db.Pool)
	userRepo := postgres.NewUserRepository(db.Pool)
	vectorIndex := postgres.NewVectorIndex(db.Pool)

	// Services
	noteOpts := []note.ServiceOption{note.WithServiceLogger(options.logger)}
	if options.runner != nil {
		noteOpts = append(noteOpts, note.WithTaskRunner(options.runner))
	}
	noteService := note.NewService(noteRepo, vectorIndex, embedder, noteOpts...)

	chatService := chat.NewService(noteRepo, vectorIndex, embedder, completer,
		chat.WithServiceLogger(options.logger),
		chat.WithHistoryLimit(cfg.Chat.HistoryLimit),
		chat.WithTopK(cfg.Chat.TopK),
		chat.WithTokenCounter(counter),
		chat.WithTokenBudget(cfg.Chat.ContextTokenBudget),
	)

	userService := user.NewService(userRepo, tokenIssuer, blobStore, noteService,
		user.WithServiceLogger(options.logger),
	)

	return &ServiceContainer{
		NoteService: noteService,
		ChatService: chatService,
		UserService: userService,
		Location:    ipinfo.NewClient(cfg.IPInfo.Token),
		TokenIssuer: tokenIssuer,
		logger:      options.logger,
		database:    db,
	}, nil
}

// Logger はコンテナのロガーを返す
func (c *ServiceContainer) Logger() *slog.Logger {
	return c.logger
}

// Close はコンテナが保持するリソースをクリーンアップする
func (c *ServiceContainer) Close() {
	if c.database != nil {
		c.database.Close()
	}
}
