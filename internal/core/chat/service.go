package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/jinford/ninenotes/internal/core/apperr"
	"github.com/jinford/ninenotes/internal/core/note"
)

const (
	// DefaultHistoryLimit は会話履歴の切り詰め幅（直近Nターン）
	DefaultHistoryLimit = 30

	// DefaultTopK はベクトル検索の取得件数
	DefaultTopK = 4

	// DefaultTemperature は生成温度のデフォルト値
	DefaultTemperature = 0.7

	// DefaultTopP は nucleus sampling のデフォルト値
	DefaultTopP = 0.95

	// DefaultMaxTokens は生成トークン上限のデフォルト値
	DefaultMaxTokens = 1024

	// DefaultContextTokenBudget はグラウンディングターンのトークン予算
	DefaultContextTokenBudget = 3072
)

// NoteFinder はベクトル検索のヒットをノート本体へ解決するインターフェース
type NoteFinder interface {
	// ListByIDs はIDの集合に一致するノートを一括取得する。
	// 存在しないIDは結果に含まれない
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*note.Note, error)
}

// Service はノートを根拠とした質問応答ストリーミングを提供する
type Service struct {
	finder    NoteFinder
	index     note.VectorIndex
	embedder  note.Embedder
	completer Completer
	counter   TokenCounter
	logger    *slog.Logger

	historyLimit int
	topK         int
	tokenBudget  int
}

// ServiceOption は Service 構築時のオプション
type ServiceOption func(*Service)

// WithServiceLogger はロガーを差し替える
func WithServiceLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithHistoryLimit は履歴の切り詰め幅を変更する
func WithHistoryLimit(limit int) ServiceOption {
	return func(s *Service) {
		if limit > 0 {
			s.historyLimit = limit
		}
	}
}

// WithTopK はベクトル検索の取得件数を変更する
func WithTopK(topK int) ServiceOption {
	return func(s *Service) {
		if topK > 0 {
			s.topK = topK
		}
	}
}

// WithTokenCounter はプロンプト予算の計測器を設定する
func WithTokenCounter(counter TokenCounter) ServiceOption {
	return func(s *Service) {
		s.counter = counter
	}
}

// WithTokenBudget はグラウンディングターンのトークン予算を変更する
func WithTokenBudget(budget int) ServiceOption {
	return func(s *Service) {
		if budget > 0 {
			s.tokenBudget = budget
		}
	}
}

// NewService は新しい Service を作成する
func NewService(finder NoteFinder, index note.VectorIndex, embedder note.Embedder, completer Completer, opts ...ServiceOption) *Service {
	svc := &Service{
		finder:       finder,
		index:        index,
		embedder:     embedder,
		completer:    completer,
		logger:       slog.Default(),
		historyLimit: DefaultHistoryLimit,
		topK:         DefaultTopK,
		tokenBudget:  DefaultContextTokenBudget,
	}
	for _, opt := range opts {
		opt(svc)
	}
	if svc.logger == nil {
		svc.logger = slog.Default()
	}
	return svc
}

// Stream は会話履歴と呼び出し元の所有者IDから応答トークンのストリームを生成する。
//
// 手順: 履歴を直近Nターンに切り詰め → 連結テキストをEmbedding →
// 所有者で絞ったベクトル検索 → ヒットIDをノートへ一括解決 →
// グラウンディングターンを先頭に構築 → 生成サービスへ送信。
// ステップ途中の失敗は生成呼び出し前に打ち切り、リトライは行わない
func (s *Service) Stream(ctx context.Context, ownerID uuid.UUID, turns []Turn) (TokenStream, error) {
	if len(turns) == 0 {
		return nil, fmt.Errorf("%w: conversation is empty", apperr.ErrValidation)
	}
	for _, turn := range turns {
		if !turn.Role.Valid() {
			return nil, fmt.Errorf("%w: unknown role %q", apperr.ErrValidation, turn.Role)
		}
	}

	truncated := truncateTurns(turns, s.historyLimit)

	queryVector, err := s.embedder.Embed(ctx, joinContents(truncated))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrEmbedding, err)
	}
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("%w: empty vector returned", apperr.ErrEmbedding)
	}

	matches, err := s.index.Query(ctx, queryVector, s.topK, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrRetrieval, err)
	}

	notes, err := s.resolveNotes(ctx, matches)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrRetrieval, err)
	}

	s.logger.Info("grounding context resolved",
		"ownerID", ownerID.String(),
		"matches", len(matches),
		"notes", len(notes),
	)

	grounding := Turn{
		Role:    RoleAssistant,
		Content: BuildGroundingPrompt(notes, s.counter, s.tokenBudget),
	}

	sequence := make([]Turn, 0, len(truncated)+1)
	sequence = append(sequence, grounding)
	sequence = append(sequence, truncated...)

	stream, err := s.completer.StreamCompletion(ctx, CompletionRequest{
		Turns:       sequence,
		Temperature: DefaultTemperature,
		TopP:        DefaultTopP,
		MaxTokens:   DefaultMaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrUpstream, err)
	}

	return stream, nil
}

// resolveNotes はベクトル検索のヒットをノートへ解決する。
// ストアに存在しないIDは結果整合の遅延として黙って除外し、
// 取得順（スコア順）を保って返す
func (s *Service) resolveNotes(ctx context.Context, matches []*note.Match) ([]*note.Note, error) {
	if len(matches) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.NoteID)
	}

	fetched, err := s.finder.ListByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	byID := make(map[uuid.UUID]*note.Note, len(fetched))
	for _, n := range fetched {
		byID[n.ID] = n
	}

	ordered := make([]*note.Note, 0, len(matches))
	for _, m := range matches {
		if n, ok := byID[m.NoteID]; ok {
			ordered = append(ordered, n)
		}
	}
	return ordered, nil
}

// truncateTurns は直近 limit ターンを相対順序を保って返す
func truncateTurns(turns []Turn, limit int) []Turn {
	if len(turns) <= limit {
		return turns
	}
	return turns[len(turns)-limit:]
}

// joinContents は切り詰め後のターン本文を改行で連結する。
// インデックス側のEmbeddingと同じベクトル空間で比較するため、
// 変換はここでも同一のEmbedderに委ねる
func joinContents(turns []Turn) string {
	contents := make([]string, 0, len(turns))
	for _, turn := range turns {
		contents = append(contents, turn.Content)
	}
	return strings.Join(contents, "\n")
}
