package chat

import "context"

// Role は会話ターンの発話元を表す
type Role string

const (
	// RoleUser はユーザー発話
	RoleUser Role = "user"

	// RoleAssistant はアシスタント発話
	RoleAssistant Role = "assistant"
)

// Valid はロールが既知の値かどうかを返す
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Turn は会話の1ターンを表す
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest は生成サービスへ渡すリクエストを表す
type CompletionRequest struct {
	Turns       []Turn  // 順序付きターン列（先頭はグラウンディングターン）
	Temperature float64 // 生成温度
	TopP        float64 // nucleus sampling
	MaxTokens   int     // 生成トークン上限
}

// TokenStream は生成サービスからのトークン列を逐次取り出すインターフェース。
// Next が false を返した後、Err で途中失敗の有無を確認する
type TokenStream interface {
	// Next は次のトークンがあるかどうかを返す
	Next() bool

	// Current は直近の Next で得たトークンを返す
	Current() string

	// Err はストリームの途中失敗を返す
	Err() error

	// Close はストリームを閉じ、進行中の生成を放棄する
	Close() error
}

// Completer はストリーミング生成のインターフェース
type Completer interface {
	StreamCompletion(ctx context.Context, req CompletionRequest) (TokenStream, error)
}

// TokenCounter はプロンプトのトークン数を数えるインターフェース
type TokenCounter interface {
	Count(text string) int
}
