package openai

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/packages/ssestream"
	"github.com/openai/openai-go/v3/shared"

	"github.com/jinford/ninenotes/internal/core/chat"
)

// DefaultChatModel はデフォルトで使用する生成モデル
const DefaultChatModel = "gpt-4o-mini"

// ErrAPIKeyNotSet はAPIキーが設定されていない場合のエラー
var ErrAPIKeyNotSet = errors.New("OpenAI API key not set")

// ChatClient は OpenAI API を使用したストリーミング生成クライアント
type ChatClient struct {
	client openai.Client
	model  string
}

// NewChatClient は新しい ChatClient を作成する
func NewChatClient(apiKey, model string) (*ChatClient, error) {
	if apiKey == "" {
		return nil, ErrAPIKeyNotSet
	}
	if model == "" {
		model = DefaultChatModel
	}

	return &ChatClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}, nil
}

var _ chat.Completer = (*ChatClient)(nil)

// StreamCompletion はターン列からストリーミング応答を開始する。
// ロールは user → user / assistant → assistant に対応付ける
func (c *ChatClient) StreamCompletion(ctx context.Context, req chat.CompletionRequest) (chat.TokenStream, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Turns))
	for _, turn := range req.Turns {
		switch turn.Role {
		case chat.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(turn.Content))
		case chat.RoleUser:
			messages = append(messages, openai.UserMessage(turn.Content))
		default:
			return nil, fmt.Errorf("unsupported role: %q", turn.Role)
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	return &completionStream{stream: stream}, nil
}

// completionStream は openai-go の SSE ストリームを chat.TokenStream に適合させる
type completionStream struct {
	stream  *ssestream.Stream[openai.ChatCompletionChunk]
	current string
}

var _ chat.TokenStream = (*completionStream)(nil)

func (s *completionStream) Next() bool {
	for s.stream.Next() {
		chunk := s.stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		s.current = delta
		return true
	}
	return false
}

func (s *completionStream) Current() string {
	return s.current
}

func (s *completionStream) Err() error {
	return s.stream.Err()
}

func (s *completionStream) Close() error {
	return s.stream.Close()
}
