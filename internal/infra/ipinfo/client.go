// Package ipinfo は ipinfo.io による位置情報の取得を提供する。
package ipinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/jinford/ninenotes/internal/core/apperr"
)

const (
	defaultBaseURL = "https://ipinfo.io"
	defaultTimeout = 10 * time.Second
)

// Client は ipinfo.io のAPIクライアント
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

// ClientOption は Client 構築時のオプション
type ClientOption func(*Client)

// WithBaseURL は接続先を差し替える（テスト用）
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient はHTTPクライアントを差し替える
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// NewClient は新しい Client を作成する
func NewClient(token string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    defaultBaseURL,
		token:      token,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Country は呼び出し元の国コードを返す
func (c *Client) Country(ctx context.Context) (string, error) {
	endpoint := fmt.Sprintf("%s/json?token=%s", c.baseURL, url.QueryEscape(c.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: location lookup failed: %v", apperr.ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: location lookup returned status %d", apperr.ErrUpstream, resp.StatusCode)
	}

	var payload struct {
		Country string `json:"country"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: failed to decode location response: %v", apperr.ErrUpstream, err)
	}

	return payload.Country, nil
}
