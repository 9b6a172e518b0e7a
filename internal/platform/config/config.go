package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// HTTPサーバ設定
	Server ServerConfig

	// 認証設定
	Auth AuthConfig

	// OpenAI設定（Embeddings + 生成）
	OpenAI OpenAIConfig

	// チャットパイプライン設定
	Chat ChatConfig

	// アバター保存先（S3互換オブジェクトストレージ）
	Storage StorageConfig

	// 位置情報プロバイダ設定
	IPInfo IPInfoConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL は golang-migrate 等に渡す接続URLを返します
func (c DatabaseConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// ServerConfig はHTTPサーバ設定
type ServerConfig struct {
	Port int
}

// AuthConfig はセッショントークン設定
type AuthConfig struct {
	JWTSecret   string
	TokenTTLMin int
	Issuer      string
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	ChatModel          string
}

// ChatConfig はチャットパイプラインの固定パラメータ
type ChatConfig struct {
	HistoryLimit       int
	TopK               int
	ContextTokenBudget int
}

// StorageConfig はオブジェクトストレージ設定
type StorageConfig struct {
	Region        string
	Bucket        string
	Endpoint      string // LocalStack等の互換エンドポイント（省略可）
	PublicBaseURL string // 公開URLの基底（例: https://cdn.example.com）
}

// IPInfoConfig は位置情報プロバイダ設定
type IPInfoConfig struct {
	Token string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "ninenotes"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "ninenotes"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Server: ServerConfig{
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("AUTH_JWT_SECRET", ""),
			TokenTTLMin: getEnvAsInt("AUTH_TOKEN_TTL_MIN", 60*24),
			Issuer:      getEnv("AUTH_ISSUER", "ninenotes"),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			ChatModel:          getEnv("OPENAI_CHAT_MODEL", "gpt-4o-mini"),
		},
		Chat: ChatConfig{
			HistoryLimit:       getEnvAsInt("CHAT_HISTORY_LIMIT", 30),
			TopK:               getEnvAsInt("CHAT_TOP_K", 4),
			ContextTokenBudget: getEnvAsInt("CHAT_CONTEXT_TOKEN_BUDGET", 3072),
		},
		Storage: StorageConfig{
			Region:        getEnv("STORAGE_REGION", "ap-northeast-1"),
			Bucket:        getEnv("STORAGE_BUCKET", "ninenotes-avatars"),
			Endpoint:      getEnv("STORAGE_ENDPOINT", ""),
			PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", ""),
		},
		IPInfo: IPInfoConfig{
			Token: getEnv("IPINFO_TOKEN", ""),
		},
	}

	if cfg.Auth.JWTSecret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required")
	}

	return cfg, nil
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
