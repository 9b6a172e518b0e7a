package container

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/ninenotes/internal/platform/config"
	"github.com/jinford/ninenotes/internal/platform/database"
)

func TestNewContainerWithDB_RejectsEmbeddingDimensionMismatch(t *testing.T) {
	cfg := &config.Config{
		Auth: config.AuthConfig{
			JWTSecret:   "test-secret",
			TokenTTLMin: 60,
			Issuer:      "ninenotes",
		},
		OpenAI: config.OpenAIConfig{
			APIKey:             "test-key",
			EmbeddingModel:     "text-embedding-3-small",
			EmbeddingDimension: 768,
		},
	}

	// note_embeddings の vector 次元と食い違う設定は起動時に弾く
	cont, err := NewContainerWithDB(context.Background(), cfg, &database.Database{})
	require.Error(t, err)
	assert.Nil(t, cont)
	assert.Contains(t, err.Error(), "768")
}
