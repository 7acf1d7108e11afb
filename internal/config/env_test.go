package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/kaleem")
	t.Setenv("JWT_SECRET", "s3cr3t")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "company-data", cfg.BucketName)
	assert.Equal(t, "company_", cfg.CollectionPrefix)
	assert.Equal(t, "Cosine", cfg.VectorDistance)
	assert.Equal(t, 384, cfg.EmbedDim)
	assert.Equal(t, "openai", cfg.EmbedProvider)
	assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", cfg.EmbedModel)
	assert.Equal(t, 500, cfg.ChunkMaxTokens)
	assert.Equal(t, time.Hour, cfg.SignedURLTTL)
	assert.False(t, cfg.RecreateCollectionOnUpload)
	assert.True(t, cfg.DeleteBlobOnSourceDelete)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("EMBED_DIM", "768")
	t.Setenv("SIGNED_URL_TTL", "15m")
	t.Setenv("RECREATE_COLLECTION_ON_UPLOAD", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")
	t.Setenv("APP_ENV", "production")
	t.Setenv("CHUNK_MAX_TOKENS", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 768, cfg.EmbedDim)
	assert.Equal(t, 15*time.Minute, cfg.SignedURLTTL)
	assert.True(t, cfg.RecreateCollectionOnUpload)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CORSAllowedOrigins)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, 500, cfg.ChunkMaxTokens)
}

func TestGeminiModelDefault(t *testing.T) {
	setRequired(t)
	t.Setenv("EMBED_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-004", cfg.EmbedModel)
	assert.Equal(t, 768, cfg.EmbedDim)
}

func TestExplicitEmbedDimWins(t *testing.T) {
	setRequired(t)
	t.Setenv("EMBED_PROVIDER", "gemini")
	t.Setenv("GEMINI_API_KEY", "g-key")
	t.Setenv("EMBED_DIM", "256")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.EmbedDim)
}

func TestLoadConfigMissingKeys(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		key  string
	}{
		{"database", map[string]string{"DATABASE_URL": "", "JWT_SECRET": "x"}, "DATABASE_URL"},
		{"jwt", map[string]string{"DATABASE_URL": "memory://", "JWT_SECRET": ""}, "JWT_SECRET"},
		{"blob backend", map[string]string{"DATABASE_URL": "memory://", "JWT_SECRET": "x", "BLOB_BACKEND": "ftp"}, "BLOB_BACKEND"},
		{"vector backend", map[string]string{"DATABASE_URL": "memory://", "JWT_SECRET": "x", "VECTOR_BACKEND": "faiss"}, "VECTOR_BACKEND"},
		{"gemini key", map[string]string{"DATABASE_URL": "memory://", "JWT_SECRET": "x", "EMBED_PROVIDER": "gemini", "GEMINI_API_KEY": ""}, "GEMINI_API_KEY"},
		{"embed dim", map[string]string{"DATABASE_URL": "memory://", "JWT_SECRET": "x", "EMBED_DIM": "0"}, "EMBED_DIM"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig()
			var cfgErr *Error
			require.True(t, errors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tc.key, cfgErr.Key)
		})
	}
}
