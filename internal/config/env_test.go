package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		if old, ok := os.LookupEnv(k); ok {
			require.NoError(t, os.Unsetenv(k))
			t.Cleanup(func() { _ = os.Setenv(k, old) })
		}
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	clearEnv(t, "DATABASE_URL", "EMBED_DIM", "CHUNK_SIZE", "CHUNK_OVERLAP", "CORS_ORIGINS",
		"BUCKET_NAME", "MAX_UPLOAD_MB", "AUTO_MIGRATE", "SEARCH_THRESHOLD", "EMBED_CACHE_TTL_MIN")

	cfg := LoadConfig()

	assert.Equal(t, 384, cfg.EmbedDim)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, int64(64<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 60*time.Minute, cfg.EmbedCacheTTL)
	assert.True(t, cfg.AutoMigrate)
	assert.InDelta(t, 0.5, cfg.SearchThreshold, 1e-9)
	assert.False(t, cfg.BlobStorageEnabled())
	assert.Empty(t, cfg.Warnings)
	assert.EqualError(t, cfg.RequireDatabase(), "DATABASE_URL not set")
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DATABASE_URL", "postgres://localhost/docsift")
	t.Setenv("CHUNK_SIZE", "500")
	t.Setenv("CORS_ORIGINS", " https://a.test, ,https://b.test ")
	t.Setenv("BUCKET_NAME", "docs")
	t.Setenv("AUTO_MIGRATE", "false")
	t.Setenv("SEMANTIC_WEIGHT", "0.9")

	cfg := LoadConfig()

	assert.Equal(t, 500, cfg.ChunkSize)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.CORSOrigins)
	assert.True(t, cfg.BlobStorageEnabled())
	assert.False(t, cfg.AutoMigrate)
	assert.InDelta(t, 0.9, cfg.SemanticWeight, 1e-9)
	assert.NoError(t, cfg.RequireDatabase())
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EMBED_DIM", "wide")
	t.Setenv("SEARCH_THRESHOLD", "high")
	t.Setenv("AUTO_MIGRATE", "sometimes")

	cfg := LoadConfig()

	assert.Equal(t, 384, cfg.EmbedDim)
	assert.InDelta(t, 0.5, cfg.SearchThreshold, 1e-9)
	assert.True(t, cfg.AutoMigrate)
	require.Len(t, cfg.Warnings, 3)
	assert.Contains(t, strings.Join(cfg.Warnings, "\n"), `EMBED_DIM="wide" not an int`)
}
