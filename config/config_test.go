package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"docqa/llm"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	assert.Equal(t, StoreRedis, cfg.Index.Store)
	assert.Equal(t, "rag-project-index", cfg.Index.Redis.IndexName)
	assert.Equal(t, 1000, cfg.Chunk.Size)
	assert.Equal(t, 200, cfg.Chunk.Overlap)
	assert.Equal(t, 3, cfg.Chunk.Window)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	assert.Equal(t, 3, cfg.Retrieval.TopN)
	assert.Equal(t, 20, cfg.Chat.MemoryTurns)
	assert.Equal(t, 10*time.Second, cfg.Eval.Interval)
	assert.Equal(t, llm.ModeStandard, cfg.Mode())
	assert.Equal(t, "gemini-2.0-flash", cfg.Chat.Model)
	assert.Equal(t, "stderr", cfg.Log.OutputPaths[0])
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "docqa.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
chunk:
  mode: sentence-window
  window: 2
retrieval:
  top_k: 20
index:
  store: memory
eval:
  interval: 1s
`), 0o644))

	t.Setenv("DOCQA_RETRIEVAL_TOP_N", "5")
	t.Setenv("OPENAI_API_KEY", "sk-test-openai")
	t.Setenv("REDIS_ADDR", "redis:6380")

	cfg, err := Load(viper.New(), path)
	require.NoError(t, err)

	assert.Equal(t, llm.ModeSentenceWindow, cfg.Mode())
	assert.Equal(t, 2, cfg.Chunk.Window)
	assert.Equal(t, 20, cfg.Retrieval.TopK)
	assert.Equal(t, 5, cfg.Retrieval.TopN)
	assert.Equal(t, StoreMemory, cfg.Index.Store)
	assert.Equal(t, time.Second, cfg.Eval.Interval)
	assert.Equal(t, "sk-test-openai", cfg.Embedding.APIKey)
	assert.Equal(t, "redis:6380", cfg.Index.Redis.Addr)
}

func TestPrefixedEnvWinsOverWellKnown(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "generic")
	t.Setenv("DOCQA_EMBEDDING_API_KEY", "specific")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, "specific", cfg.Embedding.APIKey)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(viper.New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg, err := Load(viper.New(), "")
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap not below size", func(c *Config) { c.Chunk.Overlap = c.Chunk.Size }},
		{"zero chunk size", func(c *Config) { c.Chunk.Size = 0 }},
		{"unknown mode", func(c *Config) { c.Chunk.Mode = "paragraph" }},
		{"unknown store", func(c *Config) { c.Index.Store = "sqlite" }},
		{"unknown registry", func(c *Config) { c.Session.Registry = "etcd" }},
		{"unknown reranker", func(c *Config) { c.Retrieval.Reranker = "colbert" }},
		{"zero top k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"negative top n", func(c *Config) { c.Retrieval.TopN = -1 }},
		{"zero batch", func(c *Config) { c.Embedding.BatchSize = 0 }},
		{"negative memory", func(c *Config) { c.Chat.MemoryTurns = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDumpMasksSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-1234567890abcdef")
	t.Setenv("COHERE_API_KEY", "short")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)

	out, err := cfg.Dump()
	require.NoError(t, err)
	assert.NotContains(t, string(out), "sk-1234567890abcdef")
	assert.NotContains(t, string(out), "short")

	var decoded map[string]any
	require.NoError(t, yaml.Unmarshal(out, &decoded))
	embedding := decoded["embedding"].(map[string]any)
	assert.Equal(t, "sk-1****", embedding["api_key"])
	retrieval := decoded["retrieval"].(map[string]any)
	assert.Equal(t, "****", retrieval["cohere_api_key"])

	// the original is left untouched
	assert.Equal(t, "sk-1234567890abcdef", cfg.Embedding.APIKey)
}

func TestHashingEmbeddingDefaults(t *testing.T) {
	t.Setenv("DOCQA_EMBEDDING_PROVIDER", "hashing")
	t.Setenv("DOCQA_EMBEDDING_DIMENSIONS", "0")

	cfg, err := Load(viper.New(), "")
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Embedding.Dimensions)
	assert.Equal(t, "hashing-256", cfg.EmbeddingProvider().ModelName())
}
