// Package config loads docqa settings from defaults, an optional YAML file,
// environment variables and command line flags, in increasing precedence.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"docqa/llm"
	"docqa/llm/providers"
	"docqa/llm/vector"

	"github.com/kart-io/logger/option"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Name is used for the config file name and the env prefix
const Name = "docqa"

// Index backends
const (
	StoreRedis  = "redis"
	StoreMilvus = "milvus"
	StoreMemory = "memory"
)

// Session registries
const (
	RegistryFile  = "file"
	RegistryRedis = "redis"
)

// Rerank scorers
const (
	RerankLexical = "lexical"
	RerankCohere  = "cohere"
	RerankLLM     = "llm"
)

// Config is the complete docqa configuration
type Config struct {
	Log       *option.LogOption `mapstructure:"log" yaml:"log"`
	Session   SessionConfig     `mapstructure:"session" yaml:"session"`
	Index     IndexConfig       `mapstructure:"index" yaml:"index"`
	Chunk     ChunkConfig       `mapstructure:"chunk" yaml:"chunk"`
	Embedding EmbeddingConfig   `mapstructure:"embedding" yaml:"embedding"`
	Chat      ChatConfig        `mapstructure:"chat" yaml:"chat"`
	Retrieval RetrievalConfig   `mapstructure:"retrieval" yaml:"retrieval"`
	Eval      EvalConfig        `mapstructure:"eval" yaml:"eval"`
	Tracing   TracingConfig     `mapstructure:"tracing" yaml:"tracing"`
}

// SessionConfig selects where the latest session id is handed off
type SessionConfig struct {
	Registry string `mapstructure:"registry" yaml:"registry"`
	File     string `mapstructure:"file" yaml:"file"`
	RedisKey string `mapstructure:"redis_key" yaml:"redis_key"`
}

// IndexConfig selects and configures the vector index
type IndexConfig struct {
	Store  string              `mapstructure:"store" yaml:"store"`
	Redis  vector.RedisConfig  `mapstructure:"redis" yaml:"redis"`
	Milvus vector.MilvusConfig `mapstructure:"milvus" yaml:"milvus"`
}

// ChunkConfig controls document splitting
type ChunkConfig struct {
	Mode    string `mapstructure:"mode" yaml:"mode"`
	Size    int    `mapstructure:"size" yaml:"size"`
	Overlap int    `mapstructure:"overlap" yaml:"overlap"`
	Window  int    `mapstructure:"window" yaml:"window"`
}

// EmbeddingConfig configures the embedding provider
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider" yaml:"provider"`
	APIKey     string `mapstructure:"api_key" yaml:"api_key"`
	BaseURL    string `mapstructure:"base_url" yaml:"base_url"`
	Model      string `mapstructure:"model" yaml:"model"`
	Dimensions int    `mapstructure:"dimensions" yaml:"dimensions"`
	BatchSize  int    `mapstructure:"batch_size" yaml:"batch_size"`
	MaxRetries int    `mapstructure:"max_retries" yaml:"max_retries"`
}

// ChatConfig configures the generation provider and the conversation
type ChatConfig struct {
	Provider    string        `mapstructure:"provider" yaml:"provider"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	BaseURL     string        `mapstructure:"base_url" yaml:"base_url"`
	Model       string        `mapstructure:"model" yaml:"model"`
	MaxRetries  int           `mapstructure:"max_retries" yaml:"max_retries"`
	RetryWait   time.Duration `mapstructure:"retry_wait" yaml:"retry_wait"`
	MemoryTurns int           `mapstructure:"memory_turns" yaml:"memory_turns"`
	Condense    bool          `mapstructure:"condense" yaml:"condense"`
}

// RetrievalConfig configures the two retrieval stages
type RetrievalConfig struct {
	TopK        int    `mapstructure:"top_k" yaml:"top_k"`
	TopN        int    `mapstructure:"top_n" yaml:"top_n"`
	Reranker    string `mapstructure:"reranker" yaml:"reranker"`
	CohereKey   string `mapstructure:"cohere_api_key" yaml:"cohere_api_key"`
	CohereModel string `mapstructure:"cohere_model" yaml:"cohere_model"`
	Concurrency int    `mapstructure:"concurrency" yaml:"concurrency"`
}

// EvalConfig configures the evaluation runner
type EvalConfig struct {
	Dataset  string        `mapstructure:"dataset" yaml:"dataset"`
	Output   string        `mapstructure:"output" yaml:"output"`
	Interval time.Duration `mapstructure:"interval" yaml:"interval"`
	Judge    bool          `mapstructure:"judge" yaml:"judge"`
}

// TracingConfig holds CozeLoop credentials
type TracingConfig struct {
	APIToken    string `mapstructure:"api_token" yaml:"api_token"`
	WorkspaceID string `mapstructure:"workspace_id" yaml:"workspace_id"`
}

// SetDefaults registers every key with its default value
func SetDefaults(v *viper.Viper) {
	logOpt := option.DefaultLogOption()
	v.SetDefault("log.engine", logOpt.Engine)
	v.SetDefault("log.level", logOpt.Level)
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output_paths", []string{"stderr"})

	v.SetDefault("session.registry", RegistryFile)
	v.SetDefault("session.file", ".latest_session")
	v.SetDefault("session.redis_key", "docqa:latest_session")

	redisCfg := vector.DefaultRedisConfig()
	v.SetDefault("index.store", StoreRedis)
	v.SetDefault("index.redis.addr", redisCfg.Addr)
	v.SetDefault("index.redis.password", "")
	v.SetDefault("index.redis.db", redisCfg.DB)
	v.SetDefault("index.redis.pool_size", redisCfg.PoolSize)
	v.SetDefault("index.redis.index_name", redisCfg.IndexName)
	v.SetDefault("index.redis.key_prefix", redisCfg.KeyPrefix)
	v.SetDefault("index.redis.ef_construction", redisCfg.EFConstruction)
	v.SetDefault("index.redis.m", redisCfg.M)

	milvusCfg := vector.DefaultMilvusConfig()
	v.SetDefault("index.milvus.address", milvusCfg.Address)
	v.SetDefault("index.milvus.username", "")
	v.SetDefault("index.milvus.password", "")
	v.SetDefault("index.milvus.database", "")
	v.SetDefault("index.milvus.collection", milvusCfg.Collection)
	v.SetDefault("index.milvus.dimension", milvusCfg.Dimension)
	v.SetDefault("index.milvus.timeout", milvusCfg.Timeout)

	chunkCfg := vector.DefaultChunkConfig()
	v.SetDefault("chunk.mode", string(llm.ModeStandard))
	v.SetDefault("chunk.size", chunkCfg.ChunkSize)
	v.SetDefault("chunk.overlap", chunkCfg.ChunkOverlap)
	v.SetDefault("chunk.window", chunkCfg.WindowSize)

	v.SetDefault("embedding.provider", providers.EmbeddingOpenAI)
	v.SetDefault("embedding.api_key", "")
	v.SetDefault("embedding.base_url", "")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 1536)
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("embedding.max_retries", 2)

	v.SetDefault("chat.provider", providers.ProviderGemini)
	v.SetDefault("chat.api_key", "")
	v.SetDefault("chat.base_url", "")
	v.SetDefault("chat.model", "gemini-2.0-flash")
	v.SetDefault("chat.max_retries", 2)
	v.SetDefault("chat.retry_wait", time.Second)
	v.SetDefault("chat.memory_turns", 20)
	v.SetDefault("chat.condense", true)

	v.SetDefault("retrieval.top_k", vector.DefaultTopK)
	v.SetDefault("retrieval.top_n", 3)
	v.SetDefault("retrieval.reranker", RerankLexical)
	v.SetDefault("retrieval.cohere_api_key", "")
	v.SetDefault("retrieval.cohere_model", "rerank-english-v3.0")
	v.SetDefault("retrieval.concurrency", 4)

	v.SetDefault("eval.dataset", "evals/golden_dataset.csv")
	v.SetDefault("eval.output", "evals/results.jsonl")
	v.SetDefault("eval.interval", 10*time.Second)
	v.SetDefault("eval.judge", false)

	v.SetDefault("tracing.api_token", "")
	v.SetDefault("tracing.workspace_id", "")
}

// wellKnownEnv maps keys to the provider env names users already have set
var wellKnownEnv = map[string]string{
	"embedding.api_key":        "OPENAI_API_KEY",
	"chat.api_key":             "GOOGLE_API_KEY",
	"retrieval.cohere_api_key": "COHERE_API_KEY",
	"index.redis.addr":         "REDIS_ADDR",
	"index.milvus.address":     "MILVUS_ADDR",
	"tracing.api_token":        "COZELOOP_API_TOKEN",
	"tracing.workspace_id":     "COZELOOP_WORKSPACE_ID",
}

// Load reads the configuration into v.
// configFile may be empty, in which case docqa.yaml is searched for and is optional.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(Name)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, "."+Name))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configFile != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(strings.ToUpper(Name))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	for key, env := range wellKnownEnv {
		prefixed := strings.ToUpper(Name + "_" + strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	cfg := &Config{Log: option.DefaultLogOption()}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.complete()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// complete fills values that depend on other settings
func (c *Config) complete() {
	if c.Chat.APIKey == "" && c.Chat.Provider == providers.ProviderOpenAI {
		c.Chat.APIKey = c.Embedding.APIKey
	}
	if c.Index.Milvus.Dimension == 0 {
		c.Index.Milvus.Dimension = c.Embedding.Dimensions
	}
	if c.Embedding.Provider == providers.EmbeddingHashing && c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = 256
	}
}

// Validate checks ranges and enumerations
func (c *Config) Validate() error {
	if _, err := c.ChunkConfig(); err != nil {
		return err
	}

	switch c.Chunk.Mode {
	case string(llm.ModeStandard), string(llm.ModeSentenceWindow):
	default:
		return fmt.Errorf("chunk.mode must be %q or %q, got %q", llm.ModeStandard, llm.ModeSentenceWindow, c.Chunk.Mode)
	}

	switch c.Index.Store {
	case StoreRedis, StoreMilvus, StoreMemory:
	default:
		return fmt.Errorf("index.store must be redis, milvus or memory, got %q", c.Index.Store)
	}

	switch c.Session.Registry {
	case RegistryFile, RegistryRedis:
	default:
		return fmt.Errorf("session.registry must be file or redis, got %q", c.Session.Registry)
	}

	switch c.Retrieval.Reranker {
	case RerankLexical, RerankCohere, RerankLLM:
	default:
		return fmt.Errorf("retrieval.reranker must be lexical, cohere or llm, got %q", c.Retrieval.Reranker)
	}

	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.TopN < 0 {
		return fmt.Errorf("retrieval.top_n must not be negative, got %d", c.Retrieval.TopN)
	}
	if c.Embedding.BatchSize <= 0 {
		return fmt.Errorf("embedding.batch_size must be positive, got %d", c.Embedding.BatchSize)
	}
	if c.Chat.MemoryTurns < 0 {
		return fmt.Errorf("chat.memory_turns must not be negative, got %d", c.Chat.MemoryTurns)
	}
	if c.Eval.Interval < 0 {
		return fmt.Errorf("eval.interval must not be negative, got %s", c.Eval.Interval)
	}
	return nil
}

// Mode returns the retrieval mode
func (c *Config) Mode() llm.Mode {
	return llm.ParseMode(c.Chunk.Mode)
}

// ChunkConfig returns the chunker settings
func (c *Config) ChunkConfig() (vector.ChunkConfig, error) {
	cc := vector.ChunkConfig{
		ChunkSize:    c.Chunk.Size,
		ChunkOverlap: c.Chunk.Overlap,
		Mode:         c.Mode(),
		WindowSize:   c.Chunk.Window,
	}
	return cc, cc.Validate()
}

// EmbeddingProvider returns the provider factory settings
func (c *Config) EmbeddingProvider() *providers.EmbeddingConfig {
	return &providers.EmbeddingConfig{
		Provider:   c.Embedding.Provider,
		APIKey:     c.Embedding.APIKey,
		BaseURL:    c.Embedding.BaseURL,
		Model:      c.Embedding.Model,
		Dimensions: c.Embedding.Dimensions,
	}
}

// ChatProvider returns the chat model factory settings
func (c *Config) ChatProvider() *providers.ChatModelConfig {
	return &providers.ChatModelConfig{
		Provider: c.Chat.Provider,
		APIKey:   c.Chat.APIKey,
		BaseURL:  c.Chat.BaseURL,
		Model:    c.Chat.Model,
	}
}

// TracingProvider returns the tracing settings
func (c *Config) TracingProvider() *providers.TracingConfig {
	return &providers.TracingConfig{
		APIToken:    c.Tracing.APIToken,
		WorkspaceID: c.Tracing.WorkspaceID,
		FlushWait:   2 * time.Second,
	}
}

// Dump renders the configuration as YAML with secrets masked
func (c *Config) Dump() ([]byte, error) {
	masked := *c
	masked.Embedding.APIKey = mask(c.Embedding.APIKey)
	masked.Chat.APIKey = mask(c.Chat.APIKey)
	masked.Retrieval.CohereKey = mask(c.Retrieval.CohereKey)
	masked.Index.Redis.Password = mask(c.Index.Redis.Password)
	masked.Index.Milvus.Password = mask(c.Index.Milvus.Password)
	masked.Tracing.APIToken = mask(c.Tracing.APIToken)

	out, err := yaml.Marshal(&masked)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	return out, nil
}

func mask(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "****"
	default:
		return secret[:4] + "****"
	}
}
