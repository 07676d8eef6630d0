package providers

import (
	"context"
	"fmt"
	"strings"

	"docqa/llm/vector"

	openaiEmbed "github.com/cloudwego/eino-ext/components/embedding/openai"
	geminiModel "github.com/cloudwego/eino-ext/components/model/gemini"
	openaiModel "github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino-ext/components/model/qwen"
	einoEmbedding "github.com/cloudwego/eino/components/embedding"
	"github.com/cloudwego/eino/components/model"
	"google.golang.org/genai"
)

// Chat model providers
const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderQwen   = "qwen"
)

// Embedding providers
const (
	EmbeddingOpenAI  = "openai"
	EmbeddingHashing = "hashing"
)

const (
	defaultGeminiModel    = "gemini-2.0-flash"
	defaultOpenAIBaseURL  = "https://api.openai.com/v1"
	defaultOpenAIModel    = "gpt-4o-mini"
	defaultQwenBaseURL    = "https://dashscope.aliyuncs.com/compatible-mode/v1"
	defaultQwenModel      = "qwen-plus"
	defaultEmbeddingModel = "text-embedding-3-small"
)

// ChatModelConfig defines the configuration for creating a chat model.
type ChatModelConfig struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

// NewChatModel creates a chat model for the configured provider, Gemini by default.
func NewChatModel(ctx context.Context, config *ChatModelConfig) (model.BaseChatModel, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required for chat provider %q", config.Provider)
	}

	switch strings.ToLower(config.Provider) {
	case "", ProviderGemini:
		return newGeminiModel(ctx, config)
	case ProviderOpenAI:
		return openaiModel.NewChatModel(ctx, &openaiModel.ChatModelConfig{
			APIKey:  config.APIKey,
			BaseURL: orDefault(config.BaseURL, defaultOpenAIBaseURL),
			Model:   orDefault(config.Model, defaultOpenAIModel),
		})
	case ProviderQwen:
		return qwen.NewChatModel(ctx, &qwen.ChatModelConfig{
			APIKey:  config.APIKey,
			BaseURL: orDefault(config.BaseURL, defaultQwenBaseURL),
			Model:   orDefault(config.Model, defaultQwenModel),
		})
	default:
		return nil, fmt.Errorf("unknown chat provider %q", config.Provider)
	}
}

func newGeminiModel(ctx context.Context, config *ChatModelConfig) (model.BaseChatModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	return geminiModel.NewChatModel(ctx, &geminiModel.Config{
		Client: client,
		Model:  strings.TrimPrefix(orDefault(config.Model, defaultGeminiModel), "models/"),
	})
}

// EmbeddingConfig defines the configuration for creating an embedding model.
type EmbeddingConfig struct {
	Provider   string
	APIKey     string
	BaseURL    string
	Model      string
	Dimensions int
}

// ModelName returns the model identifier recorded with a session
func (c *EmbeddingConfig) ModelName() string {
	if strings.ToLower(c.Provider) == EmbeddingHashing {
		dims := c.Dimensions
		if dims <= 0 {
			dims = 256
		}
		return fmt.Sprintf("hashing-%d", dims)
	}
	return orDefault(c.Model, defaultEmbeddingModel)
}

// NewEmbeddingModel creates an embedding model, OpenAI-compatible by default.
// The hashing provider runs offline and needs no key.
func NewEmbeddingModel(ctx context.Context, config *EmbeddingConfig) (einoEmbedding.Embedder, error) {
	switch strings.ToLower(config.Provider) {
	case EmbeddingHashing:
		return vector.NewHashingEmbedder(config.Dimensions), nil
	case "", EmbeddingOpenAI:
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", config.Provider)
	}

	if config.APIKey == "" {
		return nil, fmt.Errorf("API key is required for embedding provider %q", EmbeddingOpenAI)
	}

	cfg := &openaiEmbed.EmbeddingConfig{
		APIKey:  config.APIKey,
		BaseURL: orDefault(config.BaseURL, defaultOpenAIBaseURL),
		Model:   config.ModelName(),
	}
	if config.Dimensions > 0 {
		dims := config.Dimensions
		cfg.Dimensions = &dims
	}
	return openaiEmbed.NewEmbedder(ctx, cfg)
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
