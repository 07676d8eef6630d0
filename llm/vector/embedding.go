package vector

import (
	"context"
	"fmt"
	"sync"
	"time"

	"docqa/llm"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/embedding"
	"github.com/kart-io/logger"
)

// Embedder maps texts to fixed-length vectors.
// Chunks and queries must go through the same Embed call so their vectors are comparable.
type Embedder interface {
	// Embed returns one vector per text, in input order, or an error and no vectors
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector length, or 0 before the first successful call
	Dimension() int

	// Model returns the embedding model identifier
	Model() string
}

// EmbeddingService wraps an eino embedding model for vector generation
type EmbeddingService struct {
	embedder   embedding.Embedder
	model      string
	dim        int
	batchSize  int
	maxRetries uint64
	mu         sync.RWMutex
}

// EmbeddingOption configures an EmbeddingService
type EmbeddingOption func(*EmbeddingService)

// WithDimension fixes the expected vector length
func WithDimension(dim int) EmbeddingOption {
	return func(s *EmbeddingService) {
		s.dim = dim
	}
}

// WithBatchSize caps the number of texts sent per provider request
func WithBatchSize(n int) EmbeddingOption {
	return func(s *EmbeddingService) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithMaxRetries sets how many times a failed batch is retried
func WithMaxRetries(n uint64) EmbeddingOption {
	return func(s *EmbeddingService) {
		s.maxRetries = n
	}
}

// NewEmbeddingService creates a new embedding service
func NewEmbeddingService(embedder embedding.Embedder, model string, opts ...EmbeddingOption) *EmbeddingService {
	s := &EmbeddingService{
		embedder:   embedder,
		model:      model,
		batchSize:  64,
		maxRetries: 2,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Embed generates embedding vectors for texts.
// Either every text gets a vector or an error wrapping llm.ErrEmbeddingProvider is returned.
func (s *EmbeddingService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	for i, text := range texts {
		if text == "" {
			return nil, fmt.Errorf("%w: text %d is empty", llm.ErrEmbeddingProvider, i)
		}
	}

	result := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += s.batchSize {
		end := start + s.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		vectors, err := s.embedBatch(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		result = append(result, vectors...)
	}

	return result, nil
}

// EmbedQuery generates the embedding vector of a single query
func (s *EmbeddingService) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := s.Embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// embedBatch embeds one provider batch with retries and validates the response shape
func (s *EmbeddingService) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var raw [][]float64

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	op := func() error {
		var err error
		raw, err = s.embedder.EmbedStrings(ctx, texts)
		return err
	}
	notify := func(err error, wait time.Duration) {
		logger.Warnw("embedding request failed, retrying", "model", s.model, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(policy, s.maxRetries), ctx), notify)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", llm.ErrEmbeddingProvider, err)
	}

	if len(raw) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", llm.ErrEmbeddingProvider, len(raw), len(texts))
	}

	dim := s.Dimension()
	vectors := make([][]float32, len(raw))
	for i, vec := range raw {
		if len(vec) == 0 {
			return nil, fmt.Errorf("%w: empty vector for text %d", llm.ErrEmbeddingProvider, i)
		}
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) != dim {
			return nil, fmt.Errorf("%w: vector %d has length %d, want %d", llm.ErrEmbeddingProvider, i, len(vec), dim)
		}

		// Convert float64 to float32
		vectors[i] = make([]float32, len(vec))
		for j, v := range vec {
			vectors[i][j] = float32(v)
		}
	}

	s.mu.Lock()
	if s.dim == 0 {
		s.dim = dim
	}
	s.mu.Unlock()

	return vectors, nil
}

// Dimension returns the embedding dimension
func (s *EmbeddingService) Dimension() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dim
}

// Model returns the embedding model identifier
func (s *EmbeddingService) Model() string {
	return s.model
}
