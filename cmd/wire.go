package cmd

import (
	"context"
	"fmt"

	"docqa/config"
	"docqa/eval"
	"docqa/llm"
	"docqa/llm/engine"
	"docqa/llm/generator"
	"docqa/llm/memory"
	"docqa/llm/providers"
	"docqa/llm/rerank"
	"docqa/llm/vector"
	"docqa/session"

	"github.com/cloudwego/eino/components/model"
	"github.com/kart-io/logger"
	"github.com/redis/go-redis/v9"
)

// stack is the set of components built from the config
type stack struct {
	index     vector.Index
	embedder  *vector.EmbeddingService
	registry  session.Registry
	chatModel model.BaseChatModel
	closers   []func() error
}

func (s *stack) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warnw("failed to close", "error", err)
		}
	}
}

// newStack connects the index and registry and creates the models.
// withChat is false for commands that never generate.
func newStack(ctx context.Context, cfg *config.Config, withChat bool) (*stack, error) {
	s := &stack{}
	ok := false
	defer func() {
		if !ok {
			s.Close()
		}
	}()

	index, err := newIndex(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.index = index
	s.closers = append(s.closers, index.Close)

	registry, closeRegistry, err := newRegistry(cfg)
	if err != nil {
		return nil, err
	}
	s.registry = registry
	s.closers = append(s.closers, closeRegistry)

	embedder, err := newEmbedder(ctx, cfg)
	if err != nil {
		return nil, err
	}
	s.embedder = embedder

	if withChat {
		chatModel, err := providers.NewChatModel(ctx, cfg.ChatProvider())
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model: %w", err)
		}
		s.chatModel = chatModel
	}

	ok = true
	return s, nil
}

func newIndex(ctx context.Context, cfg *config.Config) (vector.Index, error) {
	switch cfg.Index.Store {
	case config.StoreMilvus:
		return vector.NewMilvusIndex(ctx, cfg.Index.Milvus)
	case config.StoreMemory:
		return vector.NewMemoryIndex(), nil
	default:
		return vector.NewRedisIndex(ctx, cfg.Index.Redis)
	}
}

func newRegistry(cfg *config.Config) (session.Registry, func() error, error) {
	if cfg.Session.Registry != config.RegistryRedis {
		return session.NewFileRegistry(cfg.Session.File), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Index.Redis.Addr,
		Password: cfg.Index.Redis.Password,
		DB:       cfg.Index.Redis.DB,
		Protocol: 2,
	})
	return session.NewRedisRegistry(client, cfg.Session.RedisKey), client.Close, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config) (*vector.EmbeddingService, error) {
	ec := cfg.EmbeddingProvider()
	em, err := providers.NewEmbeddingModel(ctx, ec)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding model: %w", err)
	}

	opts := []vector.EmbeddingOption{
		vector.WithBatchSize(cfg.Embedding.BatchSize),
		vector.WithMaxRetries(uint64(cfg.Embedding.MaxRetries)),
	}
	if cfg.Embedding.Dimensions > 0 {
		opts = append(opts, vector.WithDimension(cfg.Embedding.Dimensions))
	}
	return vector.NewEmbeddingService(em, ec.ModelName(), opts...), nil
}

func newReranker(cfg *config.Config, chatModel model.BaseChatModel) (*rerank.Reranker, error) {
	var scorer rerank.Scorer
	switch cfg.Retrieval.Reranker {
	case config.RerankCohere:
		cohere, err := rerank.NewCohereScorer(cfg.Retrieval.CohereKey, cfg.Retrieval.CohereModel)
		if err != nil {
			return nil, err
		}
		scorer = cohere
	case config.RerankLLM:
		if chatModel == nil {
			return nil, fmt.Errorf("llm reranker needs a chat model")
		}
		scorer = rerank.NewLLMScorer(chatModel, cfg.Retrieval.Concurrency)
	default:
		scorer = rerank.NewLexicalScorer()
	}
	return rerank.New(scorer, cfg.Retrieval.TopN), nil
}

// newEngine builds an engine for sessionID in the given retrieval mode
func newEngine(cfg *config.Config, s *stack, sessionID string, mode llm.Mode) (*engine.Engine, error) {
	chunkCfg, err := cfg.ChunkConfig()
	if err != nil {
		return nil, err
	}
	chunkCfg.Mode = mode

	ecfg := &engine.Config{
		Session:  sessionID,
		Mode:     mode,
		Chunk:    chunkCfg,
		TopK:     cfg.Retrieval.TopK,
		Index:    s.index,
		Embedder: s.embedder,
		Memory:   memory.NewStore(memory.WithMaxTurns(cfg.Chat.MemoryTurns)),
		Registry: s.registry,
	}

	// a stack without a chat model can build but never answers
	ecfg.Generator = generator.New(s.chatModel, mode,
		generator.WithMaxRetries(uint64(cfg.Chat.MaxRetries)),
		generator.WithRetryWait(cfg.Chat.RetryWait),
	)

	if s.chatModel != nil {
		reranker, err := newReranker(cfg, s.chatModel)
		if err != nil {
			return nil, err
		}
		ecfg.Reranker = reranker
		if cfg.Chat.Condense {
			ecfg.Condenser = s.chatModel
		}
	}
	return engine.New(ecfg)
}

// resolveSession returns the session to query and the mode it was built in.
// An empty sessionID means the registry's latest session, which must share the
// configured embedding model. Sessions the registry does not know use the configured mode.
func resolveSession(ctx context.Context, cfg *config.Config, s *stack, sessionID string, modeSet bool) (string, llm.Mode, error) {
	if sessionID == "" {
		rec, err := eval.ResolveSession(ctx, s.registry, s.embedder.Model())
		if err != nil {
			return "", "", fmt.Errorf("no session given and no latest session: %w", err)
		}
		mode, err := sessionMode(rec, cfg.Mode(), modeSet)
		return rec.ID, mode, err
	}

	rec, err := s.registry.Resolve(ctx)
	if err != nil || rec.ID != sessionID {
		return sessionID, cfg.Mode(), nil
	}
	mode, err := sessionMode(rec, cfg.Mode(), modeSet)
	return sessionID, mode, err
}

// sessionMode adopts the mode a session was built in.
// A mode given on the command line must agree with it.
func sessionMode(rec session.Record, configured llm.Mode, modeSet bool) (llm.Mode, error) {
	if rec.Mode == "" {
		return configured, nil
	}
	if modeSet && rec.Mode != configured {
		return "", fmt.Errorf("%w: session %s was built in %s mode, --mode is %s",
			llm.ErrModeMismatch, rec.ID, rec.Mode, configured)
	}
	return rec.Mode, nil
}

// modeFlagSet reports whether --mode was given
func modeFlagSet() bool {
	return rootCmd.PersistentFlags().Changed("mode")
}
