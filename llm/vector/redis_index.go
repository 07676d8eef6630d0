package vector

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"docqa/llm"

	"github.com/kart-io/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Default index configuration
	defaultEFConstruction = 200
	defaultM              = 16

	// Field names in Redis hash
	fieldText    = "text"
	fieldVector  = "vector"
	fieldSession = "session"
	fieldOrdinal = "ordinal"
	fieldStart   = "start"
	fieldEnd     = "end"
	fieldWindow  = "window"
	fieldScore   = "score"

	// Field names in the session metadata hash
	metaDim     = "dim"
	metaCount   = "count"
	metaModel   = "model"
	metaBuiltAt = "built_at"
)

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr           string `mapstructure:"addr" yaml:"addr"`
	Password       string `mapstructure:"password" yaml:"password"`
	DB             int    `mapstructure:"db" yaml:"db"`
	PoolSize       int    `mapstructure:"pool_size" yaml:"pool_size"`
	IndexName      string `mapstructure:"index_name" yaml:"index_name"`
	KeyPrefix      string `mapstructure:"key_prefix" yaml:"key_prefix"`
	EFConstruction int    `mapstructure:"ef_construction" yaml:"ef_construction"`
	M              int    `mapstructure:"m" yaml:"m"`
}

// DefaultRedisConfig returns default Redis configuration
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:           "localhost:6379",
		PoolSize:       10,
		IndexName:      "rag-project-index",
		KeyPrefix:      "docqa:",
		EFConstruction: defaultEFConstruction,
		M:              defaultM,
	}
}

// RedisIndex implements Index using Redis with RediSearch vector search.
// Each embedding dimension gets its own HNSW index; a session is bound to one of them.
type RedisIndex struct {
	client  *redis.Client
	config  RedisConfig
	mu      sync.Mutex
	created map[int]bool
}

var _ Index = (*RedisIndex)(nil)

// NewRedisIndex creates a new Redis-based vector index
func NewRedisIndex(ctx context.Context, cfg RedisConfig) (*RedisIndex, error) {
	def := DefaultRedisConfig()
	if cfg.IndexName == "" {
		cfg.IndexName = def.IndexName
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.EFConstruction <= 0 {
		cfg.EFConstruction = def.EFConstruction
	}
	if cfg.M <= 0 {
		cfg.M = def.M
	}

	// RESP2 keeps FT.SEARCH replies as flat arrays
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
		Protocol: 2,
	})

	// Test connection
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: failed to connect to Redis at %s: %v", llm.ErrIndexUnavailable, cfg.Addr, err)
	}

	return &RedisIndex{
		client:  client,
		config:  cfg,
		created: make(map[int]bool),
	}, nil
}

// indexName returns the RediSearch index holding vectors of the given dimension
func (s *RedisIndex) indexName(dim int) string {
	return fmt.Sprintf("%s-%d", s.config.IndexName, dim)
}

// chunkPrefix returns the key prefix covered by the index of the given dimension
func (s *RedisIndex) chunkPrefix(dim int) string {
	return fmt.Sprintf("%s%d:", s.config.KeyPrefix, dim)
}

func (s *RedisIndex) metaKey(session string) string {
	return s.config.KeyPrefix + "session:" + session
}

func (s *RedisIndex) membersKey(session string) string {
	return s.config.KeyPrefix + "members:" + session
}

// ensureIndex creates the HNSW vector index for dim if it doesn't exist
func (s *RedisIndex) ensureIndex(ctx context.Context, dim int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.created[dim] {
		return nil
	}

	indexName := s.indexName(dim)
	_, err := s.client.Do(ctx, "FT.INFO", indexName).Result()
	if err == nil {
		s.created[dim] = true
		return nil
	}
	if isUnavailable(err) {
		return unavailable(err)
	}

	// FT.CREATE rag-project-index-1536
	//   ON HASH PREFIX 1 "docqa:1536:"
	//   SCHEMA vector VECTOR HNSW 10 TYPE FLOAT32 DIM 1536 DISTANCE_METRIC COSINE EF_CONSTRUCTION 200 M 16
	//          session TAG
	//          ordinal NUMERIC SORTABLE
	_, err = s.client.Do(ctx, "FT.CREATE", indexName,
		"ON", "HASH",
		"PREFIX", "1", s.chunkPrefix(dim),
		"SCHEMA",
		fieldVector, "VECTOR", "HNSW", "10",
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(dim),
		"DISTANCE_METRIC", "COSINE",
		"EF_CONSTRUCTION", strconv.Itoa(s.config.EFConstruction),
		"M", strconv.Itoa(s.config.M),
		fieldSession, "TAG",
		fieldOrdinal, "NUMERIC", "SORTABLE",
	).Result()
	if err != nil {
		if isUnavailable(err) {
			return unavailable(err)
		}
		return fmt.Errorf("failed to create index %s: %w", indexName, err)
	}

	logger.Infow("created vector index", "index", indexName, "dim", dim)
	s.created[dim] = true
	return nil
}

// Build implements Index
func (s *RedisIndex) Build(ctx context.Context, session string, chunks []llm.Chunk, vectors [][]float32, model string) (int, error) {
	dim, err := validateBuild(session, chunks, vectors)
	if err != nil {
		return 0, err
	}

	prev, err := s.Info(ctx, session)
	switch {
	case err == nil:
		if err := checkDim(prev, dim); err != nil {
			return 0, err
		}
		if err := checkModel(prev, model); err != nil {
			return 0, err
		}
	case !errors.Is(err, llm.ErrUnknownSession):
		return 0, err
	}

	if err := s.ensureIndex(ctx, dim); err != nil {
		return 0, err
	}

	oldKeys, err := s.client.SMembers(ctx, s.membersKey(session)).Result()
	if err != nil {
		return 0, unavailable(err)
	}

	keys := make(map[string]bool, len(chunks))
	prefix := s.chunkPrefix(dim)

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, c := range chunks {
			key := prefix + sessionKey(session, c.Ordinal)
			keys[key] = true

			pipe.HSet(ctx, key,
				fieldText, c.Text,
				fieldVector, encodeVector(vectors[i]),
				fieldSession, session,
				fieldOrdinal, c.Ordinal,
				fieldStart, c.Start,
				fieldEnd, c.End,
				fieldWindow, c.Window,
			)
		}

		var stale []string
		for _, key := range oldKeys {
			if !keys[key] {
				stale = append(stale, key)
			}
		}
		if len(stale) > 0 {
			pipe.Del(ctx, stale...)
		}

		members := make([]interface{}, 0, len(keys))
		for key := range keys {
			members = append(members, key)
		}
		pipe.Del(ctx, s.membersKey(session))
		pipe.SAdd(ctx, s.membersKey(session), members...)

		pipe.HSet(ctx, s.metaKey(session),
			metaDim, dim,
			metaCount, len(keys),
			metaModel, model,
			metaBuiltAt, time.Now().UTC().Format(time.RFC3339),
		)
		return nil
	})
	if err != nil {
		if isUnavailable(err) {
			return 0, unavailable(err)
		}
		return 0, fmt.Errorf("failed to store chunks: %w", err)
	}

	return len(keys), nil
}

// Search implements Index
func (s *RedisIndex) Search(ctx context.Context, session string, query []float32, topK int) ([]llm.ScoredChunk, error) {
	info, err := s.Info(ctx, session)
	if err != nil {
		return nil, err
	}
	if err := checkDim(info, len(query)); err != nil {
		return nil, err
	}

	if topK <= 0 {
		topK = DefaultTopK
	}

	// FT.SEARCH rag-project-index-1536 "(@session:{id})=>[KNN 10 @vector $vec AS score]"
	//   PARAMS 2 vec "<bytes>"
	//   RETURN 6 text ordinal start end window score
	//   SORTBY score
	//   LIMIT 0 10
	//   DIALECT 2
	queryStr := fmt.Sprintf("(@%s:{%s})=>[KNN %d @%s $vec AS %s]", fieldSession, escapeTag(session), topK, fieldVector, fieldScore)

	result, err := s.client.Do(ctx, "FT.SEARCH", s.indexName(info.Dim), queryStr,
		"PARAMS", "2", "vec", encodeVector(query),
		"RETURN", "6", fieldText, fieldOrdinal, fieldStart, fieldEnd, fieldWindow, fieldScore,
		"SORTBY", fieldScore,
		"LIMIT", "0", strconv.Itoa(topK),
		"DIALECT", "2",
	).Result()
	if err != nil {
		if isUnavailable(err) {
			return nil, unavailable(err)
		}
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results, err := parseSearchReply(result)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search results: %w", err)
	}
	return results, nil
}

// parseSearchReply parses a RESP2 FT.SEARCH reply: count followed by (key, fields) pairs
func parseSearchReply(result interface{}) ([]llm.ScoredChunk, error) {
	values, ok := result.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected result format %T", result)
	}

	var results []llm.ScoredChunk
	for i := 1; i+1 < len(values); i += 2 {
		fields, ok := values[i+1].([]interface{})
		if !ok {
			continue
		}

		var sc llm.ScoredChunk
		for j := 0; j+1 < len(fields); j += 2 {
			name, _ := fields[j].(string)
			value, _ := fields[j+1].(string)

			switch name {
			case fieldText:
				sc.Chunk.Text = value
			case fieldWindow:
				sc.Chunk.Window = value
			case fieldOrdinal:
				sc.Chunk.Ordinal, _ = strconv.Atoi(value)
			case fieldStart:
				sc.Chunk.Start, _ = strconv.Atoi(value)
			case fieldEnd:
				sc.Chunk.End, _ = strconv.Atoi(value)
			case fieldScore:
				// cosine distance to similarity
				distance, err := strconv.ParseFloat(value, 32)
				if err != nil {
					return nil, fmt.Errorf("invalid score %q: %w", value, err)
				}
				sc.Score = float32(1 - distance)
			}
		}
		results = append(results, sc)
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.Ordinal < results[j].Chunk.Ordinal
	})
	for i := range results {
		results[i].Rank = i
	}

	return results, nil
}

// Info implements Index
func (s *RedisIndex) Info(ctx context.Context, session string) (SessionInfo, error) {
	meta, err := s.client.HGetAll(ctx, s.metaKey(session)).Result()
	if err != nil {
		return SessionInfo{}, unavailable(err)
	}
	if len(meta) == 0 {
		return SessionInfo{}, llm.ErrUnknownSession
	}

	info := SessionInfo{Model: meta[metaModel]}
	info.Dim, _ = strconv.Atoi(meta[metaDim])
	info.Count, _ = strconv.Atoi(meta[metaCount])
	info.BuiltAt, _ = time.Parse(time.RFC3339, meta[metaBuiltAt])
	return info, nil
}

// Drop implements Index
func (s *RedisIndex) Drop(ctx context.Context, session string) error {
	keys, err := s.client.SMembers(ctx, s.membersKey(session)).Result()
	if err != nil {
		return unavailable(err)
	}

	keys = append(keys, s.membersKey(session), s.metaKey(session))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisIndex) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// encodeVector encodes a float32 vector as little-endian bytes, the layout RediSearch expects
func encodeVector(vector []float32) []byte {
	buf := make([]byte, 4*len(vector))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	return buf
}

// escapeTag escapes characters that carry meaning inside a TAG query
func escapeTag(s string) string {
	var b strings.Builder
	for _, r := range s {
		if !(r == '_' || r >= '0' && r <= '9' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z') {
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUnavailable reports whether err is a transport failure rather than a server reply
func isUnavailable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var replyErr redis.Error
	return !errors.As(err, &replyErr)
}

// unavailable wraps transport failures in llm.ErrIndexUnavailable
func unavailable(err error) error {
	if !isUnavailable(err) {
		return err
	}
	return fmt.Errorf("%w: %v", llm.ErrIndexUnavailable, err)
}
