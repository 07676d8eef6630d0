package vector

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"docqa/llm"

	"github.com/kart-io/logger"
	"github.com/milvus-io/milvus/client/v2/column"
	"github.com/milvus-io/milvus/client/v2/entity"
	"github.com/milvus-io/milvus/client/v2/index"
	"github.com/milvus-io/milvus/client/v2/milvusclient"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	milvusFieldID        = "id"
	milvusFieldEmbedding = "embedding"
	milvusFieldBuiltAt   = "built_at"
	milvusFieldModel     = "model"
	milvusCount          = "count(*)"
)

// MilvusConfig holds Milvus connection configuration
type MilvusConfig struct {
	Address    string        `mapstructure:"address" yaml:"address"`
	Username   string        `mapstructure:"username" yaml:"username"`
	Password   string        `mapstructure:"password" yaml:"password"`
	Database   string        `mapstructure:"database" yaml:"database"`
	Collection string        `mapstructure:"collection" yaml:"collection"`
	Dimension  int           `mapstructure:"dimension" yaml:"dimension"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DefaultMilvusConfig returns default Milvus configuration
func DefaultMilvusConfig() MilvusConfig {
	return MilvusConfig{
		Address:    "localhost:19530",
		Collection: "docqa_chunks",
		Dimension:  1536,
		Timeout:    10 * time.Second,
	}
}

// MilvusIndex implements Index on a Milvus collection with an HNSW cosine index.
// All sessions share one collection, so the dimension is fixed by configuration.
type MilvusIndex struct {
	client *milvusclient.Client
	config MilvusConfig
	mu     sync.Mutex
	ready  bool
}

var _ Index = (*MilvusIndex)(nil)

// NewMilvusIndex connects to Milvus
func NewMilvusIndex(ctx context.Context, cfg MilvusConfig) (*MilvusIndex, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("milvus dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Collection == "" {
		cfg.Collection = DefaultMilvusConfig().Collection
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultMilvusConfig().Timeout
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	c, err := milvusclient.New(dialCtx, &milvusclient.ClientConfig{
		Address:  cfg.Address,
		Username: cfg.Username,
		Password: cfg.Password,
		DBName:   cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to milvus at %s: %v", llm.ErrIndexUnavailable, cfg.Address, err)
	}

	return &MilvusIndex{client: c, config: cfg}, nil
}

// ensureCollection creates and loads the chunk collection once per process
func (m *MilvusIndex) ensureCollection(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready {
		return nil
	}
	name := m.config.Collection

	exists, err := m.client.HasCollection(ctx, milvusclient.NewHasCollectionOption(name))
	if err != nil {
		return milvusError("failed to check collection existence", err)
	}

	if !exists {
		schema := entity.NewSchema().
			WithName(name).
			WithDescription("document chunks partitioned by session").
			WithAutoID(false).
			WithField(entity.NewField().
				WithName(milvusFieldID).
				WithDataType(entity.FieldTypeVarChar).
				WithIsPrimaryKey(true).
				WithMaxLength(128)).
			WithField(entity.NewField().
				WithName(milvusFieldEmbedding).
				WithDataType(entity.FieldTypeFloatVector).
				WithDim(int64(m.config.Dimension))).
			WithField(entity.NewField().WithName(fieldSession).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(fieldOrdinal).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldStart).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldEnd).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(fieldText).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
			WithField(entity.NewField().WithName(fieldWindow).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
			WithField(entity.NewField().WithName(milvusFieldModel).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128)).
			WithField(entity.NewField().WithName(milvusFieldBuiltAt).WithDataType(entity.FieldTypeInt64))

		if err := m.client.CreateCollection(ctx, milvusclient.NewCreateCollectionOption(name, schema)); err != nil {
			return milvusError("failed to create collection", err)
		}

		idx := index.NewHNSWIndex(entity.COSINE, defaultM, defaultEFConstruction)
		createIdxTask, err := m.client.CreateIndex(ctx, milvusclient.NewCreateIndexOption(name, milvusFieldEmbedding, idx))
		if err != nil {
			return milvusError("failed to create index", err)
		}
		if err := createIdxTask.Await(ctx); err != nil {
			return milvusError("failed to wait for index creation", err)
		}
		logger.Infow("created milvus collection", "collection", name, "dim", m.config.Dimension)
	}

	loadTask, err := m.client.LoadCollection(ctx, milvusclient.NewLoadCollectionOption(name))
	if err != nil {
		return milvusError("failed to load collection", err)
	}
	if err := loadTask.Await(ctx); err != nil {
		return milvusError("failed to wait for collection loading", err)
	}

	m.ready = true
	return nil
}

// Build implements Index
func (m *MilvusIndex) Build(ctx context.Context, session string, chunks []llm.Chunk, vectors [][]float32, model string) (int, error) {
	dim, err := validateBuild(session, chunks, vectors)
	if err != nil {
		return 0, err
	}
	if err := checkDim(SessionInfo{Dim: m.config.Dimension}, dim); err != nil {
		return 0, err
	}
	if err := m.ensureCollection(ctx); err != nil {
		return 0, err
	}

	prev, err := m.Info(ctx, session)
	switch {
	case err == nil:
		if err := checkModel(prev, model); err != nil {
			return 0, err
		}
	case !errors.Is(err, llm.ErrUnknownSession):
		return 0, err
	}

	// later duplicates of an ordinal win, matching upsert semantics
	byOrdinal := make(map[int]int, len(chunks))
	for i, c := range chunks {
		byOrdinal[c.Ordinal] = i
	}

	n := len(byOrdinal)
	ids := make([]string, 0, n)
	embeddings := make([][]float32, 0, n)
	sessions := make([]string, 0, n)
	ordinals := make([]int64, 0, n)
	starts := make([]int64, 0, n)
	ends := make([]int64, 0, n)
	texts := make([]string, 0, n)
	windows := make([]string, 0, n)
	models := make([]string, 0, n)
	builtAts := make([]int64, 0, n)

	now := time.Now().Unix()
	for i, c := range chunks {
		if byOrdinal[c.Ordinal] != i {
			continue
		}
		ids = append(ids, sessionKey(session, c.Ordinal))
		embeddings = append(embeddings, vectors[i])
		sessions = append(sessions, session)
		ordinals = append(ordinals, int64(c.Ordinal))
		starts = append(starts, int64(c.Start))
		ends = append(ends, int64(c.End))
		texts = append(texts, c.Text)
		windows = append(windows, c.Window)
		models = append(models, model)
		builtAts = append(builtAts, now)
	}

	_, err = m.client.Upsert(ctx, milvusclient.NewColumnBasedInsertOption(m.config.Collection,
		column.NewColumnVarChar(milvusFieldID, ids),
		column.NewColumnFloatVector(milvusFieldEmbedding, dim, embeddings),
		column.NewColumnVarChar(fieldSession, sessions),
		column.NewColumnInt64(fieldOrdinal, ordinals),
		column.NewColumnInt64(fieldStart, starts),
		column.NewColumnInt64(fieldEnd, ends),
		column.NewColumnVarChar(fieldText, texts),
		column.NewColumnVarChar(fieldWindow, windows),
		column.NewColumnVarChar(milvusFieldModel, models),
		column.NewColumnInt64(milvusFieldBuiltAt, builtAts),
	))
	if err != nil {
		return 0, milvusError("failed to upsert chunks", err)
	}

	// remove ordinals left over from a longer previous build
	quoted := make([]string, len(ids))
	for i, id := range ids {
		quoted[i] = strconv.Quote(id)
	}
	stale := fmt.Sprintf("%s and %s not in [%s]", sessionFilter(session), milvusFieldID, strings.Join(quoted, ","))
	if _, err := m.client.Delete(ctx, milvusclient.NewDeleteOption(m.config.Collection).WithExpr(stale)); err != nil {
		return 0, milvusError("failed to delete stale chunks", err)
	}

	// Flush to ensure data is visible immediately
	flushTask, err := m.client.Flush(ctx, milvusclient.NewFlushOption(m.config.Collection))
	if err != nil {
		return 0, milvusError("failed to flush collection", err)
	}
	if err := flushTask.Await(ctx); err != nil {
		return 0, milvusError("failed to wait for flush", err)
	}

	return n, nil
}

// Search implements Index
func (m *MilvusIndex) Search(ctx context.Context, session string, query []float32, topK int) ([]llm.ScoredChunk, error) {
	if _, err := m.Info(ctx, session); err != nil {
		return nil, err
	}
	if err := checkDim(SessionInfo{Dim: m.config.Dimension}, len(query)); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	results, err := m.client.Search(ctx, milvusclient.NewSearchOption(
		m.config.Collection,
		topK,
		[]entity.Vector{entity.FloatVector(query)},
	).WithANNSField(milvusFieldEmbedding).
		WithSearchParam("ef", "64").
		WithFilter(sessionFilter(session)).
		WithOutputFields(fieldText, fieldWindow, fieldOrdinal, fieldStart, fieldEnd))
	if err != nil {
		return nil, milvusError("failed to search", err)
	}

	if len(results) == 0 {
		return []llm.ScoredChunk{}, nil
	}

	rs := results[0]
	chunks := make([]llm.ScoredChunk, 0, rs.ResultCount)
	for i := 0; i < rs.ResultCount; i++ {
		sc := llm.ScoredChunk{Score: rs.Scores[i], Rank: i}

		for _, field := range rs.Fields {
			switch col := field.(type) {
			case *column.ColumnVarChar:
				switch col.Name() {
				case fieldText:
					sc.Chunk.Text = col.Data()[i]
				case fieldWindow:
					sc.Chunk.Window = col.Data()[i]
				}
			case *column.ColumnInt64:
				switch col.Name() {
				case fieldOrdinal:
					sc.Chunk.Ordinal = int(col.Data()[i])
				case fieldStart:
					sc.Chunk.Start = int(col.Data()[i])
				case fieldEnd:
					sc.Chunk.End = int(col.Data()[i])
				}
			}
		}

		chunks = append(chunks, sc)
	}

	return chunks, nil
}

// Info implements Index
func (m *MilvusIndex) Info(ctx context.Context, session string) (SessionInfo, error) {
	if err := m.ensureCollection(ctx); err != nil {
		return SessionInfo{}, err
	}

	countRS, err := m.client.Query(ctx, milvusclient.NewQueryOption(m.config.Collection).
		WithFilter(sessionFilter(session)).
		WithOutputFields(milvusCount))
	if err != nil {
		return SessionInfo{}, milvusError("failed to count chunks", err)
	}

	var count int64
	if col, ok := countRS.GetColumn(milvusCount).(*column.ColumnInt64); ok && col.Len() > 0 {
		count = col.Data()[0]
	}
	if count == 0 {
		return SessionInfo{}, llm.ErrUnknownSession
	}

	info := SessionInfo{Dim: m.config.Dimension, Count: int(count)}

	metaRS, err := m.client.Query(ctx, milvusclient.NewQueryOption(m.config.Collection).
		WithFilter(sessionFilter(session)).
		WithOutputFields(milvusFieldModel, milvusFieldBuiltAt).
		WithLimit(1))
	if err != nil {
		return SessionInfo{}, milvusError("failed to read session metadata", err)
	}
	if col, ok := metaRS.GetColumn(milvusFieldModel).(*column.ColumnVarChar); ok && col.Len() > 0 {
		info.Model = col.Data()[0]
	}
	if col, ok := metaRS.GetColumn(milvusFieldBuiltAt).(*column.ColumnInt64); ok && col.Len() > 0 {
		info.BuiltAt = time.Unix(col.Data()[0], 0)
	}

	return info, nil
}

// Drop implements Index
func (m *MilvusIndex) Drop(ctx context.Context, session string) error {
	if err := m.ensureCollection(ctx); err != nil {
		return err
	}
	if _, err := m.client.Delete(ctx, milvusclient.NewDeleteOption(m.config.Collection).WithExpr(sessionFilter(session))); err != nil {
		return milvusError("failed to delete session", err)
	}
	return nil
}

// Close closes the Milvus connection
func (m *MilvusIndex) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.config.Timeout)
	defer cancel()
	return m.client.Close(ctx)
}

// sessionFilter returns the boolean expression selecting one session's rows
func sessionFilter(session string) string {
	return fmt.Sprintf("%s == %s", fieldSession, strconv.Quote(session))
}

// milvusError wraps err, mapping transport failures to llm.ErrIndexUnavailable
func milvusError(msg string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %v", llm.ErrIndexUnavailable, msg, err)
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s: %v", llm.ErrIndexUnavailable, msg, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
