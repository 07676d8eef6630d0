package vector

import (
	"context"
	"testing"

	"docqa/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunks(texts ...string) []llm.Chunk {
	chunks := make([]llm.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = llm.Chunk{Ordinal: i, Text: text}
	}
	return chunks
}

func TestMemoryIndexSearch(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	chunks := testChunks("north", "east", "also north", "south")
	vectors := [][]float32{{0, 1}, {1, 0}, {0, 2}, {0, -1}}

	n, err := idx.Build(ctx, "s1", chunks, vectors, "m")
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	results, err := idx.Search(ctx, "s1", []float32{0, 1}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// equal similarity keeps ordinal order
	assert.Equal(t, "north", results[0].Chunk.Text)
	assert.Equal(t, "also north", results[1].Chunk.Text)
	assert.Equal(t, "east", results[2].Chunk.Text)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	for i, r := range results {
		assert.Equal(t, i, r.Rank)
	}
}

func TestMemoryIndexRebuildIsIdempotent(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	chunks := testChunks("a", "b", "c")
	vectors := [][]float32{{1, 0}, {0, 1}, {1, 1}}

	first, err := idx.Build(ctx, "s1", chunks, vectors, "m")
	require.NoError(t, err)
	second, err := idx.Build(ctx, "s1", chunks, vectors, "m")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	// a shorter document replaces stale ordinals
	n, err := idx.Build(ctx, "s1", chunks[:1], vectors[:1], "m")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	info, err := idx.Info(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, info.Count)
	assert.Equal(t, 2, info.Dim)
}

func TestMemoryIndexSessionScope(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	_, err := idx.Search(ctx, "never-built", []float32{1}, 1)
	assert.ErrorIs(t, err, llm.ErrUnknownSession)

	_, err = idx.Build(ctx, "a", testChunks("only in a"), [][]float32{{1, 0}}, "m")
	require.NoError(t, err)
	_, err = idx.Build(ctx, "b", testChunks("only in b"), [][]float32{{1, 0}}, "m")
	require.NoError(t, err)

	results, err := idx.Search(ctx, "b", []float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "only in b", results[0].Chunk.Text)

	require.NoError(t, idx.Drop(ctx, "a"))
	_, err = idx.Search(ctx, "a", []float32{1, 0}, 10)
	assert.ErrorIs(t, err, llm.ErrUnknownSession)
}

func TestMemoryIndexDimensionFixedPerSession(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	_, err := idx.Build(ctx, "s1", testChunks("a"), [][]float32{{1, 0}}, "m")
	require.NoError(t, err)

	_, err = idx.Build(ctx, "s1", testChunks("a"), [][]float32{{1, 0, 0}}, "m")
	assert.ErrorIs(t, err, llm.ErrDimensionMismatch)

	_, err = idx.Search(ctx, "s1", []float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, llm.ErrDimensionMismatch)

	_, err = idx.Build(ctx, "s2", testChunks("a", "b"), [][]float32{{1, 0}, {1}}, "m")
	assert.ErrorIs(t, err, llm.ErrDimensionMismatch)

	_, err = idx.Build(ctx, "s3", nil, nil, "m")
	assert.ErrorIs(t, err, llm.ErrInvalidDocument)
}

func TestMemoryIndexModelFixedPerSession(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	_, err := idx.Build(ctx, "s1", testChunks("a"), [][]float32{{1, 0}}, "model-a")
	require.NoError(t, err)

	_, err = idx.Build(ctx, "s1", testChunks("a"), [][]float32{{1, 0}}, "model-b")
	assert.ErrorIs(t, err, llm.ErrEmbeddingModelMismatch)

	info, err := idx.Info(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "model-a", info.Model, "a rejected build leaves the session untouched")

	_, err = idx.Build(ctx, "s2", testChunks("a"), [][]float32{{1, 0}}, "model-b")
	assert.NoError(t, err, "other sessions pick their own model")
}
