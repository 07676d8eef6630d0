package vector

import (
	"errors"
	"strings"
	"testing"

	"docqa/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const capitals = "The capital of France is Paris. It is known for the Eiffel Tower. " +
	"Berlin is the capital of Germany. Madrid is the capital of Spain and sits on a high plateau."

func assertTiles(t *testing.T, text string, chunks []llm.Chunk) {
	t.Helper()
	runes := []rune(text)

	require.NotEmpty(t, chunks)
	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, len(runes), chunks[len(chunks)-1].End)

	for i, c := range chunks {
		assert.Equal(t, i, c.Ordinal)
		assert.Equal(t, string(runes[c.Start:c.End]), c.Text)
		if i > 0 {
			prev := chunks[i-1]
			assert.Greater(t, c.Start, prev.Start, "chunk %d must advance", i)
			assert.LessOrEqual(t, c.Start, prev.End, "gap before chunk %d", i)
		}
	}
}

func TestChunkStandard(t *testing.T) {
	cfg := ChunkConfig{ChunkSize: 50, ChunkOverlap: 10, Mode: llm.ModeStandard}

	chunks, err := Chunk(capitals, cfg)
	require.NoError(t, err)
	assertTiles(t, capitals, chunks)

	for _, c := range chunks {
		assert.LessOrEqual(t, len([]rune(c.Text)), 50)
	}

	found := false
	for _, c := range chunks {
		if strings.Contains(c.Text, "The capital of France is Paris.") {
			found = true
		}
	}
	assert.True(t, found, "the Paris sentence should stay in one chunk")
}

func TestChunkDeterministic(t *testing.T) {
	cfg := ChunkConfig{ChunkSize: 40, ChunkOverlap: 8}

	a, err := Chunk(capitals, cfg)
	require.NoError(t, err)
	b, err := Chunk(capitals, cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestChunkShortText(t *testing.T) {
	chunks, err := Chunk("Paris.", DefaultChunkConfig())
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Paris.", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Ordinal)
}

func TestChunkWithoutBoundaries(t *testing.T) {
	text := strings.Repeat("x", 95)

	chunks, err := Chunk(text, ChunkConfig{ChunkSize: 20, ChunkOverlap: 5})
	require.NoError(t, err)
	assertTiles(t, text, chunks)

	for i := 1; i < len(chunks); i++ {
		assert.Equal(t, chunks[i-1].End-5, chunks[i].Start)
	}
}

func TestChunkMultibyte(t *testing.T) {
	text := "巴黎是法国的首都。柏林是德国的首都。马德里是西班牙的首都。"

	chunks, err := Chunk(text, ChunkConfig{ChunkSize: 10, ChunkOverlap: 2})
	require.NoError(t, err)
	assertTiles(t, text, chunks)
}

func TestChunkEmptyDocument(t *testing.T) {
	for _, text := range []string{"", "   \n\t "} {
		_, err := Chunk(text, DefaultChunkConfig())
		assert.True(t, errors.Is(err, llm.ErrInvalidDocument), "%q", text)
	}
}

func TestChunkInvalidConfig(t *testing.T) {
	tests := []ChunkConfig{
		{ChunkSize: 0, ChunkOverlap: 0},
		{ChunkSize: 10, ChunkOverlap: 10},
		{ChunkSize: 10, ChunkOverlap: -1},
		{ChunkSize: 10, ChunkOverlap: 2, WindowSize: -1},
	}
	for _, cfg := range tests {
		_, err := Chunk(capitals, cfg)
		assert.ErrorIs(t, err, llm.ErrInvalidChunkConfig, "%+v", cfg)
	}
}

func TestChunkSentenceWindow(t *testing.T) {
	cfg := ChunkConfig{ChunkSize: 50, ChunkOverlap: 10, Mode: llm.ModeSentenceWindow, WindowSize: 1}

	chunks, err := Chunk(capitals, cfg)
	require.NoError(t, err)
	assertTiles(t, capitals, chunks)
	require.Len(t, chunks, 4)

	assert.Equal(t, "The capital of France is Paris. ", chunks[0].Text)
	assert.Equal(t, "The capital of France is Paris. It is known for the Eiffel Tower.", chunks[0].Window)
	assert.Equal(t,
		"The capital of France is Paris. It is known for the Eiffel Tower. Berlin is the capital of Germany.",
		chunks[1].Window)
	assert.True(t, strings.HasPrefix(chunks[3].Window, "Berlin"))
}

func TestSentenceSpans(t *testing.T) {
	text := `He said "stop." Then left. Version 1.5 shipped! Trailing`
	runes := []rune(text)

	var got []string
	for _, s := range sentenceSpans(runes) {
		got = append(got, string(runes[s[0]:s[1]]))
	}

	assert.Equal(t, []string{`He said "stop." `, "Then left. ", "Version 1.5 shipped! ", "Trailing"}, got)
}
