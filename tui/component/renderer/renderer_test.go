package renderer

import (
	"testing"
	"time"

	"docqa/llm"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "abcd…", Truncate("abcdefgh", 5))
	assert.Equal(t, "巴黎是…", Truncate("巴黎是法国的首都", 4))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500μs", FormatDuration(500*time.Microsecond))
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "2.0m", FormatDuration(2*time.Minute))
}

func TestRenderMessages(t *testing.T) {
	r := NewMessageRenderer(nil)
	assert.Contains(t, r.RenderMessages(nil), "Ctrl+L")

	msgs := []Message{
		{Role: schema.User, Content: "What is the capital of France?"},
		{Role: schema.System, Sources: []llm.ScoredChunk{{Chunk: llm.Chunk{Ordinal: 7, Text: "The capital of France is Paris."}, Score: 0.91}}},
		{Role: schema.Assistant},
	}
	out := r.RenderMessages(msgs)
	assert.Contains(t, out, "What is the capital of France?")
	assert.Contains(t, out, "Sources (1):")
	assert.Contains(t, out, "#7")
	assert.Contains(t, out, "Assistant:")

	// clearing the transcript resets the cache
	out = r.RenderMessages(msgs[:1])
	assert.NotContains(t, out, "Sources")
}
