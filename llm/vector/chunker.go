package vector

import (
	"fmt"
	"strings"
	"unicode"

	"docqa/llm"
)

// ChunkConfig configures how documents are split into chunks
type ChunkConfig struct {
	ChunkSize    int      // Maximum chunk size in characters (runes)
	ChunkOverlap int      // Characters shared by adjacent chunks
	Mode         llm.Mode // standard or sentence-window
	WindowSize   int      // Sentences on each side kept as window in sentence-window mode
}

// DefaultChunkConfig returns the default chunk configuration
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ChunkSize:    1000,
		ChunkOverlap: 200,
		Mode:         llm.ModeStandard,
		WindowSize:   3,
	}
}

// Validate checks that size and overlap describe a window that always advances
func (c ChunkConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", llm.ErrInvalidChunkConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap must be in [0, %d), got %d", llm.ErrInvalidChunkConfig, c.ChunkSize, c.ChunkOverlap)
	}
	if c.WindowSize < 0 {
		return fmt.Errorf("%w: window size must not be negative, got %d", llm.ErrInvalidChunkConfig, c.WindowSize)
	}
	return nil
}

// Chunk splits document text into ordered chunks.
// The chunks jointly cover the text without gaps and ordinals increase with offset.
// Output depends only on text and config.
func Chunk(text string, config ChunkConfig) ([]llm.Chunk, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, llm.ErrInvalidDocument
	}

	runes := []rune(text)
	if config.Mode == llm.ModeSentenceWindow {
		return sentenceWindowChunks(runes, config.WindowSize), nil
	}
	return windowChunks(runes, config.ChunkSize, config.ChunkOverlap), nil
}

// windowChunks produces fixed-size windows, each starting overlap runes before the previous end
func windowChunks(runes []rune, size, overlap int) []llm.Chunk {
	n := len(runes)
	var chunks []llm.Chunk

	start := 0
	for start < n {
		end := start + size
		if end >= n {
			end = n
		} else {
			end = boundaryBefore(runes, start, end, overlap)
		}

		chunks = append(chunks, llm.Chunk{
			Ordinal: len(chunks),
			Text:    string(runes[start:end]),
			Start:   start,
			End:     end,
		})

		if end == n {
			break
		}
		start = end - overlap
	}

	return chunks
}

// boundaryBefore pulls end back to the last sentence end, or else the last whitespace,
// found in the back half of the window. The result always leaves room for the
// next window to advance past start.
func boundaryBefore(runes []rune, start, end, overlap int) int {
	size := end - start
	lo := start + size/2
	if min := start + overlap + 1; lo < min {
		lo = min
	}
	if lo >= end {
		return end
	}

	for i := end; i > lo; i-- {
		if isSentenceEnd(runes[i-1]) && (i == len(runes) || unicode.IsSpace(runes[i])) {
			return i
		}
	}

	for i := end; i > lo; i-- {
		if unicode.IsSpace(runes[i-1]) {
			return i
		}
	}

	return end
}

// sentenceWindowChunks emits one chunk per sentence with its neighbours as Window
func sentenceWindowChunks(runes []rune, window int) []llm.Chunk {
	spans := sentenceSpans(runes)
	chunks := make([]llm.Chunk, len(spans))

	for i, span := range spans {
		lo := i - window
		if lo < 0 {
			lo = 0
		}
		hi := i + window
		if hi >= len(spans) {
			hi = len(spans) - 1
		}

		chunks[i] = llm.Chunk{
			Ordinal: i,
			Text:    string(runes[span[0]:span[1]]),
			Start:   span[0],
			End:     span[1],
			Window:  strings.TrimSpace(string(runes[spans[lo][0]:spans[hi][1]])),
		}
	}

	return chunks
}

// sentenceSpans splits text into sentence spans that tile it.
// Each span keeps its closing quotes and trailing whitespace.
func sentenceSpans(runes []rune) [][2]int {
	var spans [][2]int
	n := len(runes)
	start := 0

	for i := 0; i < n; i++ {
		if !isSentenceEnd(runes[i]) {
			continue
		}

		next := runeAt(runes, i+1)
		if next != 0 && !unicode.IsSpace(next) && !isCloser(next) {
			continue
		}

		j := i + 1
		for j < n && isCloser(runes[j]) {
			j++
		}
		if j < n && !unicode.IsSpace(runes[j]) {
			continue
		}
		for j < n && unicode.IsSpace(runes[j]) {
			j++
		}

		spans = append(spans, [2]int{start, j})
		start = j
		i = j - 1
	}

	if start < n {
		spans = append(spans, [2]int{start, n})
	}

	return spans
}

// isSentenceEnd checks if a rune is a sentence ending punctuation
func isSentenceEnd(r rune) bool {
	return r == '。' || r == '！' || r == '？' || r == '.' || r == '!' || r == '?'
}

// isCloser reports quotes and brackets that may follow sentence punctuation
func isCloser(r rune) bool {
	return r == '"' || r == '\'' || r == ')' || r == ']' || r == '”' || r == '’'
}

// runeAt safely returns a rune at index or 0 if out of bounds
func runeAt(runes []rune, i int) rune {
	if i < 0 || i >= len(runes) {
		return 0
	}
	return runes[i]
}
