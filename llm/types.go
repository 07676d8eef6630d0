package llm

// Chunk is a contiguous span of document text.
// Start and End are rune offsets into the parsed document body.
type Chunk struct {
	Ordinal int    `json:"ordinal"`
	Text    string `json:"text"`
	Start   int    `json:"start"`
	End     int    `json:"end"`

	// Window holds the surrounding sentences in sentence-window mode
	Window string `json:"window,omitempty"`
}

// ScoredChunk is one entry of a retrieval result
type ScoredChunk struct {
	Chunk Chunk   `json:"chunk"`
	Score float32 `json:"score"`

	// Rank is the 0-based position in the first-stage (vector) result
	Rank int `json:"rank"`
}

// Texts returns the chunk texts of a retrieval result in order
func Texts(results []ScoredChunk) []string {
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Chunk.Text
	}
	return texts
}

// Mode selects how documents are chunked and how context is expanded
type Mode string

const (
	ModeStandard       Mode = "standard"
	ModeSentenceWindow Mode = "sentence-window"
)

// ParseMode converts a string to a Mode, defaulting to ModeStandard
func ParseMode(s string) Mode {
	if Mode(s) == ModeSentenceWindow {
		return ModeSentenceWindow
	}
	return ModeStandard
}
