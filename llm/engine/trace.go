package engine

import (
	"time"

	"docqa/llm"
)

// Passage is one context passage as recorded in a Trace
type Passage struct {
	Ordinal int     `json:"ordinal"`
	Text    string  `json:"text"`
	Score   float32 `json:"score"`
	Rank    int     `json:"rank"`
}

// Durations are per-stage wall times of a query
type Durations struct {
	Condense time.Duration `json:"condense"`
	Embed    time.Duration `json:"embed"`
	Search   time.Duration `json:"search"`
	Rerank   time.Duration `json:"rerank"`
	Generate time.Duration `json:"generate"`
}

// Trace records what one query retrieved and answered.
// It is the hand-off to the evaluation harness.
type Trace struct {
	Session            string    `json:"session"`
	Mode               llm.Mode  `json:"mode"`
	Question           string    `json:"question"`
	StandaloneQuestion string    `json:"standalone_question"`
	Retrieved          []Passage `json:"retrieved"`
	Reranked           []Passage `json:"reranked"`
	Answer             string    `json:"answer"`
	Durations          Durations `json:"durations"`
}

// Contexts returns the texts handed to the generator
func (t *Trace) Contexts() []string {
	out := make([]string, len(t.Reranked))
	for i, p := range t.Reranked {
		out[i] = p.Text
	}
	return out
}

func passages(results []llm.ScoredChunk) []Passage {
	out := make([]Passage, len(results))
	for i, r := range results {
		out[i] = Passage{
			Ordinal: r.Chunk.Ordinal,
			Text:    r.Chunk.Text,
			Score:   r.Score,
			Rank:    r.Rank,
		}
	}
	return out
}
