package vector

import (
	"context"
	"fmt"
	"math"
	"time"

	"docqa/llm"
)

// DefaultTopK is the number of candidates returned when a search does not ask for a count
const DefaultTopK = 10

// SessionInfo describes the chunks stored for one session
type SessionInfo struct {
	Dim     int       `json:"dim"`
	Count   int       `json:"count"`
	Model   string    `json:"model"`
	BuiltAt time.Time `json:"built_at"`
}

// Index stores chunk vectors partitioned by session.
// Every method that talks to a remote backend wraps connectivity failures in llm.ErrIndexUnavailable.
type Index interface {
	// Build stores one entry per chunk for the session, keyed by ordinal.
	// Rebuilding replaces the session's entries, so repeating a build leaves the same count.
	Build(ctx context.Context, session string, chunks []llm.Chunk, vectors [][]float32, model string) (int, error)

	// Search returns up to topK chunks of the session, most similar first.
	// It returns llm.ErrUnknownSession when the session was never built.
	Search(ctx context.Context, session string, query []float32, topK int) ([]llm.ScoredChunk, error)

	// Info returns the stored session metadata or llm.ErrUnknownSession
	Info(ctx context.Context, session string) (SessionInfo, error)

	// Drop removes every entry of the session
	Drop(ctx context.Context, session string) error

	// Close closes any connections or resources
	Close() error
}

// validateBuild checks build inputs and returns the shared vector dimension
func validateBuild(session string, chunks []llm.Chunk, vectors [][]float32) (int, error) {
	if session == "" {
		return 0, fmt.Errorf("session id cannot be empty")
	}
	if len(chunks) == 0 {
		return 0, llm.ErrInvalidDocument
	}
	if len(chunks) != len(vectors) {
		return 0, fmt.Errorf("got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	dim := len(vectors[0])
	if dim == 0 {
		return 0, fmt.Errorf("%w: empty vector", llm.ErrDimensionMismatch)
	}
	for i, v := range vectors {
		if len(v) != dim {
			return 0, fmt.Errorf("%w: vector %d has length %d, want %d", llm.ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return dim, nil
}

// checkDim rejects a vector whose length differs from the session dimension
func checkDim(info SessionInfo, got int) error {
	if info.Dim != got {
		return fmt.Errorf("%w: session uses %d dimensions, got %d", llm.ErrDimensionMismatch, info.Dim, got)
	}
	return nil
}

// checkModel rejects a rebuild with an embedding model other than the session's
func checkModel(info SessionInfo, model string) error {
	if info.Model != "" && model != "" && info.Model != model {
		return fmt.Errorf("%w: session was built with %q, got %q", llm.ErrEmbeddingModelMismatch, info.Model, model)
	}
	return nil
}

// Cosine returns the cosine similarity of two equal-length vectors
func Cosine(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// sessionKey builds the primary key of a chunk entry
func sessionKey(session string, ordinal int) string {
	return fmt.Sprintf("%s:%d", session, ordinal)
}
