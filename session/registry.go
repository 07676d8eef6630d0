// Package session hands the id of the latest built session from the indexing
// process to other processes, such as the evaluation runner.
package session

import (
	"context"
	"time"

	"docqa/llm"
)

// DefaultFile is where FileRegistry keeps the latest session
const DefaultFile = ".latest_session"

// Record describes a built session
type Record struct {
	ID             string    `json:"id"`
	EmbeddingModel string    `json:"embedding_model"`
	Mode           llm.Mode  `json:"mode"`
	CreatedAt      time.Time `json:"created_at"`
}

// Registry is a single-slot store for the latest session.
// Register overwrites atomically; the last write wins.
type Registry interface {
	// Register replaces the stored record
	Register(ctx context.Context, rec Record) error
	// Resolve returns the stored record or an error wrapping llm.ErrNotFound
	Resolve(ctx context.Context) (Record, error)
	// Clear removes the stored record, if any
	Clear(ctx context.Context) error
}
