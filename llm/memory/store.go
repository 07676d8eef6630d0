package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/schema"
)

// Store keeps the conversation turns of one session
type Store interface {
	// Append adds turns in order; either all are added or none
	Append(ctx context.Context, turns ...*schema.Message) error
	// Render returns the turns that fit the history budget, oldest first
	Render(ctx context.Context) ([]*schema.Message, error)
	// Clear removes every turn
	Clear(ctx context.Context) error
	// Len returns the number of stored turns
	Len() int
}

// MemoryStore is an in-process Store.
// It keeps every turn; budgets only limit what Render returns.
type MemoryStore struct {
	mu       sync.RWMutex
	msgs     []*schema.Message
	maxTurns int // turns rendered at most, 0 for no limit
	maxChars int // characters rendered at most, 0 for no limit
}

var _ Store = (*MemoryStore)(nil)

// Option configures a MemoryStore
type Option func(*MemoryStore)

// WithMaxTurns limits rendered history to the newest n turns
func WithMaxTurns(n int) Option {
	return func(s *MemoryStore) {
		s.maxTurns = n
	}
}

// WithMaxChars limits rendered history to the newest turns totalling at most n characters
func WithMaxChars(n int) Option {
	return func(s *MemoryStore) {
		s.maxChars = n
	}
}

// NewStore creates an empty store
func NewStore(opts ...Option) *MemoryStore {
	s := &MemoryStore{msgs: make([]*schema.Message, 0)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Append implements Store
func (s *MemoryStore) Append(ctx context.Context, turns ...*schema.Message) error {
	for i, t := range turns {
		if t == nil {
			return fmt.Errorf("turn %d is nil", i)
		}
		if t.Role != schema.User && t.Role != schema.Assistant {
			return fmt.Errorf("turn %d has role %q, want user or assistant", i, t.Role)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range turns {
		s.msgs = append(s.msgs, &schema.Message{Role: t.Role, Content: t.Content})
	}
	return nil
}

// Render implements Store
func (s *MemoryStore) Render(ctx context.Context) ([]*schema.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := len(s.msgs)
	chars := 0
	for start > 0 {
		next := s.msgs[start-1]
		if s.maxTurns > 0 && len(s.msgs)-start >= s.maxTurns {
			break
		}
		if s.maxChars > 0 && chars+len([]rune(next.Content)) > s.maxChars {
			break
		}
		chars += len([]rune(next.Content))
		start--
	}

	// a window never opens with an answer whose question was cut off
	for start < len(s.msgs) && s.msgs[start].Role == schema.Assistant {
		start++
	}

	// Return copies so callers can't modify stored turns
	result := make([]*schema.Message, 0, len(s.msgs)-start)
	for _, m := range s.msgs[start:] {
		result = append(result, &schema.Message{Role: m.Role, Content: m.Content})
	}
	return result, nil
}

// Clear implements Store
func (s *MemoryStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = nil
	return nil
}

// Len implements Store
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.msgs)
}
