package vector

import (
	"context"
	"sort"
	"sync"
	"time"

	"docqa/llm"
)

type memorySession struct {
	info    SessionInfo
	chunks  []llm.Chunk
	vectors [][]float32
}

// MemoryIndex is an in-process Index using exhaustive cosine search
type MemoryIndex struct {
	mu       sync.RWMutex
	sessions map[string]*memorySession
}

var _ Index = (*MemoryIndex)(nil)

// NewMemoryIndex creates an empty in-memory index
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		sessions: make(map[string]*memorySession),
	}
}

// Build implements Index
func (m *MemoryIndex) Build(ctx context.Context, session string, chunks []llm.Chunk, vectors [][]float32, model string) (int, error) {
	dim, err := validateBuild(session, chunks, vectors)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if prev, ok := m.sessions[session]; ok {
		if err := checkDim(prev.info, dim); err != nil {
			return 0, err
		}
		if err := checkModel(prev.info, model); err != nil {
			return 0, err
		}
	}

	byOrdinal := make(map[int]int, len(chunks))
	for i, c := range chunks {
		byOrdinal[c.Ordinal] = i
	}

	s := &memorySession{
		info: SessionInfo{Dim: dim, Model: model, BuiltAt: time.Now()},
	}
	ordinals := make([]int, 0, len(byOrdinal))
	for ord := range byOrdinal {
		ordinals = append(ordinals, ord)
	}
	sort.Ints(ordinals)
	for _, ord := range ordinals {
		i := byOrdinal[ord]
		s.chunks = append(s.chunks, chunks[i])
		s.vectors = append(s.vectors, append([]float32(nil), vectors[i]...))
	}
	s.info.Count = len(s.chunks)

	m.sessions[session] = s
	return s.info.Count, nil
}

// Search implements Index
func (m *MemoryIndex) Search(ctx context.Context, session string, query []float32, topK int) ([]llm.ScoredChunk, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[session]
	if !ok {
		return nil, llm.ErrUnknownSession
	}
	if err := checkDim(s.info, len(query)); err != nil {
		return nil, err
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	results := make([]llm.ScoredChunk, len(s.chunks))
	for i, c := range s.chunks {
		results[i] = llm.ScoredChunk{Chunk: c, Score: Cosine(query, s.vectors[i])}
	}

	// chunks are stored by ordinal, so a stable sort breaks ties by ordinal
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	for i := range results {
		results[i].Rank = i
	}
	return results, nil
}

// Info implements Index
func (m *MemoryIndex) Info(ctx context.Context, session string) (SessionInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[session]
	if !ok {
		return SessionInfo{}, llm.ErrUnknownSession
	}
	return s.info, nil
}

// Drop implements Index
func (m *MemoryIndex) Drop(ctx context.Context, session string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.sessions, session)
	return nil
}

// Close implements Index
func (m *MemoryIndex) Close() error {
	return nil
}
