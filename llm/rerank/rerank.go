package rerank

import (
	"context"
	"fmt"
	"sort"

	"docqa/llm"

	"github.com/kart-io/logger"
)

// DefaultTopN is the number of chunks kept after reranking
const DefaultTopN = 3

// Scorer assigns a relevance score to each document for a query.
// It returns exactly one score per document, in input order.
type Scorer interface {
	Score(ctx context.Context, query string, docs []string) ([]float64, error)
	Name() string
}

// Reranker re-scores first-stage candidates and keeps the best topN
type Reranker struct {
	scorer Scorer
	topN   int
}

// New creates a reranker; topN <= 0 keeps every candidate
func New(scorer Scorer, topN int) *Reranker {
	if scorer == nil {
		scorer = NewLexicalScorer()
	}
	return &Reranker{scorer: scorer, topN: topN}
}

// TopN returns the configured output size
func (r *Reranker) TopN() int {
	return r.topN
}

// Rerank orders candidates by scorer relevance, breaking ties by first-stage rank.
// The result is a subset of candidates with at most topN entries.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []llm.ScoredChunk) ([]llm.ScoredChunk, error) {
	if len(candidates) == 0 {
		return []llm.ScoredChunk{}, nil
	}

	scores, err := r.scorer.Score(ctx, query, llm.Texts(candidates))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", llm.ErrRerankProvider, r.scorer.Name(), err)
	}
	if len(scores) != len(candidates) {
		return nil, fmt.Errorf("%w: %s returned %d scores for %d candidates",
			llm.ErrRerankProvider, r.scorer.Name(), len(scores), len(candidates))
	}

	reranked := make([]llm.ScoredChunk, len(candidates))
	for i, c := range candidates {
		c.Score = float32(scores[i])
		reranked[i] = c
	}

	sort.SliceStable(reranked, func(i, j int) bool {
		if reranked[i].Score != reranked[j].Score {
			return reranked[i].Score > reranked[j].Score
		}
		return reranked[i].Rank < reranked[j].Rank
	})

	if r.topN > 0 && len(reranked) > r.topN {
		reranked = reranked[:r.topN]
	}

	logger.Debugw("rerank complete", "scorer", r.scorer.Name(), "candidates", len(candidates), "kept", len(reranked))
	return reranked, nil
}

// ReplaceWithWindow swaps each chunk's text for its sentence window when one is stored
func ReplaceWithWindow(candidates []llm.ScoredChunk) []llm.ScoredChunk {
	out := make([]llm.ScoredChunk, len(candidates))
	for i, c := range candidates {
		if c.Chunk.Window != "" {
			c.Chunk.Text = c.Chunk.Window
		}
		out[i] = c
	}
	return out
}
