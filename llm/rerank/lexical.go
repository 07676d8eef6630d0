package rerank

import (
	"context"
	"math"

	"docqa/llm/vector"
)

// LexicalScorer scores documents with BM25 computed over the candidate set.
// It needs no provider, so it is the offline default.
type LexicalScorer struct {
	k1 float64
	b  float64
}

// NewLexicalScorer creates a BM25 scorer with the usual k1 and b
func NewLexicalScorer() *LexicalScorer {
	return &LexicalScorer{k1: 1.2, b: 0.75}
}

// Name implements Scorer
func (s *LexicalScorer) Name() string {
	return "lexical"
}

// Score implements Scorer
func (s *LexicalScorer) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	scores := make([]float64, len(docs))
	terms := unique(vector.Tokenize(query))
	if len(terms) == 0 || len(docs) == 0 {
		return scores, nil
	}

	freqs := make([]map[string]int, len(docs))
	lengths := make([]int, len(docs))
	df := make(map[string]int)
	total := 0

	for i, doc := range docs {
		tokens := vector.Tokenize(doc)
		lengths[i] = len(tokens)
		total += len(tokens)

		freqs[i] = make(map[string]int)
		for _, tok := range tokens {
			freqs[i][tok]++
		}
		for tok := range freqs[i] {
			df[tok]++
		}
	}

	avg := float64(total) / float64(len(docs))
	if avg == 0 {
		return scores, nil
	}
	n := float64(len(docs))

	for i := range docs {
		norm := s.k1 * (1 - s.b + s.b*float64(lengths[i])/avg)
		for _, term := range terms {
			tf := float64(freqs[i][term])
			if tf == 0 {
				continue
			}
			idf := math.Log(1 + (n-float64(df[term])+0.5)/(float64(df[term])+0.5))
			scores[i] += idf * tf * (s.k1 + 1) / (tf + norm)
		}
	}

	return scores, nil
}

func unique(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := tokens[:0:0]
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
