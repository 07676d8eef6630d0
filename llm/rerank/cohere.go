package rerank

import (
	"context"
	"fmt"

	coheregov2 "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"
	"github.com/cohere-ai/cohere-go/v2/option"
)

// DefaultCohereModel is the cross-encoder used when none is configured
const DefaultCohereModel = "rerank-english-v3.0"

// CohereScorer scores documents with the Cohere Rerank API
type CohereScorer struct {
	client *cohereclient.Client
	model  string
}

// NewCohereScorer creates a Cohere scorer.
// Extra request options such as option.WithBaseURL are applied after the token.
func NewCohereScorer(apiKey, model string, opts ...option.RequestOption) (*CohereScorer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("cohere API key is required")
	}
	if model == "" {
		model = DefaultCohereModel
	}

	opts = append([]option.RequestOption{option.WithToken(apiKey)}, opts...)
	return &CohereScorer{
		client: cohereclient.NewClient(opts...),
		model:  model,
	}, nil
}

// Name implements Scorer
func (s *CohereScorer) Name() string {
	return "cohere:" + s.model
}

// Score implements Scorer
func (s *CohereScorer) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	if len(docs) == 0 {
		return []float64{}, nil
	}

	items := make([]*coheregov2.RerankRequestDocumentsItem, len(docs))
	for i, doc := range docs {
		items[i] = &coheregov2.RerankRequestDocumentsItem{String: doc}
	}

	topN := len(docs)
	response, err := s.client.Rerank(ctx, &coheregov2.RerankRequest{
		Query:     query,
		Documents: items,
		Model:     &s.model,
		TopN:      &topN,
	})
	if err != nil {
		return nil, fmt.Errorf("cohere rerank API call failed: %w", err)
	}
	if response == nil || len(response.Results) != len(docs) {
		return nil, fmt.Errorf("cohere rerank returned an incomplete result set")
	}

	scores := make([]float64, len(docs))
	seen := make([]bool, len(docs))
	for _, result := range response.Results {
		if result == nil || result.Index < 0 || result.Index >= len(docs) || seen[result.Index] {
			return nil, fmt.Errorf("cohere rerank returned an invalid result index")
		}
		seen[result.Index] = true
		scores[result.Index] = result.RelevanceScore
	}

	return scores, nil
}
