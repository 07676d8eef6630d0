package rerank

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/kart-io/logger"
	"github.com/panjf2000/ants/v2"
)

const relevancePrompt = `Rate how relevant the document is to the query.

Query: %s

Document: %s

Reply with a single number between 0 and 1:
- 1.0: fully relevant, directly answers the query
- 0.7-0.9: highly relevant, contains most of the needed information
- 0.4-0.6: partially relevant
- 0.1-0.3: barely relevant
- 0.0: unrelated

Relevance score:`

// maxJudgedChars caps the document text sent to the judge model
const maxJudgedChars = 2000

// LLMScorer asks a chat model to rate each document, running requests on a worker pool
type LLMScorer struct {
	model       model.BaseChatModel
	concurrency int
}

// NewLLMScorer creates a chat-model judge; concurrency bounds in-flight requests
func NewLLMScorer(chatModel model.BaseChatModel, concurrency int) *LLMScorer {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &LLMScorer{model: chatModel, concurrency: concurrency}
}

// Name implements Scorer
func (s *LLMScorer) Name() string {
	return "llm"
}

// Score implements Scorer. Any failed request fails the whole call.
func (s *LLMScorer) Score(ctx context.Context, query string, docs []string) ([]float64, error) {
	scores := make([]float64, len(docs))
	if len(docs) == 0 {
		return scores, nil
	}

	pool, err := ants.NewPool(s.concurrency)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	for i, doc := range docs {
		i, doc := i, doc
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()

			score, err := s.scoreOne(ctx, query, doc)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
					cancel()
				}
				mu.Unlock()
				return
			}
			scores[i] = score
		})
		if err != nil {
			wg.Done()
			mu.Lock()
			if firstErr == nil {
				firstErr = fmt.Errorf("failed to submit scoring task: %w", err)
				cancel()
			}
			mu.Unlock()
			break
		}
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return scores, nil
}

func (s *LLMScorer) scoreOne(ctx context.Context, query, doc string) (float64, error) {
	if r := []rune(doc); len(r) > maxJudgedChars {
		doc = string(r[:maxJudgedChars])
	}

	msg, err := s.model.Generate(ctx, []*schema.Message{
		schema.UserMessage(fmt.Sprintf(relevancePrompt, query, doc)),
	})
	if err != nil {
		return 0, err
	}

	score, ok := ParseScore(msg.Content)
	if !ok {
		logger.Warnw("judge reply has no score, using neutral value", "reply", msg.Content)
	}
	return score, nil
}

// ParseScore extracts the first number in [0, 1] from a model reply.
// It returns 0.5 and false when no such number is found.
func ParseScore(response string) (float64, bool) {
	response = strings.TrimSpace(response)

	var score float64
	if _, err := fmt.Sscanf(response, "%f", &score); err == nil && score >= 0 && score <= 1 {
		return score, true
	}

	for _, part := range strings.Fields(response) {
		part = strings.Trim(part, "*.,:;()[]\"'")
		if _, err := fmt.Sscanf(part, "%f", &score); err == nil && score >= 0 && score <= 1 {
			return score, true
		}
	}

	return 0.5, false
}
