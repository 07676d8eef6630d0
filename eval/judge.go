package eval

import (
	"context"
	"fmt"
	"strings"

	"docqa/llm/rerank"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/kart-io/logger"
)

const groundednessPrompt = `You check whether an answer is supported by its sources.

Sources:
%s

Answer: %s

Reply with a single number between 0 and 1, where 1 means every claim in the answer is supported by the sources and 0 means none is.

Groundedness score:`

const answerRelevancePrompt = `Rate how well the answer responds to the question.

Question: %s

Answer: %s

Reply with a single number between 0 and 1, where 1 means the answer fully addresses the question and 0 means it is unrelated.

Relevance score:`

// Scores is the RAG triad for one answer, each in [0, 1]
type Scores struct {
	Groundedness     float64 `json:"groundedness"`
	AnswerRelevance  float64 `json:"answer_relevance"`
	ContextRelevance float64 `json:"context_relevance"`
}

// Judge scores answers with a chat model
type Judge struct {
	model   model.BaseChatModel
	context *rerank.LLMScorer
}

// NewJudge creates a judge; concurrency bounds the parallel context ratings
func NewJudge(chatModel model.BaseChatModel, concurrency int) *Judge {
	return &Judge{
		model:   chatModel,
		context: rerank.NewLLMScorer(chatModel, concurrency),
	}
}

// Score rates groundedness of the answer in the contexts, relevance of the answer
// to the question, and the mean relevance of the contexts to the question
func (j *Judge) Score(ctx context.Context, question, answer string, contexts []string) (*Scores, error) {
	var s Scores

	if len(contexts) > 0 {
		ratings, err := j.context.Score(ctx, question, contexts)
		if err != nil {
			return nil, fmt.Errorf("failed to rate context relevance: %w", err)
		}
		var sum float64
		for _, r := range ratings {
			sum += r
		}
		s.ContextRelevance = sum / float64(len(ratings))

		sources := make([]string, len(contexts))
		for i, c := range contexts {
			sources[i] = fmt.Sprintf("[%d] %s", i+1, c)
		}
		s.Groundedness, err = j.rate(ctx, fmt.Sprintf(groundednessPrompt, strings.Join(sources, "\n\n"), answer))
		if err != nil {
			return nil, fmt.Errorf("failed to rate groundedness: %w", err)
		}
	}

	var err error
	s.AnswerRelevance, err = j.rate(ctx, fmt.Sprintf(answerRelevancePrompt, question, answer))
	if err != nil {
		return nil, fmt.Errorf("failed to rate answer relevance: %w", err)
	}
	return &s, nil
}

func (j *Judge) rate(ctx context.Context, prompt string) (float64, error) {
	msg, err := j.model.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)})
	if err != nil {
		return 0, err
	}
	score, ok := rerank.ParseScore(msg.Content)
	if !ok {
		logger.Warnw("judge reply has no score, using neutral value", "reply", msg.Content)
	}
	return score, nil
}
