package engine

import (
	"context"
	"fmt"
	"strings"

	"docqa/llm"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

const condenseTemplate = "Given the following conversation between a user and an AI assistant and a follow up question from user, " +
	"rephrase the follow up question to be a standalone question.\n\n" +
	"Chat History:\n" +
	"{chat_history}\n" +
	"Follow Up Input: {question}\n" +
	"Standalone question:"

// condenser rewrites a follow-up question into a standalone one using the history
type condenser struct {
	model    model.BaseChatModel
	template prompt.ChatTemplate
}

func newCondenser(m model.BaseChatModel) *condenser {
	return &condenser{
		model:    m,
		template: prompt.FromMessages(schema.FString, schema.UserMessage(condenseTemplate)),
	}
}

// Condense returns the standalone question, or the question itself when the model answers with nothing
func (c *condenser) Condense(ctx context.Context, question string, history []*schema.Message) (string, error) {
	msgs, err := c.template.Format(ctx, map[string]any{
		"chat_history": formatHistory(history),
		"question":     question,
	})
	if err != nil {
		return "", fmt.Errorf("failed to render condense prompt: %w", err)
	}

	out, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("%w: condense question: %w", llm.ErrGenerationProvider, err)
	}

	standalone := strings.TrimSpace(out.Content)
	if standalone == "" {
		return question, nil
	}
	return standalone, nil
}

func formatHistory(history []*schema.Message) string {
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}
	return strings.Join(lines, "\n")
}
