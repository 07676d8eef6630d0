package generator

import (
	"strings"

	"docqa/llm"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

const (
	keyContext = "context_str"
	keyQuery   = "query_str"
	keyHistory = "history"
)

const standardContextTemplate = "Context information is below.\n" +
	"---------------------\n" +
	"{context_str}\n" +
	"---------------------\n" +
	"Given the context information above I want you to think step by step to answer the query in a crisp manner, incase case you don't know the answer say 'I don't know!'.\n" +
	"Query: {query_str}\n" +
	"Answer: "

const sentenceWindowContextTemplate = "Context information is below.\n" +
	"---------------------\n" +
	"{context_str}\n" +
	"---------------------\n" +
	"Given the context information above I want you to answer the query.\n" +
	"Rules:\n" +
	"1. Use markdown formatting (e.g. **bolding** for key terms).\n" +
	"2. Keep the tone professional but easy to understand.\n" +
	"3. If you don't know the answer, say 'I don't know!'.\n" +
	"Query: {query_str}\n" +
	"Answer: "

// NewTemplate builds the answer prompt for a mode: the context instructions as a system
// message, then the conversation history, then the user query.
func NewTemplate(mode llm.Mode) prompt.ChatTemplate {
	system := standardContextTemplate
	if mode == llm.ModeSentenceWindow {
		system = sentenceWindowContextTemplate
	}

	return prompt.FromMessages(schema.FString,
		schema.SystemMessage(system),
		schema.MessagesPlaceholder(keyHistory, true),
		schema.UserMessage("{"+keyQuery+"}"),
	)
}

// JoinContexts renders passages the way they are substituted into {context_str}
func JoinContexts(contexts []string) string {
	return strings.Join(contexts, "\n\n")
}
