package renderer

import (
	"fmt"
	"strings"

	"docqa/llm"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/cloudwego/eino/schema"
)

const welcome = "Ask a question about the indexed document.\n" +
	"Enter sends, Esc stops the answer, Ctrl+L clears the conversation, Ctrl+C quits."

// Message is one entry of the chat transcript
type Message struct {
	Role    schema.RoleType
	Content string
	// Sources are the passages an answer was grounded on
	Sources []llm.ScoredChunk
}

// MessageRenderer renders the transcript, caching every message but the last
type MessageRenderer struct {
	markdownRenderer *glamour.TermRenderer
	styles           *MessageStyles
	renderedCache    []string
	viewportWidth    int
}

// NewMessageRenderer creates a renderer; nil styles selects the defaults
func NewMessageRenderer(styles *MessageStyles) *MessageRenderer {
	if styles == nil {
		styles = DefaultMessageStyles()
	}

	markdownRenderer, _ := glamour.NewTermRenderer(
		glamour.WithStylePath("dracula"),
		glamour.WithWordWrap(0),
	)
	return &MessageRenderer{
		markdownRenderer: markdownRenderer,
		styles:           styles,
		renderedCache:    make([]string, 0),
	}
}

// SetViewportWidth sets the wrap width
func (r *MessageRenderer) SetViewportWidth(width int) {
	r.viewportWidth = width
}

// Reset drops the render cache
func (r *MessageRenderer) Reset() {
	r.renderedCache = r.renderedCache[:0]
}

// RenderMessages renders the whole transcript.
// The last message may still be streaming, so it is never cached.
func (r *MessageRenderer) RenderMessages(messages []Message) string {
	if len(messages) == 0 {
		return welcome
	}

	if len(messages) < len(r.renderedCache)+1 {
		r.Reset()
	}
	for i := len(r.renderedCache); i < len(messages)-1; i++ {
		r.renderedCache = append(r.renderedCache, r.RenderMessage(messages[i]))
	}

	var sb strings.Builder
	for _, cached := range r.renderedCache {
		if cached != "" {
			sb.WriteString(cached)
			sb.WriteString("\n\n")
		}
	}
	sb.WriteString(r.RenderMessage(messages[len(messages)-1]))

	content := sb.String()
	if r.viewportWidth > 0 {
		return lipgloss.NewStyle().Width(r.viewportWidth).Render(content)
	}
	return content
}

// RenderMessage renders one message
func (r *MessageRenderer) RenderMessage(msg Message) string {
	switch msg.Role {
	case schema.User:
		if msg.Content == "" {
			return ""
		}
		return r.styles.User.Render("You:") + " " + msg.Content
	case schema.Assistant:
		return r.renderAssistantMessage(msg)
	case schema.System:
		if len(msg.Sources) > 0 {
			return r.renderSources(msg.Sources)
		}
		if msg.Content == "" {
			return ""
		}
		return r.styles.System.Render(msg.Content)
	}
	return ""
}

func (r *MessageRenderer) renderMarkdown(content string) string {
	if r.markdownRenderer == nil {
		return content
	}
	rendered, err := r.markdownRenderer.Render(content)
	if err != nil {
		return content
	}
	return strings.TrimSpace(rendered)
}

func (r *MessageRenderer) renderAssistantMessage(msg Message) string {
	header := r.styles.Assistant.Render("Assistant:")
	if msg.Content == "" {
		return header + " " + r.styles.System.Render("…")
	}
	return header + "\n" + r.renderMarkdown(msg.Content)
}

func (r *MessageRenderer) renderSources(sources []llm.ScoredChunk) string {
	lines := make([]string, 0, len(sources)+1)
	lines = append(lines, r.styles.SourceHeader.Render(fmt.Sprintf("Sources (%d):", len(sources))))
	for _, s := range sources {
		text := strings.Join(strings.Fields(s.Chunk.Text), " ")
		lines = append(lines, r.styles.Source.Render(
			fmt.Sprintf("#%d  %.3f  %s", s.Chunk.Ordinal, s.Score, Truncate(text, 80)),
		))
	}
	return r.styles.Indent.Render(strings.Join(lines, "\n"))
}
