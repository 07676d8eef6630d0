package component

import (
	"errors"
	"testing"

	"docqa/llm"
	"docqa/llm/engine"
	"docqa/pubsub"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func event(t pubsub.EventType, p engine.Event) pubsub.Event[engine.Event] {
	return pubsub.Event[engine.Event]{Type: t, Payload: p}
}

func TestListFollowsEngineEvents(t *testing.T) {
	m := NewListModel()
	m.SetSize(80, 20)

	passages := []llm.ScoredChunk{{Chunk: llm.Chunk{Ordinal: 0, Text: "The capital of France is Paris."}, Score: 0.9}}
	for _, ev := range []pubsub.Event[engine.Event]{
		event(pubsub.CreatedEvent, engine.Event{Question: "Capital of France?"}),
		event(pubsub.RetrievedEvent, engine.Event{Passages: passages}),
		event(pubsub.UpdatedEvent, engine.Event{Fragment: "Par"}),
		event(pubsub.UpdatedEvent, engine.Event{Fragment: "is"}),
	} {
		m, _ = m.Update(ev)
	}

	require.Equal(t, 3, m.Len())
	assert.Equal(t, schema.User, m.messages[0].Role)
	assert.Equal(t, passages, m.messages[1].Sources)
	assert.Equal(t, "Paris", m.messages[2].Content)

	m, _ = m.Update(event(pubsub.FinishedEvent, engine.Event{Answer: "Paris."}))
	assert.Equal(t, "Paris.", m.messages[2].Content)

	m, _ = m.Update(event(pubsub.FailedEvent, engine.Event{Err: errors.New("boom")}))
	assert.Equal(t, 4, m.Len())
	assert.Contains(t, m.messages[3].Content, "boom")

	m, _ = m.Update(event(pubsub.DeletedEvent, engine.Event{}))
	assert.Zero(t, m.Len())
	assert.Contains(t, m.View(), "Ctrl+L")
}

func TestStatusFollowsEngineEvents(t *testing.T) {
	s := NewStatusModel("abc")
	assert.False(t, s.IsRunning())

	s, cmd := s.Update(event(pubsub.CreatedEvent, engine.Event{}))
	assert.True(t, s.IsRunning())
	assert.NotNil(t, cmd)

	s, _ = s.Update(event(pubsub.RetrievedEvent, engine.Event{Passages: make([]llm.ScoredChunk, 3)}))
	assert.Contains(t, s.View(), "3 passages")

	s, _ = s.Update(event(pubsub.FinishedEvent, engine.Event{}))
	assert.False(t, s.IsRunning())
	assert.Contains(t, s.View(), "Ready")
	assert.Contains(t, s.View(), "abc")
}

func TestEditSubmits(t *testing.T) {
	e := NewEditModel()
	e, _ = e.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("hi")})
	e, cmd := e.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, EditorSubmitMsg{Value: "hi"}, cmd())

	_, cmd = e.Update(tea.KeyMsg{Type: tea.KeyEnter})
	assert.Nil(t, cmd)
}

func TestEditRecallsQuestions(t *testing.T) {
	e := NewEditModel()
	for _, q := range []string{"first", "second"} {
		e, _ = e.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(q)})
		e, _ = e.Update(tea.KeyMsg{Type: tea.KeyEnter})
	}

	up := tea.KeyMsg{Type: tea.KeyUp}
	down := tea.KeyMsg{Type: tea.KeyDown}

	e, _ = e.Update(up)
	assert.Equal(t, "second", e.textarea.Value())
	e, _ = e.Update(up)
	assert.Equal(t, "first", e.textarea.Value())
	e, _ = e.Update(up)
	assert.Equal(t, "first", e.textarea.Value())
	e, _ = e.Update(down)
	assert.Equal(t, "second", e.textarea.Value())
	e, _ = e.Update(down)
	assert.Equal(t, "", e.textarea.Value())
}
