package component

import (
	"fmt"

	"docqa/llm/engine"
	"docqa/pubsub"
	"docqa/tui/component/renderer"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/cloudwego/eino/schema"
)

// ListModel holds the transcript and its viewport.
// Rendering is delegated to renderer.MessageRenderer.
type ListModel struct {
	viewport viewport.Model
	messages []renderer.Message
	width    int
	height   int
	ready    bool

	renderer *renderer.MessageRenderer
}

// NewListModel creates an empty transcript
func NewListModel() ListModel {
	vp := viewport.New(30, 30)
	msgRenderer := renderer.NewMessageRenderer(nil)
	vp.SetContent(msgRenderer.RenderMessages(nil))

	return ListModel{
		viewport: vp,
		messages: make([]renderer.Message, 0),
		renderer: msgRenderer,
		width:    30,
		height:   5,
		ready:    true,
	}
}

// Init implements tea.Model
func (m ListModel) Init() tea.Cmd {
	return nil
}

// Update applies engine events to the transcript
func (m ListModel) Update(msg tea.Msg) (ListModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.MouseMsg:
		switch msg.Button {
		case tea.MouseButtonWheelUp:
			m.viewport.ScrollUp(3)
		case tea.MouseButtonWheelDown:
			m.viewport.ScrollDown(3)
		}
	case pubsub.Event[engine.Event]:
		m.apply(msg)
		m.updateViewportContent()
		m.viewport.GotoBottom()
		return m, nil
	}

	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

func (m *ListModel) apply(ev pubsub.Event[engine.Event]) {
	p := ev.Payload
	switch ev.Type {
	case pubsub.CreatedEvent:
		m.messages = append(m.messages, renderer.Message{Role: schema.User, Content: p.Question})
	case pubsub.RetrievedEvent:
		m.messages = append(m.messages,
			renderer.Message{Role: schema.System, Sources: p.Passages},
			renderer.Message{Role: schema.Assistant},
		)
	case pubsub.UpdatedEvent:
		if last := m.lastAssistant(); last != nil {
			last.Content += p.Fragment
		}
	case pubsub.FinishedEvent:
		if last := m.lastAssistant(); last != nil {
			last.Content = p.Answer
		}
	case pubsub.FailedEvent:
		m.messages = append(m.messages, renderer.Message{Role: schema.System, Content: fmt.Sprintf("Error: %v", p.Err)})
	case pubsub.DeletedEvent:
		m.messages = m.messages[:0]
		m.renderer.Reset()
	}
}

func (m *ListModel) lastAssistant() *renderer.Message {
	if len(m.messages) == 0 {
		return nil
	}
	last := &m.messages[len(m.messages)-1]
	if last.Role != schema.Assistant {
		return nil
	}
	return last
}

// View implements tea.Model
func (m ListModel) View() string {
	if !m.ready {
		return "Initializing..."
	}
	return m.viewport.View()
}

// SetSize resizes the viewport
func (m *ListModel) SetSize(width, height int) {
	m.width = width
	m.height = height

	if height < 1 {
		height = 1
	}

	m.viewport.Width = width
	m.viewport.Height = height
	m.ready = true

	m.renderer.SetViewportWidth(width)
	m.updateViewportContent()
	m.viewport.GotoBottom()
}

// Len returns the number of transcript entries
func (m ListModel) Len() int {
	return len(m.messages)
}

func (m *ListModel) updateViewportContent() {
	m.viewport.SetContent(m.renderer.RenderMessages(m.messages))
}
