package component

import (
	"fmt"
	"time"

	"docqa/llm/engine"
	"docqa/pubsub"
	"docqa/tui/component/renderer"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const readyText = "Ready"

// StatusModel shows a spinner and the pipeline stage
type StatusModel struct {
	spinner spinner.Model
	running bool
	text    string
	session string
	started time.Time
	width   int
}

// NewStatusModel creates the status line for a session
func NewStatusModel(session string) StatusModel {
	s := spinner.New()
	s.Spinner = spinner.Jump
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return StatusModel{
		spinner: s,
		text:    readyText,
		session: session,
	}
}

// Init implements tea.Model
func (m StatusModel) Init() tea.Cmd {
	return nil
}

// Update follows engine events
func (m StatusModel) Update(msg tea.Msg) (StatusModel, tea.Cmd) {
	switch msg := msg.(type) {
	case pubsub.Event[engine.Event]:
		switch msg.Type {
		case pubsub.CreatedEvent:
			m.text = "Retrieving..."
			m.started = time.Now()
			if !m.running {
				m.running = true
				return m, m.spinner.Tick
			}
			return m, nil
		case pubsub.RetrievedEvent:
			m.text = fmt.Sprintf("Generating from %d passages...", len(msg.Payload.Passages))
			return m, nil
		case pubsub.FinishedEvent:
			m.running = false
			m.text = fmt.Sprintf("%s (answered in %s)", readyText, renderer.FormatDuration(time.Since(m.started)))
			return m, nil
		case pubsub.FailedEvent:
			m.running = false
			m.text = readyText
			return m, nil
		case pubsub.DeletedEvent:
			m.text = "Conversation cleared"
			return m, nil
		}
	}

	if m.running {
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

// View implements tea.Model
func (m StatusModel) View() string {
	style := lipgloss.NewStyle().Padding(1, 0)
	content := m.text
	if m.running {
		content = fmt.Sprintf("%s %s", m.spinner.View(), m.text)
	}
	if m.session != "" {
		content += lipgloss.NewStyle().Faint(true).Render("  session " + m.session)
	}
	return style.Render(content)
}

// SetText replaces the status text
func (m *StatusModel) SetText(text string) {
	m.text = text
}

// SetWidth sets the line width
func (m *StatusModel) SetWidth(width int) {
	m.width = width
}

// IsRunning reports whether a query is in flight
func (m StatusModel) IsRunning() bool {
	return m.running
}
