package component

import (
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// EditorSubmitMsg carries a submitted question
type EditorSubmitMsg struct {
	Value string
}

// EditModel wraps the question input and remembers asked questions
type EditModel struct {
	textarea textarea.Model
	width    int
	history  []string
	// recall is the history position shown, len(history) when editing a new question
	recall int
}

// NewEditModel creates the input box
func NewEditModel() EditModel {
	ta := textarea.New()
	ta.Placeholder = "Ask about the document..."
	ta.Focus()

	ta.Prompt = "> "
	ta.CharLimit = 1000

	ta.SetWidth(30)
	ta.SetHeight(1)

	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	// Enter submits
	ta.KeyMap.InsertNewline.SetEnabled(false)

	return EditModel{
		textarea: ta,
		width:    30,
	}
}

// Init implements tea.Model
func (m EditModel) Init() tea.Cmd {
	return textarea.Blink
}

// Update implements tea.Model
func (m EditModel) Update(msg tea.Msg) (EditModel, tea.Cmd) {
	var cmd tea.Cmd

	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.Type {
		case tea.KeyEnter:
			value := strings.TrimSpace(m.textarea.Value())
			if value == "" {
				return m, nil
			}
			m.textarea.Reset()
			if n := len(m.history); n == 0 || m.history[n-1] != value {
				m.history = append(m.history, value)
			}
			m.recall = len(m.history)
			return m, func() tea.Msg {
				return EditorSubmitMsg{Value: value}
			}
		case tea.KeyUp:
			if m.recall > 0 {
				m.recall--
				m.textarea.SetValue(m.history[m.recall])
			}
			return m, nil
		case tea.KeyDown:
			if m.recall < len(m.history) {
				m.recall++
				if m.recall == len(m.history) {
					m.textarea.Reset()
				} else {
					m.textarea.SetValue(m.history[m.recall])
				}
			}
			return m, nil
		}
	}

	m.textarea, cmd = m.textarea.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m *EditModel) View() string {
	return m.textarea.View()
}

// SetWidth resizes the input
func (m *EditModel) SetWidth(width int) {
	m.width = width
	m.textarea.SetWidth(width)
}

// Height returns the input height in lines
func (m *EditModel) Height() int {
	return m.textarea.Height()
}
