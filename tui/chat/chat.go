package chat

import (
	"context"
	"errors"

	"docqa/llm/engine"
	"docqa/pubsub"
	"docqa/tui/component"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/kart-io/logger"
)

// chatDoneMsg reports the end of one question
type chatDoneMsg struct {
	err error
}

// resetDoneMsg reports the end of a clear request
type resetDoneMsg struct {
	err error
}

// query holds the cancel function of the question in flight
type query struct {
	cancel context.CancelFunc
}

// Model is the chat screen
type Model struct {
	list   component.ListModel
	edit   component.EditModel
	status component.StatusModel

	engine  *engine.Engine
	sub     <-chan pubsub.Event[engine.Event]
	ctx     context.Context
	current *query

	width  int
	height int
}

// InitialModel creates the chat screen for an engine
func InitialModel(ctx context.Context, e *engine.Engine) Model {
	return Model{
		list:    component.NewListModel(),
		edit:    component.NewEditModel(),
		status:  component.NewStatusModel(e.Session()),
		engine:  e,
		sub:     e.Broker().Subscribe(ctx),
		ctx:     ctx,
		current: &query{},
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.list.Init(),
		m.edit.Init(),
		m.status.Init(),
		m.waitForEvent(),
	)
}

// waitForEvent delivers the next engine event to Update
func (m Model) waitForEvent() tea.Cmd {
	return func() tea.Msg {
		event, ok := <-m.sub
		if !ok {
			return nil
		}
		return event
	}
}

func (m Model) ask(question string) tea.Cmd {
	ctx, cancel := context.WithCancel(m.ctx)
	m.current.cancel = cancel
	return func() tea.Msg {
		defer cancel()
		_, err := m.engine.Chat(ctx, question)
		return chatDoneMsg{err: err}
	}
}

func (m Model) reset() tea.Cmd {
	return func() tea.Msg {
		return resetDoneMsg{err: m.engine.Reset(m.ctx)}
	}
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		statusHeight := lipgloss.Height(m.status.View())
		editHeight := m.edit.Height()
		m.list.SetSize(m.width, m.height-statusHeight-editHeight)
		m.edit.SetWidth(m.width)
		m.status.SetWidth(m.width)

	case component.EditorSubmitMsg:
		if m.status.IsRunning() {
			m.status.SetText("Still answering, press Esc to stop")
			break
		}
		cmds = append(cmds, m.ask(msg.Value))

	case chatDoneMsg:
		switch {
		case errors.Is(msg.err, engine.ErrQueryInProgress):
			m.status.SetText("Still answering, press Esc to stop")
		case msg.err != nil:
			logger.Debugw("question failed", "error", msg.err)
		}

	case resetDoneMsg:
		if errors.Is(msg.err, engine.ErrQueryInProgress) {
			m.status.SetText("Stop the answer before clearing")
		} else if msg.err != nil {
			m.status.SetText("Clear failed: " + msg.err.Error())
		}

	case pubsub.Event[engine.Event]:
		cmds = append(cmds, m.waitForEvent())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.current.cancel != nil {
				m.current.cancel()
			}
			return m, tea.Quit
		case tea.KeyEsc:
			if m.current.cancel != nil {
				m.current.cancel()
			}
			return m, nil
		case tea.KeyCtrlL:
			return m, m.reset()
		}
	}

	var cmd tea.Cmd

	m.list, cmd = m.list.Update(msg)
	cmds = append(cmds, cmd)

	m.edit, cmd = m.edit.Update(msg)
	cmds = append(cmds, cmd)

	m.status, cmd = m.status.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// View implements tea.Model
func (m Model) View() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.list.View(),
		m.status.View(),
		m.edit.View(),
	)
}
