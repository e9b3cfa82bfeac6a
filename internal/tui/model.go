package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/avosel/visage-core/core"
)

// Model is the terminal chat client. It drives the orchestrator over its
// typed-text path and renders the shared transcript; session events arrive
// through an internal channel bridged into bubbletea messages.
type Model struct {
	orchestrator *orchestration.Orchestrator
	events       chan tea.Msg

	viewport viewport.Model
	input    textinput.Model

	messages []orchestration.Message
	state    string
	quality  string
	talking  bool
	warning  string
	err      error

	width  int
	height int
	ready  bool
}

type historyMsg []orchestration.Message

type stateMsg string

type qualityMsg string

type talkingMsg bool

type warningMsg string

type turnErrMsg struct{ err error }

func NewModel(orchestrator *orchestration.Orchestrator) *Model {
	input := textinput.New()
	input.Placeholder = "Type a message and press enter"
	input.Focus()
	input.CharLimit = 2000

	return &Model{
		orchestrator: orchestrator,
		// Buffered so event callbacks never block the session machine on a
		// slow terminal.
		events: make(chan tea.Msg, 64),
		input:  input,
		state:  string(orchestration.StateInactive),
	}
}

// StartOptions returns the per-start callbacks that feed session events into
// the model. Pass them to Orchestrator.Start before running the program.
func (m *Model) StartOptions() []orchestration.OrchestrateOption {
	return []orchestration.OrchestrateOption{
		orchestration.WithStreamReadyCallback(func() {
			m.push(stateMsg("connected"))
		}),
		orchestration.WithStreamDisconnectedCallback(func() {
			m.push(stateMsg("disconnected"))
		}),
		orchestration.WithConnectionQualityCallback(func(quality string) {
			m.push(qualityMsg(quality))
		}),
		orchestration.WithAvatarTalkingCallback(func(talking bool) {
			m.push(talkingMsg(talking))
		}),
		orchestration.WithHistoryChangedCallback(func(messages []orchestration.Message) {
			m.push(historyMsg(messages))
		}),
		orchestration.WithWarningCallback(func(message string) {
			m.push(warningMsg(message))
		}),
		orchestration.WithTurnErrorCallback(func(err error) {
			m.push(turnErrMsg{err: err})
		}),
	}
}

func (m *Model) push(msg tea.Msg) {
	select {
	case m.events <- msg:
	default:
	}
}

func (m *Model) listen() tea.Cmd {
	return func() tea.Msg {
		return <-m.events
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.listen())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			text := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if text != "" {
				if err := m.orchestrator.SendText(context.Background(), text); err != nil {
					m.err = err
				}
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case historyMsg:
		m.messages = msg
		m.refreshTranscript()
		cmds = append(cmds, m.listen())

	case stateMsg:
		m.state = string(msg)
		cmds = append(cmds, m.listen())

	case qualityMsg:
		m.quality = string(msg)
		cmds = append(cmds, m.listen())

	case talkingMsg:
		m.talking = bool(msg)
		cmds = append(cmds, m.listen())

	case warningMsg:
		m.warning = string(msg)
		cmds = append(cmds, m.listen())

	case turnErrMsg:
		m.err = msg.err
		cmds = append(cmds, m.listen())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)

	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) layout() {
	headerHeight := 2
	footerHeight := 3
	viewportHeight := m.height - headerHeight - footerHeight
	if viewportHeight < 1 {
		viewportHeight = 1
	}

	if !m.ready {
		m.viewport = viewport.New(m.width, viewportHeight)
		m.ready = true
	} else {
		m.viewport.Width = m.width
		m.viewport.Height = viewportHeight
	}
	m.input.Width = m.width - 4
	m.refreshTranscript()
}

func (m *Model) refreshTranscript() {
	if !m.ready {
		return
	}

	wrapWidth := m.viewport.Width - 2
	if wrapWidth < 10 {
		wrapWidth = 10
	}

	var lines []string
	for _, message := range m.messages {
		label := clientLabelStyle.Render("you")
		body := clientTextStyle
		if message.Sender == orchestration.SenderAvatar {
			label = avatarLabelStyle.Render("avatar")
			body = avatarTextStyle
		}

		content := message.Content
		if !message.IsComplete {
			content += " …"
		}
		wrapped := wordwrap.String(content, wrapWidth)
		lines = append(lines, label+" "+body.Render(wrapped))
	}

	m.viewport.SetContent(strings.Join(lines, "\n\n"))
	m.viewport.GotoBottom()
}

func (m *Model) View() string {
	if !m.ready {
		return "starting…"
	}

	status := fmt.Sprintf("session: %s", m.state)
	if m.quality != "" {
		status += fmt.Sprintf("  quality: %s", m.quality)
	}
	if m.talking {
		status += "  avatar is speaking"
	}
	header := titleStyle.Render("visage") + "  " + statusStyle.Render(status)

	footer := inputStyle.Render(m.input.View())
	if m.err != nil {
		footer += "\n" + errorStyle.Render("error: "+m.err.Error())
	} else if m.warning != "" {
		footer += "\n" + warningStyle.Render(m.warning)
	} else {
		footer += "\n" + helpStyle.Render("enter to send · esc to quit")
	}

	return header + "\n\n" + m.viewport.View() + "\n" + footer
}
