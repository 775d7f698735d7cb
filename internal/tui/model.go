// Package tui is the terminal chat client.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hyperjump/ragchat/internal/models"
)

// Asker is the TUI-facing subset of the chat session.
type Asker interface {
	Ask(ctx context.Context, question, model string) models.Answer
}

type turn struct {
	question string
	answer   models.Answer
	pending  bool
}

// answerMsg carries a finished answer back into Update.
type answerMsg struct {
	index  int
	answer models.Answer
}

// Model is the Bubble Tea model for the chat window.
type Model struct {
	ctx      context.Context
	asker    Asker
	input    textinput.Model
	viewport viewport.Model
	turns    []turn
	model    string
	status   string
	busy     bool
	ready    bool
}

// New creates a chat model asking with model ("" uses the session default).
func New(ctx context.Context, asker Asker, model string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents, /model <name> to switch, /clear, /quit"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:      ctx,
		asker:    asker,
		input:    ti,
		viewport: viewport.New(0, 0),
		model:    model,
		status:   "Ready.",
	}
}

// Init initializes the model (text input cursor blink).
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, window and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptStyle.GetFrameSize()
		_, ih := inputStyle.GetFrameSize()
		reserved := 1 + 1 + ih + 1 // header, status, input box, spacer
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil
	case answerMsg:
		if msg.index < len(m.turns) {
			m.turns[msg.index].answer = msg.answer
			m.turns[msg.index].pending = false
		}
		m.busy = false
		m.status = fmt.Sprintf("%s in %.2fs", msg.answer.Kind, msg.answer.Seconds())
		m.refresh()
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
		if msg.Type == tea.KeyEnter {
			return m.submit()
		}
		switch msg.String() {
		case "pgup", "pgdown":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		}
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	if strings.HasPrefix(text, "/") {
		return m.command(text)
	}
	if m.busy {
		m.status = "Still answering the previous question."
		return m, nil
	}
	m.input.Reset()
	m.turns = append(m.turns, turn{question: text, pending: true})
	m.busy = true
	m.status = "Thinking..."
	m.refresh()
	return m, m.ask(len(m.turns)-1, text)
}

func (m Model) command(text string) (tea.Model, tea.Cmd) {
	m.input.Reset()
	fields := strings.Fields(text)
	switch fields[0] {
	case "/quit", "/exit":
		return m, tea.Quit
	case "/clear":
		m.turns = nil
		m.status = "Transcript cleared."
	case "/model":
		if len(fields) < 2 {
			m.status = "Model: " + m.modelName()
			break
		}
		m.model = fields[1]
		m.status = "Switched to " + m.model
	default:
		m.status = "Unknown command " + fields[0]
	}
	m.refresh()
	return m, nil
}

func (m Model) ask(index int, question string) tea.Cmd {
	ctx, asker, model := m.ctx, m.asker, m.model
	return func() tea.Msg {
		return answerMsg{index: index, answer: asker.Ask(ctx, question, model)}
	}
}

func (m Model) modelName() string {
	if m.model == "" {
		return "default"
	}
	return m.model
}

func (m *Model) refresh() {
	m.viewport.SetContent(m.renderTranscript())
	m.viewport.GotoBottom()
}

// View renders the transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("ragchat") + " " + dimStyle.Render("model: "+m.modelName())
	transcript := transcriptStyle.Render(m.viewport.View())
	input := inputStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + transcript + "\n" + input + "\n" + status
}

func (m Model) renderTranscript() string {
	if len(m.turns) == 0 {
		return dimStyle.Render("No questions yet.")
	}
	width := max(20, m.viewport.Width-4)
	var b strings.Builder
	for i, t := range m.turns {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(questionStyle.Render("You: "))
		b.WriteString(lipgloss.NewStyle().Width(width).Render(t.question))
		b.WriteString("\n")
		if t.pending {
			b.WriteString(dimStyle.Render("..."))
			continue
		}
		style := answerStyle
		if !t.answer.OK() {
			style = errorStyle
		}
		b.WriteString(style.Width(width).Render(t.answer.Display()))
	}
	return b.String()
}

var (
	headerStyle     = lipgloss.NewStyle().Bold(true)
	dimStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle     = lipgloss.NewStyle()
	errorStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	transcriptStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	inputStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
