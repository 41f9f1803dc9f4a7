// Package tui is a terminal chat client for the question answering
// engine.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"batchrag/pkg/document"
	"batchrag/pkg/rag"
)

// Engine answers queries against the indexed documents.
type Engine interface {
	Ask(ctx context.Context, query string, k int) (rag.Answer, error)
}

// answerMsg delivers an async engine response back to Update.
type answerMsg struct {
	answer rag.Answer
	err    error
}

var (
	headerStyle   = lipgloss.NewStyle().Bold(true)
	inputBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	youStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	botStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	sourceStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

// Model is the Bubble Tea model for the chat session.
type Model struct {
	engine     Engine
	input      textinput.Model
	viewport   viewport.Model
	transcript []string
	topK       int
	waiting    bool
	ready      bool
}

// New creates a chat model retrieving topK documents per question.
func New(engine Engine, topK int) Model {
	if topK <= 0 {
		topK = 5
	}
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about The Batch and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{engine: engine, input: ti, viewport: viewport.New(0, 0), topK: topK}
}

// Init starts the text input cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// Update handles key, resize and answer events.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, ih := inputBoxStyle.GetFrameSize()
		reserved := 2 + ih + 1 // header and spacer, input frame, status line
		m.viewport.Width = max(20, msg.Width)
		m.viewport.Height = max(3, msg.Height-reserved)
		m.viewport.SetContent(m.transcriptView())
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			query := strings.TrimSpace(m.input.Value())
			if query == "" || m.waiting {
				return m, nil
			}
			m.waiting = true
			m.input.Reset()
			m.transcript = append(m.transcript, youStyle.Render("You: ")+query)
			m.viewport.SetContent(m.transcriptView())
			m.viewport.GotoBottom()
			return m, m.ask(query)
		}

	case answerMsg:
		m.waiting = false
		if msg.err != nil {
			m.transcript = append(m.transcript, errorStyle.Render("Error: "+msg.err.Error()))
		} else {
			m.transcript = append(m.transcript, botStyle.Render("Assistant: ")+msg.answer.Text)
			if sources := renderSources(msg.answer.Sources); sources != "" {
				m.transcript = append(m.transcript, sources)
			}
		}
		m.viewport.SetContent(m.transcriptView())
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// View renders the transcript, input box and status line.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("The Batch RAG chat")
	return header + "\n" + m.viewport.View() + "\n" +
		inputBoxStyle.Render(m.input.View()) + "\n" +
		statusStyle.Render(m.statusLine())
}

func (m Model) ask(query string) tea.Cmd {
	return func() tea.Msg {
		answer, err := m.engine.Ask(context.Background(), query, m.topK)
		return answerMsg{answer: answer, err: err}
	}
}

func (m Model) transcriptView() string {
	if len(m.transcript) == 0 {
		return "Ask a question to get started."
	}
	return strings.Join(m.transcript, "\n\n")
}

func (m Model) statusLine() string {
	if m.waiting {
		return "Thinking..."
	}
	return fmt.Sprintf("top_k=%d  enter to ask, ctrl+c to quit", m.topK)
}

func renderSources(sources []rag.Source) string {
	if len(sources) == 0 {
		return ""
	}
	lines := make([]string, 0, len(sources)+1)
	lines = append(lines, "Sources:")
	for i, src := range sources {
		if src.Type == document.KindImage {
			lines = append(lines, fmt.Sprintf("%d. [image] %s", i+1, src.Caption))
			continue
		}
		line := fmt.Sprintf("%d. %s", i+1, src.Title)
		if src.Source != "" {
			line += " (" + src.Source + ")"
		}
		lines = append(lines, line)
	}
	return sourceStyle.Render(strings.Join(lines, "\n"))
}

// Run starts the chat session and blocks until the user quits.
func Run(engine Engine, topK int) error {
	_, err := tea.NewProgram(New(engine, topK), tea.WithAltScreen()).Run()
	return err
}
