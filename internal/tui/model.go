// Package tui is the interactive terminal chat over the retrieval chain.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/0xcro3dile/docurag-go/internal/domain/entities"
)

// Asker is the chat-facing subset of the conversational chain.
type Asker interface {
	Query(ctx context.Context, req entities.QueryRequest) (*entities.Answer, error)
}

// answerMsg carries a finished (or failed) answer back to Update.
type answerMsg struct {
	question string
	answer   *entities.Answer
	err      error
}

// Model is the Bubble Tea model for the chat.
type Model struct {
	ctx        context.Context
	asker      Asker
	input      textinput.Model
	viewport   viewport.Model
	history    []entities.Turn
	transcript []string
	summary    string
	status     string
	pending    bool
	ready      bool
}

// New creates a chat model. summary is shown under the header.
func New(ctx context.Context, asker Asker, summary string) Model {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Ask about your documents and press Enter"
	ti.Focus()
	ti.CharLimit = 0
	return Model{
		ctx:      ctx,
		asker:    asker,
		input:    ti,
		viewport: viewport.New(0, 0),
		summary:  summary,
		status:   "Ready. Ctrl+C to quit.",
	}
}

// Init starts the cursor blink.
func (m Model) Init() tea.Cmd { return textinput.Blink }

// History returns the completed turns.
func (m Model) History() []entities.Turn { return m.history }

// Update handles keys, window size and answers.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.ready = true
		_, th := transcriptBoxStyle.GetFrameSize()
		_, qh := queryBoxStyle.GetFrameSize()
		reserved := 2 + 1 + qh + 1 // header, summary, status, input box
		m.viewport.Width = max(20, msg.Width-2)
		m.viewport.Height = max(3, msg.Height-reserved-th)
		m.refresh()
		return m, nil

	case answerMsg:
		m.pending = false
		if msg.err != nil {
			m.status = "Error: " + msg.err.Error()
			m.transcript = append(m.transcript, errorStyle.Render("Error: "+msg.err.Error()))
		} else {
			m.history = append(m.history, entities.Turn{Question: msg.question, Answer: msg.answer.Text})
			m.transcript = append(m.transcript, renderAnswer(msg.answer))
			m.status = fmt.Sprintf("%d sources. Ctrl+C to quit.", len(msg.answer.Sources))
		}
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyCtrlD, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyPgUp, tea.KeyPgDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			q := strings.TrimSpace(m.input.Value())
			if q == "" || m.pending {
				return m, nil
			}
			m.input.SetValue("")
			m.pending = true
			m.status = "Thinking..."
			m.transcript = append(m.transcript, questionStyle.Render("You: ")+q)
			m.refresh()
			return m, m.ask(q)
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// ask runs the query off the UI loop with a snapshot of the history.
func (m Model) ask(question string) tea.Cmd {
	req := entities.QueryRequest{
		Question: question,
		History:  append([]entities.Turn(nil), m.history...),
	}
	ctx, asker := m.ctx, m.asker
	return func() tea.Msg {
		answer, err := asker.Query(ctx, req)
		return answerMsg{question: question, answer: answer, err: err}
	}
}

func (m *Model) refresh() {
	content := "Ask a question to get started."
	if len(m.transcript) > 0 {
		content = strings.Join(m.transcript, "\n\n")
	}
	if m.viewport.Width > 0 {
		content = lipgloss.NewStyle().Width(m.viewport.Width).Render(content)
	}
	m.viewport.SetContent(content)
	m.viewport.GotoBottom()
}

// View renders header, transcript, input and status.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	header := headerStyle.Render("DocuRAG Chat")
	summary := mutedStyle.Render(m.summary)
	transcript := transcriptBoxStyle.Render(m.viewport.View())
	input := queryBoxStyle.Render(m.input.View())
	status := statusStyle.Render(m.status)
	return header + "\n" + summary + "\n" + transcript + "\n" + input + "\n" + status
}

func renderAnswer(a *entities.Answer) string {
	var sb strings.Builder
	sb.WriteString(answerStyle.Render("Assistant: "))
	sb.WriteString(a.Text)
	for i, src := range a.Sources {
		sb.WriteString("\n")
		sb.WriteString(mutedStyle.Render(formatSource(i+1, src)))
	}
	return sb.String()
}

func formatSource(n int, src entities.Source) string {
	if src.PageNumber > 0 {
		return fmt.Sprintf("  [%d] %s (page %d)", n, src.FileName, src.PageNumber)
	}
	return fmt.Sprintf("  [%d] %s", n, src.FileName)
}

var (
	headerStyle        = lipgloss.NewStyle().Bold(true)
	mutedStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	statusStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	questionStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	answerStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("13")).Bold(true)
	errorStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	transcriptBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	queryBoxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
)
