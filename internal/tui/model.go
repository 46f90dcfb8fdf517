package tui

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/analystchat/analystchat/internal/chat"
	"github.com/analystchat/analystchat/internal/conversation"
	"github.com/analystchat/analystchat/internal/render"
)

const (
	waitingText = "Waiting for Analyst's response..."
	helpText    = "enter: send · 1-9: pick suggestion · ctrl+r: reset · ctrl+d: debug · ctrl+c: quit"
)

// Backend is the interaction loop the terminal drives.
type Backend interface {
	NewSession(ctx context.Context) (*conversation.State, error)
	Handle(ctx context.Context, sessionID string, trigger chat.Trigger) (chat.Turn, error)
}

type Options struct {
	Title  string
	Width  int
	Styles *Styles
}

type sessionCreatedMsg struct {
	id  string
	err error
}

type turnMsg struct {
	turn chat.Turn
	err  error
}

type Model struct {
	ctx     context.Context
	backend Backend
	title   string
	styles  Styles
	width   int

	input   textinput.Model
	spinner spinner.Model

	sessionID   string
	blocks      []string
	suggestions []render.SuggestionButton
	debug       *chat.Debug
	showDebug   bool
	waiting     bool
	err         error
}

func NewModel(ctx context.Context, backend Backend, opts Options) *Model {
	width := opts.Width
	if width <= 0 {
		width = 100
	}
	styles := PlainStyles()
	if opts.Styles != nil {
		styles = *opts.Styles
	}
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = "Cortex Analyst"
	}

	input := textinput.New()
	input.Placeholder = "What is your question?"
	input.Prompt = "› "
	input.CharLimit = 2000
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return &Model{
		ctx:     ctx,
		backend: backend,
		title:   title,
		styles:  styles,
		width:   width,
		input:   input,
		spinner: sp,
		waiting: true,
	}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick, createSession(m.ctx, m.backend))
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = max(msg.Width-4, 10)
		return m, nil

	case sessionCreatedMsg:
		m.waiting = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.sessionID = msg.id
		return m, nil

	case turnMsg:
		m.applyTurn(msg)
		return m, nil

	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		return m, tea.Quit
	case tea.KeyCtrlD:
		m.showDebug = !m.showDebug
		return m, nil
	}
	if m.waiting || m.sessionID == "" {
		return m, nil
	}

	switch msg.Type {
	case tea.KeyCtrlR:
		return m, m.submit(chat.Trigger{Reset: true})
	case tea.KeyEnter:
		question := strings.TrimSpace(m.input.Value())
		if question == "" {
			return m, nil
		}
		m.input.Reset()
		return m, m.submit(chat.Trigger{Question: question})
	case tea.KeyRunes:
		if m.input.Value() == "" && len(msg.Runes) == 1 {
			if n := int(msg.Runes[0] - '0'); n >= 1 && n <= 9 && n <= len(m.suggestions) {
				return m, m.submit(chat.Trigger{SuggestionKey: m.suggestions[n-1].Key})
			}
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) submit(trigger chat.Trigger) tea.Cmd {
	m.waiting = true
	m.err = nil
	return tea.Batch(m.spinner.Tick, runTrigger(m.ctx, m.backend, m.sessionID, trigger))
}

func (m *Model) applyTurn(msg turnMsg) {
	m.waiting = false
	if msg.turn.Reset {
		m.blocks = nil
		m.suggestions = nil
		m.debug = nil
	}
	if msg.err != nil {
		m.err = msg.err
		return
	}
	for _, message := range []*render.Message{msg.turn.User, msg.turn.Reply} {
		if message != nil {
			m.blocks = append(m.blocks, FormatMessage(*message, m.styles, m.width))
		}
	}
	if msg.turn.Reply != nil {
		m.suggestions = collectSuggestions(*msg.turn.Reply)
	}
	if msg.turn.Debug != nil {
		m.debug = msg.turn.Debug
	}
}

func (m *Model) View() string {
	var b strings.Builder
	b.WriteString(m.styles.Analyst.Render(m.title))
	b.WriteString("\n\n")
	for _, block := range m.blocks {
		b.WriteString(block)
		b.WriteString("\n")
	}
	if m.waiting {
		b.WriteString(m.spinner.View() + " " + waitingText + "\n")
	}
	if m.err != nil {
		b.WriteString(m.styles.Error.Render("Error: "+m.err.Error()) + "\n")
	}
	if m.showDebug && m.debug != nil {
		b.WriteString(m.debugView() + "\n")
	}
	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(m.styles.Muted.Render(helpText))
	return b.String()
}

func (m *Model) debugView() string {
	sections := []struct {
		name  string
		value any
	}{
		{"history", m.debug.History},
		{"request", m.debug.Request},
		{"response", m.debug.Response},
	}
	lines := make([]string, 0, len(sections))
	for _, section := range sections {
		encoded, err := json.Marshal(section.value)
		if err != nil || string(encoded) == "null" {
			continue
		}
		lines = append(lines, m.styles.Muted.Render(section.name+": ")+string(encoded))
	}
	return lipgloss.NewStyle().
		Border(m.styles.Border).
		Render(strings.Join(lines, "\n"))
}

func collectSuggestions(msg render.Message) []render.SuggestionButton {
	var out []render.SuggestionButton
	for _, element := range msg.Elements {
		if element.Kind == render.KindSuggestions {
			out = append(out, element.Suggestions...)
		}
	}
	return out
}

func createSession(ctx context.Context, backend Backend) tea.Cmd {
	return func() tea.Msg {
		state, err := backend.NewSession(ctx)
		if err != nil {
			return sessionCreatedMsg{err: err}
		}
		return sessionCreatedMsg{id: state.ID}
	}
}

func runTrigger(ctx context.Context, backend Backend, sessionID string, trigger chat.Trigger) tea.Cmd {
	return func() tea.Msg {
		turn, err := backend.Handle(ctx, sessionID, trigger)
		return turnMsg{turn: turn, err: err}
	}
}
