package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/analystchat/analystchat/internal/conversation"
	"github.com/analystchat/analystchat/internal/render"
)

// Styles controls how rendered messages look in a terminal. A nil Markdown
// renderer prints text blocks verbatim.
type Styles struct {
	User       lipgloss.Style
	Analyst    lipgloss.Style
	SQL        lipgloss.Style
	Suggestion lipgloss.Style
	Error      lipgloss.Style
	Muted      lipgloss.Style
	Border     lipgloss.Border
	Markdown   *glamour.TermRenderer
}

func DefaultStyles(width int) Styles {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		renderer = nil
	}
	return Styles{
		User:       lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#1f4fbf", Dark: "#8fb4ff"}),
		Analyst:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.AdaptiveColor{Light: "#0d7a4f", Dark: "#6fd6a6"}),
		SQL:        lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#5b3f99", Dark: "#c7b3ff"}),
		Suggestion: lipgloss.NewStyle().Foreground(lipgloss.AdaptiveColor{Light: "#8a5a00", Dark: "#ffd27a"}),
		Error:      lipgloss.NewStyle().Foreground(lipgloss.Color("#d23f31")),
		Muted:      lipgloss.NewStyle().Faint(true),
		Border:     lipgloss.RoundedBorder(),
		Markdown:   renderer,
	}
}

// PlainStyles renders without color or markdown, for pipes and tests.
func PlainStyles() Styles {
	return Styles{
		User:       lipgloss.NewStyle(),
		Analyst:    lipgloss.NewStyle(),
		SQL:        lipgloss.NewStyle(),
		Suggestion: lipgloss.NewStyle(),
		Error:      lipgloss.NewStyle(),
		Muted:      lipgloss.NewStyle(),
		Border:     lipgloss.NormalBorder(),
	}
}

func FormatMessage(msg render.Message, styles Styles, width int) string {
	var b strings.Builder
	label := "You"
	labelStyle := styles.User
	if msg.Role == conversation.RoleAnalyst {
		label = "Analyst"
		labelStyle = styles.Analyst
	}
	b.WriteString(labelStyle.Render(label))
	b.WriteString("\n")
	for _, element := range msg.Elements {
		b.WriteString(formatElement(element, styles, width))
		b.WriteString("\n")
	}
	return b.String()
}

func formatElement(element render.Element, styles Styles, width int) string {
	switch element.Kind {
	case render.KindText:
		if styles.Markdown != nil {
			if out, err := styles.Markdown.Render(element.Text); err == nil {
				return strings.TrimRight(out, "\n")
			}
		}
		return element.Text
	case render.KindSuggestions:
		lines := make([]string, 0, len(element.Suggestions))
		for _, s := range element.Suggestions {
			lines = append(lines, styles.Suggestion.Render(fmt.Sprintf("[%s] %s", s.Key, s.Label)))
		}
		return strings.Join(lines, "\n")
	case render.KindSQL:
		parts := []string{styles.Muted.Render("SQL Query"), styles.SQL.Render(element.Statement)}
		switch {
		case element.Error != "":
			parts = append(parts, styles.Error.Render("Error: "+element.Error))
		case element.Result != nil:
			parts = append(parts, formatTable(*element.Result, styles, width))
		}
		return strings.Join(parts, "\n")
	default:
		return ""
	}
}

func formatTable(result render.Table, styles Styles, width int) string {
	rows := make([][]string, 0, len(result.Rows))
	for _, row := range result.Rows {
		cells := make([]string, 0, len(row))
		for _, value := range row {
			if value == nil {
				cells = append(cells, "NULL")
				continue
			}
			cells = append(cells, fmt.Sprint(value))
		}
		rows = append(rows, cells)
	}
	t := table.New().
		Border(styles.Border).
		Headers(result.Columns...).
		Rows(rows...)
	if width > 0 && lipgloss.Width(t.String()) > width {
		t = t.Width(width)
	}
	summary := styles.Muted.Render(fmt.Sprintf("%d row(s) in %dms", len(result.Rows), result.DurationMs))
	return t.String() + "\n" + summary
}
