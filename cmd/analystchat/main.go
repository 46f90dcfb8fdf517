package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/analystchat/analystchat/internal/app"
	"github.com/analystchat/analystchat/internal/config"
	"github.com/analystchat/analystchat/internal/observability"
	"github.com/analystchat/analystchat/internal/tui"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadFromEnv("analystchat")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	// The terminal owns stdout; logs go to a file when one is named.
	var logOutput io.Writer = io.Discard
	if path := strings.TrimSpace(os.Getenv("ANALYSTCHAT_TUI_LOG_FILE")); path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to open log file: %v\n", err)
			return 1
		}
		defer func() { _ = f.Close() }()
		logOutput = f
	}
	logger := observability.NewLogger(cfg, logOutput)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.Build(ctx, cfg, logger)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to initialize chat service: %v\n", err)
		return 1
	}
	defer func() { _ = application.Close() }()

	styles := tui.DefaultStyles(100)
	model := tui.NewModel(ctx, application.Chat, tui.Options{Styles: &styles})
	if _, err := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx)).Run(); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "terminal ui failed: %v\n", err)
		return 1
	}
	return 0
}
