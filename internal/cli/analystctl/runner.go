package analystctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/analystchat/analystchat/internal/chat"
	"github.com/analystchat/analystchat/internal/render"
	"github.com/analystchat/analystchat/internal/tui"
)

const (
	OutputJSON = "json"
	OutputText = "text"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Output     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

type command struct {
	name   string
	args   []string
	method string
	path   func(args []string) string
	body   func(args []string) any
	usage  string
}

var commands = []command{
	{name: "health", method: http.MethodGet, path: static("/v1/health"), usage: "GET /v1/health"},
	{name: "ready", method: http.MethodGet, path: static("/v1/ready"), usage: "GET /v1/ready"},
	{name: "new", method: http.MethodPost, path: static("/v1/sessions"), usage: "start a session"},
	{
		name: "show", args: []string{"session"}, method: http.MethodGet,
		path:  sessionPath(""),
		usage: "print the transcript",
	},
	{
		name: "delete", args: []string{"session"}, method: http.MethodDelete,
		path:  sessionPath(""),
		usage: "drop a session",
	},
	{
		name: "ask", args: []string{"session", "question..."}, method: http.MethodPost,
		path:  sessionPath("/messages"),
		body:  func(args []string) any { return map[string]string{"question": strings.Join(args[1:], " ")} },
		usage: "send a question",
	},
	{
		name: "suggest", args: []string{"session", "key"}, method: http.MethodPost,
		path:  sessionPath("/suggestions"),
		body:  func(args []string) any { return map[string]string{"key": args[1]} },
		usage: "send a suggested question by key",
	},
	{
		name: "reset", args: []string{"session"}, method: http.MethodPost,
		path:  sessionPath("/reset"),
		usage: "clear the conversation",
	},
	{
		name: "sql", args: []string{"session", "message-index"}, method: http.MethodPost,
		path: func(args []string) string {
			return "/v1/sessions/" + url.PathEscape(args[0]) + "/messages/" + url.PathEscape(args[1]) + "/sql"
		},
		usage: "re-run a reply's SQL",
	},
	{
		name: "archive", args: []string{"session"}, method: http.MethodPost,
		path:  sessionPath("/archive"),
		usage: "write the transcript to object storage",
	},
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("analystctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "analystchat API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	output := fs.String("output", firstNonEmpty(defaults.Output, OutputJSON), "output format: json or text")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 60*time.Second), "HTTP timeout (e.g. 60s)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}
	if *output != OutputJSON && *output != OutputText {
		_, _ = fmt.Fprintf(stderr, "unknown output format %q\n", *output)
		return 2
	}

	name := strings.TrimSpace(fs.Arg(0))
	cmd, ok := lookup(name)
	if !ok {
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		writeUsage(stderr)
		return 2
	}
	cmdArgs := fs.Args()[1:]
	if len(cmdArgs) < len(cmd.args) {
		_, _ = fmt.Fprintf(stderr, "usage: analystctl %s %s\n", cmd.name, strings.Join(cmd.args, " "))
		return 2
	}
	if cmd.name == "sql" {
		if _, err := strconv.Atoi(cmdArgs[1]); err != nil {
			_, _ = fmt.Fprintf(stderr, "message index must be an integer: %q\n", cmdArgs[1])
			return 2
		}
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	var body any
	if cmd.body != nil {
		body = cmd.body(cmdArgs)
	}
	endpoint := strings.TrimRight(*baseURL, "/") + cmd.path(cmdArgs)
	code, responseBody, err := doRequest(ctx, client, cmd.method, endpoint, *apiKey, body)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	if code >= 400 {
		_, _ = fmt.Fprintf(stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}

	if *output == OutputText {
		if text, ok := formatText(cmd.name, responseBody); ok {
			_, _ = fmt.Fprintln(stdout, text)
			return 0
		}
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(stdout, string(responseBody))
	}
	return 0
}

func doRequest(ctx context.Context, client *http.Client, method, endpoint, apiKey string, payload any) (int, []byte, error) {
	var reader io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if strings.TrimSpace(apiKey) != "" {
		req.Header.Set("X-API-Key", strings.TrimSpace(apiKey))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, respBody, nil
}

// formatText renders turns and transcripts for a terminal. Other responses
// fall back to JSON.
func formatText(name string, raw []byte) (string, bool) {
	var messages []render.Message
	switch name {
	case "ask", "suggest":
		var turn chat.Turn
		if err := json.Unmarshal(raw, &turn); err != nil {
			return "", false
		}
		for _, msg := range []*render.Message{turn.User, turn.Reply} {
			if msg != nil {
				messages = append(messages, *msg)
			}
		}
	case "show":
		var transcript chat.Transcript
		if err := json.Unmarshal(raw, &transcript); err != nil {
			return "", false
		}
		messages = transcript.Messages
	default:
		return "", false
	}

	styles := tui.PlainStyles()
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		parts = append(parts, tui.FormatMessage(msg, styles, 100))
	}
	return strings.Join(parts, "\n"), true
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func lookup(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

func static(path string) func([]string) string {
	return func([]string) string { return path }
}

func sessionPath(suffix string) func([]string) string {
	return func(args []string) string {
		return "/v1/sessions/" + url.PathEscape(args[0]) + suffix
	}
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: analystctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	for _, cmd := range commands {
		signature := strings.TrimSpace(cmd.name + " " + strings.Join(cmd.args, " "))
		_, _ = fmt.Fprintf(w, "  %-34s %s\n", signature, cmd.usage)
	}
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
