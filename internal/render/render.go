package render

import (
	"context"
	"log/slog"
	"time"

	"github.com/analystchat/analystchat/internal/conversation"
	"github.com/analystchat/analystchat/internal/observability"
	"github.com/analystchat/analystchat/internal/query"
)

type Kind string

const (
	KindText        Kind = "text"
	KindSuggestions Kind = "suggestions"
	KindSQL         Kind = "sql"
)

type SuggestionButton struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type Table struct {
	Columns    []string `json:"columns"`
	Rows       [][]any  `json:"rows"`
	DurationMs int64    `json:"duration_ms"`
}

// Element is one drawable piece of a message, independent of the surface
// that draws it.
type Element struct {
	Kind        Kind               `json:"kind"`
	Text        string             `json:"text,omitempty"`
	Suggestions []SuggestionButton `json:"suggestions,omitempty"`
	Statement   string             `json:"statement,omitempty"`
	Result      *Table             `json:"result,omitempty"`
	Error       string             `json:"error,omitempty"`
}

type Message struct {
	Index    int               `json:"index"`
	Role     conversation.Role `json:"role"`
	Elements []Element         `json:"elements"`
}

type Options struct {
	RowLimit     int
	CacheResults bool
	CacheSize    int
	Logger       *slog.Logger
}

type Renderer struct {
	engine   query.Engine
	rowLimit int
	cache    *resultCache
	logger   *slog.Logger
}

func New(engine query.Engine, opts Options) *Renderer {
	r := &Renderer{engine: engine, rowLimit: opts.RowLimit, logger: opts.Logger}
	if r.logger == nil {
		r.logger = slog.New(slog.DiscardHandler)
	}
	if opts.CacheResults {
		r.cache = newResultCache(opts.CacheSize)
	}
	return r
}

// Render maps content blocks to elements in order. SQL blocks are executed
// every time unless result caching is enabled.
func (r *Renderer) Render(ctx context.Context, sessionID string, content conversation.Content, messageIndex int) []Element {
	elements := make([]Element, 0, len(content))
	suggestionIndex := 0
	for _, block := range content {
		switch typed := block.(type) {
		case conversation.Text:
			elements = append(elements, Element{Kind: KindText, Text: typed.Text})
		case conversation.Suggestions:
			buttons := make([]SuggestionButton, 0, len(typed.Items))
			for _, label := range typed.Items {
				buttons = append(buttons, SuggestionButton{
					Key:   conversation.SuggestionKey(messageIndex, suggestionIndex),
					Label: label,
				})
				suggestionIndex++
			}
			elements = append(elements, Element{Kind: KindSuggestions, Suggestions: buttons})
		case conversation.SQL:
			elements = append(elements, r.sqlElement(ctx, cacheKey{sessionID, messageIndex, typed.Statement}, false))
		default:
			r.logger.DebugContext(ctx, "skipping unknown content block",
				slog.String("session_id", sessionID),
				slog.Int("message_index", messageIndex),
				slog.String("type", string(block.Type())),
			)
		}
	}
	return elements
}

// RenderTranscript renders the whole log, oldest first.
func (r *Renderer) RenderTranscript(ctx context.Context, sessionID string, messages []conversation.Message) []Message {
	out := make([]Message, 0, len(messages))
	for index, message := range messages {
		out = append(out, Message{
			Index:    index,
			Role:     message.Role,
			Elements: r.Render(ctx, sessionID, message.Content, index),
		})
	}
	return out
}

// Rerun executes every SQL block of content again, bypassing and then
// refreshing the cache.
func (r *Renderer) Rerun(ctx context.Context, sessionID string, content conversation.Content, messageIndex int) []Element {
	statements := content.Statements()
	elements := make([]Element, 0, len(statements))
	for _, statement := range statements {
		elements = append(elements, r.sqlElement(ctx, cacheKey{sessionID, messageIndex, statement}, true))
	}
	return elements
}

// Forget drops cached results of one session.
func (r *Renderer) Forget(sessionID string) {
	if r.cache != nil {
		r.cache.forget(sessionID)
	}
}

func (r *Renderer) sqlElement(ctx context.Context, key cacheKey, fresh bool) Element {
	element := Element{Kind: KindSQL, Statement: key.statement}
	if r.cache != nil && !fresh {
		if cached, ok := r.cache.get(key); ok {
			observability.IncrementRenderCacheHit()
			element.Result = cached
			return element
		}
	}

	table, err := r.execute(ctx, key.statement)
	if err != nil {
		r.logger.WarnContext(ctx, "sql execution failed",
			slog.String("session_id", key.sessionID),
			slog.Int("message_index", key.messageIndex),
			slog.String("error", err.Error()),
		)
		element.Error = err.Error()
		return element
	}
	if r.cache != nil {
		r.cache.add(key, table)
	}
	element.Result = table
	return element
}

func (r *Renderer) execute(ctx context.Context, statement string) (*Table, error) {
	if r.engine == nil {
		return nil, errNoEngine
	}
	start := time.Now()
	result, err := r.engine.Execute(ctx, query.Request{SQL: statement, RowLimit: r.rowLimit})
	observability.ObserveSQLExecution(err, time.Since(start))
	if err != nil {
		return nil, err
	}
	return &Table{
		Columns:    result.Columns,
		Rows:       result.Rows,
		DurationMs: result.Duration.Milliseconds(),
	}, nil
}
