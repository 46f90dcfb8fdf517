package render

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/analystchat/analystchat/internal/conversation"
	"github.com/analystchat/analystchat/internal/query"
)

var fixedNow = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)

func TestRenderMapsBlocksInOrder(t *testing.T) {
	engine := &fakeEngine{result: query.Result{Columns: []string{"total_revenue"}, Rows: [][]any{{float64(42)}}}}
	renderer := New(engine, Options{})

	content := conversation.Content{
		conversation.Text{Text: "This is our interpretation of your question:"},
		conversation.SQL{Statement: "SELECT SUM(revenue) AS total_revenue FROM orders"},
		conversation.Other{Kind: "chart", Raw: json.RawMessage(`{"type":"chart"}`)},
		conversation.Suggestions{Items: []string{"Revenue by region?", "Revenue by month?"}},
	}
	got := renderer.Render(context.Background(), "s1", content, 3)

	want := []Element{
		{Kind: KindText, Text: "This is our interpretation of your question:"},
		{
			Kind:      KindSQL,
			Statement: "SELECT SUM(revenue) AS total_revenue FROM orders",
			Result:    &Table{Columns: []string{"total_revenue"}, Rows: [][]any{{float64(42)}}},
		},
		{Kind: KindSuggestions, Suggestions: []SuggestionButton{
			{Key: "3_0", Label: "Revenue by region?"},
			{Key: "3_1", Label: "Revenue by month?"},
		}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Render() mismatch (-want +got):\n%s", diff)
	}
	if engine.calls() != 1 {
		t.Fatalf("engine calls = %d", engine.calls())
	}
}

func TestRenderSuggestionKeysResolveAgainstState(t *testing.T) {
	state := conversation.NewState("s1", "", fixedNow)
	state.AppendMessage(conversation.RoleUser, conversation.Content{conversation.Text{Text: "q"}})
	content := conversation.Content{
		conversation.Suggestions{Items: []string{"a", "b"}},
		conversation.Suggestions{Items: []string{"c"}},
	}
	index := state.AppendMessage(conversation.RoleAnalyst, content)

	elements := New(nil, Options{}).Render(context.Background(), "s1", content, index)
	for _, element := range elements {
		for _, button := range element.Suggestions {
			label, err := state.Suggestion(button.Key)
			if err != nil {
				t.Fatalf("Suggestion(%q) error = %v", button.Key, err)
			}
			if label != button.Label {
				t.Fatalf("Suggestion(%q) = %q, want %q", button.Key, label, button.Label)
			}
		}
	}
	if got := elements[1].Suggestions[0].Key; got != "1_2" {
		t.Fatalf("second block key = %q", got)
	}
}

func TestRenderExecutesEagerlyWithoutCache(t *testing.T) {
	engine := &fakeEngine{result: query.Result{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}}
	renderer := New(engine, Options{RowLimit: 100})
	content := conversation.Content{conversation.SQL{Statement: "SELECT 1 AS n"}}

	renderer.Render(context.Background(), "s1", content, 1)
	renderer.Render(context.Background(), "s1", content, 1)

	if engine.calls() != 2 {
		t.Fatalf("engine calls = %d, want 2", engine.calls())
	}
	if engine.lastRequest.RowLimit != 100 {
		t.Fatalf("RowLimit = %d", engine.lastRequest.RowLimit)
	}
}

func TestRenderCachesPerSessionWhenEnabled(t *testing.T) {
	engine := &fakeEngine{result: query.Result{Columns: []string{"n"}, Rows: [][]any{{int64(1)}}}}
	renderer := New(engine, Options{CacheResults: true, CacheSize: 8})
	content := conversation.Content{conversation.SQL{Statement: "SELECT 1 AS n"}}
	ctx := context.Background()

	renderer.Render(ctx, "s1", content, 1)
	renderer.Render(ctx, "s1", content, 1)
	if engine.calls() != 1 {
		t.Fatalf("engine calls after cached render = %d, want 1", engine.calls())
	}

	renderer.Render(ctx, "s2", content, 1)
	if engine.calls() != 2 {
		t.Fatalf("engine calls for other session = %d, want 2", engine.calls())
	}

	renderer.Forget("s1")
	renderer.Render(ctx, "s1", content, 1)
	if engine.calls() != 3 {
		t.Fatalf("engine calls after Forget = %d, want 3", engine.calls())
	}

	renderer.Rerun(ctx, "s1", content, 1)
	if engine.calls() != 4 {
		t.Fatalf("engine calls after Rerun = %d, want 4", engine.calls())
	}
}

func TestRenderCapturesSQLErrorsPerElement(t *testing.T) {
	engine := &fakeEngine{err: errors.New(`table "orders" does not exist`)}
	renderer := New(engine, Options{CacheResults: true})
	content := conversation.Content{
		conversation.Text{Text: "Here you go"},
		conversation.SQL{Statement: "SELECT * FROM orders"},
	}

	elements := renderer.Render(context.Background(), "s1", content, 1)
	if len(elements) != 2 {
		t.Fatalf("elements = %d", len(elements))
	}
	if elements[1].Result != nil || elements[1].Error != `table "orders" does not exist` {
		t.Fatalf("sql element = %#v", elements[1])
	}

	// Failures are not cached.
	renderer.Render(context.Background(), "s1", content, 1)
	if engine.calls() != 2 {
		t.Fatalf("engine calls = %d, want 2", engine.calls())
	}
}

func TestRenderWithoutEngineReportsError(t *testing.T) {
	elements := New(nil, Options{}).Render(context.Background(), "s1", conversation.Content{conversation.SQL{Statement: "SELECT 1"}}, 1)
	if elements[0].Error == "" {
		t.Fatal("expected error without engine")
	}
}

func TestRenderTranscriptIndexesMessages(t *testing.T) {
	messages := []conversation.Message{
		conversation.UserQuestion("What is total revenue?"),
		{Role: conversation.RoleAnalyst, Content: conversation.Content{conversation.Suggestions{Items: []string{"By region?"}}}},
	}
	got := New(nil, Options{}).RenderTranscript(context.Background(), "s1", messages)
	if len(got) != 2 {
		t.Fatalf("messages = %d", len(got))
	}
	if got[0].Role != conversation.RoleUser || got[0].Elements[0].Text != "What is total revenue?" {
		t.Fatalf("user message = %#v", got[0])
	}
	if got[1].Index != 1 || got[1].Elements[0].Suggestions[0].Key != "1_0" {
		t.Fatalf("analyst message = %#v", got[1])
	}
}

func TestResultCacheEvictionKeepsIndexConsistent(t *testing.T) {
	cache := newResultCache(2)
	cache.add(cacheKey{"s1", 1, "a"}, &Table{})
	cache.add(cacheKey{"s1", 1, "b"}, &Table{})
	cache.add(cacheKey{"s2", 1, "c"}, &Table{})

	if cache.len() != 2 {
		t.Fatalf("len = %d", cache.len())
	}
	if _, ok := cache.get(cacheKey{"s1", 1, "a"}); ok {
		t.Fatal("expected oldest entry evicted")
	}
	if len(cache.bySession["s1"]) != 1 {
		t.Fatalf("s1 index = %#v", cache.bySession["s1"])
	}

	cache.forget("s1")
	if cache.len() != 1 {
		t.Fatalf("len after forget = %d", cache.len())
	}
	if _, ok := cache.bySession["s1"]; ok {
		t.Fatal("expected s1 index removed")
	}
}

type fakeEngine struct {
	mu          sync.Mutex
	result      query.Result
	err         error
	count       int
	lastRequest query.Request
}

func (f *fakeEngine) Execute(_ context.Context, request query.Request) (query.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.count++
	f.lastRequest = request
	return f.result, f.err
}

func (f *fakeEngine) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}
