package conversation

import (
	"errors"
	"testing"
	"time"
)

func TestResetClearsMessagesAndPendingSuggestion(t *testing.T) {
	state := NewState("s1", "", time.Now())
	state.AppendMessage(RoleUser, Content{Text{Text: "a"}})
	state.AppendMessage(RoleAnalyst, Content{Text{Text: "b"}})
	state.AppendMessage(RoleUser, Content{Text{Text: "c"}})
	state.SetPendingSuggestion("d")
	state.RequestReset()

	state.Reset()

	if len(state.Messages) != 0 {
		t.Fatalf("messages = %d", len(state.Messages))
	}
	if state.PendingSuggestion != nil {
		t.Fatalf("pending = %q", *state.PendingSuggestion)
	}
	if state.ResetRequested {
		t.Fatal("ResetRequested should be cleared")
	}

	state.Reset()
	if len(state.Messages) != 0 || state.PendingSuggestion != nil {
		t.Fatal("second Reset() changed state")
	}
}

func TestAppendMessagePanicsOnInvalidRole(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	state := NewState("s1", "", time.Now())
	state.AppendMessage(Role("assistant"), nil)
}

func TestTakePendingSuggestionConsumesValue(t *testing.T) {
	state := NewState("s1", "", time.Now())
	if _, ok := state.TakePendingSuggestion(); ok {
		t.Fatal("expected no pending suggestion")
	}
	state.SetPendingSuggestion("top products")
	got, ok := state.TakePendingSuggestion()
	if !ok || got != "top products" {
		t.Fatalf("TakePendingSuggestion() = %q, %v", got, ok)
	}
	if _, ok := state.TakePendingSuggestion(); ok {
		t.Fatal("pending suggestion should be cleared")
	}
}

func TestSuggestionResolvesFlattenedIndex(t *testing.T) {
	state := NewState("s1", "", time.Now())
	state.AppendMessage(RoleUser, Content{Text{Text: "q"}})
	state.AppendMessage(RoleAnalyst, Content{
		Text{Text: "ambiguous"},
		Suggestions{Items: []string{"by month", "by region"}},
		Suggestions{Items: []string{"by product"}},
	})

	got, err := state.Suggestion("1_2")
	if err != nil {
		t.Fatalf("Suggestion() error = %v", err)
	}
	if got != "by product" {
		t.Fatalf("Suggestion() = %q", got)
	}

	for _, key := range []string{"1_3", "0_0", "5_0", "x", "1-0", "1_-1"} {
		if _, err := state.Suggestion(key); !errors.Is(err, ErrUnknownSuggestion) {
			t.Fatalf("Suggestion(%q) error = %v", key, err)
		}
	}
}

func TestTruncateRestoresPreviousLength(t *testing.T) {
	state := NewState("s1", "", time.Now())
	state.AppendMessage(RoleUser, Content{Text{Text: "a"}})
	before := len(state.Messages)
	state.AppendMessage(RoleUser, Content{Text{Text: "b"}})
	state.Truncate(before)
	if len(state.Messages) != 1 {
		t.Fatalf("messages = %d", len(state.Messages))
	}
}
