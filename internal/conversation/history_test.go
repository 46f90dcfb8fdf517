package conversation

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuildHistoryBoundsAndFinalEntry(t *testing.T) {
	for window := 1; window <= 7; window++ {
		for length := 0; length <= 10; length++ {
			log := alternatingLog(length)
			got := BuildHistory(log, "next?", window)
			if len(got) > window {
				t.Fatalf("window=%d len=%d: got %d entries", window, length, len(got))
			}
			last := got[len(got)-1]
			if diff := cmp.Diff(UserQuestion("next?"), last); diff != "" {
				t.Fatalf("window=%d len=%d: last entry mismatch (-want +got):\n%s", window, length, diff)
			}
		}
	}
}

func TestBuildHistoryEmptyLog(t *testing.T) {
	got := BuildHistory(nil, "What is total revenue?", DefaultWindowSize)
	want := []Message{{Role: RoleUser, Content: Content{Text{Text: "What is total revenue?"}}}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("BuildHistory() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildHistorySkipsMostRecentEntry(t *testing.T) {
	log := alternatingLog(7)
	got := BuildHistory(log, "q", 5)

	// start = 7-5 = 2, prefix = log[2:6]
	want := append([]Message{}, log[2:6]...)
	want = append(want, UserQuestion("q"))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("BuildHistory() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildHistoryDoesNotMutateLog(t *testing.T) {
	log := []Message{
		UserQuestion("a"),
		{Role: RoleAnalyst, Content: Content{Suggestions{Items: []string{"x", "y"}}}},
		UserQuestion("b"),
	}
	before := make([]Message, len(log))
	for i := range log {
		before[i] = log[i].Clone()
	}

	got := BuildHistory(log, "b", 5)
	got[1].Content[0] = Text{Text: "changed"}

	if diff := cmp.Diff(before, log); diff != "" {
		t.Fatalf("log mutated (-before +after):\n%s", diff)
	}
}

func TestBuildHistoryTreatsNonPositiveWindowAsOne(t *testing.T) {
	got := BuildHistory(alternatingLog(4), "q", 0)
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
}

func alternatingLog(n int) []Message {
	out := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		if i%2 == 0 {
			out = append(out, UserQuestion(fmt.Sprintf("question %d", i)))
			continue
		}
		out = append(out, Message{Role: RoleAnalyst, Content: Content{Text{Text: fmt.Sprintf("answer %d", i)}}})
	}
	return out
}
