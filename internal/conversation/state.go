package conversation

import (
	"errors"
	"fmt"
	"time"
)

var ErrUnknownSuggestion = errors.New("unknown suggestion")

// State is everything one chat session remembers between triggers.
type State struct {
	ID                string    `json:"id"`
	Owner             string    `json:"owner,omitempty"`
	Messages          []Message `json:"messages"`
	PendingSuggestion *string   `json:"pending_suggestion,omitempty"`
	ResetRequested    bool      `json:"reset_requested"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
	// Revision counts successful saves. Stores refuse a save whose revision
	// is behind the stored one.
	Revision int64 `json:"revision"`
}

func NewState(id, owner string, now time.Time) *State {
	return &State{
		ID:        id,
		Owner:     owner,
		Messages:  []Message{},
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}
}

func (s *State) RequestReset() {
	s.ResetRequested = true
}

// Reset clears the log and any pending suggestion. Calling it again is a no-op.
func (s *State) Reset() {
	s.Messages = []Message{}
	s.PendingSuggestion = nil
	s.ResetRequested = false
}

// AppendMessage appends a message and returns its index. An unknown role is a
// programming error and panics.
func (s *State) AppendMessage(role Role, content Content) int {
	if !role.Valid() {
		panic(fmt.Sprintf("conversation: invalid role %q", role))
	}
	s.Messages = append(s.Messages, Message{Role: role, Content: content})
	return len(s.Messages) - 1
}

// Truncate drops every message from index n onwards.
func (s *State) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n < len(s.Messages) {
		s.Messages = s.Messages[:n]
	}
}

func (s *State) SetPendingSuggestion(text string) {
	s.PendingSuggestion = &text
}

// TakePendingSuggestion returns the pending suggestion and clears it.
func (s *State) TakePendingSuggestion() (string, bool) {
	if s.PendingSuggestion == nil {
		return "", false
	}
	text := *s.PendingSuggestion
	s.PendingSuggestion = nil
	return text, true
}

// Suggestion resolves a key produced by SuggestionKey.
func (s *State) Suggestion(key string) (string, error) {
	messageIndex, suggestionIndex, err := ParseSuggestionKey(key)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnknownSuggestion, err)
	}
	if messageIndex >= len(s.Messages) {
		return "", fmt.Errorf("%w: %s", ErrUnknownSuggestion, key)
	}
	items := s.Messages[messageIndex].Content.SuggestionList()
	if suggestionIndex >= len(items) {
		return "", fmt.Errorf("%w: %s", ErrUnknownSuggestion, key)
	}
	return items[suggestionIndex], nil
}

func (s *State) Touch(now time.Time) {
	s.UpdatedAt = now.UTC()
}

// Clone returns a deep copy so stores never share message slices with callers.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	out := *s
	out.Messages = make([]Message, len(s.Messages))
	for i, message := range s.Messages {
		out.Messages[i] = message.Clone()
	}
	if s.PendingSuggestion != nil {
		pending := *s.PendingSuggestion
		out.PendingSuggestion = &pending
	}
	return &out
}
