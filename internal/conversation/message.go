package conversation

import (
	"fmt"
	"strconv"
	"strings"
)

type Role string

const (
	RoleUser    Role = "user"
	RoleAnalyst Role = "analyst"
)

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAnalyst:
		return true
	default:
		return false
	}
}

type Message struct {
	Role    Role    `json:"role"`
	Content Content `json:"content"`
}

// UserQuestion wraps a question typed by the user as a single text block.
func UserQuestion(question string) Message {
	return Message{Role: RoleUser, Content: Content{Text{Text: question}}}
}

func (m Message) Clone() Message {
	return Message{Role: m.Role, Content: m.Content.Clone()}
}

// SuggestionKey identifies a suggestion button by the index of its message and
// its position among that message's suggestions.
func SuggestionKey(messageIndex, suggestionIndex int) string {
	return fmt.Sprintf("%d_%d", messageIndex, suggestionIndex)
}

func ParseSuggestionKey(key string) (int, int, error) {
	left, right, ok := strings.Cut(strings.TrimSpace(key), "_")
	if !ok {
		return 0, 0, fmt.Errorf("invalid suggestion key %q", key)
	}
	messageIndex, err := strconv.Atoi(left)
	if err != nil || messageIndex < 0 {
		return 0, 0, fmt.Errorf("invalid suggestion key %q", key)
	}
	suggestionIndex, err := strconv.Atoi(right)
	if err != nil || suggestionIndex < 0 {
		return 0, 0, fmt.Errorf("invalid suggestion key %q", key)
	}
	return messageIndex, suggestionIndex, nil
}
