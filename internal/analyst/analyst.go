package analyst

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/analystchat/analystchat/internal/conversation"
)

// MessagePath is the analyst endpoint, relative to the account base URL.
const MessagePath = "/api/v2/cortex/analyst/message"

// SemanticModel locates the semantic model file on a stage. The service reads
// it; this process never does.
type SemanticModel struct {
	Database string
	Schema   string
	Stage    string
	File     string
}

func (m SemanticModel) FilePath() string {
	return fmt.Sprintf("@%s.%s.%s/%s", m.Database, m.Schema, m.Stage, m.File)
}

type Request struct {
	Messages          []conversation.Message `json:"messages"`
	SemanticModelFile string                 `json:"semantic_model_file"`
}

type Response struct {
	RequestID string    `json:"request_id,omitempty"`
	Message   Reply     `json:"message"`
	Warnings  []Warning `json:"warnings,omitempty"`
	// Raw is the undecoded body, kept for the debug panel.
	Raw json.RawMessage `json:"-"`
}

type Reply struct {
	Role    conversation.Role    `json:"role,omitempty"`
	Content conversation.Content `json:"content"`
}

type Warning struct {
	Message string `json:"message"`
}

// Analyst sends one conversation window to the analyst service.
type Analyst interface {
	SendMessage(ctx context.Context, req Request) (Response, error)
}

// BuildRequest maps the history window straight through and attaches the
// semantic model reference.
func BuildRequest(history []conversation.Message, model SemanticModel) Request {
	messages := make([]conversation.Message, 0, len(history))
	for _, entry := range history {
		messages = append(messages, conversation.Message{Role: entry.Role, Content: entry.Content})
	}
	return Request{
		Messages:          messages,
		SemanticModelFile: model.FilePath(),
	}
}
