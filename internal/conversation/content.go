package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type BlockType string

const (
	BlockText        BlockType = "text"
	BlockSuggestions BlockType = "suggestions"
	BlockSQL         BlockType = "sql"
)

// Block is one typed unit of message content. The set of implementations is
// closed: Text, Suggestions, SQL and Other.
type Block interface {
	Type() BlockType
	isBlock()
}

type Text struct {
	Text string
}

type Suggestions struct {
	Items []string
}

type SQL struct {
	Statement string
	// Confidence is carried through untouched when the service reports it.
	Confidence json.RawMessage
}

// Other holds a block whose type is not understood here. Raw is kept so the
// block is sent back verbatim as conversation history.
type Other struct {
	Kind string
	Raw  json.RawMessage
}

func (Text) Type() BlockType        { return BlockText }
func (Suggestions) Type() BlockType { return BlockSuggestions }
func (SQL) Type() BlockType         { return BlockSQL }
func (o Other) Type() BlockType     { return BlockType(o.Kind) }

func (Text) isBlock()        {}
func (Suggestions) isBlock() {}
func (SQL) isBlock()         {}
func (Other) isBlock()       {}

// Content is an ordered list of blocks with the wire encoding used by the
// analyst service: each element carries a "type" discriminator.
type Content []Block

type textWire struct {
	Type BlockType `json:"type"`
	Text string    `json:"text"`
}

type suggestionsWire struct {
	Type        BlockType `json:"type"`
	Suggestions []string  `json:"suggestions"`
}

type sqlWire struct {
	Type       BlockType       `json:"type"`
	Statement  string          `json:"statement"`
	Confidence json.RawMessage `json:"confidence,omitempty"`
}

func (c Content) MarshalJSON() ([]byte, error) {
	out := make([]json.RawMessage, 0, len(c))
	for i, block := range c {
		raw, err := marshalBlock(block)
		if err != nil {
			return nil, fmt.Errorf("marshal content block %d: %w", i, err)
		}
		out = append(out, raw)
	}
	return json.Marshal(out)
}

func (c *Content) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return err
	}
	blocks := make(Content, 0, len(raws))
	for i, raw := range raws {
		block, err := unmarshalBlock(raw)
		if err != nil {
			return fmt.Errorf("content block %d: %w", i, err)
		}
		blocks = append(blocks, block)
	}
	*c = blocks
	return nil
}

// Clone returns a copy that shares no slices with c.
func (c Content) Clone() Content {
	if c == nil {
		return nil
	}
	out := make(Content, len(c))
	for i, block := range c {
		switch typed := block.(type) {
		case Suggestions:
			out[i] = Suggestions{Items: append([]string(nil), typed.Items...)}
		case SQL:
			out[i] = SQL{Statement: typed.Statement, Confidence: cloneRaw(typed.Confidence)}
		case Other:
			out[i] = Other{Kind: typed.Kind, Raw: cloneRaw(typed.Raw)}
		default:
			out[i] = block
		}
	}
	return out
}

// SuggestionList flattens every Suggestions block of c in order.
func (c Content) SuggestionList() []string {
	var out []string
	for _, block := range c {
		if s, ok := block.(Suggestions); ok {
			out = append(out, s.Items...)
		}
	}
	return out
}

// Statements returns the SQL statements of c in order.
func (c Content) Statements() []string {
	var out []string
	for _, block := range c {
		if s, ok := block.(SQL); ok {
			out = append(out, s.Statement)
		}
	}
	return out
}

func marshalBlock(block Block) ([]byte, error) {
	switch typed := block.(type) {
	case Text:
		return json.Marshal(textWire{Type: BlockText, Text: typed.Text})
	case Suggestions:
		items := typed.Items
		if items == nil {
			items = []string{}
		}
		return json.Marshal(suggestionsWire{Type: BlockSuggestions, Suggestions: items})
	case SQL:
		return json.Marshal(sqlWire{Type: BlockSQL, Statement: typed.Statement, Confidence: typed.Confidence})
	case Other:
		if len(typed.Raw) == 0 {
			return json.Marshal(map[string]string{"type": typed.Kind})
		}
		return typed.Raw, nil
	case nil:
		return nil, fmt.Errorf("nil block")
	default:
		return nil, fmt.Errorf("unsupported block %T", block)
	}
}

func unmarshalBlock(raw json.RawMessage) (Block, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, err
	}
	switch BlockType(head.Type) {
	case BlockText:
		var wire textWire
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		return Text{Text: wire.Text}, nil
	case BlockSuggestions:
		var wire suggestionsWire
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		return Suggestions{Items: wire.Suggestions}, nil
	case BlockSQL:
		var wire sqlWire
		if err := json.Unmarshal(raw, &wire); err != nil {
			return nil, err
		}
		return SQL{Statement: wire.Statement, Confidence: wire.Confidence}, nil
	case "":
		return nil, fmt.Errorf("missing block type")
	default:
		return Other{Kind: head.Type, Raw: cloneRaw(raw)}, nil
	}
}

func cloneRaw(raw json.RawMessage) json.RawMessage {
	if raw == nil {
		return nil
	}
	return append(json.RawMessage(nil), raw...)
}
