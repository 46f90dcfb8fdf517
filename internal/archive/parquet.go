package archive

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/analystchat/analystchat/internal/conversation"
)

type EncodeResult struct {
	Data        []byte
	RecordCount int64
}

// transcriptRow is one content block of one message.
type transcriptRow struct {
	SessionID        string `parquet:"session_id"`
	Owner            string `parquet:"owner"`
	MessageIndex     int64  `parquet:"message_index"`
	BlockIndex       int64  `parquet:"block_index"`
	Role             string `parquet:"role"`
	BlockType        string `parquet:"block_type"`
	Text             string `parquet:"text"`
	Statement        string `parquet:"statement"`
	SuggestionsJSON  string `parquet:"suggestions_json"`
	RawJSON          string `parquet:"raw_json"`
	ArchivedAtUnixMs int64  `parquet:"archived_at_unix_ms"`
}

func EncodeTranscript(state *conversation.State, archivedAt time.Time) (EncodeResult, error) {
	if state == nil {
		return EncodeResult{}, fmt.Errorf("session state is required")
	}

	var rows []transcriptRow
	for i, message := range state.Messages {
		for j, block := range message.Content {
			row := transcriptRow{
				SessionID:        state.ID,
				Owner:            state.Owner,
				MessageIndex:     int64(i),
				BlockIndex:       int64(j),
				Role:             string(message.Role),
				BlockType:        string(block.Type()),
				ArchivedAtUnixMs: archivedAt.UnixMilli(),
			}
			switch typed := block.(type) {
			case conversation.Text:
				row.Text = typed.Text
			case conversation.SQL:
				row.Statement = typed.Statement
			case conversation.Suggestions:
				encoded, err := json.Marshal(typed.Items)
				if err != nil {
					return EncodeResult{}, fmt.Errorf("encode suggestions of message %d: %w", i, err)
				}
				row.SuggestionsJSON = string(encoded)
			case conversation.Other:
				row.RawJSON = string(typed.Raw)
			}
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return EncodeResult{}, ErrEmptyTranscript
	}

	buf := bytes.NewBuffer(nil)
	writer := parquet.NewGenericWriter[transcriptRow](buf)
	if _, err := writer.Write(rows); err != nil {
		return EncodeResult{}, fmt.Errorf("write parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return EncodeResult{}, fmt.Errorf("close parquet writer: %w", err)
	}
	return EncodeResult{Data: buf.Bytes(), RecordCount: int64(len(rows))}, nil
}
