package archive

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/parquet-go/parquet-go"

	"github.com/analystchat/analystchat/internal/conversation"
	"github.com/analystchat/analystchat/internal/storage"
)

var fixedNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestEncodeTranscriptWritesOneRowPerBlock(t *testing.T) {
	state := sampleState()

	encoded, err := EncodeTranscript(state, fixedNow)
	if err != nil {
		t.Fatalf("EncodeTranscript() error = %v", err)
	}
	if encoded.RecordCount != 4 {
		t.Fatalf("RecordCount = %d", encoded.RecordCount)
	}

	rows, err := parquet.Read[transcriptRow](bytes.NewReader(encoded.Data), int64(len(encoded.Data)))
	if err != nil {
		t.Fatalf("parquet.Read() error = %v", err)
	}
	want := []transcriptRow{
		{SessionID: "s1", Owner: "tenant-a", MessageIndex: 0, BlockIndex: 0, Role: "user", BlockType: "text", Text: "What is total revenue?", ArchivedAtUnixMs: fixedNow.UnixMilli()},
		{SessionID: "s1", Owner: "tenant-a", MessageIndex: 1, BlockIndex: 0, Role: "analyst", BlockType: "text", Text: "This is our interpretation of your question.", ArchivedAtUnixMs: fixedNow.UnixMilli()},
		{SessionID: "s1", Owner: "tenant-a", MessageIndex: 1, BlockIndex: 1, Role: "analyst", BlockType: "sql", Statement: "SELECT SUM(revenue) FROM orders", ArchivedAtUnixMs: fixedNow.UnixMilli()},
		{SessionID: "s1", Owner: "tenant-a", MessageIndex: 1, BlockIndex: 2, Role: "analyst", BlockType: "suggestions", SuggestionsJSON: `["What is revenue by region?"]`, ArchivedAtUnixMs: fixedNow.UnixMilli()},
	}
	if diff := cmp.Diff(want, rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeTranscriptRejectsEmpty(t *testing.T) {
	_, err := EncodeTranscript(conversation.NewState("s1", "", fixedNow), fixedNow)
	if !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("EncodeTranscript() error = %v", err)
	}
}

func TestArchiveUploadsParquet(t *testing.T) {
	store := &memoryWriter{}
	archiver := New(store)
	archiver.clock = func() time.Time { return fixedNow }

	result, err := archiver.Archive(context.Background(), sampleState())
	if err != nil {
		t.Fatalf("Archive() error = %v", err)
	}
	wantKey := "transcripts/tenant-a/2025-03-01/s1-1740830400000.parquet"
	if result.ObjectKey != wantKey || store.key != wantKey {
		t.Fatalf("key = %q stored=%q", result.ObjectKey, store.key)
	}
	if result.RecordCount != 4 || result.Bytes != int64(len(store.body)) {
		t.Fatalf("result = %#v", result)
	}
	if !bytes.HasPrefix(store.body, []byte("PAR1")) || store.contentType != contentType {
		t.Fatalf("unexpected object: type=%q", store.contentType)
	}
}

func TestObjectKeyForAnonymousSession(t *testing.T) {
	got := ObjectKey(conversation.NewState("s2", "", fixedNow), fixedNow)
	if got != "transcripts/_anonymous/2025-03-01/s2-1740830400000.parquet" {
		t.Fatalf("ObjectKey() = %q", got)
	}
}

func sampleState() *conversation.State {
	state := conversation.NewState("s1", "tenant-a", fixedNow)
	state.AppendMessage(conversation.RoleUser, conversation.Content{conversation.Text{Text: "What is total revenue?"}})
	state.AppendMessage(conversation.RoleAnalyst, conversation.Content{
		conversation.Text{Text: "This is our interpretation of your question."},
		conversation.SQL{Statement: "SELECT SUM(revenue) FROM orders"},
		conversation.Suggestions{Items: []string{"What is revenue by region?"}},
	})
	return state
}

type memoryWriter struct {
	key         string
	body        []byte
	contentType string
}

func (m *memoryWriter) Put(_ context.Context, key string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.key, m.body, m.contentType = key, data, contentType
	return storage.ObjectInfo{Key: key, Size: size}, nil
}
