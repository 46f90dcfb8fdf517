// Package archive writes finished conversations to the object store as
// parquet, one row per content block.
package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/analystchat/analystchat/internal/conversation"
	"github.com/analystchat/analystchat/internal/storage"
)

var ErrEmptyTranscript = errors.New("transcript has no messages")

const contentType = "application/vnd.apache.parquet"

type Result struct {
	ObjectKey   string    `json:"object_key"`
	RecordCount int64     `json:"record_count"`
	Bytes       int64     `json:"bytes"`
	ArchivedAt  time.Time `json:"archived_at"`
}

type Archiver struct {
	store storage.ObjectWriter
	clock func() time.Time
}

func New(store storage.ObjectWriter) *Archiver {
	return &Archiver{store: store, clock: func() time.Time { return time.Now().UTC() }}
}

func (a *Archiver) Archive(ctx context.Context, state *conversation.State) (Result, error) {
	if a == nil || a.store == nil {
		return Result{}, fmt.Errorf("archive store is not configured")
	}
	now := a.clock()
	encoded, err := EncodeTranscript(state, now)
	if err != nil {
		return Result{}, err
	}
	key := ObjectKey(state, now)
	if _, err := a.store.Put(ctx, key, bytes.NewReader(encoded.Data), int64(len(encoded.Data)), contentType); err != nil {
		return Result{}, fmt.Errorf("upload transcript %s: %w", state.ID, err)
	}
	return Result{
		ObjectKey:   key,
		RecordCount: encoded.RecordCount,
		Bytes:       int64(len(encoded.Data)),
		ArchivedAt:  now,
	}, nil
}

// ObjectKey is transcripts/<owner>/<yyyy-mm-dd>/<session>-<unixms>.parquet.
// Sessions without an owner go under "_anonymous".
func ObjectKey(state *conversation.State, at time.Time) string {
	owner := state.Owner
	if owner == "" {
		owner = "_anonymous"
	}
	return path.Join("transcripts", owner, at.Format("2006-01-02"), fmt.Sprintf("%s-%d.parquet", state.ID, at.UnixMilli()))
}
