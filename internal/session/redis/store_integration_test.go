//go:build integration

package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/analystchat/analystchat/internal/conversation"
	"github.com/analystchat/analystchat/internal/session"
)

func TestStoreRoundTripAgainstRedis(t *testing.T) {
	addr := os.Getenv("ANALYSTCHAT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("ANALYSTCHAT_TEST_REDIS_ADDR is not set")
	}

	ctx := context.Background()
	store, err := Open(ctx, Config{Addr: addr, KeyPrefix: "analystchat:test:", TTL: time.Minute})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	state, err := store.Create(ctx, "tenant-a")
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	defer func() { _ = store.Delete(ctx, state.ID) }()

	state.AppendMessage(conversation.RoleUser, conversation.Content{conversation.Text{Text: "What is total revenue?"}})
	state.AppendMessage(conversation.RoleAnalyst, conversation.Content{
		conversation.Text{Text: "This is our interpretation of your question."},
		conversation.SQL{Statement: "SELECT SUM(revenue) FROM orders"},
	})
	if err := store.Save(ctx, state); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	loaded, err := store.Load(ctx, state.ID)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Revision != 1 || state.Revision != 1 {
		t.Fatalf("revision = %d/%d", loaded.Revision, state.Revision)
	}

	stale := loaded.Clone()
	loaded.Touch(time.Now())
	if err := store.Save(ctx, loaded); err != nil {
		t.Fatalf("Save(loaded) error = %v", err)
	}
	if err := store.Save(ctx, stale); !errors.Is(err, session.ErrConflict) {
		t.Fatalf("Save(stale) error = %v", err)
	}
	if loaded.Owner != "tenant-a" || len(loaded.Messages) != 2 {
		t.Fatalf("loaded = %#v", loaded)
	}
	if got := loaded.Messages[1].Content.Statements(); len(got) != 1 || got[0] != "SELECT SUM(revenue) FROM orders" {
		t.Fatalf("statements = %#v", got)
	}

	if err := store.Delete(ctx, state.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := store.Load(ctx, state.ID); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Load() after delete error = %v", err)
	}
	if err := store.Save(ctx, state); !errors.Is(err, session.ErrNotFound) {
		t.Fatalf("Save() after delete error = %v", err)
	}
}
