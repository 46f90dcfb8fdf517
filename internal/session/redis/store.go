package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/analystchat/analystchat/internal/conversation"
	"github.com/analystchat/analystchat/internal/session"
)

const defaultKeyPrefix = "analystchat:session:"

type Config struct {
	Addr      string
	Username  string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// Store keeps session state as JSON values that expire after TTL.
type Store struct {
	client goredis.UniversalClient
	prefix string
	ttl    time.Duration
	clock  func() time.Time
}

func Open(ctx context.Context, cfg Config) (*Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Username: cfg.Username,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

func NewWithClient(client goredis.UniversalClient, prefix string, ttl time.Duration) *Store {
	if strings.TrimSpace(prefix) == "" {
		prefix = defaultKeyPrefix
	}
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &Store{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		clock:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) Create(ctx context.Context, owner string) (*conversation.State, error) {
	state := conversation.NewState(session.NewID(), owner, s.clock())
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	created, err := s.client.SetNX(ctx, s.key(state.ID), payload, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("create session: id collision for %s", state.ID)
	}
	return state, nil
}

func (s *Store) Load(ctx context.Context, id string) (*conversation.State, error) {
	payload, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, session.ErrNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var state conversation.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &state, nil
}

// Save overwrites an existing session and refreshes its TTL. Expired or
// deleted sessions are not resurrected. The key is WATCHed so a concurrent
// writer aborts the transaction instead of being overwritten.
func (s *Store) Save(ctx context.Context, state *conversation.State) error {
	if state == nil || strings.TrimSpace(state.ID) == "" {
		return errors.New("session id is required")
	}
	next := state.Clone()
	next.Revision++
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	key := s.key(state.ID)
	err = s.client.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, goredis.Nil) {
			return session.ErrNotFound
		}
		if err != nil {
			return err
		}
		if revision, err := storedRevision(current); err != nil {
			return err
		} else if revision != state.Revision {
			return session.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.SetXX(ctx, key, payload, s.ttl)
			return nil
		})
		return err
	}, key)
	switch {
	case errors.Is(err, goredis.TxFailedErr):
		return session.ErrConflict
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrConflict):
		return err
	case err != nil:
		return fmt.Errorf("save session %s: %w", state.ID, err)
	}
	state.Revision = next.Revision
	return nil
}

func storedRevision(payload []byte) (int64, error) {
	var stored struct {
		Revision int64 `json:"revision"`
	}
	if err := json.Unmarshal(payload, &stored); err != nil {
		return 0, fmt.Errorf("decode stored session: %w", err)
	}
	return stored.Revision, nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	removed, err := s.client.Del(ctx, s.key(id)).Result()
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	if removed == 0 {
		return session.ErrNotFound
	}
	return nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) key(id string) string {
	return s.prefix + strings.TrimSpace(id)
}
