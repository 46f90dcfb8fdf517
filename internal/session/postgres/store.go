package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/analystchat/analystchat/internal/conversation"
	"github.com/analystchat/analystchat/internal/session"
)

// Store keeps session state as JSONB rows in the chat_session table created
// by internal/migrations. Expired rows are invisible and removed by Purge.
type Store struct {
	db    *sql.DB
	ttl   time.Duration
	clock func() time.Time
}

func NewStore(db *sql.DB, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = session.DefaultTTL
	}
	return &Store{db: db, ttl: ttl, clock: func() time.Time { return time.Now().UTC() }}
}

func (s *Store) Create(ctx context.Context, owner string) (*conversation.State, error) {
	now := s.clock()
	state := conversation.NewState(session.NewID(), owner, now)
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO chat_session (id, owner, state, created_at, updated_at, expires_at)
VALUES ($1, $2, $3, $4, $4, $5)`,
		state.ID, owner, payload, now, now.Add(s.ttl),
	)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return state, nil
}

func (s *Store) Load(ctx context.Context, id string) (*conversation.State, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT state FROM chat_session WHERE id = $1 AND expires_at > $2`,
		strings.TrimSpace(id), s.clock(),
	).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var state conversation.State
	if err := json.Unmarshal(payload, &state); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &state, nil
}

// Save overwrites a live session and pushes its expiry out by the TTL. The
// update only applies while the stored revision still matches state.Revision.
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
	now := s.clock()
	result, err := s.db.ExecContext(ctx, `
UPDATE chat_session
SET state = $2, updated_at = $3, expires_at = $4
WHERE id = $1 AND expires_at > $3
  AND COALESCE((state->>'revision')::bigint, 0) = $5`,
		state.ID, payload, now, now.Add(s.ttl), state.Revision,
	)
	if err != nil {
		return fmt.Errorf("save session %s: %w", state.ID, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("session %s rows affected: %w", state.ID, err)
	}
	if affected == 0 {
		return s.missingOrConflict(ctx, state.ID, now)
	}
	state.Revision = next.Revision
	return nil
}

func (s *Store) missingOrConflict(ctx context.Context, id string, now time.Time) error {
	var live bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM chat_session WHERE id = $1 AND expires_at > $2)`,
		id, now,
	).Scan(&live)
	if err != nil {
		return fmt.Errorf("check session %s: %w", id, err)
	}
	if live {
		return session.ErrConflict
	}
	return session.ErrNotFound
}

func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chat_session WHERE id = $1`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return expectOneRow(result, id)
}

// Purge deletes expired sessions and reports how many were removed.
func (s *Store) Purge(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM chat_session WHERE expires_at <= $1`, s.clock())
	if err != nil {
		return 0, fmt.Errorf("purge sessions: %w", err)
	}
	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge sessions rows affected: %w", err)
	}
	return removed, nil
}

// RunJanitor purges expired sessions every interval until ctx is done.
func (s *Store) RunJanitor(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := s.Purge(ctx)
			if logger == nil {
				continue
			}
			if err != nil {
				logger.Error("session purge failed", slog.Any("error", err))
				continue
			}
			if removed > 0 {
				logger.Info("purged expired sessions", slog.Int64("removed", removed))
			}
		}
	}
}

func (s *Store) HealthCheck(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("session db is not configured")
	}
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func expectOneRow(result sql.Result, id string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("session %s rows affected: %w", id, err)
	}
	if affected == 0 {
		return session.ErrNotFound
	}
	return nil
}
