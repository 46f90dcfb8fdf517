package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/analystchat/analystchat/internal/conversation"
)

var (
	ErrNotFound = errors.New("session not found")
	// ErrConflict means another writer saved the session after it was loaded.
	ErrConflict = errors.New("session was modified concurrently")
)

const DefaultTTL = 12 * time.Hour

// Store persists conversation state between triggers. Stores hand out copies:
// mutating a loaded state has no effect until Save. Save compares the state's
// Revision with the stored one, returns ErrConflict on mismatch and bumps
// Revision on success.
type Store interface {
	Create(ctx context.Context, owner string) (*conversation.State, error)
	Load(ctx context.Context, id string) (*conversation.State, error)
	Save(ctx context.Context, state *conversation.State) error
	Delete(ctx context.Context, id string) error
}

func NewID() string {
	return uuid.NewString()
}

type memoryEntry struct {
	state     *conversation.State
	expiresAt time.Time
}

type MemoryStore struct {
	TTL   time.Duration
	Clock func() time.Time

	mu      sync.Mutex
	entries map[string]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{
		TTL:     ttl,
		Clock:   func() time.Time { return time.Now().UTC() },
		entries: map[string]memoryEntry{},
	}
}

func (m *MemoryStore) Create(_ context.Context, owner string) (*conversation.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)
	state := conversation.NewState(NewID(), owner, now)
	m.entries[state.ID] = memoryEntry{state: state.Clone(), expiresAt: now.Add(m.TTL)}
	return state, nil
}

func (m *MemoryStore) Load(_ context.Context, id string) (*conversation.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweepLocked(m.now())
	entry, ok := m.entries[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return entry.state.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, state *conversation.State) error {
	if state == nil || strings.TrimSpace(state.ID) == "" {
		return errors.New("session id is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.sweepLocked(now)
	current, ok := m.entries[state.ID]
	if !ok {
		return ErrNotFound
	}
	if current.state.Revision != state.Revision {
		return ErrConflict
	}
	state.Revision++
	m.entries[state.ID] = memoryEntry{state: state.Clone(), expiresAt: now.Add(m.TTL)}
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id = strings.TrimSpace(id)
	if _, ok := m.entries[id]; !ok {
		return ErrNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *MemoryStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked(m.now())
	return len(m.entries)
}

func (m *MemoryStore) sweepLocked(now time.Time) {
	if m.entries == nil {
		m.entries = map[string]memoryEntry{}
	}
	for id, entry := range m.entries {
		if !now.Before(entry.expiresAt) {
			delete(m.entries, id)
		}
	}
}

func (m *MemoryStore) now() time.Time {
	if m.Clock == nil {
		return time.Now().UTC()
	}
	return m.Clock()
}
