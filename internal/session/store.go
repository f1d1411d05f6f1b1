package session

import (
	"context"
	"sort"
	"sync"

	"github.com/park285/llm-chess-bot/internal/domain"
)

// Store keeps at most one session per user. Get returns (nil, nil) when there is none.
// Put refuses to overwrite a session with a stale copy (same ID, shorter history) or
// to replace a different game, returning ErrConcurrentUpdate.
type Store interface {
	Get(ctx context.Context, userID string) (*domain.Session, error)
	Put(ctx context.Context, s *domain.Session) error
	Delete(ctx context.Context, userID string) error
	List(ctx context.Context) ([]*domain.Session, error)
}

// MemoryStore is the in-process Store. Values are cloned on the way in and out.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]*domain.Session)}
}

func (m *MemoryStore) Get(_ context.Context, userID string) (*domain.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessions[userID].Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, s *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := checkReplace(m.sessions[s.UserID], s); err != nil {
		return err
	}
	m.sessions[s.UserID] = s.Clone()
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, userID string) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*domain.Session, error) {
	m.mu.RLock()
	out := make([]*domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func checkReplace(cur, next *domain.Session) error {
	if cur == nil {
		return nil
	}
	if cur.ID != next.ID || len(cur.Moves) > len(next.Moves) {
		return ErrConcurrentUpdate
	}
	return nil
}
