package history

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/llm-chess-bot/internal/domain"
)

// MemoryRepository keeps archives in process; games are lost on restart.
type MemoryRepository struct {
	mu        sync.RWMutex
	bySession map[string]*domain.ArchivedGame
	byUser    map[string][]*domain.ArchivedGame
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		bySession: make(map[string]*domain.ArchivedGame),
		byUser:    make(map[string][]*domain.ArchivedGame),
	}
}

func (m *MemoryRepository) SaveGame(_ context.Context, g *domain.ArchivedGame) error {
	if g == nil {
		return nil
	}
	key := strings.TrimSpace(g.SessionID)
	cp := *g
	cp.MovesSAN = append([]string(nil), g.MovesSAN...)
	prepare(&cp)

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bySession[key]; exists {
		return ErrDuplicateGame
	}
	m.bySession[key] = &cp
	m.byUser[cp.UserID] = append(m.byUser[cp.UserID], &cp)
	return nil
}

func (m *MemoryRepository) RecentGames(_ context.Context, userID string, limit int) ([]*domain.ArchivedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]*domain.ArchivedGame, 0, len(m.byUser[userID]))
	for _, g := range m.byUser[userID] {
		cp := *g
		items = append(items, &cp)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].EndedAt.After(items[j].EndedAt) })
	if limit = clampLimit(limit); len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (m *MemoryRepository) Game(_ context.Context, sessionID string) (*domain.ArchivedGame, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.bySession[strings.TrimSpace(sessionID)]
	if !ok {
		return nil, nil
	}
	cp := *g
	return &cp, nil
}

func (m *MemoryRepository) Close(context.Context) error { return nil }
