// Package history archives finished games and serves the history command.
package history

import (
	"context"
	"errors"

	"github.com/park285/llm-chess-bot/internal/domain"
)

var ErrDuplicateGame = errors.New("chess game already archived")

const DefaultRecentLimit = 5

// Repository stores archived games. Lookups return (nil, nil) when nothing matches.
type Repository interface {
	SaveGame(ctx context.Context, g *domain.ArchivedGame) error
	RecentGames(ctx context.Context, userID string, limit int) ([]*domain.ArchivedGame, error)
	Game(ctx context.Context, sessionID string) (*domain.ArchivedGame, error)
	Close(ctx context.Context) error
}

// Nop drops every game; used when ARCHIVE_BACKEND=none.
type Nop struct{}

func (Nop) SaveGame(context.Context, *domain.ArchivedGame) error { return nil }

func (Nop) RecentGames(context.Context, string, int) ([]*domain.ArchivedGame, error) {
	return nil, nil
}

func (Nop) Game(context.Context, string) (*domain.ArchivedGame, error) { return nil, nil }

func (Nop) Close(context.Context) error { return nil }

// prepare fills the derived PGN before a game is written.
func prepare(g *domain.ArchivedGame) {
	if g.PGN == "" {
		g.PGN = BuildPGN(g)
	}
	if g.Duration < 0 {
		g.Duration = 0
	}
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultRecentLimit
	}
	if limit > 50 {
		return 50
	}
	return limit
}
