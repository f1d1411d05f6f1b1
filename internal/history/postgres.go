package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/llm-chess-bot/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS llm_chess_games (
	id             BIGSERIAL PRIMARY KEY,
	session_id     TEXT NOT NULL UNIQUE,
	user_id        TEXT NOT NULL,
	room           TEXT NOT NULL DEFAULT '',
	player_name    TEXT NOT NULL DEFAULT '',
	user_side      TEXT NOT NULL,
	result         TEXT NOT NULL,
	termination    TEXT NOT NULL DEFAULT '',
	moves_san      JSONB NOT NULL DEFAULT '[]'::jsonb,
	pgn            TEXT NOT NULL DEFAULT '',
	started_at     TIMESTAMPTZ NOT NULL,
	ended_at       TIMESTAMPTZ NOT NULL,
	duration_ms    BIGINT NOT NULL DEFAULT 0,
	ai_moves       INTEGER NOT NULL DEFAULT 0,
	fallback_moves INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS llm_chess_games_user_ended ON llm_chess_games (user_id, ended_at DESC);`

const selectColumns = `
	session_id, user_id, room, player_name, user_side, result, termination,
	moves_san, pgn, started_at, ended_at, duration_ms, ai_moves, fallback_moves`

// PostgresRepository writes archives to PostgreSQL through lib/pq.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(ctx context.Context, databaseURL string) (*PostgresRepository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PostgresRepository{db: db}, nil
}

// NewPostgresRepositoryFromDB wraps an already opened handle; the schema is assumed to exist.
func NewPostgresRepositoryFromDB(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Close(context.Context) error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

func (r *PostgresRepository) SaveGame(ctx context.Context, g *domain.ArchivedGame) error {
	if g == nil {
		return fmt.Errorf("nil archived game")
	}
	prepare(g)
	movesSAN, err := json.Marshal(g.MovesSAN)
	if err != nil {
		return fmt.Errorf("marshal moves_san: %w", err)
	}
	const query = `
		INSERT INTO llm_chess_games (
			session_id, user_id, room, player_name, user_side, result, termination,
			moves_san, pgn, started_at, ended_at, duration_ms, ai_moves, fallback_moves
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::jsonb, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (session_id) DO NOTHING`
	res, err := r.db.ExecContext(ctx, query,
		g.SessionID,
		g.UserID,
		g.Room,
		g.PlayerName,
		string(g.UserSide),
		g.Result,
		g.Termination,
		string(movesSAN),
		g.PGN,
		g.StartedAt,
		g.EndedAt,
		g.Duration.Milliseconds(),
		g.AIMoves,
		g.FallbackMoves,
	)
	if err != nil {
		return fmt.Errorf("insert archived game: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicateGame
	}
	return nil
}

func (r *PostgresRepository) RecentGames(ctx context.Context, userID string, limit int) ([]*domain.ArchivedGame, error) {
	limit = clampLimit(limit)
	query := `SELECT` + selectColumns + `
		FROM llm_chess_games
		WHERE user_id = $1
		ORDER BY ended_at DESC
		LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("select archived games: %w", err)
	}
	defer rows.Close()

	games := make([]*domain.ArchivedGame, 0, limit)
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archived games: %w", err)
	}
	return games, nil
}

func (r *PostgresRepository) Game(ctx context.Context, sessionID string) (*domain.ArchivedGame, error) {
	query := `SELECT` + selectColumns + `
		FROM llm_chess_games
		WHERE session_id = $1`
	g, err := scanGame(r.db.QueryRowContext(ctx, query, strings.TrimSpace(sessionID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanGame(s scanner) (*domain.ArchivedGame, error) {
	var (
		g          domain.ArchivedGame
		side       string
		movesJSON  []byte
		durationMS sql.NullInt64
	)
	err := s.Scan(
		&g.SessionID,
		&g.UserID,
		&g.Room,
		&g.PlayerName,
		&side,
		&g.Result,
		&g.Termination,
		&movesJSON,
		&g.PGN,
		&g.StartedAt,
		&g.EndedAt,
		&durationMS,
		&g.AIMoves,
		&g.FallbackMoves,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan archived game: %w", err)
	}
	g.UserSide = domain.Side(side)
	if durationMS.Valid {
		g.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	if len(movesJSON) > 0 {
		if err := json.Unmarshal(movesJSON, &g.MovesSAN); err != nil {
			return nil, fmt.Errorf("unmarshal moves_san: %w", err)
		}
	}
	return &g, nil
}
