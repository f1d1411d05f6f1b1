package domain

import (
	"strings"
	"time"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// Actor marks who played a move.
type Actor string

const (
	ActorUser Actor = "user"
	ActorBot  Actor = "bot"
)

// MoveRecord is appended once per ply and never modified afterwards.
type MoveRecord struct {
	SAN        string    `json:"san"`
	Actor      Actor     `json:"actor"`
	At         time.Time `json:"at"`
	MoveNumber int       `json:"move_number"`
	Source     string    `json:"source,omitempty"`
	Position   string    `json:"position"`
}

// Session is one user's game against the bot.
type Session struct {
	ID         string       `json:"id"`
	UserID     string       `json:"user_id"`
	Room       string       `json:"room"`
	PlayerName string       `json:"player_name,omitempty"`
	UserSide   Side         `json:"user_side"`
	BotSide    Side         `json:"bot_side"`
	Position   string       `json:"position"`
	MoveNumber int          `json:"move_number"`
	CreatedAt  time.Time    `json:"created_at"`
	ExpiresAt  time.Time    `json:"expires_at"`
	Moves      []MoveRecord `json:"moves"`
}

// Turn is derived from the position so it cannot drift from the board.
func (s *Session) Turn() Side {
	side, ok := SideToMove(s.Position)
	if !ok {
		return ""
	}
	return side
}

func (s *Session) UserToMove() bool { return s.Turn() == s.UserSide }

func (s *Session) BotToMove() bool { return s.Turn() == s.BotSide }

// Expired reports whether the time limit has passed at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Remaining is the time left before expiry, never negative.
func (s *Session) Remaining(now time.Time) time.Duration {
	d := s.ExpiresAt.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Append records a move and advances the counter once black has replied.
func (s *Session) Append(rec MoveRecord, newPosition string) {
	rec.MoveNumber = s.MoveNumber
	rec.Position = newPosition
	s.Moves = append(s.Moves, rec)
	s.Position = newPosition
	if side, ok := SideToMove(newPosition); ok && side == White {
		s.MoveNumber++
	}
}

// LastMoves returns up to n most recent records, oldest first.
func (s *Session) LastMoves(n int) []MoveRecord {
	if n <= 0 || len(s.Moves) == 0 {
		return nil
	}
	if n > len(s.Moves) {
		n = len(s.Moves)
	}
	out := make([]MoveRecord, n)
	copy(out, s.Moves[len(s.Moves)-n:])
	return out
}

// SANs lists every move in order.
func (s *Session) SANs() []string {
	out := make([]string, 0, len(s.Moves))
	for _, m := range s.Moves {
		out = append(out, m.SAN)
	}
	return out
}

// Repetitions counts how often the current position (placement, side to move, castling
// rights, en passant square) has occurred since the start of the game.
func (s *Session) Repetitions() int {
	key := positionKey(s.Position)
	if key == "" {
		return 0
	}
	count := 0
	if positionKey(StartFEN) == key {
		count++
	}
	for _, m := range s.Moves {
		if positionKey(m.Position) == key {
			count++
		}
	}
	return count
}

// Clone returns a deep copy so stores never share slices with callers.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	cp := *s
	cp.Moves = append([]MoveRecord(nil), s.Moves...)
	return &cp
}

func positionKey(fen string) string {
	fields := strings.Fields(fen)
	if len(fields) < 4 {
		return ""
	}
	return strings.Join(fields[:4], " ")
}
