package domain

import "time"

// ArchivedGame is a finished, quit or expired session kept for history.
type ArchivedGame struct {
	SessionID     string
	UserID        string
	Room          string
	PlayerName    string
	UserSide      Side
	Result        string
	Termination   string
	MovesSAN      []string
	PGN           string
	StartedAt     time.Time
	EndedAt       time.Time
	Duration      time.Duration
	AIMoves       int
	FallbackMoves int
}

// Results recorded from the user's point of view.
const (
	ResultWin       = "win"
	ResultLoss      = "loss"
	ResultDraw      = "draw"
	ResultAbandoned = "abandoned"
	ResultTimeout   = "timeout"
	ResultAborted   = "aborted"
)
