package chessdto

import "time"

type ChessGame struct {
	SessionID     string
	UserSide      string
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
