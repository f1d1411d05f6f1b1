package chessdto

import "time"

// MoveView is one recorded ply.
type MoveView struct {
	Number int
	Side   string
	SAN    string
	Actor  string
	Source string
}

// MoveSummary describes a single accepted move, by the user or the bot.
type MoveSummary struct {
	State       *SessionView
	Move        MoveView
	Finished    bool
	Result      string
	Termination string
}

// QuitSummary is shown when the user leaves a game.
type QuitSummary struct {
	State      *SessionView
	TotalMoves int
	Elapsed    time.Duration
	LastMoves  []MoveView
}
