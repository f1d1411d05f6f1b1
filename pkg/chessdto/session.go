package chessdto

import "time"

// SessionView is everything the chat layer shows about a live game.
type SessionView struct {
	SessionID   string
	PlayerName  string
	UserSide    string
	BotSide     string
	FEN         string
	Grid        string
	BoardImage  []byte
	MoveNumber  int
	TotalMoves  int
	Turn        string
	UserToMove  bool
	Remaining   time.Duration
	RecentMoves []MoveView
	Opening     string
	LastFrom    string
	LastTo      string
}
