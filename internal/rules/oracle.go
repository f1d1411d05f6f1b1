// Package rules wraps the chess rules library behind a small capability interface.
// Positions cross this boundary as FEN strings and moves as SAN text.
package rules

import (
	"errors"

	"github.com/park285/llm-chess-bot/internal/domain"
)

var (
	ErrIllegalMove     = errors.New("illegal chess move")
	ErrInvalidPosition = errors.New("invalid chess position")
)

// Status is the terminal state of a position.
type Status string

const (
	StatusOngoing        Status = "ongoing"
	StatusCheckmate      Status = "checkmate"
	StatusStalemate      Status = "stalemate"
	StatusDrawRepetition Status = "draw_repetition"
	StatusDrawMaterial   Status = "draw_material"
	StatusDrawMoveRule   Status = "draw_move_rule"
)

func (s Status) Terminal() bool { return s != StatusOngoing && s != "" }

func (s Status) Draw() bool {
	switch s {
	case StatusStalemate, StatusDrawRepetition, StatusDrawMaterial, StatusDrawMoveRule:
		return true
	}
	return false
}

// PieceKind is a piece type independent of color.
type PieceKind uint8

const (
	NoPiece PieceKind = iota
	Pawn
	Knight
	Bishop
	Rook
	Queen
	King
)

// Value is the conventional material value; the king has none.
func (k PieceKind) Value() int {
	switch k {
	case Pawn:
		return 1
	case Knight, Bishop:
		return 3
	case Rook:
		return 5
	case Queen:
		return 9
	}
	return 0
}

// MoveInfo describes one legal move with the facts the fallback heuristics need.
type MoveInfo struct {
	SAN       string
	UCI       string
	From      string
	To        string
	Mover     PieceKind
	Captured  PieceKind
	Promotion PieceKind
	Check     bool
	Mate      bool
	Castle    bool
}

func (m MoveInfo) Capture() bool { return m.Captured != NoPiece }

// Oracle enforces every chess rule on behalf of the bot.
type Oracle interface {
	// LegalMoves enumerates moves in a stable order.
	LegalMoves(position string) ([]MoveInfo, error)
	// Apply validates move (SAN or UCI) and returns the next position and canonical SAN.
	Apply(position, move string) (next string, san string, err error)
	Status(position string) (Status, error)
	SideToMove(position string) (domain.Side, error)
}
