package domain

import "strings"

// Side identifies a chess color.
type Side string

const (
	White Side = "white"
	Black Side = "black"
)

// Opposite returns the other color.
func (s Side) Opposite() Side {
	if s == White {
		return Black
	}
	return White
}

// Title is the capitalised label used in prompts and messages.
func (s Side) Title() string {
	if s == White {
		return "White"
	}
	return "Black"
}

func (s Side) Valid() bool { return s == White || s == Black }

// SideChoice is what the user asked for at start.
type SideChoice string

const (
	ChoiceWhite  SideChoice = "white"
	ChoiceBlack  SideChoice = "black"
	ChoiceRandom SideChoice = "random"
)

// ParseSideChoice accepts white/w, black/b, random/r. Empty input means random.
func ParseSideChoice(raw string) (SideChoice, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "white", "w":
		return ChoiceWhite, true
	case "black", "b":
		return ChoiceBlack, true
	case "random", "r", "":
		return ChoiceRandom, true
	default:
		return "", false
	}
}

// SideToMove reads the active-color field of a FEN string.
func SideToMove(fen string) (Side, bool) {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return "", false
	}
	switch fields[1] {
	case "w":
		return White, true
	case "b":
		return Black, true
	default:
		return "", false
	}
}
