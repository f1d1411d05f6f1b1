// Package fallback picks a legal move when the LLM proposal is missing or illegal.
package fallback

import (
	"fmt"
	"strings"

	"github.com/park285/llm-chess-bot/internal/rules"
)

// Strategy chooses one move from the oracle's legal moves.
// ok is false only when moves is empty.
type Strategy interface {
	Choose(moves []rules.MoveInfo) (rules.MoveInfo, bool)
	Name() string
}

const (
	ModeScored = "scored"
	ModeTiered = "tiered"
)

// ParseMode normalises a configured mode name; blank means scored.
func ParseMode(raw string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", ModeScored, "weighted":
		return ModeScored, nil
	case ModeTiered, "random":
		return ModeTiered, nil
	}
	return "", fmt.Errorf("unknown fallback mode %q", raw)
}

var centerSquares = map[string]bool{"d4": true, "e4": true, "d5": true, "e5": true}
