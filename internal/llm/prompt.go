package llm

import (
	"fmt"
	"strings"

	"github.com/park285/llm-chess-bot/internal/domain"
)

const styleDirective = `You are an aggressive and adaptive chess AI. Your priorities, in order:
1. Deliver a forced checkmate when one exists.
2. Give checks that restrict the opponent's king.
3. Capture high-value pieces when it is safe.
4. Develop pieces quickly toward active squares.
5. Control the center (d4, e4, d5, e5).
Answer with exactly one legal move in standard algebraic notation and nothing else.`

// BuildPrompt encodes the bot's side, the position and the style directive.
func BuildPrompt(side domain.Side, fen string) string {
	var b strings.Builder
	b.WriteString(styleDirective)
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("You are a chess engine playing as %s.\n", side.Title()))
	b.WriteString(fmt.Sprintf("Current position (FEN): %s\n", strings.TrimSpace(fen)))
	b.WriteString("Your move:")
	return b.String()
}
