package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/llm-chess-bot/internal/domain"
)

const botPlayerName = "LLM Bot"

// BuildPGN renders the archived game with standard headers and numbered SAN moves.
func BuildPGN(g *domain.ArchivedGame) string {
	if g == nil {
		return ""
	}
	result := PGNResult(g)
	date := g.EndedAt
	if date.IsZero() {
		date = time.Now()
	}
	player := strings.TrimSpace(g.PlayerName)
	if player == "" {
		player = "Player"
	}
	white, black := player, botPlayerName
	if g.UserSide == domain.Black {
		white, black = botPlayerName, player
	}

	var b strings.Builder
	b.WriteString("[Event \"LLM Chess\"]\n")
	b.WriteString("[Site \"Iris\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(white)))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(black)))
	if t := strings.TrimSpace(g.Termination); t != "" {
		b.WriteString(fmt.Sprintf("[Termination \"%s\"]\n", sanitizePGN(t)))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	for i := 0; i < len(g.MovesSAN); i += 2 {
		b.WriteString(fmt.Sprintf("%d. %s", i/2+1, strings.TrimSpace(g.MovesSAN[i])))
		if i+1 < len(g.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(g.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

// PGNResult maps the user-relative result to the board result token.
func PGNResult(g *domain.ArchivedGame) string {
	switch g.Result {
	case domain.ResultDraw:
		return "1/2-1/2"
	case domain.ResultWin:
		if g.UserSide == domain.Black {
			return "0-1"
		}
		return "1-0"
	case domain.ResultLoss:
		if g.UserSide == domain.Black {
			return "1-0"
		}
		return "0-1"
	}
	return "*"
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
