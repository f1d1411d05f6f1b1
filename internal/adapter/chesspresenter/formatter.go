package chesspresenter

import (
	"fmt"
	"strings"
	"time"

	"github.com/park285/llm-chess-bot/internal/domain"
	"github.com/park285/llm-chess-bot/internal/msgcat"
	"github.com/park285/llm-chess-bot/internal/util"
	"github.com/park285/llm-chess-bot/pkg/chessdto"
)

const (
	chessHistoryInstruction = "♜ Recent games"
	chessHelpInstruction    = "♞ Chess commands"
	chessStatusHeader       = "♞ Chess status"

	quitMovesShown = 3
)

// PrefixProvider exposes the command prefix messages should quote.
type PrefixProvider interface {
	Prefix() string
}

// Formatter renders chess DTOs into Kakao-friendly text blocks.
type Formatter struct {
	prefixProvider PrefixProvider
	catalog        *msgcat.Catalog
}

func NewFormatter(provider PrefixProvider, catalog *msgcat.Catalog) *Formatter {
	if catalog == nil {
		catalog = msgcat.Default()
	}
	return &Formatter{prefixProvider: provider, catalog: catalog}
}

func (f *Formatter) Prefix() string {
	if f == nil || f.prefixProvider == nil {
		return ""
	}
	return strings.TrimSpace(f.prefixProvider.Prefix())
}

func (f *Formatter) command(name string) string {
	if p := f.Prefix(); p != "" {
		return p + " " + name
	}
	return name
}

func (f *Formatter) Start(state *chessdto.SessionView) string {
	if state == nil {
		return f.Error(chessdto.CodeInternal, nil)
	}
	var sb strings.Builder
	sb.WriteString("♟️ New game started.\n")
	sb.WriteString(fmt.Sprintf("• You play %s, the LLM bot plays %s.\n", titleSide(state.UserSide), titleSide(state.BotSide)))
	sb.WriteString(fmt.Sprintf("• Time limit %s\n\n", util.FormatClock(state.Remaining)))
	sb.WriteString(state.Grid)
	sb.WriteString("\n\n")
	if state.UserToMove {
		sb.WriteString(fmt.Sprintf("Your move: `%s <move>` (e.g. e4, Nf3, O-O).", f.command("move")))
	} else {
		sb.WriteString("The bot opens in a moment.")
	}
	return sb.String()
}

// Move acknowledges the user's own move. The board follows with the bot's reply.
func (f *Formatter) Move(summary *chessdto.MoveSummary) string {
	if summary == nil || summary.State == nil {
		return ""
	}
	if summary.Finished {
		return f.GameOver(summary)
	}
	return fmt.Sprintf("✅ You played %s. The bot is thinking…", formatMove(summary.Move))
}

// BotMove announces the bot's reply together with the updated status.
func (f *Formatter) BotMove(summary *chessdto.MoveSummary) string {
	if summary == nil || summary.State == nil {
		return ""
	}
	var sb strings.Builder
	// a game the user's move already ended carries the user's record
	if summary.Move.Actor == string(domain.ActorBot) {
		sb.WriteString(fmt.Sprintf("🤖 Bot plays %s", formatMove(summary.Move)))
		if src := strings.TrimSpace(summary.Move.Source); src != "" {
			sb.WriteString(fmt.Sprintf(" (%s)", src))
		}
		sb.WriteString("\n\n")
	}
	if summary.Finished {
		sb.WriteString(summary.State.Grid)
		sb.WriteString("\n\n")
		sb.WriteString(f.GameOver(summary))
		return sb.String()
	}
	sb.WriteString(f.statusBody(summary.State))
	return sb.String()
}

func (f *Formatter) Status(state *chessdto.SessionView) string {
	if state == nil {
		return f.NoSession()
	}
	return chessStatusHeader + "\n" + f.statusBody(state)
}

func (f *Formatter) statusBody(state *chessdto.SessionView) string {
	var sb strings.Builder
	sb.WriteString(state.Grid)
	sb.WriteString("\n\n")
	turn := titleSide(state.Turn)
	if state.UserToMove {
		turn += " (you)"
	} else {
		turn += " (bot)"
	}
	sb.WriteString(fmt.Sprintf("• Move %d, %s to move\n", state.MoveNumber, turn))
	sb.WriteString(fmt.Sprintf("• Time left %s\n", util.FormatClock(state.Remaining)))
	if state.Opening != "" {
		sb.WriteString(fmt.Sprintf("• Opening %s\n", state.Opening))
	}
	if len(state.RecentMoves) > 0 {
		sb.WriteString(fmt.Sprintf("• Last moves %s\n", formatMoveList(state.RecentMoves)))
	}
	if state.UserToMove {
		sb.WriteString(fmt.Sprintf("\nYour move: `%s <move>`", f.command("move")))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (f *Formatter) Quit(summary *chessdto.QuitSummary) string {
	if summary == nil {
		return f.NoSession()
	}
	var sb strings.Builder
	sb.WriteString("🏳️ Game ended.\n")
	sb.WriteString(fmt.Sprintf("• Moves played %d\n", summary.TotalMoves))
	sb.WriteString(fmt.Sprintf("• Duration %s\n", util.FormatElapsed(summary.Elapsed)))
	if len(summary.LastMoves) > 0 {
		moves := summary.LastMoves
		if len(moves) > quitMovesShown {
			moves = moves[len(moves)-quitMovesShown:]
		}
		sb.WriteString(fmt.Sprintf("• Last moves %s\n", formatMoveList(moves)))
	}
	sb.WriteString(fmt.Sprintf("\nNew game: `%s`", f.command("start")))
	return sb.String()
}

func (f *Formatter) GameOver(summary *chessdto.MoveSummary) string {
	if summary == nil {
		return ""
	}
	data := map[string]any{"Termination": summary.Termination}
	var headline string
	switch summary.Result {
	case domain.ResultWin:
		headline = f.catalog.Text("game.win", data, "Checkmate! You win.")
	case domain.ResultLoss:
		headline = f.catalog.Text("game.loss", data, "Checkmate. The bot wins.")
	case domain.ResultDraw:
		headline = f.catalog.Text("game.draw", data, "The game is drawn.")
	default:
		headline = f.catalog.Text("game.aborted", data, "The game was closed.")
	}
	moves := 0
	if summary.State != nil {
		moves = summary.State.TotalMoves
	}
	return fmt.Sprintf("%s\n• Moves played %d\nNew game: `%s`", headline, moves, f.command("start"))
}

// Expired tells a user the reaper closed their game.
func (f *Formatter) Expired() string {
	return f.Error(chessdto.CodeExpired, nil)
}

// BotFailed reports a bot turn that could not be completed.
func (f *Formatter) BotFailed() string {
	return f.Error(chessdto.CodeBotUnavailable, nil)
}

func (f *Formatter) Help() string {
	content := fmt.Sprintf(`%s
• %s [white|black|random]
  Start a game (random if omitted)
• %s <move>
  Play a move in SAN, e.g. e4, Nf3, exd5, O-O, e8=Q
• %s
  Board, time left and recent moves
• %s
  Leave the current game
• %s [n]
  Your last finished games (default %d)
• %s
  This help

Games have a time limit. The bot asks an LLM for its move and falls back to a built-in heuristic when the suggestion is unusable.`,
		chessHelpInstruction,
		f.command("start"), f.command("move"), f.command("status"), f.command("quit"),
		f.command("history"), defaultHistoryLimit, f.command("help"))
	return util.FoldUnderHeader(content, chessHelpInstruction)
}

const defaultHistoryLimit = 5

func (f *Formatter) History(games []*chessdto.ChessGame) string {
	if len(games) == 0 {
		return fmt.Sprintf("No finished games yet. Start one with `%s`.", f.command("start"))
	}
	var sb strings.Builder
	sb.WriteString(chessHistoryInstruction)
	sb.WriteByte('\n')
	for _, game := range games {
		sb.WriteString(fmt.Sprintf("• %s %s as %s, %d moves (%s)\n",
			formatResultBadge(game.Result), formatShortTime(game.EndedAt), titleSide(game.UserSide),
			len(game.MovesSAN), game.Termination))
		if d := formatGameDuration(game.Duration); d != "" {
			sb.WriteString(fmt.Sprintf("  duration %s, bot moves %d AI / %d fallback\n", d, game.AIMoves, game.FallbackMoves))
		}
	}
	return util.FoldUnderHeader(strings.TrimRight(sb.String(), "\n"), chessHistoryInstruction)
}

func (f *Formatter) NoSession() string {
	return f.Error(chessdto.CodeNoSession, nil)
}

// Error renders the banner for a user-facing error code. data fills template fields
// such as Move or Side; Prefix is always available.
func (f *Formatter) Error(code string, data map[string]any) string {
	fields := map[string]any{"Prefix": f.Prefix()}
	for k, v := range data {
		fields[k] = v
	}
	fallback, _ := f.catalog.Render("error.internal", fields)
	text := f.catalog.Text("error."+code, fields, fallback)
	return f.catalog.Text("error.banner", map[string]any{"Text": text}, text)
}

func titleSide(side string) string {
	switch domain.Side(strings.ToLower(strings.TrimSpace(side))) {
	case domain.White:
		return "White"
	case domain.Black:
		return "Black"
	default:
		return "-"
	}
}

func formatMove(m chessdto.MoveView) string {
	if m.SAN == "" {
		return "-"
	}
	if domain.Side(m.Side) == domain.Black {
		return fmt.Sprintf("%d... %s", m.Number, m.SAN)
	}
	return fmt.Sprintf("%d. %s", m.Number, m.SAN)
}

// formatMoveList joins plies in PGN style: "1. e4 e5 2. Nf3".
func formatMoveList(moves []chessdto.MoveView) string {
	parts := make([]string, 0, len(moves))
	for i, m := range moves {
		if domain.Side(m.Side) == domain.White || i == 0 {
			parts = append(parts, formatMove(m))
			continue
		}
		parts = append(parts, m.SAN)
	}
	return strings.Join(parts, " ")
}

func formatResultBadge(result string) string {
	switch strings.ToLower(strings.TrimSpace(result)) {
	case domain.ResultWin:
		return "✅ W"
	case domain.ResultLoss:
		return "❌ L"
	case domain.ResultDraw:
		return "🤝 D"
	case domain.ResultTimeout:
		return "⏰ T"
	default:
		return "▫️ -"
	}
}

func formatShortTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return util.FormatKST(t, "2006-01-02 15:04")
}

func formatGameDuration(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	return util.FormatElapsed(d)
}
