package chesspresenter

import (
	"time"

	"github.com/park285/llm-chess-bot/internal/domain"
	"github.com/park285/llm-chess-bot/internal/render"
	"github.com/park285/llm-chess-bot/internal/rules"
	"github.com/park285/llm-chess-bot/internal/session"
	"github.com/park285/llm-chess-bot/pkg/chessdto"
)

const recentMovesShown = 5

// Adapter turns domain values into chat DTOs. The oracle is only used to locate the
// squares of the last move for the board highlight; it may be nil.
type Adapter struct {
	oracle rules.Oracle
}

func NewAdapter(oracle rules.Oracle) *Adapter {
	return &Adapter{oracle: oracle}
}

func (a *Adapter) SessionView(s *domain.Session, now time.Time) *chessdto.SessionView {
	if s == nil {
		return nil
	}
	view := &chessdto.SessionView{
		SessionID:   s.ID,
		PlayerName:  s.PlayerName,
		UserSide:    string(s.UserSide),
		BotSide:     string(s.BotSide),
		FEN:         s.Position,
		MoveNumber:  s.MoveNumber,
		TotalMoves:  len(s.Moves),
		Turn:        string(s.Turn()),
		UserToMove:  s.UserToMove(),
		Remaining:   s.Remaining(now),
		RecentMoves: moveViews(s, s.LastMoves(recentMovesShown)),
	}
	if grid, err := render.TextGrid(s.Position, s.UserSide); err == nil {
		view.Grid = grid
	}
	if code, title := rules.Opening(s.SANs()); title != "" {
		view.Opening = code + " " + title
	}
	view.LastFrom, view.LastTo = a.lastMoveSquares(s)
	return view
}

func (a *Adapter) MoveSummary(res *session.MoveResult, now time.Time) *chessdto.MoveSummary {
	if res == nil || res.Session == nil {
		return nil
	}
	return a.summary(res.Session, res.Record, res.Status, res.GameOver, now)
}

func (a *Adapter) BotMoveSummary(ev session.BotMoveEvent, now time.Time) *chessdto.MoveSummary {
	if ev.Session == nil {
		return nil
	}
	return a.summary(ev.Session, ev.Record, ev.Status, ev.GameOver, now)
}

func (a *Adapter) summary(s *domain.Session, rec domain.MoveRecord, status rules.Status, over bool, now time.Time) *chessdto.MoveSummary {
	out := &chessdto.MoveSummary{
		State:    a.SessionView(s, now),
		Move:     moveView(s, rec),
		Finished: over,
	}
	if over && status.Terminal() {
		out.Result = session.ResultFor(status, rec.Actor)
		out.Termination = session.Termination(status)
	}
	return out
}

func (a *Adapter) QuitSummary(q *session.QuitSummary, now time.Time) *chessdto.QuitSummary {
	if q == nil || q.Session == nil {
		return nil
	}
	return &chessdto.QuitSummary{
		State:      a.SessionView(q.Session, now),
		TotalMoves: q.TotalMoves,
		Elapsed:    q.Elapsed,
		LastMoves:  moveViews(q.Session, q.LastMoves),
	}
}

func ToChessGame(g *domain.ArchivedGame) *chessdto.ChessGame {
	if g == nil {
		return nil
	}
	return &chessdto.ChessGame{
		SessionID:     g.SessionID,
		UserSide:      string(g.UserSide),
		Result:        g.Result,
		Termination:   g.Termination,
		MovesSAN:      append([]string(nil), g.MovesSAN...),
		PGN:           g.PGN,
		StartedAt:     g.StartedAt,
		EndedAt:       g.EndedAt,
		Duration:      g.Duration,
		AIMoves:       g.AIMoves,
		FallbackMoves: g.FallbackMoves,
	}
}

func ToChessGames(games []*domain.ArchivedGame) []*chessdto.ChessGame {
	out := make([]*chessdto.ChessGame, 0, len(games))
	for _, g := range games {
		if v := ToChessGame(g); v != nil {
			out = append(out, v)
		}
	}
	return out
}

func moveViews(s *domain.Session, recs []domain.MoveRecord) []chessdto.MoveView {
	out := make([]chessdto.MoveView, 0, len(recs))
	for _, rec := range recs {
		out = append(out, moveView(s, rec))
	}
	return out
}

func moveView(s *domain.Session, rec domain.MoveRecord) chessdto.MoveView {
	side := s.UserSide
	if rec.Actor == domain.ActorBot {
		side = s.BotSide
	}
	return chessdto.MoveView{
		Number: rec.MoveNumber,
		Side:   string(side),
		SAN:    rec.SAN,
		Actor:  string(rec.Actor),
		Source: rec.Source,
	}
}

func (a *Adapter) lastMoveSquares(s *domain.Session) (string, string) {
	n := len(s.Moves)
	if a == nil || a.oracle == nil || n == 0 {
		return "", ""
	}
	before := domain.StartFEN
	if n > 1 {
		before = s.Moves[n-2].Position
	}
	moves, err := a.oracle.LegalMoves(before)
	if err != nil {
		return "", ""
	}
	last := s.Moves[n-1].SAN
	for _, mv := range moves {
		if mv.SAN == last {
			return mv.From, mv.To
		}
	}
	return "", ""
}
