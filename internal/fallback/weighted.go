package fallback

import "github.com/park285/llm-chess-bot/internal/rules"

// 가중치
const (
	scoreMate        = 1000
	scoreCheck       = 50
	scoreCaptureUnit = 10
	scoreCenter      = 15
	scoreDevelopment = 10
	scoreCastle      = 20
)

// Weighted is the deterministic greedy scorer.
type Weighted struct{}

func (Weighted) Name() string { return ModeScored }

// Score rates a single move.
func Score(m rules.MoveInfo) int {
	s := 0
	if m.Mate {
		s += scoreMate
	}
	if m.Check {
		s += scoreCheck
	}
	if m.Capture() {
		s += scoreCaptureUnit * m.Captured.Value()
	}
	if centerSquares[m.To] {
		s += scoreCenter
	}
	if m.Mover != rules.Pawn && m.Mover != rules.King && m.Mover != rules.NoPiece {
		s += scoreDevelopment
	}
	if m.Castle {
		s += scoreCastle
	}
	return s
}

// Choose returns the highest-scoring move; ties keep the earliest move in enumeration order.
func (Weighted) Choose(moves []rules.MoveInfo) (rules.MoveInfo, bool) {
	if len(moves) == 0 {
		return rules.MoveInfo{}, false
	}
	best, bestScore := 0, Score(moves[0])
	for i := 1; i < len(moves); i++ {
		if s := Score(moves[i]); s > bestScore {
			best, bestScore = i, s
		}
	}
	return moves[best], true
}
