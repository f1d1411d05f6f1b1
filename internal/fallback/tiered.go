package fallback

import (
	"math/rand"
	"sync"
	"time"

	"github.com/park285/llm-chess-bot/internal/rules"
)

var centerPawnSquares = map[string]bool{"e4": true, "d4": true, "e5": true, "d5": true}

// tiers are tried in order; the first non-empty one wins.
var tiers = []func(rules.MoveInfo) bool{
	func(m rules.MoveInfo) bool { return m.Mate },
	func(m rules.MoveInfo) bool { return m.Check },
	func(m rules.MoveInfo) bool { return m.Captured.Value() >= 3 },
	func(m rules.MoveInfo) bool { return m.Capture() },
	func(m rules.MoveInfo) bool {
		switch m.Mover {
		case rules.Knight, rules.Bishop, rules.Rook, rules.Queen:
			return true
		}
		return false
	},
	func(m rules.MoveInfo) bool { return m.Mover == rules.Pawn && centerPawnSquares[m.To] },
	func(m rules.MoveInfo) bool { return m.Castle },
	func(m rules.MoveInfo) bool { return m.Mover == rules.Pawn },
	func(rules.MoveInfo) bool { return true },
}

// Tiered picks uniformly at random inside the best non-empty tier.
type Tiered struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewTiered uses rng when given, otherwise a time-seeded source.
func NewTiered(rng *rand.Rand) *Tiered {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Tiered{rng: rng}
}

func (t *Tiered) Name() string { return ModeTiered }

func (t *Tiered) Choose(moves []rules.MoveInfo) (rules.MoveInfo, bool) {
	if len(moves) == 0 {
		return rules.MoveInfo{}, false
	}
	for _, match := range tiers {
		var bucket []rules.MoveInfo
		for _, m := range moves {
			if match(m) {
				bucket = append(bucket, m)
			}
		}
		if len(bucket) == 0 {
			continue
		}
		t.mu.Lock()
		i := t.rng.Intn(len(bucket))
		t.mu.Unlock()
		return bucket[i], true
	}
	return rules.MoveInfo{}, false
}

// New builds the strategy for a parsed mode.
func New(mode string, rng *rand.Rand) Strategy {
	if mode == ModeTiered {
		return NewTiered(rng)
	}
	return Weighted{}
}
