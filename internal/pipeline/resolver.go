// Package pipeline turns a position into the bot's next move:
// prompt the LLM, extract a move, validate it, fall back when needed.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/llm-chess-bot/internal/domain"
	"github.com/park285/llm-chess-bot/internal/fallback"
	"github.com/park285/llm-chess-bot/internal/llm"
	"github.com/park285/llm-chess-bot/internal/rules"
)

// ErrNoLegalMoves means the position is terminal for the side to move.
var ErrNoLegalMoves = errors.New("no legal moves")

// Justification tags attached to every bot move.
const (
	SourceAI        = "AI suggestion"
	SourceHeuristic = "heuristic fallback"
	SourceRandom    = "random fallback"
)

// Resolution is the move the bot will play.
type Resolution struct {
	SAN      string
	Position string
	Source   string
	// Raw is the LLM's answer, kept for logs and the probe command.
	Raw string
}

type Resolver struct {
	proposer llm.Proposer
	oracle   rules.Oracle
	strategy fallback.Strategy
	logger   *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

type Option func(*Resolver)

func WithLogger(l *zap.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithStrategy(s fallback.Strategy) Option {
	return func(r *Resolver) {
		if s != nil {
			r.strategy = s
		}
	}
}

func WithRand(rng *rand.Rand) Option {
	return func(r *Resolver) {
		if rng != nil {
			r.rng = rng
		}
	}
}

func NewResolver(proposer llm.Proposer, oracle rules.Oracle, opts ...Option) *Resolver {
	if proposer == nil {
		proposer = llm.Disabled{}
	}
	r := &Resolver{
		proposer: proposer,
		oracle:   oracle,
		strategy: fallback.Weighted{},
		logger:   zap.NewNop(),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve always yields a legal move unless the position has none.
func (r *Resolver) Resolve(ctx context.Context, position string, side domain.Side) (*Resolution, error) {
	moves, err := r.oracle.LegalMoves(position)
	if err != nil {
		return nil, fmt.Errorf("list legal moves: %w", err)
	}
	if len(moves) == 0 {
		return nil, ErrNoLegalMoves
	}

	raw, err := r.proposer.Propose(ctx, llm.BuildPrompt(side, position))
	if err != nil {
		r.logger.Warn("llm_unavailable", zap.Error(err))
	} else if candidate, ok := llm.ExtractMove(raw); !ok {
		r.logger.Info("llm_no_move", zap.String("raw", raw))
	} else if next, san, applyErr := r.oracle.Apply(position, candidate); applyErr != nil {
		r.logger.Info("llm_illegal_move", zap.String("candidate", candidate), zap.Error(applyErr))
	} else {
		return &Resolution{SAN: san, Position: next, Source: SourceAI, Raw: raw}, nil
	}

	source := SourceHeuristic
	pick, ok := r.strategy.Choose(moves)
	if !ok {
		source = SourceRandom
		r.rngMu.Lock()
		pick = moves[r.rng.Intn(len(moves))]
		r.rngMu.Unlock()
	}
	next, san, err := r.oracle.Apply(position, pick.SAN)
	if err != nil {
		return nil, fmt.Errorf("apply fallback move %s: %w", pick.SAN, err)
	}
	return &Resolution{SAN: san, Position: next, Source: source, Raw: raw}, nil
}
