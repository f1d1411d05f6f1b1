// Package llm asks a text-generation service for a chess move and pulls a
// move token out of whatever text comes back.
package llm

import (
	"context"
	"errors"
)

// ErrProposalUnavailable covers every way the service can fail to give usable text:
// transport errors, empty candidates, safety blocks, malformed payloads.
var ErrProposalUnavailable = errors.New("llm proposal unavailable")

// Proposer turns a prompt into free-form text.
type Proposer interface {
	Propose(ctx context.Context, prompt string) (string, error)
}

// Disabled is used when no model is configured; every call falls through to the heuristics.
type Disabled struct{}

func (Disabled) Propose(context.Context, string) (string, error) {
	return "", ErrProposalUnavailable
}

// ProposerFunc adapts a function to Proposer.
type ProposerFunc func(ctx context.Context, prompt string) (string, error)

func (f ProposerFunc) Propose(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
