package chesspresenter

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/park285/llm-chess-bot/internal/domain"
	"github.com/park285/llm-chess-bot/internal/render"
	"github.com/park285/llm-chess-bot/internal/util"
	"github.com/park285/llm-chess-bot/pkg/chessdto"
)

// Presenter delivers formatted messages and board images without coupling to the command layer.
type Presenter struct {
	sendMessage func(room, message string) error
	sendImage   func(room, imageBase64 string) error
	renderer    render.BoardRenderer
	logger      *zap.Logger
}

type PresenterOption func(*Presenter)

// WithRenderer enables the PNG board after each board message.
func WithRenderer(r render.BoardRenderer) PresenterOption {
	return func(p *Presenter) { p.renderer = r }
}

func WithPresenterLogger(l *zap.Logger) PresenterOption {
	return func(p *Presenter) {
		if l != nil {
			p.logger = l
		}
	}
}

func NewPresenter(sendMessage func(room, message string) error, sendImage func(room, imageBase64 string) error, opts ...PresenterOption) *Presenter {
	p := &Presenter{
		sendMessage: sendMessage,
		sendImage:   sendImage,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Text sends a plain message.
func (p *Presenter) Text(room, message string) error {
	if p == nil || p.sendMessage == nil || strings.TrimSpace(message) == "" {
		return nil
	}
	return p.sendMessage(room, message)
}

// Board sends message, then the rendered board for state when images are enabled.
// A failed render is logged and does not fail the text delivery.
func (p *Presenter) Board(ctx context.Context, room, message string, state *chessdto.SessionView) error {
	if p == nil {
		return nil
	}
	if err := p.Text(room, message); err != nil {
		return err
	}
	if state == nil || p.sendImage == nil {
		return nil
	}
	if len(state.BoardImage) == 0 && p.renderer != nil {
		img, err := p.renderer.RenderPNG(ctx, state.FEN, boardOptions(state))
		if err != nil {
			p.logger.Warn("board_render_failed", zap.String("session_id", state.SessionID), zap.Error(err))
			return nil
		}
		state.BoardImage = img
	}
	if len(state.BoardImage) == 0 {
		return nil
	}
	return p.sendImage(room, base64.StdEncoding.EncodeToString(state.BoardImage))
}

func boardOptions(state *chessdto.SessionView) render.Options {
	player := strings.TrimSpace(state.PlayerName)
	if player == "" {
		player = "You"
	}
	return render.Options{
		Orientation: domain.Side(state.UserSide),
		LastFrom:    state.LastFrom,
		LastTo:      state.LastTo,
		Header:      fmt.Sprintf("%s (%s) vs LLM Bot", player, titleSide(state.UserSide)),
		Footer:      fmt.Sprintf("Move %d - %s to move - %s", state.MoveNumber, titleSide(state.Turn), util.FormatClock(state.Remaining)),
	}
}
