// Package command turns prefixed chat lines into session operations and replies.
package command

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/park285/llm-chess-bot/internal/adapter/chesspresenter"
	"github.com/park285/llm-chess-bot/internal/domain"
	"github.com/park285/llm-chess-bot/internal/gateway"
	"github.com/park285/llm-chess-bot/internal/history"
	"github.com/park285/llm-chess-bot/internal/session"
	"github.com/park285/llm-chess-bot/pkg/chessdto"
)

// Sessions is the part of session.Manager the router drives.
type Sessions interface {
	StartSession(ctx context.Context, req session.StartRequest) (*domain.Session, error)
	GetSession(ctx context.Context, userID string) (*domain.Session, error)
	ApplyUserMove(ctx context.Context, userID, moveText string) (*session.MoveResult, error)
	QuitSession(ctx context.Context, userID string) (*session.QuitSummary, error)
}

// GameHistory lists archived games.
type GameHistory interface {
	RecentGames(ctx context.Context, userID string, limit int) ([]*domain.ArchivedGame, error)
}

type Config struct {
	Prefix       string
	AllowedRooms []string
	HistoryLimit int
}

type Router struct {
	prefix       string
	allowed      map[string]struct{}
	historyLimit int

	sessions  Sessions
	history   GameHistory
	adapter   *chesspresenter.Adapter
	formatter *chesspresenter.Formatter
	presenter *chesspresenter.Presenter

	now    func() time.Time
	logger *zap.Logger
}

type Option func(*Router)

func WithLogger(l *zap.Logger) Option {
	return func(r *Router) {
		if l != nil {
			r.logger = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Router) {
		if now != nil {
			r.now = now
		}
	}
}

func NewRouter(cfg Config, sessions Sessions, games GameHistory, adapter *chesspresenter.Adapter, formatter *chesspresenter.Formatter, presenter *chesspresenter.Presenter, opts ...Option) *Router {
	if games == nil {
		games = history.Nop{}
	}
	r := &Router{
		prefix:       strings.TrimSpace(cfg.Prefix),
		allowed:      map[string]struct{}{},
		historyLimit: cfg.HistoryLimit,
		sessions:     sessions,
		history:      games,
		adapter:      adapter,
		formatter:    formatter,
		presenter:    presenter,
		now:          time.Now,
		logger:       zap.NewNop(),
	}
	if r.historyLimit <= 0 {
		r.historyLimit = history.DefaultRecentLimit
	}
	for _, room := range cfg.AllowedRooms {
		r.allowed[strings.TrimSpace(room)] = struct{}{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Prefix implements chesspresenter.PrefixProvider.
func (r *Router) Prefix() string { return r.prefix }

// Accepts reports whether msg is a command for this bot from an allowed room.
func (r *Router) Accepts(msg *gateway.Message) bool {
	if msg == nil || strings.TrimSpace(msg.Msg) == "" {
		return false
	}
	if len(r.allowed) > 0 {
		if _, ok := r.allowed[msg.Room]; !ok {
			return false
		}
	}
	text := strings.TrimSpace(msg.Msg)
	if !strings.HasPrefix(text, r.prefix) {
		return false
	}
	rest := strings.TrimPrefix(text, r.prefix)
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

// Handle runs one command. Every outcome, including errors, becomes a chat reply.
func (r *Router) Handle(ctx context.Context, msg *gateway.Message) {
	if !r.Accepts(msg) {
		return
	}
	fields := strings.Fields(strings.TrimPrefix(strings.TrimSpace(msg.Msg), r.prefix))
	cmd := "help"
	var args []string
	if len(fields) > 0 {
		cmd = strings.ToLower(fields[0])
		args = fields[1:]
	}
	meta := chessdto.RequestMeta{UserID: msg.UserID(), Room: msg.Room, Sender: msg.SenderName()}
	if meta.UserID == "" {
		r.logger.Warn("command_without_user", zap.String("room", msg.Room))
		return
	}
	r.logger.Debug("command", zap.String("cmd", cmd), zap.String("user_id", meta.UserID), zap.String("room", meta.Room))

	switch cmd {
	case "start", "new":
		r.start(ctx, meta, args)
	case "move", "m":
		r.move(ctx, meta, args)
	case "status", "board":
		r.status(ctx, meta)
	case "quit", "resign":
		r.quit(ctx, meta)
	case "help", "?":
		r.reply(meta.Room, r.formatter.Help())
	case "history":
		r.historyList(ctx, meta, args)
	default:
		r.reply(meta.Room, r.formatter.Error("unknown_command", nil))
	}
}

func (r *Router) start(ctx context.Context, meta chessdto.RequestMeta, args []string) {
	raw := ""
	if len(args) > 0 {
		raw = args[0]
	}
	choice, ok := domain.ParseSideChoice(raw)
	if !ok {
		r.reply(meta.Room, r.formatter.Error(chessdto.CodeBadSide, map[string]any{"Side": raw}))
		return
	}
	s, err := r.sessions.StartSession(ctx, session.StartRequest{
		UserID:     meta.UserID,
		Room:       meta.Room,
		PlayerName: meta.Sender,
		Choice:     choice,
	})
	if err != nil {
		r.fail(meta, err, nil)
		return
	}
	view := r.adapter.SessionView(s, r.now())
	r.board(ctx, meta.Room, r.formatter.Start(view), view)
}

func (r *Router) move(ctx context.Context, meta chessdto.RequestMeta, args []string) {
	text := strings.Join(args, " ")
	res, err := r.sessions.ApplyUserMove(ctx, meta.UserID, text)
	if err != nil {
		r.fail(meta, err, map[string]any{"Move": text})
		return
	}
	summary := r.adapter.MoveSummary(res, r.now())
	if summary.Finished {
		r.board(ctx, meta.Room, r.formatter.Move(summary), summary.State)
		return
	}
	r.reply(meta.Room, r.formatter.Move(summary))
}

func (r *Router) status(ctx context.Context, meta chessdto.RequestMeta) {
	s, err := r.sessions.GetSession(ctx, meta.UserID)
	if err != nil {
		r.fail(meta, err, nil)
		return
	}
	view := r.adapter.SessionView(s, r.now())
	r.board(ctx, meta.Room, r.formatter.Status(view), view)
}

func (r *Router) quit(ctx context.Context, meta chessdto.RequestMeta) {
	q, err := r.sessions.QuitSession(ctx, meta.UserID)
	if err != nil {
		r.fail(meta, err, nil)
		return
	}
	r.reply(meta.Room, r.formatter.Quit(r.adapter.QuitSummary(q, r.now())))
}

func (r *Router) historyList(ctx context.Context, meta chessdto.RequestMeta, args []string) {
	limit := r.historyLimit
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil && n > 0 {
			limit = n
		}
	}
	games, err := r.history.RecentGames(ctx, meta.UserID, limit)
	if err != nil {
		r.fail(meta, err, nil)
		return
	}
	r.reply(meta.Room, r.formatter.History(chesspresenter.ToChessGames(games)))
}

// OnBotMove delivers an asynchronous bot turn to the game's room.
func (r *Router) OnBotMove(ctx context.Context, ev session.BotMoveEvent) {
	if ev.Session == nil {
		return
	}
	room := ev.Session.Room
	if ev.Err != nil {
		r.reply(room, r.formatter.BotFailed())
		return
	}
	summary := r.adapter.BotMoveSummary(ev, r.now())
	r.board(ctx, room, r.formatter.BotMove(summary), summary.State)
}

// OnExpired tells each owner that the reaper closed their game.
func (r *Router) OnExpired(_ context.Context, expired []*domain.Session) {
	for _, s := range expired {
		r.reply(s.Room, r.formatter.Expired())
	}
}

func (r *Router) fail(meta chessdto.RequestMeta, err error, data map[string]any) {
	code := ErrorCode(err)
	if code == chessdto.CodeInternal {
		r.logger.Error("command_failed", zap.String("user_id", meta.UserID), zap.Error(err))
	}
	r.reply(meta.Room, r.formatter.Error(code, data))
}

// ErrorCode maps session errors to user-facing codes.
func ErrorCode(err error) string {
	var de chessdto.DomainError
	switch {
	case errors.As(err, &de) && de.Code != "":
		return de.Code
	case errors.Is(err, session.ErrNoActiveSession):
		return chessdto.CodeNoSession
	case errors.Is(err, session.ErrSessionAlreadyActive):
		return chessdto.CodeAlreadyActive
	case errors.Is(err, session.ErrSessionExpired):
		return chessdto.CodeExpired
	case errors.Is(err, session.ErrNotUserTurn):
		return chessdto.CodeNotYourTurn
	case errors.Is(err, session.ErrEmptyMove):
		return chessdto.CodeEmptyMove
	case errors.Is(err, session.ErrIllegalMove):
		return chessdto.CodeIllegalMove
	default:
		return chessdto.CodeInternal
	}
}

func (r *Router) reply(room, text string) {
	if err := r.presenter.Text(room, text); err != nil {
		r.logger.Warn("reply_failed", zap.String("room", room), zap.Error(err))
	}
}

func (r *Router) board(ctx context.Context, room, text string, view *chessdto.SessionView) {
	if err := r.presenter.Board(ctx, room, text, view); err != nil {
		r.logger.Warn("reply_failed", zap.String("room", room), zap.Error(err))
	}
}
