package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/park285/llm-chess-bot/internal/adapter/chesspresenter"
	"github.com/park285/llm-chess-bot/internal/domain"
	"github.com/park285/llm-chess-bot/internal/gateway"
	"github.com/park285/llm-chess-bot/internal/history"
	"github.com/park285/llm-chess-bot/internal/llm"
	"github.com/park285/llm-chess-bot/internal/pipeline"
	"github.com/park285/llm-chess-bot/internal/rules"
	"github.com/park285/llm-chess-bot/internal/session"
	"github.com/park285/llm-chess-bot/pkg/chessdto"
)

type outbox struct {
	mu     sync.Mutex
	texts  []string
	images int
}

func (o *outbox) sendText(_, msg string) error {
	o.mu.Lock()
	o.texts = append(o.texts, msg)
	o.mu.Unlock()
	return nil
}

func (o *outbox) sendImage(_, _ string) error {
	o.mu.Lock()
	o.images++
	o.mu.Unlock()
	return nil
}

func (o *outbox) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.texts) == 0 {
		return ""
	}
	return o.texts[len(o.texts)-1]
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.texts)
}

type fixture struct {
	router  *Router
	manager *session.Manager
	out     *outbox
	repo    *history.MemoryRepository
}

func newFixture(t *testing.T, reply string) *fixture {
	t.Helper()
	oracle := rules.NewOracle()
	repo := history.NewMemoryRepository()
	out := &outbox{}
	proposer := llm.ProposerFunc(func(context.Context, string) (string, error) { return reply, nil })

	var router *Router
	mgr := session.NewManager(
		session.NewMemoryStore(), oracle, pipeline.NewResolver(proposer, oracle),
		session.Config{GameDuration: 10 * time.Minute},
		session.WithArchive(repo),
		session.WithSidePicker(func() domain.Side { return domain.White }),
		session.WithBotMoveListener(session.BotMoveListenerFunc(func(ctx context.Context, ev session.BotMoveEvent) {
			router.OnBotMove(ctx, ev)
		})),
	)
	t.Cleanup(mgr.Close)

	cfg := Config{Prefix: "!chess", AllowedRooms: []string{"room-1"}}
	formatter := chesspresenter.NewFormatter(prefix("!chess"), nil)
	presenter := chesspresenter.NewPresenter(out.sendText, out.sendImage)
	router = NewRouter(cfg, mgr, repo, chesspresenter.NewAdapter(oracle), formatter, presenter)
	return &fixture{router: router, manager: mgr, out: out, repo: repo}
}

type prefix string

func (p prefix) Prefix() string { return string(p) }

func (f *fixture) say(t *testing.T, text string) string {
	t.Helper()
	before := f.out.count()
	sender := "Kim"
	f.router.Handle(context.Background(), &gateway.Message{Msg: text, Room: "room-1", Sender: &sender, JSON: &gateway.MessageJSON{UserID: "u-1"}})
	if f.out.count() == before {
		return ""
	}
	return f.out.last()
}

func TestRouterGameFlow(t *testing.T) {
	f := newFixture(t, "I will answer e5.")

	if out := f.say(t, "!chess start white"); !strings.Contains(out, "New game started") || !strings.Contains(out, "You play White") {
		t.Fatalf("start: %q", out)
	}
	if out := f.say(t, "!chess start"); !strings.Contains(out, "already have a game") {
		t.Fatalf("double start: %q", out)
	}
	if out := f.say(t, "!chess move e4"); !strings.Contains(out, "You played 1. e4") {
		t.Fatalf("move: %q", out)
	}
	f.manager.Wait()
	if out := f.out.last(); !strings.Contains(out, "Bot plays 1... e5 (AI suggestion)") {
		t.Fatalf("bot move: %q", out)
	}
	if out := f.say(t, "!chess move Ke9"); !strings.Contains(out, "`Ke9` is not a legal move") {
		t.Fatalf("illegal: %q", out)
	}
	if out := f.say(t, "!chess move"); !strings.Contains(out, "Which move?") {
		t.Fatalf("empty: %q", out)
	}
	if out := f.say(t, "!chess status"); !strings.Contains(out, "Chess status") || !strings.Contains(out, "1. e4 e5") {
		t.Fatalf("status: %q", out)
	}
	if out := f.say(t, "!chess quit"); !strings.Contains(out, "Moves played 2") {
		t.Fatalf("quit: %q", out)
	}
	if out := f.say(t, "!chess status"); !strings.Contains(out, "No chess game in progress") {
		t.Fatalf("status after quit: %q", out)
	}
	if out := f.say(t, "!chess history"); !strings.Contains(out, "2 moves (quit)") {
		t.Fatalf("history: %q", out)
	}
}

func TestRouterIgnoresOtherRoomsAndPrefixes(t *testing.T) {
	f := newFixture(t, "")
	sender := "Kim"
	f.router.Handle(context.Background(), &gateway.Message{Msg: "!chess help", Room: "room-2", Sender: &sender})
	if out := f.say(t, "!chessboard"); out != "" {
		t.Fatalf("unexpected reply %q", out)
	}
	if f.out.count() != 0 {
		t.Fatalf("replies = %d", f.out.count())
	}
	if out := f.say(t, "!chess"); !strings.Contains(out, "Chess commands") {
		t.Fatalf("bare prefix should show help: %q", out)
	}
	if out := f.say(t, "!chess dance"); !strings.Contains(out, "Unknown command") {
		t.Fatalf("unknown: %q", out)
	}
	if out := f.say(t, "!chess start purple"); !strings.Contains(out, "Unknown side `purple`") {
		t.Fatalf("bad side: %q", out)
	}
}

func TestRouterReportsExpiry(t *testing.T) {
	f := newFixture(t, "")
	f.router.OnExpired(context.Background(), []*domain.Session{{Room: "room-1"}})
	if out := f.out.last(); !strings.Contains(out, "time limit") {
		t.Fatalf("expired: %q", out)
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{session.ErrNoActiveSession, chessdto.CodeNoSession},
		{fmt.Errorf("wrap: %w", session.ErrSessionAlreadyActive), chessdto.CodeAlreadyActive},
		{session.ErrSessionExpired, chessdto.CodeExpired},
		{session.ErrNotUserTurn, chessdto.CodeNotYourTurn},
		{session.ErrEmptyMove, chessdto.CodeEmptyMove},
		{fmt.Errorf("%w: Ke9", session.ErrIllegalMove), chessdto.CodeIllegalMove},
		{chessdto.DomainError{Code: chessdto.CodeBotUnavailable}, chessdto.CodeBotUnavailable},
		{errors.New("boom"), chessdto.CodeInternal},
	}
	for _, tc := range cases {
		if got := ErrorCode(tc.err); got != tc.want {
			t.Fatalf("ErrorCode(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}
