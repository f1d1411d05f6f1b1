package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/park285/llm-chess-bot/internal/domain"
	"github.com/park285/llm-chess-bot/internal/llm"
	"github.com/park285/llm-chess-bot/internal/pipeline"
	"github.com/park285/llm-chess-bot/internal/rules"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingArchive struct {
	mu    sync.Mutex
	games []*domain.ArchivedGame
}

func (a *recordingArchive) SaveGame(_ context.Context, g *domain.ArchivedGame) error {
	a.mu.Lock()
	a.games = append(a.games, g)
	a.mu.Unlock()
	return nil
}

func (a *recordingArchive) results() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.games))
	for _, g := range a.games {
		out = append(out, g.Result)
	}
	return out
}

type recordingListener struct {
	mu     sync.Mutex
	events []BotMoveEvent
}

func (l *recordingListener) OnBotMove(_ context.Context, ev BotMoveEvent) {
	l.mu.Lock()
	l.events = append(l.events, ev)
	l.mu.Unlock()
}

func (l *recordingListener) all() []BotMoveEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]BotMoveEvent(nil), l.events...)
}

// scriptedResolver plays fixed SAN moves in order.
type scriptedResolver struct {
	mu     sync.Mutex
	oracle rules.Oracle
	moves  []string
}

func (r *scriptedResolver) Resolve(_ context.Context, position string, _ domain.Side) (*pipeline.Resolution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.moves) == 0 {
		return nil, fmt.Errorf("script exhausted")
	}
	next, san, err := r.oracle.Apply(position, r.moves[0])
	if err != nil {
		return nil, err
	}
	r.moves = r.moves[1:]
	return &pipeline.Resolution{SAN: san, Position: next, Source: pipeline.SourceAI}, nil
}

type resolverFunc func(ctx context.Context, position string, side domain.Side) (*pipeline.Resolution, error)

func (f resolverFunc) Resolve(ctx context.Context, position string, side domain.Side) (*pipeline.Resolution, error) {
	return f(ctx, position, side)
}

type fixture struct {
	mgr      *Manager
	store    *MemoryStore
	clock    *fakeClock
	archive  *recordingArchive
	listener *recordingListener
}

func newFixture(t *testing.T, resolver Resolver, cfg Config, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    NewMemoryStore(),
		clock:    newFakeClock(),
		archive:  &recordingArchive{},
		listener: &recordingListener{},
	}
	if resolver == nil {
		resolver = pipeline.NewResolver(llm.Disabled{}, rules.NewOracle())
	}
	opts = append([]Option{
		WithClock(f.clock.Now),
		WithArchive(f.archive),
		WithBotMoveListener(f.listener),
	}, opts...)
	f.mgr = NewManager(f.store, rules.NewOracle(), resolver, cfg, opts...)
	t.Cleanup(f.mgr.Close)
	return f
}

func instant() Config {
	return Config{GameDuration: DefaultGameDuration}
}

func parked() Config {
	return Config{GameDuration: DefaultGameDuration, BotFirstMoveDelay: time.Hour, BotReplyDelay: time.Hour}
}

func start(t *testing.T, m *Manager, user string, choice domain.SideChoice) *domain.Session {
	t.Helper()
	s, err := m.StartSession(context.Background(), StartRequest{UserID: user, Room: "room", PlayerName: "P", Choice: choice})
	if err != nil {
		t.Fatalf("StartSession(%s): %v", user, err)
	}
	return s
}

func TestStartSessionDefaults(t *testing.T) {
	f := newFixture(t, nil, parked())
	s := start(t, f.mgr, "u1", domain.ChoiceWhite)
	if s.UserSide != domain.White || s.BotSide != domain.Black {
		t.Fatalf("sides = %s/%s", s.UserSide, s.BotSide)
	}
	if s.Position != domain.StartFEN || s.MoveNumber != 1 || len(s.Moves) != 0 {
		t.Fatalf("unexpected initial state: %+v", s)
	}
	if got := s.ExpiresAt.Sub(s.CreatedAt); got != 600*time.Second {
		t.Fatalf("duration = %s", got)
	}
	if s.ID == "" {
		t.Fatalf("missing session id")
	}
}

func TestStartSessionTwiceFails(t *testing.T) {
	f := newFixture(t, nil, parked())
	first := start(t, f.mgr, "u1", domain.ChoiceWhite)
	_, err := f.mgr.StartSession(context.Background(), StartRequest{UserID: "u1", Choice: domain.ChoiceBlack})
	if !errors.Is(err, ErrSessionAlreadyActive) {
		t.Fatalf("err = %v, want ErrSessionAlreadyActive", err)
	}
	cur, err := f.mgr.GetSession(context.Background(), "u1")
	if err != nil || cur.ID != first.ID || cur.UserSide != domain.White {
		t.Fatalf("first session should be untouched: %+v, %v", cur, err)
	}
}

func TestStartSessionReplacesExpired(t *testing.T) {
	f := newFixture(t, nil, parked())
	old := start(t, f.mgr, "u1", domain.ChoiceWhite)
	f.clock.Advance(DefaultGameDuration)
	fresh := start(t, f.mgr, "u1", domain.ChoiceWhite)
	if fresh.ID == old.ID {
		t.Fatalf("expected a new session")
	}
	if got := f.archive.results(); len(got) != 1 || got[0] != domain.ResultTimeout {
		t.Fatalf("archive = %v", got)
	}
}

func TestRandomSideIsRoughlyFair(t *testing.T) {
	f := newFixture(t, nil, parked())
	const n = 1000
	white := 0
	for i := 0; i < n; i++ {
		s := start(t, f.mgr, fmt.Sprintf("user-%d", i), domain.ChoiceRandom)
		if s.UserSide == domain.White {
			white++
		}
		if s.BotSide != s.UserSide.Opposite() {
			t.Fatalf("bot side must complement user side")
		}
	}
	if white < 400 || white > 600 {
		t.Fatalf("white chosen %d/%d times", white, n)
	}
}

func TestUserMoveE4(t *testing.T) {
	f := newFixture(t, nil, parked())
	start(t, f.mgr, "u1", domain.ChoiceWhite)
	res, err := f.mgr.ApplyUserMove(context.Background(), "u1", "e4")
	if err != nil {
		t.Fatalf("ApplyUserMove: %v", err)
	}
	s := res.Session
	if s.MoveNumber != 1 {
		t.Fatalf("move number = %d, want 1", s.MoveNumber)
	}
	if side, _ := domain.SideToMove(s.Position); side != domain.Black || !s.BotToMove() {
		t.Fatalf("expected black (bot) to move: %s", s.Position)
	}
	if res.Record.SAN != "e4" || res.Record.Actor != domain.ActorUser || res.Record.Source != "" {
		t.Fatalf("record = %+v", res.Record)
	}
}

func TestUserMoveErrors(t *testing.T) {
	f := newFixture(t, nil, parked())
	ctx := context.Background()

	if _, err := f.mgr.ApplyUserMove(ctx, "nobody", "e4"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("no session: %v", err)
	}

	start(t, f.mgr, "black", domain.ChoiceBlack)
	if _, err := f.mgr.ApplyUserMove(ctx, "black", "e5"); !errors.Is(err, ErrNotUserTurn) {
		t.Fatalf("not user turn: %v", err)
	}

	before := start(t, f.mgr, "white", domain.ChoiceWhite)
	if _, err := f.mgr.ApplyUserMove(ctx, "white", "   "); !errors.Is(err, ErrEmptyMove) {
		t.Fatalf("empty: %v", err)
	}
	for _, bad := range []string{"e5", "Ke2", "banana", "Nf6"} {
		if _, err := f.mgr.ApplyUserMove(ctx, "white", bad); !errors.Is(err, ErrIllegalMove) {
			t.Fatalf("%s: %v", bad, err)
		}
	}
	after, err := f.mgr.GetSession(ctx, "white")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if after.Position != before.Position || len(after.Moves) != 0 || after.MoveNumber != before.MoveNumber {
		t.Fatalf("illegal moves changed the session: %+v", after)
	}
}

func TestExpiredSessionIsReportedAndRemoved(t *testing.T) {
	f := newFixture(t, nil, parked())
	start(t, f.mgr, "u1", domain.ChoiceWhite)
	f.clock.Advance(DefaultGameDuration)
	if _, err := f.mgr.ApplyUserMove(context.Background(), "u1", "e4"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("err = %v, want ErrSessionExpired", err)
	}
	if _, err := f.mgr.GetSession(context.Background(), "u1"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("err = %v, want ErrNoActiveSession", err)
	}
}

func TestBotReplyAppendsTwoRecords(t *testing.T) {
	f := newFixture(t, nil, instant())
	start(t, f.mgr, "u1", domain.ChoiceWhite)
	if _, err := f.mgr.ApplyUserMove(context.Background(), "u1", "e4"); err != nil {
		t.Fatalf("ApplyUserMove: %v", err)
	}
	f.mgr.Wait()

	s, err := f.mgr.GetSession(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(s.Moves) != 2 {
		t.Fatalf("history length = %d, want 2", len(s.Moves))
	}
	bot := s.Moves[1]
	if bot.Actor != domain.ActorBot || bot.Source != pipeline.SourceHeuristic {
		t.Fatalf("bot record = %+v", bot)
	}
	if !s.UserToMove() || s.MoveNumber != 2 {
		t.Fatalf("after black's reply: user to move=%v move number=%d", s.UserToMove(), s.MoveNumber)
	}
	events := f.listener.all()
	if len(events) != 1 || events[0].Record.SAN != bot.SAN || events[0].Err != nil {
		t.Fatalf("events = %+v", events)
	}
}

func TestBotMovesFirstWhenUserIsBlack(t *testing.T) {
	resolver := &scriptedResolver{oracle: rules.NewOracle(), moves: []string{"d4"}}
	f := newFixture(t, resolver, instant())
	start(t, f.mgr, "u1", domain.ChoiceBlack)
	f.mgr.Wait()
	s, err := f.mgr.GetSession(context.Background(), "u1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if len(s.Moves) != 1 || s.Moves[0].SAN != "d4" || !s.UserToMove() {
		t.Fatalf("bot opening not applied: %+v", s.Moves)
	}
}

func TestUserDeliversCheckmate(t *testing.T) {
	resolver := &scriptedResolver{oracle: rules.NewOracle(), moves: []string{"f3", "g4"}}
	f := newFixture(t, resolver, instant())
	ctx := context.Background()
	start(t, f.mgr, "u1", domain.ChoiceBlack)
	f.mgr.Wait()
	if _, err := f.mgr.ApplyUserMove(ctx, "u1", "e5"); err != nil {
		t.Fatalf("e5: %v", err)
	}
	f.mgr.Wait()
	res, err := f.mgr.ApplyUserMove(ctx, "u1", "Qh4#")
	if err != nil {
		t.Fatalf("Qh4#: %v", err)
	}
	if !res.GameOver || res.Status != rules.StatusCheckmate {
		t.Fatalf("result = %+v", res)
	}
	if _, err := f.mgr.GetSession(ctx, "u1"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("finished game should be removed: %v", err)
	}
	if got := f.archive.results(); len(got) != 1 || got[0] != domain.ResultWin {
		t.Fatalf("archive = %v", got)
	}
}

func TestStaleBotResultIsDiscarded(t *testing.T) {
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	oracle := rules.NewOracle()
	resolver := resolverFunc(func(_ context.Context, position string, _ domain.Side) (*pipeline.Resolution, error) {
		entered <- struct{}{}
		<-release
		next, san, err := oracle.Apply(position, "e5")
		if err != nil {
			return nil, err
		}
		return &pipeline.Resolution{SAN: san, Position: next, Source: pipeline.SourceAI}, nil
	})
	f := newFixture(t, resolver, instant())
	ctx := context.Background()
	start(t, f.mgr, "u1", domain.ChoiceWhite)
	if _, err := f.mgr.ApplyUserMove(ctx, "u1", "e4"); err != nil {
		t.Fatalf("e4: %v", err)
	}
	<-entered
	if _, err := f.mgr.QuitSession(ctx, "u1"); err != nil {
		t.Fatalf("QuitSession: %v", err)
	}
	fresh := start(t, f.mgr, "u1", domain.ChoiceWhite)
	close(release)
	f.mgr.Wait()

	s, err := f.mgr.GetSession(ctx, "u1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if s.ID != fresh.ID || len(s.Moves) != 0 {
		t.Fatalf("stale bot move leaked into the new game: %+v", s.Moves)
	}
	if len(f.listener.all()) != 0 {
		t.Fatalf("stale result should not be announced")
	}
}

func TestBotFailureAbortsSession(t *testing.T) {
	boom := errors.New("boom")
	resolver := resolverFunc(func(context.Context, string, domain.Side) (*pipeline.Resolution, error) {
		return nil, boom
	})
	f := newFixture(t, resolver, instant())
	start(t, f.mgr, "u1", domain.ChoiceWhite)
	if _, err := f.mgr.ApplyUserMove(context.Background(), "u1", "e4"); err != nil {
		t.Fatalf("e4: %v", err)
	}
	f.mgr.Wait()
	if _, err := f.mgr.GetSession(context.Background(), "u1"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("session should be gone: %v", err)
	}
	events := f.listener.all()
	if len(events) != 1 || !errors.Is(events[0].Err, boom) {
		t.Fatalf("events = %+v", events)
	}
	if got := f.archive.results(); len(got) != 1 || got[0] != domain.ResultAborted {
		t.Fatalf("archive = %v", got)
	}
}

func TestQuitSummary(t *testing.T) {
	f := newFixture(t, nil, instant())
	ctx := context.Background()
	if _, err := f.mgr.QuitSession(ctx, "u1"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("quit without session: %v", err)
	}
	start(t, f.mgr, "u1", domain.ChoiceWhite)
	for _, mv := range []string{"e4", "Nf3"} {
		if _, err := f.mgr.ApplyUserMove(ctx, "u1", mv); err != nil {
			t.Fatalf("%s: %v", mv, err)
		}
		f.mgr.Wait()
	}
	f.clock.Advance(95 * time.Second)
	sum, err := f.mgr.QuitSession(ctx, "u1")
	if err != nil {
		t.Fatalf("QuitSession: %v", err)
	}
	if sum.TotalMoves != 4 || len(sum.LastMoves) != 3 || sum.Elapsed != 95*time.Second {
		t.Fatalf("summary = %+v", sum)
	}
	if sum.LastMoves[1].SAN != "Nf3" {
		t.Fatalf("last moves out of order: %+v", sum.LastMoves)
	}
	if _, err := f.mgr.GetSession(ctx, "u1"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("session should be removed: %v", err)
	}
	if got := f.archive.results(); len(got) != 1 || got[0] != domain.ResultAbandoned {
		t.Fatalf("archive = %v", got)
	}
}

func TestReapExpiredRemovesExactlyExpired(t *testing.T) {
	var reaped []*domain.Session
	f := newFixture(t, nil, parked(), WithExpiryListener(func(_ context.Context, s []*domain.Session) { reaped = s }))
	ctx := context.Background()
	start(t, f.mgr, "a", domain.ChoiceWhite) // expires at T0+600
	f.clock.Advance(100 * time.Second)
	start(t, f.mgr, "b", domain.ChoiceWhite) // expires at T0+700
	f.clock.Advance(500 * time.Second)       // now T0+600

	removed := f.mgr.ReapExpired(ctx)
	if len(removed) != 1 || removed[0].UserID != "a" || len(reaped) != 1 {
		t.Fatalf("removed = %v", removed)
	}
	if _, err := f.mgr.GetSession(ctx, "b"); err != nil {
		t.Fatalf("b should survive: %v", err)
	}
	if again := f.mgr.ReapExpired(ctx); len(again) != 0 {
		t.Fatalf("second pass removed %d", len(again))
	}
	if n, _ := f.mgr.ActiveSessions(ctx); n != 1 {
		t.Fatalf("active = %d", n)
	}
	f.clock.Advance(100 * time.Second)
	if removed := f.mgr.ReapExpired(ctx); len(removed) != 1 || removed[0].UserID != "b" {
		t.Fatalf("removed = %v", removed)
	}
}

func TestConcurrentMovesSameUser(t *testing.T) {
	f := newFixture(t, nil, parked())
	start(t, f.mgr, "u1", domain.ChoiceWhite)
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.mgr.ApplyUserMove(context.Background(), "u1", "e4"); err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("%d concurrent moves accepted, want 1", ok)
	}
	if f.mgr.locks.size() != 0 {
		t.Fatalf("locks leaked: %d", f.mgr.locks.size())
	}
}

func TestBotWithoutMovesAfterUserMateReportsWin(t *testing.T) {
	resolver := resolverFunc(func(context.Context, string, domain.Side) (*pipeline.Resolution, error) {
		return nil, pipeline.ErrNoLegalMoves
	})
	f := newFixture(t, resolver, parked())
	oracle := rules.NewOracle()

	now := f.clock.Now()
	s := &domain.Session{
		ID: "mated", UserID: "u1", Room: "room",
		UserSide: domain.Black, BotSide: domain.White,
		Position: domain.StartFEN, MoveNumber: 1,
		CreatedAt: now, ExpiresAt: now.Add(DefaultGameDuration),
	}
	for i, mv := range []string{"f3", "e5", "g4", "Qh4#"} {
		next, san, err := oracle.Apply(s.Position, mv)
		if err != nil {
			t.Fatalf("%s: %v", mv, err)
		}
		actor := domain.ActorBot
		if i%2 == 1 {
			actor = domain.ActorUser
		}
		s.Append(domain.MoveRecord{SAN: san, Actor: actor, At: now}, next)
	}
	if err := f.store.Put(context.Background(), s); err != nil {
		t.Fatal(err)
	}

	f.mgr.resolveBotTurn(context.Background(), s.ID, s.UserID, len(s.Moves))

	events := f.listener.all()
	if len(events) != 1 || !events[0].GameOver {
		t.Fatalf("events = %+v", events)
	}
	ev := events[0]
	if ev.Record.Actor != domain.ActorUser || ev.Record.SAN != "Qh4#" {
		t.Fatalf("record = %+v", ev.Record)
	}
	if got := ResultFor(ev.Status, ev.Record.Actor); got != domain.ResultWin {
		t.Fatalf("announced result = %s", got)
	}
	if got := f.archive.results(); len(got) != 1 || got[0] != domain.ResultWin {
		t.Fatalf("archive = %v", got)
	}
}

func TestNoBotTurnAfterClose(t *testing.T) {
	f := newFixture(t, nil, instant())
	s := start(t, f.mgr, "u1", domain.ChoiceWhite)
	f.mgr.Close()

	done := make(chan struct{})
	go func() {
		f.mgr.scheduleBotTurn(s, 0)
		f.mgr.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduling after Close blocked")
	}
	if len(f.listener.all()) != 0 {
		t.Fatalf("no bot turn should run after Close")
	}
}
