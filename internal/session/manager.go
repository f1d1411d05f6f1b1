// Package session owns the per-user game lifecycle: start, moves, quit, expiry,
// and the asynchronous bot turn that follows every user move.
package session

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/llm-chess-bot/internal/domain"
	"github.com/park285/llm-chess-bot/internal/pipeline"
	"github.com/park285/llm-chess-bot/internal/rules"
)

const (
	DefaultGameDuration      = 600 * time.Second
	DefaultReapInterval      = 30 * time.Second
	DefaultBotFirstMoveDelay = 2 * time.Second
	DefaultBotReplyDelay     = 1 * time.Second

	quitSummaryMoves = 3
)

type Config struct {
	GameDuration      time.Duration
	BotFirstMoveDelay time.Duration
	BotReplyDelay     time.Duration
}

func DefaultConfig() Config {
	return Config{
		GameDuration:      DefaultGameDuration,
		BotFirstMoveDelay: DefaultBotFirstMoveDelay,
		BotReplyDelay:     DefaultBotReplyDelay,
	}
}

// Resolver produces the bot's move for a position.
type Resolver interface {
	Resolve(ctx context.Context, position string, side domain.Side) (*pipeline.Resolution, error)
}

// Archiver persists games once they leave the store.
type Archiver interface {
	SaveGame(ctx context.Context, g *domain.ArchivedGame) error
}

type StartRequest struct {
	UserID     string
	Room       string
	PlayerName string
	Choice     domain.SideChoice
}

type MoveResult struct {
	Session  *domain.Session
	Record   domain.MoveRecord
	Status   rules.Status
	GameOver bool
}

type QuitSummary struct {
	Session    *domain.Session
	TotalMoves int
	Elapsed    time.Duration
	LastMoves  []domain.MoveRecord
}

// BotMoveEvent reports the outcome of one asynchronous bot turn.
// Err is set when the bot could not move and the session was discarded.
type BotMoveEvent struct {
	Session  *domain.Session
	Record   domain.MoveRecord
	Source   string
	Status   rules.Status
	GameOver bool
	Err      error
}

type BotMoveListener interface {
	OnBotMove(ctx context.Context, ev BotMoveEvent)
}

type BotMoveListenerFunc func(ctx context.Context, ev BotMoveEvent)

func (f BotMoveListenerFunc) OnBotMove(ctx context.Context, ev BotMoveEvent) { f(ctx, ev) }

// ExpiryListener is told about sessions removed by the reaper.
type ExpiryListener func(ctx context.Context, expired []*domain.Session)

type Manager struct {
	store    Store
	oracle   rules.Oracle
	resolver Resolver
	archive  Archiver
	listener BotMoveListener
	onExpire ExpiryListener
	cfg      Config
	now      func() time.Time
	pickSide func() domain.Side
	logger   *zap.Logger
	locks    *keyedLocks

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// closeMu orders wg.Add in scheduleBotTurn against Close.
	closeMu sync.RWMutex
	closed  bool
}

type Option func(*Manager)

func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

func WithArchive(a Archiver) Option {
	return func(m *Manager) { m.archive = a }
}

func WithBotMoveListener(l BotMoveListener) Option {
	return func(m *Manager) { m.listener = l }
}

func WithExpiryListener(fn ExpiryListener) Option {
	return func(m *Manager) { m.onExpire = fn }
}

// WithSidePicker replaces the crypto/rand coin flip used for random side choice.
func WithSidePicker(fn func() domain.Side) Option {
	return func(m *Manager) {
		if fn != nil {
			m.pickSide = fn
		}
	}
}

func NewManager(store Store, oracle rules.Oracle, resolver Resolver, cfg Config, opts ...Option) *Manager {
	if cfg.GameDuration <= 0 {
		cfg.GameDuration = DefaultGameDuration
	}
	if cfg.BotFirstMoveDelay < 0 {
		cfg.BotFirstMoveDelay = 0
	}
	if cfg.BotReplyDelay < 0 {
		cfg.BotReplyDelay = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		store:    store,
		oracle:   oracle,
		resolver: resolver,
		cfg:      cfg,
		now:      time.Now,
		pickSide: randomSide,
		logger:   zap.NewNop(),
		locks:    newKeyedLocks(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func randomSide() domain.Side {
	n, err := rand.Int(rand.Reader, big.NewInt(2))
	if err != nil || n.Int64() == 0 {
		return domain.White
	}
	return domain.Black
}

// StartSession creates a game. An expired leftover is archived and replaced.
func (m *Manager) StartSession(ctx context.Context, req StartRequest) (*domain.Session, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, fmt.Errorf("start session: empty user id")
	}
	unlock := m.locks.Lock(userID)
	defer unlock()

	now := m.now()
	existing, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if existing != nil {
		if !existing.Expired(now) {
			return nil, ErrSessionAlreadyActive
		}
		m.discard(ctx, existing, domain.ResultTimeout, "time limit", now)
	}

	userSide := domain.White
	switch req.Choice {
	case domain.ChoiceBlack:
		userSide = domain.Black
	case domain.ChoiceWhite:
	default:
		userSide = m.pickSide()
	}

	s := &domain.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		Room:       strings.TrimSpace(req.Room),
		PlayerName: strings.TrimSpace(req.PlayerName),
		UserSide:   userSide,
		BotSide:    userSide.Opposite(),
		Position:   domain.StartFEN,
		MoveNumber: 1,
		CreatedAt:  now,
		ExpiresAt:  now.Add(m.cfg.GameDuration),
		Moves:      []domain.MoveRecord{},
	}
	if err := m.store.Put(ctx, s); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			return nil, ErrSessionAlreadyActive
		}
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.logger.Info("session_start",
		zap.String("session_id", s.ID),
		zap.String("user_id", userID),
		zap.String("room", s.Room),
		zap.String("user_side", string(s.UserSide)),
	)
	if s.BotToMove() {
		m.scheduleBotTurn(s, m.cfg.BotFirstMoveDelay)
	}
	return s.Clone(), nil
}

// GetSession returns the live session; an expired one is removed and reported.
func (m *Manager) GetSession(ctx context.Context, userID string) (*domain.Session, error) {
	userID = strings.TrimSpace(userID)
	unlock := m.locks.Lock(userID)
	defer unlock()
	return m.loadLive(ctx, userID)
}

func (m *Manager) loadLive(ctx context.Context, userID string) (*domain.Session, error) {
	s, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return nil, ErrNoActiveSession
	}
	if now := m.now(); s.Expired(now) {
		m.discard(ctx, s, domain.ResultTimeout, "time limit", now)
		return nil, ErrSessionExpired
	}
	return s, nil
}

// ApplyUserMove validates and records the user's move, then schedules the bot reply.
func (m *Manager) ApplyUserMove(ctx context.Context, userID, moveText string) (*MoveResult, error) {
	userID = strings.TrimSpace(userID)
	unlock := m.locks.Lock(userID)
	defer unlock()

	s, err := m.loadLive(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !s.UserToMove() {
		return nil, ErrNotUserTurn
	}
	moveText = strings.TrimSpace(moveText)
	if moveText == "" {
		return nil, ErrEmptyMove
	}
	next, san, err := m.oracle.Apply(s.Position, moveText)
	if err != nil {
		if errors.Is(err, rules.ErrIllegalMove) {
			return nil, fmt.Errorf("%w: %s", ErrIllegalMove, moveText)
		}
		return nil, fmt.Errorf("apply move: %w", err)
	}

	now := m.now()
	s.Append(domain.MoveRecord{SAN: san, Actor: domain.ActorUser, At: now}, next)
	rec := s.Moves[len(s.Moves)-1]
	status := m.statusOf(s)

	if status.Terminal() {
		m.finish(ctx, s, status, domain.ActorUser, now)
		return &MoveResult{Session: s.Clone(), Record: rec, Status: status, GameOver: true}, nil
	}
	if err := m.store.Put(ctx, s); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}
	m.logger.Info("user_move",
		zap.String("session_id", s.ID),
		zap.String("user_id", userID),
		zap.String("san", san),
		zap.Int("move_number", rec.MoveNumber),
	)
	m.scheduleBotTurn(s, m.cfg.BotReplyDelay)
	return &MoveResult{Session: s.Clone(), Record: rec, Status: status}, nil
}

// QuitSession ends the game at the user's request.
func (m *Manager) QuitSession(ctx context.Context, userID string) (*QuitSummary, error) {
	userID = strings.TrimSpace(userID)
	unlock := m.locks.Lock(userID)
	defer unlock()

	s, err := m.store.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s == nil {
		return nil, ErrNoActiveSession
	}
	now := m.now()
	m.discard(ctx, s, domain.ResultAbandoned, "quit", now)
	return &QuitSummary{
		Session:    s,
		TotalMoves: len(s.Moves),
		Elapsed:    now.Sub(s.CreatedAt),
		LastMoves:  s.LastMoves(quitSummaryMoves),
	}, nil
}

// ReapExpired removes every session whose expiry is at or before now.
// Store failures are logged, never returned.
func (m *Manager) ReapExpired(ctx context.Context) []*domain.Session {
	all, err := m.store.List(ctx)
	if err != nil {
		m.logger.Warn("reap_list_failed", zap.Error(err))
		return nil
	}
	var removed []*domain.Session
	for _, snap := range all {
		if !snap.Expired(m.now()) {
			continue
		}
		if s := m.reapOne(ctx, snap.UserID); s != nil {
			removed = append(removed, s)
		}
	}
	if len(removed) > 0 {
		m.logger.Info("sessions_reaped", zap.Int("count", len(removed)))
		if m.onExpire != nil {
			m.onExpire(ctx, removed)
		}
	}
	return removed
}

func (m *Manager) reapOne(ctx context.Context, userID string) *domain.Session {
	unlock := m.locks.Lock(userID)
	defer unlock()
	s, err := m.store.Get(ctx, userID)
	if err != nil {
		m.logger.Warn("reap_get_failed", zap.String("user_id", userID), zap.Error(err))
		return nil
	}
	now := m.now()
	if s == nil || !s.Expired(now) {
		return nil
	}
	if !m.discard(ctx, s, domain.ResultTimeout, "time limit", now) {
		return nil
	}
	return s
}

// RunReaper calls ReapExpired every interval until ctx is done.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ReapExpired(ctx)
		}
	}
}

// ActiveSessions counts stored sessions that have not expired.
func (m *Manager) ActiveSessions(ctx context.Context) (int, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return 0, err
	}
	now := m.now()
	n := 0
	for _, s := range all {
		if !s.Expired(now) {
			n++
		}
	}
	return n, nil
}

// Wait blocks until scheduled bot turns have finished.
func (m *Manager) Wait() { m.wg.Wait() }

// Close cancels pending bot turns and waits for running ones.
func (m *Manager) Close() {
	m.closeMu.Lock()
	m.closed = true
	m.closeMu.Unlock()
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) scheduleBotTurn(s *domain.Session, delay time.Duration) {
	m.closeMu.RLock()
	defer m.closeMu.RUnlock()
	if m.closed {
		m.logger.Info("bot_turn_skipped_closing", zap.String("session_id", s.ID))
		return
	}
	m.wg.Add(1)
	go func(sessionID, userID string, historyLen int) {
		defer m.wg.Done()
		if delay > 0 {
			t := time.NewTimer(delay)
			defer t.Stop()
			select {
			case <-m.ctx.Done():
				return
			case <-t.C:
			}
		}
		m.resolveBotTurn(m.ctx, sessionID, userID, historyLen)
	}(s.ID, s.UserID, len(s.Moves))
}

// resolveBotTurn calls the pipeline outside the user lock and applies the result only
// when the session is still the same game at the same ply.
func (m *Manager) resolveBotTurn(ctx context.Context, sessionID, userID string, historyLen int) {
	snap, ok := m.botSnapshot(ctx, sessionID, userID, historyLen)
	if !ok {
		return
	}

	res, resolveErr := m.resolver.Resolve(ctx, snap.Position, snap.BotSide)
	if ctx.Err() != nil {
		return
	}

	unlock := m.locks.Lock(userID)
	defer unlock()

	s, err := m.store.Get(ctx, userID)
	if err != nil {
		m.logger.Warn("bot_turn_reload_failed", zap.String("user_id", userID), zap.Error(err))
		return
	}
	if s == nil || s.ID != sessionID || len(s.Moves) != historyLen {
		m.logger.Info("bot_turn_stale", zap.String("session_id", sessionID))
		return
	}
	now := m.now()
	if s.Expired(now) {
		return
	}

	if resolveErr != nil {
		if errors.Is(resolveErr, pipeline.ErrNoLegalMoves) {
			// the user's last move ended the game; report it as that move's outcome
			status := m.statusOf(s)
			last := domain.MoveRecord{Actor: domain.ActorUser}
			if n := len(s.Moves); n > 0 {
				last = s.Moves[n-1]
			}
			m.finish(ctx, s, status, last.Actor, now)
			m.notify(ctx, BotMoveEvent{Session: s.Clone(), Record: last, Status: status, GameOver: true})
			return
		}
		m.abort(ctx, s, resolveErr, now)
		return
	}

	s.Append(domain.MoveRecord{SAN: res.SAN, Actor: domain.ActorBot, At: now, Source: res.Source}, res.Position)
	rec := s.Moves[len(s.Moves)-1]
	status := m.statusOf(s)
	ev := BotMoveEvent{Session: s.Clone(), Record: rec, Source: res.Source, Status: status}

	if status.Terminal() {
		m.finish(ctx, s, status, domain.ActorBot, now)
		ev.GameOver = true
	} else if err := m.store.Put(ctx, s); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			m.logger.Info("bot_turn_stale", zap.String("session_id", sessionID))
			return
		}
		m.abort(ctx, s, fmt.Errorf("save session: %w", err), now)
		return
	}
	m.logger.Info("bot_move",
		zap.String("session_id", s.ID),
		zap.String("user_id", userID),
		zap.String("san", rec.SAN),
		zap.String("source", res.Source),
		zap.String("status", string(status)),
	)
	m.notify(ctx, ev)
}

func (m *Manager) botSnapshot(ctx context.Context, sessionID, userID string, historyLen int) (*domain.Session, bool) {
	unlock := m.locks.Lock(userID)
	defer unlock()
	s, err := m.store.Get(ctx, userID)
	if err != nil {
		m.logger.Warn("bot_turn_load_failed", zap.String("user_id", userID), zap.Error(err))
		return nil, false
	}
	if s == nil || s.ID != sessionID || len(s.Moves) != historyLen || !s.BotToMove() || s.Expired(m.now()) {
		return nil, false
	}
	return s, true
}

// abort drops a session the bot could not continue and tells the user.
func (m *Manager) abort(ctx context.Context, s *domain.Session, cause error, now time.Time) {
	m.logger.Error("bot_turn_failed", zap.String("session_id", s.ID), zap.Error(cause))
	m.discard(ctx, s, domain.ResultAborted, "error", now)
	m.notify(ctx, BotMoveEvent{Session: s.Clone(), Err: cause, GameOver: true})
}

func (m *Manager) notify(ctx context.Context, ev BotMoveEvent) {
	if m.listener != nil {
		m.listener.OnBotMove(ctx, ev)
	}
}

// statusOf combines the oracle's verdict with repetition, which needs the move history.
func (m *Manager) statusOf(s *domain.Session) rules.Status {
	status, err := m.oracle.Status(s.Position)
	if err != nil {
		m.logger.Warn("status_failed", zap.String("session_id", s.ID), zap.Error(err))
		return rules.StatusOngoing
	}
	if status == rules.StatusOngoing && s.Repetitions() >= 3 {
		return rules.StatusDrawRepetition
	}
	return status
}

// finish removes a completed game. mover is whoever made the last move.
func (m *Manager) finish(ctx context.Context, s *domain.Session, status rules.Status, mover domain.Actor, now time.Time) {
	result := ResultFor(status, mover)
	m.discard(ctx, s, result, Termination(status), now)
	m.logger.Info("game_over",
		zap.String("session_id", s.ID),
		zap.String("status", string(status)),
		zap.String("result", result),
	)
}

// discard deletes the session and archives it. It reports whether the delete succeeded.
func (m *Manager) discard(ctx context.Context, s *domain.Session, result, termination string, now time.Time) bool {
	if err := m.store.Delete(ctx, s.UserID); err != nil {
		m.logger.Warn("session_delete_failed", zap.String("session_id", s.ID), zap.Error(err))
		return false
	}
	if m.archive == nil {
		return true
	}
	game := Archive(s, result, termination, now)
	if err := m.archive.SaveGame(ctx, game); err != nil {
		m.logger.Warn("archive_failed", zap.String("session_id", s.ID), zap.Error(err))
	}
	return true
}

// Archive builds the history record for a session leaving the store.
func Archive(s *domain.Session, result, termination string, endedAt time.Time) *domain.ArchivedGame {
	g := &domain.ArchivedGame{
		SessionID:   s.ID,
		UserID:      s.UserID,
		Room:        s.Room,
		PlayerName:  s.PlayerName,
		UserSide:    s.UserSide,
		Result:      result,
		Termination: termination,
		MovesSAN:    s.SANs(),
		StartedAt:   s.CreatedAt,
		EndedAt:     endedAt,
		Duration:    endedAt.Sub(s.CreatedAt),
	}
	for _, mv := range s.Moves {
		if mv.Actor != domain.ActorBot {
			continue
		}
		if mv.Source == pipeline.SourceAI {
			g.AIMoves++
		} else {
			g.FallbackMoves++
		}
	}
	return g
}

// ResultFor is the user-relative result of a terminal status reached by mover's move.
func ResultFor(status rules.Status, mover domain.Actor) string {
	switch {
	case status != rules.StatusCheckmate:
		return domain.ResultDraw
	case mover == domain.ActorUser:
		return domain.ResultWin
	default:
		return domain.ResultLoss
	}
}

// Termination names how a game ended for archives and messages.
func Termination(status rules.Status) string {
	switch status {
	case rules.StatusCheckmate:
		return "checkmate"
	case rules.StatusStalemate:
		return "stalemate"
	case rules.StatusDrawRepetition:
		return "repetition"
	case rules.StatusDrawMaterial:
		return "insufficient material"
	case rules.StatusDrawMoveRule:
		return "move rule"
	}
	return string(status)
}
