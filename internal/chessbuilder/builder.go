// Package chessbuilder wires the bot's object graph from configuration.
package chessbuilder

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/park285/llm-chess-bot/internal/adapter/chesspresenter"
	"github.com/park285/llm-chess-bot/internal/adminhttp"
	"github.com/park285/llm-chess-bot/internal/command"
	"github.com/park285/llm-chess-bot/internal/config"
	"github.com/park285/llm-chess-bot/internal/domain"
	"github.com/park285/llm-chess-bot/internal/fallback"
	"github.com/park285/llm-chess-bot/internal/gateway"
	"github.com/park285/llm-chess-bot/internal/history"
	"github.com/park285/llm-chess-bot/internal/llm"
	"github.com/park285/llm-chess-bot/internal/msgcat"
	"github.com/park285/llm-chess-bot/internal/pipeline"
	"github.com/park285/llm-chess-bot/internal/render"
	"github.com/park285/llm-chess-bot/internal/rules"
	"github.com/park285/llm-chess-bot/internal/session"
)

const replyTimeout = 15 * time.Second

type Deps struct {
	Client   *gateway.Client
	WS       *gateway.WebSocket
	Egress   gateway.Egress
	Manager  *session.Manager
	Router   *command.Router
	Resolver *pipeline.Resolver
	Repo     history.Repository
	Admin    http.Handler

	redis  *redis.Client
	logger *zap.Logger
}

// New connects the configured stores and returns a graph ready for Connect.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*Deps, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Deps{logger: logger}

	oracle := rules.NewOracle()
	resolver, err := NewResolver(cfg, oracle, logger)
	if err != nil {
		return nil, err
	}
	d.Resolver = resolver

	store, err := d.openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	repo, err := OpenArchive(ctx, cfg)
	if err != nil {
		d.closeRedis()
		return nil, err
	}
	d.Repo = repo

	catalog, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		d.Close(ctx)
		return nil, fmt.Errorf("load messages: %w", err)
	}

	headers := gateway.StaticHeaders(cfg.XUserID, cfg.XUserEmail, cfg.XSessionID)
	d.Client = gateway.NewClient(cfg.IrisBaseURL, gateway.WithHeaderProvider(headers))
	d.WS = gateway.NewWebSocket(cfg.IrisWSURL,
		gateway.WithWSHeaders(headers),
		gateway.WithWSLogger(logger.Named("ws")),
	)
	d.Egress = gateway.NewEgress(cfg.EgressMode, d.Client, d.WS, logger.Named("egress"))

	presenterOpts := []chesspresenter.PresenterOption{chesspresenter.WithPresenterLogger(logger.Named("presenter"))}
	if cfg.BoardImage {
		presenterOpts = append(presenterOpts, chesspresenter.WithRenderer(render.NewPNGRenderer()))
	}
	presenter := chesspresenter.NewPresenter(d.sendText, d.sendImage, presenterOpts...)
	formatter := chesspresenter.NewFormatter(prefixProvider(cfg.BotPrefix), catalog)
	adapter := chesspresenter.NewAdapter(oracle)

	// The router needs the manager and the manager reports back to the router.
	var router *command.Router
	d.Manager = session.NewManager(store, oracle, resolver, session.Config{
		GameDuration:      cfg.SessionDuration,
		BotFirstMoveDelay: cfg.BotFirstMoveDelay,
		BotReplyDelay:     cfg.BotReplyDelay,
	},
		session.WithLogger(logger.Named("session")),
		session.WithArchive(repo),
		session.WithBotMoveListener(session.BotMoveListenerFunc(func(ctx context.Context, ev session.BotMoveEvent) {
			router.OnBotMove(ctx, ev)
		})),
		session.WithExpiryListener(func(ctx context.Context, expired []*domain.Session) {
			router.OnExpired(ctx, expired)
		}),
	)
	router = command.NewRouter(command.Config{
		Prefix:       cfg.BotPrefix,
		AllowedRooms: cfg.AllowedRooms,
		HistoryLimit: cfg.HistoryLimit,
	}, d.Manager, repo, adapter, formatter, presenter, command.WithLogger(logger.Named("command")))
	d.Router = router

	d.Admin = adminhttp.NewRouter(adminhttp.Deps{
		Sessions:  d.Manager,
		History:   repo,
		Connected: d.WS.Connected,
		Logger:    logger.Named("admin"),
	})
	return d, nil
}

// NewResolver builds the move pipeline alone; the probe command uses it without Iris.
func NewResolver(cfg *config.AppConfig, oracle rules.Oracle, logger *zap.Logger) (*pipeline.Resolver, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	mode, err := fallback.ParseMode(cfg.FallbackMode)
	if err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	var proposer llm.Proposer = llm.Disabled{}
	if cfg.GeminiAPIKey != "" {
		proposer = llm.NewGeminiClient(cfg.GeminiAPIKey,
			llm.WithBaseURL(cfg.GeminiBaseURL),
			llm.WithModel(cfg.GeminiModel),
			llm.WithTimeout(cfg.LLMTimeout),
			llm.WithRetry(cfg.LLMRetry),
			llm.WithLogger(logger.Named("llm")),
		)
	} else {
		logger.Warn("llm_disabled", zap.String("reason", "GEMINI_API_KEY not set"))
	}
	return pipeline.NewResolver(proposer, oracle,
		pipeline.WithStrategy(fallback.New(mode, rand.New(rand.NewSource(rng.Int63())))),
		pipeline.WithRand(rng),
		pipeline.WithLogger(logger.Named("pipeline")),
	), nil
}

// OpenArchive returns the history backend named by ARCHIVE_BACKEND.
func OpenArchive(ctx context.Context, cfg *config.AppConfig) (history.Repository, error) {
	switch cfg.ArchiveBackend {
	case "none":
		return history.Nop{}, nil
	case "postgres":
		repo, err := history.NewPostgresRepository(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres archive: %w", err)
		}
		return repo, nil
	case "mongo":
		repo, err := history.NewMongoRepository(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, fmt.Errorf("open mongo archive: %w", err)
		}
		return repo, nil
	default:
		return history.NewMemoryRepository(), nil
	}
}

func (d *Deps) openStore(ctx context.Context, cfg *config.AppConfig) (session.Store, error) {
	if cfg.SessionStore != "redis" {
		return session.NewMemoryStore(), nil
	}
	rdb, err := session.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("open redis store: %w", err)
	}
	d.redis = rdb
	return session.NewRedisStore(rdb), nil
}

func (d *Deps) sendText(room, message string) error {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	return d.Egress.SendText(ctx, room, message)
}

func (d *Deps) sendImage(room, imageBase64 string) error {
	ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
	defer cancel()
	return d.Egress.SendImage(ctx, room, imageBase64)
}

func (d *Deps) closeRedis() {
	if d.redis == nil {
		return
	}
	if err := d.redis.Close(); err != nil {
		d.logger.Warn("redis_close_failed", zap.Error(err))
	}
	d.redis = nil
}

// Close stops bot turns first so nothing writes to a closed store.
func (d *Deps) Close(ctx context.Context) {
	if d.WS != nil {
		if err := d.WS.Close(ctx); err != nil {
			d.logger.Warn("ws_close_failed", zap.Error(err))
		}
	}
	if d.Manager != nil {
		d.Manager.Close()
	}
	if d.Repo != nil {
		if err := d.Repo.Close(ctx); err != nil {
			d.logger.Warn("archive_close_failed", zap.Error(err))
		}
	}
	d.closeRedis()
}

type prefixProvider string

func (p prefixProvider) Prefix() string { return string(p) }
