package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/park285/llm-chess-bot/internal/chessbuilder"
	appcfg "github.com/park285/llm-chess-bot/internal/config"
	"github.com/park285/llm-chess-bot/internal/gateway"
	"github.com/park285/llm-chess-bot/internal/obslog"
)

func main() {
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.Named("chess-bot")
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	deps, err := chessbuilder.New(initCtx, cfg, logger)
	cancel()
	if err != nil {
		logger.Fatal("chess_init_error", zap.Error(err))
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if irisCfg, err := deps.Client.GetConfig(probeCtx); err != nil {
		logger.Warn("iris_config_unavailable", zap.Error(err))
	} else {
		logger.Info("iris_config", zap.String("bot_name", irisCfg.BotName), zap.Int("bot_http_port", irisCfg.Port))
	}
	cancel()

	deps.WS.OnStateChange(func(state gateway.WebSocketState) {
		logger.Info("ws_state", zap.String("state", string(state)))
	})
	deps.WS.OnMessage(func(msg *gateway.Message) {
		if msg == nil || !deps.Router.Accepts(msg) {
			return
		}
		// keep the read loop free
		go deps.Router.Handle(ctx, msg)
	})

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	err = deps.WS.Connect(connectCtx)
	cancel()
	if err != nil {
		deps.Close(context.Background())
		logger.Fatal("ws_connect_error", zap.Error(err))
	}

	go deps.Manager.RunReaper(ctx, cfg.ReapInterval)

	var admin *http.Server
	if cfg.AdminAddr != "" {
		admin = &http.Server{Addr: cfg.AdminAddr, Handler: deps.Admin, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("admin_server_error", zap.Error(err))
			}
		}()
		logger.Info("admin_listening", zap.String("addr", cfg.AdminAddr))
	}

	logger.Info("chess_bot_started",
		zap.String("prefix", cfg.BotPrefix),
		zap.String("egress", cfg.EgressMode),
		zap.String("session_store", cfg.SessionStore),
		zap.String("archive", cfg.ArchiveBackend),
	)
	<-ctx.Done()
	logger.Info("chess_bot_stopping")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if admin != nil {
		_ = admin.Shutdown(shutdownCtx)
	}
	deps.Close(shutdownCtx)
}
