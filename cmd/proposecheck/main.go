// Command proposecheck asks the configured move pipeline for one move and prints how it was chosen.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/park285/llm-chess-bot/internal/chessbuilder"
	"github.com/park285/llm-chess-bot/internal/config"
	"github.com/park285/llm-chess-bot/internal/domain"
	"github.com/park285/llm-chess-bot/internal/obslog"
	"github.com/park285/llm-chess-bot/internal/rules"
)

func main() {
	fen := flag.String("fen", domain.StartFEN, "position to move from")
	mode := flag.String("fallback", os.Getenv("FALLBACK_MODE"), "fallback mode: scored or tiered")
	timeout := flag.Duration("timeout", 20*time.Second, "overall deadline")
	flag.Parse()

	if err := obslog.InitFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "logger init: %v\n", err)
		os.Exit(1)
	}
	logger := obslog.Named("proposecheck")

	cfg := &config.AppConfig{
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		GeminiModel:   os.Getenv("GEMINI_MODEL"),
		GeminiBaseURL: os.Getenv("GEMINI_BASE_URL"),
		LLMRetry:      1,
		FallbackMode:  *mode,
	}
	if v := os.Getenv("LLM_TIMEOUT"); v != "" {
		d, err := config.ParseDuration(v)
		if err != nil {
			fmt.Fprintf(os.Stderr, "LLM_TIMEOUT: %v\n", err)
			os.Exit(2)
		}
		cfg.LLMTimeout = d
	}

	oracle := rules.NewOracle()
	side, err := oracle.SideToMove(*fen)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bad fen: %v\n", err)
		os.Exit(2)
	}
	resolver, err := chessbuilder.NewResolver(cfg, oracle, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pipeline: %v\n", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	start := time.Now()
	res, err := resolver.Resolve(ctx, *fen, side)
	if err != nil {
		logger.Error("resolve_failed", zap.Error(err))
		os.Exit(1)
	}
	fmt.Printf("side:    %s\n", side.Title())
	fmt.Printf("move:    %s\n", res.SAN)
	fmt.Printf("source:  %s\n", res.Source)
	fmt.Printf("elapsed: %s\n", time.Since(start).Round(time.Millisecond))
	if res.Raw != "" {
		fmt.Printf("raw:     %q\n", res.Raw)
	}
	_ = logger.Sync()
}
