package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"jobfinder_bot/internal/aggregator"
	"jobfinder_bot/internal/assistant"
	"jobfinder_bot/internal/bot"
	"jobfinder_bot/internal/config"
	"jobfinder_bot/internal/dispatcher"
	"jobfinder_bot/internal/fetcher"
	"jobfinder_bot/internal/scheduler"
	"jobfinder_bot/internal/storage"
)

// Bounds for the per-chat conversation history kept for the assistant.
const (
	historyChats = 1000
	historyTurns = 20
)

func main() {
	if err := config.LoadEnvFile(".env"); err != nil {
		slog.Error("load env file", "error", err)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	store, err := openStore(cfg, log)
	if err != nil {
		log.Error("open subscriber store", "driver", cfg.StoreDriver, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	httpClient := &http.Client{}
	agg := aggregator.New(fetcher.New(httpClient, log), cfg.FetchConcurrency, cfg.FetchTimeout, log)

	var asker bot.Asker
	if cfg.AssistantEnabled() {
		history, err := assistant.NewHistory(historyChats, historyTurns)
		if err != nil {
			log.Error("create chat history", "error", err)
			os.Exit(1)
		}
		gen := assistant.NewGemini(cfg.GeminiAPIKey, cfg.GeminiModel, assistant.SystemPrompt, httpClient)
		asker = assistant.New(gen, history, log)
		log.Info("assistant enabled", "model", cfg.GeminiModel)
	}

	b, err := bot.New(cfg.TelegramBotToken, store, agg, asker, cfg, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	disp := dispatcher.New(b, cfg.SendRate, log)
	sched := scheduler.New(cfg, agg, store, disp, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	log.Info("starting bot", "feeds", len(cfg.Sources), "digest_time", cfg.DigestTime.String())

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("bot stopped")
}

func openStore(cfg *config.Config, log *slog.Logger) (storage.Storage, error) {
	if cfg.StoreDriver == config.DriverFile {
		return storage.NewFileStore(cfg.SubscribersPath, log), nil
	}

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}
	return storage.NewSQLite(cfg.DatabasePath)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
