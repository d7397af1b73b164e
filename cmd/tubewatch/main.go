package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"tubewatch/internal/api"
	"tubewatch/internal/bot"
	"tubewatch/internal/config"
	"tubewatch/internal/dispatch"
	"tubewatch/internal/feed"
	"tubewatch/internal/retry"
	"tubewatch/internal/scheduler"
	"tubewatch/internal/storage"
	"tubewatch/internal/subsync"
	"tubewatch/internal/tracker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Error("tubewatch stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create data directory %s: %w", dir, err)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.DatabasePath, err)
	}
	defer func() { _ = store.Close() }()

	policy := retry.Policy{Attempts: cfg.RetryAttempts, Delay: cfg.RetryDelay}
	client := &http.Client{Timeout: cfg.HTTPTimeout}

	reader := feed.New(client, feed.WithRetry(policy))

	dispatchOpts := []dispatch.Option{dispatch.WithHTTPClient(client), dispatch.WithRetry(policy)}
	var b *bot.Bot
	if cfg.TelegramBotToken != "" {
		b, err = bot.New(cfg.TelegramBotToken, cfg, log.With("component", "bot"))
		if err != nil {
			return fmt.Errorf("create bot: %w", err)
		}
		dispatchOpts = append(dispatchOpts, dispatch.WithMessenger(b))
	} else {
		log.Info("TELEGRAM_BOT_TOKEN is not set, bot and telegram rules are disabled")
	}
	dispatcher := dispatch.New(store, dispatchOpts...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(store, reader, dispatcher, log.With("component", "scheduler"))
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer sched.Stop()

	syncer := subsync.New(store, sched, subsync.YouTubeFactory(), log.With("component", "subsync"))
	syncer.SetRetry(policy)
	syncRunner, err := subsync.NewRunner(syncer, cfg.SyncSchedule, log.With("component", "subsync"))
	if err != nil {
		return fmt.Errorf("create sync runner: %w", err)
	}
	syncRunner.Start()
	defer syncRunner.Stop()

	svc := tracker.New(store, reader, sched, dispatcher, syncer, log)
	if b != nil {
		go b.Run(ctx, svc)
	}

	srv := api.NewServer(cfg.HTTPAddr, svc, log.With("component", "api"))
	errc := make(chan error, 1)
	go func() {
		log.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("http server: %w", err)
	}

	log.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 10*time.Second)
	defer stop()
	return srv.Shutdown(shutdownCtx)
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
