// Package main - точка входа фонового процесса (Worker) Tuition Hub.
//
// Worker отвечает за периодическое обслуживание:
// - удаление устаревших суточных счётчиков лимита вызовов
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/campus-finance/tuition-hub/config"
	"github.com/campus-finance/tuition-hub/internal/infrastructure/persistence"
	"github.com/campus-finance/tuition-hub/internal/infrastructure/scheduler"
	"github.com/campus-finance/tuition-hub/internal/infrastructure/scheduler/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log := setupLogger(cfg)
	log.Info("starting Tuition Hub Worker",
		"env", cfg.App.Environment,
		"storage", cfg.Storage.Driver,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	stores, err := persistence.Open(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing storage...")
		stores.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	sched := scheduler.New(scheduler.Options{
		Logger:     log,
		JobTimeout: cfg.Scheduler.JobTimeout,
	})

	if stores.Purger != nil {
		purge := jobs.NewPurgeRateLimitsJob(stores.Purger, log, jobs.PurgeRateLimitsConfig{
			RetentionDays: cfg.RateLimit.RetentionDays,
		})
		var schedule scheduler.Schedule = scheduler.Every(cfg.Scheduler.PurgeInterval)
		if at, ok, _ := cfg.Scheduler.DailyPurgeOffset(); ok {
			schedule = scheduler.DailyAt(at)
		}
		if err := sched.Add(purge, schedule); err != nil {
			return fmt.Errorf("register %s: %w", purge.Name(), err)
		}
		// Clean up once on boot instead of waiting a full interval.
		if _, err := sched.RunNow(ctx, purge.Name()); err != nil {
			log.Warn("initial purge failed", "error", err)
		}
	} else {
		log.Info("rate-limit counters expire in Redis, purge job not registered")
	}

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	log.Info("Tuition Hub Worker is running")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	<-ctx.Done()
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

	done := make(chan error, 1)
	go func() { done <- sched.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("scheduler stop: %w", err)
		}
	case <-time.After(cfg.App.ShutdownTimeout):
		return fmt.Errorf("shutdown timed out after %s", cfg.App.ShutdownTimeout)
	}

	log.Info("shutdown completed successfully")
	return nil
}

// setupLogger настраивает slog: JSON в production, текст в остальных средах.
func setupLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Log.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.IsProduction() || cfg.Log.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}
