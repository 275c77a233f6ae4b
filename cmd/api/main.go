// Package main - точка входа HTTP API Tuition Hub.
//
// API обслуживает:
// - публичный запрос остатка с суточным лимитом вызовов
// - банковские эндпоинты (остаток, оплата, история платежей)
// - админские эндпоинты (добавление, пакетная загрузка, список должников)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/campus-finance/tuition-hub/config"
	"github.com/campus-finance/tuition-hub/internal/application/command"
	"github.com/campus-finance/tuition-hub/internal/application/query"
	"github.com/campus-finance/tuition-hub/internal/domain/ratelimit"
	"github.com/campus-finance/tuition-hub/internal/infrastructure/persistence"
	httpapi "github.com/campus-finance/tuition-hub/internal/interface/http"
	"github.com/campus-finance/tuition-hub/internal/interface/http/handlers"
	"github.com/campus-finance/tuition-hub/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
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

	slogger := setupLogger(cfg)
	appLog := logger.New(logger.Options{
		Output:    os.Stdout,
		Level:     logger.ParseLevel(cfg.Log.Level),
		AddCaller: cfg.IsDevelopment(),
	}).With(logger.String("app", cfg.App.Name), logger.String("version", cfg.App.Version))

	slogger.Info("starting Tuition Hub API",
		"env", cfg.App.Environment,
		"storage", cfg.Storage.Driver,
		"rate_limit_backend", cfg.RateLimit.Backend,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	stores, err := persistence.Open(ctx, cfg, slogger)
	if err != nil {
		return err
	}
	defer func() {
		slogger.Info("closing storage...")
		stores.Close()
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 3. ПРИЛОЖЕНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	upsert := command.NewUpsertTuitionHandler(stores.Students, stores.Tuition, appLog,
		command.UpsertTuitionHandlerConfig{AutoCreateStudents: cfg.Ledger.AutoCreateStudents})

	deps := httpapi.Dependencies{
		UpsertTuition:   upsert,
		ApplyPayment:    command.NewApplyPaymentHandler(stores.Tuition, appLog),
		ImportBatch:     command.NewImportBatchHandler(upsert, cfg.Ledger.BatchAutoCreateStudents, appLog),
		GetBalance:      query.NewGetBalanceHandler(stores.Students, stores.Tuition, query.BalanceMode(cfg.Ledger.BalanceMode)),
		ListOutstanding: query.NewListOutstandingHandler(stores.Tuition),
		GetPayments:     query.NewGetPaymentsHandler(stores.Tuition),
		Limiter:         ratelimit.NewLimiter(stores.RateLimits, cfg.RateLimit.MaxCallsPerDay),
		Logger:          appLog,
		Health:          healthReport(cfg, stores),
	}

	server := httpapi.NewServer(httpapi.Config{
		Host:              cfg.HTTP.Host,
		Port:              cfg.HTTP.Port,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
		RequestTimeout:    cfg.HTTP.RequestTimeout,
		MaxRequestBytes:   cfg.HTTP.MaxRequestBytes,
		MaxUploadBytes:    cfg.Ledger.MaxUploadBytes,
		RateLimitEndpoint: cfg.RateLimit.Endpoint,
		Version:           cfg.App.Version,
	}, deps)

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАПУСК И GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		slogger.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slogger.Info("shutdown completed successfully")
	return nil
}

func healthReport(cfg *config.Config, stores *persistence.Stores) *handlers.Health {
	h := handlers.NewHealth(cfg.App.Version, 0)
	h.Require(string(stores.Driver), handlers.PingProbe(stores.DB))
	if stores.Cache != nil {
		// The counter store is required when quotas live in Redis.
		if cfg.RateLimit.Backend == config.RateLimitRedis {
			h.Require("redis", handlers.PingProbe(stores.Cache))
		} else {
			h.Optional("redis", handlers.PingProbe(stores.Cache))
		}
	}
	return h
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
