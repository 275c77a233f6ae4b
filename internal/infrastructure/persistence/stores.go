// Package persistence opens the ledger backend selected by configuration
// and exposes it through the domain repository interfaces.
package persistence

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/campus-finance/tuition-hub/config"
	"github.com/campus-finance/tuition-hub/internal/domain/ratelimit"
	"github.com/campus-finance/tuition-hub/internal/domain/student"
	"github.com/campus-finance/tuition-hub/internal/domain/tuition"
	"github.com/campus-finance/tuition-hub/internal/infrastructure/persistence/memory"
	"github.com/campus-finance/tuition-hub/internal/infrastructure/persistence/postgres"
	"github.com/campus-finance/tuition-hub/internal/infrastructure/persistence/redis"
	"github.com/campus-finance/tuition-hub/internal/infrastructure/persistence/sqlite"
	"github.com/campus-finance/tuition-hub/pkg/circuitbreaker"
	"github.com/campus-finance/tuition-hub/pkg/retry"
)

// Pinger reports backend reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Stores bundles the repositories of one backend.
type Stores struct {
	Driver config.StorageDriver

	Students   student.Repository
	Tuition    tuition.Repository
	RateLimits ratelimit.Repository

	// Purger is nil when counters expire on their own (Redis).
	Purger ratelimit.Purger

	// DB is the ledger backend; Cache is nil unless Redis is enabled.
	DB    Pinger
	Cache Pinger

	closers []func()
}

// Close releases all connections in reverse order of opening.
func (s *Stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

// Open connects the configured backend, retrying the initial connection,
// applies migrations and wires the optional Redis cache and counter store.
func Open(ctx context.Context, cfg *config.Config, log *slog.Logger) (*Stores, error) {
	if log == nil {
		log = slog.Default()
	}
	s := &Stores{Driver: cfg.Storage.Driver}

	rt := retry.StartupRetrier(cfg.Storage.ConnectAttempts, func(attempt int, err error, delay time.Duration) {
		log.Warn("backend connection failed, retrying",
			"attempt", attempt,
			"delay", delay.String(),
			"error", err,
		)
	})

	var err error
	switch cfg.Storage.Driver {
	case config.StoragePostgres:
		err = s.openPostgres(ctx, cfg, rt, log)
	case config.StorageSQLite:
		err = s.openSQLite(cfg, log)
	case config.StorageMemory:
		s.openMemory(log)
	default:
		err = fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	if err != nil {
		s.Close()
		return nil, err
	}

	if !cfg.Redis.Disabled {
		if err := s.openRedis(ctx, cfg, rt, log); err != nil {
			s.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Stores) openPostgres(ctx context.Context, cfg *config.Config, rt *retry.Retrier, log *slog.Logger) error {
	// A malformed URL fails the same way on every attempt.
	if _, err := postgres.PoolConfig(cfg.Database); err != nil {
		return fmt.Errorf("postgres config: %w", err)
	}

	log.Info("connecting to database...")
	conn, err := retry.DoValue(ctx, rt, func(ctx context.Context) (*postgres.Connection, error) {
		return postgres.Connect(ctx, cfg.Database)
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	s.closers = append(s.closers, conn.Close)
	log.Info("database connection established")

	if cfg.Database.AutoMigrate {
		if err := postgres.Migrate(ctx, conn); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("database schema is up to date")
	}

	rl := postgres.NewRateLimitRepository(conn)
	s.Students = postgres.NewStudentRepository(conn)
	s.Tuition = postgres.NewTuitionRepository(conn)
	s.RateLimits = rl
	s.Purger = rl
	s.DB = conn
	return nil
}

func (s *Stores) openSQLite(cfg *config.Config, log *slog.Logger) error {
	if dir := filepath.Dir(cfg.SQLite.Path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create sqlite directory: %w", err)
		}
	}
	store, err := sqlite.Open(cfg.SQLite.Path)
	if err != nil {
		return err
	}
	s.closers = append(s.closers, func() { _ = store.Close() })
	log.Info("sqlite store opened", "path", cfg.SQLite.Path)

	rl := store.RateLimits()
	s.Students = store.Students()
	s.Tuition = store.Tuition()
	s.RateLimits = rl
	s.Purger = rl
	s.DB = store
	return nil
}

func (s *Stores) openMemory(log *slog.Logger) {
	students := memory.NewStudentStore()
	rl := memory.NewRateLimitStore()
	s.Students = students
	s.Tuition = memory.NewTuitionStore(students)
	s.RateLimits = rl
	s.Purger = rl
	s.DB = alwaysUp{}
	log.Warn("using in-memory storage, data is lost on restart")
}

func (s *Stores) openRedis(ctx context.Context, cfg *config.Config, rt *retry.Retrier, log *slog.Logger) error {
	addr := fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port)
	log.Info("connecting to Redis...", "addr", addr)
	cache, err := retry.DoValue(ctx, rt, func(ctx context.Context) (*redis.Cache, error) {
		return redis.Dial(ctx, cfg.Redis)
	})
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	s.closers = append(s.closers, func() { _ = cache.Close() })
	s.Cache = cache
	log.Info("Redis connection established")

	if cfg.Redis.CacheStudents {
		breaker := circuitbreaker.CacheBreaker("student-cache", func(name string, from, to circuitbreaker.State) {
			log.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		})
		s.Students = redis.NewStudentCache(cache, s.Students, breaker, log)
	}
	if cfg.RateLimit.Backend == config.RateLimitRedis {
		s.RateLimits = redis.NewRateLimitStore(cache)
		s.Purger = nil
	}
	return nil
}

type alwaysUp struct{}

func (alwaysUp) Ping(ctx context.Context) error { return ctx.Err() }
