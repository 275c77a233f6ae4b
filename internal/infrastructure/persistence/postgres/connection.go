// Package postgres stores the tuition ledger and the daily quota counters
// in PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campus-finance/tuition-hub/config"
)

var errClosed = errors.New("postgres: pool is closed")

// Querier is satisfied by both *Connection and pgx.Tx, so row helpers
// work inside and outside a transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PoolConfig turns DATABASE_* settings into a pgxpool config. Zero limits
// keep the pgx defaults.
func PoolConfig(cfg config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pc.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnMaxIdleTime > 0 {
		pc.MaxConnIdleTime = cfg.ConnMaxIdleTime
	}
	return pc, nil
}

// Connection is the shared pool behind every repository in this package.
type Connection struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

// Connect opens the pool and makes sure the server answers.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*Connection, error) {
	pc, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping %s: %w", pc.ConnConfig.Host, err)
	}
	return &Connection{pool: pool}, nil
}

// Close is idempotent.
func (c *Connection) Close() {
	if c.closed.CompareAndSwap(false, true) {
		c.pool.Close()
	}
}

func (c *Connection) Ping(ctx context.Context) error {
	if c.closed.Load() {
		return errClosed
	}
	return c.pool.Ping(ctx)
}

func (c *Connection) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if c.closed.Load() {
		return pgconn.CommandTag{}, errClosed
	}
	return c.pool.Exec(ctx, sql, args...)
}

func (c *Connection) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if c.closed.Load() {
		return nil, errClosed
	}
	return c.pool.Query(ctx, sql, args...)
}

func (c *Connection) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.pool.QueryRow(ctx, sql, args...)
}

// WithTx runs fn in a read-committed transaction. fn's error is returned
// unchanged after rollback; a failed commit is wrapped.
func (c *Connection) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	if c.closed.Load() {
		return errClosed
	}
	tx, err := c.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func IsNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
