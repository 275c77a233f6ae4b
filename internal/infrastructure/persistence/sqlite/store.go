// Package sqlite provides an embedded SQLite implementation of the ledger
// and rate-limit repositories.
//
// The store keeps a single open connection, so every transaction runs
// alone. That is what makes Mutate and Increment linearisable here.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/campus-finance/tuition-hub/internal/infrastructure/persistence/sqlite/migrations"
)

// Store persists ledger state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite store at path and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Ping checks the handle.
func (s *Store) Ping(ctx context.Context) error {
	return s.sqlDB.PingContext(ctx)
}

// Students returns the student repository.
func (s *Store) Students() *StudentRepository {
	return &StudentRepository{db: s.sqlDB}
}

// Tuition returns the tuition repository.
func (s *Store) Tuition() *TuitionRepository {
	return &TuitionRepository{db: s.sqlDB}
}

// RateLimits returns the rate-limit repository.
func (s *Store) RateLimits() *RateLimitRepository {
	return &RateLimitRepository{db: s.sqlDB}
}

// withTx runs fn in a transaction, committing on nil.
func withTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func isConstraintError(err error) bool {
	var sqliteErr *msqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	code := sqliteErr.Code()
	return code == sqlite3lib.SQLITE_CONSTRAINT ||
		code == sqlite3lib.SQLITE_CONSTRAINT_UNIQUE ||
		code == sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY ||
		code == sqlite3lib.SQLITE_CONSTRAINT_CHECK
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

const migrationTable = "schema_migrations"

// applyMigrations executes each embedded *.sql file at most once, in name order.
func applyMigrations(db *sql.DB, migrationFS fs.FS) error {
	entries, err := fs.ReadDir(migrationFS, ".")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS ` + migrationTable + ` (
		name TEXT PRIMARY KEY,
		applied_at INTEGER NOT NULL
	)`); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, file := range files {
		var exists int
		err := db.QueryRow(`SELECT COUNT(*) FROM `+migrationTable+` WHERE name = ?`, file).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check migration %s: %w", file, err)
		}
		if exists > 0 {
			continue
		}

		content, err := fs.ReadFile(migrationFS, file)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", file, err)
		}

		err = withTx(context.Background(), db, func(tx *sql.Tx) error {
			if _, err := tx.Exec(extractUp(string(content))); err != nil {
				return fmt.Errorf("exec migration %s: %w", file, err)
			}
			_, err := tx.Exec(`INSERT INTO `+migrationTable+` (name, applied_at) VALUES (?, ?)`,
				file, toMillis(time.Now()))
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// extractUp returns the SQL in the "-- +migrate Up" section.
func extractUp(content string) string {
	const up, down = "-- +migrate Up", "-- +migrate Down"
	start := strings.Index(content, up)
	if start == -1 {
		return content
	}
	content = content[start+len(up):]
	if end := strings.Index(content, down); end != -1 {
		content = content[:end]
	}
	return content
}
