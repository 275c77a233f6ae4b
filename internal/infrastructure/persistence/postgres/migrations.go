package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// Migration is one forward-only schema step. Versions start at 1 and are
// recorded in schema_migrations once applied.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

var migrations = []Migration{
	{Version: 1, Name: "create_ledger", SQL: migration001Up},
	{Version: 2, Name: "create_rate_limits", SQL: migration002Up},
}

// Migrate applies every migration not yet recorded, each in its own
// transaction together with its schema_migrations row.
func Migrate(ctx context.Context, conn *Connection) error {
	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	rows, err := conn.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	done, err := pgx.CollectRows(rows, pgx.RowTo[int])
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	applied := make(map[int]bool, len(done))
	for _, v := range done {
		applied[v] = true
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		err := conn.WithTx(ctx, func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, m.SQL); err != nil {
				return err
			}
			_, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("migration %d (%s): %w", m.Version, m.Name, err)
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: STUDENTS, TUITION ENTRIES, PAYMENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS students (
    student_no TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    email TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS tuition_entries (
    id BIGSERIAL PRIMARY KEY,
    student_no TEXT NOT NULL REFERENCES students(student_no),
    term TEXT NOT NULL,
    total_amount NUMERIC(18,2) NOT NULL,
    paid_amount NUMERIC(18,2) NOT NULL DEFAULT 0,
    balance NUMERIC(18,2) NOT NULL,
    status VARCHAR(10) NOT NULL,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_tuition_student_term UNIQUE (student_no, term),
    CONSTRAINT chk_tuition_amounts CHECK (total_amount >= 0 AND paid_amount >= 0 AND paid_amount <= total_amount),
    CONSTRAINT chk_tuition_balance CHECK (balance = total_amount - paid_amount),
    CONSTRAINT chk_tuition_status CHECK (status IN ('UNPAID', 'PARTIAL', 'PAID'))
);

CREATE INDEX IF NOT EXISTS idx_tuition_term_status ON tuition_entries(term, status, student_no);
CREATE INDEX IF NOT EXISTS idx_tuition_student_created ON tuition_entries(student_no, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS payments (
    id BIGSERIAL PRIMARY KEY,
    tuition_id BIGINT NOT NULL REFERENCES tuition_entries(id),
    reference VARCHAR(32) NOT NULL,
    amount NUMERIC(18,2) NOT NULL,
    status VARCHAR(20) NOT NULL,
    paid_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_payments_reference UNIQUE (reference),
    CONSTRAINT chk_payments_amount CHECK (amount > 0)
);

CREATE INDEX IF NOT EXISTS idx_payments_tuition ON payments(tuition_id, paid_at, id);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: DAILY RATE LIMIT COUNTERS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS rate_limits (
    student_no TEXT NOT NULL,
    endpoint TEXT NOT NULL,
    day DATE NOT NULL,
    call_count INTEGER NOT NULL DEFAULT 0,
    last_call TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    PRIMARY KEY (student_no, endpoint, day),
    CONSTRAINT chk_rate_limits_count CHECK (call_count >= 0)
);

-- Range scans for purging old days.
CREATE INDEX IF NOT EXISTS idx_rate_limits_day ON rate_limits(day);
`
