package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/campus-finance/tuition-hub/internal/domain/ratelimit"
)

// RateLimitRepository implements ratelimit.Repository and ratelimit.Purger.
type RateLimitRepository struct {
	db *sql.DB
}

// Increment bumps the counter while it is below max.
func (r *RateLimitRepository) Increment(ctx context.Context, key ratelimit.Key, max int, now time.Time) (int, bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO rate_limits (student_no, endpoint, day, call_count, last_call)
		 VALUES (?, ?, ?, 1, ?)
		 ON CONFLICT (student_no, endpoint, day) DO UPDATE
		 SET call_count = call_count + 1, last_call = excluded.last_call
		 WHERE call_count < ?
		 RETURNING call_count`,
		key.Subject, key.Endpoint, key.Day, toMillis(now), max,
	).Scan(&count)
	if err == nil {
		return count, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, fmt.Errorf("increment rate limit: %w", err)
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT call_count FROM rate_limits WHERE student_no = ? AND endpoint = ? AND day = ?`,
		key.Subject, key.Endpoint, key.Day,
	).Scan(&count)
	if err != nil {
		return 0, false, fmt.Errorf("read rate limit: %w", err)
	}
	return count, false, nil
}

// PurgeBefore deletes counters of days before day.
func (r *RateLimitRepository) PurgeBefore(ctx context.Context, day string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rate_limits WHERE day < ?`, day)
	if err != nil {
		return 0, fmt.Errorf("purge rate limits: %w", err)
	}
	return res.RowsAffected()
}
