package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/campus-finance/tuition-hub/internal/domain/ratelimit"
)

// ══════════════════════════════════════════════════════════════════════════════
// RATE LIMIT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// RateLimitRepository implements ratelimit.Repository and ratelimit.Purger.
type RateLimitRepository struct {
	conn *Connection
}

// NewRateLimitRepository creates a new RateLimitRepository.
func NewRateLimitRepository(conn *Connection) *RateLimitRepository {
	return &RateLimitRepository{conn: conn}
}

// Increment bumps the counter in one statement. The conflicting row is locked
// by ON CONFLICT and the WHERE clause is evaluated against its latest version,
// so concurrent callers at the boundary cannot both pass.
func (r *RateLimitRepository) Increment(ctx context.Context, key ratelimit.Key, max int, now time.Time) (int, bool, error) {
	var count int
	err := r.conn.QueryRow(ctx, `
		INSERT INTO rate_limits (student_no, endpoint, day, call_count, last_call)
		VALUES ($1, $2, $3::date, 1, $4)
		ON CONFLICT (student_no, endpoint, day) DO UPDATE
		SET call_count = rate_limits.call_count + 1,
		    last_call = EXCLUDED.last_call
		WHERE rate_limits.call_count < $5
		RETURNING call_count
	`, key.Subject, key.Endpoint, key.Day, now.UTC(), max).Scan(&count)
	if err == nil {
		return count, true, nil
	}
	if !IsNoRows(err) {
		return 0, false, fmt.Errorf("failed to increment rate limit: %w", err)
	}

	err = r.conn.QueryRow(ctx, `
		SELECT call_count FROM rate_limits
		WHERE student_no = $1 AND endpoint = $2 AND day = $3::date
	`, key.Subject, key.Endpoint, key.Day).Scan(&count)
	if err != nil {
		return 0, false, fmt.Errorf("failed to read rate limit: %w", err)
	}
	return count, false, nil
}

// PurgeBefore deletes counters of days before day.
func (r *RateLimitRepository) PurgeBefore(ctx context.Context, day string) (int64, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM rate_limits WHERE day < $1::date`, day)
	if err != nil {
		return 0, fmt.Errorf("failed to purge rate limits: %w", err)
	}
	return tag.RowsAffected(), nil
}
