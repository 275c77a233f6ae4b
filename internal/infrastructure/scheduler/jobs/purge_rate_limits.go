// Package jobs contains the scheduled jobs run by the worker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/campus-finance/tuition-hub/internal/domain/ratelimit"
	"github.com/campus-finance/tuition-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// PURGE RATE LIMITS JOB
// ══════════════════════════════════════════════════════════════════════════════

// DefaultRetentionDays is how many past days of counters are kept.
const DefaultRetentionDays = 7

// PurgeRateLimitsJob deletes daily counters older than the retention window.
// Counters for the current day are never touched, so quota decisions do not
// depend on this job running.
type PurgeRateLimitsJob struct {
	purger        ratelimit.Purger
	logger        *slog.Logger
	clock         timeutil.Clock
	retentionDays int

	lastPurged atomic.Int64
}

// PurgeRateLimitsConfig contains configuration for the purge job.
type PurgeRateLimitsConfig struct {
	RetentionDays int
	Clock         timeutil.Clock
}

// NewPurgeRateLimitsJob creates a new purge job.
func NewPurgeRateLimitsJob(purger ratelimit.Purger, logger *slog.Logger, config PurgeRateLimitsConfig) *PurgeRateLimitsJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.RetentionDays < 1 {
		config.RetentionDays = DefaultRetentionDays
	}
	if config.Clock == nil {
		config.Clock = timeutil.SystemClock
	}
	return &PurgeRateLimitsJob{
		purger:        purger,
		logger:        logger.With("job", "purge_rate_limits"),
		clock:         config.Clock,
		retentionDays: config.RetentionDays,
	}
}

// Name returns the job name.
func (j *PurgeRateLimitsJob) Name() string {
	return "purge_rate_limits"
}

// Description returns a human-readable description.
func (j *PurgeRateLimitsJob) Description() string {
	return fmt.Sprintf("Deletes rate-limit counters older than %d days", j.retentionDays)
}

// Run executes the purge.
func (j *PurgeRateLimitsJob) Run(ctx context.Context) error {
	start := time.Now()
	cutoff := timeutil.DaysAgoUTC(j.clock(), j.retentionDays)

	n, err := j.purger.PurgeBefore(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("purge rate limits before %s: %w", cutoff, err)
	}
	j.lastPurged.Store(n)

	j.logger.Info("rate-limit counters purged",
		"cutoff", cutoff,
		"deleted", n,
		"duration", time.Since(start).String(),
	)
	return nil
}

// LastPurged returns the number of rows deleted by the most recent run.
func (j *PurgeRateLimitsJob) LastPurged() int64 {
	return j.lastPurged.Load()
}
