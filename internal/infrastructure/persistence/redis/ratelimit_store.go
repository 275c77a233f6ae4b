package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/campus-finance/tuition-hub/internal/domain/ratelimit"
	"github.com/campus-finance/tuition-hub/pkg/timeutil"
)

// incrementBelowMax increments KEYS[1] only while it is below ARGV[1] and
// pins its expiry to ARGV[2] (unix seconds of the next UTC midnight).
// Returns {count, incremented}.
var incrementBelowMax = redis.NewScript(`
local current = tonumber(redis.call('GET', KEYS[1]) or '0')
if current >= tonumber(ARGV[1]) then
	return {current, 0}
end
current = redis.call('INCR', KEYS[1])
redis.call('EXPIREAT', KEYS[1], ARGV[2])
return {current, 1}
`)

// RateLimitStore implements ratelimit.Repository on Redis. Counters expire
// at the next UTC midnight, so no purge job is needed.
type RateLimitStore struct {
	cache *Cache
}

// NewRateLimitStore creates a RateLimitStore.
func NewRateLimitStore(cache *Cache) *RateLimitStore {
	return &RateLimitStore{cache: cache}
}

// Increment runs the conditional increment script for key.
func (s *RateLimitStore) Increment(ctx context.Context, key ratelimit.Key, max int, now time.Time) (int, bool, error) {
	redisKey := RateLimitKey(key.Subject, key.Endpoint, key.Day)
	resetAt := timeutil.NextMidnightUTC(now).Unix()

	res, err := incrementBelowMax.Run(ctx, s.cache.Client(), []string{redisKey}, max, resetAt).Int64Slice()
	if err != nil {
		return 0, false, fmt.Errorf("redis rate limit: %w", err)
	}
	if len(res) != 2 {
		return 0, false, fmt.Errorf("redis rate limit: unexpected script result %v", res)
	}
	return int(res[0]), res[1] == 1, nil
}
