package memory

import (
	"context"
	"sync"
	"time"

	"github.com/campus-finance/tuition-hub/internal/domain/ratelimit"
)

// counterBucket is one day's counter for a (subject, endpoint) pair.
type counterBucket struct {
	mu       sync.Mutex
	count    int
	lastCall time.Time
}

// RateLimitStore is an in-memory ratelimit.Repository and ratelimit.Purger.
type RateLimitStore struct {
	buckets sync.Map // map[ratelimit.Key]*counterBucket
}

// NewRateLimitStore creates an empty RateLimitStore.
func NewRateLimitStore() *RateLimitStore {
	return &RateLimitStore{}
}

// Increment bumps the counter for key while it is below max.
func (s *RateLimitStore) Increment(ctx context.Context, key ratelimit.Key, max int, now time.Time) (int, bool, error) {
	if err := ctx.Err(); err != nil {
		return 0, false, err
	}
	b := s.getBucket(key)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count >= max {
		return b.count, false, nil
	}
	b.count++
	b.lastCall = now.UTC()
	return b.count, true, nil
}

// Counter returns the current state of key, if any.
func (s *RateLimitStore) Counter(key ratelimit.Key) (ratelimit.Counter, bool) {
	val, ok := s.buckets.Load(key)
	if !ok {
		return ratelimit.Counter{}, false
	}
	b := val.(*counterBucket)
	b.mu.Lock()
	defer b.mu.Unlock()
	return ratelimit.Counter{Key: key, Count: b.count, LastCall: b.lastCall}, true
}

// PurgeBefore drops counters of days before day.
func (s *RateLimitStore) PurgeBefore(ctx context.Context, day string) (int64, error) {
	var n int64
	s.buckets.Range(func(k, _ any) bool {
		if ctx.Err() != nil {
			return false
		}
		if k.(ratelimit.Key).Day < day {
			s.buckets.Delete(k)
			n++
		}
		return true
	})
	return n, ctx.Err()
}

func (s *RateLimitStore) getBucket(key ratelimit.Key) *counterBucket {
	if val, ok := s.buckets.Load(key); ok {
		return val.(*counterBucket)
	}
	actual, _ := s.buckets.LoadOrStore(key, &counterBucket{})
	return actual.(*counterBucket)
}
