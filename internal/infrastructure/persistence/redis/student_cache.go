package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/campus-finance/tuition-hub/internal/domain/student"
	"github.com/campus-finance/tuition-hub/pkg/circuitbreaker"
)

const studentTTL = 10 * time.Minute

// StudentCache is a read-through cache in front of a student.Repository.
// Cache failures fall back to the inner repository. Repeated failures
// open the breaker and Redis is skipped until it cools down.
type StudentCache struct {
	cache   *Cache
	inner   student.Repository
	ttl     time.Duration
	breaker *circuitbreaker.Breaker
	logger  *slog.Logger
}

// NewStudentCache wraps inner with a Redis cache. A nil breaker gets
// circuitbreaker.CacheBreaker defaults.
func NewStudentCache(cache *Cache, inner student.Repository, breaker *circuitbreaker.Breaker, logger *slog.Logger) *StudentCache {
	if logger == nil {
		logger = slog.Default()
	}
	if breaker == nil {
		breaker = circuitbreaker.CacheBreaker("student-cache", func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		})
	}
	return &StudentCache{cache: cache, inner: inner, ttl: studentTTL, breaker: breaker, logger: logger}
}

type cachedStudent struct {
	No        string    `json:"no"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// Get returns the student from cache or from the inner repository.
func (s *StudentCache) Get(ctx context.Context, no string) (*student.Student, error) {
	var (
		cs  cachedStudent
		hit bool
	)
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		err := s.cache.Get(ctx, StudentKey(no), &cs)
		if errors.Is(err, ErrCacheMiss) {
			return nil
		}
		hit = err == nil
		return err
	})
	if hit {
		return &student.Student{No: cs.No, Name: cs.Name, Email: cs.Email, CreatedAt: cs.CreatedAt}, nil
	}
	if err != nil && !circuitbreaker.IsRejected(err) {
		s.logger.Warn("student cache read failed", "student_no", no, "error", err)
	}

	st, err := s.inner.Get(ctx, no)
	if err != nil {
		return nil, err
	}
	s.store(ctx, st)
	return st, nil
}

// Exists reports whether the student is known. Only positive answers are cached.
func (s *StudentCache) Exists(ctx context.Context, no string) (bool, error) {
	st, err := s.Get(ctx, no)
	if err == nil {
		return st != nil, nil
	}
	if errors.Is(err, student.ErrStudentNotFound) {
		return false, nil
	}
	return false, err
}

// Save writes through to the inner repository and drops the cached entry.
func (s *StudentCache) Save(ctx context.Context, st *student.Student) error {
	if err := s.inner.Save(ctx, st); err != nil {
		return err
	}
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.cache.Delete(ctx, StudentKey(st.No))
	})
	if err != nil && !circuitbreaker.IsRejected(err) {
		s.logger.Warn("student cache invalidation failed", "student_no", st.No, "error", err)
	}
	return nil
}

func (s *StudentCache) store(ctx context.Context, st *student.Student) {
	cs := cachedStudent{No: st.No, Name: st.Name, Email: st.Email, CreatedAt: st.CreatedAt}
	err := s.breaker.Execute(ctx, func(ctx context.Context) error {
		return s.cache.Set(ctx, StudentKey(st.No), cs, s.ttl)
	})
	if err != nil && !circuitbreaker.IsRejected(err) {
		s.logger.Warn("student cache write failed", "student_no", st.No, "error", err)
	}
}
