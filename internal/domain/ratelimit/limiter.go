// Package ratelimit содержит суточный счётчик вызовов по студенту и эндпоинту.
//
// Окно фиксированное: календарный день UTC. Счётчик нового дня начинается
// с нуля в момент смены даты, явная очистка не требуется.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/campus-finance/tuition-hub/internal/domain/shared"
	"github.com/campus-finance/tuition-hub/pkg/timeutil"
)

// DefaultMaxPerDay - лимит вызовов в сутки по умолчанию.
const DefaultMaxPerDay = 3

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Key - ключ счётчика.
type Key struct {
	Subject  string
	Endpoint string
	Day      string // YYYY-MM-DD в UTC
}

// NewKey строит ключ для момента now.
func NewKey(subject, endpoint string, now time.Time) Key {
	return Key{
		Subject:  strings.TrimSpace(subject),
		Endpoint: endpoint,
		Day:      timeutil.DayUTC(now),
	}
}

// String возвращает ключ в виде "subject:endpoint:day".
func (k Key) String() string {
	return k.Subject + ":" + k.Endpoint + ":" + k.Day
}

// Counter - состояние счётчика.
type Counter struct {
	Key
	Count    int
	LastCall time.Time
}

// Decision - результат проверки лимита.
type Decision struct {
	Allowed    bool
	CallsToday int
	MaxAllowed int
	ResetAt    time.Time
}

// Remaining возвращает число оставшихся вызовов.
func (d Decision) Remaining() int {
	if r := d.MaxAllowed - d.CallsToday; r > 0 {
		return r
	}
	return 0
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// Repository хранит счётчики.
type Repository interface {
	// Increment атомарно увеличивает счётчик, только если он меньше max.
	// Отсутствующий счётчик создаётся со значением 1.
	// Возвращает значение счётчика после операции и признак увеличения.
	Increment(ctx context.Context, key Key, max int, now time.Time) (count int, incremented bool, err error)
}

// Purger удаляет устаревшие счётчики.
type Purger interface {
	// PurgeBefore удаляет счётчики с днём строго раньше day (YYYY-MM-DD).
	PurgeBefore(ctx context.Context, day string) (int64, error)
}

// ══════════════════════════════════════════════════════════════════════════════
// LIMITER
// ══════════════════════════════════════════════════════════════════════════════

// Limiter проверяет и увеличивает суточные счётчики.
type Limiter struct {
	repo  Repository
	max   int
	clock timeutil.Clock
}

// Option настраивает Limiter.
type Option func(*Limiter)

// WithClock задаёт источник времени.
func WithClock(c timeutil.Clock) Option {
	return func(l *Limiter) {
		l.clock = c
	}
}

// NewLimiter создаёт Limiter. max <= 0 означает DefaultMaxPerDay.
func NewLimiter(repo Repository, max int, opts ...Option) *Limiter {
	if max <= 0 {
		max = DefaultMaxPerDay
	}
	l := &Limiter{repo: repo, max: max, clock: timeutil.SystemClock}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Max возвращает лимит вызовов в сутки.
func (l *Limiter) Max() int {
	return l.max
}

// CheckAndIncrement учитывает вызов и сообщает, разрешён ли он.
// Отклонённый вызов счётчик не увеличивает.
func (l *Limiter) CheckAndIncrement(ctx context.Context, subject, endpoint string) (Decision, error) {
	now := l.clock().UTC()
	key := NewKey(subject, endpoint, now)
	if key.Subject == "" {
		return Decision{}, ErrSubjectRequired
	}

	count, ok, err := l.repo.Increment(ctx, key, l.max, now)
	if err != nil {
		return Decision{}, shared.StoreError("ratelimit", "CheckAndIncrement", err)
	}

	return Decision{
		Allowed:    ok,
		CallsToday: count,
		MaxAllowed: l.max,
		ResetAt:    timeutil.NextMidnightUTC(now),
	}, nil
}

// Allow как CheckAndIncrement, но отказ возвращается как *ExceededError.
func (l *Limiter) Allow(ctx context.Context, subject, endpoint string) (Decision, error) {
	d, err := l.CheckAndIncrement(ctx, subject, endpoint)
	if err != nil {
		return d, err
	}
	if !d.Allowed {
		return d, &ExceededError{Subject: strings.TrimSpace(subject), Endpoint: endpoint, Decision: d}
	}
	return d, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

// ErrSubjectRequired - не задан субъект лимита.
var ErrSubjectRequired = shared.NewDomainError("ratelimit", "CheckAndIncrement", shared.ErrValidation,
	"INVALID_STUDENT_NO", "Student number is required")

// ExceededError - суточный лимит исчерпан.
type ExceededError struct {
	Subject  string
	Endpoint string
	Decision Decision
}

// Error реализует интерфейс error.
func (e *ExceededError) Error() string {
	return fmt.Sprintf("ratelimit: %s exceeded %d calls on %s, resets at %s",
		e.Subject, e.Decision.MaxAllowed, e.Endpoint, timeutil.FormatReset(e.Decision.ResetAt))
}

// Is сопоставляет ошибку с shared.ErrRateLimited.
func (e *ExceededError) Is(target error) bool {
	return target == shared.ErrRateLimited
}
