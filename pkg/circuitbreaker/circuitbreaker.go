// Package circuitbreaker stops calls to an unhealthy optional dependency
// (the Redis student cache) for a cool-down period, so callers go straight
// to their fallback instead of paying a timeout on every request.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State is the breaker position.
type State int

const (
	StateClosed State = iota
	StateOpen
	// StateHalfOpen admits a bounded number of probe calls.
	StateHalfOpen
)

var stateNames = [...]string{"closed", "open", "half-open"}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

var (
	ErrOpen        = errors.New("circuitbreaker: open")
	ErrProbesTaken = errors.New("circuitbreaker: half-open probes in flight")
)

// IsRejected reports whether the breaker refused the call without running it.
func IsRejected(err error) bool {
	return errors.Is(err, ErrOpen) || errors.Is(err, ErrProbesTaken)
}

// Settings configures a Breaker. Zero fields take the defaults noted.
type Settings struct {
	Name string
	// TripAfter consecutive failures open the breaker (5).
	TripAfter int
	// CloseAfter consecutive probe successes close it again (2).
	CloseAfter int
	// Cooldown keeps the breaker open before probing (30s).
	Cooldown time.Duration
	// Probes bounds concurrent half-open calls (1).
	Probes int

	// Counts decides which errors count as failures; nil counts all.
	Counts func(error) bool
	// OnChange observes transitions. It runs with the breaker locked and
	// must not call back into it.
	OnChange func(name string, from, to State)
	Now      func() time.Time
}

// Stats are cumulative.
type Stats struct {
	Successes int
	Failures  int
	Rejected  int
}

// Breaker is safe for concurrent use.
type Breaker struct {
	set Settings

	mu       sync.Mutex
	state    State
	streak   int // consecutive successes or failures, depending on state
	inFlight int
	openedAt time.Time
	stats    Stats
}

func New(s Settings) *Breaker {
	if s.TripAfter <= 0 {
		s.TripAfter = 5
	}
	if s.CloseAfter <= 0 {
		s.CloseAfter = 2
	}
	if s.Cooldown <= 0 {
		s.Cooldown = 30 * time.Second
	}
	if s.Probes <= 0 {
		s.Probes = 1
	}
	if s.Now == nil {
		s.Now = time.Now
	}
	return &Breaker{set: s}
}

// CacheBreaker trips fast and retries soon, which suits a best-effort
// cache. Caller cancellation is not held against the dependency.
func CacheBreaker(name string, onChange func(name string, from, to State)) *Breaker {
	return New(Settings{
		Name:       name,
		TripAfter:  3,
		CloseAfter: 1,
		Cooldown:   15 * time.Second,
		Counts: func(err error) bool {
			return !errors.Is(err, context.Canceled)
		},
		OnChange: onChange,
	})
}

// Execute runs fn unless the breaker is open and records its outcome.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.record(probe, err)
	return err
}

// admit reports whether the call is a half-open probe.
func (b *Breaker) admit() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		if b.set.Now().Sub(b.openedAt) < b.set.Cooldown {
			b.stats.Rejected++
			return false, ErrOpen
		}
		b.moveTo(StateHalfOpen)
	}
	if b.state == StateHalfOpen {
		if b.inFlight >= b.set.Probes {
			b.stats.Rejected++
			return false, ErrProbesTaken
		}
		b.inFlight++
		return true, nil
	}
	return false, nil
}

func (b *Breaker) record(probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe && b.state == StateHalfOpen && b.inFlight > 0 {
		b.inFlight--
	}
	failed := err != nil && (b.set.Counts == nil || b.set.Counts(err))

	if !failed {
		b.stats.Successes++
		switch b.state {
		case StateClosed:
			b.streak = 0
		case StateHalfOpen:
			if b.streak++; b.streak >= b.set.CloseAfter {
				b.moveTo(StateClosed)
			}
		}
		return
	}

	b.stats.Failures++
	switch b.state {
	case StateClosed:
		if b.streak++; b.streak >= b.set.TripAfter {
			b.moveTo(StateOpen)
		}
	case StateHalfOpen:
		b.moveTo(StateOpen)
	}
}

// moveTo requires mu.
func (b *Breaker) moveTo(next State) {
	prev := b.state
	b.state = next
	b.streak = 0
	b.inFlight = 0
	if next == StateOpen {
		b.openedAt = b.set.Now()
	}
	if b.set.OnChange != nil {
		b.set.OnChange(b.set.Name, prev, next)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}

func (b *Breaker) Name() string { return b.set.Name }
