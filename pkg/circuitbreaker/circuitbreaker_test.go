package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDown = errors.New("redis down")

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func fail(context.Context) error { return errDown }
func ok(context.Context) error   { return nil }

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	clock := newClock()
	var transitions []string
	b := New(Settings{
		Name:      "cache",
		TripAfter: 2,
		Cooldown:  10 * time.Second,
		Now:       clock.Now,
		OnChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	ctx := context.Background()
	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateClosed, b.State())
	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	called := false
	err := b.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrOpen)
	assert.True(t, IsRejected(err))
	assert.False(t, called)
	assert.Equal(t, Stats{Failures: 2, Rejected: 1}, b.Stats())

	assert.Equal(t, []string{"closed->open"}, transitions)
}

func TestBreaker_SuccessResetsFailureStreak(t *testing.T) {
	b := New(Settings{TripAfter: 2})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	_ = b.Execute(ctx, ok)
	_ = b.Execute(ctx, fail)
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenRecovery(t *testing.T) {
	clock := newClock()
	b := New(Settings{TripAfter: 1, CloseAfter: 2, Cooldown: time.Minute, Now: clock.Now})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	require.Equal(t, StateOpen, b.State())

	clock.now = clock.now.Add(time.Minute)
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, StateHalfOpen, b.State())
	require.NoError(t, b.Execute(ctx, ok))
	assert.Equal(t, StateClosed, b.State())
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newClock()
	b := New(Settings{TripAfter: 1, Cooldown: time.Minute, Now: clock.Now})
	ctx := context.Background()

	_ = b.Execute(ctx, fail)
	clock.now = clock.now.Add(2 * time.Minute)
	assert.ErrorIs(t, b.Execute(ctx, fail), errDown)
	assert.Equal(t, StateOpen, b.State())

	// The cool-down restarts from the failed probe.
	assert.ErrorIs(t, b.Execute(ctx, ok), ErrOpen)
}

func TestBreaker_HalfOpenLimitsProbes(t *testing.T) {
	clock := newClock()
	b := New(Settings{TripAfter: 1, CloseAfter: 5, Cooldown: time.Second, Now: clock.Now})
	ctx := context.Background()
	_ = b.Execute(ctx, fail)
	clock.now = clock.now.Add(time.Second)

	inProbe := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- b.Execute(ctx, func(context.Context) error {
			close(inProbe)
			time.Sleep(20 * time.Millisecond)
			return nil
		})
	}()
	<-inProbe
	assert.ErrorIs(t, b.Execute(ctx, ok), ErrProbesTaken)
	require.NoError(t, <-done)
}

func TestCacheBreaker_IgnoresCancellation(t *testing.T) {
	b := CacheBreaker("student-cache", nil)
	ctx := context.Background()
	for range 10 {
		_ = b.Execute(ctx, func(context.Context) error { return context.Canceled })
	}
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, "student-cache", b.Name())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "half-open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(9).String())
}
