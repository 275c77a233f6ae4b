package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type funcJob struct {
	name string
	run  func(ctx context.Context) error
}

func (j *funcJob) Name() string                  { return j.name }
func (j *funcJob) Description() string           { return "test job " + j.name }
func (j *funcJob) Run(ctx context.Context) error { return j.run(ctx) }

func noop(context.Context) error { return nil }

func TestScheduler_Add(t *testing.T) {
	s := New(Options{})
	job := &funcJob{name: "b", run: noop}

	assert.Error(t, s.Add(nil, Every(time.Minute)))
	assert.Error(t, s.Add(job, nil))
	require.NoError(t, s.Add(job, Every(time.Minute)))
	assert.ErrorIs(t, s.Add(job, Every(time.Minute)), ErrDuplicateJob)
	require.NoError(t, s.Add(&funcJob{name: "a", run: noop}, DailyAt(90*time.Minute)))

	jobs := s.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].Name)
	assert.Equal(t, "@daily 01:30 UTC", jobs[0].Schedule)
	assert.Equal(t, "@every 1m0s", jobs[1].Schedule)
}

func TestScheduler_RunsJobsOnSchedule(t *testing.T) {
	var runs atomic.Int32
	s := New(Options{})
	require.NoError(t, s.Add(&funcJob{name: "tick", run: func(context.Context) error {
		runs.Add(1)
		return nil
	}}, Every(10*time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.ErrorIs(t, s.Start(context.Background()), ErrAlreadyStarted)
	assert.True(t, s.Running())

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, s.Stop())
	assert.False(t, s.Running())
	assert.ErrorIs(t, s.Stop(), ErrNotStarted)
}

func TestScheduler_NoOverlap(t *testing.T) {
	var active, peak atomic.Int32
	release := make(chan struct{})

	s := New(Options{})
	require.NoError(t, s.Add(&funcJob{name: "slow", run: func(ctx context.Context) error {
		n := active.Add(1)
		defer active.Add(-1)
		if n > peak.Load() {
			peak.Store(n)
		}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}}, Every(time.Millisecond)))

	require.NoError(t, s.Start(context.Background()))
	assert.Eventually(t, func() bool { return active.Load() == 1 }, time.Second, time.Millisecond)

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobBusy)

	time.Sleep(20 * time.Millisecond)
	close(release)
	require.NoError(t, s.Stop())

	assert.Equal(t, int32(1), peak.Load())
}

func TestScheduler_RunNowAndTimeout(t *testing.T) {
	s := New(Options{JobTimeout: 20 * time.Millisecond})
	require.NoError(t, s.Add(&funcJob{name: "hang", run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}, Every(time.Hour)))

	res, err := s.RunNow(context.Background(), "hang")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, res.Manual)
	assert.Equal(t, "hang", res.Job)

	info := s.Jobs()[0]
	assert.Equal(t, int64(1), info.Runs)
	assert.Equal(t, int64(1), info.Failures)
	require.NotNil(t, info.Last)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestDailyAt_Next(t *testing.T) {
	s := DailyAt(3 * time.Hour)

	before := time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC), s.Next(before))

	exact := time.Date(2024, 3, 10, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 3, 11, 3, 0, 0, 0, time.UTC), s.Next(exact))

	almaty := time.FixedZone("Asia/Almaty", 5*60*60)
	assert.Equal(t, time.Date(2024, 3, 11, 3, 0, 0, 0, time.UTC), s.Next(time.Date(2024, 3, 11, 7, 0, 0, 0, almaty)))
}
