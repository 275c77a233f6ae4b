// Package scheduler runs the worker's maintenance jobs, such as purging
// expired daily quota counters. Every job gets its own goroutine, so a job
// never overlaps with itself and a slow job never delays another.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrDuplicateJob   = errors.New("scheduler: job already registered")
	ErrUnknownJob     = errors.New("scheduler: unknown job")
	ErrJobBusy        = errors.New("scheduler: job is already running")
	ErrAlreadyStarted = errors.New("scheduler: already started")
	ErrNotStarted     = errors.New("scheduler: not started")
)

// Job is one unit of maintenance work. Run receives a context that ends on
// Stop or when the per-run timeout elapses.
type Job interface {
	Name() string
	Description() string
	Run(ctx context.Context) error
}

// Result describes one finished run.
type Result struct {
	Job      string
	Started  time.Time
	Duration time.Duration
	Err      error
	Manual   bool
}

// JobInfo is a snapshot for status output.
type JobInfo struct {
	Name        string
	Description string
	Schedule    string
	NextRun     time.Time
	Runs        int64
	Failures    int64
	Last        *Result
}

type entry struct {
	job      Job
	schedule Schedule
	busy     atomic.Bool

	mu       sync.Mutex
	nextRun  time.Time
	runs     int64
	failures int64
	last     *Result
}

// Options configures New. Zero values are usable.
type Options struct {
	Logger *slog.Logger
	// JobTimeout bounds each run; zero means none.
	JobTimeout time.Duration
	Now        func() time.Time
}

// Scheduler owns the registered jobs and their goroutines.
type Scheduler struct {
	log     *slog.Logger
	timeout time.Duration
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func New(opts Options) *Scheduler {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Scheduler{
		log:     opts.Logger,
		timeout: opts.JobTimeout,
		now:     opts.Now,
		entries: make(map[string]*entry),
	}
}

// Add registers job. Jobs added after Start wait for the next Start.
func (s *Scheduler) Add(job Job, schedule Schedule) error {
	if job == nil || schedule == nil {
		return errors.New("scheduler: job and schedule are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	name := job.Name()
	if _, ok := s.entries[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	e := &entry{job: job, schedule: schedule, nextRun: schedule.Next(s.now())}
	s.entries[name] = e
	s.log.Info("job registered", "job", name, "schedule", schedule.String(), "next_run", e.nextRun)
	return nil
}

// Start launches one loop per job. The loops end when ctx ends or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	ctx, s.cancel = context.WithCancel(ctx)
	for _, e := range s.entries {
		s.wg.Add(1)
		go s.loop(ctx, e)
	}
	s.log.Info("scheduler started", "jobs", len(s.entries))
	return nil
}

// Stop cancels in-flight runs and waits for every loop to exit.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return ErrNotStarted
	}
	cancel()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.wg.Done()
	for {
		e.mu.Lock()
		wait := e.nextRun.Sub(s.now())
		e.mu.Unlock()

		t := time.NewTimer(max(wait, 0))
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}

		now := s.now()
		e.mu.Lock()
		e.nextRun = e.schedule.Next(now)
		e.mu.Unlock()

		// A manual run still in flight takes this slot.
		if e.busy.CompareAndSwap(false, true) {
			s.run(ctx, e, false)
		}
	}
}

// run expects e.busy to be held and releases it.
func (s *Scheduler) run(ctx context.Context, e *entry, manual bool) Result {
	defer e.busy.Store(false)

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	name := e.job.Name()
	res := Result{Job: name, Started: s.now(), Manual: manual}
	begin := time.Now()
	res.Err = e.job.Run(ctx)
	res.Duration = time.Since(begin)

	e.mu.Lock()
	e.runs++
	if res.Err != nil {
		e.failures++
	}
	e.last = &res
	e.mu.Unlock()

	if res.Err != nil {
		s.log.Error("job failed", "job", name, "manual", manual, "duration", res.Duration.String(), "error", res.Err)
	} else {
		s.log.Info("job completed", "job", name, "manual", manual, "duration", res.Duration.String())
	}
	return res
}

// RunNow runs a job immediately on the caller's goroutine. It does not
// move the job's next scheduled run.
func (s *Scheduler) RunNow(ctx context.Context, name string) (Result, error) {
	s.mu.Lock()
	e, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	if !e.busy.CompareAndSwap(false, true) {
		return Result{}, fmt.Errorf("%w: %s", ErrJobBusy, name)
	}
	res := s.run(ctx, e, true)
	return res, res.Err
}

// Jobs lists registered jobs by name.
func (s *Scheduler) Jobs() []JobInfo {
	s.mu.Lock()
	out := make([]JobInfo, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		out = append(out, JobInfo{
			Name:        e.job.Name(),
			Description: e.job.Description(),
			Schedule:    e.schedule.String(),
			NextRun:     e.nextRun,
			Runs:        e.runs,
			Failures:    e.failures,
			Last:        e.last,
		})
		e.mu.Unlock()
	}
	s.mu.Unlock()

	slices.SortFunc(out, func(a, b JobInfo) int { return strings.Compare(a.Name, b.Name) })
	return out
}
