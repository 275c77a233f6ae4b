// Package handlers holds the HTTP pieces that do not know about tuition:
// dependency health reporting and generic middleware.
package handlers

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Pinger is implemented by the ledger stores and the Redis cache.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Probe checks one dependency.
type Probe func(ctx context.Context) error

func PingProbe(p Pinger) Probe { return p.Ping }

// ProbeResult is the outcome of one Probe.
type ProbeResult struct {
	Healthy  bool   `json:"healthy"`
	Required bool   `json:"required"`
	Message  string `json:"message,omitempty"`
	Duration string `json:"duration,omitempty"`
}

// Report is served by /health.
//
// Healthy means every probe passed. Ready means every required probe
// passed; a failing optional dependency such as the student cache degrades
// the service without taking it out of rotation.
type Report struct {
	Healthy   bool                   `json:"healthy"`
	Ready     bool                   `json:"ready"`
	Message   string                 `json:"message,omitempty"`
	Checks    map[string]ProbeResult `json:"checks,omitempty"`
	Uptime    string                 `json:"uptime,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
}

// Reporter produces a Report on demand.
type Reporter interface {
	Report(ctx context.Context) Report
}

type probe struct {
	name     string
	fn       Probe
	required bool
}

// Health runs its probes concurrently, each under its own timeout.
type Health struct {
	version string
	started time.Time
	timeout time.Duration

	mu     sync.Mutex
	probes []probe
}

// NewHealth creates a reporter. A timeout <= 0 means 5s per probe.
func NewHealth(version string, timeout time.Duration) *Health {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Health{version: version, started: time.Now(), timeout: timeout}
}

// Require adds a probe whose failure makes the service not ready.
func (h *Health) Require(name string, fn Probe) { h.add(probe{name, fn, true}) }

// Optional adds a probe that only affects Healthy.
func (h *Health) Optional(name string, fn Probe) { h.add(probe{name, fn, false}) }

func (h *Health) add(p probe) {
	h.mu.Lock()
	h.probes = append(h.probes, p)
	h.mu.Unlock()
}

func (h *Health) Report(ctx context.Context) Report {
	h.mu.Lock()
	probes := slices.Clone(h.probes)
	h.mu.Unlock()

	rep := Report{
		Healthy:   true,
		Ready:     true,
		Uptime:    time.Since(h.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
		Version:   h.version,
	}
	if len(probes) == 0 {
		rep.Message = "No health checks registered"
		return rep
	}

	results := make([]ProbeResult, len(probes))
	var g errgroup.Group
	for i, p := range probes {
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(ctx, h.timeout)
			defer cancel()

			begin := time.Now()
			err := p.fn(pctx)
			results[i] = ProbeResult{
				Healthy:  err == nil,
				Required: p.required,
				Message:  "OK",
				Duration: time.Since(begin).Round(time.Millisecond).String(),
			}
			if err != nil {
				results[i].Message = err.Error()
			}
			// Failures are reported, not propagated.
			return nil
		})
	}
	_ = g.Wait()

	rep.Checks = make(map[string]ProbeResult, len(probes))
	var failed []string
	for i, p := range probes {
		r := results[i]
		rep.Checks[p.name] = r
		if r.Healthy {
			continue
		}
		failed = append(failed, p.name)
		rep.Healthy = false
		if r.Required {
			rep.Ready = false
		}
	}

	if rep.Healthy {
		rep.Message = "All checks passed"
	} else {
		slices.Sort(failed)
		rep.Message = "Some checks failed: " + strings.Join(failed, ", ")
	}
	return rep
}
