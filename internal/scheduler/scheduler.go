// Package scheduler runs the periodic reconciliation jobs. Each job has a
// single-flight guard: if a run is still going when the next tick fires,
// the tick is skipped and counted rather than stacking a second run.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/deliverability-engine/internal/pkg/logger"
)

// JobFunc is one reconciliation pass. Errors are logged and counted; the
// schedule keeps going.
type JobFunc func(ctx context.Context) error

// JobStats is a snapshot of one job's counters.
type JobStats struct {
	Name         string        `json:"name"`
	Runs         int64         `json:"runs"`
	Skips        int64         `json:"skips"`
	Failures     int64         `json:"failures"`
	LastDuration time.Duration `json:"last_duration_ns"`
	LastRunAt    time.Time     `json:"last_run_at"`
}

type job struct {
	name     string
	interval time.Duration
	fn       JobFunc

	inFlight atomic.Bool
	runs     atomic.Int64
	skips    atomic.Int64
	failures atomic.Int64
	lastNS   atomic.Int64
	lastRun  atomic.Int64 // unix nanos
}

// Scheduler owns a set of named periodic jobs.
type Scheduler struct {
	mu       sync.Mutex
	jobs     []*job
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
	started  bool
}

func New() *Scheduler {
	return &Scheduler{stopCh: make(chan struct{})}
}

// Register adds a job. Must be called before Start.
func (s *Scheduler) Register(name string, interval time.Duration, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, interval: interval, fn: fn})
}

// Start launches one goroutine per registered job. Each job runs once
// immediately, then on its interval.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	for _, j := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, j)
	}
	logger.Info("scheduler started", "jobs", len(s.jobs))
}

// Stop signals all job loops and waits for in-flight runs to finish.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Stats snapshots every job's counters.
func (s *Scheduler) Stats() []JobStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]JobStats, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, JobStats{
			Name:         j.name,
			Runs:         j.runs.Load(),
			Skips:        j.skips.Load(),
			Failures:     j.failures.Load(),
			LastDuration: time.Duration(j.lastNS.Load()),
			LastRunAt:    time.Unix(0, j.lastRun.Load()),
		})
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, j *job) {
	defer s.wg.Done()

	s.runOnce(ctx, j)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, j)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, j *job) {
	if !j.inFlight.CompareAndSwap(false, true) {
		j.skips.Add(1)
		logger.Warn("job still running, skipping tick", "job", j.name)
		return
	}
	defer j.inFlight.Store(false)

	start := time.Now()
	err := j.fn(ctx)
	j.runs.Add(1)
	j.lastNS.Store(int64(time.Since(start)))
	j.lastRun.Store(start.UnixNano())
	if err != nil {
		j.failures.Add(1)
		logger.Error("job run failed", "job", j.name, "duration", time.Since(start).String(), "error", err)
		return
	}
	logger.Debug("job run complete", "job", j.name, "duration", time.Since(start).String())
}
