package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func statsFor(t *testing.T, s *Scheduler, name string) JobStats {
	t.Helper()
	for _, js := range s.Stats() {
		if js.Name == name {
			return js
		}
	}
	t.Fatalf("job %q not found in stats", name)
	return JobStats{}
}

func TestRunsImmediatelyThenOnInterval(t *testing.T) {
	s := New()
	ran := make(chan struct{}, 8)
	s.Register("tick", 50*time.Millisecond, func(ctx context.Context) error {
		ran <- struct{}{}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("job did not reach run %d", i+1)
		}
	}

	js := statsFor(t, s, "tick")
	if js.Runs < 2 {
		t.Errorf("runs = %d, want at least 2", js.Runs)
	}
	if js.LastRunAt.IsZero() {
		t.Error("LastRunAt not recorded")
	}
}

func TestFailureCountedScheduleContinues(t *testing.T) {
	s := New()
	ran := make(chan struct{}, 8)
	s.Register("flaky", 30*time.Millisecond, func(ctx context.Context) error {
		ran <- struct{}{}
		return errors.New("pass failed")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-ran:
		case <-time.After(2 * time.Second):
			t.Fatal("failing job must keep its schedule")
		}
	}

	js := statsFor(t, s, "flaky")
	if js.Failures < 2 {
		t.Errorf("failures = %d, want at least 2", js.Failures)
	}
}

func TestSingleFlightSkipsOverlappingRun(t *testing.T) {
	s := New()
	block := make(chan struct{})
	j := &job{name: "slow", interval: time.Hour, fn: func(ctx context.Context) error {
		<-block
		return nil
	}}
	s.jobs = append(s.jobs, j)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runOnce(context.Background(), j)
	}()

	// Wait until the first run holds the in-flight guard.
	deadline := time.After(2 * time.Second)
	for !j.inFlight.Load() {
		select {
		case <-deadline:
			t.Fatal("first run never started")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	s.runOnce(context.Background(), j) // overlapping tick
	close(block)
	wg.Wait()

	if got := j.skips.Load(); got != 1 {
		t.Errorf("skips = %d, want 1", got)
	}
	if got := j.runs.Load(); got != 1 {
		t.Errorf("runs = %d, want 1", got)
	}
}

func TestStopWaitsForInFlightRun(t *testing.T) {
	s := New()
	release := make(chan struct{})
	done := make(chan struct{})
	s.Register("drain", time.Hour, func(ctx context.Context) error {
		<-release
		close(done)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()
	s.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop returned before the in-flight run finished")
	}
}

func TestStartIsIdempotent(t *testing.T) {
	s := New()
	var mu sync.Mutex
	runs := 0
	s.Register("once", time.Hour, func(ctx context.Context) error {
		mu.Lock()
		runs++
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	s.Start(ctx)
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if runs != 1 {
		t.Errorf("immediate runs = %d, want 1 despite double Start", runs)
	}
}
