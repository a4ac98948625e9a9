package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/repository"
)

func setupTestRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, func() {
		client.Close()
		mr.Close()
	}
}

type memEvents struct {
	mu     sync.Mutex
	events map[string]*domain.RawEvent
}

func newMemEvents(evs ...*domain.RawEvent) *memEvents {
	m := &memEvents{events: map[string]*domain.RawEvent{}}
	for _, ev := range evs {
		m.events[ev.ID] = ev
	}
	return m
}

func (m *memEvents) GetByID(ctx context.Context, id string) (*domain.RawEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.events[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return ev, nil
}

type memDLQ struct {
	mu       sync.Mutex
	inserted []domain.DeadLetter
	notify   chan struct{}
}

func (m *memDLQ) Insert(ctx context.Context, d *domain.DeadLetter) (string, error) {
	m.mu.Lock()
	m.inserted = append(m.inserted, *d)
	m.mu.Unlock()
	if m.notify != nil {
		m.notify <- struct{}{}
	}
	return "dl-1", nil
}

type funcProcessor struct {
	mu    sync.Mutex
	calls int
	fn    func(ev *domain.RawEvent) error
}

func (p *funcProcessor) Process(ctx context.Context, ev *domain.RawEvent) error {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	if p.fn != nil {
		return p.fn(ev)
	}
	return nil
}

func (p *funcProcessor) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func testEvent(id string) *domain.RawEvent {
	return &domain.RawEvent{
		ID:       id,
		TenantID: "t-1",
		Type:     domain.EventBounce,
		Payload:  json.RawMessage(`{"event_type":"bounce"}`),
	}
}

func TestDispatchEnqueues(t *testing.T) {
	rdb, cleanup := setupTestRedis(t)
	defer cleanup()

	d := New(rdb, newMemEvents(testEvent("ev-1")), &memDLQ{}, &funcProcessor{}, config.QueueConfig{})
	queued, err := d.Dispatch(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if !queued {
		t.Fatal("expected queued path with redis available")
	}

	raw, err := rdb.RPop(context.Background(), listKey).Result()
	if err != nil {
		t.Fatalf("pop: %v", err)
	}
	var tk task
	if err := json.Unmarshal([]byte(raw), &tk); err != nil {
		t.Fatalf("decode task: %v", err)
	}
	if tk.EventID != "ev-1" || tk.Attempt != 1 {
		t.Errorf("task = %+v, want ev-1 attempt 1", tk)
	}
	if got := d.Stats().Enqueued; got != 1 {
		t.Errorf("enqueued stat = %d, want 1", got)
	}
}

func TestDispatchInlineWithoutRedis(t *testing.T) {
	proc := &funcProcessor{}
	d := New(nil, newMemEvents(testEvent("ev-1")), &memDLQ{}, proc, config.QueueConfig{})

	queued, err := d.Dispatch(context.Background(), "ev-1")
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if queued {
		t.Fatal("expected inline path without redis")
	}
	if proc.callCount() != 1 {
		t.Errorf("processor calls = %d, want 1", proc.callCount())
	}
	stats := d.Stats()
	if stats.Inline != 1 || stats.Processed != 1 {
		t.Errorf("stats = %+v, want inline=1 processed=1", stats)
	}
}

func TestDispatchInlineSurfacesProcessorError(t *testing.T) {
	proc := &funcProcessor{fn: func(ev *domain.RawEvent) error { return errors.New("boom") }}
	dlq := &memDLQ{}
	d := New(nil, newMemEvents(testEvent("ev-1")), dlq, proc, config.QueueConfig{})

	if _, err := d.Dispatch(context.Background(), "ev-1"); err == nil {
		t.Fatal("expected inline processing error to surface")
	}

	// No retry loop exists inline, so the single failed attempt has to show
	// up in the dead-letter accounting rather than vanish into a log line.
	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	if len(dlq.inserted) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dlq.inserted))
	}
	dl := dlq.inserted[0]
	if dl.RawEventID != "ev-1" || dl.Attempts != 1 {
		t.Errorf("dead letter = %+v, want ev-1 attempt 1", dl)
	}
	if dl.TenantID != "t-1" || dl.LastError == "" {
		t.Errorf("dead letter missing event details: %+v", dl)
	}
	if got := d.Stats().DeadLetter; got != 1 {
		t.Errorf("dead_lettered stat = %d, want 1", got)
	}
}

func TestWorkerDrainsQueue(t *testing.T) {
	rdb, cleanup := setupTestRedis(t)
	defer cleanup()

	done := make(chan string, 2)
	proc := &funcProcessor{fn: func(ev *domain.RawEvent) error {
		done <- ev.ID
		return nil
	}}
	d := New(rdb, newMemEvents(testEvent("ev-1"), testEvent("ev-2")), &memDLQ{}, proc, config.QueueConfig{Workers: 2, MaxAttempts: 3})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	for _, id := range []string{"ev-1", "ev-2"} {
		if _, err := d.Dispatch(ctx, id); err != nil {
			t.Fatalf("dispatch %s: %v", id, err)
		}
	}

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case id := <-done:
			seen[id] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for workers to drain queue")
		}
	}
	if !seen["ev-1"] || !seen["ev-2"] {
		t.Errorf("processed = %v, want both events", seen)
	}
}

func TestRetriesThenDeadLetters(t *testing.T) {
	rdb, cleanup := setupTestRedis(t)
	defer cleanup()

	proc := &funcProcessor{fn: func(ev *domain.RawEvent) error { return errors.New("handler down") }}
	dlq := &memDLQ{notify: make(chan struct{}, 1)}
	d := New(rdb, newMemEvents(testEvent("ev-1")), dlq, proc, config.QueueConfig{Workers: 1, MaxAttempts: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d.Start(ctx)
	defer d.Stop()

	if _, err := d.Dispatch(ctx, "ev-1"); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	select {
	case <-dlq.notify:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for dead letter")
	}

	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	if len(dlq.inserted) != 1 {
		t.Fatalf("dead letters = %d, want 1", len(dlq.inserted))
	}
	dl := dlq.inserted[0]
	if dl.RawEventID != "ev-1" {
		t.Errorf("RawEventID = %q, want ev-1", dl.RawEventID)
	}
	if dl.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", dl.Attempts)
	}
	if dl.TenantID != "t-1" || dl.Type != domain.EventBounce {
		t.Errorf("dead letter missing event details: %+v", dl)
	}
	if dl.LastError == "" {
		t.Error("LastError not recorded")
	}
	if proc.callCount() != 2 {
		t.Errorf("processor calls = %d, want one per attempt", proc.callCount())
	}

	stats := d.Stats()
	if stats.Retried != 1 || stats.DeadLetter != 1 {
		t.Errorf("stats = %+v, want retried=1 dead_lettered=1", stats)
	}
}

type memDLStore struct {
	mu      sync.Mutex
	letters map[string]*domain.DeadLetter
}

func newMemDLStore(letters ...*domain.DeadLetter) *memDLStore {
	s := &memDLStore{letters: map[string]*domain.DeadLetter{}}
	for _, dl := range letters {
		s.letters[dl.ID] = dl
	}
	return s
}

func (s *memDLStore) Get(ctx context.Context, id string) (*domain.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dl, ok := s.letters[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return dl, nil
}

func (s *memDLStore) List(ctx context.Context, tenantID string, limit, offset int) ([]domain.DeadLetter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.DeadLetter
	for _, dl := range s.letters {
		if dl.TenantID == tenantID {
			out = append(out, *dl)
		}
	}
	return out, nil
}

func (s *memDLStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.letters, id)
	return nil
}

func TestReplayClearsDeadLetter(t *testing.T) {
	proc := &funcProcessor{}
	d := New(nil, newMemEvents(testEvent("ev-1")), &memDLQ{}, proc, config.QueueConfig{})
	store := newMemDLStore(&domain.DeadLetter{ID: "dl-1", TenantID: "t-1", RawEventID: "ev-1"})

	if err := d.Replay(context.Background(), store, "dl-1"); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if proc.callCount() != 1 {
		t.Errorf("processor calls = %d, want 1", proc.callCount())
	}
	if _, err := store.Get(context.Background(), "dl-1"); !errors.Is(err, repository.ErrNotFound) {
		t.Error("dead letter should be deleted after successful replay")
	}
}

func TestReplayKeepsDeadLetterOnFailure(t *testing.T) {
	proc := &funcProcessor{fn: func(ev *domain.RawEvent) error { return errors.New("still broken") }}
	dlq := &memDLQ{}
	d := New(nil, newMemEvents(testEvent("ev-1")), dlq, proc, config.QueueConfig{})
	store := newMemDLStore(&domain.DeadLetter{ID: "dl-1", TenantID: "t-1", RawEventID: "ev-1"})

	if err := d.Replay(context.Background(), store, "dl-1"); err == nil {
		t.Fatal("expected replay failure")
	}
	if _, err := store.Get(context.Background(), "dl-1"); err != nil {
		t.Error("dead letter must survive a failed replay")
	}
	// The existing dead letter is the record of this failure; a failed
	// replay must not write a second one.
	dlq.mu.Lock()
	defer dlq.mu.Unlock()
	if len(dlq.inserted) != 0 {
		t.Errorf("new dead letters = %d, want 0 after failed replay", len(dlq.inserted))
	}
}

func TestReplayAll(t *testing.T) {
	proc := &funcProcessor{fn: func(ev *domain.RawEvent) error {
		if ev.ID == "ev-bad" {
			return errors.New("permanent failure")
		}
		return nil
	}}
	events := newMemEvents(testEvent("ev-1"), testEvent("ev-2"), testEvent("ev-bad"))
	d := New(nil, events, &memDLQ{}, proc, config.QueueConfig{})
	store := newMemDLStore(
		&domain.DeadLetter{ID: "dl-1", TenantID: "t-1", RawEventID: "ev-1"},
		&domain.DeadLetter{ID: "dl-2", TenantID: "t-1", RawEventID: "ev-2"},
		&domain.DeadLetter{ID: "dl-3", TenantID: "t-1", RawEventID: "ev-bad"},
		&domain.DeadLetter{ID: "dl-other", TenantID: "t-2", RawEventID: "ev-1"},
	)

	replayed, err := d.ReplayAll(context.Background(), store, "t-1")
	if err != nil {
		t.Fatalf("replay all: %v", err)
	}
	if replayed != 2 {
		t.Errorf("replayed = %d, want 2", replayed)
	}
	if _, err := store.Get(context.Background(), "dl-3"); err != nil {
		t.Error("failing dead letter should remain for another attempt")
	}
	if _, err := store.Get(context.Background(), "dl-other"); err != nil {
		t.Error("other tenant's dead letter must be untouched")
	}
}
