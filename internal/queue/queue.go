// Package queue moves persisted events from ingress to their handlers. The
// normal path is a Redis list drained by a bounded worker pool; when Redis
// is unavailable the dispatcher degrades to inline processing so ingestion
// keeps working, only slower. Handler failures retry up to a bounded attempt
// budget and then land in the dead-letter table for operator replay; inline
// failures skip the retries and are buried on the first failed attempt.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
)

const listKey = "deliverability:events"

// task is the wire form pushed onto the Redis list.
type task struct {
	EventID string `json:"event_id"`
	Attempt int    `json:"attempt"`
}

// EventSource loads persisted events for processing.
type EventSource interface {
	GetByID(ctx context.Context, id string) (*domain.RawEvent, error)
}

// DeadLetterSink records events that exhausted their retry budget.
type DeadLetterSink interface {
	Insert(ctx context.Context, d *domain.DeadLetter) (string, error)
}

// Processor handles one event. Returned errors are retryable.
type Processor interface {
	Process(ctx context.Context, ev *domain.RawEvent) error
}

// Stats are cumulative dispatcher counters.
type Stats struct {
	Enqueued   int64 `json:"enqueued"`
	Inline     int64 `json:"inline"`
	Processed  int64 `json:"processed"`
	Retried    int64 `json:"retried"`
	DeadLetter int64 `json:"dead_lettered"`
}

// Dispatcher owns the event queue and its worker pool.
type Dispatcher struct {
	rdb       *redis.Client // nil means inline-only mode
	events    EventSource
	dlq       DeadLetterSink
	processor Processor
	cfg       config.QueueConfig

	enqueued   atomic.Int64
	inline     atomic.Int64
	processed  atomic.Int64
	retried    atomic.Int64
	deadLetter atomic.Int64

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// New builds a dispatcher. rdb may be nil to force inline processing.
func New(rdb *redis.Client, events EventSource, dlq DeadLetterSink, processor Processor, cfg config.QueueConfig) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Dispatcher{
		rdb:       rdb,
		events:    events,
		dlq:       dlq,
		processor: processor,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
	}
}

// Dispatch queues an event, falling back to inline processing when the queue
// is unreachable. The returned bool reports which path ran.
func (d *Dispatcher) Dispatch(ctx context.Context, eventID string) (bool, error) {
	return d.dispatch(ctx, eventID, true)
}

// buryInline controls dead-lettering of a failed inline attempt. Replay
// passes false: its dead letter already exists and must not be duplicated.
func (d *Dispatcher) dispatch(ctx context.Context, eventID string, buryInline bool) (bool, error) {
	if d.rdb != nil {
		payload, _ := json.Marshal(task{EventID: eventID, Attempt: 1})
		if err := d.rdb.LPush(ctx, listKey, payload).Err(); err == nil {
			d.enqueued.Add(1)
			return true, nil
		} else {
			logger.Warn("queue push failed, processing inline", "event_id", eventID, "error", err)
		}
	}
	d.inline.Add(1)
	if err := d.processOnce(ctx, eventID, 1); err != nil {
		// Inline mode has no retry loop, so a failed attempt goes straight
		// to the dead-letter table. The failure stays visible to operators
		// even with the queue down.
		if buryInline {
			d.bury(ctx, task{EventID: eventID, Attempt: 1}, err)
		}
		return false, err
	}
	return false, nil
}

// Start launches the worker pool. No-op in inline-only mode.
func (d *Dispatcher) Start(ctx context.Context) {
	if d.rdb == nil {
		logger.Info("event queue disabled, running inline")
		return
	}
	logger.Info("starting event queue workers", "workers", d.cfg.Workers, "max_attempts", d.cfg.MaxAttempts)
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx, i)
	}
}

// Stop signals workers and waits for in-flight tasks to finish.
func (d *Dispatcher) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
	d.wg.Wait()
}

// Stats returns a snapshot of the dispatch counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Enqueued:   d.enqueued.Load(),
		Inline:     d.inline.Load(),
		Processed:  d.processed.Load(),
		Retried:    d.retried.Load(),
		DeadLetter: d.deadLetter.Load(),
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for {
		select {
		case <-d.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		res, err := d.rdb.BRPop(ctx, 2*time.Second, listKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			logger.Warn("queue pop failed", "worker", id, "error", err)
			time.Sleep(time.Second)
			continue
		}
		if len(res) < 2 {
			continue
		}

		var t task
		if err := json.Unmarshal([]byte(res[1]), &t); err != nil {
			logger.Error("discarding undecodable queue task", "worker", id, "error", err)
			continue
		}
		if err := d.processOnce(ctx, t.EventID, t.Attempt); err != nil {
			d.requeueOrBury(ctx, t, err)
		}
	}
}

func (d *Dispatcher) processOnce(ctx context.Context, eventID string, attempt int) error {
	ev, err := d.events.GetByID(ctx, eventID)
	if err != nil {
		return fmt.Errorf("load event %s: %w", eventID, err)
	}
	if err := d.processor.Process(ctx, ev); err != nil {
		return err
	}
	d.processed.Add(1)
	return nil
}

func (d *Dispatcher) requeueOrBury(ctx context.Context, t task, procErr error) {
	if t.Attempt < d.cfg.MaxAttempts {
		d.retried.Add(1)
		payload, _ := json.Marshal(task{EventID: t.EventID, Attempt: t.Attempt + 1})
		if err := d.rdb.LPush(ctx, listKey, payload).Err(); err != nil {
			logger.Error("requeue failed, burying early", "event_id", t.EventID, "error", err)
			d.bury(ctx, t, procErr)
		}
		return
	}
	d.bury(ctx, t, procErr)
}

func (d *Dispatcher) bury(ctx context.Context, t task, procErr error) {
	dl := &domain.DeadLetter{
		RawEventID: t.EventID,
		Attempts:   t.Attempt,
		LastError:  procErr.Error(),
		FailedAt:   time.Now().UTC(),
	}
	if ev, err := d.events.GetByID(ctx, t.EventID); err == nil {
		dl.TenantID = ev.TenantID
		dl.Type = ev.Type
		dl.Payload = ev.Payload
	}
	if _, err := d.dlq.Insert(ctx, dl); err != nil {
		logger.Error("dead-letter insert failed, event dropped from queue", "event_id", t.EventID, "error", err)
		return
	}
	d.deadLetter.Add(1)
	logger.Warn("event dead-lettered", "event_id", t.EventID, "attempts", t.Attempt, "error", procErr)
}
