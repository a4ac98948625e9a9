package queue

import (
	"context"
	"fmt"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
)

// DeadLetterStore is the replay-side surface of the dead-letter table.
type DeadLetterStore interface {
	Get(ctx context.Context, id string) (*domain.DeadLetter, error)
	List(ctx context.Context, tenantID string, limit, offset int) ([]domain.DeadLetter, error)
	Delete(ctx context.Context, id string) error
}

// Replay re-dispatches one buried event with a fresh attempt budget and
// removes its dead letter. The dead letter survives a failed re-dispatch so
// the operator can try again.
func (d *Dispatcher) Replay(ctx context.Context, store DeadLetterStore, deadLetterID string) error {
	dl, err := store.Get(ctx, deadLetterID)
	if err != nil {
		return fmt.Errorf("load dead letter: %w", err)
	}
	if _, err := d.dispatch(ctx, dl.RawEventID, false); err != nil {
		return fmt.Errorf("replay event %s: %w", dl.RawEventID, err)
	}
	if err := store.Delete(ctx, deadLetterID); err != nil {
		return fmt.Errorf("clear dead letter: %w", err)
	}
	return nil
}

// ReplayAll replays every dead letter for a tenant, continuing past
// individual failures. Returns the number successfully re-dispatched.
func (d *Dispatcher) ReplayAll(ctx context.Context, store DeadLetterStore, tenantID string) (int, error) {
	const batch = 100
	replayed := 0
	for {
		letters, err := store.List(ctx, tenantID, batch, 0)
		if err != nil {
			return replayed, fmt.Errorf("list dead letters: %w", err)
		}
		if len(letters) == 0 {
			return replayed, nil
		}
		progress := false
		for _, dl := range letters {
			if err := d.Replay(ctx, store, dl.ID); err != nil {
				logger.Warn("dead letter replay failed", "dead_letter_id", dl.ID, "error", err)
				continue
			}
			replayed++
			progress = true
		}
		// Nothing moved this pass; stop instead of spinning on the same
		// failing letters.
		if !progress {
			return replayed, nil
		}
	}
}
