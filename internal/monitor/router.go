package monitor

import (
	"context"
	"fmt"

	"github.com/ignite/deliverability-engine/internal/domain"
)

// Process routes an event to its handler. Unknown types are a permanent
// failure: retrying will never make them known.
func (m *Monitor) Process(ctx context.Context, ev *domain.RawEvent) error {
	switch ev.Type {
	case domain.EventBounce:
		return m.HandleBounce(ctx, ev)
	case domain.EventSent:
		return m.HandleSent(ctx, ev)
	case domain.EventOpen:
		return m.HandleOpen(ctx, ev)
	case domain.EventClick:
		return m.HandleClick(ctx, ev)
	case domain.EventReply:
		return m.HandleReply(ctx, ev)
	case domain.EventUnsubscribe:
		return m.HandleUnsubscribe(ctx, ev)
	case domain.EventSpam:
		return m.HandleSpam(ctx, ev)
	default:
		return fmt.Errorf("no handler for event type %q", ev.Type)
	}
}
