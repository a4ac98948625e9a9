// Package ingress accepts platform webhook deliveries: it verifies
// signatures, normalizes payloads across platform dialects, deduplicates
// through idempotency keys, and hands accepted events to the dispatch queue.
// Persistence happens before enqueue so an accepted event is never lost.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
	"github.com/ignite/deliverability-engine/internal/repository"
)

// ErrBadSignature rejects a delivery whose signature does not verify. This
// is the only condition the webhook endpoint answers with a non-200.
var ErrBadSignature = errors.New("ingress: webhook signature verification failed")

// TenantStore resolves tenants for signature secrets.
type TenantStore interface {
	Get(ctx context.Context, id string) (*domain.Tenant, error)
}

// EventStore persists raw events. Insert returns repository.ErrDuplicate when
// the idempotency key already exists for the tenant.
type EventStore interface {
	Insert(ctx context.Context, e *domain.RawEvent) (string, error)
}

// Dispatcher hands a persisted event to asynchronous processing. Queued
// reports whether the event went to the queue or was processed inline.
type Dispatcher interface {
	Dispatch(ctx context.Context, eventID string) (queued bool, err error)
}

// DeliveryResult summarizes one webhook delivery for the ack response.
type DeliveryResult struct {
	Accepted   int  `json:"accepted"`
	Duplicates int  `json:"duplicates"`
	Ignored    int  `json:"ignored"` // unknown event types
	Queued     bool `json:"queued"`  // false when processed inline
}

// Service is the webhook ingress pipeline.
type Service struct {
	tenants    TenantStore
	events     EventStore
	dispatcher Dispatcher
	production bool
}

func NewService(tenants TenantStore, events EventStore, dispatcher Dispatcher, production bool) *Service {
	return &Service{tenants: tenants, events: events, dispatcher: dispatcher, production: production}
}

// Accept processes one webhook delivery for a tenant. Signature policy: a
// tenant with a configured secret always requires a valid signature; a
// tenant without one is rejected in production and accepted with a warning
// elsewhere. Past the signature gate, every outcome acks so platforms do
// not retry what they already delivered.
func (s *Service) Accept(ctx context.Context, tenantID string, body []byte, signature string) (*DeliveryResult, error) {
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrBadSignature
		}
		return nil, fmt.Errorf("resolve tenant: %w", err)
	}

	if tenant.WebhookSecret != "" {
		if !VerifySignature(tenant.WebhookSecret, body, signature) {
			return nil, ErrBadSignature
		}
	} else if s.production {
		return nil, ErrBadSignature
	} else {
		logger.Warn("accepting unsigned webhook, tenant has no secret configured", "tenant_id", tenantID)
	}

	parsed, err := ParseBody(body)
	if err != nil {
		// Malformed past the signature gate still acks; there is nothing
		// a platform retry would fix.
		logger.Warn("discarding malformed webhook body", "tenant_id", tenantID, "error", err)
		return &DeliveryResult{Ignored: 1}, nil
	}

	now := time.Now().UTC()
	result := &DeliveryResult{Queued: true}
	for _, ev := range parsed {
		if ev.Type == "" || !domain.KnownEventType(ev.Type) {
			logger.Debug("ignoring unknown event type", "tenant_id", tenantID, "raw_type", ev.RawType)
			result.Ignored++
			continue
		}

		record := &domain.RawEvent{
			TenantID:           tenantID,
			IdempotencyKey:     IdempotencyKey(tenantID, ev, now),
			Type:               ev.Type,
			ExternalMailboxID:  ev.ExternalMailboxID,
			ExternalCampaignID: ev.ExternalCampaign,
			ExternalMessageID:  ev.ExternalMessageID,
			RecipientEmail:     ev.RecipientEmail,
			Payload:            ev.Payload,
			EventAt:            ev.EventAt,
			ReceivedAt:         now,
		}
		id, err := s.events.Insert(ctx, record)
		if err != nil {
			if errors.Is(err, repository.ErrDuplicate) {
				result.Duplicates++
				continue
			}
			return nil, fmt.Errorf("persist event: %w", err)
		}

		queued, err := s.dispatcher.Dispatch(ctx, id)
		if err != nil {
			// The event is durable; the dispatch worker or a replay will
			// pick it up. Still an ack.
			logger.Error("event dispatch failed after persist", "event_id", id, "error", err)
		}
		if !queued {
			result.Queued = false
		}
		result.Accepted++
	}
	return result, nil
}
