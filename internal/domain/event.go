package domain

import (
	"encoding/json"
	"time"
)

// EventType enumerates the delivery-event kinds the engine handles.
type EventType string

const (
	EventBounce      EventType = "bounce"
	EventSent        EventType = "sent"
	EventOpen        EventType = "open"
	EventClick       EventType = "click"
	EventReply       EventType = "reply"
	EventUnsubscribe EventType = "unsubscribe"
	EventSpam        EventType = "spam"
)

// KnownEventType reports whether t maps to a registered handler.
func KnownEventType(t EventType) bool {
	switch t {
	case EventBounce, EventSent, EventOpen, EventClick, EventReply,
		EventUnsubscribe, EventSpam:
		return true
	}
	return false
}

// RawEvent is the immutable append-only record of an ingested webhook,
// keyed by an idempotency key unique per tenant. Used for deduplication
// and replay.
type RawEvent struct {
	ID             string    `json:"id" db:"id"`
	TenantID       string    `json:"tenant_id" db:"tenant_id"`
	IdempotencyKey string    `json:"idempotency_key" db:"idempotency_key"`
	Type           EventType `json:"type" db:"event_type"`

	ExternalMailboxID  string `json:"external_mailbox_id" db:"external_mailbox_id"`
	ExternalCampaignID string `json:"external_campaign_id" db:"external_campaign_id"`
	ExternalMessageID  string `json:"external_message_id" db:"external_message_id"`
	RecipientEmail     string `json:"recipient_email" db:"recipient_email"`

	Payload    json.RawMessage `json:"payload" db:"payload"`
	EventAt    time.Time       `json:"event_at" db:"event_at"`
	ReceivedAt time.Time       `json:"received_at" db:"received_at"`
}

// StateTransition is the immutable audit record of a recovery-phase change.
type StateTransition struct {
	ID         string        `json:"id" db:"id"`
	TenantID   string        `json:"tenant_id" db:"tenant_id"`
	EntityType EntityType    `json:"entity_type" db:"entity_type"`
	EntityID   string        `json:"entity_id" db:"entity_id"`
	FromPhase  RecoveryPhase `json:"from_phase" db:"from_phase"`
	ToPhase    RecoveryPhase `json:"to_phase" db:"to_phase"`
	Reason     string        `json:"reason" db:"reason"`
	Score      int           `json:"score" db:"score"`
	CreatedAt  time.Time     `json:"created_at" db:"created_at"`
}

// DeadLetter captures an event whose handler exhausted the retry budget.
// Dead letters are inspectable and replayable by an operator.
type DeadLetter struct {
	ID         string          `json:"id" db:"id"`
	TenantID   string          `json:"tenant_id" db:"tenant_id"`
	RawEventID string          `json:"raw_event_id" db:"raw_event_id"`
	Type       EventType       `json:"type" db:"event_type"`
	Payload    json.RawMessage `json:"payload" db:"payload"`
	Attempts   int             `json:"attempts" db:"attempts"`
	LastError  string          `json:"last_error" db:"last_error"`
	FailedAt   time.Time       `json:"failed_at" db:"failed_at"`
}
