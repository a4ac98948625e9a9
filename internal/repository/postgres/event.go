package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/repository"
)

// RawEventRepo is the append-only store of ingested webhook events. The
// unique index on (tenant_id, idempotency_key) is the deduplication
// mechanism: the insert either lands or reads back as ErrDuplicate.
type RawEventRepo struct{ db *sql.DB }

// NewRawEventRepo creates a Postgres-backed raw-event store.
func NewRawEventRepo(db *sql.DB) *RawEventRepo { return &RawEventRepo{db: db} }

const rawEventCols = `
	id, tenant_id, idempotency_key, event_type,
	external_mailbox_id, external_campaign_id, external_message_id,
	COALESCE(recipient_email,''), payload, COALESCE(event_at, received_at), received_at`

func scanRawEvent(row interface{ Scan(...interface{}) error }) (*domain.RawEvent, error) {
	e := &domain.RawEvent{}
	var payload []byte
	err := row.Scan(
		&e.ID, &e.TenantID, &e.IdempotencyKey, &e.Type,
		&e.ExternalMailboxID, &e.ExternalCampaignID, &e.ExternalMessageID,
		&e.RecipientEmail, &payload, &e.EventAt, &e.ReceivedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan raw event: %w", err)
	}
	e.Payload = json.RawMessage(payload)
	return e, nil
}

// Insert appends a raw event. ErrDuplicate means the idempotency key was
// already recorded for this tenant and no further processing should run.
func (r *RawEventRepo) Insert(ctx context.Context, e *domain.RawEvent) (string, error) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	payload := e.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO raw_events
			(id, tenant_id, idempotency_key, event_type,
			 external_mailbox_id, external_campaign_id, external_message_id,
			 recipient_email, payload, event_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, lower($8), $9, $10)
	`, e.ID, e.TenantID, e.IdempotencyKey, e.Type,
		e.ExternalMailboxID, e.ExternalCampaignID, e.ExternalMessageID,
		e.RecipientEmail, []byte(payload), e.EventAt)
	if isUniqueViolation(err) {
		return "", repository.ErrDuplicate
	}
	if err != nil {
		return "", fmt.Errorf("insert raw event: %w", err)
	}
	return e.ID, nil
}

// GetByID returns a single raw event.
func (r *RawEventRepo) GetByID(ctx context.Context, id string) (*domain.RawEvent, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+rawEventCols+` FROM raw_events WHERE id = $1
	`, id)
	return scanRawEvent(row)
}

// ListOlderThan returns events received before the cutoff, oldest first.
// Used by the retention worker to page through the archive backlog.
func (r *RawEventRepo) ListOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]domain.RawEvent, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+rawEventCols+`
		FROM raw_events
		WHERE received_at < $1
		ORDER BY received_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("list old raw events: %w", err)
	}
	defer rows.Close()

	var out []domain.RawEvent
	for rows.Next() {
		e, err := scanRawEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// DeleteByIDs removes archived events and returns the count removed.
func (r *RawEventRepo) DeleteByIDs(ctx context.Context, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM raw_events WHERE id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return 0, fmt.Errorf("delete raw events: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// TransitionRepo is the append-only audit log of recovery-phase changes.
type TransitionRepo struct{ db *sql.DB }

// NewTransitionRepo creates a Postgres-backed state transition log.
func NewTransitionRepo(db *sql.DB) *TransitionRepo { return &TransitionRepo{db: db} }

// Insert appends an audit record.
func (r *TransitionRepo) Insert(ctx context.Context, t *domain.StateTransition) (string, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO state_transitions
			(id, tenant_id, entity_type, entity_id, from_phase, to_phase, reason, score)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, t.ID, t.TenantID, t.EntityType, t.EntityID, t.FromPhase, t.ToPhase, t.Reason, t.Score)
	if err != nil {
		return "", fmt.Errorf("insert state transition: %w", err)
	}
	return t.ID, nil
}

// ListForEntity returns the newest transitions for one entity.
func (r *TransitionRepo) ListForEntity(ctx context.Context, entityType domain.EntityType, entityID string, limit int) ([]domain.StateTransition, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, tenant_id, entity_type, entity_id, from_phase, to_phase, reason, score, created_at
		FROM state_transitions
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`, entityType, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("list state transitions: %w", err)
	}
	defer rows.Close()

	var out []domain.StateTransition
	for rows.Next() {
		var t domain.StateTransition
		if err := rows.Scan(&t.ID, &t.TenantID, &t.EntityType, &t.EntityID,
			&t.FromPhase, &t.ToPhase, &t.Reason, &t.Score, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan state transition: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeadLetterRepo stores events whose handlers exhausted the retry budget.
type DeadLetterRepo struct{ db *sql.DB }

// NewDeadLetterRepo creates a Postgres-backed dead-letter store.
func NewDeadLetterRepo(db *sql.DB) *DeadLetterRepo { return &DeadLetterRepo{db: db} }

const deadLetterCols = `
	id, COALESCE(tenant_id::text,''), raw_event_id, event_type, payload, attempts,
	COALESCE(last_error,''), failed_at`

func scanDeadLetter(row interface{ Scan(...interface{}) error }) (*domain.DeadLetter, error) {
	d := &domain.DeadLetter{}
	var payload []byte
	err := row.Scan(&d.ID, &d.TenantID, &d.RawEventID, &d.Type, &payload,
		&d.Attempts, &d.LastError, &d.FailedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan dead letter: %w", err)
	}
	d.Payload = json.RawMessage(payload)
	return d, nil
}

// Insert records a terminally-failed event.
func (r *DeadLetterRepo) Insert(ctx context.Context, d *domain.DeadLetter) (string, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	payload := d.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO dead_letters (id, tenant_id, raw_event_id, event_type, payload, attempts, last_error)
		VALUES ($1, NULLIF($2,'')::uuid, $3, $4, $5, $6, $7)
	`, d.ID, d.TenantID, d.RawEventID, d.Type, []byte(payload), d.Attempts, d.LastError)
	if err != nil {
		return "", fmt.Errorf("insert dead letter: %w", err)
	}
	return d.ID, nil
}

// Get returns one dead letter.
func (r *DeadLetterRepo) Get(ctx context.Context, id string) (*domain.DeadLetter, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+deadLetterCols+` FROM dead_letters WHERE id = $1
	`, id)
	return scanDeadLetter(row)
}

// List returns dead letters for a tenant, newest failures first. An empty
// tenantID lists across tenants for operators.
func (r *DeadLetterRepo) List(ctx context.Context, tenantID string, limit, offset int) ([]domain.DeadLetter, error) {
	if limit <= 0 {
		limit = 100
	}
	q := `SELECT ` + deadLetterCols + ` FROM dead_letters`
	args := []interface{}{}
	if tenantID != "" {
		q += ` WHERE tenant_id = $1 ORDER BY failed_at DESC LIMIT $2 OFFSET $3`
		args = append(args, tenantID, limit, offset)
	} else {
		q += ` ORDER BY failed_at DESC LIMIT $1 OFFSET $2`
		args = append(args, limit, offset)
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []domain.DeadLetter
	for rows.Next() {
		d, err := scanDeadLetter(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

// Delete removes a dead letter after a successful replay.
func (r *DeadLetterRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dead letter: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
