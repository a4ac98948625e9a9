package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/repository"
)

// LeadRepo persists leads. Health downgrades are unconditional (event-driven
// triggers only); upgrades go through the rank-guarded UpgradeHealth so the
// periodic worker can never write a worse result back.
type LeadRepo struct{ db *sql.DB }

// NewLeadRepo creates a Postgres-backed lead repository.
func NewLeadRepo(db *sql.DB) *LeadRepo { return &LeadRepo{db: db} }

const leadCols = `
	id, tenant_id, email, COALESCE(persona,''), COALESCE(source,''),
	lead_score, health_score, status, health_classification,
	COALESCE(health_checks,'{}'), COALESCE(block_reason,''),
	assigned_campaign_id, last_evaluated_at, created_at, updated_at`

func scanLead(row interface{ Scan(...interface{}) error }) (*domain.Lead, error) {
	l := &domain.Lead{}
	var checks []byte
	err := row.Scan(
		&l.ID, &l.TenantID, &l.Email, &l.Persona, &l.Source,
		&l.LeadScore, &l.HealthScore, &l.Status, &l.HealthClassification,
		&checks, &l.BlockReason,
		&l.AssignedCampaignID, &l.LastEvaluatedAt, &l.CreatedAt, &l.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan lead: %w", err)
	}
	l.HealthChecks = json.RawMessage(checks)
	return l, nil
}

// Create inserts a new lead. Emails are unique per tenant; a second ingest of
// the same address surfaces as ErrDuplicate.
func (r *LeadRepo) Create(ctx context.Context, l *domain.Lead) (string, error) {
	if l.ID == "" {
		l.ID = uuid.New().String()
	}
	checks := l.HealthChecks
	if checks == nil {
		checks = json.RawMessage(`{}`)
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO leads
			(id, tenant_id, email, persona, source, lead_score,
			 health_score, status, health_classification, health_checks, block_reason)
		VALUES ($1, $2, lower($3), $4, $5, $6, $7, $8, $9, $10, $11)
	`, l.ID, l.TenantID, l.Email, l.Persona, l.Source, l.LeadScore,
		l.HealthScore, l.Status, l.HealthClassification, []byte(checks), l.BlockReason)
	if isUniqueViolation(err) {
		return "", repository.ErrDuplicate
	}
	if err != nil {
		return "", fmt.Errorf("create lead: %w", err)
	}
	return l.ID, nil
}

// GetByEmail returns the tenant's lead for an address.
func (r *LeadRepo) GetByEmail(ctx context.Context, tenantID, email string) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+leadCols+` FROM leads WHERE tenant_id = $1 AND email = lower($2)
	`, tenantID, email)
	return scanLead(row)
}

// GetByID returns a single lead.
func (r *LeadRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Lead, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+leadCols+` FROM leads WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	return scanLead(row)
}

// UpgradeHealth writes a re-evaluation result only if it outranks the stored
// classification. The rank comparison lives in the WHERE clause so a stale
// read can never downgrade a lead.
func (r *LeadRepo) UpgradeHealth(ctx context.Context, tenantID, id string, c domain.HealthClassification, score int, checks json.RawMessage) (bool, error) {
	if checks == nil {
		checks = json.RawMessage(`{}`)
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET
			health_classification = $3,
			health_score          = $4,
			health_checks         = $5,
			status = CASE WHEN status = 'blocked' AND $3 <> 'red' THEN 'held' ELSE status END,
			last_evaluated_at     = NOW(),
			updated_at            = NOW()
		WHERE tenant_id = $1 AND id = $2
		  AND (CASE health_classification
				WHEN 'red' THEN 1 WHEN 'yellow' THEN 2 WHEN 'green' THEN 3 ELSE 0 END)
		    < (CASE $3::text
				WHEN 'red' THEN 1 WHEN 'yellow' THEN 2 WHEN 'green' THEN 3 ELSE 0 END)
	`, tenantID, id, c, score, []byte(checks))
	if err != nil {
		return false, fmt.Errorf("upgrade lead health: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// Downgrade applies an event-driven negative reclassification (bounce, spam,
// unsubscribe) together with the matching status.
func (r *LeadRepo) Downgrade(ctx context.Context, tenantID, id string, status domain.LeadStatus, c domain.HealthClassification, score int, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET
			status                = $3,
			health_classification = $4,
			health_score          = $5,
			block_reason          = $6,
			updated_at            = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, status, c, score, reason)
	if err != nil {
		return fmt.Errorf("downgrade lead: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// AssignCampaign activates a lead into a campaign.
func (r *LeadRepo) AssignCampaign(ctx context.Context, tenantID, id, campaignID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE leads SET
			assigned_campaign_id = $3,
			status               = 'active',
			updated_at           = NOW()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, id, campaignID)
	if err != nil {
		return fmt.Errorf("assign lead campaign: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MarkEvaluated stamps a lead whose re-evaluation produced no upgrade, so the
// worker doesn't revisit it every cycle.
func (r *LeadRepo) MarkEvaluated(ctx context.Context, tenantID, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE leads SET last_evaluated_at = NOW() WHERE tenant_id = $1 AND id = $2
	`, tenantID, id)
	if err != nil {
		return fmt.Errorf("mark lead evaluated: %w", err)
	}
	return nil
}

// ListForReevaluation returns gated (yellow/red) leads whose last evaluation
// is older than the cutoff. Blocked leads are excluded; they only come back
// via an explicit upgrade path.
func (r *LeadRepo) ListForReevaluation(ctx context.Context, evaluatedBefore time.Time, limit int) ([]domain.Lead, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+leadCols+`
		FROM leads
		WHERE health_classification IN ('yellow', 'red')
		  AND status IN ('held', 'paused')
		  AND (last_evaluated_at IS NULL OR last_evaluated_at < $1)
		ORDER BY last_evaluated_at ASC NULLS FIRST
		LIMIT $2
	`, evaluatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list leads for reevaluation: %w", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	return out, rows.Err()
}
