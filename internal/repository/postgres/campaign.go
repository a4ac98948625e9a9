package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/repository"
)

// CampaignRepo persists campaign health counters and lead-assignment
// capacity.
type CampaignRepo struct{ db *sql.DB }

// NewCampaignRepo creates a Postgres-backed campaign repository.
func NewCampaignRepo(db *sql.DB) *CampaignRepo { return &CampaignRepo{db: db} }

const campaignCols = `
	id, tenant_id, external_id, name, status, COALESCE(paused_reason,''),
	total_sent, total_bounced, bounce_rate,
	max_active_leads, assigned_count, created_at, updated_at`

func scanCampaign(row interface{ Scan(...interface{}) error }) (*domain.Campaign, error) {
	c := &domain.Campaign{}
	err := row.Scan(
		&c.ID, &c.TenantID, &c.ExternalID, &c.Name, &c.Status, &c.PausedReason,
		&c.TotalSent, &c.TotalBounced, &c.BounceRate,
		&c.MaxActiveLeads, &c.AssignedCount, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan campaign: %w", err)
	}
	return c, nil
}

// Create inserts a campaign and returns its ID.
func (r *CampaignRepo) Create(ctx context.Context, c *domain.Campaign) (string, error) {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaigns (id, tenant_id, external_id, name, status, max_active_leads)
		VALUES ($1, $2, $3, $4, 'active', $5)
	`, c.ID, c.TenantID, c.ExternalID, c.Name, c.MaxActiveLeads)
	if isUniqueViolation(err) {
		return "", repository.ErrDuplicate
	}
	if err != nil {
		return "", fmt.Errorf("create campaign: %w", err)
	}
	return c.ID, nil
}

// GetByID returns a single campaign.
func (r *CampaignRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignCols+` FROM campaigns WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanCampaign(row)
}

// GetByExternalID resolves a campaign by the platform-side campaign id.
func (r *CampaignRepo) GetByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+campaignCols+` FROM campaigns WHERE external_id = $1 AND tenant_id = $2
	`, externalID, tenantID)
	return scanCampaign(row)
}

// RecordBounce increments bounce counters and recomputes the bounce rate in
// the same statement.
func (r *CampaignRepo) RecordBounce(ctx context.Context, tenantID, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE campaigns SET
			total_bounced = total_bounced + 1,
			bounce_rate   = (total_bounced + 1)::float / GREATEST(1, total_sent),
			updated_at    = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+campaignCols, id, tenantID)
	return scanCampaign(row)
}

// RecordSent increments the send counter and recomputes the bounce rate.
func (r *CampaignRepo) RecordSent(ctx context.Context, tenantID, id string) (*domain.Campaign, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE campaigns SET
			total_sent  = total_sent + 1,
			bounce_rate = total_bounced::float / (total_sent + 1),
			updated_at  = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+campaignCols, id, tenantID)
	return scanCampaign(row)
}

// SetStatus updates campaign status and reason.
func (r *CampaignRepo) SetStatus(ctx context.Context, tenantID, id string, status domain.CampaignStatus, reason string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET status = $3, paused_reason = $4, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
	`, id, tenantID, status, reason)
	if err != nil {
		return fmt.Errorf("set campaign status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// MailboxCount returns how many non-deleted mailboxes are assigned to the
// campaign. A campaign with zero mailboxes can never send.
func (r *CampaignRepo) MailboxCount(ctx context.Context, tenantID, campaignID string) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM campaign_mailboxes cm
		JOIN mailboxes m ON m.id = cm.mailbox_id
		WHERE cm.campaign_id = $1 AND cm.tenant_id = $2 AND m.status <> 'deleted'
	`, campaignID, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count campaign mailboxes: %w", err)
	}
	return n, nil
}

// UnassignMailbox removes a mailbox from all local campaign assignments and
// returns how many were removed. The external platform removal is a separate,
// best-effort call.
func (r *CampaignRepo) UnassignMailbox(ctx context.Context, tenantID, mailboxID string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM campaign_mailboxes WHERE tenant_id = $1 AND mailbox_id = $2
	`, tenantID, mailboxID)
	if err != nil {
		return 0, fmt.Errorf("unassign mailbox: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// AssignMailbox links a mailbox to a campaign.
func (r *CampaignRepo) AssignMailbox(ctx context.Context, tenantID, campaignID, mailboxID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO campaign_mailboxes (tenant_id, campaign_id, mailbox_id)
		VALUES ($1, $2, $3)
		ON CONFLICT DO NOTHING
	`, tenantID, campaignID, mailboxID)
	if err != nil {
		return fmt.Errorf("assign mailbox: %w", err)
	}
	return nil
}

// TryReserveLeadSlot performs the atomic capacity check-and-increment for
// lead assignment. The conditional update lets the database serialize racing
// assigns; losing the race reads as ErrAtCapacity and the caller moves on to
// the next routing rule. Status is deliberately not part of the predicate:
// the resolver already judged viability, and a warning-status campaign still
// accepts leads.
func (r *CampaignRepo) TryReserveLeadSlot(ctx context.Context, tenantID, campaignID string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET assigned_count = assigned_count + 1, updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		  AND (max_active_leads <= 0 OR assigned_count < max_active_leads)
	`, campaignID, tenantID)
	if err != nil {
		return fmt.Errorf("reserve lead slot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrAtCapacity
	}
	return nil
}

// ReleaseLeadSlot undoes a reservation when the lead row update fails after
// the slot was taken.
func (r *CampaignRepo) ReleaseLeadSlot(ctx context.Context, tenantID, campaignID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE campaigns SET assigned_count = GREATEST(0, assigned_count - 1), updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
	`, campaignID, tenantID)
	if err != nil {
		return fmt.Errorf("release lead slot: %w", err)
	}
	return nil
}
