package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/repository"
)

// TenantRepo is the thin collaborator surface toward the account system:
// webhook secrets for ingress and trial windows for the expiry worker.
type TenantRepo struct{ db *sql.DB }

// NewTenantRepo creates a Postgres-backed tenant repository.
func NewTenantRepo(db *sql.DB) *TenantRepo { return &TenantRepo{db: db} }

// Get returns one tenant.
func (r *TenantRepo) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	t := &domain.Tenant{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, status, COALESCE(webhook_secret,''), trial_ends_at, created_at
		FROM tenants WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Status, &t.WebhookSecret, &t.TrialEndsAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tenant: %w", err)
	}
	return t, nil
}

// ListExpiredTrials returns active tenants whose trial window closed before
// now.
func (r *TenantRepo) ListExpiredTrials(ctx context.Context, now time.Time) ([]domain.Tenant, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, status, COALESCE(webhook_secret,''), trial_ends_at, created_at
		FROM tenants
		WHERE status = 'active' AND trial_ends_at IS NOT NULL AND trial_ends_at < $1
	`, now)
	if err != nil {
		return nil, fmt.Errorf("list expired trials: %w", err)
	}
	defer rows.Close()

	var out []domain.Tenant
	for rows.Next() {
		var t domain.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Status, &t.WebhookSecret, &t.TrialEndsAt, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// Pause marks a tenant paused; paused only if still active so overlapping
// worker runs stay idempotent.
func (r *TenantRepo) Pause(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE tenants SET status = 'paused' WHERE id = $1 AND status = 'active'
	`, id)
	if err != nil {
		return false, fmt.Errorf("pause tenant: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}
