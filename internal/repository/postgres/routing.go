package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/repository"
)

// RoutingRuleRepo persists routing rules. This is collaborator-surface CRUD;
// evaluation order (priority descending) is fixed in the list query.
type RoutingRuleRepo struct{ db *sql.DB }

// NewRoutingRuleRepo creates a Postgres-backed routing rule repository.
func NewRoutingRuleRepo(db *sql.DB) *RoutingRuleRepo { return &RoutingRuleRepo{db: db} }

const routingRuleCols = `
	id, tenant_id, persona, min_score, target_campaign_id, priority, created_at, updated_at`

func scanRoutingRule(row interface{ Scan(...interface{}) error }) (*domain.RoutingRule, error) {
	rr := &domain.RoutingRule{}
	err := row.Scan(&rr.ID, &rr.TenantID, &rr.Persona, &rr.MinScore,
		&rr.TargetCampaignID, &rr.Priority, &rr.CreatedAt, &rr.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan routing rule: %w", err)
	}
	return rr, nil
}

// Create inserts a routing rule and returns its ID.
func (r *RoutingRuleRepo) Create(ctx context.Context, rr *domain.RoutingRule) (string, error) {
	if rr.ID == "" {
		rr.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO routing_rules (id, tenant_id, persona, min_score, target_campaign_id, priority)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, rr.ID, rr.TenantID, rr.Persona, rr.MinScore, rr.TargetCampaignID, rr.Priority)
	if err != nil {
		return "", fmt.Errorf("create routing rule: %w", err)
	}
	return rr.ID, nil
}

// Get returns a single rule.
func (r *RoutingRuleRepo) Get(ctx context.Context, tenantID, id string) (*domain.RoutingRule, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+routingRuleCols+` FROM routing_rules WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanRoutingRule(row)
}

// Update replaces a rule's mutable fields.
func (r *RoutingRuleRepo) Update(ctx context.Context, rr *domain.RoutingRule) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE routing_rules SET
			persona = $3, min_score = $4, target_campaign_id = $5, priority = $6,
			updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
	`, rr.ID, rr.TenantID, rr.Persona, rr.MinScore, rr.TargetCampaignID, rr.Priority)
	if err != nil {
		return fmt.Errorf("update routing rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes a rule.
func (r *RoutingRuleRepo) Delete(ctx context.Context, tenantID, id string) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM routing_rules WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	if err != nil {
		return fmt.Errorf("delete routing rule: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByTenant returns the tenant's rules in evaluation order: priority
// descending, newest first on ties.
func (r *RoutingRuleRepo) ListByTenant(ctx context.Context, tenantID string) ([]domain.RoutingRule, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+routingRuleCols+`
		FROM routing_rules
		WHERE tenant_id = $1
		ORDER BY priority DESC, created_at DESC
	`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list routing rules: %w", err)
	}
	defer rows.Close()

	var out []domain.RoutingRule
	for rows.Next() {
		rr, err := scanRoutingRule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rr)
	}
	return out, rows.Err()
}
