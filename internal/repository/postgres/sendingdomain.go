package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/repository"
)

// DomainRepo persists sending domains. Domains carry the same recovery-phase
// shape as mailboxes, aggregated from their mailboxes' events.
type DomainRepo struct{ db *sql.DB }

// NewDomainRepo creates a Postgres-backed sending-domain repository.
func NewDomainRepo(db *sql.DB) *DomainRepo { return &DomainRepo{db: db} }

const domainCols = `
	id, tenant_id, name,
	status, recovery_phase, resilience_score, consecutive_pauses,
	relapse_count, cooldown_until, COALESCE(healing_origin,''),
	hard_bounce_count, window_bounce_count, window_sent_count, total_sent_count,
	phase_entered_at, phase_clean_sends, phase_bounces,
	created_at, updated_at`

func scanDomain(row interface{ Scan(...interface{}) error }) (*domain.SendingDomain, error) {
	d := &domain.SendingDomain{}
	err := row.Scan(
		&d.ID, &d.TenantID, &d.Name,
		&d.Status, &d.RecoveryPhase, &d.ResilienceScore, &d.ConsecutivePauses,
		&d.RelapseCount, &d.CooldownUntil, &d.HealingOrigin,
		&d.HardBounceCount, &d.WindowBounceCount, &d.WindowSentCount, &d.TotalSentCount,
		&d.PhaseEnteredAt, &d.PhaseCleanSends, &d.PhaseBounces,
		&d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan domain: %w", err)
	}
	return d, nil
}

// Create inserts a sending domain in healthy state and returns its ID.
func (r *DomainRepo) Create(ctx context.Context, d *domain.SendingDomain) (string, error) {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO sending_domains (id, tenant_id, name, status, recovery_phase, resilience_score)
		VALUES ($1, $2, $3, 'active', 'healthy', 100)
	`, d.ID, d.TenantID, d.Name)
	if isUniqueViolation(err) {
		return "", repository.ErrDuplicate
	}
	if err != nil {
		return "", fmt.Errorf("create domain: %w", err)
	}
	return d.ID, nil
}

// GetByID returns a single sending domain.
func (r *DomainRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.SendingDomain, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+domainCols+`
		FROM sending_domains WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanDomain(row)
}

// RecordBounce increments the domain's bounce counters and returns the
// updated row.
func (r *DomainRepo) RecordBounce(ctx context.Context, tenantID, id string) (*domain.SendingDomain, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE sending_domains SET
			hard_bounce_count   = hard_bounce_count + 1,
			window_bounce_count = window_bounce_count + 1,
			phase_bounces = CASE
				WHEN recovery_phase IN ('restricted_send', 'warm_recovery')
				THEN phase_bounces + 1 ELSE phase_bounces END,
			updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+domainCols, id, tenantID)
	return scanDomain(row)
}

// RecordSent increments the domain's send counters and returns the updated row.
func (r *DomainRepo) RecordSent(ctx context.Context, tenantID, id string) (*domain.SendingDomain, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE sending_domains SET
			total_sent_count  = total_sent_count + 1,
			window_sent_count = window_sent_count + 1,
			phase_clean_sends = CASE
				WHEN recovery_phase IN ('restricted_send', 'warm_recovery')
				THEN phase_clean_sends + 1 ELSE phase_clean_sends END,
			updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+domainCols, id, tenantID)
	return scanDomain(row)
}

// AutoPause quarantines a domain; same winner-takes-it semantics as the
// mailbox variant.
func (r *DomainRepo) AutoPause(ctx context.Context, tenantID, id, origin string, cooldownUntil time.Time, penalty int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sending_domains SET
			status             = 'paused',
			recovery_phase     = 'paused',
			consecutive_pauses = consecutive_pauses + 1,
			resilience_score   = GREATEST(0, resilience_score - $3),
			cooldown_until     = $4,
			healing_origin     = $5,
			phase_entered_at   = NOW(),
			phase_clean_sends  = 0,
			phase_bounces      = 0,
			updated_at         = NOW()
		WHERE id = $1 AND tenant_id = $2 AND status <> 'paused'
	`, id, tenantID, penalty, cooldownUntil, origin)
	if err != nil {
		return false, fmt.Errorf("auto-pause domain: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// TransitionPhase mirrors MailboxRepo.TransitionPhase for domains.
func (r *DomainRepo) TransitionPhase(ctx context.Context, tenantID, id string, from, to domain.RecoveryPhase, scoreDelta int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sending_domains SET
			recovery_phase    = $4,
			phase_entered_at  = CASE WHEN $4 = 'healthy' THEN NULL ELSE NOW() END,
			phase_clean_sends = 0,
			phase_bounces     = 0,
			resilience_score  = LEAST(100, GREATEST(0, resilience_score + $5)),
			relapse_count = CASE
				WHEN $4 = 'paused' AND recovery_phase IN ('restricted_send', 'warm_recovery')
				THEN relapse_count + 1 ELSE relapse_count END,
			consecutive_pauses = CASE
				WHEN $4 = 'paused' AND recovery_phase IN ('restricted_send', 'warm_recovery')
				THEN consecutive_pauses + 1 ELSE consecutive_pauses END,
			status = CASE
				WHEN $4 = 'healthy' THEN 'active'
				WHEN $4 = 'paused' THEN 'paused'
				ELSE status END,
			cooldown_until = CASE WHEN $4 = 'healthy' THEN NULL ELSE cooldown_until END,
			healing_origin = CASE WHEN $4 = 'healthy' THEN '' ELSE healing_origin END,
			updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2 AND recovery_phase = $3
	`, id, tenantID, string(from), string(to), scoreDelta)
	if err != nil {
		return false, fmt.Errorf("transition domain phase: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListInPhases returns domains sitting in any of the given phases.
func (r *DomainRepo) ListInPhases(ctx context.Context, phases []domain.RecoveryPhase, limit int) ([]domain.SendingDomain, error) {
	if limit <= 0 {
		limit = 500
	}
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = string(p)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+domainCols+`
		FROM sending_domains
		WHERE recovery_phase = ANY($1) AND status <> 'deleted'
		ORDER BY phase_entered_at ASC NULLS LAST
		LIMIT $2
	`, pq.Array(names), limit)
	if err != nil {
		return nil, fmt.Errorf("list domains in phases: %w", err)
	}
	defer rows.Close()

	var out []domain.SendingDomain
	for rows.Next() {
		d, err := scanDomain(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}
