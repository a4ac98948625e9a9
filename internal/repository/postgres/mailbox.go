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

// MailboxRepo persists mailboxes and applies their counter and phase updates
// as single atomic statements.
type MailboxRepo struct{ db *sql.DB }

// NewMailboxRepo creates a Postgres-backed mailbox repository.
func NewMailboxRepo(db *sql.DB) *MailboxRepo { return &MailboxRepo{db: db} }

const mailboxCols = `
	id, tenant_id, COALESCE(domain_id::text,''), email, external_id, platform,
	status, recovery_phase, resilience_score, consecutive_pauses,
	relapse_count, cooldown_until, COALESCE(healing_origin,''),
	hard_bounce_count, window_bounce_count, window_sent_count, total_sent_count,
	phase_entered_at, phase_clean_sends, phase_bounces,
	created_at, updated_at`

func scanMailbox(row interface{ Scan(...interface{}) error }) (*domain.Mailbox, error) {
	m := &domain.Mailbox{}
	err := row.Scan(
		&m.ID, &m.TenantID, &m.DomainID, &m.Email, &m.ExternalID, &m.Platform,
		&m.Status, &m.RecoveryPhase, &m.ResilienceScore, &m.ConsecutivePauses,
		&m.RelapseCount, &m.CooldownUntil, &m.HealingOrigin,
		&m.HardBounceCount, &m.WindowBounceCount, &m.WindowSentCount, &m.TotalSentCount,
		&m.PhaseEnteredAt, &m.PhaseCleanSends, &m.PhaseBounces,
		&m.CreatedAt, &m.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan mailbox: %w", err)
	}
	return m, nil
}

// Create inserts a mailbox in healthy state and returns its ID.
func (r *MailboxRepo) Create(ctx context.Context, m *domain.Mailbox) (string, error) {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO mailboxes
			(id, tenant_id, domain_id, email, external_id, platform,
			 status, recovery_phase, resilience_score)
		VALUES ($1, $2, NULLIF($3,'')::uuid, $4, $5, $6, 'active', 'healthy', 100)
	`, m.ID, m.TenantID, m.DomainID, m.Email, m.ExternalID, m.Platform)
	if isUniqueViolation(err) {
		return "", repository.ErrDuplicate
	}
	if err != nil {
		return "", fmt.Errorf("create mailbox: %w", err)
	}
	return m.ID, nil
}

// GetByID returns a single mailbox.
func (r *MailboxRepo) GetByID(ctx context.Context, tenantID, id string) (*domain.Mailbox, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+mailboxCols+`
		FROM mailboxes WHERE id = $1 AND tenant_id = $2
	`, id, tenantID)
	return scanMailbox(row)
}

// GetByExternalID resolves a mailbox by the platform-side account id.
func (r *MailboxRepo) GetByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Mailbox, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+mailboxCols+`
		FROM mailboxes WHERE external_id = $1 AND tenant_id = $2
	`, externalID, tenantID)
	return scanMailbox(row)
}

// GetByEmail resolves a mailbox by its sending address.
func (r *MailboxRepo) GetByEmail(ctx context.Context, tenantID, email string) (*domain.Mailbox, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+mailboxCols+`
		FROM mailboxes WHERE lower(email) = lower($1) AND tenant_id = $2
	`, email, tenantID)
	return scanMailbox(row)
}

// RecordBounce atomically increments bounce counters and returns the updated
// row. Phase bounces only move while the mailbox is in a supervised phase.
func (r *MailboxRepo) RecordBounce(ctx context.Context, tenantID, id string) (*domain.Mailbox, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE mailboxes SET
			hard_bounce_count   = hard_bounce_count + 1,
			window_bounce_count = window_bounce_count + 1,
			phase_bounces = CASE
				WHEN recovery_phase IN ('restricted_send', 'warm_recovery')
				THEN phase_bounces + 1 ELSE phase_bounces END,
			updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+mailboxCols, id, tenantID)
	return scanMailbox(row)
}

// RecordSent atomically increments send counters and returns the updated row.
// Clean sends inside a supervised phase advance the graduation counter.
func (r *MailboxRepo) RecordSent(ctx context.Context, tenantID, id string) (*domain.Mailbox, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE mailboxes SET
			total_sent_count  = total_sent_count + 1,
			window_sent_count = window_sent_count + 1,
			phase_clean_sends = CASE
				WHEN recovery_phase IN ('restricted_send', 'warm_recovery')
				THEN phase_clean_sends + 1 ELSE phase_clean_sends END,
			updated_at = NOW()
		WHERE id = $1 AND tenant_id = $2
		RETURNING `+mailboxCols, id, tenantID)
	return scanMailbox(row)
}

// AutoPause quarantines a mailbox that breached the bounce threshold. The
// WHERE clause makes it a no-op if another request already paused it; the
// boolean reports whether this caller won.
func (r *MailboxRepo) AutoPause(ctx context.Context, tenantID, id, origin string, cooldownUntil time.Time, penalty int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mailboxes SET
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
		return false, fmt.Errorf("auto-pause mailbox: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// TransitionPhase applies a recovery-phase change conditioned on the caller's
// asserted current phase; zero rows affected means the assertion was stale.
// Phase-tracking counters reset, resilience moves by scoreDelta (clamped),
// a regression from a supervised phase into paused increments relapse_count,
// and graduation to healthy reactivates the mailbox and clears the cooldown.
func (r *MailboxRepo) TransitionPhase(ctx context.Context, tenantID, id string, from, to domain.RecoveryPhase, scoreDelta int) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE mailboxes SET
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
		return false, fmt.Errorf("transition mailbox phase: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ListInPhases returns mailboxes currently sitting in any of the given
// phases, across tenants, oldest phase entry first. Used by the graduation
// poller.
func (r *MailboxRepo) ListInPhases(ctx context.Context, phases []domain.RecoveryPhase, limit int) ([]domain.Mailbox, error) {
	if limit <= 0 {
		limit = 500
	}
	names := make([]string, len(phases))
	for i, p := range phases {
		names[i] = string(p)
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+mailboxCols+`
		FROM mailboxes
		WHERE recovery_phase = ANY($1) AND status <> 'deleted'
		ORDER BY phase_entered_at ASC NULLS LAST
		LIMIT $2
	`, pq.Array(names), limit)
	if err != nil {
		return nil, fmt.Errorf("list mailboxes in phases: %w", err)
	}
	defer rows.Close()

	var out []domain.Mailbox
	for rows.Next() {
		m, err := scanMailbox(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}
