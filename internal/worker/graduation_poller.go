package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
	"github.com/ignite/deliverability-engine/internal/recovery"
	"github.com/ignite/deliverability-engine/internal/warmup"
)

// GradMailboxStore lists mailboxes currently under supervised recovery.
type GradMailboxStore interface {
	ListInPhases(ctx context.Context, phases []domain.RecoveryPhase, limit int) ([]domain.Mailbox, error)
}

// GradDomainStore lists domains currently under supervised recovery.
type GradDomainStore interface {
	ListInPhases(ctx context.Context, phases []domain.RecoveryPhase, limit int) ([]domain.SendingDomain, error)
}

// Advancer moves an entity to the next phase.
type Advancer interface {
	Advance(ctx context.Context, entityType domain.EntityType, entityID, tenantID string, current domain.RecoveryPhase, reason string, currentScore int) error
}

// Evaluator checks graduation criteria for a supervised mailbox.
type Evaluator interface {
	Evaluate(mb *domain.Mailbox, now time.Time) warmup.Evaluation
}

// GraduationPoller walks every entity in restricted_send or warm_recovery
// and advances the ones whose criteria are met. Criteria are polled, never
// push-driven, so a missed pass just waits for the next tick.
type GraduationPoller struct {
	mailboxes GradMailboxStore
	domains   GradDomainStore
	machine   Advancer
	evaluator Evaluator
	recCfg    config.RecoveryConfig
	batch     int
}

var supervisedPhases = []domain.RecoveryPhase{domain.PhaseRestrictedSend, domain.PhaseWarmRecovery}

func NewGraduationPoller(mailboxes GradMailboxStore, domains GradDomainStore, machine Advancer, evaluator Evaluator, recCfg config.RecoveryConfig, batch int) *GraduationPoller {
	if batch <= 0 {
		batch = 500
	}
	return &GraduationPoller{
		mailboxes: mailboxes,
		domains:   domains,
		machine:   machine,
		evaluator: evaluator,
		recCfg:    recCfg,
		batch:     batch,
	}
}

// Run is one graduation pass over mailboxes and domains.
func (w *GraduationPoller) Run(ctx context.Context) error {
	now := time.Now().UTC()

	mailboxes, err := w.mailboxes.ListInPhases(ctx, supervisedPhases, w.batch)
	if err != nil {
		return fmt.Errorf("list supervised mailboxes: %w", err)
	}
	graduated := 0
	for i := range mailboxes {
		mb := &mailboxes[i]
		ev := w.evaluator.Evaluate(mb, now)
		if !ev.Ready {
			logger.Debug("mailbox not ready to graduate", "mailbox_id", mb.ID, "phase", string(mb.RecoveryPhase), "reason", ev.Reason)
			continue
		}
		reason := fmt.Sprintf("graduation criteria met: %s", ev.Reason)
		if err := w.machine.Advance(ctx, domain.EntityMailbox, mb.ID, mb.TenantID, mb.RecoveryPhase, reason, mb.ResilienceScore); err != nil {
			logger.Warn("mailbox graduation failed", "mailbox_id", mb.ID, "error", err)
			continue
		}
		graduated++
	}

	domains, err := w.domains.ListInPhases(ctx, supervisedPhases, w.batch)
	if err != nil {
		return fmt.Errorf("list supervised domains: %w", err)
	}
	for i := range domains {
		d := &domains[i]
		ev := w.evaluateDomain(d, now)
		if !ev.Ready {
			logger.Debug("domain not ready to graduate", "domain_id", d.ID, "phase", string(d.RecoveryPhase), "reason", ev.Reason)
			continue
		}
		reason := fmt.Sprintf("graduation criteria met: %s", ev.Reason)
		if err := w.machine.Advance(ctx, domain.EntityDomain, d.ID, d.TenantID, d.RecoveryPhase, reason, d.ResilienceScore); err != nil {
			logger.Warn("domain graduation failed", "domain_id", d.ID, "error", err)
			continue
		}
		graduated++
	}

	if graduated > 0 {
		logger.Info("graduation pass complete", "graduated", graduated, "mailboxes_examined", len(mailboxes), "domains_examined", len(domains))
	}
	return nil
}

// evaluateDomain applies the mailbox criteria to a domain's phase counters.
func (w *GraduationPoller) evaluateDomain(d *domain.SendingDomain, now time.Time) warmup.Evaluation {
	target, ok := recovery.TargetFor(d.RecoveryPhase, d.ConsecutivePauses, w.recCfg)
	if !ok {
		return warmup.Evaluation{Reason: fmt.Sprintf("phase %s has no graduation criteria", d.RecoveryPhase)}
	}
	if d.PhaseBounces > 0 {
		return warmup.Evaluation{Reason: fmt.Sprintf("%d bounces recorded in phase", d.PhaseBounces)}
	}
	if d.PhaseCleanSends < target.CleanSends {
		return warmup.Evaluation{Reason: fmt.Sprintf("clean sends %d/%d", d.PhaseCleanSends, target.CleanSends)}
	}
	if target.MinDays > 0 {
		if d.PhaseEnteredAt == nil {
			return warmup.Evaluation{Reason: "phase entry time unknown"}
		}
		if days := int(now.Sub(*d.PhaseEnteredAt).Hours() / 24); days < target.MinDays {
			return warmup.Evaluation{Reason: fmt.Sprintf("in phase %d/%d days", days, target.MinDays)}
		}
	}
	return warmup.Evaluation{Ready: true, Reason: "criteria met"}
}
