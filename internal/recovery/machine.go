// Package recovery owns the lifecycle of quarantined mailboxes and domains:
// healthy → paused → restricted_send → warm_recovery → healthy, with
// regression back to paused on any bounce or spam complaint during recovery.
package recovery

import (
	"context"
	"errors"
	"fmt"

	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
)

// Sentinel errors for the state machine.
var (
	ErrStalePhase        = errors.New("stored phase does not match asserted phase")
	ErrIllegalTransition = errors.New("illegal phase transition")
	ErrUnknownEntity     = errors.New("unknown entity type")
)

// MailboxStore is the slice of the mailbox repository the machine needs.
type MailboxStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Mailbox, error)
	TransitionPhase(ctx context.Context, tenantID, id string, from, to domain.RecoveryPhase, scoreDelta int) (bool, error)
}

// DomainStore is the slice of the domain repository the machine needs.
type DomainStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.SendingDomain, error)
	TransitionPhase(ctx context.Context, tenantID, id string, from, to domain.RecoveryPhase, scoreDelta int) (bool, error)
}

// TransitionLog records the immutable audit trail.
type TransitionLog interface {
	Insert(ctx context.Context, t *domain.StateTransition) (string, error)
}

// WarmupConfigurer is invoked when an entity enters a supervised sending
// phase. The machine logs a returned failure and keeps the transition; it
// never rolls a committed phase change back over a warmup failure.
type WarmupConfigurer interface {
	Configure(ctx context.Context, entityType domain.EntityType, tenantID, entityID string, phase domain.RecoveryPhase) error
}

// Notifier receives user-visible recovery events. Delivery (chat-ops, email)
// lives outside this engine.
type Notifier interface {
	PhaseChanged(t domain.StateTransition)
	RecoveryFailed(t domain.StateTransition)
}

// Machine is the recovery state machine. All phase mutations in the system
// flow through TransitionPhase so every change is guarded, audited, and
// visible.
type Machine struct {
	mailboxes MailboxStore
	domains   DomainStore
	log       TransitionLog
	warmup    WarmupConfigurer
	notifier  Notifier
	cfg       config.RecoveryConfig
}

// NewMachine wires the state machine. notifier may be nil; it defaults to a
// log-only notifier.
func NewMachine(mailboxes MailboxStore, domains DomainStore, log TransitionLog, warmup WarmupConfigurer, notifier Notifier, cfg config.RecoveryConfig) *Machine {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Machine{
		mailboxes: mailboxes,
		domains:   domains,
		log:       log,
		warmup:    warmup,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// scoreDelta maps a transition to its resilience adjustment: regressions
// cost, graduations to healthy reward, intermediate advances are neutral.
func (m *Machine) scoreDelta(to domain.RecoveryPhase) int {
	switch to {
	case domain.PhasePaused:
		return -m.cfg.RelapsePenalty
	case domain.PhaseHealthy:
		return m.cfg.GraduationReward
	}
	return 0
}

// TransitionPhase validates the caller's asserted fromPhase against stored
// state, applies the change atomically, writes the audit record, and
// configures warmup when entering a supervised phase. ErrStalePhase means a
// concurrent request already moved the entity; callers treat that as "someone
// else handled it" and stop.
func (m *Machine) TransitionPhase(ctx context.Context, entityType domain.EntityType, entityID, tenantID string, from, to domain.RecoveryPhase, reason string, currentScore int) error {
	if !domain.ValidPhase(from) || !domain.ValidPhase(to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}
	if !legalTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	var (
		applied bool
		err     error
	)
	delta := m.scoreDelta(to)
	switch entityType {
	case domain.EntityMailbox:
		applied, err = m.mailboxes.TransitionPhase(ctx, tenantID, entityID, from, to, delta)
	case domain.EntityDomain:
		applied, err = m.domains.TransitionPhase(ctx, tenantID, entityID, from, to, delta)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownEntity, entityType)
	}
	if err != nil {
		return fmt.Errorf("apply transition %s/%s %s->%s: %w", entityType, entityID, from, to, err)
	}
	if !applied {
		return fmt.Errorf("%s/%s asserted %s: %w", entityType, entityID, from, ErrStalePhase)
	}

	transition := domain.StateTransition{
		TenantID:   tenantID,
		EntityType: entityType,
		EntityID:   entityID,
		FromPhase:  from,
		ToPhase:    to,
		Reason:     reason,
		Score:      currentScore,
	}
	if _, err := m.log.Insert(ctx, &transition); err != nil {
		// The phase already moved; a missing audit row is a defect worth a
		// loud error but not a rollback.
		return fmt.Errorf("record transition %s/%s %s->%s: %w", entityType, entityID, from, to, err)
	}

	if to == domain.PhasePaused && from != domain.PhaseHealthy {
		m.notifier.RecoveryFailed(transition)
	} else {
		m.notifier.PhaseChanged(transition)
	}

	if m.warmup != nil && (to == domain.PhaseRestrictedSend || to == domain.PhaseWarmRecovery) {
		// Best-effort: local state is committed, warmup reconciles eventually.
		// The failure still needs an operator signal, because the entity is
		// now in a supervised phase with no warmup configured on the platform.
		if err := m.warmup.Configure(ctx, entityType, tenantID, entityID, to); err != nil {
			logger.Warn("warmup configuration failed, local transition kept",
				"entity_type", string(entityType), "entity_id", entityID,
				"tenant_id", tenantID, "phase", string(to), "error", err)
		}
	}
	return nil
}

// AuditQuarantine records and announces a quarantine that was already
// applied atomically at the storage layer (the bounce monitor's auto-pause
// path). Every phase change gets an audit row and a notification, including
// the ones that don't flow through TransitionPhase.
func (m *Machine) AuditQuarantine(ctx context.Context, entityType domain.EntityType, entityID, tenantID string, from domain.RecoveryPhase, reason string, score int) error {
	transition := domain.StateTransition{
		TenantID:   tenantID,
		EntityType: entityType,
		EntityID:   entityID,
		FromPhase:  from,
		ToPhase:    domain.PhasePaused,
		Reason:     reason,
		Score:      score,
	}
	if _, err := m.log.Insert(ctx, &transition); err != nil {
		return fmt.Errorf("record quarantine %s/%s: %w", entityType, entityID, err)
	}
	m.notifier.PhaseChanged(transition)
	return nil
}

// Regress sends a mailbox in a supervised phase back to paused. Called by
// the bounce monitor on any bounce or spam complaint during recovery,
// regardless of bounce rate.
func (m *Machine) Regress(ctx context.Context, mb *domain.Mailbox, reason string) error {
	return m.TransitionPhase(ctx, domain.EntityMailbox, mb.ID, mb.TenantID,
		mb.RecoveryPhase, domain.PhasePaused, reason, mb.ResilienceScore)
}

// Advance moves an entity to the next phase in the rehabilitation sequence.
// Used by the graduation poller and the operator resume action.
func (m *Machine) Advance(ctx context.Context, entityType domain.EntityType, entityID, tenantID string, current domain.RecoveryPhase, reason string, currentScore int) error {
	next, ok := domain.NextPhase(current)
	if !ok {
		return fmt.Errorf("%w: no advance from %s", ErrIllegalTransition, current)
	}
	return m.TransitionPhase(ctx, entityType, entityID, tenantID, current, next, reason, currentScore)
}
