// Package warmup configures external low-volume sending for entities in
// recovery and evaluates their graduation criteria.
package warmup

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/platform"
	"github.com/ignite/deliverability-engine/internal/recovery"
)

// MailboxStore is the read surface the controller needs to resolve platform
// identities.
type MailboxStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Mailbox, error)
}

// Controller pushes phase-specific warmup settings to the external platform.
// Every call is best-effort with a bounded timeout: the local transition is
// already committed when the controller runs, and a failed call degrades to
// a logged warning.
type Controller struct {
	mailboxes MailboxStore
	registry  *platform.Registry
	warmCfg   config.WarmupConfig
	recCfg    config.RecoveryConfig
}

// NewController wires the warmup controller.
func NewController(mailboxes MailboxStore, registry *platform.Registry, warmCfg config.WarmupConfig, recCfg config.RecoveryConfig) *Controller {
	return &Controller{
		mailboxes: mailboxes,
		registry:  registry,
		warmCfg:   warmCfg,
		recCfg:    recCfg,
	}
}

// SettingsFor maps a recovery phase to the warmup configuration pushed to
// the platform. Graduation to healthy keeps a low maintenance volume unless
// maintenance is configured off (volume 0 disables warmup entirely).
func (c *Controller) SettingsFor(phase domain.RecoveryPhase) platform.WarmupSettings {
	switch phase {
	case domain.PhaseRestrictedSend:
		return platform.WarmupSettings{
			DailyVolume:     c.warmCfg.RestrictedDailyVolume,
			RampUpIncrement: c.warmCfg.RestrictedRampUp,
			TargetReplyRate: c.warmCfg.TargetReplyRate,
			Enabled:         true,
		}
	case domain.PhaseWarmRecovery:
		return platform.WarmupSettings{
			DailyVolume:     c.warmCfg.WarmDailyVolume,
			RampUpIncrement: c.warmCfg.WarmRampUp,
			TargetReplyRate: c.warmCfg.TargetReplyRate,
			Enabled:         true,
		}
	case domain.PhaseHealthy:
		return platform.WarmupSettings{
			DailyVolume:     c.warmCfg.MaintenanceVolume,
			TargetReplyRate: c.warmCfg.TargetReplyRate,
			Enabled:         c.warmCfg.MaintenanceVolume > 0,
		}
	default:
		return platform.WarmupSettings{Enabled: false}
	}
}

// Configure applies the phase's warmup settings to the entity's platform
// account. Domains have no platform-side warmup of their own; their
// mailboxes are configured individually, so a domain call is a no-op.
func (c *Controller) Configure(ctx context.Context, entityType domain.EntityType, tenantID, entityID string, phase domain.RecoveryPhase) error {
	if entityType != domain.EntityMailbox {
		return nil
	}

	mb, err := c.mailboxes.GetByID(ctx, tenantID, entityID)
	if err != nil {
		return fmt.Errorf("warmup: resolve mailbox %s: %w", entityID, err)
	}

	adapter, err := c.registry.Get(mb.Platform)
	if err != nil {
		return fmt.Errorf("warmup: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.warmCfg.CallTimeout())
	defer cancel()

	if err := adapter.ConfigureWarmup(callCtx, mb.ExternalID, c.SettingsFor(phase)); err != nil {
		return fmt.Errorf("warmup: configure %s on %s: %w", mb.ExternalID, adapter.Name(), err)
	}
	return nil
}

// Evaluation is the result of a graduation check.
type Evaluation struct {
	Ready  bool
	Reason string
}

// Evaluate checks the polled graduation criteria for a mailbox in a
// supervised phase: a cumulative clean-send target with zero bounces or spam
// complaints in-phase (a repeat offender's restricted_send target is raised),
// and for warm_recovery additionally a minimum elapsed-days floor.
func (c *Controller) Evaluate(mb *domain.Mailbox, now time.Time) Evaluation {
	target, ok := recovery.TargetFor(mb.RecoveryPhase, mb.ConsecutivePauses, c.recCfg)
	if !ok {
		return Evaluation{Reason: fmt.Sprintf("phase %s has no graduation criteria", mb.RecoveryPhase)}
	}
	if mb.PhaseBounces > 0 {
		return Evaluation{Reason: fmt.Sprintf("%d bounces recorded in phase", mb.PhaseBounces)}
	}
	if mb.PhaseCleanSends < target.CleanSends {
		return Evaluation{Reason: fmt.Sprintf("clean sends %d/%d", mb.PhaseCleanSends, target.CleanSends)}
	}
	if target.MinDays > 0 {
		if mb.PhaseEnteredAt == nil {
			return Evaluation{Reason: "phase entry time unknown"}
		}
		days := int(now.Sub(*mb.PhaseEnteredAt).Hours() / 24)
		if days < target.MinDays {
			return Evaluation{Reason: fmt.Sprintf("in phase %d/%d days", days, target.MinDays)}
		}
	}
	return Evaluation{Ready: true, Reason: "criteria met"}
}
