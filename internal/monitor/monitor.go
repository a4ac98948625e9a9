// Package monitor is the bounce monitor: it keeps rolling send/bounce
// counters for mailboxes, domains, and campaigns, evaluates the real-time
// auto-pause rule, and enforces zero tolerance for bounces during recovery.
// All state changes happen synchronously with the event being handled.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
	"github.com/ignite/deliverability-engine/internal/platform"
	"github.com/ignite/deliverability-engine/internal/repository"
)

// OriginBounceThreshold is the healing origin recorded when the auto-pause
// rule fires.
const OriginBounceThreshold = "bounce_threshold"

// MailboxStore is the mailbox repository surface the monitor mutates.
type MailboxStore interface {
	GetByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Mailbox, error)
	RecordBounce(ctx context.Context, tenantID, id string) (*domain.Mailbox, error)
	RecordSent(ctx context.Context, tenantID, id string) (*domain.Mailbox, error)
	AutoPause(ctx context.Context, tenantID, id, origin string, cooldownUntil time.Time, penalty int) (bool, error)
}

// DomainStore is the sending-domain repository surface the monitor mutates.
type DomainStore interface {
	RecordBounce(ctx context.Context, tenantID, id string) (*domain.SendingDomain, error)
	RecordSent(ctx context.Context, tenantID, id string) (*domain.SendingDomain, error)
	AutoPause(ctx context.Context, tenantID, id, origin string, cooldownUntil time.Time, penalty int) (bool, error)
}

// CampaignStore is the campaign repository surface the monitor mutates.
type CampaignStore interface {
	GetByExternalID(ctx context.Context, tenantID, externalID string) (*domain.Campaign, error)
	RecordBounce(ctx context.Context, tenantID, id string) (*domain.Campaign, error)
	RecordSent(ctx context.Context, tenantID, id string) (*domain.Campaign, error)
	SetStatus(ctx context.Context, tenantID, id string, status domain.CampaignStatus, reason string) error
	UnassignMailbox(ctx context.Context, tenantID, mailboxID string) (int64, error)
}

// LeadStore is the lead repository surface the monitor mutates on negative
// events.
type LeadStore interface {
	GetByEmail(ctx context.Context, tenantID, email string) (*domain.Lead, error)
	Downgrade(ctx context.Context, tenantID, id string, status domain.LeadStatus, c domain.HealthClassification, score int, reason string) error
}

// PhaseMachine is the slice of the recovery state machine the monitor uses.
type PhaseMachine interface {
	Regress(ctx context.Context, mb *domain.Mailbox, reason string) error
	AuditQuarantine(ctx context.Context, entityType domain.EntityType, entityID, tenantID string, from domain.RecoveryPhase, reason string, score int) error
}

// Monitor handles delivery events and applies their health consequences.
type Monitor struct {
	mailboxes MailboxStore
	domains   DomainStore
	campaigns CampaignStore
	leads     LeadStore
	machine   PhaseMachine
	registry  *platform.Registry
	cfg       config.MonitorConfig
	timeout   time.Duration // bound on best-effort external calls
}

// New wires the bounce monitor.
func New(mailboxes MailboxStore, domains DomainStore, campaigns CampaignStore, leads LeadStore, machine PhaseMachine, registry *platform.Registry, cfg config.MonitorConfig) *Monitor {
	return &Monitor{
		mailboxes: mailboxes,
		domains:   domains,
		campaigns: campaigns,
		leads:     leads,
		machine:   machine,
		registry:  registry,
		cfg:       cfg,
		timeout:   15 * time.Second,
	}
}

// HandleBounce applies the full bounce path: counters on mailbox, domain,
// and campaign; zero tolerance during recovery; the auto-pause rule; and the
// lead downgrade. Entity references are each optional; a missing entity is
// a logged warning, never a retryable failure.
func (m *Monitor) HandleBounce(ctx context.Context, ev *domain.RawEvent) error {
	mb := m.resolveMailbox(ctx, ev)
	if mb != nil {
		updated, err := m.mailboxes.RecordBounce(ctx, ev.TenantID, mb.ID)
		if err != nil {
			return fmt.Errorf("record mailbox bounce: %w", err)
		}
		mb = updated

		if mb.DomainID != "" {
			if d, err := m.domains.RecordBounce(ctx, ev.TenantID, mb.DomainID); err != nil {
				logger.Warn("domain bounce counter update failed", "domain_id", mb.DomainID, "error", err)
			} else {
				m.maybePauseDomain(ctx, d)
			}
		}

		// Zero tolerance: any bounce during supervised recovery regresses the
		// mailbox immediately, regardless of the rate threshold.
		if mb.RecoveryPhase == domain.PhaseRestrictedSend || mb.RecoveryPhase == domain.PhaseWarmRecovery {
			reason := fmt.Sprintf("bounce during %s", mb.RecoveryPhase)
			if err := m.machine.Regress(ctx, mb, reason); err != nil {
				logger.Warn("recovery regression failed", "mailbox_id", mb.ID, "error", err)
			}
		} else {
			m.maybeAutoPause(ctx, mb)
		}
	}

	m.recordCampaignBounce(ctx, ev)
	m.downgradeLead(ctx, ev, domain.LeadPaused, "bounce")
	return nil
}

// HandleSent updates send counters on the mailbox, its domain, and the
// campaign. Clean sends inside a supervised phase feed graduation.
func (m *Monitor) HandleSent(ctx context.Context, ev *domain.RawEvent) error {
	mb := m.resolveMailbox(ctx, ev)
	if mb != nil {
		updated, err := m.mailboxes.RecordSent(ctx, ev.TenantID, mb.ID)
		if err != nil {
			return fmt.Errorf("record mailbox sent: %w", err)
		}
		if updated.DomainID != "" {
			if _, err := m.domains.RecordSent(ctx, ev.TenantID, updated.DomainID); err != nil {
				logger.Warn("domain sent counter update failed", "domain_id", updated.DomainID, "error", err)
			}
		}
	}

	if ev.ExternalCampaignID != "" {
		c, err := m.campaigns.GetByExternalID(ctx, ev.TenantID, ev.ExternalCampaignID)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("resolve campaign: %w", err)
			}
			logger.Warn("sent event references unknown campaign", "external_campaign_id", ev.ExternalCampaignID)
		} else if _, err := m.campaigns.RecordSent(ctx, ev.TenantID, c.ID); err != nil {
			return fmt.Errorf("record campaign sent: %w", err)
		}
	}
	return nil
}

// HandleOpen acknowledges engagement. Opens carry no health consequences.
func (m *Monitor) HandleOpen(ctx context.Context, ev *domain.RawEvent) error {
	logger.Debug("open event", "tenant_id", ev.TenantID, "recipient", ev.RecipientEmail)
	return nil
}

// HandleClick acknowledges engagement. Clicks carry no health consequences.
func (m *Monitor) HandleClick(ctx context.Context, ev *domain.RawEvent) error {
	logger.Debug("click event", "tenant_id", ev.TenantID, "recipient", ev.RecipientEmail)
	return nil
}

// HandleReply completes the matching lead: a reply means the conversation
// moved out of automated sending.
func (m *Monitor) HandleReply(ctx context.Context, ev *domain.RawEvent) error {
	if ev.RecipientEmail == "" {
		return nil
	}
	lead, err := m.leads.GetByEmail(ctx, ev.TenantID, ev.RecipientEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("resolve lead for reply: %w", err)
	}
	if err := m.leads.Downgrade(ctx, ev.TenantID, lead.ID, domain.LeadCompleted, lead.HealthClassification, lead.HealthScore, "replied"); err != nil {
		return fmt.Errorf("complete lead: %w", err)
	}
	return nil
}

// HandleUnsubscribe blocks the matching lead and suppresses the recipient on
// the platform (terminal negative event).
func (m *Monitor) HandleUnsubscribe(ctx context.Context, ev *domain.RawEvent) error {
	m.downgradeLead(ctx, ev, domain.LeadBlocked, "unsubscribe")
	m.suppressRecipient(ctx, ev, "unsubscribe")
	return nil
}

// HandleSpam is the harshest path: the lead is blocked, the recipient is
// suppressed, and a mailbox in any supervised phase regresses immediately.
func (m *Monitor) HandleSpam(ctx context.Context, ev *domain.RawEvent) error {
	mb := m.resolveMailbox(ctx, ev)
	if mb != nil && (mb.RecoveryPhase == domain.PhaseRestrictedSend || mb.RecoveryPhase == domain.PhaseWarmRecovery) {
		reason := fmt.Sprintf("spam complaint during %s", mb.RecoveryPhase)
		if err := m.machine.Regress(ctx, mb, reason); err != nil {
			logger.Warn("recovery regression failed", "mailbox_id", mb.ID, "error", err)
		}
	}
	m.downgradeLead(ctx, ev, domain.LeadBlocked, "spam_complaint")
	m.suppressRecipient(ctx, ev, "spam")
	return nil
}

// maybeAutoPause evaluates the real-time threshold rule: at or past the
// minimum send volume, a lifetime hard-bounce rate at or above the pause
// threshold quarantines the mailbox. The repository's conditional update
// decides the winner under concurrency.
func (m *Monitor) maybeAutoPause(ctx context.Context, mb *domain.Mailbox) {
	if mb.TotalSentCount < m.cfg.MinSendsForPause {
		return
	}
	if mb.BounceRate() < m.cfg.PauseBounceRate {
		return
	}
	if mb.Status == domain.MailboxPaused {
		return
	}

	fromPhase := mb.RecoveryPhase
	cooldown := time.Now().Add(m.cfg.Cooldown())
	won, err := m.mailboxes.AutoPause(ctx, mb.TenantID, mb.ID, OriginBounceThreshold, cooldown, m.cfg.PausePenalty)
	if err != nil {
		logger.Error("mailbox auto-pause failed", "mailbox_id", mb.ID, "error", err)
		return
	}
	if !won {
		return
	}

	reason := fmt.Sprintf("hard bounce rate %.2f%% over %d sends", mb.BounceRate()*100, mb.TotalSentCount)
	if err := m.machine.AuditQuarantine(ctx, domain.EntityMailbox, mb.ID, mb.TenantID, fromPhase, reason, mb.ResilienceScore); err != nil {
		logger.Error("quarantine audit failed", "mailbox_id", mb.ID, "error", err)
	}
	logger.Warn("mailbox auto-paused", "mailbox_id", mb.ID, "tenant_id", mb.TenantID, "reason", reason)

	// Local pause is committed. Platform removal is best-effort and never
	// blocks or reverses it.
	if _, err := m.campaigns.UnassignMailbox(ctx, mb.TenantID, mb.ID); err != nil {
		logger.Warn("local campaign unassign failed", "mailbox_id", mb.ID, "error", err)
	}
	adapter, err := m.registry.Get(mb.Platform)
	if err != nil {
		logger.Warn("no platform adapter for mailbox removal", "mailbox_id", mb.ID, "platform", mb.Platform)
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := adapter.RemoveMailboxFromCampaigns(callCtx, mb.ExternalID); err != nil && !errors.Is(err, platform.ErrNotSupported) {
		logger.Warn("platform campaign removal failed", "mailbox_id", mb.ID, "platform", adapter.Name(), "error", err)
	}
}

// maybePauseDomain applies the aggregated threshold rule at domain level.
// Domains need a higher volume floor before the rate is trusted.
func (m *Monitor) maybePauseDomain(ctx context.Context, d *domain.SendingDomain) {
	if d.TotalSentCount < m.cfg.DomainMinSends {
		return
	}
	if d.BounceRate() < m.cfg.PauseBounceRate {
		return
	}
	if d.Status == domain.MailboxPaused {
		return
	}

	fromPhase := d.RecoveryPhase
	cooldown := time.Now().Add(m.cfg.Cooldown())
	won, err := m.domains.AutoPause(ctx, d.TenantID, d.ID, OriginBounceThreshold, cooldown, m.cfg.PausePenalty)
	if err != nil {
		logger.Error("domain auto-pause failed", "domain_id", d.ID, "error", err)
		return
	}
	if !won {
		return
	}
	reason := fmt.Sprintf("domain hard bounce rate %.2f%% over %d sends", d.BounceRate()*100, d.TotalSentCount)
	if err := m.machine.AuditQuarantine(ctx, domain.EntityDomain, d.ID, d.TenantID, fromPhase, reason, d.ResilienceScore); err != nil {
		logger.Error("quarantine audit failed", "domain_id", d.ID, "error", err)
	}
	logger.Warn("domain auto-paused", "domain_id", d.ID, "tenant_id", d.TenantID, "reason", reason)
}

func (m *Monitor) recordCampaignBounce(ctx context.Context, ev *domain.RawEvent) {
	if ev.ExternalCampaignID == "" {
		return
	}
	c, err := m.campaigns.GetByExternalID(ctx, ev.TenantID, ev.ExternalCampaignID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("bounce event references unknown campaign", "external_campaign_id", ev.ExternalCampaignID)
			return
		}
		logger.Error("campaign resolve failed", "external_campaign_id", ev.ExternalCampaignID, "error", err)
		return
	}
	updated, err := m.campaigns.RecordBounce(ctx, ev.TenantID, c.ID)
	if err != nil {
		logger.Error("campaign bounce counter update failed", "campaign_id", c.ID, "error", err)
		return
	}
	if updated.Status == domain.CampaignActive &&
		updated.TotalSent >= m.cfg.CampaignMinVolume &&
		updated.BounceRate >= m.cfg.CampaignWarnRate {
		reason := fmt.Sprintf("bounce rate %.2f%%", updated.BounceRate*100)
		if err := m.campaigns.SetStatus(ctx, ev.TenantID, c.ID, domain.CampaignWarning, reason); err != nil {
			logger.Warn("campaign warning status failed", "campaign_id", c.ID, "error", err)
		}
	}
}

func (m *Monitor) downgradeLead(ctx context.Context, ev *domain.RawEvent, status domain.LeadStatus, reason string) {
	if ev.RecipientEmail == "" {
		return
	}
	lead, err := m.leads.GetByEmail(ctx, ev.TenantID, ev.RecipientEmail)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return
		}
		logger.Error("lead resolve failed", "recipient", ev.RecipientEmail, "error", err)
		return
	}
	if err := m.leads.Downgrade(ctx, ev.TenantID, lead.ID, status, domain.HealthRed, 0, reason); err != nil {
		logger.Error("lead downgrade failed", "lead_id", lead.ID, "error", err)
	}
}

func (m *Monitor) suppressRecipient(ctx context.Context, ev *domain.RawEvent, reason string) {
	if ev.RecipientEmail == "" {
		return
	}
	mb := m.resolveMailbox(ctx, ev)
	platformName := ""
	if mb != nil {
		platformName = mb.Platform
	}
	adapter, err := m.registry.Get(platformName)
	if err != nil {
		logger.Debug("no platform adapter for suppression", "platform", platformName)
		return
	}
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if err := adapter.SuppressRecipient(callCtx, ev.RecipientEmail, reason); err != nil && !errors.Is(err, platform.ErrNotSupported) {
		logger.Warn("recipient suppression failed", "platform", adapter.Name(), "error", err)
	}
}

// resolveMailbox looks up the event's mailbox. Absence is a warning, not an
// error: the ack already went out and the platform will not retry.
func (m *Monitor) resolveMailbox(ctx context.Context, ev *domain.RawEvent) *domain.Mailbox {
	if ev.ExternalMailboxID == "" {
		return nil
	}
	mb, err := m.mailboxes.GetByExternalID(ctx, ev.TenantID, ev.ExternalMailboxID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			logger.Warn("event references unknown mailbox", "external_mailbox_id", ev.ExternalMailboxID, "event_type", string(ev.Type))
			return nil
		}
		logger.Error("mailbox resolve failed", "external_mailbox_id", ev.ExternalMailboxID, "error", err)
		return nil
	}
	return mb
}
