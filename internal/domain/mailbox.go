package domain

import "time"

// RecoveryPhase describes where a mailbox or domain sits in automated
// rehabilitation. Entities that have never breached a threshold stay healthy.
type RecoveryPhase string

const (
	PhaseHealthy        RecoveryPhase = "healthy"
	PhasePaused         RecoveryPhase = "paused"
	PhaseRestrictedSend RecoveryPhase = "restricted_send"
	PhaseWarmRecovery   RecoveryPhase = "warm_recovery"
)

// ValidPhase reports whether p is a known recovery phase.
func ValidPhase(p RecoveryPhase) bool {
	switch p {
	case PhaseHealthy, PhasePaused, PhaseRestrictedSend, PhaseWarmRecovery:
		return true
	}
	return false
}

// NextPhase returns the phase an entity advances to on graduation.
// Graduating from warm_recovery lands back at healthy; healthy and paused
// do not graduate (paused entities are resumed by an operator action into
// restricted_send).
func NextPhase(p RecoveryPhase) (RecoveryPhase, bool) {
	switch p {
	case PhasePaused:
		return PhaseRestrictedSend, true
	case PhaseRestrictedSend:
		return PhaseWarmRecovery, true
	case PhaseWarmRecovery:
		return PhaseHealthy, true
	}
	return "", false
}

// MailboxStatus enumerates mailbox lifecycle states. Mailboxes are never
// hard-deleted; deleted is a soft status.
type MailboxStatus string

const (
	MailboxActive  MailboxStatus = "active"
	MailboxPaused  MailboxStatus = "paused"
	MailboxDeleted MailboxStatus = "deleted"
)

// Mailbox is a single sending identity on the external platform.
type Mailbox struct {
	ID         string `json:"id" db:"id"`
	TenantID   string `json:"tenant_id" db:"tenant_id"`
	DomainID   string `json:"domain_id" db:"domain_id"`
	Email      string `json:"email" db:"email"`
	ExternalID string `json:"external_id" db:"external_id"` // platform-side account id
	Platform   string `json:"platform" db:"platform"`

	Status            MailboxStatus `json:"status" db:"status"`
	RecoveryPhase     RecoveryPhase `json:"recovery_phase" db:"recovery_phase"`
	ResilienceScore   int           `json:"resilience_score" db:"resilience_score"` // 0-100, clamped
	ConsecutivePauses int           `json:"consecutive_pauses" db:"consecutive_pauses"`
	RelapseCount      int           `json:"relapse_count" db:"relapse_count"`
	CooldownUntil     *time.Time    `json:"cooldown_until" db:"cooldown_until"`
	HealingOrigin     string        `json:"healing_origin" db:"healing_origin"`

	HardBounceCount   int64 `json:"hard_bounce_count" db:"hard_bounce_count"`
	WindowBounceCount int64 `json:"window_bounce_count" db:"window_bounce_count"`
	WindowSentCount   int64 `json:"window_sent_count" db:"window_sent_count"`
	TotalSentCount    int64 `json:"total_sent_count" db:"total_sent_count"`

	// Phase tracking. PhaseEnteredAt is always set when RecoveryPhase is not
	// healthy.
	PhaseEnteredAt  *time.Time `json:"phase_entered_at" db:"phase_entered_at"`
	PhaseCleanSends int64      `json:"phase_clean_sends" db:"phase_clean_sends"`
	PhaseBounces    int64      `json:"phase_bounces" db:"phase_bounces"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BounceRate returns hard bounces over lifetime sends, 0 when nothing sent.
func (m *Mailbox) BounceRate() float64 {
	if m.TotalSentCount == 0 {
		return 0
	}
	return float64(m.HardBounceCount) / float64(m.TotalSentCount)
}

// InRecovery reports whether the mailbox is anywhere other than healthy.
func (m *Mailbox) InRecovery() bool {
	return m.RecoveryPhase != PhaseHealthy
}

// CoolingDown reports whether state-changing operator actions are gated.
// The cooldown is advisory; no scheduler blocks on it.
func (m *Mailbox) CoolingDown(now time.Time) bool {
	return m.CooldownUntil != nil && now.Before(*m.CooldownUntil)
}

// SendingDomain is a sending domain aggregated from its mailboxes' events.
// It carries the same recovery-phase shape as Mailbox.
type SendingDomain struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	Name     string `json:"name" db:"name"`

	Status            MailboxStatus `json:"status" db:"status"`
	RecoveryPhase     RecoveryPhase `json:"recovery_phase" db:"recovery_phase"`
	ResilienceScore   int           `json:"resilience_score" db:"resilience_score"`
	ConsecutivePauses int           `json:"consecutive_pauses" db:"consecutive_pauses"`
	RelapseCount      int           `json:"relapse_count" db:"relapse_count"`
	CooldownUntil     *time.Time    `json:"cooldown_until" db:"cooldown_until"`
	HealingOrigin     string        `json:"healing_origin" db:"healing_origin"`

	HardBounceCount   int64 `json:"hard_bounce_count" db:"hard_bounce_count"`
	WindowBounceCount int64 `json:"window_bounce_count" db:"window_bounce_count"`
	WindowSentCount   int64 `json:"window_sent_count" db:"window_sent_count"`
	TotalSentCount    int64 `json:"total_sent_count" db:"total_sent_count"`

	PhaseEnteredAt  *time.Time `json:"phase_entered_at" db:"phase_entered_at"`
	PhaseCleanSends int64      `json:"phase_clean_sends" db:"phase_clean_sends"`
	PhaseBounces    int64      `json:"phase_bounces" db:"phase_bounces"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BounceRate returns hard bounces over lifetime sends, 0 when nothing sent.
func (d *SendingDomain) BounceRate() float64 {
	if d.TotalSentCount == 0 {
		return 0
	}
	return float64(d.HardBounceCount) / float64(d.TotalSentCount)
}

// EntityType distinguishes mailboxes from domains in audit records and the
// recovery state machine. The state machine treats both uniformly.
type EntityType string

const (
	EntityMailbox EntityType = "mailbox"
	EntityDomain  EntityType = "domain"
)

// TrendState is a derived read-model field describing the direction of an
// entity's health inside its current phase.
type TrendState string

const (
	TrendImproving TrendState = "improving"
	TrendStable    TrendState = "stable"
	TrendDegrading TrendState = "degrading"
)

// Trend derives the trend from phase counters: any bounce inside the phase is
// degrading, clean sends with no bounces is improving, otherwise stable.
func Trend(cleanSends, bounces int64) TrendState {
	switch {
	case bounces > 0:
		return TrendDegrading
	case cleanSends > 0:
		return TrendImproving
	default:
		return TrendStable
	}
}
