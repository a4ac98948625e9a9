package domain

import "time"

// CampaignStatus enumerates campaign health states maintained by the bounce
// monitor. Campaign creation and content live on the external platform.
type CampaignStatus string

const (
	CampaignActive  CampaignStatus = "active"
	CampaignPaused  CampaignStatus = "paused"
	CampaignWarning CampaignStatus = "warning"
)

// Campaign mirrors an external platform campaign plus locally-maintained
// delivery counters and lead-assignment capacity.
type Campaign struct {
	ID         string `json:"id" db:"id"`
	TenantID   string `json:"tenant_id" db:"tenant_id"`
	ExternalID string `json:"external_id" db:"external_id"` // platform-side campaign id
	Name       string `json:"name" db:"name"`

	Status       CampaignStatus `json:"status" db:"status"`
	PausedReason string         `json:"paused_reason" db:"paused_reason"`

	TotalSent    int64   `json:"total_sent" db:"total_sent"`
	TotalBounced int64   `json:"total_bounced" db:"total_bounced"`
	BounceRate   float64 `json:"bounce_rate" db:"bounce_rate"`

	// Lead assignment capacity. MaxActiveLeads <= 0 means unlimited.
	MaxActiveLeads int `json:"max_active_leads" db:"max_active_leads"`
	AssignedCount  int `json:"assigned_count" db:"assigned_count"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Tenant is the collaborator surface this engine needs from the account
// system: a webhook secret for ingress authentication and a trial window for
// the expiry worker. Billing enforcement itself lives elsewhere.
type Tenant struct {
	ID            string     `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	Status        string     `json:"status" db:"status"` // active, paused
	WebhookSecret string     `json:"-" db:"webhook_secret"`
	TrialEndsAt   *time.Time `json:"trial_ends_at" db:"trial_ends_at"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
}
