package domain

import (
	"encoding/json"
	"time"
)

// LeadStatus enumerates the lifecycle states of a lead.
type LeadStatus string

const (
	LeadHeld      LeadStatus = "held" // in the holding pool, no campaign assigned
	LeadActive    LeadStatus = "active"
	LeadBlocked   LeadStatus = "blocked"
	LeadPaused    LeadStatus = "paused"
	LeadCompleted LeadStatus = "completed"
)

// HealthClassification is the green/yellow/red tier assigned to a lead's
// email address before routing. Red leads never enter a campaign.
type HealthClassification string

const (
	HealthGreen  HealthClassification = "green"
	HealthYellow HealthClassification = "yellow"
	HealthRed    HealthClassification = "red"
)

// Rank orders classifications so automatic re-evaluation can be made
// upgrade-only: red < yellow < green. Unknown values rank below red.
func (c HealthClassification) Rank() int {
	switch c {
	case HealthRed:
		return 1
	case HealthYellow:
		return 2
	case HealthGreen:
		return 3
	}
	return 0
}

// Lead is an inbound prospect, unique per tenant by email.
type Lead struct {
	ID       string `json:"id" db:"id"`
	TenantID string `json:"tenant_id" db:"tenant_id"`
	Email    string `json:"email" db:"email"`
	Persona  string `json:"persona" db:"persona"`
	Source   string `json:"source" db:"source"`

	// LeadScore is the caller-supplied fit score used by routing rules.
	// HealthScore is computed by the health gate from the email address.
	LeadScore   int `json:"lead_score" db:"lead_score"`
	HealthScore int `json:"health_score" db:"health_score"`

	Status               LeadStatus           `json:"status" db:"status"`
	HealthClassification HealthClassification `json:"health_classification" db:"health_classification"`
	HealthChecks         json.RawMessage      `json:"health_checks" db:"health_checks"`
	BlockReason          string               `json:"block_reason" db:"block_reason"`

	AssignedCampaignID *string    `json:"assigned_campaign_id" db:"assigned_campaign_id"`
	LastEvaluatedAt    *time.Time `json:"last_evaluated_at" db:"last_evaluated_at"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Routable reports whether the lead may enter routing at all.
func (l *Lead) Routable() bool {
	return l.HealthClassification != HealthRed &&
		l.Status != LeadBlocked && l.Status != LeadCompleted
}
