package domain

import "time"

// RoutingRule maps a lead persona to a target campaign. Rules are evaluated
// in priority-descending order; persona matching is case-insensitive.
type RoutingRule struct {
	ID               string    `json:"id" db:"id"`
	TenantID         string    `json:"tenant_id" db:"tenant_id"`
	Persona          string    `json:"persona" db:"persona"`
	MinScore         int       `json:"min_score" db:"min_score"`
	TargetCampaignID string    `json:"target_campaign_id" db:"target_campaign_id"`
	Priority         int       `json:"priority" db:"priority"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Routing audit reason codes. Emitted when a rule is skipped or no rule
// matches; rule evaluation itself is side-effect-free.
const (
	RouteSkipCampaignNotFound   = "campaign_not_found"
	RouteSkipCampaignPaused     = "campaign_paused"
	RouteSkipCampaignNoMailbox  = "campaign_no_mailboxes"
	RouteSkipCampaignAtCapacity = "campaign_at_capacity"
	RouteNoMatch                = "no_route_matched"
)
