// Package routing assigns routable leads to campaigns. Rules are evaluated
// highest priority first; a rule only wins when its target campaign is
// viable right now, so a full or empty campaign falls through to the next
// rule instead of stranding the lead.
package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
	"github.com/ignite/deliverability-engine/internal/repository"
)

// RuleStore lists a tenant's routing rules in evaluation order.
type RuleStore interface {
	ListByTenant(ctx context.Context, tenantID string) ([]domain.RoutingRule, error)
}

// CampaignStore is the campaign surface routing needs to judge viability
// and reserve a slot.
type CampaignStore interface {
	GetByID(ctx context.Context, tenantID, id string) (*domain.Campaign, error)
	MailboxCount(ctx context.Context, tenantID, campaignID string) (int, error)
	TryReserveLeadSlot(ctx context.Context, tenantID, campaignID string) error
	ReleaseLeadSlot(ctx context.Context, tenantID, campaignID string) error
}

// LeadStore persists the routing outcome.
type LeadStore interface {
	AssignCampaign(ctx context.Context, tenantID, id, campaignID string) error
}

// Decision is the outcome of one routing attempt.
type Decision struct {
	Routed     bool     `json:"routed"`
	CampaignID string   `json:"campaign_id,omitempty"`
	RuleID     string   `json:"rule_id,omitempty"`
	Reason     string   `json:"reason"` // populated when not routed
	Skips      []string `json:"skips,omitempty"`
}

// Resolver routes leads through the tenant's rule list.
type Resolver struct {
	rules     RuleStore
	campaigns CampaignStore
	leads     LeadStore
}

func NewResolver(rules RuleStore, campaigns CampaignStore, leads LeadStore) *Resolver {
	return &Resolver{rules: rules, campaigns: campaigns, leads: leads}
}

// Route attempts to place a lead. A lead that is not routable, or for which
// no viable rule matches, stays in the holding pool; that is a decision,
// not an error. Errors are reserved for infrastructure failures.
func (r *Resolver) Route(ctx context.Context, lead *domain.Lead) (*Decision, error) {
	if !lead.Routable() {
		return &Decision{Reason: domain.RouteNoMatch}, nil
	}

	rules, err := r.rules.ListByTenant(ctx, lead.TenantID)
	if err != nil {
		return nil, fmt.Errorf("list routing rules: %w", err)
	}

	decision := &Decision{}
	for _, rule := range rules {
		if !strings.EqualFold(rule.Persona, lead.Persona) {
			continue
		}
		if lead.LeadScore < rule.MinScore {
			continue
		}

		skip, err := r.tryRule(ctx, lead, rule)
		if err != nil {
			return nil, err
		}
		if skip != "" {
			logger.Warn("routing rule skipped", "tenant_id", lead.TenantID, "rule_id", rule.ID,
				"campaign_id", rule.TargetCampaignID, "reason", skip)
			decision.Skips = append(decision.Skips, skip)
			continue
		}

		decision.Routed = true
		decision.CampaignID = rule.TargetCampaignID
		decision.RuleID = rule.ID
		return decision, nil
	}

	decision.Reason = domain.RouteNoMatch
	logger.Debug("lead stays in holding pool", "tenant_id", lead.TenantID, "lead_id", lead.ID)
	return decision, nil
}

// tryRule checks campaign viability and, when viable, reserves a slot and
// assigns the lead. Returns a skip reason when the rule cannot serve.
func (r *Resolver) tryRule(ctx context.Context, lead *domain.Lead, rule domain.RoutingRule) (string, error) {
	campaign, err := r.campaigns.GetByID(ctx, lead.TenantID, rule.TargetCampaignID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.RouteSkipCampaignNotFound, nil
		}
		return "", fmt.Errorf("load campaign %s: %w", rule.TargetCampaignID, err)
	}
	// Paused is the only non-viable status. Warning means the campaign is
	// being watched by the bounce monitor, not closed to new leads.
	if campaign.Status == domain.CampaignPaused {
		return domain.RouteSkipCampaignPaused, nil
	}

	count, err := r.campaigns.MailboxCount(ctx, lead.TenantID, campaign.ID)
	if err != nil {
		return "", fmt.Errorf("count campaign mailboxes: %w", err)
	}
	if count == 0 {
		return domain.RouteSkipCampaignNoMailbox, nil
	}

	// Slot reservation is the concurrency gate: the conditional update in
	// the repository decides who gets the last slot.
	if err := r.campaigns.TryReserveLeadSlot(ctx, lead.TenantID, campaign.ID); err != nil {
		if errors.Is(err, repository.ErrAtCapacity) {
			return domain.RouteSkipCampaignAtCapacity, nil
		}
		return "", fmt.Errorf("reserve lead slot: %w", err)
	}

	if err := r.leads.AssignCampaign(ctx, lead.TenantID, lead.ID, campaign.ID); err != nil {
		if relErr := r.campaigns.ReleaseLeadSlot(ctx, lead.TenantID, campaign.ID); relErr != nil {
			logger.Error("slot release failed after assign error", "campaign_id", campaign.ID, "error", relErr)
		}
		return "", fmt.Errorf("assign lead to campaign: %w", err)
	}
	return "", nil
}
