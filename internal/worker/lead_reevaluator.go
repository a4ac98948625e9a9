// Package worker holds the periodic reconciliation jobs run by the
// scheduler: lead re-evaluation, recovery graduation, raw-event retention,
// and trial expiry.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/leadgate"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
	"github.com/ignite/deliverability-engine/internal/routing"
)

// ReevalLeadStore is the lead repository surface the re-evaluator uses.
type ReevalLeadStore interface {
	ListForReevaluation(ctx context.Context, evaluatedBefore time.Time, limit int) ([]domain.Lead, error)
	UpgradeHealth(ctx context.Context, tenantID, id string, c domain.HealthClassification, score int, checks json.RawMessage) (bool, error)
	MarkEvaluated(ctx context.Context, tenantID, id string) error
}

// Router places a lead after an upgrade.
type Router interface {
	Route(ctx context.Context, lead *domain.Lead) (*routing.Decision, error)
}

// LeadReevaluator periodically rescores held and paused leads. Health only
// moves up here: the gate is deterministic, so a downgrade could only come
// from list churn, and negative events already handle real damage.
type LeadReevaluator struct {
	leads     ReevalLeadStore
	router    Router
	staleness time.Duration
	batch     int
}

func NewLeadReevaluator(leads ReevalLeadStore, router Router, staleness time.Duration, batch int) *LeadReevaluator {
	if batch <= 0 {
		batch = 200
	}
	return &LeadReevaluator{leads: leads, router: router, staleness: staleness, batch: batch}
}

// Run is one reconciliation pass, sized for a scheduler tick.
func (w *LeadReevaluator) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-w.staleness)
	leads, err := w.leads.ListForReevaluation(ctx, cutoff, w.batch)
	if err != nil {
		return fmt.Errorf("list leads for re-evaluation: %w", err)
	}

	upgraded, routed := 0, 0
	for i := range leads {
		lead := &leads[i]
		res := leadgate.Classify(lead.Email)

		ok, err := w.leads.UpgradeHealth(ctx, lead.TenantID, lead.ID, res.Classification, res.Score, res.ChecksJSON())
		if err != nil {
			logger.Error("lead health upgrade failed", "lead_id", lead.ID, "error", err)
			continue
		}
		if err := w.leads.MarkEvaluated(ctx, lead.TenantID, lead.ID); err != nil {
			logger.Warn("lead evaluation timestamp update failed", "lead_id", lead.ID, "error", err)
		}
		if !ok {
			continue
		}
		upgraded++

		lead.HealthClassification = res.Classification
		lead.HealthScore = res.Score
		if !lead.Routable() || lead.AssignedCampaignID != nil {
			continue
		}
		decision, err := w.router.Route(ctx, lead)
		if err != nil {
			logger.Error("routing after upgrade failed", "lead_id", lead.ID, "error", err)
			continue
		}
		if decision.Routed {
			routed++
		}
	}

	if len(leads) > 0 {
		logger.Info("lead re-evaluation pass complete", "examined", len(leads), "upgraded", upgraded, "routed", routed)
	}
	return nil
}
