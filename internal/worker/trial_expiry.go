package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
)

// TrialTenantStore is the tenant surface the expiry job uses.
type TrialTenantStore interface {
	ListExpiredTrials(ctx context.Context, now time.Time) ([]domain.Tenant, error)
	Pause(ctx context.Context, id string) (bool, error)
}

// TrialExpirer pauses tenants whose trial window has lapsed. Paused tenants
// stop ingesting; their data stays put for reactivation.
type TrialExpirer struct {
	tenants TrialTenantStore
}

func NewTrialExpirer(tenants TrialTenantStore) *TrialExpirer {
	return &TrialExpirer{tenants: tenants}
}

func (w *TrialExpirer) Run(ctx context.Context) error {
	expired, err := w.tenants.ListExpiredTrials(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("list expired trials: %w", err)
	}

	paused := 0
	for _, t := range expired {
		ok, err := w.tenants.Pause(ctx, t.ID)
		if err != nil {
			logger.Error("tenant pause failed", "tenant_id", t.ID, "error", err)
			continue
		}
		if ok {
			paused++
			logger.Info("tenant trial expired", "tenant_id", t.ID, "name", t.Name)
		}
	}
	if paused > 0 {
		logger.Info("trial expiry pass complete", "paused", paused)
	}
	return nil
}
