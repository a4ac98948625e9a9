package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ignite/deliverability-engine/internal/domain"
)

type fakeTrialStore struct {
	expired  []domain.Tenant
	paused   []string
	pauseErr map[string]error
	pauseOK  map[string]bool
}

func (f *fakeTrialStore) ListExpiredTrials(ctx context.Context, now time.Time) ([]domain.Tenant, error) {
	return f.expired, nil
}

func (f *fakeTrialStore) Pause(ctx context.Context, id string) (bool, error) {
	if err := f.pauseErr[id]; err != nil {
		return false, err
	}
	f.paused = append(f.paused, id)
	if f.pauseOK == nil {
		return true, nil
	}
	return f.pauseOK[id], nil
}

func TestTrialExpiryPausesLapsedTenants(t *testing.T) {
	store := &fakeTrialStore{expired: []domain.Tenant{
		{ID: "t-1", Name: "acme"},
		{ID: "t-2", Name: "globex"},
	}}

	w := NewTrialExpirer(store)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(store.paused) != 2 {
		t.Errorf("paused = %v, want both tenants", store.paused)
	}
}

func TestTrialExpiryContinuesPastFailures(t *testing.T) {
	store := &fakeTrialStore{
		expired: []domain.Tenant{
			{ID: "t-1", Name: "acme"},
			{ID: "t-2", Name: "globex"},
		},
		pauseErr: map[string]error{"t-1": errors.New("db down")},
	}

	w := NewTrialExpirer(store)
	if err := w.Run(context.Background()); err != nil {
		t.Fatalf("one failed pause must not abort the pass: %v", err)
	}
	if len(store.paused) != 1 || store.paused[0] != "t-2" {
		t.Errorf("paused = %v, want t-2 only", store.paused)
	}
}
