package worker

import (
	"context"
	"testing"
	"time"

	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/warmup"
)

var gradRecCfg = config.RecoveryConfig{
	RestrictedSendTarget:       50,
	RestrictedSendRepeatTarget: 150,
	WarmRecoveryTarget:         300,
	WarmRecoveryMinDays:        7,
}

type fakeGradMailboxes struct{ mailboxes []domain.Mailbox }

func (f *fakeGradMailboxes) ListInPhases(ctx context.Context, phases []domain.RecoveryPhase, limit int) ([]domain.Mailbox, error) {
	return f.mailboxes, nil
}

type fakeGradDomains struct{ domains []domain.SendingDomain }

func (f *fakeGradDomains) ListInPhases(ctx context.Context, phases []domain.RecoveryPhase, limit int) ([]domain.SendingDomain, error) {
	return f.domains, nil
}

type advanceCall struct {
	entityType domain.EntityType
	entityID   string
	from       domain.RecoveryPhase
}

type fakeAdvancer struct{ calls []advanceCall }

func (f *fakeAdvancer) Advance(ctx context.Context, entityType domain.EntityType, entityID, tenantID string, current domain.RecoveryPhase, reason string, currentScore int) error {
	f.calls = append(f.calls, advanceCall{entityType: entityType, entityID: entityID, from: current})
	return nil
}

type fakeEvaluator struct{ ready map[string]bool }

func (f *fakeEvaluator) Evaluate(mb *domain.Mailbox, now time.Time) warmup.Evaluation {
	if f.ready[mb.ID] {
		return warmup.Evaluation{Ready: true, Reason: "criteria met"}
	}
	return warmup.Evaluation{Reason: "clean sends 10/50"}
}

func TestPollerAdvancesReadyMailboxes(t *testing.T) {
	mailboxes := &fakeGradMailboxes{mailboxes: []domain.Mailbox{
		{ID: "mb-ready", TenantID: "t-1", RecoveryPhase: domain.PhaseRestrictedSend, ResilienceScore: 60},
		{ID: "mb-waiting", TenantID: "t-1", RecoveryPhase: domain.PhaseWarmRecovery, ResilienceScore: 70},
	}}
	machine := &fakeAdvancer{}
	poller := NewGraduationPoller(mailboxes, &fakeGradDomains{}, machine, &fakeEvaluator{ready: map[string]bool{"mb-ready": true}}, gradRecCfg, 0)

	if err := poller.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(machine.calls) != 1 {
		t.Fatalf("advance calls = %d, want 1", len(machine.calls))
	}
	call := machine.calls[0]
	if call.entityID != "mb-ready" || call.entityType != domain.EntityMailbox || call.from != domain.PhaseRestrictedSend {
		t.Errorf("call = %+v, want mb-ready from restricted_send", call)
	}
}

func TestPollerEvaluatesDomainCounters(t *testing.T) {
	entered := time.Now().Add(-10 * 24 * time.Hour)
	domains := &fakeGradDomains{domains: []domain.SendingDomain{
		{
			ID: "dom-ready", TenantID: "t-1",
			RecoveryPhase:   domain.PhaseWarmRecovery,
			PhaseCleanSends: 300,
			PhaseEnteredAt:  &entered,
		},
		{
			ID: "dom-dirty", TenantID: "t-1",
			RecoveryPhase:   domain.PhaseWarmRecovery,
			PhaseCleanSends: 300,
			PhaseBounces:    1,
			PhaseEnteredAt:  &entered,
		},
		{
			ID: "dom-young", TenantID: "t-1",
			RecoveryPhase:   domain.PhaseWarmRecovery,
			PhaseCleanSends: 300,
			PhaseEnteredAt:  func() *time.Time { ts := time.Now().Add(-2 * 24 * time.Hour); return &ts }(),
		},
	}}
	machine := &fakeAdvancer{}
	poller := NewGraduationPoller(&fakeGradMailboxes{}, domains, machine, &fakeEvaluator{}, gradRecCfg, 0)

	if err := poller.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(machine.calls) != 1 {
		t.Fatalf("advance calls = %d, want only the clean aged domain", len(machine.calls))
	}
	if machine.calls[0].entityID != "dom-ready" || machine.calls[0].entityType != domain.EntityDomain {
		t.Errorf("call = %+v, want dom-ready as a domain entity", machine.calls[0])
	}
}

func TestPollerRepeatOffenderDomainTarget(t *testing.T) {
	domains := &fakeGradDomains{domains: []domain.SendingDomain{
		{
			ID: "dom-1", TenantID: "t-1",
			RecoveryPhase:     domain.PhaseRestrictedSend,
			ConsecutivePauses: 3,
			PhaseCleanSends:   100, // past the base target, short of the repeat target
		},
	}}
	machine := &fakeAdvancer{}
	poller := NewGraduationPoller(&fakeGradMailboxes{}, domains, machine, &fakeEvaluator{}, gradRecCfg, 0)

	if err := poller.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(machine.calls) != 0 {
		t.Errorf("advance calls = %v, repeat offender needs the raised target", machine.calls)
	}
}
