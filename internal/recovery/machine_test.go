package recovery

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
)

type fakeStore struct {
	applied     bool
	err         error
	lastFrom    domain.RecoveryPhase
	lastTo      domain.RecoveryPhase
	lastDelta   int
	transitions int
}

func (f *fakeStore) GetByID(ctx context.Context, tenantID, id string) (*domain.Mailbox, error) {
	return &domain.Mailbox{ID: id, TenantID: tenantID}, nil
}

func (f *fakeStore) TransitionPhase(ctx context.Context, tenantID, id string, from, to domain.RecoveryPhase, scoreDelta int) (bool, error) {
	f.transitions++
	f.lastFrom, f.lastTo, f.lastDelta = from, to, scoreDelta
	return f.applied, f.err
}

type fakeDomainStore struct{ fakeStore }

func (f *fakeDomainStore) GetByID(ctx context.Context, tenantID, id string) (*domain.SendingDomain, error) {
	return &domain.SendingDomain{ID: id, TenantID: tenantID}, nil
}

type fakeLog struct {
	inserted []domain.StateTransition
	err      error
}

func (f *fakeLog) Insert(ctx context.Context, t *domain.StateTransition) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.inserted = append(f.inserted, *t)
	return "t-1", nil
}

type fakeWarmup struct {
	calls []domain.RecoveryPhase
	err   error
}

func (f *fakeWarmup) Configure(ctx context.Context, entityType domain.EntityType, tenantID, entityID string, phase domain.RecoveryPhase) error {
	f.calls = append(f.calls, phase)
	return f.err
}

type fakeNotifier struct {
	changed []domain.StateTransition
	failed  []domain.StateTransition
}

func (f *fakeNotifier) PhaseChanged(t domain.StateTransition)   { f.changed = append(f.changed, t) }
func (f *fakeNotifier) RecoveryFailed(t domain.StateTransition) { f.failed = append(f.failed, t) }

func testConfig() config.RecoveryConfig {
	return config.RecoveryConfig{
		RestrictedSendTarget:       50,
		RestrictedSendRepeatTarget: 150,
		WarmRecoveryTarget:         300,
		WarmRecoveryMinDays:        7,
		RelapsePenalty:             10,
		GraduationReward:           5,
	}
}

func newTestMachine(store *fakeStore) (*Machine, *fakeLog, *fakeWarmup, *fakeNotifier) {
	tlog := &fakeLog{}
	wu := &fakeWarmup{}
	n := &fakeNotifier{}
	m := NewMachine(store, &fakeDomainStore{}, tlog, wu, n, testConfig())
	return m, tlog, wu, n
}

func TestTransitionPhaseAdvances(t *testing.T) {
	store := &fakeStore{applied: true}
	m, tlog, wu, n := newTestMachine(store)

	err := m.TransitionPhase(context.Background(), domain.EntityMailbox, "mb-1", "t-1",
		domain.PhasePaused, domain.PhaseRestrictedSend, "operator resume", 70)
	require.NoError(t, err)

	assert.Equal(t, domain.PhasePaused, store.lastFrom)
	assert.Equal(t, domain.PhaseRestrictedSend, store.lastTo)
	assert.Equal(t, 0, store.lastDelta)

	require.Len(t, tlog.inserted, 1)
	assert.Equal(t, "operator resume", tlog.inserted[0].Reason)

	require.Len(t, wu.calls, 1)
	assert.Equal(t, domain.PhaseRestrictedSend, wu.calls[0])

	assert.Len(t, n.changed, 1)
	assert.Empty(t, n.failed)
}

func TestTransitionPhaseStale(t *testing.T) {
	store := &fakeStore{applied: false}
	m, tlog, _, n := newTestMachine(store)

	err := m.TransitionPhase(context.Background(), domain.EntityMailbox, "mb-1", "t-1",
		domain.PhaseRestrictedSend, domain.PhaseWarmRecovery, "graduation", 70)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrStalePhase))

	// A rejected transition leaves no audit row and no notification.
	assert.Empty(t, tlog.inserted)
	assert.Empty(t, n.changed)
}

func TestTransitionPhaseIllegalEdge(t *testing.T) {
	store := &fakeStore{applied: true}
	m, _, _, _ := newTestMachine(store)

	// paused cannot jump straight to healthy.
	err := m.TransitionPhase(context.Background(), domain.EntityMailbox, "mb-1", "t-1",
		domain.PhasePaused, domain.PhaseHealthy, "", 70)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	assert.Zero(t, store.transitions)
}

func TestRegressionNotifiesFailure(t *testing.T) {
	store := &fakeStore{applied: true}
	m, _, _, n := newTestMachine(store)

	mb := &domain.Mailbox{ID: "mb-1", TenantID: "t-1", RecoveryPhase: domain.PhaseWarmRecovery, ResilienceScore: 60}
	err := m.Regress(context.Background(), mb, "bounce during warm_recovery")
	require.NoError(t, err)

	assert.Equal(t, -10, store.lastDelta)
	require.Len(t, n.failed, 1)
	assert.Equal(t, domain.PhasePaused, n.failed[0].ToPhase)
	assert.Empty(t, n.changed)
}

func TestGraduationRewardsScore(t *testing.T) {
	store := &fakeStore{applied: true}
	m, _, wu, _ := newTestMachine(store)

	err := m.Advance(context.Background(), domain.EntityMailbox, "mb-1", "t-1",
		domain.PhaseWarmRecovery, "criteria met", 80)
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseHealthy, store.lastTo)
	assert.Equal(t, 5, store.lastDelta)
	// Healthy is not a supervised phase; no warmup reconfiguration fires
	// through the transition itself.
	assert.Empty(t, wu.calls)
}

func TestWarmupFailureDoesNotRollBack(t *testing.T) {
	var logs bytes.Buffer
	logger.SetOutput(&logs)
	defer logger.SetOutput(os.Stderr)

	store := &fakeStore{applied: true}
	tlog := &fakeLog{}
	wu := &fakeWarmup{err: errors.New("platform down")}
	m := NewMachine(store, &fakeDomainStore{}, tlog, wu, &fakeNotifier{}, testConfig())

	err := m.TransitionPhase(context.Background(), domain.EntityMailbox, "mb-1", "t-1",
		domain.PhasePaused, domain.PhaseRestrictedSend, "resume", 70)
	require.NoError(t, err)
	assert.Len(t, tlog.inserted, 1)

	// The transition stands, but the configure failure must leave a trace.
	assert.Contains(t, logs.String(), "warmup configuration failed")
	assert.Contains(t, logs.String(), "platform down")
	assert.Contains(t, logs.String(), "mb-1")
}

func TestAuditQuarantine(t *testing.T) {
	store := &fakeStore{applied: true}
	m, tlog, _, n := newTestMachine(store)

	err := m.AuditQuarantine(context.Background(), domain.EntityMailbox, "mb-1", "t-1",
		domain.PhaseHealthy, "hard bounce rate 4.00% over 100 sends", 85)
	require.NoError(t, err)

	require.Len(t, tlog.inserted, 1)
	assert.Equal(t, domain.PhaseHealthy, tlog.inserted[0].FromPhase)
	assert.Equal(t, domain.PhasePaused, tlog.inserted[0].ToPhase)
	assert.Len(t, n.changed, 1)
	// No repo write happens here; the monitor already applied the pause.
	assert.Zero(t, store.transitions)
}

func TestTargetForRepeatOffender(t *testing.T) {
	cfg := testConfig()

	first, ok := TargetFor(domain.PhaseRestrictedSend, 1, cfg)
	require.True(t, ok)
	assert.EqualValues(t, 50, first.CleanSends)

	repeat, ok := TargetFor(domain.PhaseRestrictedSend, 2, cfg)
	require.True(t, ok)
	assert.EqualValues(t, 150, repeat.CleanSends)

	warm, ok := TargetFor(domain.PhaseWarmRecovery, 3, cfg)
	require.True(t, ok)
	assert.EqualValues(t, 300, warm.CleanSends)
	assert.Equal(t, 7, warm.MinDays)

	_, ok = TargetFor(domain.PhaseHealthy, 0, cfg)
	assert.False(t, ok)
}

func TestVolumeLimits(t *testing.T) {
	cfg := config.WarmupConfig{RestrictedDailyVolume: 10, WarmDailyVolume: 40}
	assert.Equal(t, 0, VolumeLimit(domain.PhasePaused, cfg))
	assert.Equal(t, 10, VolumeLimit(domain.PhaseRestrictedSend, cfg))
	assert.Equal(t, 40, VolumeLimit(domain.PhaseWarmRecovery, cfg))
	assert.Equal(t, -1, VolumeLimit(domain.PhaseHealthy, cfg))
}
