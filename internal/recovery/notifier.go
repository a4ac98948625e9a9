package recovery

import (
	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
)

// LogNotifier is the default Notifier: every phase change is at least a
// structured log line. Real delivery channels implement Notifier elsewhere.
type LogNotifier struct{}

// PhaseChanged logs a phase advance.
func (LogNotifier) PhaseChanged(t domain.StateTransition) {
	logger.Info("recovery phase changed",
		"entity_type", string(t.EntityType),
		"entity_id", t.EntityID,
		"tenant_id", t.TenantID,
		"from", string(t.FromPhase),
		"to", string(t.ToPhase),
		"reason", t.Reason,
		"score", t.Score,
	)
}

// RecoveryFailed logs a regression back to paused.
func (LogNotifier) RecoveryFailed(t domain.StateTransition) {
	logger.Warn("recovery failed, entity re-quarantined",
		"entity_type", string(t.EntityType),
		"entity_id", t.EntityID,
		"tenant_id", t.TenantID,
		"from", string(t.FromPhase),
		"reason", t.Reason,
		"score", t.Score,
	)
}
