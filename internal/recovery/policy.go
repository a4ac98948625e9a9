package recovery

import (
	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/domain"
)

// VolumeLimit returns the daily send ceiling for an entity in the given
// phase. Healthy entities are not limited by the engine (the platform's own
// schedule applies); paused entities send nothing.
func VolumeLimit(phase domain.RecoveryPhase, cfg config.WarmupConfig) int {
	switch phase {
	case domain.PhasePaused:
		return 0
	case domain.PhaseRestrictedSend:
		return cfg.RestrictedDailyVolume
	case domain.PhaseWarmRecovery:
		return cfg.WarmDailyVolume
	default:
		return -1 // unlimited
	}
}

// GraduationTarget holds the criteria an entity must meet to leave its
// current phase.
type GraduationTarget struct {
	CleanSends int64
	MinDays    int
}

// TargetFor returns the graduation target for a phase. Repeat offenders
// (more than one pause on record) get a raised restricted_send target.
func TargetFor(phase domain.RecoveryPhase, consecutivePauses int, cfg config.RecoveryConfig) (GraduationTarget, bool) {
	switch phase {
	case domain.PhaseRestrictedSend:
		target := cfg.RestrictedSendTarget
		if consecutivePauses > 1 {
			target = cfg.RestrictedSendRepeatTarget
		}
		return GraduationTarget{CleanSends: target}, true
	case domain.PhaseWarmRecovery:
		return GraduationTarget{
			CleanSends: cfg.WarmRecoveryTarget,
			MinDays:    cfg.WarmRecoveryMinDays,
		}, true
	}
	return GraduationTarget{}, false
}

// allowedTransitions enumerates the legal phase edges. Forward edges advance
// rehabilitation; any supervised phase regresses to paused, and healthy
// entities can be quarantined directly.
var allowedTransitions = map[domain.RecoveryPhase][]domain.RecoveryPhase{
	domain.PhaseHealthy:        {domain.PhasePaused},
	domain.PhasePaused:         {domain.PhaseRestrictedSend},
	domain.PhaseRestrictedSend: {domain.PhaseWarmRecovery, domain.PhasePaused},
	domain.PhaseWarmRecovery:   {domain.PhaseHealthy, domain.PhasePaused},
}

// legalTransition reports whether from→to is a permitted edge.
func legalTransition(from, to domain.RecoveryPhase) bool {
	for _, t := range allowedTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}
