package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/recovery"
	"github.com/ignite/deliverability-engine/internal/repository"
)

// recoveryView is the per-entity recovery read model.
type recoveryView struct {
	EntityType          domain.EntityType    `json:"entity_type"`
	EntityID            string               `json:"entity_id"`
	RecoveryPhase       domain.RecoveryPhase `json:"recovery_phase"`
	HealingOrigin       string               `json:"healing_origin,omitempty"`
	PhaseEnteredAt      *time.Time           `json:"phase_entered_at"`
	CleanSendsSincePhase int64               `json:"clean_sends_since_phase"`
	ResilienceScore     int                  `json:"resilience_score"`
	RelapseCount        int                  `json:"relapse_count"`
	ConsecutivePauses   int                  `json:"consecutive_pauses"`
	TrendState          domain.TrendState    `json:"trend_state"`
	CooldownUntil       *time.Time           `json:"cooldown_until"`
	VolumeLimit         int                  `json:"volume_limit"` // -1 means unlimited
}

// GetMailboxRecovery serves the recovery read model for one mailbox.
func (h *Handlers) GetMailboxRecovery(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	mb, err := h.mailboxes.GetByID(r.Context(), tenantID, urlParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "mailbox not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "mailbox lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, recoveryView{
		EntityType:           domain.EntityMailbox,
		EntityID:             mb.ID,
		RecoveryPhase:        mb.RecoveryPhase,
		HealingOrigin:        mb.HealingOrigin,
		PhaseEnteredAt:       mb.PhaseEnteredAt,
		CleanSendsSincePhase: mb.PhaseCleanSends,
		ResilienceScore:      mb.ResilienceScore,
		RelapseCount:         mb.RelapseCount,
		ConsecutivePauses:    mb.ConsecutivePauses,
		TrendState:           domain.Trend(mb.PhaseCleanSends, mb.PhaseBounces),
		CooldownUntil:        mb.CooldownUntil,
		VolumeLimit:          recovery.VolumeLimit(mb.RecoveryPhase, h.warmupCfg),
	})
}

// GetDomainRecovery serves the recovery read model for one sending domain.
func (h *Handlers) GetDomainRecovery(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	d, err := h.domains.GetByID(r.Context(), tenantID, urlParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "domain not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "domain lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, recoveryView{
		EntityType:           domain.EntityDomain,
		EntityID:             d.ID,
		RecoveryPhase:        d.RecoveryPhase,
		HealingOrigin:        d.HealingOrigin,
		PhaseEnteredAt:       d.PhaseEnteredAt,
		CleanSendsSincePhase: d.PhaseCleanSends,
		ResilienceScore:      d.ResilienceScore,
		RelapseCount:         d.RelapseCount,
		ConsecutivePauses:    d.ConsecutivePauses,
		TrendState:           domain.Trend(d.PhaseCleanSends, d.PhaseBounces),
		CooldownUntil:        d.CooldownUntil,
		VolumeLimit:          recovery.VolumeLimit(d.RecoveryPhase, h.warmupCfg),
	})
}

// ListTransitions returns the recovery audit trail for an entity.
func (h *Handlers) ListTransitions(w http.ResponseWriter, r *http.Request) {
	entityType := domain.EntityType(urlParam(r, "entityType"))
	if entityType != domain.EntityMailbox && entityType != domain.EntityDomain {
		respondError(w, http.StatusBadRequest, "entity type must be mailbox or domain")
		return
	}
	transitions, err := h.transitions.ListForEntity(r.Context(), entityType, urlParam(r, "id"), 100)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "transition history lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"transitions": transitions})
}

type resumeRequest struct {
	TenantID string `json:"tenant_id"`
	Force    bool   `json:"force"` // override an active cooldown
	Reason   string `json:"reason"`
}

// ResumeMailbox is the operator action that moves a paused mailbox into
// restricted_send. The cooldown is an advisory gate here: it rejects the
// request unless the operator forces it.
func (h *Handlers) ResumeMailbox(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	mb, err := h.mailboxes.GetByID(r.Context(), req.TenantID, urlParam(r, "id"))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "mailbox not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "mailbox lookup failed")
		return
	}
	if mb.RecoveryPhase != domain.PhasePaused {
		respondError(w, http.StatusConflict, fmt.Sprintf("mailbox is %s, only paused mailboxes resume", mb.RecoveryPhase))
		return
	}
	if mb.CoolingDown(time.Now()) && !req.Force {
		respondError(w, http.StatusConflict, fmt.Sprintf("cooldown active until %s", mb.CooldownUntil.Format(time.RFC3339)))
		return
	}

	reason := req.Reason
	if reason == "" {
		reason = "operator resume"
	}
	err = h.machine.TransitionPhase(r.Context(), domain.EntityMailbox, mb.ID, req.TenantID,
		domain.PhasePaused, domain.PhaseRestrictedSend, reason, mb.ResilienceScore)
	if err != nil {
		if errors.Is(err, recovery.ErrStalePhase) {
			respondError(w, http.StatusConflict, "mailbox phase changed concurrently, retry")
			return
		}
		respondError(w, http.StatusInternalServerError, "phase transition failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "resumed", "phase": string(domain.PhaseRestrictedSend)})
}
