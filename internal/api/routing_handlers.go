package api

import (
	"errors"
	"net/http"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/repository"
)

type ruleRequest struct {
	TenantID         string `json:"tenant_id"`
	Persona          string `json:"persona"`
	MinScore         int    `json:"min_score"`
	TargetCampaignID string `json:"target_campaign_id"`
	Priority         int    `json:"priority"`
}

// CreateRoutingRule adds one routing rule for a tenant.
func (h *Handlers) CreateRoutingRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.TenantID == "" || req.Persona == "" || req.TargetCampaignID == "" {
		respondError(w, http.StatusBadRequest, "tenant_id, persona, and target_campaign_id are required")
		return
	}

	rule := &domain.RoutingRule{
		TenantID:         req.TenantID,
		Persona:          req.Persona,
		MinScore:         req.MinScore,
		TargetCampaignID: req.TargetCampaignID,
		Priority:         req.Priority,
	}
	id, err := h.rules.Create(r.Context(), rule)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "rule creation failed")
		return
	}
	rule.ID = id
	respondJSON(w, http.StatusCreated, rule)
}

// ListRoutingRules returns a tenant's rules in evaluation order.
func (h *Handlers) ListRoutingRules(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	rules, err := h.rules.ListByTenant(r.Context(), tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "rule listing failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"rules": rules})
}

// UpdateRoutingRule replaces one rule's matching fields.
func (h *Handlers) UpdateRoutingRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	rule := &domain.RoutingRule{
		ID:               urlParam(r, "id"),
		TenantID:         req.TenantID,
		Persona:          req.Persona,
		MinScore:         req.MinScore,
		TargetCampaignID: req.TargetCampaignID,
		Priority:         req.Priority,
	}
	if err := h.rules.Update(r.Context(), rule); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "rule not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "rule update failed")
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// DeleteRoutingRule removes one rule.
func (h *Handlers) DeleteRoutingRule(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if err := h.rules.Delete(r.Context(), tenantID, urlParam(r, "id")); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "rule not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "rule deletion failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
