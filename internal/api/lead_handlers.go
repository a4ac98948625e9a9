package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/leadgate"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
	"github.com/ignite/deliverability-engine/internal/repository"
)

type leadRequest struct {
	TenantID  string `json:"tenant_id"`
	Email     string `json:"email"`
	Persona   string `json:"persona"`
	Source    string `json:"source"`
	LeadScore int    `json:"lead_score"`
}

type leadResponse struct {
	ID             string                      `json:"id"`
	Classification domain.HealthClassification `json:"classification"`
	HealthScore    int                         `json:"health_score"`
	Status         domain.LeadStatus           `json:"status"`
	CampaignID     string                      `json:"campaign_id,omitempty"`
	Detail         string                      `json:"detail,omitempty"`
}

// IngestLead classifies, stores, and routes one inbound lead. The lead is
// durable once stored; a routing failure after that point is reported in
// the response body, not as an HTTP error.
func (h *Handlers) IngestLead(w http.ResponseWriter, r *http.Request) {
	var req leadRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "malformed request body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.TenantID == "" || req.Email == "" {
		respondError(w, http.StatusBadRequest, "tenant_id and email are required")
		return
	}

	res := leadgate.Classify(req.Email)
	lead := &domain.Lead{
		TenantID:             req.TenantID,
		Email:                req.Email,
		Persona:              req.Persona,
		Source:               req.Source,
		LeadScore:            req.LeadScore,
		HealthScore:          res.Score,
		Status:               domain.LeadHeld,
		HealthClassification: res.Classification,
		HealthChecks:         res.ChecksJSON(),
	}
	if res.Classification == domain.HealthRed {
		lead.Status = domain.LeadBlocked
		lead.BlockReason = strings.Join(res.Reasons, "; ")
	}

	id, err := h.leads.Create(r.Context(), lead)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			respondError(w, http.StatusConflict, "lead already exists for tenant")
			return
		}
		respondError(w, http.StatusInternalServerError, "lead storage failed")
		return
	}
	lead.ID = id

	resp := leadResponse{
		ID:             id,
		Classification: res.Classification,
		HealthScore:    res.Score,
		Status:         lead.Status,
	}
	if res.Classification == domain.HealthRed {
		resp.Detail = "health gate rejected the address, lead blocked"
		respondJSON(w, http.StatusCreated, resp)
		return
	}

	decision, err := h.resolver.Route(r.Context(), lead)
	switch {
	case err != nil:
		logger.Error("lead routing failed after store", "lead_id", id, "error", err)
		resp.Detail = "lead stored, routing deferred to re-evaluation"
	case decision.Routed:
		resp.Status = domain.LeadActive
		resp.CampaignID = decision.CampaignID
	default:
		resp.Detail = "no viable route, lead held"
	}
	respondJSON(w, http.StatusCreated, resp)
}

// GetLead returns one lead by id.
func (h *Handlers) GetLead(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	id := urlParam(r, "id")
	lead, err := h.leads.GetByID(r.Context(), tenantID, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			respondError(w, http.StatusNotFound, "lead not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "lead lookup failed")
		return
	}
	respondJSON(w, http.StatusOK, lead)
}
