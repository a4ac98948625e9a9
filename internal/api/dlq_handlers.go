package api

import (
	"net/http"
	"strconv"
)

// ListDeadLetters pages through a tenant's dead letters.
func (h *Handlers) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	limit, offset := pageParams(r, 50)
	letters, err := h.deadLetters.List(r.Context(), tenantID, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "dead letter listing failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"dead_letters": letters, "count": len(letters)})
}

// ReplayDeadLetter re-dispatches one buried event.
func (h *Handlers) ReplayDeadLetter(w http.ResponseWriter, r *http.Request) {
	if err := h.dispatcher.Replay(r.Context(), h.deadLetters, urlParam(r, "id")); err != nil {
		respondError(w, http.StatusInternalServerError, "replay failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "replayed"})
}

// ReplayAllDeadLetters re-dispatches every dead letter for a tenant.
func (h *Handlers) ReplayAllDeadLetters(w http.ResponseWriter, r *http.Request) {
	tenantID := r.URL.Query().Get("tenant_id")
	if tenantID == "" {
		respondError(w, http.StatusBadRequest, "tenant_id is required")
		return
	}
	replayed, err := h.dispatcher.ReplayAll(r.Context(), h.deadLetters, tenantID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "bulk replay failed")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"replayed": replayed})
}

func pageParams(r *http.Request, defaultLimit int) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 500 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
