package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ignite/deliverability-engine/internal/ingress"
	"github.com/ignite/deliverability-engine/internal/pkg/logger"
)

const defaultMaxWebhookBody = 1 << 20 // 1 MiB

// ReceiveWebhook is the platform-facing event endpoint. Policy: a failed
// signature check is 401; everything after that gate acks with 200, because
// platform retries cannot fix a payload we already rejected or stored.
// Signature header and body cap come from the ingress config.
func (h *Handlers) ReceiveWebhook(w http.ResponseWriter, r *http.Request) {
	tenantID := chi.URLParam(r, "tenantID")

	maxBody := h.ingressCfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxWebhookBody
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
	if err != nil {
		respondError(w, http.StatusUnauthorized, "unreadable body")
		return
	}
	defer r.Body.Close()

	sigHeader := h.ingressCfg.SignatureHeader
	if sigHeader == "" {
		sigHeader = "X-Webhook-Signature"
	}
	sig := r.Header.Get(sigHeader)
	result, err := h.ingress.Accept(r.Context(), tenantID, body, sig)
	if err != nil {
		if errors.Is(err, ingress.ErrBadSignature) {
			respondError(w, http.StatusUnauthorized, "signature verification failed")
			return
		}
		// Storage failure: a retry can genuinely help here.
		logger.Error("webhook ingest failed", "tenant_id", tenantID, "error", err)
		respondError(w, http.StatusInternalServerError, "ingest failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}
