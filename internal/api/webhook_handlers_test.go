package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/deliverability-engine/internal/config"
	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/ingress"
)

type stubTenants struct{ secret string }

func (s stubTenants) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	return &domain.Tenant{ID: id, WebhookSecret: s.secret}, nil
}

type stubEvents struct{ inserted int }

func (s *stubEvents) Insert(ctx context.Context, e *domain.RawEvent) (string, error) {
	s.inserted++
	return "ev-1", nil
}

type stubDispatcher struct{}

func (stubDispatcher) Dispatch(ctx context.Context, eventID string) (bool, error) {
	return true, nil
}

func webhookHandlers(t *testing.T, secret string, ingressCfg config.IngressConfig) *Handlers {
	t.Helper()
	ing := ingress.NewService(stubTenants{secret: secret}, &stubEvents{}, stubDispatcher{}, true)
	return NewHandlers(ing, nil, nil, nil, nil, nil, nil, nil, nil, nil, nil,
		ingressCfg, config.WarmupConfig{})
}

func postWebhook(h *Handlers, header, sig string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/webhooks/t-1/events", bytes.NewReader(body))
	if header != "" {
		req.Header.Set(header, sig)
	}
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("tenantID", "t-1")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	rec := httptest.NewRecorder()
	h.ReceiveWebhook(rec, req)
	return rec
}

func TestReceiveWebhookHonorsConfiguredSignatureHeader(t *testing.T) {
	h := webhookHandlers(t, "s3cret", config.IngressConfig{
		SignatureHeader: "X-Hub-Signature-256",
		MaxBodyBytes:    1 << 20,
	})

	body := []byte(`{"event_type":"email_bounced","eaccount":"ext-1","message_id":"m-1"}`)
	sig := ingress.SignBody("s3cret", body)

	rec := postWebhook(h, "X-Hub-Signature-256", sig, body)
	require.Equal(t, http.StatusOK, rec.Code)

	// A valid signature in the wrong header never reaches verification.
	rec = postWebhook(h, "X-Webhook-Signature", sig, body)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestReceiveWebhookDefaultsSignatureHeader(t *testing.T) {
	h := webhookHandlers(t, "s3cret", config.IngressConfig{})

	body := []byte(`{"event_type":"email_bounced","eaccount":"ext-1","message_id":"m-1"}`)
	rec := postWebhook(h, "X-Webhook-Signature", ingress.SignBody("s3cret", body), body)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReceiveWebhookEnforcesConfiguredBodyCap(t *testing.T) {
	h := webhookHandlers(t, "s3cret", config.IngressConfig{
		SignatureHeader: "X-Webhook-Signature",
		MaxBodyBytes:    64,
	})

	// The signature covers the full body; truncation at the cap makes it
	// fail verification, so oversized deliveries are rejected.
	big := []byte(`{"event_type":"email_bounced","padding":"` + strings.Repeat("x", 200) + `"}`)
	rec := postWebhook(h, "X-Webhook-Signature", ingress.SignBody("s3cret", big), big)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	small := []byte(`{"event_type":"email_bounced"}`)
	rec = postWebhook(h, "X-Webhook-Signature", ingress.SignBody("s3cret", small), small)
	assert.Equal(t, http.StatusOK, rec.Code)
}
