package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ignite/deliverability-engine/internal/pkg/httpretry"
)

// InstantlyAdapter drives an Instantly-style cold-outreach platform over its
// JSON control API.
type InstantlyAdapter struct {
	baseURL string
	apiKey  string
	client  httpretry.HTTPDoer
}

// NewInstantlyAdapter creates the adapter. timeout bounds each HTTP attempt;
// retries are handled by the wrapped client.
func NewInstantlyAdapter(baseURL, apiKey string, timeout time.Duration) *InstantlyAdapter {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &InstantlyAdapter{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  httpretry.New(&http.Client{Timeout: timeout}, 2),
	}
}

// Name identifies the platform.
func (a *InstantlyAdapter) Name() string { return "instantly" }

// RemoveMailboxFromCampaigns detaches the sending account from every active
// campaign on the platform.
func (a *InstantlyAdapter) RemoveMailboxFromCampaigns(ctx context.Context, externalMailboxID string) error {
	path := fmt.Sprintf("/api/v2/accounts/%s/campaigns", externalMailboxID)
	return a.do(ctx, http.MethodDelete, path, nil)
}

// ConfigureWarmup applies warmup settings to the sending account.
func (a *InstantlyAdapter) ConfigureWarmup(ctx context.Context, externalMailboxID string, s WarmupSettings) error {
	path := fmt.Sprintf("/api/v2/accounts/%s/warmup", externalMailboxID)
	return a.do(ctx, http.MethodPost, path, s)
}

// SuppressRecipient adds the address to the workspace blocklist.
func (a *InstantlyAdapter) SuppressRecipient(ctx context.Context, email, reason string) error {
	body := map[string]string{"email": email, "reason": reason}
	return a.do(ctx, http.MethodPost, "/api/v2/blocklist", body)
}

func (a *InstantlyAdapter) do(ctx context.Context, method, path string, payload interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("instantly: marshal payload: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("instantly: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("instantly: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("instantly: %s %s returned %d: %s", method, path, resp.StatusCode, string(msg))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}
