package ingress

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/deliverability-engine/internal/domain"
	"github.com/ignite/deliverability-engine/internal/repository"
)

type fakeTenants struct{ tenant *domain.Tenant }

func (f *fakeTenants) Get(ctx context.Context, id string) (*domain.Tenant, error) {
	if f.tenant == nil || f.tenant.ID != id {
		return nil, repository.ErrNotFound
	}
	return f.tenant, nil
}

type fakeEvents struct {
	inserted []domain.RawEvent
	keys     map[string]bool
}

func (f *fakeEvents) Insert(ctx context.Context, e *domain.RawEvent) (string, error) {
	if f.keys == nil {
		f.keys = map[string]bool{}
	}
	if f.keys[e.IdempotencyKey] {
		return "", repository.ErrDuplicate
	}
	f.keys[e.IdempotencyKey] = true
	e.ID = "ev-1"
	f.inserted = append(f.inserted, *e)
	return e.ID, nil
}

type fakeDispatcher struct {
	dispatched []string
	queued     bool
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, eventID string) (bool, error) {
	f.dispatched = append(f.dispatched, eventID)
	return f.queued, nil
}

const testSecret = "wh-secret"

func signedService(events *fakeEvents, disp *fakeDispatcher, production bool) *Service {
	tenants := &fakeTenants{tenant: &domain.Tenant{ID: "t-1", WebhookSecret: testSecret}}
	return NewService(tenants, events, disp, production)
}

func TestAcceptVerifiesSignature(t *testing.T) {
	events := &fakeEvents{}
	svc := signedService(events, &fakeDispatcher{queued: true}, true)

	body := []byte(`{"event_type":"bounce","account_id":"ext-1","timestamp":"2026-08-01T10:00:00Z"}`)

	_, err := svc.Accept(context.Background(), "t-1", body, "deadbeef")
	assert.ErrorIs(t, err, ErrBadSignature)

	_, err = svc.Accept(context.Background(), "t-1", body, "")
	assert.ErrorIs(t, err, ErrBadSignature)

	res, err := svc.Accept(context.Background(), "t-1", body, SignBody(testSecret, body))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
}

func TestAcceptSignaturePrefixAndCase(t *testing.T) {
	events := &fakeEvents{}
	svc := signedService(events, &fakeDispatcher{queued: true}, true)

	body := []byte(`{"event_type":"sent","account_id":"ext-1","timestamp":"2026-08-01T10:00:00Z"}`)
	sig := "sha256=" + SignBody(testSecret, body)
	res, err := svc.Accept(context.Background(), "t-1", body, sig)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
}

func TestAcceptUnsignedTenant(t *testing.T) {
	tenants := &fakeTenants{tenant: &domain.Tenant{ID: "t-1"}}
	events := &fakeEvents{}
	body := []byte(`{"event_type":"sent","account_id":"ext-1","timestamp":"2026-08-01T10:00:00Z"}`)

	// Production rejects tenants without a secret outright.
	prod := NewService(tenants, events, &fakeDispatcher{queued: true}, true)
	_, err := prod.Accept(context.Background(), "t-1", body, "")
	assert.ErrorIs(t, err, ErrBadSignature)

	// Development accepts with a warning.
	dev := NewService(tenants, events, &fakeDispatcher{queued: true}, false)
	res, err := dev.Accept(context.Background(), "t-1", body, "")
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
}

func TestAcceptDeduplicates(t *testing.T) {
	events := &fakeEvents{}
	disp := &fakeDispatcher{queued: true}
	svc := signedService(events, disp, false)

	body := []byte(`{"event_type":"bounce","account_id":"ext-1","campaign_id":"c-9","message_id":"m-7","timestamp":"2026-08-01T10:00:00Z"}`)
	sig := SignBody(testSecret, body)

	first, err := svc.Accept(context.Background(), "t-1", body, sig)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Accepted)

	second, err := svc.Accept(context.Background(), "t-1", body, sig)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Accepted)
	assert.Equal(t, 1, second.Duplicates)

	assert.Len(t, disp.dispatched, 1)
}

func TestAcceptBatch(t *testing.T) {
	events := &fakeEvents{}
	svc := signedService(events, &fakeDispatcher{queued: true}, false)

	body := []byte(`[
		{"event_type":"bounce","account_id":"ext-1","timestamp":"2026-08-01T10:00:00Z"},
		{"event_type":"opened","account_id":"ext-1","timestamp":"2026-08-01T10:01:00Z"},
		{"event_type":"carrier_pigeon","account_id":"ext-1","timestamp":"2026-08-01T10:02:00Z"}
	]`)
	res, err := svc.Accept(context.Background(), "t-1", body, SignBody(testSecret, body))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Accepted)
	assert.Equal(t, 1, res.Ignored)

	require.Len(t, events.inserted, 2)
	assert.Equal(t, domain.EventBounce, events.inserted[0].Type)
	assert.Equal(t, domain.EventOpen, events.inserted[1].Type)
}

func TestAcceptMalformedBodyAcks(t *testing.T) {
	events := &fakeEvents{}
	svc := signedService(events, &fakeDispatcher{queued: true}, false)

	body := []byte(`this is not json`)
	res, err := svc.Accept(context.Background(), "t-1", body, SignBody(testSecret, body))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Ignored)
	assert.Empty(t, events.inserted)
}

func TestAcceptInlineFallbackReported(t *testing.T) {
	events := &fakeEvents{}
	svc := signedService(events, &fakeDispatcher{queued: false}, false)

	body := []byte(`{"event_type":"sent","account_id":"ext-1","timestamp":"2026-08-01T10:00:00Z"}`)
	res, err := svc.Accept(context.Background(), "t-1", body, SignBody(testSecret, body))
	require.NoError(t, err)
	assert.False(t, res.Queued)
}

func TestParseBodyAliases(t *testing.T) {
	body := []byte(`{"Event":"email_bounced","eaccount":"acct-3","campaign":"c-2","lead":"Person@Example.IO","timestamp":1754042400}`)
	events, err := ParseBody(body)
	require.NoError(t, err)
	require.Len(t, events, 1)

	ev := events[0]
	assert.Equal(t, domain.EventBounce, ev.Type)
	assert.Equal(t, "acct-3", ev.ExternalMailboxID)
	assert.Equal(t, "c-2", ev.ExternalCampaign)
	assert.Equal(t, "person@example.io", ev.RecipientEmail)
	assert.Equal(t, time.Unix(1754042400, 0).UTC(), ev.EventAt)
}

func TestParseBodyAliasOrder(t *testing.T) {
	// event_type outranks type when both are present.
	body := []byte(`{"event_type":"bounce","type":"sent","account_id":"a"}`)
	events, err := ParseBody(body)
	require.NoError(t, err)
	assert.Equal(t, domain.EventBounce, events[0].Type)
}

func TestParseBodyNumericID(t *testing.T) {
	body := []byte(`{"event_type":"sent","campaign_id":12345}`)
	events, err := ParseBody(body)
	require.NoError(t, err)
	assert.Equal(t, "12345", events[0].ExternalCampaign)
}

func TestIdempotencyKeyDeterministic(t *testing.T) {
	ev := ParsedEvent{
		Type:              domain.EventBounce,
		ExternalMailboxID: "ext-1",
		ExternalCampaign:  "c-1",
		ExternalMessageID: "m-1",
		EventAt:           time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
	now := time.Now()
	a := IdempotencyKey("t-1", ev, now)
	b := IdempotencyKey("t-1", ev, now.Add(3*time.Hour))
	assert.Equal(t, a, b, "key must not depend on receipt time when the event carries a timestamp")

	assert.NotEqual(t, a, IdempotencyKey("t-2", ev, now), "different tenants never collide")

	other := ev
	other.ExternalMessageID = "m-2"
	assert.NotEqual(t, a, IdempotencyKey("t-1", other, now))
}

func TestIdempotencyKeyIngestHourFallback(t *testing.T) {
	ev := ParsedEvent{Type: domain.EventSent, ExternalMailboxID: "ext-1"}
	base := time.Date(2026, 8, 1, 10, 5, 0, 0, time.UTC)

	sameHour := IdempotencyKey("t-1", ev, base.Add(30*time.Minute))
	assert.Equal(t, IdempotencyKey("t-1", ev, base), sameHour)

	nextHour := IdempotencyKey("t-1", ev, base.Add(2*time.Hour))
	assert.NotEqual(t, IdempotencyKey("t-1", ev, base), nextHour)
}

func TestVerifySignatureConstantRules(t *testing.T) {
	body := []byte(`{}`)
	assert.False(t, VerifySignature("", body, SignBody("", body)), "empty secret never verifies")
	assert.False(t, VerifySignature("s", body, ""))
	assert.True(t, VerifySignature("s", body, SignBody("s", body)))
}

func TestParsedPayloadPreserved(t *testing.T) {
	body := []byte(`{"event_type":"sent","account_id":"a","extra":{"nested":true}}`)
	events, err := ParseBody(body)
	require.NoError(t, err)

	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(events[0].Payload, &payload))
	assert.Contains(t, payload, "extra")
}
