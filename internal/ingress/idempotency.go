package ingress

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// IdempotencyKey derives a stable dedup key for an event. The key hashes the
// tenant plus the identifying tuple, so replays of the same platform event
// always collide on the raw_events unique index. When the payload carried no
// timestamp the key falls back to the ingest hour, which still collapses
// rapid webhook retries of the same delivery.
func IdempotencyKey(tenantID string, ev ParsedEvent, receivedAt time.Time) string {
	ts := ev.EventAt
	if ts.IsZero() {
		ts = receivedAt.UTC().Truncate(time.Hour)
	}

	parts := []string{
		tenantID,
		string(ev.Type),
		ev.ExternalMailboxID,
		ev.ExternalCampaign,
		ts.UTC().Format(time.RFC3339),
		ev.ExternalMessageID,
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
