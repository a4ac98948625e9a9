package ingress

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ignite/deliverability-engine/internal/domain"
)

// Field aliases, in resolution order. Platforms disagree on key names, so
// each logical field resolves through its alias list against a case-folded
// key index; the first present non-empty value wins.
var (
	typeAliases      = []string{"event_type", "type", "event", "event_name"}
	mailboxAliases   = []string{"mailbox_id", "account_id", "email_account_id", "sender_account_id", "eaccount"}
	campaignAliases  = []string{"campaign_id", "campaign"}
	messageAliases   = []string{"message_id", "email_id", "mail_id"}
	recipientAliases = []string{"recipient", "lead_email", "to_email", "email", "lead"}
	timestampAliases = []string{"timestamp", "event_at", "occurred_at", "created_at"}
)

// eventTypeNames maps lowercased platform spellings onto canonical types.
var eventTypeNames = map[string]domain.EventType{
	"bounce":         domain.EventBounce,
	"bounced":        domain.EventBounce,
	"hard_bounce":    domain.EventBounce,
	"email_bounced":  domain.EventBounce,
	"sent":           domain.EventSent,
	"send":           domain.EventSent,
	"email_sent":     domain.EventSent,
	"open":           domain.EventOpen,
	"opened":         domain.EventOpen,
	"email_opened":   domain.EventOpen,
	"click":          domain.EventClick,
	"clicked":        domain.EventClick,
	"link_clicked":   domain.EventClick,
	"reply":          domain.EventReply,
	"replied":        domain.EventReply,
	"email_replied":  domain.EventReply,
	"unsubscribe":    domain.EventUnsubscribe,
	"unsubscribed":   domain.EventUnsubscribe,
	"spam":           domain.EventSpam,
	"spam_complaint": domain.EventSpam,
	"complaint":      domain.EventSpam,
	"marked_as_spam": domain.EventSpam,
}

// ParsedEvent is a platform event after alias resolution, before persistence.
type ParsedEvent struct {
	Type              domain.EventType
	RawType           string
	ExternalMailboxID string
	ExternalCampaign  string
	ExternalMessageID string
	RecipientEmail    string
	EventAt           time.Time // zero when the payload carried no usable timestamp
	Payload           json.RawMessage
}

// ParseBody accepts either a single JSON object or a JSON array of objects
// and returns one ParsedEvent per object. A body that is neither is an error.
func ParseBody(body []byte) ([]ParsedEvent, error) {
	trimmed := strings.TrimLeftFunc(string(body), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if trimmed == "" {
		return nil, fmt.Errorf("empty body")
	}

	var raws []json.RawMessage
	if trimmed[0] == '[' {
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, fmt.Errorf("parse event array: %w", err)
		}
	} else {
		raws = []json.RawMessage{json.RawMessage(body)}
	}

	events := make([]ParsedEvent, 0, len(raws))
	for i, raw := range raws {
		ev, err := parseObject(raw)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		events = append(events, ev)
	}
	return events, nil
}

func parseObject(raw json.RawMessage) (ParsedEvent, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ParsedEvent{}, fmt.Errorf("not an object: %w", err)
	}

	// Case-folded key index. On duplicate folded keys the first seen wins.
	index := make(map[string]json.RawMessage, len(obj))
	for k, v := range obj {
		folded := strings.ToLower(k)
		if _, ok := index[folded]; !ok {
			index[folded] = v
		}
	}

	rawType := resolveString(index, typeAliases)
	ev := ParsedEvent{
		RawType:           rawType,
		Type:              normalizeType(rawType),
		ExternalMailboxID: resolveString(index, mailboxAliases),
		ExternalCampaign:  resolveString(index, campaignAliases),
		ExternalMessageID: resolveString(index, messageAliases),
		RecipientEmail:    strings.ToLower(resolveString(index, recipientAliases)),
		EventAt:           resolveTime(index, timestampAliases),
		Payload:           raw,
	}
	return ev, nil
}

func normalizeType(raw string) domain.EventType {
	if t, ok := eventTypeNames[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return t
	}
	return ""
}

func resolveString(index map[string]json.RawMessage, aliases []string) string {
	for _, a := range aliases {
		raw, ok := index[a]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil && s != "" {
			return s
		}
		// Some platforms send numeric ids.
		var n json.Number
		if err := json.Unmarshal(raw, &n); err == nil && n.String() != "" {
			return n.String()
		}
	}
	return ""
}

// resolveTime accepts RFC3339 strings and unix-second numbers.
func resolveTime(index map[string]json.RawMessage, aliases []string) time.Time {
	for _, a := range aliases {
		raw, ok := index[a]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				return t.UTC()
			}
			if secs, err := strconv.ParseInt(s, 10, 64); err == nil && secs > 0 {
				return time.Unix(secs, 0).UTC()
			}
			continue
		}
		var secs int64
		if err := json.Unmarshal(raw, &secs); err == nil && secs > 0 {
			return time.Unix(secs, 0).UTC()
		}
	}
	return time.Time{}
}
