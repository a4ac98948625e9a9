// Package leadgate scores a lead's email address before it is allowed near
// a campaign. Classification is pure and deterministic: the same address
// always yields the same score, which keeps re-evaluation upgrade-only
// decisions stable. No network lookups happen here.
package leadgate

import (
	"encoding/json"
	"net"
	"regexp"
	"strings"

	"github.com/ignite/deliverability-engine/internal/domain"
)

// Scoring starts from a perfect 100 and subtracts per failed check. The
// disposable penalty alone is large enough to force red.
const (
	maxScore          = 100
	disposablePenalty = 80
	rolePenalty       = 35
	suspiciousTLDCost = 25
	greenThreshold    = 80
	yellowThreshold   = 50
)

// localPartRe is deliberately stricter than RFC 5321: quoted local parts and
// exotic atoms are near-certain traps in cold outreach lists.
var localPartRe = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._%+\-]*$`)

var disposableDomains = map[string]struct{}{
	"mailinator.com":    {},
	"guerrillamail.com": {},
	"10minutemail.com":  {},
	"tempmail.com":      {},
	"temp-mail.org":     {},
	"throwawaymail.com": {},
	"yopmail.com":       {},
	"sharklasers.com":   {},
	"getnada.com":       {},
	"maildrop.cc":       {},
	"trashmail.com":     {},
	"fakeinbox.com":     {},
	"dispostable.com":   {},
	"mintemail.com":     {},
	"spamgourmet.com":   {},
}

var testDomains = map[string]struct{}{
	"example.com": {},
	"example.org": {},
	"example.net": {},
	"test.com":    {},
	"localhost":   {},
	"invalid":     {},
}

var roleLocalParts = map[string]struct{}{
	"admin":         {},
	"administrator": {},
	"info":          {},
	"support":       {},
	"sales":         {},
	"contact":       {},
	"help":          {},
	"hello":         {},
	"office":        {},
	"billing":       {},
	"abuse":         {},
	"postmaster":    {},
	"webmaster":     {},
	"noreply":       {},
	"no-reply":      {},
	"marketing":     {},
	"hr":            {},
	"jobs":          {},
	"careers":       {},
	"team":          {},
}

var suspiciousTLDs = map[string]struct{}{
	"xyz":    {},
	"top":    {},
	"click":  {},
	"link":   {},
	"work":   {},
	"loan":   {},
	"win":    {},
	"bid":    {},
	"stream": {},
	"gq":     {},
	"cf":     {},
	"ml":     {},
	"tk":     {},
}

// Checks records the outcome of each individual gate check.
type Checks struct {
	SyntaxValid   bool `json:"syntax_valid"`
	NotIPLiteral  bool `json:"not_ip_literal"`
	NotTestDomain bool `json:"not_test_domain"`
	NotDisposable bool `json:"not_disposable"`
	NotRole       bool `json:"not_role"`
	TLDTrusted    bool `json:"tld_trusted"`
}

// Result is a full classification of one email address.
type Result struct {
	Classification domain.HealthClassification `json:"classification"`
	Score          int                         `json:"score"`
	Checks         Checks                      `json:"checks"`
	Reasons        []string                    `json:"reasons,omitempty"`
}

// ChecksJSON serializes the check outcomes for persistence on the lead.
func (r Result) ChecksJSON() json.RawMessage {
	b, _ := json.Marshal(r.Checks)
	return b
}

// Classify scores an email address. Structural failures (bad syntax, IP
// literal domain, test domain) are hard stops at score zero; everything
// else subtracts from 100 and the total maps onto green/yellow/red.
func Classify(email string) Result {
	email = strings.ToLower(strings.TrimSpace(email))
	res := Result{Checks: Checks{
		NotIPLiteral:  true,
		NotTestDomain: true,
		NotDisposable: true,
		NotRole:       true,
		TLDTrusted:    true,
	}}

	local, dom, ok := splitAddress(email)
	if !ok {
		res.Checks = Checks{}
		res.Reasons = append(res.Reasons, "invalid email syntax")
		return redZero(res)
	}
	res.Checks.SyntaxValid = true

	if isIPLiteral(dom) {
		res.Checks.NotIPLiteral = false
		res.Reasons = append(res.Reasons, "domain is an IP literal")
		return redZero(res)
	}
	if _, bad := testDomains[dom]; bad {
		res.Checks.NotTestDomain = false
		res.Reasons = append(res.Reasons, "test or placeholder domain")
		return redZero(res)
	}

	score := maxScore
	if _, bad := disposableDomains[dom]; bad {
		res.Checks.NotDisposable = false
		res.Reasons = append(res.Reasons, "disposable email provider")
		score -= disposablePenalty
	}
	if _, bad := roleLocalParts[local]; bad {
		res.Checks.NotRole = false
		res.Reasons = append(res.Reasons, "role-based local part")
		score -= rolePenalty
	}
	if tld := lastLabel(dom); tld != "" {
		if _, bad := suspiciousTLDs[tld]; bad {
			res.Checks.TLDTrusted = false
			res.Reasons = append(res.Reasons, "suspicious top-level domain")
			score -= suspiciousTLDCost
		}
	}
	if score < 0 {
		score = 0
	}

	res.Score = score
	switch {
	case !res.Checks.NotDisposable:
		res.Classification = domain.HealthRed
	case score >= greenThreshold:
		res.Classification = domain.HealthGreen
	case score >= yellowThreshold:
		res.Classification = domain.HealthYellow
	default:
		res.Classification = domain.HealthRed
	}
	return res
}

func redZero(res Result) Result {
	res.Score = 0
	res.Classification = domain.HealthRed
	return res
}

// splitAddress validates and splits an address into local part and domain.
func splitAddress(email string) (local, dom string, ok bool) {
	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return "", "", false
	}
	local, dom = email[:at], email[at+1:]
	if len(local) > 64 || len(dom) > 253 {
		return "", "", false
	}
	if !localPartRe.MatchString(local) {
		return "", "", false
	}
	if strings.Contains(local, "..") {
		return "", "", false
	}
	if isIPLiteral(dom) {
		return local, dom, true
	}
	if !strings.Contains(dom, ".") && dom != "localhost" && dom != "invalid" {
		return "", "", false
	}
	for _, label := range strings.Split(dom, ".") {
		if label == "" || strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return "", "", false
		}
		for _, r := range label {
			if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '-' {
				return "", "", false
			}
		}
	}
	return local, dom, true
}

func isIPLiteral(dom string) bool {
	if strings.HasPrefix(dom, "[") && strings.HasSuffix(dom, "]") {
		dom = dom[1 : len(dom)-1]
	}
	return net.ParseIP(dom) != nil
}

func lastLabel(dom string) string {
	if i := strings.LastIndex(dom, "."); i >= 0 {
		return dom[i+1:]
	}
	return ""
}
