package evidence

import (
	"math"
	"net/url"
	"strings"
	"time"
)

// UniqueDomains returns the distinct source domains in first-seen order.
func UniqueDomains(sources []RealSource) []string {
	seen := make(map[string]struct{}, len(sources))
	var out []string
	for _, s := range sources {
		if s.Domain == "" {
			continue
		}
		if _, ok := seen[s.Domain]; ok {
			continue
		}
		seen[s.Domain] = struct{}{}
		out = append(out, s.Domain)
	}
	return out
}

// SourcesIndependent reports whether no two sources share a domain or a
// parent organization.
func SourcesIndependent(sources []RealSource) bool {
	domains := make(map[string]struct{}, len(sources))
	orgs := make(map[string]struct{}, len(sources))
	for _, s := range sources {
		if _, ok := domains[s.Domain]; ok {
			return false
		}
		domains[s.Domain] = struct{}{}

		if s.ParentOrganization == "" {
			continue
		}
		if _, ok := orgs[s.ParentOrganization]; ok {
			return false
		}
		orgs[s.ParentOrganization] = struct{}{}
	}
	return true
}

// Coverage is the rounded percentage of supported claims.
func Coverage(claims []ClaimWithEvidence) int {
	if len(claims) == 0 {
		return 0
	}
	supported := 0
	for _, c := range claims {
		if c.Status == ClaimSupported {
			supported++
		}
	}
	return int(math.Round(float64(supported) / float64(len(claims)) * 100))
}

// DeriveStatus computes the whole-generation status from claims and conflicts.
func DeriveStatus(claims []ClaimWithEvidence, conflicts []EvidenceConflict) EvidenceStatus {
	if len(conflicts) > 0 {
		return StatusConflicting
	}
	switch Coverage(claims) {
	case 0:
		return StatusNoEvidence
	case 100:
		return StatusEvidenceBacked
	default:
		return StatusPartialEvidence
	}
}

// ClassifyClaim assigns a claim status from its citations: supported needs a
// tier 1/2 citation or two independent domains, unsupported has no
// citations, anything else is weak.
//
// Only producers of a GenerationResult classify claims. Consumers trust the
// status they receive.
func ClassifyClaim(citations []Citation) ClaimStatus {
	if len(citations) == 0 {
		return ClaimUnsupported
	}
	for _, c := range citations {
		if n := c.SourceType.Number(); n == 1 || n == 2 {
			return ClaimSupported
		}
	}
	if len(CitationDomains(citations)) >= 2 {
		return ClaimSupported
	}
	return ClaimWeak
}

// CitationDomains returns the distinct host names cited, falling back to the
// source id when a citation has no parsable URL.
func CitationDomains(citations []Citation) []string {
	seen := make(map[string]struct{}, len(citations))
	var out []string
	for _, c := range citations {
		d := DomainOf(c.URL)
		if d == "" {
			d = c.SourceID
		}
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	return out
}

// DomainOf extracts the lowercase host of rawURL without a leading "www.".
func DomainOf(rawURL string) string {
	if rawURL == "" || strings.HasPrefix(rawURL, "#") {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// ParseDate accepts RFC 3339 timestamps and plain YYYY-MM-DD dates.
func ParseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// StatusCounts tallies claims by status.
type StatusCounts struct {
	Supported   int `json:"claims_supported"`
	Weak        int `json:"claims_weak"`
	Unsupported int `json:"claims_unsupported"`
	Other       int `json:"claims_other,omitempty"`
}

// Total is the number of claims counted.
func (s StatusCounts) Total() int {
	return s.Supported + s.Weak + s.Unsupported + s.Other
}

// CountClaims partitions claims by status. Claims carrying an unknown status
// land in Other so that Total always equals len(claims).
func CountClaims(claims []ClaimWithEvidence) StatusCounts {
	var c StatusCounts
	for _, cl := range claims {
		switch cl.Status {
		case ClaimSupported:
			c.Supported++
		case ClaimWeak:
			c.Weak++
		case ClaimUnsupported:
			c.Unsupported++
		default:
			c.Other++
		}
	}
	return c
}
