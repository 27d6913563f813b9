package retrieval

import (
	"strings"
	"time"

	"github.com/sells-group/evidence-cli/internal/evidence"
)

// Filter drops candidates the policy excludes: blocked domains, domains
// outside a non-empty allow list, plain-http URLs when HTTPS is required,
// low reliability and sources older than the max age. Internal "#/" links
// are exempt from the HTTPS rule and undated sources from the age rule.
func Filter(cands []Candidate, p evidence.SourcePolicy, now time.Time) []Candidate {
	var cutoff time.Time
	if p.MaxSourceAgeDays != nil && *p.MaxSourceAgeDays > 0 {
		cutoff = now.AddDate(0, 0, -*p.MaxSourceAgeDays)
	}
	out := make([]Candidate, 0, len(cands))
	for _, c := range cands {
		s := c.Source
		if s.ReliabilityScore < p.MinReliabilityScore {
			continue
		}
		if p.RequireHTTPS && !strings.HasPrefix(s.URL, "#/") && !strings.HasPrefix(s.URL, "https://") {
			continue
		}
		if matchesAny(s.Domain, p.BlockedDomains) {
			continue
		}
		if len(p.AllowedDomains) > 0 && !matchesAny(s.Domain, p.AllowedDomains) {
			continue
		}
		if !cutoff.IsZero() {
			if pub, ok := evidence.ParseDate(s.PublishedDate); ok && pub.Before(cutoff) {
				continue
			}
		}
		out = append(out, c)
	}
	return out
}

// matchesAny reports whether domain equals one of list or is a subdomain
// of one.
func matchesAny(domain string, list []string) bool {
	domain = strings.ToLower(domain)
	for _, d := range list {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		if domain == d || strings.HasSuffix(domain, "."+d) {
			return true
		}
	}
	return false
}
