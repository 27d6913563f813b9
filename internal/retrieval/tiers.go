package retrieval

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/pkg/edgar"
	"github.com/sells-group/evidence-cli/pkg/google"
	"github.com/sells-group/evidence-cli/pkg/jina"
)

// sourceID derives a stable id so the same page or URL is deduplicated
// across tiers and searches.
func sourceID(key string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(key)).String()
}

func intPtr(v int) *int { return &v }

// DocumentSearcher is the slice of the store used by the user document tier.
type DocumentSearcher interface {
	SearchDocuments(ctx context.Context, projectID, query string, limit int) ([]model.DocumentHit, error)
}

// UserDocs searches documents uploaded to the project.
type UserDocs struct {
	store DocumentSearcher
}

// NewUserDocs returns the tier 1 searcher.
func NewUserDocs(store DocumentSearcher) *UserDocs {
	return &UserDocs{store: store}
}

func (u *UserDocs) Tier() evidence.SourceTier { return evidence.TierUserDocument }

func (u *UserDocs) Search(ctx context.Context, q Query, limit int) ([]Candidate, error) {
	if q.ProjectID == "" {
		return nil, nil
	}
	hits, err := u.store.SearchDocuments(ctx, q.ProjectID, q.Text, limit)
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: search user documents")
	}
	out := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		loc := h.Page.Location()
		summary := strings.NewReplacer("<<", "", ">>", "").Replace(h.Snippet)
		out = append(out, Candidate{
			Source: evidence.RealSource{
				ID:                 sourceID(fmt.Sprintf("doc:%s:%d", h.Document.ID, h.Page.Number)),
				Type:               evidence.TierUserDocument,
				Name:               h.Document.Filename,
				Title:              h.Document.Filename,
				Summary:            summary,
				URL:                "#/document/" + h.Document.ID,
				Domain:             "user_upload",
				ParentOrganization: "User upload",
				PublishedDate:      h.Document.CreatedAt.Format("2006-01-02"),
				ReliabilityScore:   100,
				AuthorityScore:     intPtr(int(math.Round(h.Rank * 100))),
				FileType:           string(h.Document.FileType),
				PagesCount:         h.Document.PagesCount,
				RawContent:         h.Page.Content,
			},
			Location: loc,
		})
	}
	return out, nil
}

// Official reads SEC EDGAR filings for the company named by the "cik"
// parameter. Without a CIK it returns nothing.
type Official struct {
	client edgar.Client
}

// NewOfficial returns the tier 2 searcher.
func NewOfficial(client edgar.Client) *Official {
	return &Official{client: client}
}

func (o *Official) Tier() evidence.SourceTier { return evidence.TierOfficialAPI }

func (o *Official) Search(ctx context.Context, q Query, limit int) ([]Candidate, error) {
	cik := q.Param("cik")
	if cik == "" {
		return nil, nil
	}
	padded, err := edgar.PadCIK(cik)
	if err != nil {
		return nil, err
	}
	sub, err := o.client.Submissions(ctx, padded)
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: edgar submissions")
	}

	published := ""
	if filings := sub.Filings.Recent.Filings(); len(filings) > 0 {
		published = filings[0].FilingDate
	}
	url := fmt.Sprintf("https://www.sec.gov/cgi-bin/browse-edgar?action=getcompany&CIK=%s", padded)
	profile := fmt.Sprintf("%s (%s), SIC %s %s, incorporated in %s, fiscal year end %s.",
		sub.Name, strings.Join(sub.Tickers, ", "), sub.SIC, sub.SICDescription, sub.StateOfInc, sub.FiscalYearEnd)
	out := []Candidate{{
		Source: evidence.RealSource{
			ID:                 sourceID(url),
			Type:               evidence.TierOfficialAPI,
			Name:               "SEC EDGAR",
			Title:              sub.Name + " company profile",
			Summary:            profile,
			URL:                url,
			Domain:             "sec.gov",
			ParentOrganization: "U.S. Securities and Exchange Commission",
			PublishedDate:      published,
			ReliabilityScore:   95,
			AuthorityScore:     intPtr(95),
		},
		Location: evidence.Location{Type: evidence.LocationAPIResponse},
	}}

	concepts := matchConcepts(Normalize(q.Text))
	if len(concepts) == 0 {
		return out, nil
	}
	facts, err := o.client.CompanyFacts(ctx, padded)
	if err != nil {
		// The profile alone is still evidence.
		return out, nil //nolint:nilerr
	}
	for _, concept := range concepts {
		if len(out) >= limit {
			break
		}
		v, ok := facts.LatestAnnual(concept)
		if !ok {
			continue
		}
		value := plainValue(v.Val, v.Unit)
		factURL := fmt.Sprintf("https://data.sec.gov/api/xbrl/companyconcept/CIK%s/us-gaap/%s.json", padded, concept)
		out = append(out, Candidate{
			Source: evidence.RealSource{
				ID:                 sourceID(factURL + "#" + v.Accn),
				Type:               evidence.TierOfficialAPI,
				Name:               "SEC EDGAR XBRL",
				Title:              fmt.Sprintf("%s %s FY%d", sub.Name, v.Label, v.FY),
				Summary:            fmt.Sprintf("%s reported %s of %s for fiscal year %d (period ending %s, form %s).", sub.Name, v.Label, value, v.FY, v.End, v.Form),
				URL:                factURL,
				Domain:             "sec.gov",
				ParentOrganization: "U.S. Securities and Exchange Commission",
				PublishedDate:      v.Filed,
				ReliabilityScore:   95,
				AuthorityScore:     intPtr(95),
			},
			Location: evidence.Location{Type: evidence.LocationAPIResponse},
		})
	}
	return out, nil
}

// matchConcepts returns the XBRL concepts whose keywords occur in text, in
// name order.
func matchConcepts(text string) []string {
	var out []string
	for concept, words := range edgar.Concepts {
		for _, w := range words {
			if strings.Contains(text, w) {
				out = append(out, concept)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

func plainValue(v float64, unit string) string {
	if unit == "USD" {
		return "$" + evidence.FormatCompact(v)
	}
	return evidence.FormatCompact(v) + " " + unit
}

// Business searches Google Places for business listings.
type Business struct {
	client google.Client
}

// NewBusiness returns the tier 3 searcher.
func NewBusiness(client google.Client) *Business {
	return &Business{client: client}
}

func (b *Business) Tier() evidence.SourceTier { return evidence.TierBusinessData }

func (b *Business) Search(ctx context.Context, q Query, limit int) ([]Candidate, error) {
	resp, err := b.client.TextSearch(ctx, q.Text, limit)
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: google places")
	}
	out := make([]Candidate, 0, len(resp.Places))
	for _, p := range resp.Places {
		link := p.WebsiteURI
		if link == "" {
			link = p.GoogleMapsURI
		}
		domain := evidence.DomainOf(p.WebsiteURI)
		if domain == "" {
			domain = evidence.DomainOf(p.GoogleMapsURI)
		}
		summary := p.EditorialSummary.Text
		if summary == "" {
			switch {
			case p.PrimaryTypeDisplayName.Text != "" && p.FormattedAddress != "":
				summary = p.PrimaryTypeDisplayName.Text + " at " + p.FormattedAddress
			default:
				summary = p.PrimaryTypeDisplayName.Text + p.FormattedAddress
			}
		}
		if p.Rating > 0 {
			summary += fmt.Sprintf(" Rated %.1f from %d reviews.", p.Rating, p.UserRatingCount)
		}
		src := evidence.RealSource{
			ID:                 sourceID("place:" + p.ID),
			Type:               evidence.TierBusinessData,
			Name:               p.DisplayName.Text,
			Title:              p.DisplayName.Text,
			Summary:            strings.TrimSpace(summary),
			URL:                link,
			Domain:             domain,
			ParentOrganization: "Google Places",
			ReliabilityScore:   70,
		}
		if p.Rating > 0 {
			src.AuthorityScore = intPtr(int(math.Round(p.Rating * 20)))
		}
		out = append(out, Candidate{Source: src, Location: evidence.Location{Type: evidence.LocationAPIResponse}})
	}
	return out, nil
}

// News searches the web through Jina.
type News struct {
	client jina.Client
}

// NewNews returns the tier 4 searcher.
func NewNews(client jina.Client) *News {
	return &News{client: client}
}

func (n *News) Tier() evidence.SourceTier { return evidence.TierNews }

func (n *News) Search(ctx context.Context, q Query, limit int) ([]Candidate, error) {
	opts := []jina.SearchOption{jina.WithCount(limit)}
	if len(q.Policy.AllowedDomains) == 1 {
		opts = append(opts, jina.WithSiteFilter(q.Policy.AllowedDomains[0]))
	}
	resp, err := n.client.Search(ctx, q.Text, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "retrieval: jina search")
	}
	out := make([]Candidate, 0, len(resp.Data))
	for _, r := range resp.Data {
		if r.URL == "" {
			continue
		}
		domain := evidence.DomainOf(r.URL)
		summary := r.Description
		if summary == "" {
			summary = truncate(r.Content, 300)
		}
		out = append(out, Candidate{
			Source: evidence.RealSource{
				ID:                 sourceID(r.URL),
				Type:               evidence.TierNews,
				Name:               domain,
				Title:              r.Title,
				Summary:            summary,
				URL:                r.URL,
				Domain:             domain,
				ParentOrganization: domain,
				PublishedDate:      r.Date,
				ReliabilityScore:   50,
				RawContent:         r.Content,
			},
			Location: evidence.Location{Type: evidence.LocationURL},
		})
	}
	return out, nil
}

func truncate(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
