package retrieval

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/pkg/edgar"
	"github.com/sells-group/evidence-cli/pkg/google"
	"github.com/sells-group/evidence-cli/pkg/jina"
)

type fakeSearcher struct {
	hits      []model.DocumentHit
	gotQuery  string
	gotLimit  int
	gotProjID string
}

func (f *fakeSearcher) SearchDocuments(_ context.Context, projectID, query string, limit int) ([]model.DocumentHit, error) {
	f.gotProjID, f.gotQuery, f.gotLimit = projectID, query, limit
	return f.hits, nil
}

func TestUserDocs(t *testing.T) {
	created := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	fs := &fakeSearcher{hits: []model.DocumentHit{{
		Document: model.Document{ID: "doc1", Filename: "plan.pdf", FileType: model.FileTypePDF, PagesCount: 12, CreatedAt: created},
		Page:     model.DocumentPage{DocumentID: "doc1", Number: 4, Page: intPtr(5), Content: "Revenue grew to 2M"},
		Rank:     0.8,
		Snippet:  "<<Revenue>> grew to 2M",
	}}}
	tier := NewUserDocs(fs)

	got, err := tier.Search(context.Background(), Query{Text: "revenue", ProjectID: "p1"}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", fs.gotProjID)
	assert.Equal(t, 5, fs.gotLimit)

	s := got[0].Source
	assert.Equal(t, evidence.TierUserDocument, s.Type)
	assert.Equal(t, "#/document/doc1", s.URL)
	assert.Equal(t, "user_upload", s.Domain)
	assert.Equal(t, "Revenue grew to 2M", s.Summary)
	assert.Equal(t, "2026-03-04", s.PublishedDate)
	assert.Equal(t, 80, *s.AuthorityScore)
	assert.Equal(t, 5, *got[0].Location.Page)

	none, err := tier.Search(context.Background(), Query{Text: "revenue"}, 5)
	require.NoError(t, err)
	assert.Empty(t, none, "no project, no documents")
}

type fakeEdgar struct {
	sub      *edgar.Submissions
	facts    *edgar.CompanyFacts
	factsErr error
	factCall int
}

func (f *fakeEdgar) Submissions(context.Context, string) (*edgar.Submissions, error) {
	return f.sub, nil
}

func (f *fakeEdgar) CompanyFacts(context.Context, string) (*edgar.CompanyFacts, error) {
	f.factCall++
	return f.facts, f.factsErr
}

func appleSubmissions() *edgar.Submissions {
	sub := &edgar.Submissions{Name: "Apple Inc.", Tickers: []string{"AAPL"}, SIC: "3571"}
	sub.Filings.Recent = edgar.FilingList{
		AccessionNumber: []string{"0000320193-25-000079"},
		FilingDate:      []string{"2025-11-01"},
		Form:            []string{"10-K"},
		PrimaryDocument: []string{"aapl.htm"},
		PrimaryDocDesc:  []string{"10-K"},
	}
	return sub
}

func TestOfficial(t *testing.T) {
	fe := &fakeEdgar{
		sub: appleSubmissions(),
		facts: &edgar.CompanyFacts{Facts: map[string]map[string]edgar.Fact{"us-gaap": {
			"Revenues": {Label: "Revenues", Units: map[string][]edgar.FactValue{"USD": {
				{End: "2025-09-27", Val: 391_035_000_000, FY: 2025, FP: "FY", Form: "10-K", Filed: "2025-11-01", Accn: "a1"},
			}}},
		}}},
	}
	tier := NewOfficial(fe)

	got, err := tier.Search(context.Background(), Query{Text: "revenue forecast", Params: map[string]any{"cik": "320193"}}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "sec.gov", got[0].Source.Domain)
	assert.Equal(t, "2025-11-01", got[0].Source.PublishedDate)
	assert.Contains(t, got[1].Source.Summary, "$391.0B")
	assert.Equal(t, evidence.LocationAPIResponse, got[1].Location.Type)
}

func TestOfficial_WithoutCIKOrFacts(t *testing.T) {
	fe := &fakeEdgar{sub: appleSubmissions(), factsErr: errors.New("edgar: status 404")}
	tier := NewOfficial(fe)

	none, err := tier.Search(context.Background(), Query{Text: "revenue"}, 10)
	require.NoError(t, err)
	assert.Empty(t, none)

	got, err := tier.Search(context.Background(), Query{Text: "revenue", Params: map[string]any{"cik": "320193"}}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1, "profile survives a facts failure")

	got, err = tier.Search(context.Background(), Query{Text: "hiring plan", Params: map[string]any{"cik": "320193"}}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, 1, fe.factCall, "facts are only fetched for matching concepts")

	_, err = tier.Search(context.Background(), Query{Params: map[string]any{"cik": "abc"}}, 10)
	assert.Error(t, err)
}

type fakePlaces struct{ resp *google.TextSearchResponse }

func (f fakePlaces) TextSearch(context.Context, string, int) (*google.TextSearchResponse, error) {
	return f.resp, nil
}

func TestBusiness(t *testing.T) {
	tier := NewBusiness(fakePlaces{resp: &google.TextSearchResponse{Places: []google.Place{
		{ID: "p1", DisplayName: google.Localized{Text: "Acme Bakery"}, WebsiteURI: "https://www.acme.com/", Rating: 4.5, UserRatingCount: 120,
			PrimaryTypeDisplayName: google.Localized{Text: "Bakery"}, FormattedAddress: "1 Main St"},
		{ID: "p2", DisplayName: google.Localized{Text: "No Site"}, GoogleMapsURI: "https://maps.google.com/?cid=1"},
	}}})

	got, err := tier.Search(context.Background(), Query{Text: "bakery"}, 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "acme.com", got[0].Source.Domain)
	assert.Equal(t, 90, *got[0].Source.AuthorityScore)
	assert.Equal(t, "Bakery at 1 Main St Rated 4.5 from 120 reviews.", got[0].Source.Summary)
	assert.Equal(t, "maps.google.com", got[1].Source.Domain)
	assert.Nil(t, got[1].Source.AuthorityScore)
}

type fakeJina struct {
	resp  *jina.SearchResponse
	nopts int
}

func (f *fakeJina) Search(_ context.Context, _ string, opts ...jina.SearchOption) (*jina.SearchResponse, error) {
	f.nopts = len(opts)
	return f.resp, nil
}

func TestNews(t *testing.T) {
	fj := &fakeJina{resp: &jina.SearchResponse{Data: []jina.SearchResult{
		{Title: "Market grows", URL: "https://www.reuters.com/a", Description: "desc", Date: "2026-01-02"},
		{Title: "no url"},
	}}}
	tier := NewNews(fj)

	got, err := tier.Search(context.Background(), Query{Text: "market", Policy: evidence.SourcePolicy{AllowedDomains: []string{"reuters.com"}}}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2, fj.nopts, "single allowed domain adds a site filter")
	assert.Equal(t, "reuters.com", got[0].Source.Domain)
	assert.Equal(t, "2026-01-02", got[0].Source.PublishedDate)
	assert.Equal(t, evidence.TierNews, got[0].Source.Type)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate(" abc ", 5))
	assert.Equal(t, "ab...", truncate("abcdef", 2))
}
