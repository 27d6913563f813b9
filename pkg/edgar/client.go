// Package edgar is a client for the SEC EDGAR submissions and company facts
// APIs on data.sec.gov.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"

	"github.com/sells-group/evidence-cli/internal/resilience"
)

const (
	defaultBaseURL = "https://data.sec.gov"
	// SEC fair access allows 10 requests per second.
	defaultRate = 10
)

// Client reads company data from EDGAR.
type Client interface {
	Submissions(ctx context.Context, cik string) (*Submissions, error)
	CompanyFacts(ctx context.Context, cik string) (*CompanyFacts, error)
}

// Submissions is a company profile with its recent filings.
type Submissions struct {
	CIK            json.Number `json:"cik"`
	Name           string      `json:"name"`
	EntityType     string      `json:"entityType"`
	SIC            string      `json:"sic"`
	SICDescription string      `json:"sicDescription"`
	Tickers        []string    `json:"tickers"`
	Exchanges      []string    `json:"exchanges"`
	StateOfInc     string      `json:"stateOfIncorporation"`
	FiscalYearEnd  string      `json:"fiscalYearEnd"`
	Filings        struct {
		Recent FilingList `json:"recent"`
	} `json:"filings"`
}

// FilingList holds recent filings as parallel arrays, as EDGAR returns them.
type FilingList struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
	PrimaryDocDesc  []string `json:"primaryDocDescription"`
}

// Filing is one row of a FilingList.
type Filing struct {
	AccessionNumber string
	FilingDate      string
	Form            string
	PrimaryDocument string
	Description     string
}

// Filings zips the parallel arrays into rows. Rows shorter than the
// accession list get empty fields.
func (l FilingList) Filings() []Filing {
	at := func(s []string, i int) string {
		if i < len(s) {
			return s[i]
		}
		return ""
	}
	out := make([]Filing, len(l.AccessionNumber))
	for i, acc := range l.AccessionNumber {
		out[i] = Filing{
			AccessionNumber: acc,
			FilingDate:      at(l.FilingDate, i),
			Form:            at(l.Form, i),
			PrimaryDocument: at(l.PrimaryDocument, i),
			Description:     at(l.PrimaryDocDesc, i),
		}
	}
	return out
}

// Option configures the client.
type Option func(*httpClient)

// WithBaseURL overrides https://data.sec.gov.
func WithBaseURL(u string) Option {
	return func(c *httpClient) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) { c.http = hc }
}

// WithRateLimit sets requests per second. Values <= 0 keep the default.
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), int(max(rps, 1)))
		}
	}
}

type httpClient struct {
	userAgent string
	baseURL   string
	http      *http.Client
	limiter   *rate.Limiter
}

// NewClient creates an EDGAR client. userAgent must identify the caller
// with a contact email, as SEC requires.
func NewClient(userAgent string, opts ...Option) Client {
	c := &httpClient{
		userAgent: userAgent,
		baseURL:   defaultBaseURL,
		http:      &http.Client{Timeout: 15 * time.Second},
		limiter:   rate.NewLimiter(defaultRate, defaultRate),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// PadCIK normalizes a CIK to the 10-digit zero-padded form used in URLs.
func PadCIK(cik string) (string, error) {
	cik = strings.TrimLeft(strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(cik)), "CIK"), "0")
	if cik == "" || len(cik) > 10 {
		return "", eris.Errorf("edgar: invalid cik %q", cik)
	}
	for _, r := range cik {
		if r < '0' || r > '9' {
			return "", eris.Errorf("edgar: invalid cik %q", cik)
		}
	}
	return fmt.Sprintf("%010s", cik), nil
}

func (c *httpClient) Submissions(ctx context.Context, cik string) (*Submissions, error) {
	padded, err := PadCIK(cik)
	if err != nil {
		return nil, err
	}
	var out Submissions
	if err := c.getJSON(ctx, "/submissions/CIK"+padded+".json", &out); err != nil {
		return nil, eris.Wrapf(err, "edgar: submissions %s", padded)
	}
	return &out, nil
}

func (c *httpClient) CompanyFacts(ctx context.Context, cik string) (*CompanyFacts, error) {
	padded, err := PadCIK(cik)
	if err != nil {
		return nil, err
	}
	var out CompanyFacts
	if err := c.getJSON(ctx, "/api/xbrl/companyfacts/CIK"+padded+".json", &out); err != nil {
		return nil, eris.Wrapf(err, "edgar: company facts %s", padded)
	}
	return &out, nil
}

func (c *httpClient) getJSON(ctx context.Context, path string, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrap(err, "edgar: rate limit wait")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "edgar: create request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "edgar: send request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.CheckResponse("edgar", resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return eris.Wrap(err, "edgar: decode response")
	}
	return nil
}
