// Package edgefn calls the hosted evidence generation function.
package edgefn

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/resilience"
)

const (
	// DefaultFunction is the hosted function that searches and extracts.
	DefaultFunction = "scrape-and-extract"
	defaultTimeout  = 120 * time.Second
)

// EvidenceContext is the retrieval part of a request body.
type EvidenceContext struct {
	Mode             evidence.EvidenceMode `json:"mode"`
	Tiers            []int                 `json:"tiers"`
	BlockedDomains   []string              `json:"blocked_domains"`
	MaxSourceAgeDays *int                  `json:"max_source_age_days,omitempty"`
}

// Request is the body posted to the function.
type Request struct {
	FunctionName     string          `json:"function_name"`
	ProjectID        string          `json:"project_id"`
	UserID           string          `json:"user_id"`
	EvidenceContext  EvidenceContext `json:"evidence_context"`
	AdditionalParams map[string]any  `json:"additional_params,omitempty"`
}

// NewRequest converts a generation request into the function's body.
func NewRequest(r evidence.GenerationRequest) Request {
	tiers := make([]int, 0, 4)
	for _, t := range r.Tiers() {
		tiers = append(tiers, t.Number())
	}
	blocked := r.BlockedDomains
	if blocked == nil {
		blocked = []string{}
	}
	return Request{
		FunctionName: r.FunctionName,
		ProjectID:    r.ProjectID,
		UserID:       r.UserID,
		EvidenceContext: EvidenceContext{
			Mode:             r.EvidenceMode,
			Tiers:            tiers,
			BlockedDomains:   blocked,
			MaxSourceAgeDays: r.MaxSourceAgeDays,
		},
		AdditionalParams: r.AdditionalParams,
	}
}

// blockEnvelope detects a strict block response.
type blockEnvelope struct {
	Blocked     bool                            `json:"blocked"`
	ExitOptions *evidence.StrictModeExitOptions `json:"exit_options"`
}

// Option configures the client.
type Option func(*Client)

// WithFunction overrides the function slug.
func WithFunction(name string) Option {
	return func(c *Client) {
		if name != "" {
			c.function = name
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds a single invocation.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithBreaker guards calls with a circuit breaker.
func WithBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// Client invokes the function over HTTP. Calls are never retried: a retry
// is a user decision.
type Client struct {
	baseURL  string
	token    string
	function string
	http     *http.Client
	breaker  *resilience.CircuitBreaker
}

// NewClient creates a client for the functions host at baseURL.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    token,
		function: DefaultFunction,
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Invoke posts req and returns either a result or a strict block.
func (c *Client) Invoke(ctx context.Context, req evidence.GenerationRequest) (*evidence.GenerationOutcome, error) {
	if c.breaker == nil {
		return c.invoke(ctx, req)
	}
	return resilience.ExecuteVal(ctx, c.breaker, func(ctx context.Context) (*evidence.GenerationOutcome, error) {
		return c.invoke(ctx, req)
	})
}

func (c *Client) invoke(ctx context.Context, req evidence.GenerationRequest) (*evidence.GenerationOutcome, error) {
	body, err := json.Marshal(NewRequest(req))
	if err != nil {
		return nil, eris.Wrap(err, "edgefn: marshal request")
	}
	url := c.baseURL + "/functions/v1/" + c.function
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, eris.Wrap(err, "edgefn: create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, eris.Wrapf(err, "edgefn: invoke %s", c.function)
	}
	defer resp.Body.Close() //nolint:errcheck

	if err := resilience.CheckResponse("edgefn", resp); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, eris.Wrap(err, "edgefn: read response")
	}
	return DecodeOutcome(data)
}

// DecodeOutcome parses a function response body.
func DecodeOutcome(data []byte) (*evidence.GenerationOutcome, error) {
	var env blockEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, eris.Wrap(err, "edgefn: decode response")
	}
	if env.Blocked {
		opts := env.ExitOptions
		if opts == nil {
			opts = &evidence.StrictModeExitOptions{}
		}
		return &evidence.GenerationOutcome{Block: opts}, nil
	}
	var result evidence.GenerationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, eris.Wrap(err, "edgefn: decode result")
	}
	if result.EvidenceStatus == "" {
		return nil, eris.New("edgefn: response has no evidence_status")
	}
	return &evidence.GenerationOutcome{Result: &result}, nil
}
