// Package retrieval searches the enabled source tiers concurrently, filters
// the candidates through the project's source policy and ranks them.
package retrieval

import (
	"context"

	"github.com/sells-group/evidence-cli/internal/evidence"
)

// Query is one evidence search.
type Query struct {
	Text      string                `json:"text"`
	Function  string                `json:"function"`
	ProjectID string                `json:"project_id"`
	UserID    string                `json:"user_id"`
	Policy    evidence.SourcePolicy `json:"policy"`
	Params    map[string]any        `json:"params,omitempty"`
}

// Param returns a string parameter, or "" when it is missing or not a
// string.
func (q Query) Param(key string) string {
	if v, ok := q.Params[key].(string); ok {
		return v
	}
	return ""
}

// Candidate is a retrieved source with the anchor its evidence came from.
type Candidate struct {
	Source   evidence.RealSource
	Location evidence.Location
}

// Tier searches one source tier.
type Tier interface {
	Tier() evidence.SourceTier
	Search(ctx context.Context, q Query, limit int) ([]Candidate, error)
}

// SearchResults aggregates one multi-tier search.
type SearchResults struct {
	Query              string                        `json:"query"`
	Sources            []evidence.RealSource         `json:"sources_found"`
	Locations          map[string]evidence.Location  `json:"locations,omitempty"`
	TiersSearched      []evidence.SourceTier         `json:"tiers_searched"`
	TierCounts         map[evidence.SourceTier]int   `json:"tier_counts"`
	AvgReliability     int                           `json:"avg_reliability_score"`
	IndependentDomains []string                      `json:"independent_domains"`
	TimedOutTiers      []evidence.SourceTier         `json:"timed_out_tiers,omitempty"`
	FailedTiers        []evidence.SourceTier         `json:"failed_tiers,omitempty"`
	TierDurationsMS    map[evidence.SourceTier]int64 `json:"tier_durations_ms"`
	DurationMS         int64                         `json:"search_duration_ms"`
	Cached             bool                          `json:"cached,omitempty"`
}

// Location returns the anchor recorded for a source id.
func (r *SearchResults) Location(sourceID string) evidence.Location {
	if loc, ok := r.Locations[sourceID]; ok {
		return loc
	}
	return evidence.Location{Type: evidence.LocationURL}
}

// clone copies r so cached results are never shared.
func (r *SearchResults) clone() *SearchResults {
	c := *r
	c.Sources = append([]evidence.RealSource(nil), r.Sources...)
	c.TiersSearched = append([]evidence.SourceTier(nil), r.TiersSearched...)
	c.IndependentDomains = append([]string(nil), r.IndependentDomains...)
	c.TimedOutTiers = append([]evidence.SourceTier(nil), r.TimedOutTiers...)
	c.FailedTiers = append([]evidence.SourceTier(nil), r.FailedTiers...)
	c.Locations = make(map[string]evidence.Location, len(r.Locations))
	for k, v := range r.Locations {
		c.Locations[k] = v
	}
	c.TierCounts = make(map[evidence.SourceTier]int, len(r.TierCounts))
	for k, v := range r.TierCounts {
		c.TierCounts[k] = v
	}
	c.TierDurationsMS = make(map[evidence.SourceTier]int64, len(r.TierDurationsMS))
	for k, v := range r.TierDurationsMS {
		c.TierDurationsMS[k] = v
	}
	return &c
}

// Retriever is what generation backends depend on.
type Retriever interface {
	Search(ctx context.Context, q Query) (*SearchResults, error)
}
