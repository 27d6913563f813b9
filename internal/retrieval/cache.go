package retrieval

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/sells-group/evidence-cli/internal/evidence"
)

// Cache holds recent search results keyed by query fingerprint.
type Cache struct {
	lru *expirable.LRU[string, *SearchResults]
}

// NewCache returns a cache of up to size entries that expire after ttl.
// size <= 0 returns nil, which disables caching.
func NewCache(size int, ttl time.Duration) *Cache {
	if size <= 0 {
		return nil
	}
	return &Cache{lru: expirable.NewLRU[string, *SearchResults](size, nil, ttl)}
}

// Get returns a copy of the cached results for key.
func (c *Cache) Get(key string) (*SearchResults, bool) {
	if c == nil {
		return nil, false
	}
	r, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	out := r.clone()
	out.Cached = true
	return out, true
}

// Add stores a copy of r under key.
func (c *Cache) Add(key string, r *SearchResults) {
	if c == nil || r == nil {
		return
	}
	c.lru.Add(key, r.clone())
}

// Len is the number of live entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}

// fingerprint identifies a search by everything that can change its
// outcome: the normalized text, project, tiers and policy filters.
func fingerprint(q Query, tiers []evidence.SourceTier) string {
	p := q.Policy
	blocked := sortedLower(p.BlockedDomains)
	allowed := sortedLower(p.AllowedDomains)
	key := struct {
		Text    string                `json:"t"`
		Project string                `json:"p"`
		Tiers   []evidence.SourceTier `json:"ti"`
		Blocked []string              `json:"b"`
		Allowed []string              `json:"a"`
		MaxAge  *int                  `json:"m"`
		MinRel  int                   `json:"r"`
		HTTPS   bool                  `json:"h"`
		Params  map[string]any        `json:"pa"`
	}{Normalize(q.Text), q.ProjectID, tiers, blocked, allowed, p.MaxSourceAgeDays, p.MinReliabilityScore, p.RequireHTTPS, q.Params}
	data, _ := json.Marshal(key) // map keys are sorted by encoding/json
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sortedLower(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		out = append(out, Normalize(s))
	}
	sort.Strings(out)
	return out
}
