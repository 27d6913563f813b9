package retrieval

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/tierconfig"
)

func TestScore(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	doc := evidence.RealSource{Type: evidence.TierUserDocument, ReliabilityScore: 100, AuthorityScore: intPtr(100)}
	assert.InDelta(t, 100.0, Score(doc, now, 0), 0.001)

	news := evidence.RealSource{Type: evidence.TierNews, ReliabilityScore: 50}
	assert.InDelta(t, 0.4*40+0.4*50+0.2*50, Score(news, now, 0), 0.001)

	halfLife := 30 * 24 * time.Hour
	news.PublishedDate = "2026-05-17"
	assert.InDelta(t, 46*math.Sqrt(0.5), Score(news, now, halfLife), 0.001)

	news.PublishedDate = "2020-01-01"
	assert.InDelta(t, 46*freshnessFloor, Score(news, now, halfLife), 0.001, "decay is floored")
}

func TestRank_StableByScore(t *testing.T) {
	now := time.Now()
	cands := []Candidate{
		cand("n1", "", "", evidence.TierNews, 50, ""),
		cand("d1", "", "", evidence.TierUserDocument, 100, ""),
		cand("n2", "", "", evidence.TierNews, 50, ""),
		cand("b1", "", "", evidence.TierBusinessData, 70, ""),
	}
	assert.Equal(t, []string{"d1", "b1", "n1", "n2"}, ids(Rank(cands, now, 0)))
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "cafe revenue 2024", Normalize("  Café   REVENUE\t2024 "))
	assert.Equal(t, "", Normalize("   "))
}

func TestBuildQuery(t *testing.T) {
	profiles := tierconfig.DefaultProfiles()
	fin := profiles.Get("financial")

	assert.Equal(t, "market research", BuildQuery("market-research", nil, profiles.Get("generic")))
	assert.Equal(t, "revenue growth sales income turnover",
		BuildQuery("financial-projections", map[string]any{"query": "revenue growth"}, fin))
}
