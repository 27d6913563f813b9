package retrieval

import (
	"math"
	"sort"
	"time"

	"github.com/sells-group/evidence-cli/internal/evidence"
)

const (
	defaultAuthority = 50
	freshnessFloor   = 0.5
)

// tierWeight favors more trusted tiers.
func tierWeight(t evidence.SourceTier) float64 {
	switch t {
	case evidence.TierUserDocument:
		return 100
	case evidence.TierOfficialAPI:
		return 80
	case evidence.TierBusinessData:
		return 60
	default:
		return 40
	}
}

// Score is 0.4*tier weight + 0.4*reliability + 0.2*authority, scaled by a
// freshness factor for dated sources. The factor halves every halfLife and
// never drops below 0.5. halfLife <= 0 disables decay.
func Score(s evidence.RealSource, now time.Time, halfLife time.Duration) float64 {
	authority := defaultAuthority
	if s.AuthorityScore != nil {
		authority = *s.AuthorityScore
	}
	score := 0.4*tierWeight(s.Type) + 0.4*float64(s.ReliabilityScore) + 0.2*float64(authority)
	if halfLife <= 0 {
		return score
	}
	if pub, ok := evidence.ParseDate(s.PublishedDate); ok && pub.Before(now) {
		age := now.Sub(pub)
		score *= math.Max(math.Pow(0.5, float64(age)/float64(halfLife)), freshnessFloor)
	}
	return score
}

// Rank orders candidates by descending score. Equal scores keep their input
// order, which the master builds in tier priority order.
func Rank(cands []Candidate, now time.Time, halfLife time.Duration) []Candidate {
	type scored struct {
		c     Candidate
		score float64
	}
	tmp := make([]scored, len(cands))
	for i, c := range cands {
		tmp[i] = scored{c: c, score: Score(c.Source, now, halfLife)}
	}
	sort.SliceStable(tmp, func(i, j int) bool { return tmp[i].score > tmp[j].score })
	out := make([]Candidate, len(tmp))
	for i, s := range tmp {
		out[i] = s.c
	}
	return out
}
