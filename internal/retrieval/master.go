package retrieval

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/resilience"
	"github.com/sells-group/evidence-cli/internal/tierconfig"
)

// Default deadlines. A tier that misses its deadline contributes no sources.
const (
	DefaultGlobalTimeout     = 40 * time.Second
	DefaultMaxResultsPerTier = 10
)

// DefaultTierTimeouts are per-tier search deadlines.
var DefaultTierTimeouts = map[evidence.SourceTier]time.Duration{
	evidence.TierUserDocument: 3 * time.Second,
	evidence.TierOfficialAPI:  8 * time.Second,
	evidence.TierBusinessData: 2 * time.Second,
	evidence.TierNews:         10 * time.Second,
}

// Options tune a Master.
type Options struct {
	GlobalTimeout     time.Duration
	TierTimeouts      map[evidence.SourceTier]time.Duration
	MaxResultsPerTier int
	FreshnessHalfLife time.Duration
	Retry             resilience.RetryConfig
	Cache             *Cache
	Profiles          tierconfig.Profiles
}

// OptionsFromConfig maps the retrieval config section onto Options.
func OptionsFromConfig(c config.RetrievalConfig) Options {
	ms := func(n int) time.Duration { return time.Duration(n) * time.Millisecond }
	opts := Options{
		GlobalTimeout: ms(c.GlobalTimeoutMs),
		TierTimeouts: map[evidence.SourceTier]time.Duration{
			evidence.TierUserDocument: ms(c.TierTimeouts.UserDocs),
			evidence.TierOfficialAPI:  ms(c.TierTimeouts.OfficialAPI),
			evidence.TierBusinessData: ms(c.TierTimeouts.BusinessData),
			evidence.TierNews:         ms(c.TierTimeouts.News),
		},
		MaxResultsPerTier: c.MaxResultsPerTier,
		FreshnessHalfLife: time.Duration(c.FreshnessHalfLifeDays) * 24 * time.Hour,
		Retry:             resilience.FromRetryConfig(c.Retry),
		Cache:             NewCache(c.CacheSize, time.Duration(c.CacheTTLSecs)*time.Second),
	}
	return opts
}

// Master fans a query out to every enabled tier.
type Master struct {
	tiers map[evidence.SourceTier]Tier
	opts  Options
	now   func() time.Time
}

// NewMaster registers tiers by the tier they serve. A later tier for the
// same SourceTier replaces an earlier one.
func NewMaster(opts Options, tiers ...Tier) *Master {
	if opts.GlobalTimeout <= 0 {
		opts.GlobalTimeout = DefaultGlobalTimeout
	}
	if opts.MaxResultsPerTier <= 0 {
		opts.MaxResultsPerTier = DefaultMaxResultsPerTier
	}
	timeouts := make(map[evidence.SourceTier]time.Duration, len(DefaultTierTimeouts))
	for t, d := range DefaultTierTimeouts {
		timeouts[t] = d
	}
	for t, d := range opts.TierTimeouts {
		if d > 0 {
			timeouts[t] = d
		}
	}
	opts.TierTimeouts = timeouts
	if opts.Profiles == nil {
		opts.Profiles = tierconfig.DefaultProfiles()
	}

	m := &Master{tiers: make(map[evidence.SourceTier]Tier), opts: opts, now: time.Now}
	for _, t := range tiers {
		m.tiers[t.Tier()] = t
	}
	return m
}

type tierOutcome struct {
	cands    []Candidate
	timedOut bool
	failed   bool
	took     time.Duration
}

// Search runs every enabled tier concurrently. Tier failures and timeouts
// are recorded in the results and never fail the search; an error is
// returned only when ctx itself ends.
func (m *Master) Search(ctx context.Context, q Query) (*SearchResults, error) {
	start := m.now()
	profile := m.opts.Profiles.Get(q.Param("profile"))
	tiers := profile.OrderTiers(q.Policy.EnabledTiers())
	if q.Text == "" {
		q.Text = BuildQuery(q.Function, q.Params, profile)
	}
	log := zap.L().With(
		zap.String("function", q.Function),
		zap.String("project_id", q.ProjectID),
		zap.Int("tiers", len(tiers)),
	)

	key := fingerprint(q, tiers)
	if cached, ok := m.opts.Cache.Get(key); ok {
		log.Debug("retrieval: cache hit")
		return cached, nil
	}

	gctx, cancel := context.WithTimeout(ctx, m.opts.GlobalTimeout)
	defer cancel()

	outcomes := make([]tierOutcome, len(tiers))
	g, gctx := errgroup.WithContext(gctx)
	for i, t := range tiers {
		impl, ok := m.tiers[t]
		if !ok {
			log.Debug("retrieval: no searcher registered", zap.String("tier", string(t)))
			continue
		}
		g.Go(func() error {
			outcomes[i] = m.searchTier(gctx, impl, q)
			return nil
		})
	}
	_ = g.Wait() // tier goroutines never return errors

	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "retrieval: search canceled")
	}

	res := &SearchResults{
		Query:           q.Text,
		TiersSearched:   tiers,
		TierCounts:      make(map[evidence.SourceTier]int, len(tiers)),
		TierDurationsMS: make(map[evidence.SourceTier]int64, len(tiers)),
		Locations:       make(map[string]evidence.Location),
	}
	var all []Candidate
	for i, t := range tiers {
		o := outcomes[i]
		res.TierDurationsMS[t] = o.took.Milliseconds()
		if o.timedOut {
			res.TimedOutTiers = append(res.TimedOutTiers, t)
		}
		if o.failed {
			res.FailedTiers = append(res.FailedTiers, t)
		}
		all = append(all, o.cands...)
	}

	now := m.now()
	all = Rank(Filter(dedupe(all), q.Policy, now), now, m.opts.FreshnessHalfLife)
	total := 0
	for _, c := range all {
		res.Sources = append(res.Sources, c.Source)
		res.Locations[c.Source.ID] = c.Location
		res.TierCounts[c.Source.Type]++
		total += c.Source.ReliabilityScore
	}
	if len(all) > 0 {
		res.AvgReliability = total / len(all)
	}
	res.IndependentDomains = evidence.UniqueDomains(res.Sources)
	res.DurationMS = m.now().Sub(start).Milliseconds()

	log.Info("retrieval: search complete",
		zap.Int("sources", len(res.Sources)),
		zap.Int("avg_reliability", res.AvgReliability),
		zap.Int("timed_out", len(res.TimedOutTiers)),
		zap.Int("failed", len(res.FailedTiers)),
		zap.Int64("duration_ms", res.DurationMS))

	// Partial results are not cached so a retry can fill the gap.
	if len(res.TimedOutTiers) == 0 && len(res.FailedTiers) == 0 {
		m.opts.Cache.Add(key, res)
	}
	return res, nil
}

func (m *Master) searchTier(ctx context.Context, impl Tier, q Query) tierOutcome {
	t := impl.Tier()
	tctx, cancel := context.WithTimeout(ctx, m.opts.TierTimeouts[t])
	defer cancel()

	retry := m.opts.Retry
	retry.OnRetry = resilience.RetryLogger("retrieval", string(t))

	start := m.now()
	cands, err := resilience.DoVal(tctx, retry, func(ctx context.Context) ([]Candidate, error) {
		return impl.Search(ctx, q, m.opts.MaxResultsPerTier)
	})
	out := tierOutcome{took: m.now().Sub(start)}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || tctx.Err() != nil {
			out.timedOut = true
			zap.L().Warn("retrieval: tier timed out", zap.String("tier", string(t)), zap.Duration("took", out.took))
		} else {
			out.failed = true
			zap.L().Warn("retrieval: tier failed", zap.String("tier", string(t)), zap.Error(err))
		}
		return out
	}
	for i := range cands {
		cands[i].Source.Type = t
		if ceil := t.ReliabilityCeiling(); cands[i].Source.ReliabilityScore > ceil {
			cands[i].Source.ReliabilityScore = ceil
		}
	}
	if len(cands) > m.opts.MaxResultsPerTier {
		cands = cands[:m.opts.MaxResultsPerTier]
	}
	out.cands = cands
	return out
}

// dedupe keeps the first candidate per source id.
func dedupe(cands []Candidate) []Candidate {
	seen := make(map[string]bool, len(cands))
	out := cands[:0]
	for _, c := range cands {
		if seen[c.Source.ID] {
			continue
		}
		seen[c.Source.ID] = true
		out = append(out, c)
	}
	return out
}
