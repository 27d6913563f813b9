package monitoring

import (
	"context"
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/store"
)

// collectLimit caps how many generation logs one snapshot reads.
const collectLimit = 10000

// MetricsSnapshot holds a point-in-time view of generation health.
type MetricsSnapshot struct {
	// Attempts within the lookback window.
	Total    int `json:"total"`
	Complete int `json:"complete"`
	Blocked  int `json:"blocked"`
	Failed   int `json:"failed"`

	ByStatus      map[evidence.EvidenceStatus]int `json:"by_status"`
	ByBlockReason map[evidence.ExitReason]int     `json:"by_block_reason"`
	ByFunction    map[string]int                  `json:"by_function"`

	BlockRate   float64 `json:"block_rate"`
	FailRate    float64 `json:"fail_rate"`
	Wasted      int     `json:"wasted"`
	WasteRate   float64 `json:"waste_rate"`
	AvgCoverage float64 `json:"avg_coverage"`

	P50LatencyMs int64 `json:"p50_latency_ms"`
	P95LatencyMs int64 `json:"p95_latency_ms"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// GenerationLister is the slice of the store the collector reads.
type GenerationLister interface {
	ListGenerations(ctx context.Context, filter store.GenerationFilter) ([]model.GenerationLog, error)
}

// Collector gathers metrics from generation logs.
type Collector struct {
	store GenerationLister
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st GenerationLister) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window. projectID may
// be empty to cover every project.
func (c *Collector) Collect(ctx context.Context, projectID string, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	logs, err := c.store.ListGenerations(ctx, store.GenerationFilter{
		ProjectID: projectID,
		Since:     now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:     collectLimit,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list generations")
	}
	snap := Summarize(logs)
	snap.LookbackHours = lookbackHours
	snap.CollectedAt = now
	return snap, nil
}

// Summarize aggregates a set of generation logs.
func Summarize(logs []model.GenerationLog) *MetricsSnapshot {
	snap := &MetricsSnapshot{
		Total:         len(logs),
		ByStatus:      make(map[evidence.EvidenceStatus]int),
		ByBlockReason: make(map[evidence.ExitReason]int),
		ByFunction:    make(map[string]int),
	}

	var coverage int
	latencies := make([]int64, 0, len(logs))
	for _, l := range logs {
		snap.ByFunction[l.FunctionName]++
		switch l.Outcome {
		case model.OutcomeComplete:
			snap.Complete++
			snap.ByStatus[l.Status]++
			coverage += l.Coverage
			if l.Wasted() {
				snap.Wasted++
			}
		case model.OutcomeBlocked:
			snap.Blocked++
			snap.ByBlockReason[l.BlockReason]++
		case model.OutcomeFailed:
			snap.Failed++
		}
		if l.Outcome != model.OutcomeFailed {
			latencies = append(latencies, l.DurationMS)
		}
	}

	if snap.Total > 0 {
		snap.BlockRate = float64(snap.Blocked) / float64(snap.Total)
		snap.FailRate = float64(snap.Failed) / float64(snap.Total)
	}
	if snap.Complete > 0 {
		snap.WasteRate = float64(snap.Wasted) / float64(snap.Complete)
		snap.AvgCoverage = float64(coverage) / float64(snap.Complete)
	}
	snap.P50LatencyMs = percentile(latencies, 50)
	snap.P95LatencyMs = percentile(latencies, 95)
	return snap
}

// percentile uses the nearest-rank method.
func percentile(values []int64, p int) int64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]int64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := (p*len(sorted) + 99) / 100
	if rank < 1 {
		rank = 1
	}
	return sorted[rank-1]
}
