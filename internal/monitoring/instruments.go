package monitoring

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/evidence-cli/internal/orchestrator"
)

const namespace = "evidence"

// Instruments exports live workflow and HTTP metrics for Prometheus. It is
// fed by orchestrator transitions, so it sees attempts as they happen rather
// than through the generation log.
type Instruments struct {
	reg *prometheus.Registry

	attempts     *prometheus.CounterVec
	results      *prometheus.CounterVec
	blocks       *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	coverage     prometheus.Histogram
	inFlight     prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	mu     sync.Mutex
	starts map[string]time.Time
}

// NewInstruments registers the metric set on a private registry.
func NewInstruments() *Instruments {
	in := &Instruments{
		reg:    prometheus.NewRegistry(),
		starts: make(map[string]time.Time),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attempts_total",
			Help:      "Finished generation attempts by outcome.",
		}, []string{"outcome"}), // complete, blocked, failed
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_total",
			Help:      "Completed generations by evidence status.",
		}, []string{"status"}),
		blocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strict_blocks_total",
			Help:      "Strict mode blocks by reason.",
		}, []string{"reason"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "attempt_duration_seconds",
			Help:      "Time from submission to a terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10), // 250ms to ~2m
		}, []string{"outcome"}),
		coverage: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "coverage_percent",
			Help:      "Coverage of completed generations.",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "attempts_in_flight",
			Help:      "Attempts currently searching or generating.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	in.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		in.attempts, in.results, in.blocks, in.duration, in.coverage, in.inFlight,
		in.httpRequests, in.httpDuration,
	)
	return in
}

// Observe is an orchestrator.Listener.
func (in *Instruments) Observe(t orchestrator.Transition) {
	in.mu.Lock()
	defer in.mu.Unlock()

	switch to := t.To.(type) {
	case orchestrator.Searching:
		in.starts[t.WorkflowID] = t.At
	case orchestrator.Generating:
		if _, searching := t.From.(orchestrator.Searching); !searching {
			in.starts[t.WorkflowID] = t.At
		}
	case orchestrator.Complete:
		in.finish(t, "complete")
		if to.Result != nil {
			in.results.WithLabelValues(string(to.Result.EvidenceStatus)).Inc()
			in.coverage.Observe(float64(to.Result.CoveragePercentage))
		}
	case orchestrator.Blocked:
		in.finish(t, "blocked")
		reason := "unknown"
		if to.Options != nil {
			reason = string(to.Options.Reason)
		}
		in.blocks.WithLabelValues(reason).Inc()
	case orchestrator.Failed:
		in.finish(t, "failed")
	case orchestrator.Idle:
		delete(in.starts, t.WorkflowID)
	}
	in.inFlight.Set(float64(len(in.starts)))
}

func (in *Instruments) finish(t orchestrator.Transition, outcome string) {
	in.attempts.WithLabelValues(outcome).Inc()
	if start, ok := in.starts[t.WorkflowID]; ok {
		in.duration.WithLabelValues(outcome).Observe(t.At.Sub(start).Seconds())
		delete(in.starts, t.WorkflowID)
	}
}

// ObserveRequest records one served HTTP request. route is the matched
// pattern, not the raw path.
func (in *Instruments) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	in.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	in.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func (in *Instruments) Handler() http.Handler {
	return promhttp.HandlerFor(in.reg, promhttp.HandlerOpts{Registry: in.reg})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (in *Instruments) Registry() *prometheus.Registry { return in.reg }
