// Package orchestrator runs one generation workflow: validate, search,
// generate, then apply the evidence policy of the chosen mode.
//
// A workflow holds exactly one State. Only one attempt may be in flight; a
// result that arrives after its attempt was canceled or superseded is
// dropped without touching the state.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/model"
	"github.com/sells-group/evidence-cli/internal/tierconfig"
)

// Invoker runs the generation procedure, remotely or in process.
type Invoker interface {
	Invoke(ctx context.Context, req evidence.GenerationRequest) (*evidence.GenerationOutcome, error)
}

// Recorder persists finished attempts.
type Recorder interface {
	LogGeneration(ctx context.Context, entry *model.GenerationLog) error
}

// Transition is emitted on every state change.
type Transition struct {
	WorkflowID string
	From       State
	To         State
	At         time.Time
}

// Listener observes transitions. It runs with the workflow locked and must
// not call back into the workflow.
type Listener func(Transition)

// Options configure a Workflow.
type Options struct {
	ProjectID string
	UserID    string
	Function  string
	Registry  *evidence.Registry
	Recorder  Recorder
	Listener  Listener
}

// Workflow is one generation surface: a function run for a project.
type Workflow struct {
	id       string
	invoker  Invoker
	opts     Options
	registry *evidence.Registry
	now      func() time.Time

	mu      sync.Mutex
	state   State
	attempt string
	cancel  context.CancelFunc
}

// New creates an Idle workflow.
func New(invoker Invoker, opts Options) *Workflow {
	reg := opts.Registry
	if reg == nil {
		reg = evidence.DefaultRegistry()
	}
	return &Workflow{
		id:       uuid.NewString(),
		invoker:  invoker,
		opts:     opts,
		registry: reg,
		now:      time.Now,
		state:    Idle{},
	}
}

// ID identifies the workflow.
func (w *Workflow) ID() string { return w.id }

// Function is the generation function the workflow runs.
func (w *Workflow) Function() string { return w.opts.Function }

// ProjectID is the project the workflow runs for.
func (w *Workflow) ProjectID() string { return w.opts.ProjectID }

// State returns the current state.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Result returns the accepted result, or nil outside Complete.
func (w *Workflow) Result() *evidence.GenerationResult {
	if c, ok := w.State().(Complete); ok {
		return c.Result
	}
	return nil
}

// Generate runs one attempt and blocks until it ends.
//
// It returns the result on Complete. A strict block returns (nil, nil) with
// the workflow in Blocked; read the exit options from State. Configuration
// errors are returned before any remote call. Remote failures come back as
// *TransportError with the workflow back in Idle. ErrStale means the attempt
// was canceled while it ran.
func (w *Workflow) Generate(ctx context.Context, cfg tierconfig.GenerationConfig, params map[string]any) (*evidence.GenerationResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	attempt, actx, err := w.begin(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer w.release(attempt)

	log := zap.L().With(
		zap.String("workflow_id", w.id),
		zap.String("attempt_id", attempt),
		zap.String("function", w.opts.Function),
		zap.String("mode", string(cfg.EvidenceMode)),
	)

	actx = evidence.WithPhaseReporter(actx, func(p evidence.Phase) {
		if p == evidence.PhaseGenerating {
			w.advance(attempt, Generating{AttemptID: attempt})
		}
	})

	start := w.now()
	req := cfg.Request(w.opts.Function, w.opts.ProjectID, w.opts.UserID, params)
	outcome, err := w.invoker.Invoke(actx, req)
	elapsed := w.now().Sub(start)

	result, entry, err := w.settle(attempt, cfg, params, outcome, err, elapsed, log)
	if entry != nil {
		w.record(ctx, entry)
	}
	return result, err
}

// settle applies a finished attempt to the state and returns the log entry
// to write once the lock is released.
func (w *Workflow) settle(attempt string, cfg tierconfig.GenerationConfig, params map[string]any,
	outcome *evidence.GenerationOutcome, err error, elapsed time.Duration, log *zap.Logger,
) (*evidence.GenerationResult, *model.GenerationLog, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.attempt != attempt {
		log.Info("orchestrator: dropped stale result", zap.Error(err))
		return nil, nil, ErrStale
	}

	if err == nil && (outcome == nil || (outcome.Result == nil && outcome.Block == nil)) {
		err = eris.New("empty response from generation procedure")
	}
	if err == nil && outcome.Block != nil && cfg.EvidenceMode != evidence.ModeStrict {
		err = eris.Errorf("generation procedure sent a block signal in %s mode", cfg.EvidenceMode)
	}
	if err != nil {
		terr := &TransportError{Function: w.opts.Function, Err: err}
		w.transition(Failed{Err: terr})
		w.transition(Idle{})
		log.Warn("orchestrator: generation failed", zap.Error(err))
		return nil, w.entry(cfg, &model.GenerationLog{Outcome: model.OutcomeFailed, Error: err.Error(), DurationMS: elapsed.Milliseconds()}), terr
	}

	if outcome.Block != nil {
		log.Info("orchestrator: blocked by generation procedure", zap.String("reason", string(outcome.Block.Reason)))
		return nil, w.block(cfg, params, attempt, outcome.Block, elapsed), nil
	}

	var contract *evidence.EvidenceContract
	if cfg.EvidenceMode == evidence.ModeStrict {
		contract = w.registry.Contract(w.opts.Function)
	}
	decision := evidence.Evaluate(cfg.EvidenceMode, outcome.Result, contract)
	if decision.Blocked() {
		log.Info("orchestrator: blocked by strict policy",
			zap.String("reason", string(decision.ExitOptions.Reason)),
			zap.Int("coverage", decision.ExitOptions.CurrentCoverage))
		return nil, w.block(cfg, params, attempt, decision.ExitOptions, elapsed), nil
	}

	result := decision.Result
	if result.GenerationID == "" {
		result.GenerationID = uuid.NewString()
	}
	w.transition(Complete{Result: result})
	log.Info("orchestrator: generation complete",
		zap.String("status", string(result.EvidenceStatus)),
		zap.Int("coverage", result.CoveragePercentage),
		zap.Duration("elapsed", elapsed))
	return result, w.entry(cfg, &model.GenerationLog{
		Outcome:      model.OutcomeComplete,
		Status:       result.EvidenceStatus,
		Coverage:     result.CoveragePercentage,
		SourcesFound: result.SourcesFound,
		ClaimsCount:  len(result.Claims),
		DurationMS:   elapsed.Milliseconds(),
		Result:       result,
	}), nil
}

// Cancel abandons the current attempt and returns to Idle. An in-flight
// call is asked to stop, but its result is dropped whether or not it does.
func (w *Workflow) Cancel() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.attempt = ""
	w.transition(Idle{})
}

func (w *Workflow) begin(ctx context.Context, cfg tierconfig.GenerationConfig) (string, context.Context, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if InFlight(w.state) {
		return "", nil, ErrInFlight
	}

	attempt := uuid.NewString()
	actx, cancel := context.WithCancel(ctx)
	w.attempt = attempt
	w.cancel = cancel

	if tiers := tierconfig.PlannedTiers(cfg); len(tiers) > 0 {
		w.transition(Searching{AttemptID: attempt, Tiers: tiers})
	} else {
		w.transition(Generating{AttemptID: attempt})
	}
	return attempt, actx, nil
}

// release frees the attempt's context once it has finished.
func (w *Workflow) release(attempt string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.attempt == attempt && w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
}

// advance moves a live attempt forward. Stale attempts are ignored.
func (w *Workflow) advance(attempt string, to State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.attempt != attempt || w.state.Phase() == to.Phase() {
		return
	}
	w.transition(to)
}

// block enters Blocked. Callers hold w.mu.
func (w *Workflow) block(cfg tierconfig.GenerationConfig, params map[string]any, attempt string, opts *evidence.StrictModeExitOptions, elapsed time.Duration) *model.GenerationLog {
	w.transition(Blocked{AttemptID: attempt, Options: opts, Config: cfg, Params: params})
	entry := &model.GenerationLog{Outcome: model.OutcomeBlocked, DurationMS: elapsed.Milliseconds()}
	if opts != nil {
		entry.BlockReason = opts.Reason
		entry.Coverage = opts.CurrentCoverage
		entry.SourcesFound = opts.SourcesFound
	}
	return w.entry(cfg, entry)
}

// transition replaces the state. Callers hold w.mu.
func (w *Workflow) transition(to State) {
	from := w.state
	w.state = to
	zap.L().Debug("orchestrator: transition",
		zap.String("workflow_id", w.id),
		zap.String("from", string(from.Phase())),
		zap.String("to", string(to.Phase())))
	if w.opts.Listener != nil {
		w.opts.Listener(Transition{WorkflowID: w.id, From: from, To: to, At: w.now()})
	}
}

// entry stamps a log entry with the workflow's identity. Callers hold w.mu.
func (w *Workflow) entry(cfg tierconfig.GenerationConfig, e *model.GenerationLog) *model.GenerationLog {
	e.ProjectID = w.opts.ProjectID
	e.UserID = w.opts.UserID
	e.FunctionName = w.opts.Function
	e.Mode = cfg.EvidenceMode
	if e.Result != nil {
		e.ID = e.Result.GenerationID
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.CreatedAt = w.now().UTC()
	return e
}

// record writes the attempt to the generation log without holding w.mu.
// Logging failures never change the outcome.
func (w *Workflow) record(ctx context.Context, e *model.GenerationLog) {
	if w.opts.Recorder == nil {
		return
	}
	if err := w.opts.Recorder.LogGeneration(context.WithoutCancel(ctx), e); err != nil {
		zap.L().Warn("orchestrator: record generation", zap.String("workflow_id", w.id), zap.Error(err))
	}
}
