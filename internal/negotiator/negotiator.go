// Package negotiator resolves a strict block with the action the user
// picked from the exit options.
package negotiator

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/orchestrator"
	"github.com/sells-group/evidence-cli/internal/tierconfig"
)

// Workflow is the orchestrator surface the negotiator drives.
type Workflow interface {
	State() orchestrator.State
	Generate(ctx context.Context, cfg tierconfig.GenerationConfig, params map[string]any) (*evidence.GenerationResult, error)
	Cancel()
}

// Negotiator handles exit actions for one workflow.
type Negotiator struct {
	wf Workflow
}

// New returns a negotiator for wf.
func New(wf Workflow) *Negotiator {
	return &Negotiator{wf: wf}
}

// HandleStrictModeExit applies action to the blocked workflow.
//
// search_more re-runs the blocked attempt with the same config and may block
// again. continue_as_hypothesis re-runs it in hypothesis mode, so the result
// is never labeled evidence backed. cancel returns the workflow to Idle
// without a remote call. An action the block does not offer, including any
// action when the options are missing or empty, is handled as cancel.
func (n *Negotiator) HandleStrictModeExit(ctx context.Context, action evidence.ExitAction) (*evidence.GenerationResult, error) {
	blocked, ok := n.wf.State().(orchestrator.Blocked)
	if !ok {
		return nil, orchestrator.ErrNotBlocked
	}
	return n.resolve(ctx, blocked, action, blocked.Config)
}

// SearchMoreWith re-runs the blocked attempt with a widened config, for
// callers that let the user enable more tiers or unblock domains first.
func (n *Negotiator) SearchMoreWith(ctx context.Context, cfg tierconfig.GenerationConfig) (*evidence.GenerationResult, error) {
	blocked, ok := n.wf.State().(orchestrator.Blocked)
	if !ok {
		return nil, orchestrator.ErrNotBlocked
	}
	return n.resolve(ctx, blocked, evidence.ActionSearchMore, cfg)
}

func (n *Negotiator) resolve(ctx context.Context, blocked orchestrator.Blocked, action evidence.ExitAction, cfg tierconfig.GenerationConfig) (*evidence.GenerationResult, error) {
	log := zap.L().With(zap.String("attempt_id", blocked.AttemptID), zap.String("action", string(action)))

	if !blocked.Options.Offers(action) {
		if action != evidence.ActionCancel {
			log.Warn("negotiator: action not offered, cancelling")
		}
		action = evidence.ActionCancel
	}

	switch action {
	case evidence.ActionSearchMore:
		log.Info("negotiator: searching for more sources")
		return n.wf.Generate(ctx, cfg, blocked.Params)
	case evidence.ActionContinueAsHypothesis:
		log.Info("negotiator: continuing as hypothesis")
		return n.wf.Generate(ctx, blocked.Config.WithMode(evidence.ModeHypothesis), blocked.Params)
	default:
		log.Info("negotiator: generation cancelled")
		n.wf.Cancel()
		return nil, nil
	}
}
