package evidence

import "context"

// GenerationRequest is the payload sent to the generation procedure.
type GenerationRequest struct {
	FunctionName     string         `json:"function_name"`
	ProjectID        string         `json:"project_id"`
	UserID           string         `json:"user_id"`
	EvidenceMode     EvidenceMode   `json:"evidence_mode"`
	Tier1Enabled     bool           `json:"tier_1_enabled"`
	Tier2Enabled     bool           `json:"tier_2_enabled"`
	Tier3Enabled     bool           `json:"tier_3_enabled"`
	Tier4Enabled     bool           `json:"tier_4_enabled"`
	BlockedDomains   []string       `json:"blocked_domains"`
	MaxSourceAgeDays *int           `json:"max_source_age_days,omitempty"`
	AdditionalParams map[string]any `json:"additional_params,omitempty"`
}

// Tiers lists the enabled tiers of the request in priority order.
func (r GenerationRequest) Tiers() []SourceTier {
	flags := []bool{r.Tier1Enabled, r.Tier2Enabled, r.Tier3Enabled, r.Tier4Enabled}
	var out []SourceTier
	for i, on := range flags {
		if on {
			out = append(out, AllTiers[i])
		}
	}
	return out
}

// GenerationOutcome is what the procedure returns: either a result or a
// strict block signal.
type GenerationOutcome struct {
	Result *GenerationResult
	Block  *StrictModeExitOptions
}

// Phase is a progress marker a procedure can report while it runs.
type Phase string

const (
	PhaseSearching  Phase = "searching"
	PhaseGenerating Phase = "generating"
)

type phaseKey struct{}

// WithPhaseReporter attaches a progress callback to ctx.
func WithPhaseReporter(ctx context.Context, fn func(Phase)) context.Context {
	return context.WithValue(ctx, phaseKey{}, fn)
}

// ReportPhase notifies the reporter attached to ctx, if any.
func ReportPhase(ctx context.Context, p Phase) {
	if fn, ok := ctx.Value(phaseKey{}).(func(Phase)); ok && fn != nil {
		fn(p)
	}
}
