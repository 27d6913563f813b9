package evidence

import (
	"fmt"
	"time"
)

// HypothesisLimitation is attached to every result produced without
// evidence requirements.
const HypothesisLimitation = "Generated without evidence - hypothesis only"

// Verdict is the outcome of applying a mode's policy to a result.
type Verdict string

const (
	VerdictProceed Verdict = "proceed"
	VerdictBlock   Verdict = "block"
)

// Decision is the policy outcome. Result is set when the verdict is proceed,
// ExitOptions when it is block.
type Decision struct {
	Verdict     Verdict
	Result      *GenerationResult
	ExitOptions *StrictModeExitOptions
}

// Blocked reports whether the decision is a strict block.
func (d Decision) Blocked() bool { return d.Verdict == VerdictBlock }

// DefaultStrictContract applies to strict generations of functions that have
// no contract of their own.
func DefaultStrictContract(function string) EvidenceContract {
	return EvidenceContract{
		FunctionName:         function,
		MinTotalSources:      1,
		RequireTier1Or2:      true,
		AllowPartialEvidence: true,
		BlockOnFailure:       true,
	}
}

// Evaluate applies the evidence policy of mode to result. It is the single
// place where strict, balanced and hypothesis semantics are decided.
//
// A nil contract in strict mode falls back to DefaultStrictContract. The
// input result is never modified; a proceed decision carries a copy.
func Evaluate(mode EvidenceMode, result *GenerationResult, contract *EvidenceContract) Decision {
	return evaluateAt(time.Now(), mode, result, contract)
}

func evaluateAt(now time.Time, mode EvidenceMode, result *GenerationResult, contract *EvidenceContract) Decision {
	if result == nil {
		result = &GenerationResult{EvidenceStatus: StatusNoEvidence}
	}
	switch mode {
	case ModeHypothesis:
		return Decision{Verdict: VerdictProceed, Result: AsHypothesis(result)}
	case ModeStrict:
		c := DefaultStrictContract(result.FunctionName)
		if contract != nil {
			c = *contract
		}
		if !c.BlockOnFailure {
			return Decision{Verdict: VerdictProceed, Result: result.Clone()}
		}
		if opts := checkStrict(now, result, c); opts != nil {
			return Decision{Verdict: VerdictBlock, ExitOptions: opts}
		}
		return Decision{Verdict: VerdictProceed, Result: result.Clone()}
	default:
		return Decision{Verdict: VerdictProceed, Result: result.Clone()}
	}
}

// AsHypothesis relabels a result so it can never claim to be evidence
// backed: empty results become no_evidence and anything else with claims
// becomes partial_evidence.
func AsHypothesis(result *GenerationResult) *GenerationResult {
	out := result.Clone()
	out.EvidenceMode = ModeHypothesis
	if out.EvidenceStatus != StatusNoEvidence {
		if len(out.Claims) == 0 && out.CoveragePercentage == 0 {
			out.EvidenceStatus = StatusNoEvidence
		} else {
			out.EvidenceStatus = StatusPartialEvidence
		}
	}
	for _, l := range out.Limitations {
		if l == HypothesisLimitation {
			return out
		}
	}
	out.Limitations = append(out.Limitations, HypothesisLimitation)
	return out
}

func checkStrict(now time.Time, r *GenerationResult, c EvidenceContract) *StrictModeExitOptions {
	block := func(reason ExitReason, detail string) *StrictModeExitOptions {
		return NewExitOptions(reason, detail, r, c)
	}

	if r.SourcesFound < c.MinTotalSources {
		return block(ReasonInsufficientSources,
			fmt.Sprintf("found %d sources, required %d", r.SourcesFound, c.MinTotalSources))
	}

	if c.RequireTier1Or2 && !hasTier1Or2(r.SourcesUsed) {
		return block(ReasonNoTier1Or2, "no user document or official API source found")
	}

	for _, def := range c.Claims {
		claim, ok := findClaim(r.Claims, def.ID)
		if !ok {
			return block(ReasonInsufficientSources, fmt.Sprintf("missing required claim %q", def.ClaimText))
		}
		if def.SourcesMin > 0 && len(claim.Citations) < def.SourcesMin {
			return block(ReasonInsufficientSources,
				fmt.Sprintf("claim %q has %d sources, requires %d", def.ClaimText, len(claim.Citations), def.SourcesMin))
		}
		if def.RequiresIndependence && !SourcesIndependent(citedSources(r.SourcesUsed, claim.Citations)) {
			return block(ReasonInsufficientSources,
				fmt.Sprintf("claim %q requires independent sources", def.ClaimText))
		}
		if def.MaxAgeDays > 0 {
			cutoff := now.AddDate(0, 0, -def.MaxAgeDays)
			for _, cit := range claim.Citations {
				if pub, ok := ParseDate(cit.DatePublished); ok && pub.Before(cutoff) {
					return block(ReasonInsufficientSources,
						fmt.Sprintf("claim %q cites sources older than %d days", def.ClaimText, def.MaxAgeDays))
				}
			}
		}
	}

	if r.EvidenceStatus == StatusConflicting || len(r.Conflicts) > 0 {
		return block(ReasonConflictingEvidence, fmt.Sprintf("%d conflicting claims", len(r.Conflicts)))
	}

	if r.CoveragePercentage < c.RequiredCoverage() {
		return block(ReasonInsufficientSources,
			fmt.Sprintf("coverage %d%% below required %d%%", r.CoveragePercentage, c.RequiredCoverage()))
	}
	return nil
}

// NewExitOptions builds the standard three-option remediation offer.
func NewExitOptions(reason ExitReason, detail string, r *GenerationResult, c EvidenceContract) *StrictModeExitOptions {
	return &StrictModeExitOptions{
		Reason:           reason,
		Detail:           detail,
		CurrentCoverage:  r.CoveragePercentage,
		RequiredCoverage: c.RequiredCoverage(),
		SourcesFound:     r.SourcesFound,
		SourcesRequired:  c.MinTotalSources,
		Options:          StandardExitOptions(),
	}
}

// StandardExitOptions returns the search-more, hypothesis and cancel choices.
func StandardExitOptions() []ExitOption {
	return []ExitOption{
		{
			Action:      ActionSearchMore,
			Label:       "Search for more sources",
			Description: "Expand search to more databases or adjust source filters to find additional evidence",
		},
		{
			Action:      ActionContinueAsHypothesis,
			Label:       "Continue as hypothesis",
			Description: `Proceed with generation but clearly mark output as "hypothesis" with limited evidence`,
			Warning:     "Output will be marked as unverified hypothesis. Not recommended for critical decisions.",
		},
		{
			Action:      ActionCancel,
			Label:       "Cancel generation",
			Description: "Cancel this AI generation and return to manual entry",
		},
	}
}

func hasTier1Or2(sources []RealSource) bool {
	for _, s := range sources {
		if n := s.Type.Number(); n == 1 || n == 2 {
			return true
		}
	}
	return false
}

func findClaim(claims []ClaimWithEvidence, id string) (ClaimWithEvidence, bool) {
	for _, c := range claims {
		if c.ClaimID == id {
			return c, true
		}
	}
	return ClaimWithEvidence{}, false
}

func citedSources(sources []RealSource, citations []Citation) []RealSource {
	ids := make(map[string]struct{}, len(citations))
	for _, c := range citations {
		ids[c.SourceID] = struct{}{}
	}
	var out []RealSource
	for _, s := range sources {
		if _, ok := ids[s.ID]; ok {
			out = append(out, s)
		}
	}
	return out
}
