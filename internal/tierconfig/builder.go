// Package tierconfig turns tier toggles and a mode selection into the
// configuration of one evidence-backed generation.
package tierconfig

import (
	"sort"
	"strings"

	"github.com/sells-group/evidence-cli/internal/evidence"
)

// ErrNoTiersEnabled rejects a searching mode with every tier switched off.
var ErrNoTiersEnabled = &evidence.ConfigurationError{
	Field:  "tiers",
	Reason: "at least one source tier must be enabled unless evidence mode is hypothesis",
}

// UIState is the raw pre-generation form input.
type UIState struct {
	EvidenceMode     evidence.EvidenceMode `json:"evidenceMode"`
	Tier1Enabled     bool                  `json:"tier1Enabled"`
	Tier2Enabled     bool                  `json:"tier2Enabled"`
	Tier3Enabled     bool                  `json:"tier3Enabled"`
	Tier4Enabled     bool                  `json:"tier4Enabled"`
	BlockedDomains   []string              `json:"blockedDomains"`
	MaxSourceAgeDays *int                  `json:"maxSourceAgeDays,omitempty"`
}

// DefaultUIState enables tiers 1-3 and leaves news off.
func DefaultUIState(mode evidence.EvidenceMode) UIState {
	if mode == "" {
		mode = evidence.ModeBalanced
	}
	return UIState{
		EvidenceMode: mode,
		Tier1Enabled: true,
		Tier2Enabled: true,
		Tier3Enabled: true,
		Tier4Enabled: false,
	}
}

// GenerationConfig is the validated-at-submit payload handed to the
// orchestrator.
type GenerationConfig struct {
	EvidenceMode     evidence.EvidenceMode `json:"evidenceMode"`
	Tier1Enabled     bool                  `json:"tier1Enabled"`
	Tier2Enabled     bool                  `json:"tier2Enabled"`
	Tier3Enabled     bool                  `json:"tier3Enabled"`
	Tier4Enabled     bool                  `json:"tier4Enabled"`
	BlockedDomains   []string              `json:"blockedDomains"`
	MaxSourceAgeDays *int                  `json:"maxSourceAgeDays,omitempty"`
}

// Build converts form state into a GenerationConfig. It is total: tier flags
// are preserved in hypothesis mode so a later mode switch can restore them,
// and blocked domains are normalized (lowercased, trimmed, deduplicated,
// sorted).
func Build(state UIState) GenerationConfig {
	mode := state.EvidenceMode
	if mode == "" {
		mode = evidence.ModeBalanced
	}
	var maxAge *int
	if state.MaxSourceAgeDays != nil && *state.MaxSourceAgeDays > 0 {
		v := *state.MaxSourceAgeDays
		maxAge = &v
	}
	return GenerationConfig{
		EvidenceMode:     mode,
		Tier1Enabled:     state.Tier1Enabled,
		Tier2Enabled:     state.Tier2Enabled,
		Tier3Enabled:     state.Tier3Enabled,
		Tier4Enabled:     state.Tier4Enabled,
		BlockedDomains:   normalizeDomains(state.BlockedDomains),
		MaxSourceAgeDays: maxAge,
	}
}

// AnyTierEnabled reports whether at least one tier flag is set.
func (c GenerationConfig) AnyTierEnabled() bool {
	return c.Tier1Enabled || c.Tier2Enabled || c.Tier3Enabled || c.Tier4Enabled
}

// Validate rejects searching modes without tiers and unknown modes.
func (c GenerationConfig) Validate() error {
	if !c.EvidenceMode.Valid() {
		return &evidence.ConfigurationError{Field: "evidence_mode", Reason: "unknown evidence mode " + string(c.EvidenceMode)}
	}
	if c.EvidenceMode != evidence.ModeHypothesis && !c.AnyTierEnabled() {
		return ErrNoTiersEnabled
	}
	return nil
}

// CanSubmit is the submit gate: the form may only be submitted when the
// built config validates.
func CanSubmit(state UIState) bool {
	return Build(state).Validate() == nil
}

// PlannedTiers lists the tiers a generation with c will search, in priority
// order. Hypothesis mode plans no search.
func PlannedTiers(c GenerationConfig) []evidence.SourceTier {
	if c.EvidenceMode == evidence.ModeHypothesis {
		return nil
	}
	return c.policy().EnabledTiers()
}

// WithMode returns a copy of c with a different mode, tier flags untouched.
func (c GenerationConfig) WithMode(mode evidence.EvidenceMode) GenerationConfig {
	c.EvidenceMode = mode
	c.BlockedDomains = append([]string(nil), c.BlockedDomains...)
	return c
}

// Request builds the generation procedure payload. In hypothesis mode the
// tier flags are not sent: no search is requested.
func (c GenerationConfig) Request(function, projectID, userID string, params map[string]any) evidence.GenerationRequest {
	req := evidence.GenerationRequest{
		FunctionName:     function,
		ProjectID:        projectID,
		UserID:           userID,
		EvidenceMode:     c.EvidenceMode,
		BlockedDomains:   append([]string{}, c.BlockedDomains...),
		MaxSourceAgeDays: c.MaxSourceAgeDays,
		AdditionalParams: params,
	}
	if c.EvidenceMode != evidence.ModeHypothesis {
		req.Tier1Enabled = c.Tier1Enabled
		req.Tier2Enabled = c.Tier2Enabled
		req.Tier3Enabled = c.Tier3Enabled
		req.Tier4Enabled = c.Tier4Enabled
	}
	return req
}

// DefaultMinReliability is the reliability floor of a new source policy.
const DefaultMinReliability = 40

// Policy converts c into a source policy for project/user with the standard
// reliability floor and HTTPS requirement.
func (c GenerationConfig) Policy(projectID, userID string) evidence.SourcePolicy {
	p := c.policy()
	p.ProjectID = projectID
	p.UserID = userID
	return p
}

func (c GenerationConfig) policy() evidence.SourcePolicy {
	return evidence.SourcePolicy{
		EvidenceMode:        c.EvidenceMode,
		Tier1Enabled:        c.Tier1Enabled,
		Tier2Enabled:        c.Tier2Enabled,
		Tier3Enabled:        c.Tier3Enabled,
		Tier4Enabled:        c.Tier4Enabled,
		BlockedDomains:      append([]string{}, c.BlockedDomains...),
		AllowedDomains:      []string{},
		MaxSourceAgeDays:    c.MaxSourceAgeDays,
		MinReliabilityScore: DefaultMinReliability,
		RequireHTTPS:        true,
	}
}

// FromPolicy restores form state from a persisted policy.
func FromPolicy(p evidence.SourcePolicy) UIState {
	return UIState{
		EvidenceMode:     p.EvidenceMode,
		Tier1Enabled:     p.Tier1Enabled,
		Tier2Enabled:     p.Tier2Enabled,
		Tier3Enabled:     p.Tier3Enabled,
		Tier4Enabled:     p.Tier4Enabled,
		BlockedDomains:   append([]string(nil), p.BlockedDomains...),
		MaxSourceAgeDays: p.MaxSourceAgeDays,
	}
}

func normalizeDomains(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, d := range in {
		d = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	sort.Strings(out)
	return out
}
