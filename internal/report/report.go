// Package report turns a GenerationResult into a display model and renders
// it as text. Assembly never recomputes what the producer decided: coverage
// and claim statuses are shown as received.
package report

import (
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/evidence"
)

// ErrUnknownStatus flags an evidence or claim status with no presentation.
var ErrUnknownStatus = eris.New("report: unknown evidence status")

// Tone is the visual weight of a status.
type Tone string

const (
	ToneSuccess Tone = "success"
	ToneWarning Tone = "warning"
	ToneMuted   Tone = "muted"
	ToneDanger  Tone = "danger"
)

// Presentation is how an evidence status is shown.
type Presentation struct {
	Label string `json:"label"`
	Tone  Tone   `json:"tone"`
}

var presentations = map[evidence.EvidenceStatus]Presentation{
	evidence.StatusEvidenceBacked:  {Label: "Evidence Backed", Tone: ToneSuccess},
	evidence.StatusPartialEvidence: {Label: "Partial Evidence", Tone: ToneWarning},
	evidence.StatusNoEvidence:      {Label: "No Evidence (Hypothesis)", Tone: ToneMuted},
	evidence.StatusConflicting:     {Label: "Conflicting Evidence", Tone: ToneDanger},
}

// Present maps a status to its presentation. Unknown statuses are an error,
// never a default.
func Present(s evidence.EvidenceStatus) (Presentation, error) {
	p, ok := presentations[s]
	if !ok {
		return Presentation{}, eris.Wrapf(ErrUnknownStatus, "status %q", s)
	}
	return p, nil
}

// Report is the assembled view of one generation.
type Report struct {
	GenerationID      string                       `json:"generation_id"`
	FunctionName      string                       `json:"function_name"`
	Mode              evidence.EvidenceMode        `json:"evidence_mode,omitempty"`
	Status            evidence.EvidenceStatus      `json:"evidence_status"`
	Presentation      Presentation                 `json:"presentation"`
	Coverage          int                          `json:"coverage_percentage"`
	ClaimsSupported   int                          `json:"claims_supported"`
	ClaimsWeak        int                          `json:"claims_weak"`
	ClaimsUnsupported int                          `json:"claims_unsupported"`
	SourcesPlanned    int                          `json:"sources_planned"`
	SourcesFound      int                          `json:"sources_found"`
	SourcesByTier     map[evidence.SourceTier]int  `json:"sources_by_tier"`
	Claims            []evidence.ClaimWithEvidence `json:"claims"`
	Sources           []evidence.RealSource        `json:"sources"`
	Conflicts         []Conflict                   `json:"conflicts"`
	Limitations       []string                     `json:"limitations,omitempty"`
	Content           json.RawMessage              `json:"content,omitempty"`
}

// Conflict is a conflict ready for display. Unresolved conflicts are kept
// and flagged.
type Conflict struct {
	ClaimID        string                  `json:"claim_id"`
	Values         []ConflictValue         `json:"values"`
	Resolved       bool                    `json:"resolved"`
	Resolution     string                  `json:"resolution,omitempty"`
	ResolutionType evidence.ResolutionType `json:"resolution_type,omitempty"`
}

// ConflictValue is one disagreeing value and how many citations assert it.
type ConflictValue struct {
	Value     string `json:"value"`
	Citations int    `json:"citations"`
}

// Assemble builds the report for r. It fails on a nil result or on any
// status it cannot present.
func Assemble(r *evidence.GenerationResult) (*Report, error) {
	if r == nil {
		return nil, eris.New("report: nil result")
	}
	pres, err := Present(r.EvidenceStatus)
	if err != nil {
		return nil, err
	}
	counts := evidence.CountClaims(r.Claims)
	if counts.Other > 0 {
		for _, c := range r.Claims {
			switch c.Status {
			case evidence.ClaimSupported, evidence.ClaimWeak, evidence.ClaimUnsupported:
			default:
				return nil, eris.Wrapf(ErrUnknownStatus, "claim %s has status %q", c.ClaimID, c.Status)
			}
		}
	}

	rep := &Report{
		GenerationID:      r.GenerationID,
		FunctionName:      r.FunctionName,
		Mode:              r.EvidenceMode,
		Status:            r.EvidenceStatus,
		Presentation:      pres,
		Coverage:          r.CoveragePercentage,
		ClaimsSupported:   counts.Supported,
		ClaimsWeak:        counts.Weak,
		ClaimsUnsupported: counts.Unsupported,
		SourcesPlanned:    r.SourcesPlanned,
		SourcesFound:      r.SourcesFound,
		SourcesByTier:     make(map[evidence.SourceTier]int),
		Claims:            r.Claims,
		Sources:           r.SourcesUsed,
		Conflicts:         make([]Conflict, 0, len(r.Conflicts)),
		Limitations:       r.Limitations,
		Content:           r.Content,
	}
	for _, s := range r.SourcesUsed {
		rep.SourcesByTier[s.Type]++
	}
	for _, c := range r.Conflicts {
		view := Conflict{
			ClaimID:        c.ClaimID,
			Resolved:       c.Resolved(),
			Resolution:     c.Resolution,
			ResolutionType: c.ResolutionType,
		}
		for _, v := range c.ConflictingValues {
			view.Values = append(view.Values, ConflictValue{Value: v.Value, Citations: len(v.Citations)})
		}
		rep.Conflicts = append(rep.Conflicts, view)
	}
	return rep, nil
}
