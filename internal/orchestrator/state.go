package orchestrator

import (
	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/tierconfig"
)

// Phase names a State variant.
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseSearching  Phase = "searching"
	PhaseGenerating Phase = "generating"
	PhaseBlocked    Phase = "blocked"
	PhaseComplete   Phase = "complete"
	PhaseFailed     Phase = "failed"
)

// State is one of Idle, Searching, Generating, Blocked, Complete or Failed.
// Switch on the concrete type to read the variant's data.
type State interface {
	Phase() Phase
	state()
}

// Idle waits for a submission.
type Idle struct{}

// Searching is retrieving sources for an attempt.
type Searching struct {
	AttemptID string
	Tiers     []evidence.SourceTier
}

// Generating waits on the generation procedure.
type Generating struct {
	AttemptID string
}

// Blocked holds a strict block until the negotiator resolves it. Config and
// Params are what the blocked attempt was submitted with.
type Blocked struct {
	AttemptID string
	Options   *evidence.StrictModeExitOptions
	Config    tierconfig.GenerationConfig
	Params    map[string]any
}

// Complete holds the accepted result.
type Complete struct {
	Result *evidence.GenerationResult
}

// Failed records a transport failure. The workflow moves on to Idle right
// after entering it.
type Failed struct {
	Err error
}

func (Idle) Phase() Phase       { return PhaseIdle }
func (Searching) Phase() Phase  { return PhaseSearching }
func (Generating) Phase() Phase { return PhaseGenerating }
func (Blocked) Phase() Phase    { return PhaseBlocked }
func (Complete) Phase() Phase   { return PhaseComplete }
func (Failed) Phase() Phase     { return PhaseFailed }

func (Idle) state()       {}
func (Searching) state()  {}
func (Generating) state() {}
func (Blocked) state()    {}
func (Complete) state()   {}
func (Failed) state()     {}

// InFlight reports whether s has a remote call outstanding.
func InFlight(s State) bool {
	switch s.(type) {
	case Searching, Generating:
		return true
	}
	return false
}
