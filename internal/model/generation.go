package model

import (
	"time"

	"github.com/sells-group/evidence-cli/internal/evidence"
)

// Outcome is how a generation attempt ended.
type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomeBlocked  Outcome = "blocked"
	OutcomeFailed   Outcome = "failed"
)

// GenerationLog is the audit row written for every finished attempt.
type GenerationLog struct {
	ID           string                     `json:"id"`
	ProjectID    string                     `json:"project_id"`
	UserID       string                     `json:"user_id"`
	FunctionName string                     `json:"function_name"`
	Mode         evidence.EvidenceMode      `json:"evidence_mode"`
	Outcome      Outcome                    `json:"outcome"`
	Status       evidence.EvidenceStatus    `json:"evidence_status,omitempty"`
	BlockReason  evidence.ExitReason        `json:"block_reason,omitempty"`
	Coverage     int                        `json:"coverage_percentage"`
	SourcesFound int                        `json:"sources_found"`
	ClaimsCount  int                        `json:"claims_count"`
	DurationMS   int64                      `json:"duration_ms"`
	Error        string                     `json:"error,omitempty"`
	Result       *evidence.GenerationResult `json:"result,omitempty"`
	CreatedAt    time.Time                  `json:"created_at"`
}

// Wasted reports whether sources were found but barely used.
func (l GenerationLog) Wasted() bool {
	return l.Outcome == OutcomeComplete && l.SourcesFound > 0 && l.Coverage < 30
}
