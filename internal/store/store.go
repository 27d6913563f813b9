package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/model"
)

// ErrNotFound is returned (wrapped) when a requested row does not exist.
var ErrNotFound = eris.New("store: not found")

// DefaultSearchLimit caps document search when the caller passes no limit.
const DefaultSearchLimit = 10

// GenerationFilter specifies criteria for listing generation logs.
type GenerationFilter struct {
	ProjectID    string        `json:"project_id,omitempty"`
	FunctionName string        `json:"function_name,omitempty"`
	Outcome      model.Outcome `json:"outcome,omitempty"`
	Since        time.Time     `json:"since,omitempty"`
	Limit        int           `json:"limit,omitempty"`
	Offset       int           `json:"offset,omitempty"`
}

// Store defines the persistence interface for evidence-backed generation.
type Store interface {
	// Documents
	SaveDocument(ctx context.Context, doc *model.Document, pages []model.DocumentPage) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, projectID string) ([]model.Document, error)
	DeleteDocument(ctx context.Context, id string) error
	SearchDocuments(ctx context.Context, projectID, query string, limit int) ([]model.DocumentHit, error)

	// Source policies
	GetSourcePolicy(ctx context.Context, projectID string) (*evidence.SourcePolicy, error)
	SaveSourcePolicy(ctx context.Context, p *evidence.SourcePolicy) error

	// Generation logs
	LogGeneration(ctx context.Context, entry *model.GenerationLog) error
	GetGeneration(ctx context.Context, id string) (*model.GenerationLog, error)
	ListGenerations(ctx context.Context, filter GenerationFilter) ([]model.GenerationLog, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func clampRank(r float64) float64 {
	switch {
	case r < 0:
		return 0
	case r > 1:
		return 1
	}
	return r
}

func searchLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	return limit
}

func listLimit(limit int) int {
	if limit <= 0 {
		return 100
	}
	return limit
}
