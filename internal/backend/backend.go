// Package backend generates evidence-backed results in process: it searches
// the enabled tiers, asks Claude to fill the function's claims from the
// numbered sources and classifies what comes back.
package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/evidence-cli/internal/config"
	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/retrieval"
	"github.com/sells-group/evidence-cli/internal/store"
	"github.com/sells-group/evidence-cli/internal/tierconfig"
	"github.com/sells-group/evidence-cli/pkg/anthropic"
)

const (
	defaultModel     = "claude-sonnet-4-5-20250929"
	defaultMaxTokens = 4096
)

// PolicySource supplies a project's saved source policy.
type PolicySource interface {
	GetSourcePolicy(ctx context.Context, projectID string) (*evidence.SourcePolicy, error)
}

// Local implements the generation procedure in process.
type Local struct {
	retriever retrieval.Retriever
	llm       anthropic.Client
	registry  *evidence.Registry
	policies  PolicySource
	model     string
	maxTokens int64
	now       func() time.Time
}

// NewLocal builds a local backend. policies may be nil.
func NewLocal(r retrieval.Retriever, llm anthropic.Client, registry *evidence.Registry, policies PolicySource, cfg config.AnthropicConfig) *Local {
	if registry == nil {
		registry = evidence.DefaultRegistry()
	}
	l := &Local{
		retriever: r,
		llm:       llm,
		registry:  registry,
		policies:  policies,
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
		now:       time.Now,
	}
	if l.model == "" {
		l.model = defaultModel
	}
	if l.maxTokens <= 0 {
		l.maxTokens = defaultMaxTokens
	}
	return l
}

// Invoke runs one generation. It never blocks on evidence: the strict
// decision belongs to the caller.
func (l *Local) Invoke(ctx context.Context, req evidence.GenerationRequest) (*evidence.GenerationOutcome, error) {
	log := zap.L().With(
		zap.String("function", req.FunctionName),
		zap.String("project_id", req.ProjectID),
		zap.String("mode", string(req.EvidenceMode)),
	)
	hypothesis := req.EvidenceMode == evidence.ModeHypothesis
	tiers := req.Tiers()

	var (
		res       *retrieval.SearchResults
		searchDur time.Duration
	)
	if !hypothesis && len(tiers) > 0 {
		evidence.ReportPhase(ctx, evidence.PhaseSearching)
		q, err := l.query(ctx, req)
		if err != nil {
			return nil, err
		}
		start := l.now()
		res, err = l.retriever.Search(ctx, q)
		if err != nil {
			return nil, eris.Wrap(err, "backend: search sources")
		}
		searchDur = l.now().Sub(start)
	}

	evidence.ReportPhase(ctx, evidence.PhaseGenerating)
	defs := l.registry.Claims(req.FunctionName)
	genStart := l.now()
	resp, err := l.llm.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     l.model,
		MaxTokens: l.maxTokens,
		System:    anthropic.CachedSystem(systemPrompt),
		Messages:  []anthropic.Message{{Role: "user", Content: buildPrompt(req, defs, res)}},
	})
	if err != nil {
		return nil, eris.Wrap(err, "backend: generate")
	}
	resp.Usage.LogCost(l.model, req.FunctionName)

	a, err := parseAnswer(resp.Text())
	if err != nil {
		return nil, err
	}
	now := l.now()
	claims, used := buildClaims(a, defs, res, now)

	result := &evidence.GenerationResult{
		GenerationID:         uuid.NewString(),
		FunctionName:         req.FunctionName,
		EvidenceMode:         req.EvidenceMode,
		Content:              a.Content,
		SourcesUsed:          used,
		Claims:               claims,
		GeneratedAt:          now.UTC(),
		SearchDurationMS:     searchDur.Milliseconds(),
		GenerationDurationMS: now.Sub(genStart).Milliseconds(),
	}
	if result.SourcesUsed == nil {
		result.SourcesUsed = []evidence.RealSource{}
	}

	if hypothesis {
		result.EvidenceStatus = evidence.StatusNoEvidence
		result.Conflicts = []evidence.EvidenceConflict{}
		result.Limitations = []string{evidence.HypothesisLimitation}
		log.Info("backend: hypothesis generated", zap.Int("claims", len(claims)))
		return &evidence.GenerationOutcome{Result: result}, nil
	}

	result.SourcesPlanned = len(tiers)
	if res != nil {
		result.SourcesFound = len(res.Sources)
	}
	result.Conflicts = evidence.DetectConflicts(claims)
	if result.Conflicts == nil {
		result.Conflicts = []evidence.EvidenceConflict{}
	}
	result.CoveragePercentage = evidence.Coverage(claims)
	result.EvidenceStatus = evidence.DeriveStatus(claims, result.Conflicts)
	result.Limitations = limitations(res, claims)

	log.Info("backend: generated",
		zap.String("status", string(result.EvidenceStatus)),
		zap.Int("coverage", result.CoveragePercentage),
		zap.Int("sources_found", result.SourcesFound),
		zap.Int("claims", len(claims)))
	return &evidence.GenerationOutcome{Result: result}, nil
}

// query builds the retrieval query. Request fields win over the saved
// project policy; the policy contributes allow list, reliability floor and
// the HTTPS rule.
func (l *Local) query(ctx context.Context, req evidence.GenerationRequest) (retrieval.Query, error) {
	policy := evidence.SourcePolicy{
		ProjectID:           req.ProjectID,
		UserID:              req.UserID,
		MinReliabilityScore: tierconfig.DefaultMinReliability,
		RequireHTTPS:        true,
	}
	if l.policies != nil && req.ProjectID != "" {
		saved, err := l.policies.GetSourcePolicy(ctx, req.ProjectID)
		switch {
		case err == nil:
			policy = *saved
		case errors.Is(err, store.ErrNotFound):
		default:
			return retrieval.Query{}, eris.Wrap(err, "backend: load source policy")
		}
	}
	policy.EvidenceMode = req.EvidenceMode
	policy.Tier1Enabled = req.Tier1Enabled
	policy.Tier2Enabled = req.Tier2Enabled
	policy.Tier3Enabled = req.Tier3Enabled
	policy.Tier4Enabled = req.Tier4Enabled
	policy.BlockedDomains = req.BlockedDomains
	policy.MaxSourceAgeDays = req.MaxSourceAgeDays

	return retrieval.Query{
		Function:  req.FunctionName,
		ProjectID: req.ProjectID,
		UserID:    req.UserID,
		Policy:    policy,
		Params:    req.AdditionalParams,
	}, nil
}

func limitations(res *retrieval.SearchResults, claims []evidence.ClaimWithEvidence) []string {
	var out []string
	if res != nil {
		for _, t := range res.TimedOutTiers {
			out = append(out, fmt.Sprintf("%s search timed out", t.Label()))
		}
		for _, t := range res.FailedTiers {
			out = append(out, fmt.Sprintf("%s search failed", t.Label()))
		}
		if len(res.Sources) == 0 {
			out = append(out, "No sources matched the source policy")
		}
	}
	counts := evidence.CountClaims(claims)
	if counts.Unsupported > 0 {
		out = append(out, fmt.Sprintf("%d of %d claims have no supporting source", counts.Unsupported, counts.Total()))
	}
	if counts.Weak > 0 {
		out = append(out, fmt.Sprintf("%d of %d claims rest on a single unconfirmed source", counts.Weak, counts.Total()))
	}
	return out
}
