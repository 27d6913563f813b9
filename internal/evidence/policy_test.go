package evidence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var policyNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func backedResult() *GenerationResult {
	return &GenerationResult{
		GenerationID:       "gen-1",
		FunctionName:       "business-model-canvas",
		SourcesFound:       2,
		SourcesUsed:        []RealSource{{ID: "s1", Type: TierUserDocument, Domain: "user_upload"}, {ID: "s2", Type: TierNews, Domain: "news.com"}},
		Claims:             []ClaimWithEvidence{{ClaimID: "c1", Status: ClaimSupported, Citations: []Citation{{SourceID: "s1"}}}},
		EvidenceStatus:     StatusEvidenceBacked,
		CoveragePercentage: 100,
	}
}

func TestEvaluate_BalancedPassesThrough(t *testing.T) {
	r := backedResult()
	r.EvidenceStatus = StatusPartialEvidence
	r.CoveragePercentage = 40

	d := evaluateAt(policyNow, ModeBalanced, r, nil)
	assert.Equal(t, VerdictProceed, d.Verdict)
	require.NotNil(t, d.Result)
	assert.Equal(t, StatusPartialEvidence, d.Result.EvidenceStatus)
	assert.Equal(t, 40, d.Result.CoveragePercentage)
	assert.NotSame(t, r, d.Result)
}

func TestEvaluate_HypothesisNeverEvidenceBacked(t *testing.T) {
	for _, status := range []EvidenceStatus{StatusEvidenceBacked, StatusPartialEvidence, StatusNoEvidence, StatusConflicting} {
		t.Run(string(status), func(t *testing.T) {
			r := backedResult()
			r.EvidenceStatus = status

			d := evaluateAt(policyNow, ModeHypothesis, r, nil)
			require.False(t, d.Blocked())
			assert.Contains(t, []EvidenceStatus{StatusNoEvidence, StatusPartialEvidence}, d.Result.EvidenceStatus)
			assert.Equal(t, ModeHypothesis, d.Result.EvidenceMode)
			assert.Contains(t, d.Result.Limitations, HypothesisLimitation)
			assert.Equal(t, status, r.EvidenceStatus, "input must not be modified")
		})
	}
}

func TestEvaluate_HypothesisEmptyIsNoEvidence(t *testing.T) {
	d := evaluateAt(policyNow, ModeHypothesis, &GenerationResult{EvidenceStatus: StatusEvidenceBacked}, nil)
	assert.Equal(t, StatusNoEvidence, d.Result.EvidenceStatus)

	again := AsHypothesis(d.Result)
	assert.Len(t, again.Limitations, 1)
}

func TestEvaluate_StrictZeroSources(t *testing.T) {
	r := &GenerationResult{FunctionName: "x", SourcesFound: 0, CoveragePercentage: 0, EvidenceStatus: StatusNoEvidence}

	d := evaluateAt(policyNow, ModeStrict, r, nil)
	require.True(t, d.Blocked())
	assert.Nil(t, d.Result)
	assert.Equal(t, ReasonInsufficientSources, d.ExitOptions.Reason)
	assert.Equal(t, 0, d.ExitOptions.CurrentCoverage)
	assert.Equal(t, 70, d.ExitOptions.RequiredCoverage)
	assert.Len(t, d.ExitOptions.Options, 3)
}

func TestEvaluate_StrictNoTier1Or2(t *testing.T) {
	r := backedResult()
	r.SourcesUsed = []RealSource{{ID: "n1", Type: TierNews, Domain: "a.com"}, {ID: "n2", Type: TierBusinessData, Domain: "b.com"}}

	d := evaluateAt(policyNow, ModeStrict, r, nil)
	require.True(t, d.Blocked())
	assert.Equal(t, ReasonNoTier1Or2, d.ExitOptions.Reason)
}

func TestEvaluate_StrictConflictingBlocks(t *testing.T) {
	r := backedResult()
	r.EvidenceStatus = StatusConflicting
	r.Conflicts = []EvidenceConflict{{ClaimID: "c1"}}

	d := evaluateAt(policyNow, ModeStrict, r, nil)
	require.True(t, d.Blocked())
	assert.Equal(t, ReasonConflictingEvidence, d.ExitOptions.Reason)
}

func TestEvaluate_StrictCoverage(t *testing.T) {
	r := backedResult()
	r.CoveragePercentage = 80
	r.EvidenceStatus = StatusPartialEvidence

	partialOK := &EvidenceContract{MinTotalSources: 1, AllowPartialEvidence: true, BlockOnFailure: true}
	assert.False(t, evaluateAt(policyNow, ModeStrict, r, partialOK).Blocked())

	full := &EvidenceContract{MinTotalSources: 1, AllowPartialEvidence: false, BlockOnFailure: true}
	d := evaluateAt(policyNow, ModeStrict, r, full)
	require.True(t, d.Blocked())
	assert.Equal(t, ReasonInsufficientSources, d.ExitOptions.Reason)
	assert.Equal(t, 100, d.ExitOptions.RequiredCoverage)
	assert.Equal(t, 80, d.ExitOptions.CurrentCoverage)
}

func TestEvaluate_StrictClaimRequirements(t *testing.T) {
	base := func() *GenerationResult {
		return &GenerationResult{
			SourcesFound: 2,
			SourcesUsed: []RealSource{
				{ID: "s1", Type: TierOfficialAPI, Domain: "sec.gov"},
				{ID: "s2", Type: TierNews, Domain: "sec.gov"},
			},
			Claims: []ClaimWithEvidence{{
				ClaimID: "tam",
				Status:  ClaimSupported,
				Citations: []Citation{
					{SourceID: "s1", DatePublished: "2026-05-01"},
					{SourceID: "s2", DatePublished: "2026-04-01"},
				},
			}},
			EvidenceStatus:     StatusEvidenceBacked,
			CoveragePercentage: 100,
		}
	}
	contract := func(def ClaimDefinition) *EvidenceContract {
		return &EvidenceContract{MinTotalSources: 1, BlockOnFailure: true, Claims: []ClaimDefinition{def}}
	}

	t.Run("satisfied", func(t *testing.T) {
		d := evaluateAt(policyNow, ModeStrict, base(), contract(ClaimDefinition{ID: "tam", SourcesMin: 2, MaxAgeDays: 180}))
		assert.False(t, d.Blocked())
	})
	t.Run("missing claim", func(t *testing.T) {
		d := evaluateAt(policyNow, ModeStrict, base(), contract(ClaimDefinition{ID: "other"}))
		require.True(t, d.Blocked())
		assert.Contains(t, d.ExitOptions.Detail, "missing required claim")
	})
	t.Run("too few sources", func(t *testing.T) {
		d := evaluateAt(policyNow, ModeStrict, base(), contract(ClaimDefinition{ID: "tam", SourcesMin: 3}))
		require.True(t, d.Blocked())
		assert.Equal(t, ReasonInsufficientSources, d.ExitOptions.Reason)
	})
	t.Run("not independent", func(t *testing.T) {
		d := evaluateAt(policyNow, ModeStrict, base(), contract(ClaimDefinition{ID: "tam", RequiresIndependence: true}))
		require.True(t, d.Blocked())
		assert.Contains(t, d.ExitOptions.Detail, "independent")
	})
	t.Run("too old", func(t *testing.T) {
		d := evaluateAt(policyNow, ModeStrict, base(), contract(ClaimDefinition{ID: "tam", MaxAgeDays: 45}))
		require.True(t, d.Blocked())
		assert.Contains(t, d.ExitOptions.Detail, "older than 45 days")
	})
}

func TestEvaluate_StrictBlockIsDeterministic(t *testing.T) {
	r := &GenerationResult{SourcesFound: 0}
	a := evaluateAt(policyNow, ModeStrict, r, nil)
	b := evaluateAt(policyNow, ModeStrict, r, nil)
	assert.Equal(t, a, b)
}

func TestEvaluate_StrictNonBlockingContract(t *testing.T) {
	c := &EvidenceContract{MinTotalSources: 10, BlockOnFailure: false}
	d := evaluateAt(policyNow, ModeStrict, &GenerationResult{}, c)
	assert.False(t, d.Blocked())
}

func TestEvaluate_NilResult(t *testing.T) {
	d := Evaluate(ModeBalanced, nil, nil)
	require.NotNil(t, d.Result)
	assert.Equal(t, StatusNoEvidence, d.Result.EvidenceStatus)
}

func TestStandardExitOptions(t *testing.T) {
	opts := StandardExitOptions()
	require.Len(t, opts, 3)
	assert.Equal(t, ActionSearchMore, opts[0].Action)
	assert.Empty(t, opts[0].Warning)
	assert.Equal(t, ActionContinueAsHypothesis, opts[1].Action)
	assert.NotEmpty(t, opts[1].Warning)
	assert.Equal(t, ActionCancel, opts[2].Action)
}
