package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/evidence"
)

func sampleResult() *evidence.GenerationResult {
	cite := func(id string) evidence.Citation {
		return evidence.Citation{SourceID: id, SourceType: evidence.TierOfficialAPI, Quote: "revenue"}
	}
	return &evidence.GenerationResult{
		GenerationID:   "gen-1",
		FunctionName:   "financial-projections",
		EvidenceMode:   evidence.ModeBalanced,
		Content:        json.RawMessage(`{"revenue":"$1.2B"}`),
		SourcesPlanned: 3,
		SourcesFound:   2,
		SourcesUsed: []evidence.RealSource{
			{ID: "s1", Type: evidence.TierOfficialAPI, Name: "SEC", Domain: "sec.gov", ReliabilityScore: 95},
			{ID: "s2", Type: evidence.TierNews, Name: "Wire", Title: "Quarterly results", Domain: "news.com", ReliabilityScore: 50},
		},
		Claims: []evidence.ClaimWithEvidence{
			{ClaimID: "revenue", Value: "$1.2B", Status: evidence.ClaimSupported, Citations: []evidence.Citation{cite("s1"), cite("s2")}},
			{ClaimID: "margin", Value: "12%", Status: evidence.ClaimWeak, Citations: []evidence.Citation{cite("s1")}},
			{ClaimID: "growth", Status: evidence.ClaimUnsupported},
		},
		EvidenceStatus:     evidence.StatusConflicting,
		CoveragePercentage: 42,
		Conflicts: []evidence.EvidenceConflict{
			{
				ClaimID: "revenue",
				ConflictingValues: []evidence.ConflictingValue{
					{Value: "$1.2B", Citations: []evidence.Citation{cite("s1")}},
					{Value: "$1.5B", Citations: []evidence.Citation{cite("s2"), cite("s2")}},
				},
				Resolution:     "$1.2B - $1.5B",
				ResolutionType: evidence.ResolutionRange,
			},
			{
				ClaimID: "margin",
				ConflictingValues: []evidence.ConflictingValue{
					{Value: "12%"}, {Value: "9%"},
				},
			},
		},
		Limitations: []string{"News tier timed out"},
	}
}

func TestPresent(t *testing.T) {
	tests := []struct {
		status evidence.EvidenceStatus
		label  string
		tone   Tone
	}{
		{evidence.StatusEvidenceBacked, "Evidence Backed", ToneSuccess},
		{evidence.StatusPartialEvidence, "Partial Evidence", ToneWarning},
		{evidence.StatusNoEvidence, "No Evidence (Hypothesis)", ToneMuted},
		{evidence.StatusConflicting, "Conflicting Evidence", ToneDanger},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			p, err := Present(tt.status)
			require.NoError(t, err)
			assert.Equal(t, tt.label, p.Label)
			assert.Equal(t, tt.tone, p.Tone)
		})
	}

	_, err := Present("mostly_true")
	assert.True(t, errors.Is(err, ErrUnknownStatus))
}

func TestAssemble(t *testing.T) {
	rep, err := Assemble(sampleResult())
	require.NoError(t, err)

	assert.Equal(t, "gen-1", rep.GenerationID)
	assert.Equal(t, "Conflicting Evidence", rep.Presentation.Label)
	// Coverage is taken as given, not recomputed from claims.
	assert.Equal(t, 42, rep.Coverage)
	assert.Equal(t, 1, rep.ClaimsSupported)
	assert.Equal(t, 1, rep.ClaimsWeak)
	assert.Equal(t, 1, rep.ClaimsUnsupported)
	assert.Equal(t, 1, rep.SourcesByTier[evidence.TierOfficialAPI])
	assert.Equal(t, 1, rep.SourcesByTier[evidence.TierNews])

	require.Len(t, rep.Conflicts, 2)
	assert.True(t, rep.Conflicts[0].Resolved)
	assert.Equal(t, []ConflictValue{{Value: "$1.2B", Citations: 1}, {Value: "$1.5B", Citations: 2}}, rep.Conflicts[0].Values)
	assert.False(t, rep.Conflicts[1].Resolved)
	assert.JSONEq(t, `{"revenue":"$1.2B"}`, string(rep.Content))
}

func TestReport_ContentMarshalsThrough(t *testing.T) {
	rep, err := Assemble(sampleResult())
	require.NoError(t, err)

	raw, err := json.Marshal(rep)
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.JSONEq(t, `{"revenue":"$1.2B"}`, string(decoded["content"]))

	rep.Content = nil
	raw, err = json.Marshal(rep)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"content"`)
}

func TestAssemble_Errors(t *testing.T) {
	_, err := Assemble(nil)
	assert.Error(t, err)

	r := sampleResult()
	r.EvidenceStatus = "unknown"
	_, err = Assemble(r)
	assert.True(t, errors.Is(err, ErrUnknownStatus))

	r = sampleResult()
	r.Claims[1].Status = "maybe"
	_, err = Assemble(r)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownStatus))
	assert.Contains(t, err.Error(), "margin")
}

func TestAssemble_EmptyResult(t *testing.T) {
	rep, err := Assemble(&evidence.GenerationResult{EvidenceStatus: evidence.StatusNoEvidence})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Coverage)
	assert.NotNil(t, rep.Conflicts)
	assert.Empty(t, rep.Conflicts)
}

func TestRender(t *testing.T) {
	rep, err := Assemble(sampleResult())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, rep))
	out := buf.String()

	assert.Contains(t, out, "Conflicting Evidence")
	assert.Contains(t, out, "42%")
	assert.Contains(t, out, "2 found / 3 planned")
	assert.Contains(t, out, "1 supported, 1 weak, 1 unsupported")
	assert.Contains(t, out, "Quarterly results")
	assert.Contains(t, out, "Resolution (range): $1.2B - $1.5B")
	assert.Contains(t, out, "$1.5B (2 citations)")
	assert.Contains(t, out, unresolvedMarker)
	assert.Contains(t, out, `"revenue": "$1.2B"`)
	assert.Contains(t, out, "- News tier timed out")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "short", clip("short", 10))
	assert.Equal(t, "abcdefg...", clip("abcdefghijklmnop", 10))
}
