package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractValue(t *testing.T) {
	assert.Equal(t, "$1.5M", ExtractValue("TAM is roughly $1.5M this year", ValueCurrency))
	assert.Equal(t, "$1,200", ExtractValue("costs $1,200 per seat", ValueCurrency))
	assert.Equal(t, "$1.2M", ExtractValue("worth $1.2M today", ValueCurrency))
	assert.Equal(t, "$3.75B", ExtractValue("valued at $3.75B", ValueCurrency))
	assert.Equal(t, "$19.99", ExtractValue("priced at $19.99 monthly", ValueCurrency))
	assert.Equal(t, "12.5%", ExtractValue("growing 12.5% annually", ValuePercentage))
	assert.Equal(t, "1,200", ExtractValue("about 1,200 customers", ValueNumber))
	assert.Equal(t, "", ExtractValue("no numbers", ValueNumber))
	assert.Equal(t, "", ExtractValue("$5", ValueString))
}

func TestParseNumeric(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"$1,200", 1200, true},
		{"$1.5M", 1.5e6, true},
		{"$2b", 2e9, true},
		{"12.5%", 12.5, true},
		{"3K", 3000, true},
		{"n/a", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseNumeric(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.InDelta(t, tt.want, got, 0.001)
		})
	}
}

func TestFormatCompact(t *testing.T) {
	assert.Equal(t, "1.5M", FormatCompact(1.5e6))
	assert.Equal(t, "2.0B", FormatCompact(2e9))
	assert.Equal(t, "1.2K", FormatCompact(1200))
	assert.Equal(t, "950", FormatCompact(950))
}

func TestDetectConflicts_CurrencyRange(t *testing.T) {
	claims := []ClaimWithEvidence{{
		ClaimID:   "market_size",
		ValueType: ValueCurrency,
		Citations: []Citation{
			{SourceID: "a", Quote: "The market is $10M"},
			{SourceID: "b", Quote: "Analysts estimate $15M"},
			{SourceID: "c", Quote: "Another view: $10M"},
		},
	}}

	got := DetectConflicts(claims)
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, "market_size", c.ClaimID)
	require.Len(t, c.ConflictingValues, 2)
	assert.Equal(t, "$10M", c.ConflictingValues[0].Value)
	assert.Len(t, c.ConflictingValues[0].Citations, 2)
	assert.Equal(t, "$15M", c.ConflictingValues[1].Value)
	assert.Equal(t, ResolutionRange, c.ResolutionType)
	assert.Equal(t, "$10.0M-$15.0M", c.Resolution)
	assert.True(t, c.Resolved())
}

func TestDetectConflicts_SingleDecimalCurrency(t *testing.T) {
	claims := []ClaimWithEvidence{{
		ClaimID:   "market_size",
		ValueType: ValueCurrency,
		Citations: []Citation{
			{SourceID: "a", Quote: "The market is worth $1.2M today."},
			{SourceID: "b", Quote: "Analysts put the market at $1.5M."},
		},
	}}

	got := DetectConflicts(claims)
	require.Len(t, got, 1)
	require.Len(t, got[0].ConflictingValues, 2)
	assert.Equal(t, "$1.2M", got[0].ConflictingValues[0].Value)
	assert.Equal(t, "$1.5M", got[0].ConflictingValues[1].Value)
	assert.Equal(t, ResolutionRange, got[0].ResolutionType)
	assert.Equal(t, "$1.2M-$1.5M", got[0].Resolution)
}

func TestDetectConflicts_Percentage(t *testing.T) {
	claims := []ClaimWithEvidence{{
		ClaimID:   "growth",
		ValueType: ValuePercentage,
		Citations: []Citation{{Quote: "5% CAGR"}, {Quote: "7.5% CAGR"}},
	}}
	got := DetectConflicts(claims)
	require.Len(t, got, 1)
	assert.Equal(t, "5%-7.5%", got[0].Resolution)
}

func TestDetectConflicts_NoConflict(t *testing.T) {
	claims := []ClaimWithEvidence{
		{ClaimID: "single", ValueType: ValueCurrency, Citations: []Citation{{Quote: "$5M"}}},
		{ClaimID: "agree", ValueType: ValueCurrency, Citations: []Citation{{Quote: "$5M"}, {Quote: "also $5M"}}},
		{ClaimID: "text", ValueType: ValueString, Citations: []Citation{{Quote: "a"}, {Quote: "b"}}},
	}
	assert.Empty(t, DetectConflicts(claims))
}

func TestResolveConflict_Unresolved(t *testing.T) {
	rt, res := ResolveConflict([]ConflictingValue{{Value: "red"}, {Value: "blue"}}, ValueEnum)
	assert.Equal(t, ResolutionUnresolved, rt)
	assert.Empty(t, res)

	rt, _ = ResolveConflict([]ConflictingValue{{Value: "$5M"}, {Value: "soon"}}, ValueCurrency)
	assert.Equal(t, ResolutionUnresolved, rt)

	assert.False(t, EvidenceConflict{ResolutionType: ResolutionUnresolved}.Resolved())
}
