package evidence

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, ModeStrict, r.Mode("financial-projections"))
	assert.True(t, r.RequiresStrict("financial-projections"))
	assert.Equal(t, ModeHypothesis, r.Mode("pitch-deck"))
	assert.Equal(t, ModeBalanced, r.Mode("unknown-function"))

	claims := r.Claims("financial-projections")
	require.Len(t, claims, 5)
	assert.Equal(t, "market_size", claims[0].ID)
	assert.Equal(t, ValueCurrency, claims[0].ValueType)
	assert.Equal(t, 3, claims[0].SourcesMin)
	assert.True(t, claims[0].RequiresIndependence)

	c := r.Contract("financial-projections")
	require.NotNil(t, c)
	assert.Equal(t, "financial-projections", c.FunctionName)
	assert.Equal(t, 5, c.MinTotalSources)
	assert.True(t, c.RequireTier1Or2)
	assert.False(t, c.AllowPartialEvidence)
	assert.Equal(t, 100, c.RequiredCoverage())
	assert.Len(t, c.Claims, 5)

	assert.Nil(t, r.Contract("business-model-canvas"))
}

func TestRegistry_MinimumSources(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, 5, r.MinimumSources("financial-projections"))
	assert.Equal(t, 2, r.MinimumSources("business-model-canvas"))
	assert.Equal(t, 1, r.MinimumSources("pitch-deck"))
}

func TestRegistry_Names(t *testing.T) {
	names := DefaultRegistry().Names()
	assert.Contains(t, names, "market-research")
	assert.IsNonDecreasing(t, names)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
functions:
  custom:
    claims:
      - id: revenue
        claim_text: Annual revenue
        value_type: currency
        sources_min: 2
`), 0o600))

	r, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, ModeBalanced, r.Mode("custom"))
	assert.Len(t, r.Claims("custom"), 1)
}

func TestParseRegistry_Errors(t *testing.T) {
	_, err := ParseRegistry([]byte("functions: ["))
	assert.Error(t, err)

	_, err = ParseRegistry([]byte("functions:\n  f:\n    mode: reckless\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")

	_, err = LoadRegistry(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
