package edgefn

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/resilience"
)

func strictRequest() evidence.GenerationRequest {
	age := 90
	return evidence.GenerationRequest{
		FunctionName:     "financial-projections",
		ProjectID:        "p1",
		UserID:           "u1",
		EvidenceMode:     evidence.ModeStrict,
		Tier1Enabled:     true,
		Tier3Enabled:     true,
		BlockedDomains:   []string{"spam.com"},
		MaxSourceAgeDays: &age,
		AdditionalParams: map[string]any{"cik": "320193"},
	}
}

func TestInvoke_Result(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/functions/v1/scrape-and-extract", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"generation_id":"g1","function_name":"financial-projections","sources_planned":2,
			"sources_found":3,"sources_used":[],"claims":[],"evidence_status":"partial_evidence","coverage_percentage":50,"conflicts":[]}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "tok")
	out, err := c.Invoke(context.Background(), strictRequest())
	require.NoError(t, err)
	require.NotNil(t, out.Result)
	assert.Nil(t, out.Block)
	assert.Equal(t, evidence.StatusPartialEvidence, out.Result.EvidenceStatus)
	assert.Equal(t, 50, out.Result.CoveragePercentage)

	assert.Equal(t, "financial-projections", got.FunctionName)
	assert.Equal(t, []int{1, 3}, got.EvidenceContext.Tiers)
	assert.Equal(t, []string{"spam.com"}, got.EvidenceContext.BlockedDomains)
	assert.Equal(t, 90, *got.EvidenceContext.MaxSourceAgeDays)
	assert.Equal(t, "320193", got.AdditionalParams["cik"])
}

func TestInvoke_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"blocked":true,"exit_options":{"reason":"insufficient_sources","current_coverage":0,
			"required_coverage":100,"sources_found":0,"sources_required":5,"options":[{"action":"cancel","label":"Cancel generation"}]}}`))
	}))
	defer srv.Close()

	out, err := NewClient(srv.URL, "", WithFunction("custom")).Invoke(context.Background(), strictRequest())
	require.NoError(t, err)
	assert.Nil(t, out.Result)
	require.NotNil(t, out.Block)
	assert.Equal(t, evidence.ReasonInsufficientSources, out.Block.Reason)
	assert.True(t, out.Block.Offers(evidence.ActionCancel))
}

func TestInvoke_ServerError(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Invoke(context.Background(), strictRequest())
	require.Error(t, err)
	assert.True(t, resilience.IsTransient(err))
	assert.Equal(t, 1, calls, "never retried")
}

func TestInvoke_BreakerOpens(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute})
	c := NewClient(srv.URL, "", WithBreaker(cb))

	_, err := c.Invoke(context.Background(), strictRequest())
	require.Error(t, err)
	_, err = c.Invoke(context.Background(), strictRequest())
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}

func TestDecodeOutcome(t *testing.T) {
	out, err := DecodeOutcome([]byte(`{"blocked":true}`))
	require.NoError(t, err)
	require.NotNil(t, out.Block)
	assert.Empty(t, out.Block.Options)

	_, err = DecodeOutcome([]byte(`{"generation_id":"g1"}`))
	assert.Error(t, err)

	_, err = DecodeOutcome([]byte(`not json`))
	assert.Error(t, err)
}

func TestNewRequest_EmptyBlockedList(t *testing.T) {
	r := NewRequest(evidence.GenerationRequest{FunctionName: "f", EvidenceMode: evidence.ModeHypothesis})
	assert.NotNil(t, r.EvidenceContext.BlockedDomains)
	assert.Empty(t, r.EvidenceContext.Tiers)
}
