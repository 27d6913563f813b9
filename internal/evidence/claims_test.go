package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func claimWith(status ClaimStatus) ClaimWithEvidence {
	return ClaimWithEvidence{ClaimID: string(status), Status: status}
}

func TestCoverage(t *testing.T) {
	tests := []struct {
		name   string
		claims []ClaimWithEvidence
		want   int
	}{
		{"empty", nil, 0},
		{"all supported", []ClaimWithEvidence{claimWith(ClaimSupported), claimWith(ClaimSupported)}, 100},
		{"one of three", []ClaimWithEvidence{claimWith(ClaimSupported), claimWith(ClaimWeak), claimWith(ClaimUnsupported)}, 33},
		{"two of three rounds up", []ClaimWithEvidence{claimWith(ClaimSupported), claimWith(ClaimSupported), claimWith(ClaimWeak)}, 67},
		{"none", []ClaimWithEvidence{claimWith(ClaimWeak)}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Coverage(tt.claims))
		})
	}
}

func TestDeriveStatus(t *testing.T) {
	supported := []ClaimWithEvidence{claimWith(ClaimSupported)}
	mixed := []ClaimWithEvidence{claimWith(ClaimSupported), claimWith(ClaimWeak)}
	weak := []ClaimWithEvidence{claimWith(ClaimWeak)}

	assert.Equal(t, StatusEvidenceBacked, DeriveStatus(supported, nil))
	assert.Equal(t, StatusPartialEvidence, DeriveStatus(mixed, nil))
	assert.Equal(t, StatusNoEvidence, DeriveStatus(weak, nil))
	assert.Equal(t, StatusNoEvidence, DeriveStatus(nil, nil))
	assert.Equal(t, StatusConflicting, DeriveStatus(supported, []EvidenceConflict{{ClaimID: "x"}}))
}

func TestClassifyClaim(t *testing.T) {
	tests := []struct {
		name      string
		citations []Citation
		want      ClaimStatus
	}{
		{"no citations", nil, ClaimUnsupported},
		{"user document", []Citation{{SourceType: TierUserDocument, SourceID: "d1"}}, ClaimSupported},
		{"official api", []Citation{{SourceType: TierOfficialAPI, URL: "https://sec.gov/x"}}, ClaimSupported},
		{"single news", []Citation{{SourceType: TierNews, URL: "https://news.example.com/a"}}, ClaimWeak},
		{"two news same domain", []Citation{
			{SourceType: TierNews, URL: "https://news.example.com/a"},
			{SourceType: TierNews, URL: "https://www.news.example.com/b"},
		}, ClaimWeak},
		{"two independent domains", []Citation{
			{SourceType: TierNews, URL: "https://a.example.com/a"},
			{SourceType: TierBusinessData, URL: "https://b.example.org/b"},
		}, ClaimSupported},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyClaim(tt.citations))
		})
	}
}

func TestSourcesIndependent(t *testing.T) {
	assert.True(t, SourcesIndependent(nil))
	assert.True(t, SourcesIndependent([]RealSource{{Domain: "a.com"}, {Domain: "b.com"}}))
	assert.False(t, SourcesIndependent([]RealSource{{Domain: "a.com"}, {Domain: "a.com"}}))
	assert.False(t, SourcesIndependent([]RealSource{
		{Domain: "wsj.com", ParentOrganization: "News Corp"},
		{Domain: "barrons.com", ParentOrganization: "News Corp"},
	}))
}

func TestUniqueDomains(t *testing.T) {
	got := UniqueDomains([]RealSource{{Domain: "b.com"}, {Domain: "a.com"}, {Domain: "b.com"}, {}})
	assert.Equal(t, []string{"b.com", "a.com"}, got)
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", DomainOf("https://WWW.Example.com/path?q=1"))
	assert.Equal(t, "", DomainOf("#/document/abc"))
	assert.Equal(t, "", DomainOf("not a url"))
	assert.Equal(t, "", DomainOf(""))
}

func TestParseDate(t *testing.T) {
	d, ok := ParseDate("2025-03-04")
	assert.True(t, ok)
	assert.Equal(t, 2025, d.Year())

	_, ok = ParseDate("2025-03-04T10:00:00Z")
	assert.True(t, ok)

	_, ok = ParseDate("March 4")
	assert.False(t, ok)
}

func TestCountClaims_Partition(t *testing.T) {
	claims := []ClaimWithEvidence{
		claimWith(ClaimSupported),
		claimWith(ClaimWeak),
		claimWith(ClaimUnsupported),
		claimWith("bogus"),
	}
	c := CountClaims(claims)
	assert.Equal(t, 1, c.Supported)
	assert.Equal(t, 1, c.Weak)
	assert.Equal(t, 1, c.Unsupported)
	assert.Equal(t, 1, c.Other)
	assert.Equal(t, len(claims), c.Total())
}

func TestLocation_Validate(t *testing.T) {
	assert.NoError(t, PageLocation(3).Validate())
	assert.NoError(t, RowLocation("Sheet1", 12).Validate())

	page, row := 1, 2
	err := Location{Page: &page, Row: &row}.Validate()
	assert.Error(t, err)
	assert.ErrorIs(t, err, &ConfigurationError{})
}

func TestSourceTier(t *testing.T) {
	assert.Equal(t, 1, TierUserDocument.Number())
	assert.Equal(t, 4, TierNews.Number())
	assert.Equal(t, 0, SourceTier("other").Number())
	assert.Equal(t, 100, TierUserDocument.ReliabilityCeiling())
	assert.True(t, TierNews.RequiresConfirmation())
	assert.False(t, TierOfficialAPI.RequiresConfirmation())

	tier, ok := TierFromNumber(3)
	assert.True(t, ok)
	assert.Equal(t, TierBusinessData, tier)
	_, ok = TierFromNumber(5)
	assert.False(t, ok)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("strict")
	assert.NoError(t, err)
	assert.Equal(t, ModeStrict, m)

	_, err = ParseMode("yolo")
	assert.Error(t, err)
}

func TestExitOptions_Offers(t *testing.T) {
	var nilOpts *StrictModeExitOptions
	assert.False(t, nilOpts.Offers(ActionCancel))

	opts := &StrictModeExitOptions{Options: StandardExitOptions()}
	assert.True(t, opts.Offers(ActionSearchMore))
	assert.True(t, opts.Offers(ActionContinueAsHypothesis))
	assert.False(t, opts.Offers("retry"))

	empty := &StrictModeExitOptions{}
	assert.False(t, empty.Offers(ActionSearchMore))
}

func TestGenerationResult_Clone(t *testing.T) {
	orig := &GenerationResult{
		Claims:      []ClaimWithEvidence{claimWith(ClaimSupported)},
		Limitations: []string{"a"},
	}
	c := orig.Clone()
	c.Claims[0].Status = ClaimWeak
	c.Limitations = append(c.Limitations, "b")

	assert.Equal(t, ClaimSupported, orig.Claims[0].Status)
	assert.Len(t, orig.Limitations, 1)

	var nilResult *GenerationResult
	assert.Nil(t, nilResult.Clone())
}
