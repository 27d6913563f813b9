// Package evidence defines the shared vocabulary of evidence-backed generation:
// source tiers, modes, claims, citations, conflicts and generation results.
package evidence

import (
	"encoding/json"
	"time"
)

// SourceTier is the trust category of an evidence source. Lower tier numbers
// are more trusted.
type SourceTier string

const (
	TierUserDocument SourceTier = "user_document" // Tier 1: the user's own uploads
	TierOfficialAPI  SourceTier = "official_api"  // Tier 2: government/official APIs
	TierBusinessData SourceTier = "business_data" // Tier 3: business databases
	TierNews         SourceTier = "news"          // Tier 4: news, needs confirmation
)

// AllTiers lists every tier in priority order.
var AllTiers = []SourceTier{TierUserDocument, TierOfficialAPI, TierBusinessData, TierNews}

// Number returns the tier's priority rank (1-4), or 0 for an unknown tier.
func (t SourceTier) Number() int {
	switch t {
	case TierUserDocument:
		return 1
	case TierOfficialAPI:
		return 2
	case TierBusinessData:
		return 3
	case TierNews:
		return 4
	default:
		return 0
	}
}

// ReliabilityCeiling returns the highest reliability score a source of this
// tier may carry.
func (t SourceTier) ReliabilityCeiling() int {
	switch t {
	case TierUserDocument:
		return 100
	case TierOfficialAPI:
		return 95
	case TierBusinessData:
		return 70
	case TierNews:
		return 50
	default:
		return 0
	}
}

// RequiresConfirmation reports whether a single source of this tier is not
// enough on its own.
func (t SourceTier) RequiresConfirmation() bool {
	return t == TierNews
}

// Valid reports whether t is a known tier.
func (t SourceTier) Valid() bool { return t.Number() > 0 }

// Label is the human-readable tier name.
func (t SourceTier) Label() string {
	switch t {
	case TierUserDocument:
		return "User documents"
	case TierOfficialAPI:
		return "Official APIs"
	case TierBusinessData:
		return "Business data"
	case TierNews:
		return "News"
	default:
		return string(t)
	}
}

// TierFromNumber maps a rank (1-4) back to its tier.
func TierFromNumber(n int) (SourceTier, bool) {
	if n < 1 || n > len(AllTiers) {
		return "", false
	}
	return AllTiers[n-1], true
}

// EvidenceMode governs how insufficient evidence is handled.
type EvidenceMode string

const (
	ModeStrict     EvidenceMode = "strict"
	ModeBalanced   EvidenceMode = "balanced"
	ModeHypothesis EvidenceMode = "hypothesis"
)

// Valid reports whether m is a known mode.
func (m EvidenceMode) Valid() bool {
	switch m {
	case ModeStrict, ModeBalanced, ModeHypothesis:
		return true
	}
	return false
}

// ParseMode converts a string to an EvidenceMode.
func ParseMode(s string) (EvidenceMode, error) {
	m := EvidenceMode(s)
	if !m.Valid() {
		return "", &ConfigurationError{Field: "evidence_mode", Reason: "unknown evidence mode " + s}
	}
	return m, nil
}

// EvidenceStatus is the whole-generation evidence verdict.
type EvidenceStatus string

const (
	StatusEvidenceBacked  EvidenceStatus = "evidence_backed"
	StatusPartialEvidence EvidenceStatus = "partial_evidence"
	StatusNoEvidence      EvidenceStatus = "no_evidence"
	StatusConflicting     EvidenceStatus = "conflicting"
)

// Valid reports whether s is one of the four known statuses.
func (s EvidenceStatus) Valid() bool {
	switch s {
	case StatusEvidenceBacked, StatusPartialEvidence, StatusNoEvidence, StatusConflicting:
		return true
	}
	return false
}

// ClaimStatus is the per-claim evidence verdict.
type ClaimStatus string

const (
	ClaimSupported   ClaimStatus = "supported"
	ClaimWeak        ClaimStatus = "weak"
	ClaimUnsupported ClaimStatus = "unsupported"
)

// QuoteLevel describes how faithfully a citation quotes its source.
type QuoteLevel string

const (
	QuoteExact       QuoteLevel = "exact"
	QuoteSnippet     QuoteLevel = "snippet"
	QuoteUnavailable QuoteLevel = "unavailable"
)

// ClaimValueType is the declared type of a claim's value.
type ClaimValueType string

const (
	ValueNumber     ClaimValueType = "number"
	ValueCurrency   ClaimValueType = "currency"
	ValuePercentage ClaimValueType = "percentage"
	ValueString     ClaimValueType = "string"
	ValueEnum       ClaimValueType = "enum"
	ValueDate       ClaimValueType = "date"
	ValueBoolean    ClaimValueType = "boolean"
)

// Numeric reports whether values of this type can be compared as numbers.
func (v ClaimValueType) Numeric() bool {
	return v == ValueNumber || v == ValueCurrency || v == ValuePercentage
}

// LocationType identifies the kind of anchor a citation points at.
type LocationType string

const (
	LocationURL         LocationType = "url"
	LocationPDF         LocationType = "pdf"
	LocationDocument    LocationType = "document"
	LocationSpreadsheet LocationType = "spreadsheet"
	LocationAPIResponse LocationType = "api_response"
)

// Location anchors a citation inside its source. At most one of Page and Row
// is set.
type Location struct {
	Type      LocationType `json:"type,omitempty"`
	Page      *int         `json:"page,omitempty"`
	Paragraph *int         `json:"paragraph,omitempty"`
	Line      *int         `json:"line,omitempty"`
	Sheet     string       `json:"sheet,omitempty"`
	Row       *int         `json:"row,omitempty"`
	Column    string       `json:"column,omitempty"`
	StartChar *int         `json:"start_char,omitempty"`
	EndChar   *int         `json:"end_char,omitempty"`
}

// PageLocation anchors a citation to a document page.
func PageLocation(page int) Location {
	return Location{Type: LocationPDF, Page: &page}
}

// RowLocation anchors a citation to a spreadsheet row.
func RowLocation(sheet string, row int) Location {
	return Location{Type: LocationSpreadsheet, Sheet: sheet, Row: &row}
}

// Validate enforces the single-anchor rule.
func (l Location) Validate() error {
	if l.Page != nil && l.Row != nil {
		return &ConfigurationError{Field: "location", Reason: "citation has both page and row anchors"}
	}
	return nil
}

// Citation points from a claim to a quoted location within one source.
type Citation struct {
	SourceID         string     `json:"source_id"`
	SourceType       SourceTier `json:"source_type"`
	SourceName       string     `json:"source_name"`
	URL              string     `json:"url"`
	Quote            string     `json:"quote"`
	QuoteLevel       QuoteLevel `json:"quote_level"`
	Location         Location   `json:"location"`
	DateAccessed     string     `json:"date_accessed,omitempty"`
	DatePublished    string     `json:"date_published,omitempty"`
	ReliabilityScore int        `json:"reliability_score"`
	RelevanceScore   int        `json:"relevance_score"`
}

// RealSource is a retrieved evidence source. Sources are never modified after
// retrieval.
type RealSource struct {
	ID                 string     `json:"id"`
	Type               SourceTier `json:"type"`
	Name               string     `json:"name"`
	Title              string     `json:"title,omitempty"`
	Summary            string     `json:"summary"`
	URL                string     `json:"url"`
	Domain             string     `json:"domain"`
	ParentOrganization string     `json:"parent_organization,omitempty"`
	PublishedDate      string     `json:"published_date,omitempty"`
	ReliabilityScore   int        `json:"reliability_score"`
	AuthorityScore     *int       `json:"authority_score,omitempty"`
	FileType           string     `json:"file_type,omitempty"`
	PagesCount         int        `json:"pages_count,omitempty"`
	RawContent         string     `json:"raw_content,omitempty"`
}

// ClaimWithEvidence is a generated assertion together with its citations.
type ClaimWithEvidence struct {
	ClaimID            string         `json:"claim_id"`
	ClaimText          string         `json:"claim_text"`
	Value              string         `json:"value"`
	ValueType          ClaimValueType `json:"value_type,omitempty"`
	Status             ClaimStatus    `json:"status"`
	Citations          []Citation     `json:"citations"`
	SourcesFound       int            `json:"sources_found"`
	SourcesRequired    int            `json:"sources_required"`
	IndependentDomains []string       `json:"independent_domains"`
}

// ResolutionType describes how a conflict was reconciled.
type ResolutionType string

const (
	ResolutionRange      ResolutionType = "range"
	ResolutionScenario   ResolutionType = "scenario"
	ResolutionUnresolved ResolutionType = "unresolved"
)

// ConflictingValue is one of the disagreeing values and the citations
// asserting it.
type ConflictingValue struct {
	Value     string     `json:"value"`
	Citations []Citation `json:"citations"`
}

// EvidenceConflict records two or more sources disagreeing on a claim.
type EvidenceConflict struct {
	ClaimID           string             `json:"claim_id"`
	ConflictingValues []ConflictingValue `json:"conflicting_values"`
	Resolution        string             `json:"resolution,omitempty"`
	ResolutionType    ResolutionType     `json:"resolution_type,omitempty"`
}

// Resolved reports whether the conflict carries a resolution.
func (c EvidenceConflict) Resolved() bool {
	return c.Resolution != "" && c.ResolutionType != ResolutionUnresolved
}

// GenerationResult is the immutable output bundle of one generation.
type GenerationResult struct {
	GenerationID         string              `json:"generation_id"`
	FunctionName         string              `json:"function_name"`
	EvidenceMode         EvidenceMode        `json:"evidence_mode,omitempty"`
	Content              json.RawMessage     `json:"content,omitempty"`
	SourcesPlanned       int                 `json:"sources_planned"`
	SourcesFound         int                 `json:"sources_found"`
	SourcesUsed          []RealSource        `json:"sources_used"`
	Claims               []ClaimWithEvidence `json:"claims"`
	EvidenceStatus       EvidenceStatus      `json:"evidence_status"`
	CoveragePercentage   int                 `json:"coverage_percentage"`
	Conflicts            []EvidenceConflict  `json:"conflicts"`
	Limitations          []string            `json:"limitations,omitempty"`
	GeneratedAt          time.Time           `json:"generated_at"`
	SearchDurationMS     int64               `json:"search_duration_ms"`
	GenerationDurationMS int64               `json:"generation_duration_ms"`
}

// Clone returns a copy whose slices can be changed without touching r.
func (r *GenerationResult) Clone() *GenerationResult {
	if r == nil {
		return nil
	}
	c := *r
	c.Content = append(json.RawMessage(nil), r.Content...)
	c.SourcesUsed = append([]RealSource(nil), r.SourcesUsed...)
	c.Claims = append([]ClaimWithEvidence(nil), r.Claims...)
	c.Conflicts = append([]EvidenceConflict(nil), r.Conflicts...)
	c.Limitations = append([]string(nil), r.Limitations...)
	return &c
}

// ExitReason is why strict mode blocked a generation.
type ExitReason string

const (
	ReasonInsufficientSources ExitReason = "insufficient_sources"
	ReasonConflictingEvidence ExitReason = "conflicting_evidence"
	ReasonNoTier1Or2          ExitReason = "no_tier_1_or_2"
)

// ExitAction is a user's way out of a strict block.
type ExitAction string

const (
	ActionSearchMore           ExitAction = "search_more"
	ActionContinueAsHypothesis ExitAction = "continue_as_hypothesis"
	ActionCancel               ExitAction = "cancel"
)

// Valid reports whether a is one of the three known actions.
func (a ExitAction) Valid() bool {
	switch a {
	case ActionSearchMore, ActionContinueAsHypothesis, ActionCancel:
		return true
	}
	return false
}

// ExitOption is one remediation choice offered after a strict block.
type ExitOption struct {
	Action      ExitAction `json:"action"`
	Label       string     `json:"label"`
	Description string     `json:"description"`
	Warning     string     `json:"warning,omitempty"`
}

// StrictModeExitOptions describes a strict block and how to leave it.
type StrictModeExitOptions struct {
	Reason           ExitReason   `json:"reason"`
	Detail           string       `json:"detail,omitempty"`
	CurrentCoverage  int          `json:"current_coverage"`
	RequiredCoverage int          `json:"required_coverage"`
	SourcesFound     int          `json:"sources_found"`
	SourcesRequired  int          `json:"sources_required"`
	Options          []ExitOption `json:"options"`
}

// Offers reports whether action is among the well-formed options. A nil or
// empty option list offers nothing.
func (o *StrictModeExitOptions) Offers(action ExitAction) bool {
	if o == nil {
		return false
	}
	for _, opt := range o.Options {
		if opt.Action == action && action.Valid() {
			return true
		}
	}
	return false
}

// ClaimDefinition is a predefined claim a function must fill with evidence.
type ClaimDefinition struct {
	ID                   string         `json:"id" yaml:"id"`
	ClaimText            string         `json:"claim_text" yaml:"claim_text"`
	FieldPath            string         `json:"field_path" yaml:"field_path"`
	ValueType            ClaimValueType `json:"value_type" yaml:"value_type"`
	RequiresEvidence     bool           `json:"requires_evidence" yaml:"requires_evidence"`
	SourcesMin           int            `json:"sources_min,omitempty" yaml:"sources_min"`
	MaxAgeDays           int            `json:"max_age_days,omitempty" yaml:"max_age_days"`
	RequiresIndependence bool           `json:"requires_independence,omitempty" yaml:"requires_independence"`
}

// EvidenceContract is the set of strict-mode requirements for a function.
type EvidenceContract struct {
	FunctionName         string            `json:"function_name" yaml:"function_name"`
	Claims               []ClaimDefinition `json:"claims" yaml:"-"`
	MinTotalSources      int               `json:"min_total_sources" yaml:"min_total_sources"`
	RequireTier1Or2      bool              `json:"require_tier_1_or_2" yaml:"require_tier_1_or_2"`
	AllowPartialEvidence bool              `json:"allow_partial_evidence" yaml:"allow_partial_evidence"`
	BlockOnFailure       bool              `json:"block_on_failure" yaml:"block_on_failure"`
}

// RequiredCoverage is the coverage a strict generation must reach.
func (c EvidenceContract) RequiredCoverage() int {
	if c.AllowPartialEvidence {
		return 70
	}
	return 100
}

// SourcePolicy is a project's persisted retrieval preferences.
type SourcePolicy struct {
	ProjectID           string       `json:"project_id"`
	UserID              string       `json:"user_id"`
	EvidenceMode        EvidenceMode `json:"evidence_mode"`
	Tier1Enabled        bool         `json:"tier_1_enabled"`
	Tier2Enabled        bool         `json:"tier_2_enabled"`
	Tier3Enabled        bool         `json:"tier_3_enabled"`
	Tier4Enabled        bool         `json:"tier_4_enabled"`
	BlockedDomains      []string     `json:"blocked_domains"`
	AllowedDomains      []string     `json:"allowed_domains"`
	MaxSourceAgeDays    *int         `json:"max_source_age_days,omitempty"`
	MinReliabilityScore int          `json:"min_reliability_score"`
	RequireHTTPS        bool         `json:"require_https"`
	CreatedAt           time.Time    `json:"created_at"`
	UpdatedAt           time.Time    `json:"updated_at"`
}

// Enabled reports whether tier t is switched on.
func (p SourcePolicy) Enabled(t SourceTier) bool {
	switch t {
	case TierUserDocument:
		return p.Tier1Enabled
	case TierOfficialAPI:
		return p.Tier2Enabled
	case TierBusinessData:
		return p.Tier3Enabled
	case TierNews:
		return p.Tier4Enabled
	}
	return false
}

// EnabledTiers lists the switched-on tiers in priority order.
func (p SourcePolicy) EnabledTiers() []SourceTier {
	var out []SourceTier
	for _, t := range AllTiers {
		if p.Enabled(t) {
			out = append(out, t)
		}
	}
	return out
}
