package tierconfig

import (
	_ "embed"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/evidence-cli/internal/evidence"
)

//go:embed profiles.yaml
var defaultProfilesYAML []byte

// GenericProfile is used when a requested profile does not exist.
const GenericProfile = "generic"

// Profile is a retrieval strategy for a domain: which tiers to favor, which
// words to search with and which mode to suggest.
type Profile struct {
	ID                  string                `yaml:"-" json:"id"`
	Name                string                `yaml:"name" json:"name"`
	Description         string                `yaml:"description" json:"description"`
	TierOrder           []evidence.SourceTier `yaml:"tier_order" json:"tier_order"`
	Keywords            []string              `yaml:"keywords" json:"keywords"`
	Synonyms            map[string][]string   `yaml:"synonyms,omitempty" json:"synonyms,omitempty"`
	StrictnessDefault   evidence.EvidenceMode `yaml:"strictness_default" json:"strictness_default"`
	MinSourcesOverall   int                   `yaml:"min_sources_overall" json:"min_sources_overall"`
	RecommendedCoverage int                   `yaml:"recommended_coverage" json:"recommended_coverage"`
}

// Profiles is the set of known profiles keyed by id.
type Profiles map[string]Profile

// DefaultProfiles returns the built-in profiles.
func DefaultProfiles() Profiles {
	p, err := ParseProfiles(defaultProfilesYAML)
	if err != nil {
		panic(err) // embedded file is validated by tests
	}
	return p
}

// LoadProfiles reads profiles from path and layers them over the defaults.
// An empty path returns the defaults.
func LoadProfiles(path string) (Profiles, error) {
	base := DefaultProfiles()
	if path == "" {
		return base, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "tierconfig: read profiles %s", path)
	}
	extra, err := ParseProfiles(data)
	if err != nil {
		return nil, err
	}
	for id, p := range extra {
		base[id] = p
	}
	return base, nil
}

// ParseProfiles decodes and validates profile YAML.
func ParseProfiles(data []byte) (Profiles, error) {
	var doc struct {
		Profiles map[string]Profile `yaml:"profiles"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "tierconfig: parse profiles")
	}
	out := make(Profiles, len(doc.Profiles))
	for id, p := range doc.Profiles {
		p.ID = id
		if p.StrictnessDefault == "" {
			p.StrictnessDefault = evidence.ModeBalanced
		}
		if !p.StrictnessDefault.Valid() {
			return nil, eris.Errorf("tierconfig: profile %s has unknown mode %q", id, p.StrictnessDefault)
		}
		for _, t := range p.TierOrder {
			if !t.Valid() {
				return nil, eris.Errorf("tierconfig: profile %s has unknown tier %q", id, t)
			}
		}
		out[id] = p
	}
	return out, nil
}

// Get returns the profile with id, falling back to the generic profile.
func (ps Profiles) Get(id string) Profile {
	if p, ok := ps[id]; ok {
		return p
	}
	return ps[GenericProfile]
}

// DefaultState seeds form state from the profile: its default mode, and the
// standard tier defaults.
func (p Profile) DefaultState() UIState {
	return DefaultUIState(p.StrictnessDefault)
}

// Query appends the profile's synonyms for every synonym key found in base.
func (p Profile) Query(base string) string {
	terms := []string{strings.TrimSpace(base)}
	lower := strings.ToLower(base)
	words := make([]string, 0, len(p.Synonyms))
	for w := range p.Synonyms {
		words = append(words, w)
	}
	sort.Strings(words)
	for _, w := range words {
		if strings.Contains(lower, strings.ToLower(w)) {
			terms = append(terms, p.Synonyms[w]...)
		}
	}
	return strings.Join(terms, " ")
}

// OrderTiers sorts enabled tiers by the profile's tier order. Tiers the
// profile does not mention keep priority order after the listed ones.
func (p Profile) OrderTiers(enabled []evidence.SourceTier) []evidence.SourceTier {
	on := make(map[evidence.SourceTier]bool, len(enabled))
	for _, t := range enabled {
		on[t] = true
	}
	out := make([]evidence.SourceTier, 0, len(enabled))
	for _, t := range p.TierOrder {
		if on[t] {
			out = append(out, t)
			delete(on, t)
		}
	}
	for _, t := range evidence.AllTiers {
		if on[t] {
			out = append(out, t)
		}
	}
	return out
}
