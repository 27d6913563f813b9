package evidence

import (
	_ "embed"
	"os"
	"sort"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed registry.yaml
var defaultRegistryYAML []byte

// FunctionSpec declares the claims, default mode and optional strict contract
// of one generation function.
type FunctionSpec struct {
	Mode     EvidenceMode      `yaml:"mode"`
	Claims   []ClaimDefinition `yaml:"claims"`
	Contract *EvidenceContract `yaml:"contract,omitempty"`
}

// Registry maps function names to their evidence requirements.
type Registry struct {
	Functions map[string]FunctionSpec `yaml:"functions"`
}

// DefaultRegistry returns the built-in function registry.
func DefaultRegistry() *Registry {
	r, err := ParseRegistry(defaultRegistryYAML)
	if err != nil {
		panic(err) // embedded file is validated by tests
	}
	return r
}

// LoadRegistry reads a registry from a YAML file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "evidence: read registry %s", path)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes and validates registry YAML.
func ParseRegistry(data []byte) (*Registry, error) {
	var r Registry
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, eris.Wrap(err, "evidence: parse registry")
	}
	for name, spec := range r.Functions {
		if spec.Mode == "" {
			spec.Mode = ModeBalanced
		}
		if !spec.Mode.Valid() {
			return nil, eris.Errorf("evidence: function %s has unknown mode %q", name, spec.Mode)
		}
		if spec.Contract != nil {
			spec.Contract.FunctionName = name
			spec.Contract.Claims = spec.Claims
		}
		r.Functions[name] = spec
	}
	return &r, nil
}

// Claims returns the claim definitions of a function, or nil if unknown.
func (r *Registry) Claims(function string) []ClaimDefinition {
	return r.Functions[function].Claims
}

// Contract returns the strict contract of a function, or nil.
func (r *Registry) Contract(function string) *EvidenceContract {
	spec, ok := r.Functions[function]
	if !ok || spec.Contract == nil {
		return nil
	}
	c := *spec.Contract
	return &c
}

// Mode returns a function's default evidence mode (balanced when unknown).
func (r *Registry) Mode(function string) EvidenceMode {
	if spec, ok := r.Functions[function]; ok {
		return spec.Mode
	}
	return ModeBalanced
}

// RequiresStrict reports whether a function defaults to strict mode.
func (r *Registry) RequiresStrict(function string) bool {
	return r.Mode(function) == ModeStrict
}

// MinimumSources is the contract minimum for strict functions, otherwise the
// largest per-claim minimum (at least 1).
func (r *Registry) MinimumSources(function string) int {
	if c := r.Contract(function); c != nil {
		return c.MinTotalSources
	}
	n := 1
	for _, cd := range r.Claims(function) {
		if cd.SourcesMin > n {
			n = cd.SourcesMin
		}
	}
	return n
}

// Names lists registered functions alphabetically.
func (r *Registry) Names() []string {
	out := make([]string, 0, len(r.Functions))
	for name := range r.Functions {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
