package retrieval

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/evidence-cli/internal/tierconfig"
)

// Normalize folds compatibility forms and diacritics, lowercases and
// collapses whitespace, so equivalent queries share a cache entry.
func Normalize(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// BuildQuery derives the search text for a generation. An explicit "query"
// parameter wins; otherwise the function name is used ("market-research"
// becomes "market research"). The profile then appends its synonyms.
func BuildQuery(function string, params map[string]any, profile tierconfig.Profile) string {
	base, _ := params["query"].(string)
	if strings.TrimSpace(base) == "" {
		base = strings.NewReplacer("-", " ", "_", " ").Replace(function)
	}
	return profile.Query(base)
}
