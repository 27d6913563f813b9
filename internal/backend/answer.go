package backend

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/retrieval"
)

// answer is the JSON the model is asked to produce.
type answer struct {
	Content json.RawMessage `json:"content"`
	Claims  []answerClaim   `json:"claims"`
}

type answerClaim struct {
	ClaimID   string           `json:"claim_id"`
	ClaimText string           `json:"claim_text"`
	Value     json.RawMessage  `json:"value"`
	Citations []answerCitation `json:"citations"`
}

type answerCitation struct {
	Source int    `json:"source"`
	Quote  string `json:"quote"`
}

func parseAnswer(text string) (*answer, error) {
	var a answer
	if err := json.Unmarshal([]byte(cleanJSON(text)), &a); err != nil {
		return nil, eris.Wrap(err, "backend: parse model answer")
	}
	return &a, nil
}

// valueString renders a JSON value as claim text: strings unquoted,
// everything else as its JSON literal.
func valueString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

// cleanJSON strips markdown fences and surrounding prose, then closes any
// brackets a truncated response left open.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	if start := strings.Index(text, "{"); start >= 0 {
		text = text[start:]
		if end := strings.LastIndex(text, "}"); end >= 0 && balanced(text[:end+1]) {
			text = text[:end+1]
		}
	}
	return repairTruncatedJSON(strings.TrimSpace(text))
}

// balanced reports whether every bracket outside strings is closed.
func balanced(text string) bool {
	return len(openDelimiters(text)) == 0
}

func repairTruncatedJSON(text string) string {
	stack := openDelimiters(text)
	if len(stack) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(strings.TrimRight(text, ", \n\t"))
	for i := len(stack) - 1; i >= 0; i-- {
		b.WriteByte(stack[i])
	}
	return b.String()
}

// openDelimiters returns the closers still owed, innermost last. An
// unterminated string is closed first.
func openDelimiters(text string) []byte {
	var stack []byte
	inString, escape := false, false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case escape:
			escape = false
		case c == '\\' && inString:
			escape = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			stack = append(stack, '}')
		case c == '[':
			stack = append(stack, ']')
		case c == '}' || c == ']':
			if len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	if inString {
		stack = append(stack, '"')
	}
	return stack
}

// buildClaims turns the model's claims into classified claims. Declared
// claims keep declaration order and are always present; undeclared claims
// are kept only when the function declares none. Citations that point at
// unknown source numbers are dropped.
func buildClaims(a *answer, defs []evidence.ClaimDefinition, res *retrieval.SearchResults, accessed time.Time) ([]evidence.ClaimWithEvidence, []evidence.RealSource) {
	byID := make(map[string]answerClaim, len(a.Claims))
	for _, c := range a.Claims {
		if _, dup := byID[c.ClaimID]; !dup {
			byID[c.ClaimID] = c
		}
	}

	type slot struct {
		def evidence.ClaimDefinition
		ans answerClaim
	}
	var slots []slot
	if len(defs) > 0 {
		for _, d := range defs {
			slots = append(slots, slot{def: d, ans: byID[d.ID]})
		}
	} else {
		for _, c := range a.Claims {
			if c.ClaimID == "" {
				continue
			}
			slots = append(slots, slot{
				def: evidence.ClaimDefinition{ID: c.ClaimID, ClaimText: c.ClaimText, ValueType: evidence.ValueString, SourcesMin: 1},
				ans: c,
			})
		}
	}

	var sources []evidence.RealSource
	if res != nil {
		sources = res.Sources
	}
	used := make(map[string]bool)
	var usedOrder []evidence.RealSource

	claims := make([]evidence.ClaimWithEvidence, 0, len(slots))
	for _, s := range slots {
		text := s.def.ClaimText
		if text == "" {
			text = s.ans.ClaimText
		}
		var cites []evidence.Citation
		seen := make(map[string]bool)
		for _, ac := range s.ans.Citations {
			if ac.Source < 1 || ac.Source > len(sources) {
				continue
			}
			src := sources[ac.Source-1]
			cites = append(cites, citationFor(src, res.Location(src.ID), ac.Quote, accessed))
			seen[src.ID] = true
			if !used[src.ID] {
				used[src.ID] = true
				usedOrder = append(usedOrder, src)
			}
		}
		required := s.def.SourcesMin
		if required < 1 {
			required = 1
		}
		claims = append(claims, evidence.ClaimWithEvidence{
			ClaimID:            s.def.ID,
			ClaimText:          text,
			Value:              valueString(s.ans.Value),
			ValueType:          s.def.ValueType,
			Status:             evidence.ClassifyClaim(cites),
			Citations:          cites,
			SourcesFound:       len(seen),
			SourcesRequired:    required,
			IndependentDomains: evidence.CitationDomains(cites),
		})
	}
	return claims, usedOrder
}

func citationFor(src evidence.RealSource, loc evidence.Location, quote string, accessed time.Time) evidence.Citation {
	quote = strings.TrimSpace(quote)
	level := evidence.QuoteUnavailable
	switch {
	case quote == "":
	case strings.Contains(src.RawContent, quote) || strings.Contains(src.Summary, quote):
		level = evidence.QuoteExact
	default:
		level = evidence.QuoteSnippet
	}
	return evidence.Citation{
		SourceID:         src.ID,
		SourceType:       src.Type,
		SourceName:       src.Name,
		URL:              src.URL,
		Quote:            quote,
		QuoteLevel:       level,
		Location:         loc,
		DateAccessed:     accessed.UTC().Format(time.RFC3339),
		DatePublished:    src.PublishedDate,
		ReliabilityScore: src.ReliabilityScore,
		RelevanceScore:   relevance(level),
	}
}

func relevance(l evidence.QuoteLevel) int {
	switch l {
	case evidence.QuoteExact:
		return 100
	case evidence.QuoteSnippet:
		return 70
	default:
		return 40
	}
}
