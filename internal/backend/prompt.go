package backend

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/evidence-cli/internal/evidence"
	"github.com/sells-group/evidence-cli/internal/retrieval"
)

const (
	maxParamRunes  = 2000
	maxSourceRunes = 1500
)

const systemPrompt = `You generate business analysis backed by evidence.

You receive a generation function, the claims it must fill and a numbered list of sources.
Answer with a single JSON object and nothing else:

{
  "content": { ...the generated deliverable... },
  "claims": [
    {
      "claim_id": "<id from the claim list>",
      "claim_text": "<the claim>",
      "value": "<the value you assert>",
      "citations": [ { "source": <source number>, "quote": "<verbatim text from that source>" } ]
    }
  ]
}

Rules:
- Cite only the numbered sources. Never invent sources, urls or numbers.
- Every quote must be copied verbatim from the cited source.
- If no source supports a claim, still give your best estimate as the value with an empty citation list.
- Write currency as $1.2M, percentages as 12.5%.`

var injectionPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)ignore\s+(previous|all|prior)\s+instructions?`),
	regexp.MustCompile(`(?i)you\s+are\s+(now|a|an)\s+(different|new)`),
	regexp.MustCompile(`(?i)forget\s+(everything|all|what)\s+`),
	regexp.MustCompile(`(?i)disregard\s+(previous|all|prior)`),
	regexp.MustCompile(`(?i)override\s+your\s+`),
	regexp.MustCompile(`(?i)\[INST\]`),
	regexp.MustCompile(`<\|.*?\|>`),
	regexp.MustCompile(`(?i)###\s*(human|assistant):`),
}

var blankLines = regexp.MustCompile(`\n{4,}`)

// sanitize prepares user-supplied text for the prompt. ok is false when the
// text looks like a prompt injection or is too long.
func sanitize(s string) (string, bool) {
	if len([]rune(s)) > maxParamRunes {
		return "", false
	}
	s = norm.NFKC.String(s)
	for _, re := range injectionPatterns {
		if re.MatchString(s) {
			return "", false
		}
	}
	s = strings.ReplaceAll(s, "```", "'''")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = blankLines.ReplaceAllString(s, "\n\n\n")
	return strings.TrimSpace(s), true
}

// sanitizeParams keeps the parameters that are safe to show the model.
// Non-string values are rendered as JSON.
func sanitizeParams(function string, params map[string]any) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		var text string
		switch tv := v.(type) {
		case string:
			text = tv
		default:
			data, err := json.Marshal(tv)
			if err != nil {
				continue
			}
			text = string(data)
		}
		clean, ok := sanitize(text)
		if !ok {
			zap.L().Warn("backend: dropped unsafe parameter",
				zap.String("function", function),
				zap.String("param", k))
			continue
		}
		out[k] = clean
	}
	return out
}

// buildPrompt renders the user message: the function, its parameters, the
// claim list and the numbered sources.
func buildPrompt(req evidence.GenerationRequest, claims []evidence.ClaimDefinition, res *retrieval.SearchResults) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Function: %s\n", req.FunctionName)
	fmt.Fprintf(&b, "Evidence mode: %s\n\n", req.EvidenceMode)

	params := sanitizeParams(req.FunctionName, req.AdditionalParams)
	if len(params) > 0 {
		keys := make([]string, 0, len(params))
		for k := range params {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("Parameters:\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "- %s: %s\n", k, params[k])
		}
		b.WriteString("\n")
	}

	if len(claims) > 0 {
		b.WriteString("Claims to fill:\n")
		for _, c := range claims {
			fmt.Fprintf(&b, "- %s (%s): %s\n", c.ID, c.ValueType, c.ClaimText)
		}
	} else {
		b.WriteString("Claims to fill: choose the key factual claims of the deliverable and give each a short snake_case claim_id.\n")
	}
	b.WriteString("\n")

	if res == nil || len(res.Sources) == 0 {
		b.WriteString("Sources: none. Leave every citation list empty.\n")
		return b.String()
	}
	b.WriteString("Sources:\n")
	for i, s := range res.Sources {
		fmt.Fprintf(&b, "[%d] %s (%s, %s", i+1, s.Title, s.Domain, s.Type.Label())
		if s.PublishedDate != "" {
			fmt.Fprintf(&b, ", published %s", s.PublishedDate)
		}
		b.WriteString(")\n")
		body := s.RawContent
		if body == "" {
			body = s.Summary
		}
		fmt.Fprintf(&b, "%s\n\n", clip(body, maxSourceRunes))
	}
	return b.String()
}

func clip(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n]) + "..."
}
