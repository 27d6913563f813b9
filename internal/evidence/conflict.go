package evidence

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	currencyPattern   = regexp.MustCompile(`(?i)\$[\d,]+(?:\.\d+)?[KMB]?`)
	percentagePattern = regexp.MustCompile(`\d+(?:\.\d+)?%`)
	numberPattern     = regexp.MustCompile(`\d+(?:,\d{3})*(?:\.\d+)?`)
)

// DetectConflicts finds claims whose citations quote different values.
// Only numeric value types can be extracted from quotes; other claims never
// conflict here.
func DetectConflicts(claims []ClaimWithEvidence) []EvidenceConflict {
	var conflicts []EvidenceConflict
	for _, claim := range claims {
		if len(claim.Citations) < 2 {
			continue
		}

		var order []string
		byValue := make(map[string][]Citation)
		for _, c := range claim.Citations {
			v := ExtractValue(c.Quote, claim.ValueType)
			if v == "" {
				continue
			}
			if _, ok := byValue[v]; !ok {
				order = append(order, v)
			}
			byValue[v] = append(byValue[v], c)
		}
		if len(order) < 2 {
			continue
		}

		values := make([]ConflictingValue, 0, len(order))
		for _, v := range order {
			values = append(values, ConflictingValue{Value: v, Citations: byValue[v]})
		}
		rt, res := ResolveConflict(values, claim.ValueType)
		conflicts = append(conflicts, EvidenceConflict{
			ClaimID:           claim.ClaimID,
			ConflictingValues: values,
			ResolutionType:    rt,
			Resolution:        res,
		})
	}
	return conflicts
}

// ExtractValue pulls the first value of the given type out of a quote.
func ExtractValue(quote string, vt ClaimValueType) string {
	var re *regexp.Regexp
	switch vt {
	case ValueCurrency:
		re = currencyPattern
	case ValuePercentage:
		re = percentagePattern
	case ValueNumber:
		re = numberPattern
	default:
		return ""
	}
	return re.FindString(quote)
}

// ResolveConflict turns disagreeing numeric values into a min-max range.
// Anything it cannot parse stays unresolved.
func ResolveConflict(values []ConflictingValue, vt ClaimValueType) (ResolutionType, string) {
	if !vt.Numeric() || len(values) == 0 {
		return ResolutionUnresolved, ""
	}
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, v := range values {
		n, ok := ParseNumeric(v.Value)
		if !ok {
			return ResolutionUnresolved, ""
		}
		lo = math.Min(lo, n)
		hi = math.Max(hi, n)
	}
	return ResolutionRange, formatRange(lo, hi, vt)
}

// ParseNumeric parses values like "$1,200", "12.5%" or "$3.4M".
func ParseNumeric(s string) (float64, bool) {
	cleaned := strings.NewReplacer("$", "", ",", "", "%", "", " ", "").Replace(strings.ToUpper(s))
	mult := 1.0
	switch {
	case strings.HasSuffix(cleaned, "K"):
		mult = 1e3
	case strings.HasSuffix(cleaned, "M"):
		mult = 1e6
	case strings.HasSuffix(cleaned, "B"):
		mult = 1e9
	}
	cleaned = strings.TrimRight(cleaned, "KMB")
	n, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return n * mult, true
}

func formatRange(lo, hi float64, vt ClaimValueType) string {
	switch vt {
	case ValueCurrency:
		return fmt.Sprintf("$%s-$%s", FormatCompact(lo), FormatCompact(hi))
	case ValuePercentage:
		return fmt.Sprintf("%s%%-%s%%", plain(lo), plain(hi))
	default:
		return fmt.Sprintf("%s-%s", FormatCompact(lo), FormatCompact(hi))
	}
}

// FormatCompact renders n with a K, M or B suffix and one decimal.
func FormatCompact(n float64) string {
	switch {
	case n >= 1e9:
		return fmt.Sprintf("%.1fB", n/1e9)
	case n >= 1e6:
		return fmt.Sprintf("%.1fM", n/1e6)
	case n >= 1e3:
		return fmt.Sprintf("%.1fK", n/1e3)
	default:
		return plain(n)
	}
}

func plain(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}
