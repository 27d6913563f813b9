package edgar

import (
	"encoding/json"
	"sort"
)

// CompanyFacts is the XBRL company facts document.
type CompanyFacts struct {
	CIK        json.Number                `json:"cik"`
	EntityName string                     `json:"entityName"`
	Facts      map[string]map[string]Fact `json:"facts"`
}

// Fact is one XBRL concept with its values per unit.
type Fact struct {
	Label       string                 `json:"label"`
	Description string                 `json:"description"`
	Units       map[string][]FactValue `json:"units"`
}

// FactValue is a single reported data point.
type FactValue struct {
	Start string  `json:"start,omitempty"`
	End   string  `json:"end"`
	Val   float64 `json:"val"`
	Accn  string  `json:"accn"`
	FY    int     `json:"fy"`
	FP    string  `json:"fp"`
	Form  string  `json:"form"`
	Filed string  `json:"filed"`
}

// Concepts are the us-gaap facts used as financial evidence, with the
// search keywords that select them.
var Concepts = map[string][]string{
	"Revenues": {"revenue", "sales", "turnover", "income"},
	"RevenueFromContractWithCustomerExcludingAssessedTax": {"revenue", "sales"},
	"NetIncomeLoss":                         {"profit", "net income", "earnings", "margin"},
	"OperatingIncomeLoss":                   {"operating", "margin", "ebit"},
	"GrossProfit":                           {"gross", "margin"},
	"CostOfRevenue":                         {"cost", "cogs", "expense"},
	"OperatingExpenses":                     {"expense", "opex", "cost", "spend"},
	"CashAndCashEquivalentsAtCarryingValue": {"cash", "runway", "liquidity"},
	"Assets":                                {"assets", "balance"},
	"Liabilities":                           {"liabilities", "debt", "balance"},
	"LongTermDebt":                          {"debt", "loan", "borrowing"},
}

// AnnualValue is the latest full-year value of a concept.
type AnnualValue struct {
	Concept string
	Label   string
	Unit    string
	FactValue
}

// LatestAnnual returns the most recent 10-K full-year value reported for a
// us-gaap concept. ok is false when the concept has no annual values.
func (cf *CompanyFacts) LatestAnnual(concept string) (AnnualValue, bool) {
	if cf == nil {
		return AnnualValue{}, false
	}
	fact, found := cf.Facts["us-gaap"][concept]
	if !found {
		return AnnualValue{}, false
	}
	units := make([]string, 0, len(fact.Units))
	for u := range fact.Units {
		units = append(units, u)
	}
	sort.Strings(units)

	var best AnnualValue
	ok := false
	for _, unit := range units {
		for _, v := range fact.Units[unit] {
			if v.Form != "10-K" || v.FP != "FY" {
				continue
			}
			if !ok || v.End > best.End || (v.End == best.End && v.Filed > best.Filed) {
				best = AnnualValue{Concept: concept, Label: fact.Label, Unit: unit, FactValue: v}
				ok = true
			}
		}
	}
	return best, ok
}
