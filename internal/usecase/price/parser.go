// Package price extracts price constraints from natural language queries.
package price

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wearly/searchd/internal/domain"
)

type ruleKind int

const (
	kindMax ruleKind = iota
	kindMin
	kindRange
	kindAround
)

type rule struct {
	re   *regexp.Regexp
	kind ruleKind
}

// Rules are tried in order and the first match wins, so "under 1000" is
// claimed by the max rule before the bare range rule can see "1000".
var rules = []rule{
	{regexp.MustCompile(`(?i)\b(?:under|below|less than|cheaper than|max|upto|up to)\s*(?:rs\.?|inr|₹)?\s*(\d+(?:,\d{3})*(?:\.\d{2})?)\b`), kindMax},
	{regexp.MustCompile(`(?i)\b(?:above|over|more than|min|minimum|at least|starting)\s*(?:rs\.?|inr|₹)?\s*(\d+(?:,\d{3})*(?:\.\d{2})?)\b`), kindMin},
	{regexp.MustCompile(`(?i)\bbetween\s*(?:rs\.?|inr|₹)?\s*(\d+(?:,\d{3})*)\s*(?:and|to|-)\s*(?:rs\.?|inr|₹)?\s*(\d+(?:,\d{3})*)\b`), kindRange},
	{regexp.MustCompile(`(?i)\b(?:rs\.?|inr|₹)?\s*(\d+(?:,\d{3})*)\s*(?:to|-)\s*(?:rs\.?|inr|₹)?\s*(\d+(?:,\d{3})*)\b`), kindRange},
	{regexp.MustCompile(`(?i)\b(?:for|around|approx|approximately)\s*(?:rs\.?|inr|₹)?\s*(\d+(?:,\d{3})*)\b`), kindAround},
}

// Parse extracts price bounds from a query. The matched span is removed from
// the returned clean query and surrounding whitespace is collapsed. Queries
// without price language come back unchanged with empty bounds.
func Parse(query string) (domain.PriceIntent, string) {
	for _, r := range rules {
		m := r.re.FindStringSubmatch(query)
		if m == nil {
			continue
		}

		var intent domain.PriceIntent
		switch r.kind {
		case kindMax:
			intent.Max = numPtr(m[1])
		case kindMin:
			intent.Min = numPtr(m[1])
		case kindRange:
			intent.Min = numPtr(m[1])
			intent.Max = numPtr(m[2])
		case kindAround:
			base := num(m[1])
			lo, hi := base*0.8, base*1.2
			intent.Min, intent.Max = &lo, &hi
		}

		// Inverted bounds are user typos like "between 2000 and 500".
		if intent.Min != nil && intent.Max != nil && *intent.Min > *intent.Max {
			intent.Min, intent.Max = intent.Max, intent.Min
		}

		clean := strings.Join(strings.Fields(r.re.ReplaceAllString(query, "")), " ")
		return intent, clean
	}

	return domain.PriceIntent{}, strings.Join(strings.Fields(query), " ")
}

func num(s string) float64 {
	f, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return f
}

func numPtr(s string) *float64 {
	f := num(s)
	return &f
}
