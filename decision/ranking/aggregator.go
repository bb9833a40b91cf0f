// Package ranking orders countries by the converted monthly price of a chosen plan.
package ranking

import (
	"sort"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// DefaultLimit is the size of the ranked summary.
const DefaultLimit = 10

// DefaultKeyword selects the plan compared across countries.
const DefaultKeyword = "Premium"

// Plan is the part of a plan record the ranking reads.
type Plan struct {
	Name             string
	Currency         string
	Monthly          *decimal.Decimal
	MonthlyConverted *decimal.Decimal
}

// Country is one country's plans in their original order.
type Country struct {
	Code  string
	Name  string
	Plans []Plan
}

// Entry is one line of the ranked summary.
type Entry struct {
	Rank          int             `json:"rank"`
	CountryCode   string          `json:"country_code"`
	CountryName   string          `json:"country_name"`
	PlanName      string          `json:"plan_name"`
	OriginalPrice decimal.Decimal `json:"original_price"`
	Currency      string          `json:"currency"`
	Converted     decimal.Decimal `json:"price_cny"`
}

// Result is the ranked summary plus the order countries should be emitted in.
type Result struct {
	Keyword string
	Summary []Entry
	// Order holds indices into the input: every eligible country by ascending
	// price, then the rest in input order.
	Order []int
}

// Aggregator ranks countries by keyword plan.
type Aggregator struct {
	keyword string
	limit   int
}

// NewAggregator creates an aggregator for plans whose name contains keyword (case-sensitive).
func NewAggregator(keyword string) *Aggregator {
	return &Aggregator{keyword: keyword, limit: DefaultLimit}
}

// WithLimit sets the summary size.
func (a *Aggregator) WithLimit(n int) *Aggregator {
	if n > 0 {
		a.limit = n
	}
	return a
}

type candidate struct {
	index int
	entry Entry
}

// Rank selects each country's first keyword plan, keeps those with a converted
// monthly price and sorts them ascending. Ties keep input order.
func (a *Aggregator) Rank(countries []Country) Result {
	var eligible []candidate
	for i, c := range countries {
		plan, ok := a.firstMatch(c.Plans)
		if !ok || plan.MonthlyConverted == nil {
			continue
		}
		e := Entry{
			CountryCode: c.Code,
			CountryName: c.Name,
			PlanName:    plan.Name,
			Currency:    plan.Currency,
			Converted:   *plan.MonthlyConverted,
		}
		if plan.Monthly != nil {
			e.OriginalPrice = *plan.Monthly
		}
		eligible = append(eligible, candidate{index: i, entry: e})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].entry.Converted.LessThan(eligible[j].entry.Converted)
	})

	res := Result{
		Keyword: a.keyword,
		Summary: make([]Entry, 0, min(len(eligible), a.limit)),
		Order:   make([]int, 0, len(countries)),
	}
	ranked := make(map[int]bool, len(eligible))
	for i, c := range eligible {
		if i < a.limit {
			e := c.entry
			e.Rank = i + 1
			res.Summary = append(res.Summary, e)
		}
		res.Order = append(res.Order, c.index)
		ranked[c.index] = true
	}
	for i := range countries {
		if !ranked[i] {
			res.Order = append(res.Order, i)
		}
	}
	return res
}

// SummaryKey is the report key of the ranked block.
func (a *Aggregator) SummaryKey() string {
	return "_top_" + strconv.Itoa(a.limit) + "_cheapest_" + strings.ToLower(a.keyword) + "_plans"
}

func (a *Aggregator) firstMatch(plans []Plan) (Plan, bool) {
	for _, p := range plans {
		if strings.Contains(p.Name, a.keyword) {
			return p, true
		}
	}
	return Plan{}, false
}
