// Package rates holds exchange-rate tables and converts amounts between currencies.
package rates

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	// BaseCurrency anchors every rate table.
	BaseCurrency = "USD"
	// ReportingCurrency is the currency all plans are compared in.
	ReportingCurrency = "CNY"
)

// divisionPrecision bounds the quotient before the final rounding to cents.
const divisionPrecision = 16

// Table maps currency codes to their value per one unit of Base.
// It is read-only once built.
type Table struct {
	Base  string
	Rates map[string]decimal.Decimal
}

// NewTable builds a table anchored at base. The base rate is set to 1 when omitted.
func NewTable(base string, rates map[string]decimal.Decimal) Table {
	base = strings.ToUpper(base)
	t := Table{Base: base, Rates: make(map[string]decimal.Decimal, len(rates)+1)}
	for code, r := range rates {
		t.Rates[strings.ToUpper(code)] = r
	}
	if _, ok := t.Rates[base]; !ok {
		t.Rates[base] = decimal.NewFromInt(1)
	}
	return t
}

// FromFloats builds a USD-anchored table from a rate feed. Negative and
// non-finite rates are rejected.
func FromFloats(feed map[string]float64) (Table, error) {
	if len(feed) == 0 {
		return Table{}, fmt.Errorf("rate table is empty")
	}
	rates := make(map[string]decimal.Decimal, len(feed))
	for code, r := range feed {
		if math.IsNaN(r) || math.IsInf(r, 0) || r < 0 {
			return Table{}, fmt.Errorf("invalid rate for %s: %v", code, r)
		}
		rates[code] = decimal.NewFromFloat(r)
	}
	return NewTable(BaseCurrency, rates), nil
}

// Rate returns the rate for code.
func (t Table) Rate(code string) (decimal.Decimal, bool) {
	r, ok := t.Rates[strings.ToUpper(code)]
	return r, ok
}

// Codes returns the currencies in the table, sorted.
func (t Table) Codes() []string {
	out := make([]string, 0, len(t.Rates))
	for code := range t.Rates {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// Floats renders the table for serialization.
func (t Table) Floats() map[string]float64 {
	out := make(map[string]float64, len(t.Rates))
	for code, r := range t.Rates {
		out[code], _ = r.Float64()
	}
	return out
}

// Convert converts amount from one currency to another through the base.
//
//	from == base: amount × rate[to]
//	otherwise:    amount ÷ rate[from] × rate[to]
//
// The result is rounded half-up to two places once, at the end. A missing or
// non-positive rate on either side yields false.
func (t Table) Convert(amount decimal.Decimal, from, to string) (decimal.Decimal, bool) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)

	toRate, ok := t.Rates[to]
	if !ok || !toRate.IsPositive() {
		return decimal.Decimal{}, false
	}
	if from == t.Base {
		return roundHalfUp(amount.Mul(toRate)), true
	}

	fromRate, ok := t.Rates[from]
	if !ok || !fromRate.IsPositive() {
		return decimal.Decimal{}, false
	}
	return roundHalfUp(amount.Mul(toRate).DivRound(fromRate, divisionPrecision)), true
}

// roundHalfUp rounds to cents. decimal rounds half away from zero, which is
// half-up for the non-negative amounts handled here.
func roundHalfUp(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Converter converts into a fixed target currency.
type Converter struct {
	table  Table
	target string
}

// NewConverter creates a converter into target.
func NewConverter(table Table, target string) *Converter {
	return &Converter{table: table, target: strings.ToUpper(target)}
}

// Target returns the target currency.
func (c *Converter) Target() string {
	return c.target
}

// Convert converts amount in from to the target currency.
func (c *Converter) Convert(amount decimal.Decimal, from string) (decimal.Decimal, bool) {
	if from == "" {
		return decimal.Decimal{}, false
	}
	return c.table.Convert(amount, from, c.target)
}
