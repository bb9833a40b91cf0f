// Package price finds monthly and annual amounts in free-form price text.
package price

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"subscription-cost/decision/currency"
	"subscription-cost/decision/number"
	"subscription-cost/decision/reference"
	"subscription-cost/pkg/units"
)

// Strategy names
const (
	StrategyLabeled = "labeled-period"
	StrategyCompact = "symbol-amount-period"
	StrategySingle  = "single-amount"
)

// ResolvedPrice is an amount attributed to a billing period.
// Currency is empty when no currency could be attributed.
type ResolvedPrice struct {
	Period   units.Period    `json:"period"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// Set holds the prices found in one plan's text. A nil period was not stated.
type Set struct {
	Monthly *ResolvedPrice
	Annual  *ResolvedPrice

	// Strategies that contributed, in order.
	Strategies []string
	// Override is set when an explicit code displaced the storefront default.
	Override bool
}

// Empty reports whether no period was found.
func (s Set) Empty() bool {
	return s.Monthly == nil && s.Annual == nil
}

// Currency returns the plan currency: the monthly price's, else the annual's.
func (s Set) Currency() (string, bool) {
	for _, p := range []*ResolvedPrice{s.Monthly, s.Annual} {
		if p != nil && p.Currency != "" {
			return p.Currency, true
		}
	}
	return "", false
}

func (s *Set) get(p units.Period) *ResolvedPrice {
	if p == units.PeriodAnnual {
		return s.Annual
	}
	return s.Monthly
}

func (s *Set) set(rp *ResolvedPrice) {
	if rp.Period == units.PeriodAnnual {
		s.Annual = rp
	} else {
		s.Monthly = rp
	}
}

func (s *Set) note(strategy string) {
	for _, existing := range s.Strategies {
		if existing == strategy {
			return
		}
	}
	s.Strategies = append(s.Strategies, strategy)
}

// =============================================================================
// PATTERNS
// =============================================================================

const amountExpr = `[\d.,]*\d[\d.,]*`

var (
	// "/month" and "/year" are label words too, so in "$9.99/month $99.99/year"
	// the monthly label reads "/month $99.99" and wins over the compact match.
	labelPatterns = map[units.Period]*regexp.Regexp{
		units.PeriodMonthly: labelPattern(units.MonthlyWords),
		units.PeriodAnnual:  labelPattern(units.AnnualWords),
	}

	compactPattern = regexp.MustCompile(`(?i)([A-Z]{1,3}\$|[A-Z]{2,3}|[€£$¥])\s?(` + amountExpr + `)\s?/(month|year)`)

	singleWithMarker = regexp.MustCompile(`(?i)(?:[A-Z]{2,3}\$?|[€£$¥])\s*(` + amountExpr + `)|(` + amountExpr + `)\s*(?:[A-Z]{2,3}\$?|[€£$¥])`)
	singleBare       = regexp.MustCompile(amountExpr)
)

// labelPattern matches a period word followed by an optionally signed amount
// and an optional trailing code.
func labelPattern(words []string) *regexp.Regexp {
	quoted := make([]string, len(words))
	for i, w := range words {
		quoted[i] = regexp.QuoteMeta(w)
	}
	return regexp.MustCompile(`(?i)(?:` + strings.Join(quoted, "|") + `)\s*:?\s*([€£$¥]?\s?` + amountExpr + `(?:\s?[A-Z]{3}\$?)?)`)
}

// =============================================================================
// EXTRACTOR
// =============================================================================

// Extractor applies the period strategies in order.
type Extractor struct {
	resolver *currency.Resolver
	logger   zerolog.Logger
}

// NewExtractor creates an extractor backed by resolver.
func NewExtractor(resolver *currency.Resolver) *Extractor {
	if resolver == nil {
		resolver = currency.NewResolver()
	}
	return &Extractor{
		resolver: resolver,
		logger:   zerolog.Nop(),
	}
}

// WithLogger sets the logger.
func (e *Extractor) WithLogger(l zerolog.Logger) *Extractor {
	e.logger = l
	return e
}

// Extract finds the monthly and annual prices in text for a storefront.
//
//  1. labeled-period: a localized period word followed by an amount, last occurrence wins.
//  2. symbol-amount-period: "<symbol><amount>/<month|year>", fills periods still missing.
//  3. single-amount: when nothing was found, the first amount is taken as monthly.
func (e *Extractor) Extract(text string, profile reference.CountryProfile) Set {
	var out Set
	text = strings.TrimSpace(text)
	if text == "" {
		return out
	}
	format := number.FormatOf(profile)

	// Whole-text attribution shared by strategies 1 and 3.
	whole, wholeOK := e.resolver.Resolve(text, profile.Currency, profile.Symbol)
	wholeCode := ""
	if wholeOK {
		wholeCode = whole.Code
	}

	for _, period := range []units.Period{units.PeriodMonthly, units.PeriodAnnual} {
		matches := labelPatterns[period].FindAllStringSubmatch(text, -1)
		if len(matches) == 0 {
			continue
		}
		last := matches[len(matches)-1]
		amount, ok := number.Parse(last[1], format)
		if !ok {
			continue
		}
		out.set(&ResolvedPrice{Period: period, Amount: amount, Currency: wholeCode})
		out.note(StrategyLabeled)
		out.Override = out.Override || whole.Override
	}
	if out.Monthly != nil && out.Annual != nil {
		return out
	}

	for _, idx := range compactPattern.FindAllStringSubmatchIndex(text, -1) {
		marker, raw, word := text[idx[2]:idx[3]], text[idx[4]:idx[5]], text[idx[6]:idx[7]]
		period, ok := units.ParsePeriodWord(word)
		if !ok || out.get(period) != nil {
			continue
		}
		amount, ok := number.Parse(raw, format)
		if !ok {
			continue
		}
		code, local := "", false
		if wordStart(text, idx[2]) {
			code, local = currency.SymbolCode(marker, profile.Currency, profile.Symbol)
		}
		if local {
			out.Override = out.Override || code != strings.ToUpper(profile.Currency)
		} else {
			code = wholeCode
			out.Override = out.Override || whole.Override
		}
		out.set(&ResolvedPrice{Period: period, Amount: amount, Currency: code})
		out.note(StrategyCompact)
	}
	if !out.Empty() {
		return out
	}

	if amount, ok := e.firstAmount(text, format); ok {
		out.set(&ResolvedPrice{Period: units.PeriodMonthly, Amount: amount, Currency: wholeCode})
		out.note(StrategySingle)
		out.Override = whole.Override
		e.logger.Debug().Str("text", text).Str("amount", amount.String()).Msg("single amount taken as monthly")
	}
	return out
}

func (e *Extractor) firstAmount(text string, format number.Format) (decimal.Decimal, bool) {
	if m := singleWithMarker.FindStringSubmatch(text); m != nil {
		raw := m[1]
		if raw == "" {
			raw = m[2]
		}
		if amount, ok := number.Parse(raw, format); ok {
			return amount, true
		}
	}
	if raw := singleBare.FindString(text); raw != "" {
		return number.Parse(raw, format)
	}
	return decimal.Decimal{}, false
}

// wordStart reports whether a marker at i is not the tail of a longer word,
// so "Open" or "dollars" never yield a code.
func wordStart(text string, i int) bool {
	first, _ := utf8.DecodeRuneInString(text[i:])
	if !unicode.IsLetter(first) || i == 0 {
		return true
	}
	prev, _ := utf8.DecodeLastRuneInString(text[:i])
	return !unicode.IsLetter(prev)
}
