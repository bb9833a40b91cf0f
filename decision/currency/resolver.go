// Package currency attributes a currency code to free-form price text.
//
// Resolution is an ordered list of rules. Each rule either decides a code or
// passes; the first rule to decide wins. The default order is:
//
//	explicit-code    a standalone uppercase ISO code the symbol table knows
//	default-symbol   the storefront's own symbol
//	specific-symbol  any other non-generic symbol, longest first, first match wins
//	generic-dollar   a bare "$" under a dollar-denominated default
//	country-default  the storefront's default code
package currency

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"subscription-cost/decision/reference"
)

// Rule names
const (
	RuleExplicitCode   = "explicit-code"
	RuleDefaultSymbol  = "default-symbol"
	RuleSpecificSymbol = "specific-symbol"
	RuleGenericDollar  = "generic-dollar"
	RuleCountryDefault = "country-default"
)

// Input is the evidence a rule inspects.
type Input struct {
	Text          string
	DefaultCode   string
	DefaultSymbol string
}

func newInput(text, defaultCode, defaultSymbol string) *Input {
	return &Input{
		Text:          text,
		DefaultCode:   strings.ToUpper(strings.TrimSpace(defaultCode)),
		DefaultSymbol: strings.TrimSpace(defaultSymbol),
	}
}

// Rule decides a currency code or passes.
type Rule struct {
	Name  string
	Match func(in *Input) (code string, ok bool)
}

// Resolution is the outcome of a successful Resolve.
type Resolution struct {
	Code     string
	Rule     string
	Override bool // explicit code differs from the storefront default
}

// Resolver evaluates rules in order.
type Resolver struct {
	rules  []Rule
	logger zerolog.Logger
}

// NewResolver creates a resolver with the default rule order.
func NewResolver() *Resolver {
	return &Resolver{
		rules:  DefaultRules(),
		logger: zerolog.Nop(),
	}
}

// WithLogger sets the logger for override and rule decisions.
func (r *Resolver) WithLogger(l zerolog.Logger) *Resolver {
	r.logger = l
	return r
}

// WithRules replaces the rule list.
func (r *Resolver) WithRules(rules ...Rule) *Resolver {
	r.rules = rules
	return r
}

// DefaultRules returns the standard precedence.
func DefaultRules() []Rule {
	return []Rule{ExplicitCode, DefaultSymbol, SpecificSymbol, GenericDollar, CountryDefault}
}

// Resolve attributes a code to text. ok is false when the storefront has no
// default currency configured.
func (r *Resolver) Resolve(text, defaultCode, defaultSymbol string) (Resolution, bool) {
	in := newInput(text, defaultCode, defaultSymbol)
	if in.DefaultCode == "" {
		return Resolution{}, false
	}

	for _, rule := range r.rules {
		code, ok := rule.Match(in)
		if !ok {
			continue
		}
		res := Resolution{Code: code, Rule: rule.Name}
		if rule.Name == RuleExplicitCode && code != in.DefaultCode {
			res.Override = true
			r.logger.Info().Str("default", in.DefaultCode).Str("explicit", code).Str("text", text).
				Msg("explicit currency code overrides default")
		}
		r.logger.Debug().Str("rule", rule.Name).Str("code", code).Str("text", text).Msg("currency resolved")
		return res, true
	}
	return Resolution{}, false
}

// =============================================================================
// RULES
// =============================================================================

var explicitCodePattern = regexp.MustCompile(`\b([A-Z]{3})\b`)

// ExplicitCode adopts the first standalone uppercase three-letter token when it
// is the default or a code the symbol table knows. Only the first token is considered.
var ExplicitCode = Rule{
	Name: RuleExplicitCode,
	Match: func(in *Input) (string, bool) {
		m := explicitCodePattern.FindStringSubmatch(in.Text)
		if m == nil {
			return "", false
		}
		code := m[1]
		if code == in.DefaultCode || reference.IsKnownCode(code) {
			return code, true
		}
		return "", false
	},
}

// DefaultSymbol adopts the default code when the storefront's own symbol appears.
var DefaultSymbol = Rule{
	Name: RuleDefaultSymbol,
	Match: func(in *Input) (string, bool) {
		if in.DefaultSymbol == "" || !ContainsSymbol(in.Text, in.DefaultSymbol) {
			return "", false
		}
		return in.DefaultCode, true
	},
}

// SpecificSymbol adopts the code of the first non-generic symbol found, scanning longest symbols first.
var SpecificSymbol = Rule{
	Name: RuleSpecificSymbol,
	Match: func(in *Input) (string, bool) {
		for _, s := range reference.Symbols() {
			if s.Symbol == reference.GenericDollar {
				continue
			}
			if ContainsSymbol(in.Text, s.Symbol) {
				return s.Code, true
			}
		}
		return "", false
	},
}

// GenericDollar confirms a dollar-denominated default when a bare "$" appears.
// Under any other default the sign is inconclusive.
var GenericDollar = Rule{
	Name: RuleGenericDollar,
	Match: func(in *Input) (string, bool) {
		if !strings.Contains(in.Text, reference.GenericDollar) {
			return "", false
		}
		if reference.IsDollarCurrency(in.DefaultCode) {
			return in.DefaultCode, true
		}
		return "", false
	},
}

// CountryDefault falls back to the storefront's default code.
var CountryDefault = Rule{
	Name: RuleCountryDefault,
	Match: func(in *Input) (string, bool) {
		return in.DefaultCode, in.DefaultCode != ""
	},
}

// =============================================================================
// SYMBOL MATCHING
// =============================================================================

// ContainsSymbol reports whether symbol occurs in text, ignoring case. A symbol
// that begins or ends with a letter must not touch another letter on that side,
// so "kr" matches "89 kr" but not "kroner".
func ContainsSymbol(text, symbol string) bool {
	text = strings.ToLower(text)
	sym := strings.ToLower(symbol)
	if sym == "" {
		return false
	}
	first, _ := utf8.DecodeRuneInString(sym)
	last, _ := utf8.DecodeLastRuneInString(sym)

	from := 0
	for from <= len(text) {
		i := strings.Index(text[from:], sym)
		if i < 0 {
			return false
		}
		start, end := from+i, from+i+len(sym)
		if boundaryOK(text, start, end, first, last) {
			return true
		}
		_, size := utf8.DecodeRuneInString(text[start:])
		from = start + size
	}
	return false
}

// SymbolCode resolves a locally matched symbol: the storefront's own symbol
// yields the default code, a specific table symbol yields its code. A bare
// "$" under a non-default symbol is ambiguous and reports false.
func SymbolCode(symbol, defaultCode, defaultSymbol string) (string, bool) {
	sym := strings.TrimSpace(symbol)
	if sym == "" {
		return "", false
	}
	if defaultSymbol != "" && strings.EqualFold(sym, defaultSymbol) && defaultCode != "" {
		return strings.ToUpper(defaultCode), true
	}
	if sym == reference.GenericDollar {
		return "", false
	}
	for _, s := range reference.Symbols() {
		if strings.EqualFold(s.Symbol, sym) {
			return s.Code, true
		}
	}
	return "", false
}

func boundaryOK(text string, start, end int, first, last rune) bool {
	if unicode.IsLetter(first) && start > 0 {
		prev, _ := utf8.DecodeLastRuneInString(text[:start])
		if unicode.IsLetter(prev) {
			return false
		}
	}
	if unicode.IsLetter(last) && end < len(text) {
		next, _ := utf8.DecodeRuneInString(text[end:])
		if unicode.IsLetter(next) {
			return false
		}
	}
	return true
}
