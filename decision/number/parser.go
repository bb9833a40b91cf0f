// Package number parses locale-formatted amounts into exact decimals.
package number

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"subscription-cost/decision/reference"
)

// Format is a storefront's separator convention.
type Format struct {
	Decimal  string
	Thousand string
}

// DefaultFormat is "1,234.56".
var DefaultFormat = Format{Decimal: ".", Thousand: ","}

// FormatOf extracts the separator convention of a country profile.
func FormatOf(p reference.CountryProfile) Format {
	return Format{Decimal: p.DecimalSeparator, Thousand: p.ThousandSeparator}
}

// Validate checks the separator domains.
func (f Format) Validate() error {
	if f.Decimal != "." && f.Decimal != "," {
		return fmt.Errorf("decimal separator %q must be '.' or ','", f.Decimal)
	}
	if f.Thousand != "." && f.Thousand != "," && f.Thousand != "" {
		return fmt.Errorf("thousand separator %q must be '.', ',' or empty", f.Thousand)
	}
	return nil
}

var (
	// Currency sign, or a short letter token with an optional trailing sign (USD, HK$, R$, zł).
	leadingToken  = regexp.MustCompile(`^(?:\p{Sc}|\p{L}{1,3}\p{Sc}?)\s*`)
	trailingToken = regexp.MustCompile(`\s*(?:\p{Sc}|\p{L}{1,3}\p{Sc}?)$`)
	plainAmount   = regexp.MustCompile(`^\d*\.?\d*$`)
)

// Parse converts raw into a non-negative exact decimal. ok is false when no
// amount can be read; negative or exponent forms are never accepted.
func Parse(raw string, f Format) (decimal.Decimal, bool) {
	s := stripTokens(raw)
	if s == "" || strings.ContainsAny(s, "-+eE") {
		return decimal.Decimal{}, false
	}

	cleaned := s
	if f.Thousand != "" {
		cleaned = strings.ReplaceAll(cleaned, f.Thousand, "")
	}
	if f.Decimal != "" && f.Decimal != "." {
		cleaned = strings.ReplaceAll(cleaned, f.Decimal, ".")
	}
	cleaned = mergeExtraDots(cleaned)

	if d, ok := parsePlain(cleaned); ok {
		return d, true
	}

	// Digits separated only by thousand marks read as a whole amount.
	if f.Thousand != "" && onlyDigitsAnd(s, f.Thousand) {
		if d, ok := parsePlain(strings.ReplaceAll(s, f.Thousand, "")); ok {
			return d, true
		}
	}
	return decimal.Decimal{}, false
}

// MustParse is Parse for literals in tests and fixtures.
func MustParse(raw string, f Format) decimal.Decimal {
	d, ok := Parse(raw, f)
	if !ok {
		panic(fmt.Sprintf("number: cannot parse %q", raw))
	}
	return d
}

func stripTokens(raw string) string {
	s := strings.TrimSpace(raw)
	for i := 0; i < 2; i++ {
		s = leadingToken.ReplaceAllString(s, "")
		s = trailingToken.ReplaceAllString(s, "")
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// mergeExtraDots keeps the first '.' as the decimal point and joins the rest as trailing digits.
func mergeExtraDots(s string) string {
	first := strings.IndexByte(s, '.')
	if first < 0 {
		return s
	}
	return s[:first+1] + strings.ReplaceAll(s[first+1:], ".", "")
}

func parsePlain(s string) (decimal.Decimal, bool) {
	if !plainAmount.MatchString(s) || strings.Trim(s, ".") == "" {
		return decimal.Decimal{}, false
	}
	s = strings.TrimSuffix(s, ".")
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil || d.IsNegative() {
		return decimal.Decimal{}, false
	}
	return d, true
}

func onlyDigitsAnd(s, sep string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) && !strings.ContainsRune(sep, r) {
			return false
		}
	}
	return s != ""
}
