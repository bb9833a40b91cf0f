// Package errors provides severity-aware diagnostics for the normalization pipeline.
package errors

import "fmt"

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// MarshalText renders the severity by name in JSON output.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Diagnostic is a structured, non-fatal note raised while normalizing a run.
type Diagnostic struct {
	Code     string   `json:"code"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Country  string   `json:"country,omitempty"`
	Plan     string   `json:"plan,omitempty"`
}

func (d *Diagnostic) Error() string {
	switch {
	case d.Country != "" && d.Plan != "":
		return fmt.Sprintf("[%s] %s: %s (country: %s, plan: %s)", d.Severity, d.Code, d.Message, d.Country, d.Plan)
	case d.Country != "":
		return fmt.Sprintf("[%s] %s: %s (country: %s)", d.Severity, d.Code, d.Message, d.Country)
	default:
		return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Code, d.Message)
	}
}

// Error codes
const (
	ErrCodeTableSkipped       = "TABLE_SKIPPED"
	ErrCodeRowSkipped         = "ROW_SKIPPED"
	ErrCodeAmountUnparsed     = "AMOUNT_UNPARSED"
	ErrCodeCurrencyUnresolved = "CURRENCY_UNRESOLVED"
	ErrCodeCurrencyOverride   = "CURRENCY_OVERRIDE"
	ErrCodeRateMissing        = "RATE_MISSING"
	ErrCodeCountryUnknown     = "COUNTRY_UNKNOWN"
	ErrCodeCountryEmpty       = "COUNTRY_EMPTY"
	ErrCodePriceTextEmpty     = "PRICE_TEXT_EMPTY"
)

// NewCountryUnknown is raised for input countries with no reference profile.
func NewCountryUnknown(country string) *Diagnostic {
	return &Diagnostic{
		Code:     ErrCodeCountryUnknown,
		Message:  "No country profile configured",
		Severity: SeverityWarning,
		Country:  country,
	}
}

// NewCountryEmpty is raised when a country has no processable plans.
func NewCountryEmpty(country string) *Diagnostic {
	return &Diagnostic{
		Code:     ErrCodeCountryEmpty,
		Message:  "No processable plans, country omitted",
		Severity: SeverityWarning,
		Country:  country,
	}
}

// NewCurrencyUnresolved is raised when no currency can be attributed to a plan.
func NewCurrencyUnresolved(country, plan string) *Diagnostic {
	return &Diagnostic{
		Code:     ErrCodeCurrencyUnresolved,
		Message:  "Currency could not be determined, conversion skipped",
		Severity: SeverityWarning,
		Country:  country,
		Plan:     plan,
	}
}

// NewCurrencyOverride records an explicit code that differs from the country default.
func NewCurrencyOverride(country, plan, defaultCode, explicit string) *Diagnostic {
	return &Diagnostic{
		Code:     ErrCodeCurrencyOverride,
		Message:  fmt.Sprintf("Explicit code %s overrides default %s", explicit, defaultCode),
		Severity: SeverityInfo,
		Country:  country,
		Plan:     plan,
	}
}

// NewAmountUnparsed is raised when price text yields no amount at all.
func NewAmountUnparsed(country, plan, text string) *Diagnostic {
	return &Diagnostic{
		Code:     ErrCodeAmountUnparsed,
		Message:  fmt.Sprintf("No amount found in %q", text),
		Severity: SeverityWarning,
		Country:  country,
		Plan:     plan,
	}
}

// NewRateMissing is raised when a conversion cannot be performed.
func NewRateMissing(country, plan, currency string) *Diagnostic {
	return &Diagnostic{
		Code:     ErrCodeRateMissing,
		Message:  fmt.Sprintf("No usable exchange rate for %s", currency),
		Severity: SeverityWarning,
		Country:  country,
		Plan:     plan,
	}
}

// NewPriceTextEmpty is raised for plans recorded without any price text.
func NewPriceTextEmpty(country, plan string) *Diagnostic {
	return &Diagnostic{
		Code:     ErrCodePriceTextEmpty,
		Message:  "Empty price text",
		Severity: SeverityInfo,
		Country:  country,
		Plan:     plan,
	}
}

// NewTableSkipped is raised when a malformed table is dropped.
func NewTableSkipped(index int, reason string) *Diagnostic {
	return &Diagnostic{
		Code:     ErrCodeTableSkipped,
		Message:  fmt.Sprintf("Table %d skipped: %s", index, reason),
		Severity: SeverityWarning,
	}
}

// Count returns how many diagnostics are at or above the given severity.
func Count(diags []*Diagnostic, min Severity) int {
	n := 0
	for _, d := range diags {
		if d.Severity >= min {
			n++
		}
	}
	return n
}
