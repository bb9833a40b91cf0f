// Package units provides the billing period vocabulary used across the pipeline.
package units

import "strings"

// Period is a billing cadence.
type Period string

const (
	PeriodMonthly Period = "monthly"
	PeriodAnnual  Period = "annual"
)

// Localized words that label a monthly or annual price.
var (
	MonthlyWords = []string{"monthly", "mensual", "mensuel", "maandelijks", "monatlich", "month", "/month"}
	AnnualWords  = []string{"annual", "anual", "annuel", "jaarlijks", "jährlich", "year", "/year"}
)

// ParsePeriodWord maps a trailing period word ("month", "year") to a Period.
func ParsePeriodWord(word string) (Period, bool) {
	w := strings.TrimPrefix(strings.ToLower(strings.TrimSpace(word)), "/")
	for _, m := range MonthlyWords {
		if w == strings.TrimPrefix(m, "/") {
			return PeriodMonthly, true
		}
	}
	for _, a := range AnnualWords {
		if w == strings.TrimPrefix(a, "/") {
			return PeriodAnnual, true
		}
	}
	return "", false
}
