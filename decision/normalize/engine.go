// Package normalize runs the price normalization pipeline: scraped plan rows in,
// a ranked, currency-converted report out.
//
// Every step is best effort. Rows, plans and countries that cannot be processed
// are skipped or left with absent fields, and a diagnostic records why.
package normalize

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"subscription-cost/decision/currency"
	"subscription-cost/decision/input"
	"subscription-cost/decision/price"
	"subscription-cost/decision/ranking"
	"subscription-cost/decision/rates"
	"subscription-cost/decision/reference"
	perrors "subscription-cost/pkg/errors"
)

// UnknownCurrency marks a plan whose currency could not be attributed.
const UnknownCurrency = "unknown"

// Engine is the normalization pipeline.
type Engine struct {
	ref       *reference.Data
	extractor *price.Extractor
	lang      string
	workers   int
	limit     int
	now       func() time.Time
	logger    zerolog.Logger
}

// NewEngine creates an engine over the given reference tables. A nil ref uses the embedded defaults.
func NewEngine(ref *reference.Data) *Engine {
	if ref == nil {
		ref = reference.Default()
	}
	return &Engine{
		ref:       ref,
		extractor: price.NewExtractor(currency.NewResolver()),
		lang:      "en",
		workers:   1,
		limit:     ranking.DefaultLimit,
		now:       time.Now,
		logger:    zerolog.Nop(),
	}
}

// WithLogger sets the logger for the engine and its extractors.
func (e *Engine) WithLogger(l zerolog.Logger) *Engine {
	e.logger = l
	e.extractor = price.NewExtractor(currency.NewResolver().WithLogger(l)).WithLogger(l)
	return e
}

// WithLanguage selects display names: "en" or "cn".
func (e *Engine) WithLanguage(lang string) *Engine {
	e.lang = lang
	return e
}

// WithWorkers processes up to n countries concurrently.
func (e *Engine) WithWorkers(n int) *Engine {
	if n > 0 {
		e.workers = n
	}
	return e
}

// WithLimit sets the ranked summary size.
func (e *Engine) WithLimit(n int) *Engine {
	if n > 0 {
		e.limit = n
	}
	return e
}

// WithClock overrides the report timestamp source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Reference returns the engine's reference tables.
func (e *Engine) Reference() *reference.Data {
	return e.ref
}

// Input is one pipeline run's materialized input.
type Input struct {
	Countries input.ScrapeSet
	Rates     rates.Table
	Keyword   string
}

// PlanRecord is one normalized plan.
type PlanRecord struct {
	PlanName          string
	Currency          string
	Monthly           *price.ResolvedPrice
	Annual            *price.ResolvedPrice
	MonthlyCNY        *decimal.Decimal
	AnnualCNY         *decimal.Decimal
	LastPublishedDate *string
}

// Converted reports whether at least one period was converted.
func (p PlanRecord) Converted() bool {
	return p.MonthlyCNY != nil || p.AnnualCNY != nil
}

// CountryReport is one country's normalized plans in source order.
type CountryReport struct {
	Code        string
	DisplayName string
	Plans       []PlanRecord
}

// Stats summarizes a run.
type Stats struct {
	CountriesProcessed int `json:"countries_processed"`
	CountriesReported  int `json:"countries_reported"`
	CountriesSkipped   int `json:"countries_skipped"`
	PlansProcessed     int `json:"plans_processed"`
	PlansConverted     int `json:"plans_converted"`
	PlansUnknown       int `json:"plans_unknown_currency"`
	Ranked             int `json:"ranked"`
}

// Result is the output of Run.
type Result struct {
	Report      *Report
	Diagnostics []*perrors.Diagnostic
	Stats       Stats
}

type countryOutcome struct {
	report *CountryReport
	diags  []*perrors.Diagnostic
}

// Run normalizes every country, then ranks. Country failures never abort the
// run; only context cancellation does.
func (e *Engine) Run(ctx context.Context, in Input) (*Result, error) {
	keyword := in.Keyword
	if keyword == "" {
		keyword = ranking.DefaultKeyword
	}
	converter := rates.NewConverter(in.Rates, rates.ReportingCurrency)

	outcomes := make([]countryOutcome, len(in.Countries))
	if err := e.dispatch(ctx, in.Countries, func(i int, c input.Country) {
		report, diags := e.ProcessCountry(c, converter)
		outcomes[i] = countryOutcome{report: report, diags: diags}
	}); err != nil {
		return nil, err
	}

	result := &Result{Diagnostics: make([]*perrors.Diagnostic, 0)}
	var reports []CountryReport
	for _, o := range outcomes {
		result.Stats.CountriesProcessed++
		result.Diagnostics = append(result.Diagnostics, o.diags...)
		if o.report == nil {
			result.Stats.CountriesSkipped++
			continue
		}
		result.Stats.CountriesReported++
		for _, p := range o.report.Plans {
			result.Stats.PlansProcessed++
			if p.Converted() {
				result.Stats.PlansConverted++
			}
			if p.Currency == UnknownCurrency {
				result.Stats.PlansUnknown++
			}
		}
		reports = append(reports, *o.report)
	}

	agg := ranking.NewAggregator(keyword).WithLimit(e.limit)
	ranked := agg.Rank(rankingInput(reports))
	result.Stats.Ranked = len(ranked.Summary)

	report := &Report{
		Summary: Summary{
			Key:         agg.SummaryKey(),
			Description: summaryDescription(e.limit, keyword),
			GeneratedAt: e.now().UTC(),
			Entries:     ranked.Summary,
		},
		Countries: make([]CountryReport, 0, len(reports)),
	}
	for _, i := range ranked.Order {
		report.Countries = append(report.Countries, reports[i])
	}
	result.Report = report

	e.logger.Info().
		Int("countries", result.Stats.CountriesReported).
		Int("skipped", result.Stats.CountriesSkipped).
		Int("plans", result.Stats.PlansProcessed).
		Int("converted", result.Stats.PlansConverted).
		Int("ranked", result.Stats.Ranked).
		Msg("normalization complete")
	return result, nil
}

// dispatch calls fn for every country, with at most e.workers in flight.
func (e *Engine) dispatch(ctx context.Context, countries input.ScrapeSet, fn func(int, input.Country)) error {
	if e.workers <= 1 {
		for i, c := range countries {
			if err := ctx.Err(); err != nil {
				return err
			}
			fn(i, c)
		}
		return nil
	}

	sem := make(chan struct{}, e.workers)
	var wg sync.WaitGroup
	for i, c := range countries {
		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(i int, c input.Country) {
			defer wg.Done()
			defer func() { <-sem }()
			fn(i, c)
		}(i, c)
	}
	wg.Wait()
	return ctx.Err()
}

// ProcessCountry normalizes one country's plans. A nil report means the
// country is omitted: no profile, or no processable plans.
func (e *Engine) ProcessCountry(c input.Country, converter *rates.Converter) (*CountryReport, []*perrors.Diagnostic) {
	var diags []*perrors.Diagnostic
	log := e.logger.With().Str("country", c.Code).Logger()

	profile, ok := e.ref.Country(c.Code)
	if !ok {
		log.Warn().Msg("no country profile, skipping")
		return nil, append(diags, perrors.NewCountryUnknown(c.Code))
	}

	report := &CountryReport{
		Code:        profile.Code,
		DisplayName: profile.DisplayName(e.lang),
		Plans:       make([]PlanRecord, 0, len(c.Plans)),
	}

	for _, row := range c.Plans {
		if strings.TrimSpace(row.Plan) == "" {
			diags = append(diags, &perrors.Diagnostic{
				Code:     perrors.ErrCodeRowSkipped,
				Message:  "Plan row without a name",
				Severity: perrors.SeverityInfo,
				Country:  profile.Code,
			})
			continue
		}
		record, planDiags := e.processPlan(profile, row, converter)
		diags = append(diags, planDiags...)
		report.Plans = append(report.Plans, record)
	}

	if len(report.Plans) == 0 {
		log.Warn().Msg("no processable plans, skipping")
		return nil, append(diags, perrors.NewCountryEmpty(profile.Code))
	}
	log.Debug().Int("plans", len(report.Plans)).Msg("country processed")
	return report, diags
}

func (e *Engine) processPlan(profile reference.CountryProfile, row input.PlanRow, converter *rates.Converter) (PlanRecord, []*perrors.Diagnostic) {
	var diags []*perrors.Diagnostic
	name := e.ref.StandardPlanName(row.Plan)

	record := PlanRecord{
		PlanName:          name,
		Currency:          UnknownCurrency,
		LastPublishedDate: row.LastPublishedDate,
	}

	text := strings.TrimSpace(row.Price)
	if text == "" {
		return record, append(diags, perrors.NewPriceTextEmpty(profile.Code, name))
	}

	set := e.extractor.Extract(text, profile)
	if set.Empty() {
		return record, append(diags, perrors.NewAmountUnparsed(profile.Code, name, text))
	}
	record.Monthly, record.Annual = set.Monthly, set.Annual

	code, ok := set.Currency()
	if !ok {
		return record, append(diags, perrors.NewCurrencyUnresolved(profile.Code, name))
	}
	record.Currency = code
	if set.Override {
		diags = append(diags, perrors.NewCurrencyOverride(profile.Code, name, profile.Currency, code))
	}

	missing := false
	if record.Monthly != nil {
		if v, ok := converter.Convert(record.Monthly.Amount, record.Monthly.Currency); ok {
			record.MonthlyCNY = &v
		} else {
			missing = true
		}
	}
	if record.Annual != nil {
		if v, ok := converter.Convert(record.Annual.Amount, record.Annual.Currency); ok {
			record.AnnualCNY = &v
		} else {
			missing = true
		}
	}
	if missing {
		diags = append(diags, perrors.NewRateMissing(profile.Code, name, code))
	}
	return record, diags
}

func rankingInput(reports []CountryReport) []ranking.Country {
	out := make([]ranking.Country, len(reports))
	for i, r := range reports {
		plans := make([]ranking.Plan, len(r.Plans))
		for j, p := range r.Plans {
			plans[j] = ranking.Plan{
				Name:             p.PlanName,
				Currency:         p.Currency,
				MonthlyConverted: p.MonthlyCNY,
			}
			if p.Monthly != nil {
				amount := p.Monthly.Amount
				plans[j].Monthly = &amount
				plans[j].Currency = p.Monthly.Currency
			}
		}
		out[i] = ranking.Country{Code: r.Code, Name: r.DisplayName, Plans: plans}
	}
	return out
}
