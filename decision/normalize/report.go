package normalize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"subscription-cost/decision/price"
	"subscription-cost/decision/ranking"
	"subscription-cost/decision/rates"
)

// Summary is the ranked block emitted ahead of the country reports.
type Summary struct {
	Key         string
	Description string
	GeneratedAt time.Time
	Entries     []ranking.Entry
}

// Report is the run output: the summary, then every country in ranked order.
type Report struct {
	Summary   Summary
	Countries []CountryReport
}

func summaryDescription(limit int, keyword string) string {
	return fmt.Sprintf("Top %d countries with the cheapest %s plan, by monthly price in %s", limit, keyword, rates.ReportingCurrency)
}

// Money renders an amount as "<CUR> <amount>". Original amounts keep their
// stated precision; converted amounts are always two places.
func Money(code string, amount decimal.Decimal, fixed bool) string {
	s := amount.StringFixed(max(0, -amount.Exponent()))
	if fixed {
		s = amount.StringFixed(2)
	}
	if code == "" || code == UnknownCurrency {
		return s
	}
	return code + " " + s
}

type summaryJSON struct {
	Description string      `json:"description"`
	GeneratedAt string      `json:"generated_at"`
	Data        []entryJSON `json:"data"`
}

type entryJSON struct {
	Rank          int    `json:"rank"`
	CountryCode   string `json:"country_code"`
	CountryName   string `json:"country_name"`
	PlanName      string `json:"plan_name"`
	OriginalPrice string `json:"original_price"`
	Currency      string `json:"currency"`
	PriceCNY      string `json:"price_cny"`
}

type countryJSON struct {
	DisplayName string     `json:"display_name"`
	Plans       []planJSON `json:"plans"`
}

type planJSON struct {
	PlanName             string  `json:"plan_name"`
	CurrencyCode         string  `json:"currency_code"`
	MonthlyPriceOriginal *string `json:"monthly_price_original"`
	MonthlyPriceCNY      *string `json:"monthly_price_cny"`
	AnnualPriceOriginal  *string `json:"annual_price_original"`
	AnnualPriceCNY       *string `json:"annual_price_cny"`
	LastPublishedDate    *string `json:"last_published_date,omitempty"`
}

func originalString(p *price.ResolvedPrice) *string {
	if p == nil {
		return nil
	}
	s := Money(p.Currency, p.Amount, false)
	return &s
}

func convertedString(d *decimal.Decimal) *string {
	if d == nil {
		return nil
	}
	s := Money(rates.ReportingCurrency, *d, true)
	return &s
}

// MarshalJSON writes the summary key first and the countries in ranked order.
// Absent prices are null, never zero.
func (r Report) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	summary := summaryJSON{
		Description: r.Summary.Description,
		GeneratedAt: r.Summary.GeneratedAt.Format(time.RFC3339),
		Data:        make([]entryJSON, 0, len(r.Summary.Entries)),
	}
	for _, e := range r.Summary.Entries {
		summary.Data = append(summary.Data, entryJSON{
			Rank:          e.Rank,
			CountryCode:   e.CountryCode,
			CountryName:   e.CountryName,
			PlanName:      e.PlanName,
			OriginalPrice: Money(e.Currency, e.OriginalPrice, false),
			Currency:      e.Currency,
			PriceCNY:      Money(rates.ReportingCurrency, e.Converted, true),
		})
	}
	if err := writeMember(&buf, r.Summary.Key, summary); err != nil {
		return nil, err
	}

	for _, c := range r.Countries {
		cj := countryJSON{DisplayName: c.DisplayName, Plans: make([]planJSON, 0, len(c.Plans))}
		for _, p := range c.Plans {
			cj.Plans = append(cj.Plans, planJSON{
				PlanName:             p.PlanName,
				CurrencyCode:         p.Currency,
				MonthlyPriceOriginal: originalString(p.Monthly),
				MonthlyPriceCNY:      convertedString(p.MonthlyCNY),
				AnnualPriceOriginal:  originalString(p.Annual),
				AnnualPriceCNY:       convertedString(p.AnnualCNY),
				LastPublishedDate:    p.LastPublishedDate,
			})
		}
		buf.WriteByte(',')
		if err := writeMember(&buf, c.Code, cj); err != nil {
			return nil, err
		}
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writeMember(buf *bytes.Buffer, key string, v any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(val)
	return nil
}

// Country returns the report for code.
func (r Report) Country(code string) (CountryReport, bool) {
	for _, c := range r.Countries {
		if c.Code == code {
			return c, true
		}
	}
	return CountryReport{}, false
}
