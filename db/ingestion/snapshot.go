// Package ingestion flattens finished runs into archive rows and feeds them to a store.
package ingestion

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"subscription-cost/decision/normalize"
	"subscription-cost/decision/price"
	"subscription-cost/decision/rates"
	"subscription-cost/pkg/units"
)

// RunRecord describes one archived normalization run
type RunRecord struct {
	ID          uuid.UUID
	Keyword     string
	GeneratedAt time.Time
	Hash        string
	Countries   int
	Plans       int
	Converted   int
	CreatedAt   time.Time
}

// PriceRow is one plan price for one billing period
type PriceRow struct {
	RunID         uuid.UUID
	Country       string
	CountryName   string
	Plan          string
	Period        units.Period
	Currency      string
	Amount        decimal.Decimal
	AmountCNY     *decimal.Decimal
	Rank          int // 0 when unranked
	LastPublished *string
}

// RateRow is one exchange rate used by the run
type RateRow struct {
	RunID    uuid.UUID
	Currency string
	Rate     decimal.Decimal
}

// Snapshot is everything archived for a run
type Snapshot struct {
	Run    RunRecord
	Prices []PriceRow
	Rates  []RateRow
}

// BuildSnapshot flattens a run. Plans with no extracted amount produce no
// price rows. The hash covers prices and rates only, so re-running identical
// inputs yields the same hash.
func BuildSnapshot(res *normalize.Result, table rates.Table, keyword string) (*Snapshot, error) {
	if res == nil || res.Report == nil {
		return nil, fmt.Errorf("no report to archive")
	}
	id := uuid.New()
	snap := &Snapshot{
		Run: RunRecord{
			ID:          id,
			Keyword:     keyword,
			GeneratedAt: res.Report.Summary.GeneratedAt,
			Countries:   res.Stats.CountriesReported,
			Plans:       res.Stats.PlansProcessed,
			Converted:   res.Stats.PlansConverted,
			CreatedAt:   time.Now().UTC(),
		},
	}

	ranks := make(map[string]int, len(res.Report.Summary.Entries))
	for _, e := range res.Report.Summary.Entries {
		ranks[e.CountryCode+"\x00"+e.PlanName] = e.Rank
	}

	for _, c := range res.Report.Countries {
		for _, p := range c.Plans {
			key := c.Code + "\x00" + p.PlanName
			rank := ranks[key]
			delete(ranks, key) // only the first plan with this name was ranked
			add := func(rp *price.ResolvedPrice, cny *decimal.Decimal, r int) {
				if rp == nil {
					return
				}
				snap.Prices = append(snap.Prices, PriceRow{
					RunID:         id,
					Country:       c.Code,
					CountryName:   c.DisplayName,
					Plan:          p.PlanName,
					Period:        rp.Period,
					Currency:      rp.Currency,
					Amount:        rp.Amount,
					AmountCNY:     cny,
					Rank:          r,
					LastPublished: p.LastPublishedDate,
				})
			}
			add(p.Monthly, p.MonthlyCNY, rank)
			add(p.Annual, p.AnnualCNY, 0)
		}
	}

	for _, code := range table.Codes() {
		r, _ := table.Rate(code)
		snap.Rates = append(snap.Rates, RateRow{RunID: id, Currency: code, Rate: r})
	}

	snap.Run.Hash = contentHash(snap)
	return snap, nil
}

func contentHash(s *Snapshot) string {
	lines := make([]string, 0, len(s.Prices)+len(s.Rates))
	for _, p := range s.Prices {
		cny := ""
		if p.AmountCNY != nil {
			cny = p.AmountCNY.String()
		}
		lines = append(lines, strings.Join([]string{"p", p.Country, p.Plan, string(p.Period), p.Currency, p.Amount.String(), cny}, "|"))
	}
	for _, r := range s.Rates {
		lines = append(lines, "r|"+r.Currency+"|"+r.Rate.String())
	}
	sort.Strings(lines)

	h := sha256.Sum256([]byte(s.Run.Keyword + "\n" + strings.Join(lines, "\n")))
	return hex.EncodeToString(h[:])
}
