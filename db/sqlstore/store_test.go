package sqlstore

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"subscription-cost/db/ingestion"
	"subscription-cost/pkg/units"
)

var _ ingestion.Store = (*Store)(nil)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func snapshot(hash string, at time.Time) *ingestion.Snapshot {
	id := uuid.New()
	cny := decimal.RequireFromString("100.73")
	published := "2024-05-01"
	return &ingestion.Snapshot{
		Run: ingestion.RunRecord{ID: id, Keyword: "Premium", GeneratedAt: at, Hash: hash, Countries: 1, Plans: 2, Converted: 1},
		Prices: []ingestion.PriceRow{
			{RunID: id, Country: "US", CountryName: "United States", Plan: "Disney+ Premium", Period: units.PeriodMonthly,
				Currency: "USD", Amount: decimal.RequireFromString("13.99"), AmountCNY: &cny, Rank: 1, LastPublished: &published},
			{RunID: id, Country: "US", CountryName: "United States", Plan: "Extra", Period: units.PeriodMonthly,
				Currency: "XYZ", Amount: decimal.RequireFromString("5")},
		},
		Rates: []ingestion.RateRow{
			{RunID: id, Currency: "CNY", Rate: decimal.RequireFromString("7.2")},
			{RunID: id, Currency: "USD", Rate: decimal.NewFromInt(1)},
		},
	}
}

func TestSaveAndLatest(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)

	run, prices, err := s.LatestRun(ctx)
	if err != nil || run != nil || prices != nil {
		t.Fatalf("empty archive = %v, %v, %v", run, prices, err)
	}

	older := snapshot("h1", time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))
	newer := snapshot("h2", time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	for _, snap := range []*ingestion.Snapshot{older, newer} {
		if err := s.SaveSnapshot(ctx, snap); err != nil {
			t.Fatalf("SaveSnapshot: %v", err)
		}
	}

	run, prices, err = s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if run.ID != newer.Run.ID || run.Hash != "h2" || run.Plans != 2 {
		t.Errorf("run = %+v", run)
	}
	if len(prices) != 2 {
		t.Fatalf("prices = %+v", prices)
	}
	premium := prices[0]
	if premium.Plan != "Disney+ Premium" || !premium.Amount.Equal(decimal.RequireFromString("13.99")) || premium.Rank != 1 {
		t.Errorf("premium = %+v", premium)
	}
	if premium.AmountCNY == nil || premium.AmountCNY.StringFixed(2) != "100.73" {
		t.Errorf("converted = %v", premium.AmountCNY)
	}
	if premium.LastPublished == nil || *premium.LastPublished != "2024-05-01" {
		t.Errorf("published = %v", premium.LastPublished)
	}
	if prices[1].AmountCNY != nil || prices[1].LastPublished != nil {
		t.Errorf("absent values must stay absent: %+v", prices[1])
	}

	if n, err := s.CountRuns(ctx); err != nil || n != 2 {
		t.Errorf("CountRuns = %d, %v", n, err)
	}
}

func TestFindRunByHashAndIngest(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t)
	ing := ingestion.NewIngester(s)

	snap := snapshot("same", time.Now().UTC())
	if _, err := ing.Ingest(ctx, snap); err != nil {
		t.Fatal(err)
	}
	id, found, err := s.FindRunByHash(ctx, "same")
	if err != nil || !found || id != snap.Run.ID {
		t.Errorf("FindRunByHash = %v, %v, %v", id, found, err)
	}
	res, err := ing.Ingest(ctx, snapshot("same", time.Now().UTC()))
	if err != nil || !res.Duplicate {
		t.Errorf("second ingest = %+v, %v", res, err)
	}
	if n, _ := s.CountRuns(ctx); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
}

func TestRebind(t *testing.T) {
	pg := &Store{driver: DriverPostgres}
	if got := pg.rebind("SELECT ? , ?"); got != "SELECT $1 , $2" {
		t.Errorf("postgres rebind = %q", got)
	}
	lite := &Store{driver: DriverSQLite}
	if got := lite.rebind("SELECT ?"); got != "SELECT ?" {
		t.Errorf("sqlite rebind = %q", got)
	}
	if _, err := Open(context.Background(), "mysql", ""); err == nil {
		t.Error("unsupported driver must fail")
	}
}
