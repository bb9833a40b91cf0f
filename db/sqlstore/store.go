// Package sqlstore archives normalization runs in SQLite or PostgreSQL.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"subscription-cost/db/ingestion"
	"subscription-cost/pkg/units"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store implements ingestion.Store on database/sql.
type Store struct {
	db     *sql.DB
	driver string
}

// Open connects and creates the schema. For SQLite the DSN is a file path
// or ":memory:".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if driver != DriverSQLite && driver != DriverPostgres {
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one connection keeps ":memory:" databases shared and serializes writers
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", driver, err)
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		keyword TEXT NOT NULL,
		generated_at TIMESTAMP NOT NULL,
		hash TEXT NOT NULL,
		countries INTEGER NOT NULL,
		plans INTEGER NOT NULL,
		converted INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS runs_hash_idx ON runs (hash)`,
	`CREATE TABLE IF NOT EXISTS plan_prices (
		run_id TEXT NOT NULL REFERENCES runs (id),
		country TEXT NOT NULL,
		country_name TEXT NOT NULL,
		plan TEXT NOT NULL,
		period TEXT NOT NULL,
		currency TEXT NOT NULL,
		amount TEXT NOT NULL,
		amount_cny TEXT,
		rank INTEGER NOT NULL,
		last_published TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS plan_prices_run_idx ON plan_prices (run_id)`,
	`CREATE TABLE IF NOT EXISTS fx_rates (
		run_id TEXT NOT NULL REFERENCES runs (id),
		currency TEXT NOT NULL,
		rate TEXT NOT NULL
	)`,
}

func (s *Store) migrate(ctx context.Context) error {
	for _, ddl := range schema {
		if _, err := s.db.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// FindRunByHash finds a run by its content hash.
func (s *Store) FindRunByHash(ctx context.Context, hash string) (uuid.UUID, bool, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT id FROM runs WHERE hash = ? LIMIT 1`), hash).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to find run: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("corrupt run id %q: %w", raw, err)
	}
	return id, true, nil
}

// SaveSnapshot writes the run, its prices and its rates in one transaction.
func (s *Store) SaveSnapshot(ctx context.Context, snap *ingestion.Snapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	run := snap.Run
	if _, err := tx.ExecContext(ctx, s.rebind(`
		INSERT INTO runs (id, keyword, generated_at, hash, countries, plans, converted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
		run.ID.String(), run.Keyword, run.GeneratedAt.UTC(), run.Hash,
		run.Countries, run.Plans, run.Converted, time.Now().UTC(),
	); err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	priceStmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO plan_prices (run_id, country, country_name, plan, period, currency, amount, amount_cny, rank, last_published)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare price insert: %w", err)
	}
	defer priceStmt.Close()
	for _, p := range snap.Prices {
		var cny sql.NullString
		if p.AmountCNY != nil {
			cny = sql.NullString{String: p.AmountCNY.StringFixed(2), Valid: true}
		}
		var published sql.NullString
		if p.LastPublished != nil {
			published = sql.NullString{String: *p.LastPublished, Valid: true}
		}
		if _, err := priceStmt.ExecContext(ctx,
			run.ID.String(), p.Country, p.CountryName, p.Plan, string(p.Period), p.Currency,
			p.Amount.String(), cny, p.Rank, published,
		); err != nil {
			return fmt.Errorf("failed to insert price for %s/%s: %w", p.Country, p.Plan, err)
		}
	}

	rateStmt, err := tx.PrepareContext(ctx, s.rebind(`INSERT INTO fx_rates (run_id, currency, rate) VALUES (?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("failed to prepare rate insert: %w", err)
	}
	defer rateStmt.Close()
	for _, r := range snap.Rates {
		if _, err := rateStmt.ExecContext(ctx, run.ID.String(), r.Currency, r.Rate.String()); err != nil {
			return fmt.Errorf("failed to insert rate %s: %w", r.Currency, err)
		}
	}

	return tx.Commit()
}

// LatestRun returns the most recent run and its prices, or nil when the archive is empty.
func (s *Store) LatestRun(ctx context.Context) (*ingestion.RunRecord, []ingestion.PriceRow, error) {
	var run ingestion.RunRecord
	var rawID string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, keyword, generated_at, hash, countries, plans, converted, created_at
		FROM runs ORDER BY generated_at DESC, created_at DESC LIMIT 1`,
	).Scan(&rawID, &run.Keyword, &run.GeneratedAt, &run.Hash, &run.Countries, &run.Plans, &run.Converted, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get latest run: %w", err)
	}
	if run.ID, err = uuid.Parse(rawID); err != nil {
		return nil, nil, fmt.Errorf("corrupt run id %q: %w", rawID, err)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT country, country_name, plan, period, currency, amount, amount_cny, rank, last_published
		FROM plan_prices WHERE run_id = ?
		ORDER BY country, plan, period`), rawID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var prices []ingestion.PriceRow
	for rows.Next() {
		p := ingestion.PriceRow{RunID: run.ID}
		var period, amount string
		var cny, published sql.NullString
		if err := rows.Scan(&p.Country, &p.CountryName, &p.Plan, &period, &p.Currency, &amount, &cny, &p.Rank, &published); err != nil {
			return nil, nil, fmt.Errorf("failed to scan price: %w", err)
		}
		p.Period = units.Period(period)
		if p.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, nil, fmt.Errorf("corrupt amount %q: %w", amount, err)
		}
		if cny.Valid {
			v, err := decimal.NewFromString(cny.String)
			if err != nil {
				return nil, nil, fmt.Errorf("corrupt converted amount %q: %w", cny.String, err)
			}
			p.AmountCNY = &v
		}
		if published.Valid {
			v := published.String
			p.LastPublished = &v
		}
		prices = append(prices, p)
	}
	return &run, prices, rows.Err()
}

// CountRuns returns the number of archived runs.
func (s *Store) CountRuns(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return n, nil
}
