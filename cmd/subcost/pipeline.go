package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"subscription-cost/db/archive"
	"subscription-cost/db/clickhouse"
	"subscription-cost/db/ingestion"
	"subscription-cost/db/sqlstore"
	"subscription-cost/decision/input"
	"subscription-cost/decision/normalize"
	"subscription-cost/decision/policy"
	"subscription-cost/decision/ranking"
	"subscription-cost/decision/rates"
	"subscription-cost/decision/reference"
	"subscription-cost/internal/fxrates"
	"subscription-cost/internal/scrape"
	"subscription-cost/pkg/platform"
)

// Snapshot file prefixes inside the archive directory.
const (
	scrapePrefix    = "disneyplus_prices"
	processedPrefix = "disneyplus_prices_processed"
)

// Archive backends accepted by --archive.
const (
	archiveNone       = "none"
	archiveFS         = "fs"
	archiveSQLite     = "sqlite"
	archivePostgres   = "postgres"
	archiveClickHouse = "clickhouse"
)

// runStore is a database archive backend.
type runStore interface {
	ingestion.Store
	LatestRun(ctx context.Context) (*ingestion.RunRecord, []ingestion.PriceRow, error)
	Ping(ctx context.Context) error
	Close() error
}

// pipeline is everything one normalize run needs.
type pipeline struct {
	logger  zerolog.Logger
	engine  *normalize.Engine
	policy  *policy.Engine
	keyword string
}

// runOutput is one finished run: the report, its policy decision and the
// rates it was converted with.
type runOutput struct {
	Result  *normalize.Result
	Policy  *policy.EvaluationResult
	Rates   rates.Table
	Keyword string
	Data    []byte
}

func loggerFrom(c *cli.Context) zerolog.Logger {
	return platform.InitLogger(c.String("log-level"), c.Bool("log-pretty"))
}

func referenceFrom(c *cli.Context) (*reference.Data, error) {
	path := c.String("reference")
	if path == "" {
		return reference.Default(), nil
	}
	ref, err := reference.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load reference data: %w", err)
	}
	return ref, nil
}

// newPipeline builds the engines from global and command flags.
func newPipeline(c *cli.Context, logger zerolog.Logger) (*pipeline, error) {
	ref, err := referenceFrom(c)
	if err != nil {
		return nil, err
	}
	engine := normalize.NewEngine(ref).
		WithLogger(logger).
		WithWorkers(c.Int("workers")).
		WithLimit(c.Int("limit"))
	if lang := c.String("lang"); lang != "" {
		engine = engine.WithLanguage(lang)
	}

	pe := policy.NewEngine()
	if path := c.String("policy-file"); path != "" {
		if err := pe.LoadFile(path); err != nil {
			return nil, err
		}
	}

	return &pipeline{logger: logger, engine: engine, policy: pe, keyword: c.String("keyword")}, nil
}

// run normalizes countries, evaluates the quality policies and encodes the report.
func (p *pipeline) run(ctx context.Context, countries input.ScrapeSet, table rates.Table) (*runOutput, error) {
	keyword := p.keyword
	if keyword == "" {
		keyword = ranking.DefaultKeyword
	}
	res, err := p.engine.Run(ctx, normalize.Input{Countries: countries, Rates: table, Keyword: keyword})
	if err != nil {
		return nil, fmt.Errorf("normalization failed: %w", err)
	}
	for _, d := range res.Diagnostics {
		p.logger.Debug().Str("code", d.Code).Str("country", d.Country).Str("plan", d.Plan).Msg(d.Message)
	}

	decision, err := p.policy.Evaluate(ctx, res)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}

	data, err := encodeJSON(res.Report)
	if err != nil {
		return nil, fmt.Errorf("failed to encode report: %w", err)
	}
	return &runOutput{Result: res, Policy: decision, Rates: table, Keyword: keyword, Data: data}, nil
}

func encodeJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// apiKeys returns --api-key values, then API_KEYS, then API_KEY.
func apiKeys(c *cli.Context) []string {
	if keys := c.StringSlice("api-key"); len(keys) > 0 {
		return keys
	}
	if keys := platform.GetEnvList("API_KEYS"); len(keys) > 0 {
		return keys
	}
	if key := strings.TrimSpace(platform.GetEnv("API_KEY", "")); key != "" {
		return []string{key}
	}
	return nil
}

func rateClient(c *cli.Context, logger zerolog.Logger) *fxrates.Client {
	return fxrates.NewClient(apiKeys(c)...).WithLogger(logger)
}

// loadRates reads --rates-file when given, otherwise fetches live rates.
func loadRates(ctx context.Context, c *cli.Context, source *fxrates.Client) (rates.Table, error) {
	if path := c.String("rates-file"); path != "" {
		feed, err := input.ParseRatesFile(path)
		if err != nil {
			return rates.Table{}, err
		}
		return rates.FromFloats(feed)
	}
	table, err := source.Latest(ctx)
	if err != nil {
		return rates.Table{}, fmt.Errorf("failed to fetch exchange rates: %w", err)
	}
	return table, nil
}

func clickhouseConfig(c *cli.Context) *clickhouse.Config {
	cfg := clickhouse.DefaultConfig()
	cfg.Host = c.String("clickhouse-host")
	cfg.Port = c.Int("clickhouse-port")
	cfg.Database = c.String("clickhouse-database")
	cfg.Username = c.String("clickhouse-user")
	cfg.Password = c.String("clickhouse-password")
	return cfg
}

// openStore connects to a database archive backend.
func openStore(ctx context.Context, c *cli.Context, kind string) (runStore, error) {
	switch kind {
	case archiveSQLite, archivePostgres:
		driver, dsn := sqlstore.DriverSQLite, c.String("sqlite-path")
		if kind == archivePostgres {
			driver, dsn = sqlstore.DriverPostgres, c.String("database-url")
			if dsn == "" {
				return nil, fmt.Errorf("--database-url is required for the postgres archive")
			}
		}
		store, err := sqlstore.Open(ctx, driver, dsn)
		if err != nil {
			return nil, err
		}
		return store, nil
	case archiveClickHouse:
		store, err := clickhouse.NewStore(clickhouseConfig(c))
		if err != nil {
			return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		if err := store.Migrate(ctx); err != nil {
			store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", kind)
	}
}

// persist writes the report to outputPath and archives the run in the chosen
// backend. The filesystem backend also keeps a timestamped copy.
func persist(ctx context.Context, c *cli.Context, kind string, out *runOutput, outputPath string, logger zerolog.Logger) error {
	switch kind {
	case archiveFS:
		arc := archive.New(c.String("archive-dir"), processedPrefix).WithLogger(logger)
		_, err := arc.Save(out.Data, outputPath)
		return err
	case "", archiveNone:
		return writeFile(outputPath, out.Data)
	}

	if err := writeFile(outputPath, out.Data); err != nil {
		return err
	}
	store, err := openStore(ctx, c, kind)
	if err != nil {
		return err
	}
	defer store.Close()

	snap, err := ingestion.BuildSnapshot(out.Result, out.Rates, out.Keyword)
	if err != nil {
		return err
	}
	res, err := ingestion.NewIngester(store).WithLogger(logger).Ingest(ctx, snap)
	if err != nil {
		return err
	}
	logger.Info().
		Str("backend", kind).
		Str("run_id", res.RunID.String()).
		Bool("duplicate", res.Duplicate).
		Int("prices", res.PriceCount).
		Msg("run archived")
	return nil
}

func writeFile(path string, data []byte) error {
	if path == "" {
		return nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// scrapeOnce collects the storefront prices and saves them as the scrape set.
func scrapeOnce(ctx context.Context, c *cli.Context, logger zerolog.Logger, outputPath string) (input.ScrapeSet, error) {
	base := c.String("base-url")
	records := scrape.NewBrowserRecordSource(base).WithBin(c.String("chrome-bin")).WithLogger(logger)
	defer records.Close()

	set, err := scrape.NewScraper(base, records).WithLogger(logger).Run(ctx)
	if err != nil {
		return nil, err
	}
	if len(set) == 0 {
		return nil, fmt.Errorf("scrape returned no countries")
	}

	arc := archive.New(c.String("archive-dir"), scrapePrefix).WithLogger(logger)
	if _, err := arc.SaveJSON(set, outputPath); err != nil {
		return set, err
	}
	return set, nil
}
