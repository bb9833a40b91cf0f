// subcost CLI - subscription price normalizer
//
// Usage:
//
//	subcost normalize --input disneyplus_prices.json --rates-file rates.json
//	subcost scrape --output disneyplus_prices.json
//	subcost serve --port 8080
//	subcost schedule --cron "0 0 */12 * * *"
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"subscription-cost/api"
	"subscription-cost/db/archive"
	"subscription-cost/decision/input"
	"subscription-cost/decision/policy"
	"subscription-cost/decision/ranking"
	"subscription-cost/internal/schedule"
	"subscription-cost/internal/scrape"
	"subscription-cost/pkg/platform"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := platform.LoadDotEnv(); err != nil {
		platform.LogFatal(log.Logger, "failed to load .env", err)
	}

	app := &cli.App{
		Name:    "subcost",
		Usage:   "Normalize subscription prices across countries into one currency",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"SUBCOST_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-pretty",
				Usage:   "Human-readable console logs",
				EnvVars: []string{"SUBCOST_LOG_PRETTY"},
			},
			&cli.StringFlag{
				Name:    "reference",
				Usage:   "YAML file merged over the built-in country and plan tables",
				EnvVars: []string{"SUBCOST_REFERENCE"},
			},
			&cli.StringSliceFlag{
				Name:  "api-key",
				Usage: "Exchange-rate API key, tried in order (falls back to API_KEYS, then API_KEY)",
			},
			&cli.StringFlag{
				Name:    "archive-dir",
				Value:   "archive",
				Usage:   "Directory for timestamped snapshots",
				EnvVars: []string{"SUBCOST_ARCHIVE_DIR"},
			},
			&cli.StringFlag{
				Name:    "sqlite-path",
				Value:   "subcost.db",
				Usage:   "SQLite database file",
				EnvVars: []string{"SUBCOST_SQLITE_PATH"},
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "PostgreSQL connection string",
				EnvVars: []string{"DATABASE_URL"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-host",
				Value:   "localhost",
				Usage:   "ClickHouse host",
				EnvVars: []string{"CLICKHOUSE_HOST"},
			},
			&cli.IntFlag{
				Name:    "clickhouse-port",
				Value:   9000,
				Usage:   "ClickHouse native port",
				EnvVars: []string{"CLICKHOUSE_PORT"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-database",
				Value:   "subscription_cost",
				Usage:   "ClickHouse database",
				EnvVars: []string{"CLICKHOUSE_DATABASE"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-user",
				Value:   "default",
				Usage:   "ClickHouse user",
				EnvVars: []string{"CLICKHOUSE_USER"},
			},
			&cli.StringFlag{
				Name:    "clickhouse-password",
				Value:   "",
				Usage:   "ClickHouse password",
				EnvVars: []string{"CLICKHOUSE_PASSWORD"},
			},
		},

		Commands: []*cli.Command{
			normalizeCommand(),
			scrapeCommand(),
			ratesCommand(),
			serveCommand(),
			scheduleCommand(),
			archiveCommand(),
			policyCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// pipelineFlags configure the normalization engine.
func pipelineFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "keyword",
			Aliases: []string{"k"},
			Value:   ranking.DefaultKeyword,
			Usage:   "Plan name substring ranked across countries",
		},
		&cli.StringFlag{
			Name:  "lang",
			Value: "en",
			Usage: "Country display names (en, cn)",
		},
		&cli.IntFlag{
			Name:  "workers",
			Value: 1,
			Usage: "Countries normalized concurrently",
		},
		&cli.IntFlag{
			Name:  "limit",
			Value: ranking.DefaultLimit,
			Usage: "Size of the ranked summary",
		},
		&cli.StringFlag{
			Name:  "rates-file",
			Usage: "Exchange-rate JSON file (USD base); fetched live when empty",
		},
		&cli.StringFlag{
			Name:  "policy-file",
			Usage: "YAML policy set replacing the built-in quality policies",
		},
		&cli.StringFlag{
			Name:  "archive",
			Value: archiveFS,
			Usage: "Where to archive the run (none, fs, sqlite, postgres, clickhouse)",
		},
	}
}

// scrapeFlags configure the storefront scraper.
func scrapeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "base-url",
			Value:   scrape.DefaultBaseURL,
			Usage:   "Help center base URL",
			EnvVars: []string{"SUBCOST_BASE_URL"},
		},
		&cli.StringFlag{
			Name:    "chrome-bin",
			Usage:   "Chrome binary for record-id lookup; downloaded when empty",
			EnvVars: []string{"CHROME_BIN"},
		},
	}
}

// =============================================================================
// NORMALIZE COMMAND
// =============================================================================

func normalizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "normalize",
		Usage: "Normalize a scrape set into a ranked CNY report",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "input",
				Aliases: []string{"i"},
				Value:   "disneyplus_prices.json",
				Usage:   "Scrape set JSON",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "disneyplus_prices_processed.json",
				Usage:   "Report JSON path",
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Value:   formatTable,
				Usage:   "Summary format (table, json, markdown)",
			},
			&cli.BoolFlag{
				Name:  "strict",
				Usage: "Exit with code 2 when a policy denies the run",
			},
		}, pipelineFlags()...),
		Action: runNormalize,
	}
}

func runNormalize(c *cli.Context) error {
	ctx := c.Context
	logger := loggerFrom(c)

	p, err := newPipeline(c, logger)
	if err != nil {
		return err
	}
	countries, err := input.ParseScrapeSetFile(c.String("input"))
	if err != nil {
		return fmt.Errorf("failed to load scrape set: %w", err)
	}
	table, err := loadRates(ctx, c, rateClient(c, logger))
	if err != nil {
		return err
	}

	out, err := p.run(ctx, countries, table)
	if err != nil {
		return err
	}
	if err := persist(ctx, c, c.String("archive"), out, c.String("output"), logger); err != nil {
		return err
	}
	if err := writeOutput(c.App.Writer, c.String("format"), out, c.String("output")); err != nil {
		return err
	}

	if c.Bool("strict") && out.Policy.Decision == policy.DecisionDeny {
		return cli.Exit("policy check failed", 2)
	}
	return nil
}

// =============================================================================
// SCRAPE COMMAND
// =============================================================================

func scrapeCommand() *cli.Command {
	return &cli.Command{
		Name:  "scrape",
		Usage: "Collect plan prices from the help center for every country",
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Value:   "disneyplus_prices.json",
				Usage:   "Scrape set JSON path (a timestamped copy goes to the archive)",
			},
		}, scrapeFlags()...),
		Action: func(c *cli.Context) error {
			logger := loggerFrom(c)
			set, err := scrapeOnce(c.Context, c, logger, c.String("output"))
			if err != nil {
				return err
			}
			fmt.Fprintf(c.App.Writer, "Scraped %d countries into %s\n", len(set), c.String("output"))
			return nil
		},
	}
}

// =============================================================================
// RATES COMMAND
// =============================================================================

func ratesCommand() *cli.Command {
	return &cli.Command{
		Name:  "rates",
		Usage: "Fetch the latest USD-based exchange rates",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Also write the rates to this file",
			},
		},
		Action: func(c *cli.Context) error {
			logger := loggerFrom(c)
			table, err := rateClient(c, logger).Latest(c.Context)
			if err != nil {
				return fmt.Errorf("failed to fetch exchange rates: %w", err)
			}
			data, err := encodeJSON(input.RateFeed{Base: table.Base, Rates: table.Floats()})
			if err != nil {
				return err
			}
			if err := writeFile(c.String("output"), data); err != nil {
				return err
			}
			_, err = c.App.Writer.Write(data)
			return err
		},
	}
}

// =============================================================================
// SERVE COMMAND (API SERVER)
// =============================================================================

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Start the normalization API server",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Value:   8080,
				Usage:   "API server port",
				EnvVars: []string{"SUBCOST_PORT"},
			},
			&cli.StringFlag{
				Name:    "cors-origins",
				Value:   "*",
				Usage:   "Comma-separated list of allowed CORS origins",
				EnvVars: []string{"SUBCOST_CORS_ORIGINS"},
			},
			&cli.Float64Flag{
				Name:    "rate-limit",
				Value:   5,
				Usage:   "Requests per second per client on /api",
				EnvVars: []string{"SUBCOST_RATE_LIMIT"},
			},
			&cli.StringSliceFlag{
				Name:    "server-key",
				Usage:   "Keys accepted in X-API-Key on /api; open when unset",
				EnvVars: []string{"SUBCOST_SERVER_KEYS"},
			},
			&cli.StringFlag{
				Name:  "store",
				Value: archiveNone,
				Usage: "Database whose health gates /ready (none, sqlite, postgres, clickhouse)",
			},
			&cli.StringFlag{
				Name:  "lang",
				Value: "en",
				Usage: "Country display names in reports (en, cn)",
			},
			&cli.IntFlag{
				Name:  "workers",
				Value: 1,
				Usage: "Countries normalized concurrently per request",
			},
			&cli.StringFlag{
				Name:  "policy-file",
				Usage: "YAML policy set replacing the built-in quality policies",
			},
		},
		Action: runServe,
	}
}

func runServe(c *cli.Context) error {
	logger := loggerFrom(c)
	p, err := newPipeline(c, logger)
	if err != nil {
		return err
	}

	// Parse CORS origins
	corsOrigins := strings.Split(c.String("cors-origins"), ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}

	cfg := api.DefaultConfig()
	cfg.Port = c.Int("port")
	cfg.CORSOrigins = corsOrigins
	cfg.RateLimit = c.Float64("rate-limit")
	cfg.APIKeys = c.StringSlice("server-key")

	server := api.NewServer(p.engine, rateClient(c, logger), cfg).
		WithPolicyEngine(p.policy).
		WithLogger(logger)

	if kind := c.String("store"); kind != archiveNone {
		store, err := openStore(c.Context, c, kind)
		if err != nil {
			return err
		}
		defer store.Close()
		server = server.WithStore(store)
	}

	return server.StartWithGracefulShutdown()
}

// =============================================================================
// SCHEDULE COMMAND
// =============================================================================

func scheduleCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "cron",
			Value:   schedule.DefaultSpec,
			Usage:   "Six-field cron spec (seconds first)",
			EnvVars: []string{"SUBCOST_CRON"},
		},
		&cli.BoolFlag{
			Name:  "run-now",
			Value: true,
			Usage: "Refresh once at startup",
		},
		&cli.BoolFlag{
			Name:  "once",
			Usage: "Refresh once and exit",
		},
		&cli.BoolFlag{
			Name:  "skip-scrape",
			Usage: "Normalize the existing scrape set instead of scraping",
		},
		&cli.StringFlag{
			Name:  "input",
			Value: "disneyplus_prices.json",
			Usage: "Scrape set JSON path",
		},
		&cli.StringFlag{
			Name:  "output",
			Value: "disneyplus_prices_processed.json",
			Usage: "Report JSON path",
		},
	}
	flags = append(flags, pipelineFlags()...)
	flags = append(flags, scrapeFlags()...)

	return &cli.Command{
		Name:   "schedule",
		Usage:  "Scrape, convert and archive on a cron schedule",
		Flags:  flags,
		Action: runSchedule,
	}
}

func runSchedule(c *cli.Context) error {
	logger := loggerFrom(c)
	p, err := newPipeline(c, logger)
	if err != nil {
		return err
	}
	source := rateClient(c, logger)

	job := func(ctx context.Context) error {
		var countries input.ScrapeSet
		var err error
		if c.Bool("skip-scrape") {
			countries, err = input.ParseScrapeSetFile(c.String("input"))
		} else {
			countries, err = scrapeOnce(ctx, c, logger, c.String("input"))
		}
		if err != nil {
			return fmt.Errorf("failed to collect prices: %w", err)
		}

		source.Invalidate()
		table, err := loadRates(ctx, c, source)
		if err != nil {
			return err
		}
		out, err := p.run(ctx, countries, table)
		if err != nil {
			return err
		}
		if err := persist(ctx, c, c.String("archive"), out, c.String("output"), logger); err != nil {
			return err
		}
		logger.Info().
			Str("decision", string(out.Policy.Decision)).
			Int("ranked", out.Result.Stats.Ranked).
			Msg("refresh published")
		return nil
	}

	sched, err := schedule.New(c.String("cron"), job)
	if err != nil {
		return err
	}
	sched = sched.WithLogger(logger)

	if c.Bool("once") {
		return sched.RunNow()
	}
	if err := sched.Start(c.Bool("run-now")); err != nil {
		return err
	}
	<-c.Context.Done()
	logger.Info().Msg("stopping scheduler")
	sched.Stop()
	return nil
}

// =============================================================================
// ARCHIVE COMMAND
// =============================================================================

func archiveCommand() *cli.Command {
	prefix := func() cli.Flag {
		return &cli.StringFlag{
			Name:  "prefix",
			Value: scrapePrefix,
			Usage: "Snapshot file prefix",
		}
	}
	return &cli.Command{
		Name:  "archive",
		Usage: "Inspect and maintain archived runs",
		Subcommands: []*cli.Command{
			{
				Name:  "stats",
				Usage: "Count snapshots per year",
				Flags: []cli.Flag{prefix()},
				Action: func(c *cli.Context) error {
					stats, err := archive.New(c.String("archive-dir"), c.String("prefix")).Stats()
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Total snapshots: %d\n", stats.TotalFiles)
					for _, y := range stats.Years {
						fmt.Fprintf(c.App.Writer, "  %s: %d files\n", y.Year, y.Count)
						for i, f := range y.Files {
							if i == 3 {
								fmt.Fprintf(c.App.Writer, "    ... %d more\n", len(y.Files)-3)
								break
							}
							fmt.Fprintf(c.App.Writer, "    %s\n", f.Path)
						}
					}
					return nil
				},
			},
			{
				Name:  "migrate",
				Usage: "Move root-level snapshots into year folders",
				Flags: []cli.Flag{prefix()},
				Action: func(c *cli.Context) error {
					logger := loggerFrom(c)
					moved, err := archive.New(c.String("archive-dir"), c.String("prefix")).WithLogger(logger).Migrate()
					if err != nil {
						return err
					}
					fmt.Fprintf(c.App.Writer, "Migrated %d snapshots\n", moved)
					return nil
				},
			},
			{
				Name:  "latest",
				Usage: "Show the most recent run in a database archive",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "store",
						Value: archiveSQLite,
						Usage: "Database archive (sqlite, postgres, clickhouse)",
					},
				},
				Action: runArchiveLatest,
			},
		},
	}
}

func runArchiveLatest(c *cli.Context) error {
	store, err := openStore(c.Context, c, c.String("store"))
	if err != nil {
		return err
	}
	defer store.Close()

	run, prices, err := store.LatestRun(c.Context)
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Fprintln(c.App.Writer, "No runs archived")
		return nil
	}

	fmt.Fprintf(c.App.Writer, "Run %s, keyword %q, generated %s\n",
		run.ID, run.Keyword, run.GeneratedAt.UTC().Format("2006-01-02 15:04:05"))
	tw := tabwriter.NewWriter(c.App.Writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tCOUNTRY\tPLAN\tPERIOD\tPRICE\tCNY")
	for _, p := range prices {
		rank, cny := "-", "-"
		if p.Rank > 0 {
			rank = fmt.Sprint(p.Rank)
		}
		if p.AmountCNY != nil {
			cny = p.AmountCNY.StringFixed(2)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s %s\t%s\n", rank, p.Country, p.Plan, p.Period, p.Currency, p.Amount, cny)
	}
	return tw.Flush()
}

// =============================================================================
// POLICY COMMAND
// =============================================================================

func policyCommand() *cli.Command {
	return &cli.Command{
		Name:  "policy",
		Usage: "Manage report quality policies",
		Subcommands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List the active policies",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "policy-file",
						Usage: "YAML policy set replacing the built-in policies",
					},
				},
				Action: func(c *cli.Context) error {
					pe := policy.NewEngine()
					if path := c.String("policy-file"); path != "" {
						if err := pe.LoadFile(path); err != nil {
							return err
						}
					}
					return writePolicies(c.App.Writer, pe.Policies())
				},
			},
		},
	}
}
