package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"subscription-cost/decision/input"
	"subscription-cost/decision/table"
	"subscription-cost/pkg/platform"
)

// Scraper collects a scrape set: one price table per help-center country.
type Scraper struct {
	locales  *LocalizationClient
	records  RecordIDSource
	articles *ArticleClient
	tables   *table.Extractor
	logger   zerolog.Logger
}

// NewScraper wires the collaborators against baseURL. The record source is
// usually a BrowserRecordSource.
func NewScraper(baseURL string, records RecordIDSource) *Scraper {
	h := platform.NewHTTPClient(2, 30*time.Second)
	return &Scraper{
		locales:  NewLocalizationClient(baseURL, h),
		records:  records,
		articles: NewArticleClient(baseURL, h),
		tables:   table.NewExtractor(),
		logger:   zerolog.Nop(),
	}
}

// WithLogger sets the logger.
func (s *Scraper) WithLogger(l zerolog.Logger) *Scraper {
	s.logger = l
	s.tables.WithLogger(l)
	s.locales.http.WithLogger(l)
	return s
}

// Run scrapes every country. A failing country is logged and left out; only
// a failed country listing or a cancelled context fails the run.
func (s *Scraper) Run(ctx context.Context) (input.ScrapeSet, error) {
	countries, err := s.locales.Countries(ctx)
	if err != nil {
		return nil, err
	}

	set := make(input.ScrapeSet, 0, len(countries))
	failed := 0
	for _, c := range countries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := s.scrapeCountry(ctx, c)
		if err != nil {
			failed++
			s.logger.Warn().Str("country", c.Code).Err(err).Msg("country scrape failed")
			continue
		}
		set = append(set, input.Country{Code: c.Code, Plans: rows})
	}

	s.logger.Info().Int("countries", len(set)).Int("failed", failed).Msg("scrape complete")
	return set, nil
}

func (s *Scraper) scrapeCountry(ctx context.Context, c CountryLocales) ([]input.PlanRow, error) {
	locale, ok := PickLocale(c.Locales)
	if !ok {
		return nil, fmt.Errorf("no locales")
	}
	recordID, err := s.records.RecordID(ctx, locale.LocaleCode)
	if err != nil {
		return nil, err
	}
	article, err := s.articles.Load(ctx, recordID, locale.MasterLabel, c.Code, locale.LocaleCode)
	if err != nil {
		return nil, err
	}

	raw := s.tables.Extract(article.Fragment)
	rows := make([]input.PlanRow, len(raw))
	for i, r := range raw {
		rows[i] = input.PlanRow{Plan: r.PlanLabel, Price: r.PriceText, LastPublishedDate: article.LastPublishedDate}
	}
	s.logger.Info().
		Str("country", c.Code).
		Str("locale", locale.LocaleCode).
		Int("plans", len(rows)).
		Msg("country scraped")
	return rows, nil
}
