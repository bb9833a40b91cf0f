// Package table pulls plan/price rows out of help-center HTML tables.
package table

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	perrors "subscription-cost/pkg/errors"
	"subscription-cost/pkg/util"
)

// Column positions of the plan label and its price text.
const (
	labelColumn = 0
	priceColumn = 2
	minCells    = 3
)

// RawPlanRow is one unprocessed table row.
type RawPlanRow struct {
	PlanLabel string `json:"plan"`
	PriceText string `json:"price"`
}

// Extractor reads every table in a fragment, skipping the header row of each.
type Extractor struct {
	logger zerolog.Logger
}

// NewExtractor creates a table extractor.
func NewExtractor() *Extractor {
	return &Extractor{logger: zerolog.Nop()}
}

// WithLogger sets the logger.
func (e *Extractor) WithLogger(l zerolog.Logger) *Extractor {
	e.logger = l
	return e
}

// Extract returns the plan rows of every table in fragment. It never fails:
// unusable rows and tables are skipped.
func (e *Extractor) Extract(fragment string) []RawPlanRow {
	rows, _ := e.ExtractWithDiagnostics(fragment)
	return rows
}

// ExtractWithDiagnostics is Extract plus a note for every skipped table.
func (e *Extractor) ExtractWithDiagnostics(fragment string) ([]RawPlanRow, []*perrors.Diagnostic) {
	rows := []RawPlanRow{}
	var diags []*perrors.Diagnostic

	if strings.TrimSpace(fragment) == "" {
		return rows, nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		e.logger.Warn().Err(err).Msg("failed to parse HTML fragment")
		return rows, []*perrors.Diagnostic{perrors.NewTableSkipped(0, err.Error())}
	}

	doc.Find("table").Each(func(i int, tbl *goquery.Selection) {
		tableRows, err := e.extractTable(tbl)
		if err != nil {
			e.logger.Warn().Int("table", i).Err(err).Msg("skipping table")
			diags = append(diags, perrors.NewTableSkipped(i, err.Error()))
			return
		}
		rows = append(rows, tableRows...)
	})
	return rows, diags
}

// extractTable converts one table. A table whose column positions cannot be
// trusted (nested tables, spanned cells in a data row) is discarded whole, as
// is one that panics while walking its nodes.
func (e *Extractor) extractTable(tbl *goquery.Selection) (rows []RawPlanRow, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows, err = nil, fmt.Errorf("malformed table: %v", r)
		}
	}()

	if tbl.Find("table").Length() > 0 {
		return nil, fmt.Errorf("malformed table: nested table")
	}

	tbl.Find("tr").EachWithBreak(func(i int, tr *goquery.Selection) bool {
		if i == 0 {
			return true // header
		}
		cells := tr.Find("td")
		if spanned(cells) {
			err = fmt.Errorf("malformed table: row %d spans columns", i)
			return false
		}
		if cells.Length() < minCells {
			e.logger.Debug().Int("row", i).Int("cells", cells.Length()).Msg("row has too few cells")
			return true
		}
		label := strings.TrimSpace(cells.Eq(labelColumn).Text())
		price := cellText(cells.Eq(priceColumn))
		if label == "" || price == "" {
			return true
		}
		rows = append(rows, RawPlanRow{PlanLabel: label, PriceText: price})
		return true
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// spanned reports whether a cell up to the price column spans rows or columns.
func spanned(cells *goquery.Selection) bool {
	found := false
	cells.EachWithBreak(func(i int, td *goquery.Selection) bool {
		if i > priceColumn {
			return false
		}
		for _, attr := range []string{"colspan", "rowspan"} {
			if v, ok := td.Attr(attr); ok && strings.TrimSpace(v) != "1" {
				found = true
				return false
			}
		}
		return true
	})
	return found
}

// cellText joins the cell's text nodes with single spaces so that line breaks
// between "Monthly" and "Annual" lines survive as separators.
func cellText(sel *goquery.Selection) string {
	var parts []string
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			parts = append(parts, n.Data)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	for _, n := range sel.Nodes {
		walk(n)
	}
	return util.NormalizeSpaces(strings.Join(parts, " "))
}
