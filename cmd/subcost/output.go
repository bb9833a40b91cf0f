package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"subscription-cost/decision/normalize"
	"subscription-cost/decision/policy"
	"subscription-cost/decision/rates"
	perrors "subscription-cost/pkg/errors"
)

// Output formats accepted by --format.
const (
	formatTable    = "table"
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

// JSONOutput is the machine-readable run summary.
type JSONOutput struct {
	Output       string             `json:"output,omitempty"`
	GeneratedAt  string             `json:"generated_at"`
	Stats        normalize.Stats    `json:"stats"`
	Top          []TopEntry         `json:"top"`
	Diagnostics  int                `json:"diagnostics"`
	Warnings     int                `json:"warnings"`
	PolicyResult string             `json:"policy_result,omitempty"`
	Violations   []policy.Violation `json:"violations,omitempty"`
}

// TopEntry is one ranked plan with rendered prices.
type TopEntry struct {
	Rank          int    `json:"rank"`
	CountryCode   string `json:"country_code"`
	CountryName   string `json:"country_name"`
	PlanName      string `json:"plan_name"`
	OriginalPrice string `json:"original_price"`
	PriceCNY      string `json:"price_cny"`
}

func topEntries(res *normalize.Result) []TopEntry {
	entries := make([]TopEntry, 0, len(res.Report.Summary.Entries))
	for _, e := range res.Report.Summary.Entries {
		entries = append(entries, TopEntry{
			Rank:          e.Rank,
			CountryCode:   e.CountryCode,
			CountryName:   e.CountryName,
			PlanName:      e.PlanName,
			OriginalPrice: normalize.Money(e.Currency, e.OriginalPrice, false),
			PriceCNY:      normalize.Money(rates.ReportingCurrency, e.Converted, true),
		})
	}
	return entries
}

func writeOutput(w io.Writer, format string, out *runOutput, outputPath string) error {
	switch format {
	case formatJSON:
		return outputJSON(w, out, outputPath)
	case formatTable, "":
		return outputTable(w, out, outputPath)
	case formatMarkdown:
		return outputMarkdown(w, out)
	default:
		return fmt.Errorf("unknown output format %q", format)
	}
}

func outputJSON(w io.Writer, out *runOutput, outputPath string) error {
	res := out.Result
	output := JSONOutput{
		Output:      outputPath,
		GeneratedAt: res.Report.Summary.GeneratedAt.UTC().Format(time.RFC3339),
		Stats:       res.Stats,
		Top:         topEntries(res),
		Diagnostics: len(res.Diagnostics),
		Warnings:    perrors.Count(res.Diagnostics, perrors.SeverityWarning),
	}
	if out.Policy != nil {
		output.PolicyResult = string(out.Policy.Decision)
		output.Violations = out.Policy.Violations
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

func outputTable(w io.Writer, out *runOutput, outputPath string) error {
	res := out.Result
	stats := res.Stats

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                   SUBSCRIPTION PRICE REPORT                  ║")
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
	fmt.Fprintf(w, "║  Countries:             %-37s ║\n", fmt.Sprintf("%d reported, %d skipped", stats.CountriesReported, stats.CountriesSkipped))
	fmt.Fprintf(w, "║  Plans:                 %-37s ║\n", fmt.Sprintf("%d processed, %d converted", stats.PlansProcessed, stats.PlansConverted))
	fmt.Fprintf(w, "║  Unknown currency:      %-37d ║\n", stats.PlansUnknown)
	fmt.Fprintf(w, "║  Diagnostics:           %-37s ║\n", fmt.Sprintf("%d (%d warnings)", len(res.Diagnostics), perrors.Count(res.Diagnostics, perrors.SeverityWarning)))
	if outputPath != "" {
		fmt.Fprintf(w, "║  Output:                %-37s ║\n", truncate(outputPath, 37))
	}
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")

	fmt.Fprintf(w, "║  %-59s ║\n", truncate(res.Report.Summary.Description, 59))
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")
	if len(res.Report.Summary.Entries) == 0 {
		fmt.Fprintf(w, "║  %-59s ║\n", "no country carries the plan")
	}
	for _, e := range topEntries(res) {
		fmt.Fprintf(w, "║  %2d. %-22s %-18s %13s ║\n",
			e.Rank, truncate(e.CountryName, 22), truncate(e.OriginalPrice, 18), e.PriceCNY)
	}
	fmt.Fprintln(w, "╠══════════════════════════════════════════════════════════════╣")

	if out.Policy != nil {
		var policyIcon string
		switch out.Policy.Decision {
		case policy.DecisionPass:
			policyIcon = "✅ PASS"
		case policy.DecisionWarn:
			policyIcon = "⚠️  WARN"
		case policy.DecisionDeny:
			policyIcon = "❌ DENY"
		}
		fmt.Fprintf(w, "║  Policy Result:         %-37s ║\n", policyIcon)

		for _, v := range out.Policy.Violations {
			fmt.Fprintf(w, "║  - %-58s ║\n", truncate(v.Message, 58))
		}
	}

	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
	return nil
}

func outputMarkdown(w io.Writer, out *runOutput) error {
	res := out.Result
	stats := res.Stats

	fmt.Fprintln(w, "## Subscription Price Report")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Metric | Value |")
	fmt.Fprintln(w, "|--------|-------|")
	fmt.Fprintf(w, "| **Countries reported** | %d |\n", stats.CountriesReported)
	fmt.Fprintf(w, "| **Countries skipped** | %d |\n", stats.CountriesSkipped)
	fmt.Fprintf(w, "| **Plans converted** | %d / %d |\n", stats.PlansConverted, stats.PlansProcessed)
	fmt.Fprintf(w, "| **Warnings** | %d |\n", perrors.Count(res.Diagnostics, perrors.SeverityWarning))
	if out.Policy != nil {
		fmt.Fprintf(w, "| **Policy Result** | %s |\n", out.Policy.Decision)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "### %s\n", res.Report.Summary.Description)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "| Rank | Country | Plan | Price | Price (CNY) |")
	fmt.Fprintln(w, "|------|---------|------|-------|-------------|")
	for _, e := range topEntries(res) {
		fmt.Fprintf(w, "| %d | %s | %s | %s | %s |\n", e.Rank, e.CountryName, e.PlanName, e.OriginalPrice, e.PriceCNY)
	}

	if out.Policy != nil && len(out.Policy.Violations) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "### Policy Violations")
		fmt.Fprintln(w)
		for _, v := range out.Policy.Violations {
			fmt.Fprintf(w, "- **%s** (%s): %s\n", v.PolicyName, v.Severity, v.Message)
		}
	}
	return nil
}

func writePolicies(w io.Writer, policies []policy.Policy) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSEVERITY\tTHRESHOLD\tENABLED")
	for _, p := range policies {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%g\t%t\n", p.ID, p.Type, p.Severity, p.Threshold, p.Enabled)
	}
	return tw.Flush()
}

// truncate shortens s to maxLen runes.
func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
