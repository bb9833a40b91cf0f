package table

import (
	"strings"
	"testing"

	perrors "subscription-cost/pkg/errors"
)

func TestExtractHeaderAndTwoRows(t *testing.T) {
	fragment := `
<p>Prices</p>
<table>
  <tr><th>Plan</th><th>Details</th><th>Price</th></tr>
  <tr><td>  Disney+ Standard </td><td>HD</td><td>Monthly: $9.99<br/>Annual: $99.99</td></tr>
  <tr><td>Disney+ Premium</td><td>4K</td><td>
      $13.99/month
  </td></tr>
</table>`

	rows := NewExtractor().Extract(fragment)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2: %+v", len(rows), rows)
	}
	want := []RawPlanRow{
		{PlanLabel: "Disney+ Standard", PriceText: "Monthly: $9.99 Annual: $99.99"},
		{PlanLabel: "Disney+ Premium", PriceText: "$13.99/month"},
	}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("row %d = %+v, want %+v", i, rows[i], want[i])
		}
	}
}

func TestExtractSkipsShortAndEmptyRows(t *testing.T) {
	fragment := `
<table>
  <tr><td>Plan</td><td>x</td><td>Price</td></tr>
  <tr><td>Only two</td><td>cells</td></tr>
  <tr><td>   </td><td>x</td><td>$1</td></tr>
  <tr><td>No price</td><td>x</td><td>  </td></tr>
  <tr><td>Basic</td><td>x</td><td><span>€</span> <b>5,99</b></td></tr>
</table>`

	rows := NewExtractor().Extract(fragment)
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1: %+v", len(rows), rows)
	}
	if rows[0].PlanLabel != "Basic" || rows[0].PriceText != "€ 5,99" {
		t.Errorf("row = %+v", rows[0])
	}
}

func TestExtractMultipleTables(t *testing.T) {
	fragment := `
<table><tr><td>h</td><td>h</td><td>h</td></tr><tr><td>A</td><td>-</td><td>1</td></tr></table>
<table><tr><td>h</td><td>h</td><td>h</td></tr><tr><td>B</td><td>-</td><td>2</td></tr></table>`

	rows, diags := NewExtractor().ExtractWithDiagnostics(fragment)
	if len(diags) != 0 {
		t.Errorf("unexpected diagnostics: %v", diags)
	}
	if len(rows) != 2 || rows[0].PlanLabel != "A" || rows[1].PlanLabel != "B" {
		t.Errorf("rows = %+v", rows)
	}
}

func TestExtractNoTable(t *testing.T) {
	for _, fragment := range []string{"", "<p>No pricing table here</p>"} {
		rows := NewExtractor().Extract(fragment)
		if rows == nil || len(rows) != 0 {
			t.Errorf("Extract(%q) = %#v, want empty non-nil slice", fragment, rows)
		}
	}
}

func TestExtractSkipsMalformedTable(t *testing.T) {
	good := `<table><tr><th>Plan</th><th>-</th><th>Price</th></tr><tr><td>Premium</td><td>4K</td><td>$13.99/month</td></tr></table>`

	tests := []struct {
		name      string
		malformed string
		reason    string
	}{
		{
			name:      "spanned price cell",
			malformed: `<table><tr><th>Plan</th><th>-</th><th>Price</th></tr><tr><td>Basic</td><td colspan="2">$7.99/month</td><td>x</td></tr></table>`,
			reason:    "spans columns",
		},
		{
			name:      "rowspan label",
			malformed: `<table><tr><th>Plan</th><th>-</th><th>Price</th></tr><tr><td rowspan="2">Basic</td><td>HD</td><td>$7.99</td></tr><tr><td>4K</td><td>$9.99</td><td>x</td></tr></table>`,
			reason:    "spans columns",
		},
		{
			name:      "nested table",
			malformed: `<table><tr><th>Plan</th><th>-</th><th>Price</th></tr><tr><td>Basic</td><td>-</td><td><table><tr><td>a</td></tr></table></td></tr></table>`,
			reason:    "nested table",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, diags := NewExtractor().ExtractWithDiagnostics(tt.malformed + good)
			if len(rows) != 1 || rows[0] != (RawPlanRow{PlanLabel: "Premium", PriceText: "$13.99/month"}) {
				t.Errorf("rows = %+v, want only the well-formed table's row", rows)
			}
			if len(diags) != 1 {
				t.Fatalf("diagnostics = %v, want one", diags)
			}
			d := diags[0]
			if d.Code != perrors.ErrCodeTableSkipped || !strings.Contains(d.Message, "Table 0 skipped") || !strings.Contains(d.Message, tt.reason) {
				t.Errorf("diagnostic = %v", d)
			}
		})
	}
}
