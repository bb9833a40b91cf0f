package rates

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func testTable() Table {
	return NewTable(BaseCurrency, map[string]decimal.Decimal{
		"CNY": d("7.2345"),
		"EUR": d("0.92"),
		"HKD": d("7.8"),
		"ZZZ": decimal.Zero,
	})
}

func TestConvert(t *testing.T) {
	tbl := testTable()

	tests := []struct {
		name   string
		amount string
		from   string
		to     string
		want   string
		ok     bool
	}{
		{"base to target", "13.99", "USD", "CNY", "101.21", true},
		{"via base", "81", "HKD", "CNY", "75.13", true},
		{"half up", "1", "USD", "EUR", "0.92", true},
		{"lowercase codes", "10", "eur", "cny", "78.64", true},
		{"missing source", "10", "GBP", "CNY", "", false},
		{"missing target", "10", "USD", "GBP", "", false},
		{"zero source rate", "10", "ZZZ", "CNY", "", false},
		{"zero target rate", "10", "USD", "ZZZ", "", false},
		{"zero amount", "0", "EUR", "CNY", "0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tbl.Convert(d(tt.amount), tt.from, tt.to)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && !got.Equal(d(tt.want)) {
				t.Errorf("Convert(%s %s -> %s) = %s, want %s", tt.amount, tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestConvertRoundsHalfUpOnce(t *testing.T) {
	tbl := NewTable(BaseCurrency, map[string]decimal.Decimal{"CNY": d("0.5")})
	// 0.25 × 0.5 = 0.125, banker's rounding would give 0.12
	got, ok := tbl.Convert(d("0.25"), "USD", "CNY")
	if !ok || !got.Equal(d("0.13")) {
		t.Errorf("got %s, want 0.13", got)
	}

	// Rounding the product first would give 1.01 ÷ 2 = 0.51.
	tbl = NewTable(BaseCurrency, map[string]decimal.Decimal{"CNY": d("3"), "EUR": d("2")})
	got, ok = tbl.Convert(d("0.335"), "EUR", "CNY") // 0.335 × 3 ÷ 2 = 0.5025
	if !ok || !got.Equal(d("0.5")) {
		t.Errorf("got %s, want 0.5", got)
	}
}

func TestUSDMultipliesTargetRate(t *testing.T) {
	tbl := testTable()
	for _, amount := range []string{"0.01", "4.99", "13.99", "139.99", "1000"} {
		got, _ := tbl.Convert(d(amount), "USD", "CNY")
		want := d(amount).Mul(d("7.2345")).Round(2)
		if !got.Equal(want) {
			t.Errorf("%s USD = %s CNY, want %s", amount, got, want)
		}
	}
}

func TestRoundTrip(t *testing.T) {
	tbl := testTable()
	inverse := NewTable("CNY", map[string]decimal.Decimal{"USD": decimal.NewFromInt(1).DivRound(d("7.2345"), 16)})

	for _, amount := range []string{"0.99", "13.99", "139.99", "2500.50"} {
		cny, ok := tbl.Convert(d(amount), "USD", "CNY")
		if !ok {
			t.Fatal("forward conversion failed")
		}
		back, ok := inverse.Convert(cny, "CNY", "USD")
		if !ok {
			t.Fatal("inverse conversion failed")
		}
		if diff := back.Sub(d(amount)).Abs(); diff.GreaterThan(d("0.01")) {
			t.Errorf("%s -> %s -> %s drifts by %s", amount, cny, back, diff)
		}
	}
}

func TestFromFloats(t *testing.T) {
	tbl, err := FromFloats(map[string]float64{"CNY": 7.1, "eur": 0.9})
	if err != nil {
		t.Fatalf("FromFloats: %v", err)
	}
	if r, ok := tbl.Rate("USD"); !ok || !r.Equal(decimal.NewFromInt(1)) {
		t.Errorf("USD rate = %s, %v; want injected 1", r, ok)
	}
	if _, ok := tbl.Rate("EUR"); !ok {
		t.Error("codes should be upper-cased")
	}

	for _, bad := range []map[string]float64{
		{},
		{"CNY": -1},
		{"CNY": math.NaN()},
		{"CNY": math.Inf(1)},
	} {
		if _, err := FromFloats(bad); err == nil {
			t.Errorf("FromFloats(%v) should fail", bad)
		}
	}
}

func TestConverter(t *testing.T) {
	c := NewConverter(testTable(), "cny")
	if c.Target() != "CNY" {
		t.Errorf("Target() = %s", c.Target())
	}
	if _, ok := c.Convert(d("5"), ""); ok {
		t.Error("unknown currency must not convert")
	}
	got, ok := c.Convert(d("5"), "USD")
	if !ok || !got.Equal(d("36.17")) {
		t.Errorf("Convert = %s, %v", got, ok)
	}
}
