package currency

import "testing"

func TestResolve(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name          string
		text          string
		defaultCode   string
		defaultSymbol string
		want          string
		rule          string
		override      bool
	}{
		{"default symbol", "Monthly: $13.99 / Annual: $139.99", "USD", "$", "USD", RuleDefaultSymbol, false},
		{"explicit override", "9.99 EUR per month", "USD", "$", "EUR", RuleExplicitCode, true},
		{"explicit default", "CHF 9.90", "CHF", "CHF", "CHF", RuleExplicitCode, false},
		{"unknown explicit ignored", "VAT incl. €8,99", "EUR", "€", "EUR", RuleDefaultSymbol, false},
		{"default symbol beats generic", "HK$81/month (about $10)", "HKD", "HK$", "HKD", RuleDefaultSymbol, false},
		{"specific symbol", "R$ 43,90", "USD", "€", "BRL", RuleSpecificSymbol, false},
		{"longest specific first", "ca$ 11.99", "EUR", "€", "CAD", RuleSpecificSymbol, false},
		{"first specific wins", "89 kr", "SEK", "SEK", "DKK", RuleSpecificSymbol, false},
		{"unicode word symbol", "28,99 zł", "EUR", "€", "PLN", RuleSpecificSymbol, false},
		{"generic dollar accepted", "$ 11.99", "CAD", "CA$", "CAD", RuleGenericDollar, false},
		{"generic dollar inconclusive", "$ 38.900", "COP", "COP", "COP", RuleCountryDefault, false},
		{"no evidence", "13,99", "EUR", "€", "EUR", RuleCountryDefault, false},
		{"lowercase code is a symbol", "price 5 usd", "EUR", "€", "USD", RuleSpecificSymbol, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Resolve(tt.text, tt.defaultCode, tt.defaultSymbol)
			if !ok {
				t.Fatalf("Resolve(%q) failed", tt.text)
			}
			if got.Code != tt.want || got.Rule != tt.rule || got.Override != tt.override {
				t.Errorf("Resolve(%q) = %+v, want code=%s rule=%s override=%v", tt.text, got, tt.want, tt.rule, tt.override)
			}
		})
	}
}

func TestResolveWithoutDefault(t *testing.T) {
	if got, ok := NewResolver().Resolve("USD 5", "", ""); ok {
		t.Errorf("expected absent without a default, got %+v", got)
	}
}

func TestDefaultSymbolAlwaysWins(t *testing.T) {
	r := NewResolver()
	texts := []string{"$5 and €4", "€4 or $5", "S$ 5 and €4"}
	for _, text := range texts {
		got, ok := r.Resolve(text, "EUR", "€")
		if !ok || got.Code != "EUR" {
			t.Errorf("Resolve(%q) = %+v, %v; want EUR", text, got, ok)
		}
	}
}

func TestRulesIndependently(t *testing.T) {
	in := newInput("NTD 270/month", "TWD", "NTD")

	if _, ok := ExplicitCode.Match(in); ok {
		t.Error("NTD is not an ISO code the table knows")
	}
	if code, ok := DefaultSymbol.Match(in); !ok || code != "TWD" {
		t.Errorf("DefaultSymbol = %s, %v", code, ok)
	}
	if code, ok := SpecificSymbol.Match(in); !ok || code != "TWD" {
		t.Errorf("SpecificSymbol = %s, %v", code, ok)
	}
	if _, ok := GenericDollar.Match(in); ok {
		t.Error("GenericDollar matched text without $")
	}

	eur := newInput("$ 9", "EUR", "€")
	if _, ok := GenericDollar.Match(eur); ok {
		t.Error("bare $ must be inconclusive under EUR")
	}
}

func TestReorderedRules(t *testing.T) {
	r := NewResolver().WithRules(SpecificSymbol, CountryDefault)
	got, ok := r.Resolve("USD 5 or 4 €", "EUR", "€")
	if !ok || got.Code != "USD" || got.Rule != RuleSpecificSymbol {
		t.Errorf("got %+v, want USD via specific-symbol", got)
	}
}

func TestContainsSymbol(t *testing.T) {
	tests := []struct {
		text, sym string
		want      bool
	}{
		{"89 kr", "kr", true},
		{"89kr/mnd", "kr", true},
		{"Kroner 89", "kr", false},
		{"HK$81", "hk$", true},
		{"HK$81", "$", true},
		{"Lei 29", "lei", true},
		{"ZŁ 5", "zł", true},
		{"złoty", "zł", false},
		{"", "$", false},
		{"abc", "", false},
	}
	for _, tt := range tests {
		if got := ContainsSymbol(tt.text, tt.sym); got != tt.want {
			t.Errorf("ContainsSymbol(%q, %q) = %v, want %v", tt.text, tt.sym, got, tt.want)
		}
	}
}

func TestSymbolCode(t *testing.T) {
	tests := []struct {
		sym, defCode, defSym string
		want                 string
		ok                   bool
	}{
		{"HK$", "HKD", "HK$", "HKD", true},
		{"$", "USD", "$", "USD", true},
		{"$", "HKD", "HK$", "", false},
		{"S$", "EUR", "€", "SGD", true},
		{"NZD", "EUR", "€", "NZD", true},
		{"XYZ", "EUR", "€", "", false},
	}
	for _, tt := range tests {
		got, ok := SymbolCode(tt.sym, tt.defCode, tt.defSym)
		if got != tt.want || ok != tt.ok {
			t.Errorf("SymbolCode(%q) = %s, %v; want %s, %v", tt.sym, got, ok, tt.want, tt.ok)
		}
	}
}
