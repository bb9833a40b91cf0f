package price

import (
	"testing"

	"github.com/shopspring/decimal"

	"subscription-cost/decision/reference"
)

func profile(t *testing.T, code string) reference.CountryProfile {
	t.Helper()
	p, ok := reference.Default().Country(code)
	if !ok {
		t.Fatalf("no profile for %s", code)
	}
	return p
}

func assertPrice(t *testing.T, label string, got *ResolvedPrice, amount, currency string) {
	t.Helper()
	if amount == "" {
		if got != nil {
			t.Errorf("%s: expected absent, got %+v", label, got)
		}
		return
	}
	if got == nil {
		t.Fatalf("%s: expected %s %s, got absent", label, currency, amount)
	}
	if !got.Amount.Equal(decimal.RequireFromString(amount)) || got.Currency != currency {
		t.Errorf("%s: got %s %s, want %s %s", label, got.Currency, got.Amount, currency, amount)
	}
}

var commaEUR = reference.CountryProfile{
	Code: "ES", Currency: "EUR", Symbol: "€", DecimalSeparator: ",", ThousandSeparator: ".",
}

func TestExtract(t *testing.T) {
	e := NewExtractor(nil)

	tests := []struct {
		name     string
		country  string
		custom   *reference.CountryProfile
		text     string
		monthly  string
		annual   string
		currency string
		strategy string
	}{
		{"labeled both periods", "US", nil, "Monthly: $13.99 / Annual: $139.99", "13.99", "139.99", "USD", StrategyLabeled},
		{"compact both periods", "HK", nil, "HK$81/month or HK$810/year", "81", "810", "HKD", StrategyCompact},
		{"labeled spanish comma", "ES", &commaEUR, "Mensual: 5,99 € Anual: 59,90 €", "5.99", "59.9", "EUR", StrategyLabeled},
		{"labeled last occurrence wins", "US", nil, "monthly $9.99 (was) monthly $7.99", "7.99", "", "USD", StrategyLabeled},
		{"labeled trailing code", "CH", nil, "Monthly: 9.90 CHF", "9.9", "", "CHF", StrategyLabeled},
		{"single amount fallback", "DE", nil, "9.99 €", "9.99", "", "EUR", StrategySingle},
		{"single bare number", "JP", nil, "990", "990", "", "JPY", StrategySingle},
		{"explicit override", "US", nil, "Monthly: 9.99 EUR", "9.99", "", "EUR", StrategyLabeled},
		{"brazil thousands", "BR", nil, "R$ 1.234,50/year", "", "1234.5", "BRL", StrategyCompact},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profile(t, tt.country)
			if tt.custom != nil {
				p = *tt.custom
			}
			got := e.Extract(tt.text, p)
			assertPrice(t, "monthly", got.Monthly, tt.monthly, tt.currency)
			assertPrice(t, "annual", got.Annual, tt.annual, tt.currency)
			if len(got.Strategies) == 0 || got.Strategies[0] != tt.strategy {
				t.Errorf("strategies = %v, want first %s", got.Strategies, tt.strategy)
			}
			code, ok := got.Currency()
			if !ok || code != tt.currency {
				t.Errorf("Currency() = %s, %v; want %s", code, ok, tt.currency)
			}
		})
	}
}

func TestExtractCompactFillsMissingPeriod(t *testing.T) {
	got := NewExtractor(nil).Extract("Monthly: $12.99, or $129.99/year", profile(t, "US"))
	assertPrice(t, "monthly", got.Monthly, "12.99", "USD")
	assertPrice(t, "annual", got.Annual, "129.99", "USD")
	if len(got.Strategies) != 2 || got.Strategies[1] != StrategyCompact {
		t.Errorf("strategies = %v, want labeled then compact", got.Strategies)
	}
}

func TestExtractCompactLocalSymbol(t *testing.T) {
	// Default symbol in text resolves the whole string to EUR, but the local S$ is specific.
	got := NewExtractor(nil).Extract("€ pricing: S$12.98/month", profile(t, "DE"))
	assertPrice(t, "monthly", got.Monthly, "12.98", "SGD")
	if !got.Override {
		t.Error("S$ under a EUR storefront should set Override")
	}
}

func TestExtractCompactMarker(t *testing.T) {
	e := NewExtractor(nil)

	tests := []struct {
		name     string
		country  string
		text     string
		monthly  string
		annual   string
		currency string
		override bool
	}{
		{"word tail is not a code", "US", "Open 9.99/month", "9.99", "", "USD", false},
		{"plural word tail is not a code", "US", "Premium for dollars 9.99/month", "9.99", "", "USD", false},
		{"standalone code", "US", "Plan CHF 9.90/month", "9.9", "", "CHF", true},
		{"local symbol differs from default", "US", "€9.99/month", "9.99", "", "EUR", true},
		{"default symbol", "HK", "HK$81/month", "81", "", "HKD", false},
		{"label reads across the compact pair", "US", "$9.99/month $99.99/year", "99.99", "99.99", "USD", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Extract(tt.text, profile(t, tt.country))
			assertPrice(t, "monthly", got.Monthly, tt.monthly, tt.currency)
			assertPrice(t, "annual", got.Annual, tt.annual, tt.currency)
			if got.Override != tt.override {
				t.Errorf("Override = %v, want %v", got.Override, tt.override)
			}
		})
	}
}

func TestExtractEmpty(t *testing.T) {
	e := NewExtractor(nil)
	for _, text := range []string{"", "   ", "Included with bundle", "..."} {
		got := e.Extract(text, profile(t, "US"))
		if !got.Empty() {
			t.Errorf("Extract(%q) = %+v, want empty", text, got)
		}
		if _, ok := got.Currency(); ok {
			t.Errorf("Extract(%q) should have no currency", text)
		}
	}
}
