package number

import (
	"testing"

	"github.com/shopspring/decimal"
)

var (
	dotDecimal   = Format{Decimal: ".", Thousand: ","}
	commaDecimal = Format{Decimal: ",", Thousand: "."}
	noThousand   = Format{Decimal: ".", Thousand: ""}
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		f    Format
		want string
		ok   bool
	}{
		{"comma decimal", "1.234,56", commaDecimal, "1234.56", true},
		{"dot decimal", "1,234.56", dotDecimal, "1234.56", true},
		{"plain", "13.99", dotDecimal, "13.99", true},
		{"euro prefix", "€8,99", commaDecimal, "8.99", true},
		{"code suffix", "89.00 SEK", dotDecimal, "89", true},
		{"code prefix lower", "chf 9.90", dotDecimal, "9.9", true},
		{"dollar code", "HK$81", dotDecimal, "81", true},
		{"real", "R$ 43,90", commaDecimal, "43.9", true},
		{"zloty suffix", "28,99 zł", commaDecimal, "28.99", true},
		{"trailing sign", "139.99$", dotDecimal, "139.99", true},
		{"thousands only", "12.500", commaDecimal, "12500", true},
		{"large cop", "$ 38.900", commaDecimal, "38900", true},
		{"merge extra dots", "1.234.56", noThousand, "1.23456", true},
		{"trailing point", "15.", dotDecimal, "15", true},
		{"leading point", ",99", commaDecimal, "0.99", true},
		{"inner space", "1 299,00", commaDecimal, "1299", true},
		{"zero", "0.00", dotDecimal, "0", true},
		{"empty", "", dotDecimal, "", false},
		{"symbol only", "€", dotDecimal, "", false},
		{"negative", "-5.00", dotDecimal, "", false},
		{"exponent", "1e5", dotDecimal, "", false},
		{"words", "free trial", dotDecimal, "", false},
		{"separator only", ".", dotDecimal, "", false},
		{"stray comma without thousand", "1,234.56", noThousand, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.raw, tt.f)
			if ok != tt.ok {
				t.Fatalf("Parse(%q) ok = %v, want %v (got %s)", tt.raw, ok, tt.ok, got)
			}
			if !ok {
				return
			}
			if !got.Equal(decimal.RequireFromString(tt.want)) {
				t.Errorf("Parse(%q) = %s, want %s", tt.raw, got, tt.want)
			}
			if got.IsNegative() {
				t.Errorf("Parse(%q) returned negative %s", tt.raw, got)
			}
		})
	}
}

func TestParseIsExact(t *testing.T) {
	got := MustParse("0,10", commaDecimal).Add(MustParse("0,20", commaDecimal))
	if got.String() != "0.3" {
		t.Errorf("0.10 + 0.20 = %s, want exactly 0.3", got)
	}
}

func TestFormatValidate(t *testing.T) {
	if err := commaDecimal.Validate(); err != nil {
		t.Errorf("comma format rejected: %v", err)
	}
	if err := noThousand.Validate(); err != nil {
		t.Errorf("empty thousand rejected: %v", err)
	}
	if err := (Format{Decimal: "", Thousand: ","}).Validate(); err == nil {
		t.Error("empty decimal separator accepted")
	}
	if err := (Format{Decimal: ".", Thousand: " "}).Validate(); err == nil {
		t.Error("space thousand separator accepted")
	}
}
