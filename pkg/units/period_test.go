package units

import "testing"

func TestParsePeriodWord(t *testing.T) {
	tests := []struct {
		in   string
		want Period
		ok   bool
	}{
		{"month", PeriodMonthly, true},
		{"/month", PeriodMonthly, true},
		{"Year", PeriodAnnual, true},
		{"jährlich", PeriodAnnual, true},
		{"week", "", false},
	}
	for _, tt := range tests {
		got, ok := ParsePeriodWord(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("ParsePeriodWord(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
