package util

import "testing"

func TestNormalizeSpaces(t *testing.T) {
	cases := map[string]string{
		"":                         "",
		"  a  ":                    "a",
		"Monthly:\n  $13.99\t/mo": "Monthly: $13.99 /mo",
	}
	for in, want := range cases {
		if got := NormalizeSpaces(in); got != want {
			t.Errorf("NormalizeSpaces(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestTitleCase(t *testing.T) {
	cases := map[string]string{
		"disney+ premium":      "Disney+ Premium",
		"EXTRA MEMBER":         "Extra Member",
		"plan 2go":             "Plan 2Go",
		"o'neil":               "O'Neil",
		"estándar con anuncios": "Estándar Con Anuncios",
	}
	for in, want := range cases {
		if got := TitleCase(in); got != want {
			t.Errorf("TitleCase(%q) = %q, want %q", in, got, want)
		}
	}
}
