package util

import (
	"strings"
	"unicode"
)

// NormalizeSpaces collapses every run of whitespace to a single space and trims the ends.
// Example: "  Disney+\n  Premium " -> "Disney+ Premium"
func NormalizeSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// TitleCase upper-cases the first letter of every letter run and lower-cases the rest.
// Example: "disney+ premium" -> "Disney+ Premium", "o'neil" -> "O'Neil"
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				b.WriteRune(unicode.ToLower(r))
			} else {
				b.WriteRune(unicode.ToTitle(r))
			}
			prevLetter = true
			continue
		}
		b.WriteRune(r)
		prevLetter = false
	}
	return b.String()
}
