package reference

import "sort"

// SymbolCode pairs a currency marker as it appears in storefront text with its ISO code.
type SymbolCode struct {
	Symbol string
	Code   string
}

// GenericDollar is the ambiguous "$" sign.
const GenericDollar = "$"

// symbolTable is ordered; ties in length keep this order when scanning.
var symbolTable = []SymbolCode{
	{"€", "EUR"},
	{"£", "GBP"},
	{"usd", "USD"},
	{"cad", "CAD"},
	{"ars", "ARS"},
	{"aud", "AUD"},
	{"brl", "BRL"},
	{"clp", "CLP"},
	{"cop", "COP"},
	{"czk", "CZK"},
	{"dkk", "DKK"},
	{"hkd", "HKD"},
	{"huf", "HUF"},
	{"jpy", "JPY"},
	{"mxn", "MXN"},
	{"nok", "NOK"},
	{"nzd", "NZD"},
	{"pen", "PEN"},
	{"pln", "PLN"},
	{"ron", "RON"},
	{"sek", "SEK"},
	{"sgd", "SGD"},
	{"chf", "CHF"},
	{"twd", "TWD"},
	{"try", "TRY"},
	{"krw", "KRW"},
	{"lei", "RON"},
	{"kr", "DKK"},
	{"tl", "TRY"},
	{"zł", "PLN"},
	{"r$", "BRL"},
	{"ca$", "CAD"},
	{"a$", "AUD"},
	{"hk$", "HKD"},
	{"s$", "SGD"},
	{"mx$", "MXN"},
	{"nz$", "NZD"},
	{"ntd", "TWD"},
	{"¥", "JPY"},
	{GenericDollar, "USD"},
}

var (
	symbolsByLength []SymbolCode
	knownCodes      map[string]struct{}
)

// DollarCurrencies are the defaults under which a bare "$" is accepted.
var DollarCurrencies = map[string]struct{}{
	"USD": {}, "CAD": {}, "AUD": {}, "NZD": {}, "MXN": {}, "SGD": {}, "HKD": {},
}

func init() {
	symbolsByLength = make([]SymbolCode, len(symbolTable))
	copy(symbolsByLength, symbolTable)
	sort.SliceStable(symbolsByLength, func(i, j int) bool {
		return len([]rune(symbolsByLength[i].Symbol)) > len([]rune(symbolsByLength[j].Symbol))
	})

	knownCodes = make(map[string]struct{}, len(symbolTable))
	for _, s := range symbolTable {
		knownCodes[s.Code] = struct{}{}
	}
}

// Symbols returns the symbol table ordered longest symbol first, stable on table order.
func Symbols() []SymbolCode {
	out := make([]SymbolCode, len(symbolsByLength))
	copy(out, symbolsByLength)
	return out
}

// IsKnownCode reports whether code is a value of the symbol table.
func IsKnownCode(code string) bool {
	_, ok := knownCodes[code]
	return ok
}

// IsDollarCurrency reports whether a bare "$" may denote code.
func IsDollarCurrency(code string) bool {
	_, ok := DollarCurrencies[code]
	return ok
}
