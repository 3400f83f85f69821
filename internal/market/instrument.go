package market

import "strings"

// Category groups instruments in the scanner universe
type Category string

const (
	CategoryForex   Category = "forex"
	CategoryMetals  Category = "metals"
	CategoryIndices Category = "indices"
)

// Categories in display order
var Categories = []Category{CategoryForex, CategoryMetals, CategoryIndices}

// Universe lists the scanned symbols per category
type Universe map[Category][]string

// DefaultUniverse is the instrument set scanned when none is configured
var DefaultUniverse = Universe{
	CategoryForex: {
		"EURUSD", "GBPUSD", "USDJPY", "USDCHF", "AUDUSD", "USDCAD", "NZDUSD",
		"EURGBP", "EURJPY", "GBPJPY", "AUDJPY", "EURAUD", "EURCHF", "GBPCHF",
	},
	CategoryMetals:  {"XAUUSD", "XAGUSD"},
	CategoryIndices: {"US30", "US500", "NAS100", "GER40", "UK100"},
}

// CategoryOf classifies a symbol listed in u. Unlisted symbols are metals when they
// trade against gold or silver and forex otherwise.
func (u Universe) CategoryOf(symbol string) Category {
	s := strings.ToUpper(symbol)
	for cat, symbols := range u {
		for _, candidate := range symbols {
			if strings.ToUpper(candidate) == s {
				return cat
			}
		}
	}
	if strings.HasPrefix(s, "XAU") || strings.HasPrefix(s, "XAG") {
		return CategoryMetals
	}
	return CategoryForex
}

// PipSize returns the price increment of one pip for a symbol of u
func (u Universe) PipSize(symbol string) float64 {
	s := strings.ToUpper(symbol)
	switch {
	case strings.HasPrefix(s, "XAU"):
		return 0.1
	case strings.HasPrefix(s, "XAG"):
		return 0.01
	case strings.Contains(s, "JPY"):
		return 0.01
	case u.CategoryOf(s) == CategoryIndices:
		return 1.0
	default:
		return 0.0001
	}
}

// PipSize looks the symbol up in the default universe
func PipSize(symbol string) float64 {
	return DefaultUniverse.PipSize(symbol)
}

// CategoryOf looks the symbol up in the default universe
func CategoryOf(symbol string) Category {
	return DefaultUniverse.CategoryOf(symbol)
}

// Currencies splits a six-letter forex symbol into base and quote
func Currencies(symbol string) (base, quote string, ok bool) {
	s := strings.ToUpper(symbol)
	if len(s) != 6 {
		return "", "", false
	}
	return s[:3], s[3:], true
}
