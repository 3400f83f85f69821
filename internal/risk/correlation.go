package risk

import "strings"

// correlationTable holds approximate pairwise correlation coefficients of major instruments.
// Keys are the two symbols in lexical order joined by '/'.
var correlationTable = map[string]float64{
	"AUDUSD/EURUSD": 0.72,
	"AUDUSD/GBPUSD": 0.68,
	"AUDUSD/NZDUSD": 0.92,
	"AUDUSD/USDCAD": -0.65,
	"AUDUSD/USDCHF": -0.70,
	"AUDUSD/XAUUSD": 0.62,
	"EURGBP/EURUSD": 0.45,
	"EURJPY/GBPJPY": 0.90,
	"EURJPY/USDJPY": 0.75,
	"EURUSD/GBPUSD": 0.85,
	"EURUSD/NZDUSD": 0.70,
	"EURUSD/USDCAD": -0.60,
	"EURUSD/USDCHF": -0.92,
	"EURUSD/USDJPY": -0.35,
	"EURUSD/XAUUSD": 0.55,
	"GBPJPY/USDJPY": 0.70,
	"GBPUSD/NZDUSD": 0.65,
	"GBPUSD/USDCHF": -0.80,
	"NZDUSD/USDCHF": -0.68,
	"USDCAD/USDCHF": 0.50,
	"USDCHF/USDJPY": 0.60,
	"XAGUSD/XAUUSD": 0.88,
	"GER40/US500":   0.78,
	"NAS100/US30":   0.85,
	"NAS100/US500":  0.93,
	"UK100/US500":   0.72,
	"US30/US500":    0.95,
	"GER40/UK100":   0.80,
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "/" + b
}

// Correlation returns the table coefficient between two symbols: 1 for the same symbol,
// 0 when the pair is not tabulated
func Correlation(a, b string) float64 {
	a, b = strings.ToUpper(a), strings.ToUpper(b)
	if a == b {
		return 1
	}
	return correlationTable[pairKey(a, b)]
}
