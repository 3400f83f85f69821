package market

// SwingPoint represents a local price extreme
type SwingPoint struct {
	Price       float64 `json:"price"`
	CandleIndex int     `json:"index"`
	Type        string  `json:"type"` // "high" or "low"
}

// FindSwingHighs returns candles whose high is strictly above every high within `lookback`
// bars on each side
func FindSwingHighs(candles Series, lookback int) []SwingPoint {
	var swings []SwingPoint
	for i := lookback; i < len(candles)-lookback; i++ {
		isSwing := true
		for j := i - lookback; j <= i+lookback; j++ {
			if j != i && candles[j].High >= candles[i].High {
				isSwing = false
				break
			}
		}
		if isSwing {
			swings = append(swings, SwingPoint{Price: candles[i].High, CandleIndex: i, Type: "high"})
		}
	}
	return swings
}

// FindSwingLows returns candles whose low is strictly below every low within `lookback`
// bars on each side
func FindSwingLows(candles Series, lookback int) []SwingPoint {
	var swings []SwingPoint
	for i := lookback; i < len(candles)-lookback; i++ {
		isSwing := true
		for j := i - lookback; j <= i+lookback; j++ {
			if j != i && candles[j].Low <= candles[i].Low {
				isSwing = false
				break
			}
		}
		if isSwing {
			swings = append(swings, SwingPoint{Price: candles[i].Low, CandleIndex: i, Type: "low"})
		}
	}
	return swings
}

// MergeSwings interleaves highs and lows by candle index, keeping only alternating points.
// When two consecutive points share a type the more extreme one is kept.
func MergeSwings(highs, lows []SwingPoint) []SwingPoint {
	all := make([]SwingPoint, 0, len(highs)+len(lows))
	i, j := 0, 0
	for i < len(highs) || j < len(lows) {
		switch {
		case j >= len(lows) || (i < len(highs) && highs[i].CandleIndex <= lows[j].CandleIndex):
			all = append(all, highs[i])
			i++
		default:
			all = append(all, lows[j])
			j++
		}
	}

	out := make([]SwingPoint, 0, len(all))
	for _, p := range all {
		if n := len(out); n > 0 && out[n-1].Type == p.Type {
			prev := out[n-1]
			if (p.Type == "high" && p.Price > prev.Price) || (p.Type == "low" && p.Price < prev.Price) {
				out[n-1] = p
			}
			continue
		}
		out = append(out, p)
	}
	return out
}
