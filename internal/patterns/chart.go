package patterns

import (
	"math"

	"forex-signal-engine/internal/market"
)

// detectChart finds double tops/bottoms, head and shoulders and triangles from swing points
func (pd *PatternDetector) detectChart(candles market.Series) []Pattern {
	highs := market.FindSwingHighs(candles, pd.swingLookback)
	lows := market.FindSwingLows(candles, pd.swingLookback)
	lastClose := candles.Last().Close

	var patterns []Pattern
	if p, ok := doubleTop(candles, highs, lastClose); ok {
		patterns = append(patterns, p)
	}
	if p, ok := doubleBottom(candles, lows, lastClose); ok {
		patterns = append(patterns, p)
	}
	if p, ok := headAndShoulders(candles, highs, lastClose); ok {
		patterns = append(patterns, p)
	}
	if p, ok := inverseHeadAndShoulders(candles, lows, lastClose); ok {
		patterns = append(patterns, p)
	}
	if p, ok := triangle(len(candles), highs, lows); ok {
		patterns = append(patterns, p)
	}
	return patterns
}

// withinTolerance reports whether two levels differ by at most tol of the larger one
func withinTolerance(a, b, tol float64) bool {
	ref := math.Max(math.Abs(a), math.Abs(b))
	if ref == 0 {
		return true
	}
	return math.Abs(a-b)/ref <= tol
}

// lowestLow returns the lowest low strictly between two candle indexes
func lowestLow(candles market.Series, from, to int) float64 {
	low := math.Inf(1)
	for i := from + 1; i < to; i++ {
		low = math.Min(low, candles[i].Low)
	}
	return low
}

// highestHigh returns the highest high strictly between two candle indexes
func highestHigh(candles market.Series, from, to int) float64 {
	high := math.Inf(-1)
	for i := from + 1; i < to; i++ {
		high = math.Max(high, candles[i].High)
	}
	return high
}

// doubleTop: two peaks at the same level, confirmed by a close below the intervening low
func doubleTop(candles market.Series, highs []market.SwingPoint, lastClose float64) (Pattern, bool) {
	if len(highs) < 2 {
		return Pattern{}, false
	}
	first, second := highs[len(highs)-2], highs[len(highs)-1]
	if second.CandleIndex-first.CandleIndex < DoubleMinSeparation {
		return Pattern{}, false
	}
	if !withinTolerance(first.Price, second.Price, DoubleLevelTolerance) {
		return Pattern{}, false
	}

	neckline := lowestLow(candles, first.CandleIndex, second.CandleIndex)
	if lastClose >= neckline {
		return Pattern{}, false
	}

	peak := (first.Price + second.Price) / 2
	return Pattern{
		Name:        DoubleTop,
		Category:    CategoryChart,
		Direction:   market.Bearish,
		Reliability: reliability[DoubleTop],
		CandleIndex: second.CandleIndex,
		Target:      ptr(market.Round(neckline-(peak-neckline), 5)),
		Neckline:    ptr(market.Round(neckline, 5)),
	}, true
}

// doubleBottom: two troughs at the same level, confirmed by a close above the intervening high
func doubleBottom(candles market.Series, lows []market.SwingPoint, lastClose float64) (Pattern, bool) {
	if len(lows) < 2 {
		return Pattern{}, false
	}
	first, second := lows[len(lows)-2], lows[len(lows)-1]
	if second.CandleIndex-first.CandleIndex < DoubleMinSeparation {
		return Pattern{}, false
	}
	if !withinTolerance(first.Price, second.Price, DoubleLevelTolerance) {
		return Pattern{}, false
	}

	neckline := highestHigh(candles, first.CandleIndex, second.CandleIndex)
	if lastClose <= neckline {
		return Pattern{}, false
	}

	trough := (first.Price + second.Price) / 2
	return Pattern{
		Name:        DoubleBottom,
		Category:    CategoryChart,
		Direction:   market.Bullish,
		Reliability: reliability[DoubleBottom],
		CandleIndex: second.CandleIndex,
		Target:      ptr(market.Round(neckline+(neckline-trough), 5)),
		Neckline:    ptr(market.Round(neckline, 5)),
	}, true
}

// headAndShoulders: three peaks with the middle one highest and matching shoulders
func headAndShoulders(candles market.Series, highs []market.SwingPoint, lastClose float64) (Pattern, bool) {
	if len(highs) < 3 {
		return Pattern{}, false
	}
	left, head, right := highs[len(highs)-3], highs[len(highs)-2], highs[len(highs)-1]
	if head.Price <= left.Price || head.Price <= right.Price {
		return Pattern{}, false
	}
	if !withinTolerance(left.Price, right.Price, ShoulderTolerance) {
		return Pattern{}, false
	}

	neckline := (lowestLow(candles, left.CandleIndex, head.CandleIndex) +
		lowestLow(candles, head.CandleIndex, right.CandleIndex)) / 2
	if lastClose >= neckline {
		return Pattern{}, false
	}

	return Pattern{
		Name:        HeadAndShoulders,
		Category:    CategoryChart,
		Direction:   market.Bearish,
		Reliability: reliability[HeadAndShoulders],
		CandleIndex: right.CandleIndex,
		Target:      ptr(market.Round(neckline-(head.Price-neckline), 5)),
		Neckline:    ptr(market.Round(neckline, 5)),
	}, true
}

// inverseHeadAndShoulders mirrors headAndShoulders on swing lows
func inverseHeadAndShoulders(candles market.Series, lows []market.SwingPoint, lastClose float64) (Pattern, bool) {
	if len(lows) < 3 {
		return Pattern{}, false
	}
	left, head, right := lows[len(lows)-3], lows[len(lows)-2], lows[len(lows)-1]
	if head.Price >= left.Price || head.Price >= right.Price {
		return Pattern{}, false
	}
	if !withinTolerance(left.Price, right.Price, ShoulderTolerance) {
		return Pattern{}, false
	}

	neckline := (highestHigh(candles, left.CandleIndex, head.CandleIndex) +
		highestHigh(candles, head.CandleIndex, right.CandleIndex)) / 2
	if lastClose <= neckline {
		return Pattern{}, false
	}

	return Pattern{
		Name:        InverseHeadShoulders,
		Category:    CategoryChart,
		Direction:   market.Bullish,
		Reliability: reliability[InverseHeadShoulders],
		CandleIndex: right.CandleIndex,
		Target:      ptr(market.Round(neckline+(neckline-head.Price), 5)),
		Neckline:    ptr(market.Round(neckline, 5)),
	}, true
}

// triangle classifies the last two swing highs and lows. A flat side within tolerance and a
// sloped side at least TriangleSlopeRatio steeper gives an ascending or descending triangle;
// falling highs with rising lows gives a symmetrical one.
func triangle(n int, highs, lows []market.SwingPoint) (Pattern, bool) {
	if len(highs) < 2 || len(lows) < 2 {
		return Pattern{}, false
	}
	h1, h2 := highs[len(highs)-2], highs[len(highs)-1]
	l1, l2 := lows[len(lows)-2], lows[len(lows)-1]

	latest := h2.CandleIndex
	if l2.CandleIndex > latest {
		latest = l2.CandleIndex
	}
	if n-1-latest > TriangleMaxAge {
		return Pattern{}, false
	}

	highSlope := (h2.Price - h1.Price) / h1.Price
	lowSlope := (l2.Price - l1.Price) / l1.Price

	var name PatternType
	var direction market.Bias
	switch {
	case math.Abs(highSlope) <= TriangleFlatTolerance && lowSlope > 0 && lowSlope > TriangleSlopeRatio*math.Abs(highSlope):
		name, direction = AscendingTriangle, market.Bullish
	case math.Abs(lowSlope) <= TriangleFlatTolerance && highSlope < 0 && -highSlope > TriangleSlopeRatio*math.Abs(lowSlope):
		name, direction = DescendingTriangle, market.Bearish
	case highSlope < 0 && lowSlope > 0:
		name, direction = SymmetricalTriangle, market.Neutral
	default:
		return Pattern{}, false
	}

	return Pattern{
		Name:        name,
		Category:    CategoryChart,
		Direction:   direction,
		Reliability: reliability[name],
		CandleIndex: latest,
	}, true
}
