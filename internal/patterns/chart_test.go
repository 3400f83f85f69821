package patterns

import (
	"testing"
	"time"

	"forex-signal-engine/internal/market"
)

var start = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

// pathSeries builds candles around a mid-price path. Highs and lows sit `wick` away from the mid
// so swing points land exactly on the path extremes.
func pathSeries(mids []float64, wick float64) market.Series {
	out := make(market.Series, len(mids))
	for i, m := range mids {
		sign := 1.0
		if i > 0 && m < mids[i-1] {
			sign = -1
		}
		out[i] = market.Candle{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Open:   m - sign*wick/2,
			High:   m + wick,
			Low:    m - wick,
			Close:  m + sign*wick/2,
			Volume: 1000,
		}
	}
	return out
}

// legs joins straight segments between pivot prices, each leg taking `bars` candles
func legs(from float64, pivots []float64, bars []int) []float64 {
	mids := []float64{from}
	prev := from
	for i, p := range pivots {
		step := (p - prev) / float64(bars[i])
		for j := 1; j <= bars[i]; j++ {
			mids = append(mids, prev+step*float64(j))
		}
		prev = p
	}
	return mids
}

func findPattern(patterns []Pattern, name PatternType) (Pattern, bool) {
	for _, p := range patterns {
		if p.Name == name {
			return p, true
		}
	}
	return Pattern{}, false
}

func TestDoubleTop(t *testing.T) {
	// Peak at bar 10, trough at bar 18, second peak at bar 25, then a break below the trough
	mids := legs(1.0000, []float64{1.0100, 1.0020, 1.0097, 1.0001}, []int{10, 8, 7, 8})
	candles := pathSeries(mids, 0.0003)

	result := NewPatternDetector().Detect(candles)

	p, ok := findPattern(result.Patterns, DoubleTop)
	if !ok {
		t.Fatalf("Expected Double Top, got %+v", result.Patterns)
	}
	if p.Direction != market.Bearish {
		t.Errorf("Expected bearish direction, got %s", p.Direction)
	}
	if p.Reliability != 4 {
		t.Errorf("Expected reliability 4, got %d", p.Reliability)
	}
	if p.Category != CategoryChart {
		t.Errorf("Expected chart category, got %s", p.Category)
	}
	if p.Neckline == nil || p.Target == nil {
		t.Fatal("Expected neckline and target levels")
	}
	if *p.Target >= *p.Neckline {
		t.Errorf("Target %.5f should sit below neckline %.5f", *p.Target, *p.Neckline)
	}
	if result.Bias != market.Bearish {
		t.Errorf("Expected bearish aggregate bias, got %s", result.Bias)
	}
}

func TestDoubleTopRequiresNecklineBreak(t *testing.T) {
	// Same peaks but price stays above the trough
	mids := legs(1.0000, []float64{1.0100, 1.0020, 1.0097, 1.0060}, []int{10, 8, 7, 8})
	result := NewPatternDetector().Detect(pathSeries(mids, 0.0003))

	if _, ok := findPattern(result.Patterns, DoubleTop); ok {
		t.Error("Double Top should not be confirmed without a close below the neckline")
	}
}

func TestDoubleTopLevelTolerance(t *testing.T) {
	// Second peak 5% below the first
	mids := legs(1.0000, []float64{1.0500, 0.9900, 0.9975, 0.9800}, []int{10, 8, 7, 8})
	result := NewPatternDetector().Detect(pathSeries(mids, 0.0003))

	if _, ok := findPattern(result.Patterns, DoubleTop); ok {
		t.Error("Peaks 5% apart should not form a Double Top")
	}
}

func TestDoubleBottom(t *testing.T) {
	mids := legs(1.0100, []float64{1.0000, 1.0080, 1.0003, 1.0099}, []int{10, 8, 7, 8})
	result := NewPatternDetector().Detect(pathSeries(mids, 0.0003))

	p, ok := findPattern(result.Patterns, DoubleBottom)
	if !ok {
		t.Fatalf("Expected Double Bottom, got %+v", result.Patterns)
	}
	if p.Direction != market.Bullish || p.Reliability != 4 {
		t.Errorf("Expected bullish reliability 4, got %s %d", p.Direction, p.Reliability)
	}
	if *p.Target <= *p.Neckline {
		t.Errorf("Target %.5f should sit above neckline %.5f", *p.Target, *p.Neckline)
	}
}

func TestHeadAndShoulders(t *testing.T) {
	// Left shoulder, head, right shoulder, then a break below the neckline
	mids := legs(1.0000, []float64{1.0080, 1.0030, 1.0150, 1.0032, 1.0082, 1.0000}, []int{8, 7, 7, 7, 7, 8})
	result := NewPatternDetector().Detect(pathSeries(mids, 0.0002))

	p, ok := findPattern(result.Patterns, HeadAndShoulders)
	if !ok {
		t.Fatalf("Expected Head and Shoulders, got %+v", result.Patterns)
	}
	if p.Direction != market.Bearish {
		t.Errorf("Expected bearish direction, got %s", p.Direction)
	}
	if p.Neckline == nil || *p.Neckline < 1.0025 || *p.Neckline > 1.0035 {
		t.Errorf("Unexpected neckline %v", p.Neckline)
	}
}

func TestTriangle(t *testing.T) {
	sp := func(price float64, idx int) market.SwingPoint {
		return market.SwingPoint{Price: price, CandleIndex: idx}
	}

	tests := []struct {
		name      string
		highs     []market.SwingPoint
		lows      []market.SwingPoint
		want      PatternType
		direction market.Bias
		ok        bool
	}{
		{
			name:      "ascending",
			highs:     []market.SwingPoint{sp(1.1000, 10), sp(1.1002, 30)},
			lows:      []market.SwingPoint{sp(1.0800, 20), sp(1.0900, 40)},
			want:      AscendingTriangle,
			direction: market.Bullish,
			ok:        true,
		},
		{
			name:      "descending",
			highs:     []market.SwingPoint{sp(1.1000, 10), sp(1.0900, 30)},
			lows:      []market.SwingPoint{sp(1.0800, 20), sp(1.0801, 40)},
			want:      DescendingTriangle,
			direction: market.Bearish,
			ok:        true,
		},
		{
			name:      "symmetrical",
			highs:     []market.SwingPoint{sp(1.2000, 10), sp(1.1000, 30)},
			lows:      []market.SwingPoint{sp(0.9000, 20), sp(1.0000, 40)},
			want:      SymmetricalTriangle,
			direction: market.Neutral,
			ok:        true,
		},
		{
			name:  "diverging",
			highs: []market.SwingPoint{sp(1.1000, 10), sp(1.1500, 30)},
			lows:  []market.SwingPoint{sp(1.0800, 20), sp(1.0500, 40)},
			ok:    false,
		},
		{
			name:  "too old",
			highs: []market.SwingPoint{sp(1.1000, 10), sp(1.1002, 30)},
			lows:  []market.SwingPoint{sp(1.0800, 20), sp(1.0900, 40)},
			ok:    false,
		},
	}

	for _, tt := range tests {
		n := 50
		if tt.name == "too old" {
			n = 120
		}
		p, ok := triangle(n, tt.highs, tt.lows)
		if ok != tt.ok {
			t.Errorf("%s: expected ok=%v, got %v", tt.name, tt.ok, ok)
			continue
		}
		if !ok {
			continue
		}
		if p.Name != tt.want || p.Direction != tt.direction {
			t.Errorf("%s: got %s/%s, want %s/%s", tt.name, p.Name, p.Direction, tt.want, tt.direction)
		}
	}
}

func TestAggregate(t *testing.T) {
	chartBear := Pattern{Name: DoubleTop, Category: CategoryChart, Direction: market.Bearish, Reliability: 4}
	candleBull := Pattern{Name: BullishEngulfing, Category: CategoryCandlestick, Direction: market.Bullish, Reliability: 3}
	candleBear := Pattern{Name: ShootingStar, Category: CategoryCandlestick, Direction: market.Bearish, Reliability: 2}
	harmonicBull := Pattern{Name: Gartley, Category: CategoryHarmonic, Direction: market.Bullish, Reliability: 4}
	doji := Pattern{Name: Doji, Category: CategoryCandlestick, Direction: market.Neutral, Reliability: 1}

	tests := []struct {
		name     string
		patterns []Pattern
		score    float64
		bias     market.Bias
	}{
		{"none", nil, 50, market.Neutral},
		{"single chart", []Pattern{chartBear}, 70, market.Bearish},
		{"dominant at exactly 1.5x", []Pattern{candleBull, candleBear}, 65, market.Bullish},
		{"conflicting chart and candle", []Pattern{chartBear, candleBull}, 79, market.Bearish},
		{"neutral only", []Pattern{doji}, 53, market.Neutral},
		{"balanced", []Pattern{candleBear, candleBear, candleBull}, 71, market.Neutral},
		{"capped", []Pattern{harmonicBull, harmonicBull, chartBear}, 100, market.Bullish},
	}

	for _, tt := range tests {
		score, bias := aggregate(tt.patterns)
		if score != tt.score || bias != tt.bias {
			t.Errorf("%s: got %.2f/%s, want %.2f/%s", tt.name, score, bias, tt.score, tt.bias)
		}
	}
}

func TestResultHelpers(t *testing.T) {
	r := Result{Patterns: []Pattern{
		{Name: Doji, Category: CategoryCandlestick, Reliability: 1, CandleIndex: 40},
		{Name: DoubleTop, Category: CategoryChart, Reliability: 4, CandleIndex: 25},
		{Name: MorningStar, Category: CategoryCandlestick, Reliability: 4, CandleIndex: 40},
	}}

	if got := len(r.Filter(CategoryCandlestick)); got != 2 {
		t.Errorf("Expected 2 candlestick patterns, got %d", got)
	}
	best, ok := r.Strongest()
	if !ok || best.Name != MorningStar {
		t.Errorf("Expected Morning Star as strongest, got %s", best.Name)
	}

	lane := r.LaneScore()
	if lane.Lane != market.LanePattern {
		t.Errorf("Expected pattern lane, got %s", lane.Lane)
	}
}
