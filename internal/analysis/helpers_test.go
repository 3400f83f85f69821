package analysis

import (
	"math"
	"time"

	"forex-signal-engine/internal/market"
)

var testStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// zigzag joins straight legs between pivot prices; highs and lows sit `wick` from the path
func zigzag(from float64, pivots []float64, bars []int, wick float64) market.Series {
	mids := []float64{from}
	prev := from
	for i, p := range pivots {
		step := (p - prev) / float64(bars[i])
		for j := 1; j <= bars[i]; j++ {
			mids = append(mids, prev+step*float64(j))
		}
		prev = p
	}

	out := make(market.Series, len(mids))
	for i, m := range mids {
		sign := 1.0
		if i > 0 && m < mids[i-1] {
			sign = -1
		}
		out[i] = market.Candle{
			Time:   testStart.Add(time.Duration(i) * time.Hour),
			Open:   m - sign*wick/2,
			High:   m + wick,
			Low:    m - wick,
			Close:  m + sign*wick/2,
			Volume: 1000,
		}
	}
	return out
}

// impulseSeries repeats a slow pullback followed by a three bar impulse, producing order blocks
// and fair value gaps that later get revisited
func impulseSeries(n int) market.Series {
	steps := []float64{-0.0004, -0.0004, -0.0004, 0.0025, 0.0020, 0.0015, -0.0008, -0.0009, -0.0010, -0.0008, -0.0006, -0.0005}
	out := make(market.Series, n)
	prev := 1.1
	for i := 0; i < n; i++ {
		m := prev + steps[i%len(steps)]
		out[i] = market.Candle{
			Time:   testStart.Add(time.Duration(i) * 4 * time.Hour),
			Open:   prev,
			High:   math.Max(prev, m) + 0.0002,
			Low:    math.Min(prev, m) - 0.0002,
			Close:  m,
			Volume: 1000 + float64(i%5)*100,
		}
		prev = m
	}
	return out
}
