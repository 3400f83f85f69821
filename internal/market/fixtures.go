package market

import (
	"math"
	"time"
)

// TrendSeries builds a deterministic series whose close moves by step per bar with a small
// oscillation on top. It is used by tests and by the in-memory demo source.
func TrendSeries(n int, start, step float64, tf Timeframe, from time.Time) Series {
	out := make(Series, n)
	price := start
	for i := 0; i < n; i++ {
		wobble := math.Sin(float64(i)/3) * math.Abs(step) * 1.5
		open := price
		closePrice := price + step + wobble*0.2
		high := math.Max(open, closePrice) + math.Abs(step)*0.6
		low := math.Min(open, closePrice) - math.Abs(step)*0.6
		out[i] = Candle{
			Time:   from.Add(time.Duration(i) * tf.Duration()),
			Open:   open,
			High:   high,
			Low:    low,
			Close:  closePrice,
			Volume: 1000 + float64(i%7)*120,
		}
		price = closePrice
	}
	return out
}

// SeriesFromCloses builds candles around a close path with fixed wick size
func SeriesFromCloses(closes []float64, wick float64, tf Timeframe, from time.Time) Series {
	out := make(Series, len(closes))
	for i, c := range closes {
		open := c
		if i > 0 {
			open = closes[i-1]
		}
		out[i] = Candle{
			Time:   from.Add(time.Duration(i) * tf.Duration()),
			Open:   open,
			High:   math.Max(open, c) + wick,
			Low:    math.Min(open, c) - wick,
			Close:  c,
			Volume: 1000,
		}
	}
	return out
}
