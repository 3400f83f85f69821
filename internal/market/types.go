package market

import (
	"fmt"
	"math"
	"time"
)

// Candle represents a single OHLCV bar
type Candle struct {
	Time   time.Time `json:"timestamp"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// Vol returns the candle volume, reading a missing volume as 1 so ratio math never divides by zero
func (c Candle) Vol() float64 {
	if c.Volume <= 0 {
		return 1
	}
	return c.Volume
}

// Range returns high minus low
func (c Candle) Range() float64 {
	return c.High - c.Low
}

// Body returns the absolute body size
func (c Candle) Body() float64 {
	return math.Abs(c.Close - c.Open)
}

// IsBullish reports whether the candle closed above its open
func (c Candle) IsBullish() bool {
	return c.Close > c.Open
}

// IsBearish reports whether the candle closed below its open
func (c Candle) IsBearish() bool {
	return c.Close < c.Open
}

// UpperWick returns the distance between the high and the top of the body
func (c Candle) UpperWick() float64 {
	return c.High - math.Max(c.Open, c.Close)
}

// LowerWick returns the distance between the bottom of the body and the low
func (c Candle) LowerWick() float64 {
	return math.Min(c.Open, c.Close) - c.Low
}

// TypicalPrice returns (high + low + close) / 3
func (c Candle) TypicalPrice() float64 {
	return (c.High + c.Low + c.Close) / 3
}

// Series is a time-ascending sequence of candles for one timeframe
type Series []Candle

// Validate checks that timestamps are strictly increasing
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].Time.After(s[i-1].Time) {
			return fmt.Errorf("candle %d at %s is not after %s", i, s[i].Time.Format(time.RFC3339), s[i-1].Time.Format(time.RFC3339))
		}
	}
	return nil
}

// Last returns the most recent candle, or a zero candle for an empty series
func (s Series) Last() Candle {
	if len(s) == 0 {
		return Candle{}
	}
	return s[len(s)-1]
}

// Tail returns the last n candles (or the whole series when shorter)
func (s Series) Tail(n int) Series {
	if n >= len(s) {
		return s
	}
	return s[len(s)-n:]
}

// Closes extracts close prices
func (s Series) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close
	}
	return out
}

// AverageRange returns the mean high-low range over the `period` candles ending at index end (inclusive)
func (s Series) AverageRange(end, period int) float64 {
	if end >= len(s) {
		end = len(s) - 1
	}
	start := end - period + 1
	if start < 0 {
		start = 0
	}
	if end < start {
		return 0
	}
	sum := 0.0
	for i := start; i <= end; i++ {
		sum += s[i].Range()
	}
	return sum / float64(end-start+1)
}

// Change24h returns the percentage change between the last close and the close 24 hours earlier
func (s Series) Change24h() float64 {
	if len(s) < 2 {
		return 0
	}
	last := s[len(s)-1]
	cutoff := last.Time.Add(-24 * time.Hour)
	ref := s[0].Close
	for i := len(s) - 2; i >= 0; i-- {
		if !s[i].Time.After(cutoff) {
			ref = s[i].Close
			break
		}
	}
	if ref == 0 {
		return 0
	}
	return math.Round((last.Close-ref)/ref*100*100) / 100
}

// Timeframe is one of the fixed chart timeframes the engine analyses
type Timeframe string

const (
	M15 Timeframe = "M15"
	M30 Timeframe = "M30"
	H1  Timeframe = "H1"
	H4  Timeframe = "H4"
	D1  Timeframe = "D1"
	W1  Timeframe = "W1"
)

// Timeframes is the fixed analysis order, shortest first
var Timeframes = []Timeframe{M15, M30, H1, H4, D1, W1}

// timeframeWeights sum to 1; H1 and H4 are the primary timeframes
var timeframeWeights = map[Timeframe]float64{
	M15: 0.10,
	M30: 0.15,
	H1:  0.25,
	H4:  0.25,
	D1:  0.15,
	W1:  0.10,
}

// Weight returns the importance weight of the timeframe
func (tf Timeframe) Weight() float64 {
	return timeframeWeights[tf]
}

// Duration returns the bar duration of the timeframe
func (tf Timeframe) Duration() time.Duration {
	switch tf {
	case M15:
		return 15 * time.Minute
	case M30:
		return 30 * time.Minute
	case H1:
		return time.Hour
	case H4:
		return 4 * time.Hour
	case D1:
		return 24 * time.Hour
	case W1:
		return 7 * 24 * time.Hour
	default:
		return time.Hour
	}
}

// Valid reports whether tf is one of the known timeframes
func (tf Timeframe) Valid() bool {
	_, ok := timeframeWeights[tf]
	return ok
}

// ParseTimeframe parses a timeframe label
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if !tf.Valid() {
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
	return tf, nil
}

// MultiTimeframeSeries maps a timeframe to its price series
type MultiTimeframeSeries map[Timeframe]Series

// Validate checks every series in the map
func (m MultiTimeframeSeries) Validate() error {
	for tf, s := range m {
		if !tf.Valid() {
			return fmt.Errorf("unknown timeframe %q", tf)
		}
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%s: %w", tf, err)
		}
	}
	return nil
}

// Bias is a directional lean
type Bias string

const (
	Bullish Bias = "BULLISH"
	Bearish Bias = "BEARISH"
	Neutral Bias = "NEUTRAL"
)

// Opposite returns the mirrored bias
func (b Bias) Opposite() Bias {
	switch b {
	case Bullish:
		return Bearish
	case Bearish:
		return Bullish
	default:
		return Neutral
	}
}

// Direction is the side of a trade
type Direction string

const (
	Buy  Direction = "BUY"
	Sell Direction = "SELL"
)

// DirectionFromBias maps a non-neutral bias to a trade direction
func DirectionFromBias(b Bias) (Direction, bool) {
	switch b {
	case Bullish:
		return Buy, true
	case Bearish:
		return Sell, true
	default:
		return "", false
	}
}

// Round rounds v to the given number of decimals
func Round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// Clamp bounds v to [lo, hi]
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
