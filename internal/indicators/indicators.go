package indicators

import (
	"math"

	"forex-signal-engine/internal/market"
)

// Precision is the number of decimals every indicator output is rounded to
const Precision = 5

// Signal labels shared by oscillator results
const (
	SignalOverbought = "overbought"
	SignalOversold   = "oversold"
	SignalBullish    = "bullish"
	SignalBearish    = "bearish"
	SignalNeutral    = "neutral"
)

// BollingerSqueezeThreshold is the band width relative to the middle band below which a squeeze is flagged
const BollingerSqueezeThreshold = 0.04

func round(v float64) float64 {
	return market.Round(v, Precision)
}

func last(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// ============================================================================
// MOVING AVERAGES
// ============================================================================

// CalculateSMA calculates the Simple Moving Average of the last `period` values.
// Returns the mean of whatever is available when fewer than `period` values exist.
func CalculateSMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return round(mean(values))
	}

	sum := 0.0
	for _, v := range values[len(values)-period:] {
		sum += v
	}
	return round(sum / float64(period))
}

// CalculateEMASeries returns the EMA value for every index from period-1 onwards.
// The first value is seeded with the SMA of the first `period` values.
func CalculateEMASeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}

	multiplier := 2.0 / float64(period+1)

	seed := 0.0
	for _, v := range values[:period] {
		seed += v
	}
	ema := seed / float64(period)

	out := make([]float64, 0, len(values)-period+1)
	out = append(out, ema)
	for i := period; i < len(values); i++ {
		ema = (values[i]-ema)*multiplier + ema
		out = append(out, ema)
	}
	return out
}

// CalculateEMA calculates the Exponential Moving Average.
// Returns the mean of whatever is available when fewer than `period` values exist.
func CalculateEMA(values []float64, period int) float64 {
	series := CalculateEMASeries(values, period)
	if series == nil {
		return round(mean(values))
	}
	return round(series[len(series)-1])
}

// ============================================================================
// RSI (Relative Strength Index)
// ============================================================================

// RSIResult holds the RSI value and its zone label
type RSIResult struct {
	Value  float64 `json:"value"`
	Signal string  `json:"signal"`
}

// CalculateRSI calculates RSI with Wilder smoothing
func CalculateRSI(values []float64, period int) RSIResult {
	if period <= 0 || len(values) < period+1 {
		return RSIResult{Value: 50, Signal: SignalNeutral}
	}

	gains, losses := 0.0, 0.0
	for i := 1; i <= period; i++ {
		change := values[i] - values[i-1]
		if change > 0 {
			gains += change
		} else {
			losses -= change
		}
	}
	avgGain := gains / float64(period)
	avgLoss := losses / float64(period)

	for i := period + 1; i < len(values); i++ {
		change := values[i] - values[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
	}

	var rsi float64
	switch {
	case avgLoss == 0 && avgGain == 0:
		rsi = 50
	case avgLoss == 0:
		rsi = 100
	default:
		rs := avgGain / avgLoss
		rsi = 100 - 100/(1+rs)
	}
	rsi = market.Clamp(round(rsi), 0, 100)

	return RSIResult{Value: rsi, Signal: rsiSignal(rsi)}
}

func rsiSignal(rsi float64) string {
	switch {
	case rsi >= 70:
		return SignalOverbought
	case rsi <= 30:
		return SignalOversold
	case rsi > 50:
		return SignalBullish
	case rsi < 50:
		return SignalBearish
	default:
		return SignalNeutral
	}
}

// ============================================================================
// MACD (Moving Average Convergence Divergence)
// ============================================================================

// MACDResult holds MACD indicator values
type MACDResult struct {
	MACD          float64 `json:"macd"`
	Signal        float64 `json:"signal"`
	Histogram     float64 `json:"histogram"`
	PrevHistogram float64 `json:"prevHistogram"`
	Trend         string  `json:"trend"`
}

// CalculateMACD calculates the MACD line, its signal EMA and the histogram
func CalculateMACD(values []float64, fastPeriod, slowPeriod, signalPeriod int) MACDResult {
	if len(values) < slowPeriod+signalPeriod {
		return MACDResult{Trend: SignalNeutral}
	}

	fast := CalculateEMASeries(values, fastPeriod)
	slow := CalculateEMASeries(values, slowPeriod)

	// Align both series on the same bar index
	offset := slowPeriod - fastPeriod
	macdLine := make([]float64, len(slow))
	for i := range slow {
		macdLine[i] = fast[i+offset] - slow[i]
	}

	signal := CalculateEMASeries(macdLine, signalPeriod)
	if len(signal) < 2 {
		return MACDResult{Trend: SignalNeutral}
	}

	n := len(macdLine)
	hist := macdLine[n-1] - signal[len(signal)-1]
	prevHist := macdLine[n-2] - signal[len(signal)-2]

	trend := SignalNeutral
	if hist > 0 {
		trend = SignalBullish
	} else if hist < 0 {
		trend = SignalBearish
	}

	return MACDResult{
		MACD:          round(macdLine[n-1]),
		Signal:        round(signal[len(signal)-1]),
		Histogram:     round(hist),
		PrevHistogram: round(prevHist),
		Trend:         trend,
	}
}

// ============================================================================
// STOCHASTIC OSCILLATOR
// ============================================================================

// StochasticResult holds Stochastic Oscillator values
type StochasticResult struct {
	K      float64 `json:"k"`
	D      float64 `json:"d"`
	Signal string  `json:"signal"`
}

// CalculateStochastic calculates %K and %D (SMA of %K over dPeriod)
func CalculateStochastic(candles market.Series, kPeriod, dPeriod int) StochasticResult {
	if kPeriod <= 0 || dPeriod <= 0 || len(candles) < kPeriod+dPeriod-1 {
		return StochasticResult{K: 50, D: 50, Signal: SignalNeutral}
	}

	ks := make([]float64, 0, dPeriod)
	for end := len(candles) - dPeriod; end < len(candles); end++ {
		window := candles[end-kPeriod+1 : end+1]
		hh, ll := window[0].High, window[0].Low
		for _, c := range window {
			hh = math.Max(hh, c.High)
			ll = math.Min(ll, c.Low)
		}
		k := 50.0
		if hh != ll {
			k = (candles[end].Close - ll) / (hh - ll) * 100
		}
		ks = append(ks, k)
	}

	k := market.Clamp(round(ks[len(ks)-1]), 0, 100)
	d := market.Clamp(round(CalculateSMA(ks, dPeriod)), 0, 100)

	signal := SignalNeutral
	switch {
	case k >= 80:
		signal = SignalOverbought
	case k <= 20:
		signal = SignalOversold
	case k > 50:
		signal = SignalBullish
	case k < 50:
		signal = SignalBearish
	}

	return StochasticResult{K: k, D: d, Signal: signal}
}

// ============================================================================
// MOMENTUM INDICATORS
// ============================================================================

// CalculateMomentum returns the price difference over `period` bars
func CalculateMomentum(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}
	return round(values[len(values)-1] - values[len(values)-1-period])
}

// CalculateROC returns the percentage rate of change over `period` bars
func CalculateROC(values []float64, period int) float64 {
	if period <= 0 || len(values) < period+1 {
		return 0
	}
	past := values[len(values)-1-period]
	if past == 0 {
		return 0
	}
	return round((values[len(values)-1] - past) / past * 100)
}

// ============================================================================
// ATR (Average True Range)
// ============================================================================

func trueRange(c, prev market.Candle) float64 {
	return math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev.Close), math.Abs(c.Low-prev.Close)))
}

// CalculateATR calculates Average True Range with Wilder smoothing
func CalculateATR(candles market.Series, period int) float64 {
	if period <= 0 || len(candles) < period+1 {
		return 0
	}

	atr := 0.0
	for i := 1; i <= period; i++ {
		atr += trueRange(candles[i], candles[i-1])
	}
	atr /= float64(period)

	for i := period + 1; i < len(candles); i++ {
		atr = (atr*float64(period-1) + trueRange(candles[i], candles[i-1])) / float64(period)
	}
	return round(atr)
}

// ============================================================================
// BOLLINGER BANDS
// ============================================================================

// BollingerResult holds Bollinger Bands values
type BollingerResult struct {
	Upper    float64 `json:"upper"`
	Middle   float64 `json:"middle"`
	Lower    float64 `json:"lower"`
	Width    float64 `json:"width"`
	PercentB float64 `json:"percentB"`
	Squeeze  bool    `json:"squeeze"`
}

// CalculateBollingerBands calculates Bollinger Bands using population standard deviation
func CalculateBollingerBands(values []float64, period int, stdDevMultiplier float64) BollingerResult {
	if period <= 0 || len(values) < period {
		p := round(last(values))
		return BollingerResult{Upper: p, Middle: p, Lower: p, PercentB: 0.5}
	}

	window := values[len(values)-period:]
	mean := 0.0
	for _, v := range window {
		mean += v
	}
	mean /= float64(period)

	variance := 0.0
	for _, v := range window {
		variance += (v - mean) * (v - mean)
	}
	stdDev := math.Sqrt(variance / float64(period))

	upper := mean + stdDev*stdDevMultiplier
	lower := mean - stdDev*stdDevMultiplier

	width := 0.0
	if mean != 0 {
		width = (upper - lower) / mean
	}
	percentB := 0.5
	if upper != lower {
		percentB = (last(values) - lower) / (upper - lower)
	}

	return BollingerResult{
		Upper:    round(upper),
		Middle:   round(mean),
		Lower:    round(lower),
		Width:    round(width),
		PercentB: round(percentB),
		Squeeze:  width < BollingerSqueezeThreshold,
	}
}

// ============================================================================
// ADX (Average Directional Index)
// ============================================================================

// ADXResult holds trend strength and directional indicators
type ADXResult struct {
	ADX     float64 `json:"adx"`
	PlusDI  float64 `json:"plusDI"`
	MinusDI float64 `json:"minusDI"`
	Trend   string  `json:"trend"`
}

// CalculateADX calculates +DI, -DI and ADX.
// ADX here is the DX of the Wilder-smoothed directional lines at the last bar; DX itself is not
// smoothed a second time. Downstream scoring is calibrated to this form.
func CalculateADX(candles market.Series, period int) ADXResult {
	if period <= 0 || len(candles) < period*2 {
		return ADXResult{Trend: SignalNeutral}
	}

	var trSum, plusSum, minusSum float64
	for i := 1; i < len(candles); i++ {
		c, prev := candles[i], candles[i-1]
		upMove := c.High - prev.High
		downMove := prev.Low - c.Low

		plusDM, minusDM := 0.0, 0.0
		if upMove > downMove && upMove > 0 {
			plusDM = upMove
		}
		if downMove > upMove && downMove > 0 {
			minusDM = downMove
		}
		tr := trueRange(c, prev)

		if i <= period {
			trSum += tr
			plusSum += plusDM
			minusSum += minusDM
			continue
		}
		trSum = trSum - trSum/float64(period) + tr
		plusSum = plusSum - plusSum/float64(period) + plusDM
		minusSum = minusSum - minusSum/float64(period) + minusDM
	}

	if trSum == 0 {
		return ADXResult{Trend: SignalNeutral}
	}

	plusDI := plusSum / trSum * 100
	minusDI := minusSum / trSum * 100
	dx := 0.0
	if plusDI+minusDI > 0 {
		dx = math.Abs(plusDI-minusDI) / (plusDI + minusDI) * 100
	}

	trend := SignalNeutral
	if plusDI > minusDI {
		trend = SignalBullish
	} else if minusDI > plusDI {
		trend = SignalBearish
	}

	return ADXResult{
		ADX:     market.Clamp(round(dx), 0, 100),
		PlusDI:  round(plusDI),
		MinusDI: round(minusDI),
		Trend:   trend,
	}
}
