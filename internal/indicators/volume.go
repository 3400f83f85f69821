package indicators

import (
	"math"

	"forex-signal-engine/internal/market"
)

// ============================================================================
// VOLUME INDICATORS
// ============================================================================

// CalculateOBVSeries returns the cumulative On-Balance Volume for every bar
func CalculateOBVSeries(candles market.Series) []float64 {
	if len(candles) < 2 {
		return nil
	}
	out := make([]float64, len(candles))
	for i := 1; i < len(candles); i++ {
		switch {
		case candles[i].Close > candles[i-1].Close:
			out[i] = out[i-1] + candles[i].Vol()
		case candles[i].Close < candles[i-1].Close:
			out[i] = out[i-1] - candles[i].Vol()
		default:
			out[i] = out[i-1]
		}
	}
	return out
}

// CalculateOBV returns the On-Balance Volume at the last bar
func CalculateOBV(candles market.Series) float64 {
	series := CalculateOBVSeries(candles)
	if series == nil {
		return 0
	}
	return round(series[len(series)-1])
}

// MFIResult holds the Money Flow Index and its zone
type MFIResult struct {
	Value  float64 `json:"value"`
	Signal string  `json:"signal"`
}

// CalculateMFI calculates the Money Flow Index over `period` bars
func CalculateMFI(candles market.Series, period int) MFIResult {
	if period <= 0 || len(candles) < period+1 {
		return MFIResult{Value: 50, Signal: SignalNeutral}
	}

	positive, negative := 0.0, 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		tp := candles[i].TypicalPrice()
		prevTP := candles[i-1].TypicalPrice()
		flow := tp * candles[i].Vol()
		if tp > prevTP {
			positive += flow
		} else if tp < prevTP {
			negative += flow
		}
	}

	var mfi float64
	switch {
	case positive == 0 && negative == 0:
		mfi = 50
	case negative == 0:
		mfi = 100
	default:
		mfi = 100 - 100/(1+positive/negative)
	}
	mfi = market.Clamp(round(mfi), 0, 100)

	signal := SignalNeutral
	switch {
	case mfi >= 80:
		signal = SignalOverbought
	case mfi <= 20:
		signal = SignalOversold
	case mfi > 50:
		signal = SignalBullish
	case mfi < 50:
		signal = SignalBearish
	}
	return MFIResult{Value: mfi, Signal: signal}
}

// CalculateCMF calculates Chaikin Money Flow over `period` bars
func CalculateCMF(candles market.Series, period int) float64 {
	if period <= 0 || len(candles) < period {
		return 0
	}

	mfvSum, volSum := 0.0, 0.0
	for _, c := range candles[len(candles)-period:] {
		rng := c.High - c.Low
		multiplier := 0.0
		if rng > 0 {
			multiplier = ((c.Close - c.Low) - (c.High - c.Close)) / rng
		}
		mfvSum += multiplier * c.Vol()
		volSum += c.Vol()
	}
	if volSum == 0 {
		return 0
	}
	return round(mfvSum / volSum)
}

// VWAPResult holds the volume weighted average price and its deviation bands
type VWAPResult struct {
	VWAP   float64 `json:"vwap"`
	StdDev float64 `json:"stdDev"`
	Upper1 float64 `json:"upper1"`
	Lower1 float64 `json:"lower1"`
	Upper2 float64 `json:"upper2"`
	Lower2 float64 `json:"lower2"`
}

// CalculateVWAP calculates VWAP with 1 and 2 standard deviation bands over the whole series
func CalculateVWAP(candles market.Series) VWAPResult {
	if len(candles) == 0 {
		return VWAPResult{}
	}

	pv, vol := 0.0, 0.0
	for _, c := range candles {
		pv += c.TypicalPrice() * c.Vol()
		vol += c.Vol()
	}
	vwap := pv / vol

	variance := 0.0
	for _, c := range candles {
		d := c.TypicalPrice() - vwap
		variance += d * d * c.Vol()
	}
	sd := math.Sqrt(variance / vol)

	return VWAPResult{
		VWAP:   round(vwap),
		StdDev: round(sd),
		Upper1: round(vwap + sd),
		Lower1: round(vwap - sd),
		Upper2: round(vwap + 2*sd),
		Lower2: round(vwap - 2*sd),
	}
}
