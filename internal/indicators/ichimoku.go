package indicators

import (
	"math"

	"forex-signal-engine/internal/market"
)

// Cloud positions
const (
	CloudAbove  = "above"
	CloudBelow  = "below"
	CloudInside = "inside"
)

// IchimokuResult holds the Ichimoku Kinko Hyo lines at the last bar
type IchimokuResult struct {
	Tenkan   float64 `json:"tenkan"`
	Kijun    float64 `json:"kijun"`
	SenkouA  float64 `json:"senkouA"`
	SenkouB  float64 `json:"senkouB"`
	Chikou   float64 `json:"chikou"`
	Position string  `json:"position"`
	Signal   string  `json:"signal"`
}

func midpoint(candles market.Series, period int) float64 {
	window := candles[len(candles)-period:]
	hh, ll := window[0].High, window[0].Low
	for _, c := range window {
		hh = math.Max(hh, c.High)
		ll = math.Min(ll, c.Low)
	}
	return (hh + ll) / 2
}

// CalculateIchimoku calculates conversion, base and leading span lines (9/26/52 by default)
// and where the last close sits relative to the cloud
func CalculateIchimoku(candles market.Series, tenkanPeriod, kijunPeriod, senkouBPeriod int) IchimokuResult {
	if len(candles) < senkouBPeriod || len(candles) < kijunPeriod || len(candles) < tenkanPeriod {
		p := round(candles.Last().Close)
		return IchimokuResult{
			Tenkan: p, Kijun: p, SenkouA: p, SenkouB: p, Chikou: p,
			Position: CloudInside,
			Signal:   SignalNeutral,
		}
	}

	tenkan := midpoint(candles, tenkanPeriod)
	kijun := midpoint(candles, kijunPeriod)
	senkouA := (tenkan + kijun) / 2
	senkouB := midpoint(candles, senkouBPeriod)
	price := candles.Last().Close

	top := math.Max(senkouA, senkouB)
	bottom := math.Min(senkouA, senkouB)

	position := CloudInside
	signal := SignalNeutral
	switch {
	case price > top:
		position = CloudAbove
		signal = SignalBullish
	case price < bottom:
		position = CloudBelow
		signal = SignalBearish
	}

	return IchimokuResult{
		Tenkan:   round(tenkan),
		Kijun:    round(kijun),
		SenkouA:  round(senkouA),
		SenkouB:  round(senkouB),
		Chikou:   round(price),
		Position: position,
		Signal:   signal,
	}
}
