package analysis

import (
	"math"
	"sort"

	"forex-signal-engine/internal/market"
)

// Liquidity zone kinds
const (
	LiquidityEqualHighs = "equal_highs"
	LiquidityEqualLows  = "equal_lows"
	LiquiditySwingHigh  = "swing_high"
	LiquiditySwingLow   = "swing_low"
)

// LiquidityZone is a price level where resting orders are likely to cluster
type LiquidityZone struct {
	Kind     string  `json:"kind"`
	Level    float64 `json:"level"`
	Touches  int     `json:"touches"`
	Distance float64 `json:"distance"`
	Side     string  `json:"side"` // "buy_side" above price, "sell_side" below
}

// PremiumDiscount positions the current price within the recent range
type PremiumDiscount struct {
	Zone        string      `json:"zone"` // premium, discount, equilibrium
	RangeHigh   float64     `json:"rangeHigh"`
	RangeLow    float64     `json:"rangeLow"`
	Equilibrium float64     `json:"equilibrium"`
	Position    float64     `json:"position"` // 0 at the range low, 1 at the range high
	Bias        market.Bias `json:"bias"`
}

// Premium/discount zones
const (
	ZonePremium     = "premium"
	ZoneDiscount    = "discount"
	ZoneEquilibrium = "equilibrium"
)

// FindLiquidityZones clusters equal highs/lows and adds unswept swing extremes,
// sorted by distance from the current price
func FindLiquidityZones(candles market.Series, highs, lows []market.SwingPoint) []LiquidityZone {
	if len(candles) == 0 {
		return nil
	}
	price := candles.Last().Close

	zones := clusterEqualLevels(highs, LiquidityEqualHighs)
	zones = append(zones, clusterEqualLevels(lows, LiquidityEqualLows)...)

	// Unswept swing highs: no later high traded above
	for _, h := range highs {
		if !sweptAbove(candles, h) {
			zones = append(zones, LiquidityZone{Kind: LiquiditySwingHigh, Level: h.Price, Touches: 1})
		}
	}
	for _, l := range lows {
		if !sweptBelow(candles, l) {
			zones = append(zones, LiquidityZone{Kind: LiquiditySwingLow, Level: l.Price, Touches: 1})
		}
	}

	for i := range zones {
		zones[i].Distance = market.Round(math.Abs(zones[i].Level-price), 5)
		if zones[i].Level >= price {
			zones[i].Side = "buy_side"
		} else {
			zones[i].Side = "sell_side"
		}
	}

	sort.SliceStable(zones, func(i, j int) bool {
		return zones[i].Distance < zones[j].Distance
	})
	if len(zones) > MaxReportedZones {
		zones = zones[:MaxReportedZones]
	}
	return zones
}

func clusterEqualLevels(points []market.SwingPoint, kind string) []LiquidityZone {
	var zones []LiquidityZone
	used := make([]bool, len(points))

	for i := range points {
		if used[i] {
			continue
		}
		sum := points[i].Price
		touches := 1
		for j := i + 1; j < len(points); j++ {
			if used[j] {
				continue
			}
			if math.Abs(points[j].Price-points[i].Price)/points[i].Price <= EqualLevelTolerance {
				used[j] = true
				sum += points[j].Price
				touches++
			}
		}
		if touches >= EqualLevelMinTouches {
			used[i] = true
			zones = append(zones, LiquidityZone{
				Kind:    kind,
				Level:   market.Round(sum/float64(touches), 5),
				Touches: touches,
			})
		}
	}
	return zones
}

func sweptAbove(candles market.Series, h market.SwingPoint) bool {
	for j := h.CandleIndex + 1; j < len(candles); j++ {
		if candles[j].High > h.Price {
			return true
		}
	}
	return false
}

func sweptBelow(candles market.Series, l market.SwingPoint) bool {
	for j := l.CandleIndex + 1; j < len(candles); j++ {
		if candles[j].Low < l.Price {
			return true
		}
	}
	return false
}

// CalculatePremiumDiscount places the last close within the high/low of the last `lookback` bars
func CalculatePremiumDiscount(candles market.Series, lookback int) PremiumDiscount {
	window := candles.Tail(lookback)
	if len(window) == 0 {
		return PremiumDiscount{Zone: ZoneEquilibrium, Bias: market.Neutral}
	}

	hh, ll := window[0].High, window[0].Low
	for _, c := range window {
		hh = math.Max(hh, c.High)
		ll = math.Min(ll, c.Low)
	}

	pd := PremiumDiscount{
		RangeHigh:   hh,
		RangeLow:    ll,
		Equilibrium: market.Round((hh+ll)/2, 5),
		Zone:        ZoneEquilibrium,
		Bias:        market.Neutral,
		Position:    0.5,
	}
	if hh == ll {
		return pd
	}

	pos := (window.Last().Close - ll) / (hh - ll)
	pd.Position = market.Round(pos, 4)
	switch {
	case pos > PremiumThreshold:
		pd.Zone = ZonePremium
		pd.Bias = market.Bearish
	case pos < DiscountThreshold:
		pd.Zone = ZoneDiscount
		pd.Bias = market.Bullish
	}
	return pd
}
