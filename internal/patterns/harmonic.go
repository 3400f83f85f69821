package patterns

import (
	"math"

	"forex-signal-engine/internal/market"
)

// ratioRange is an inclusive Fibonacci ratio band
type ratioRange struct {
	min, max float64
}

func (r ratioRange) contains(v float64) bool {
	return v >= r.min-HarmonicTolerance && v <= r.max+HarmonicTolerance
}

func exactly(v float64) ratioRange {
	return ratioRange{min: v, max: v}
}

// harmonicDefinition holds the ratio bands for one harmonic pattern:
// AB/XA, BC/AB and AD/XA
type harmonicDefinition struct {
	name PatternType
	ab   ratioRange
	bc   ratioRange
	ad   ratioRange
}

var harmonicDefinitions = []harmonicDefinition{
	{name: Gartley, ab: exactly(0.618), bc: ratioRange{0.382, 0.886}, ad: exactly(0.786)},
	{name: Bat, ab: ratioRange{0.382, 0.5}, bc: ratioRange{0.382, 0.886}, ad: exactly(0.886)},
	{name: Butterfly, ab: exactly(0.786), bc: ratioRange{0.382, 0.886}, ad: ratioRange{1.27, 1.618}},
}

// detectHarmonic validates the last five alternating swing points as X-A-B-C-D
func (pd *PatternDetector) detectHarmonic(candles market.Series) []Pattern {
	points := market.MergeSwings(
		market.FindSwingHighs(candles, pd.harmonicLookback),
		market.FindSwingLows(candles, pd.harmonicLookback),
	)
	if len(points) < 5 {
		return nil
	}
	x, a, b, c, d := points[len(points)-5], points[len(points)-4], points[len(points)-3], points[len(points)-2], points[len(points)-1]
	if len(candles)-1-d.CandleIndex > HarmonicMaxAge {
		return nil
	}

	xa := math.Abs(a.Price - x.Price)
	ab := math.Abs(b.Price - a.Price)
	bc := math.Abs(c.Price - b.Price)
	if xa == 0 || ab == 0 || bc == 0 {
		return nil
	}
	abRatio := ab / xa
	bcRatio := bc / ab
	adRatio := math.Abs(a.Price-d.Price) / xa

	direction := market.Bearish
	if d.Type == "low" {
		direction = market.Bullish
	}

	var patterns []Pattern
	for _, def := range harmonicDefinitions {
		if !def.ab.contains(abRatio) || !def.bc.contains(bcRatio) || !def.ad.contains(adRatio) {
			continue
		}
		// Target is the 0.618 retracement of AD
		target := d.Price + 0.618*(a.Price-d.Price)
		patterns = append(patterns, Pattern{
			Name:        def.name,
			Category:    CategoryHarmonic,
			Direction:   direction,
			Reliability: reliability[def.name],
			CandleIndex: d.CandleIndex,
			Target:      ptr(market.Round(target, 5)),
		})
	}
	return patterns
}
