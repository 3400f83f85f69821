package patterns

import (
	"forex-signal-engine/internal/market"
)

// PatternDetector detects candlestick, chart and harmonic patterns in a price series
type PatternDetector struct {
	avgBodyPeriod    int // Candles used for the rolling average body
	swingLookback    int // Centered window for chart swings
	harmonicLookback int // Centered window for harmonic swings
}

// NewPatternDetector creates a new pattern detector with the default geometry
func NewPatternDetector() *PatternDetector {
	return &PatternDetector{
		avgBodyPeriod:    AverageBodyPeriod,
		swingLookback:    ChartSwingLookback,
		harmonicLookback: HarmonicSwingLookback,
	}
}

// Detect scans the series for all supported patterns and aggregates them into a score and bias.
// Candlestick patterns only look at the last three candles; chart and harmonic patterns use the
// swing points of the whole series.
func (pd *PatternDetector) Detect(candles market.Series) Result {
	result := Result{
		Patterns: []Pattern{},
		Score:    50,
		Bias:     market.Neutral,
	}
	if len(candles) == 0 {
		return result
	}

	result.Patterns = append(result.Patterns, pd.detectCandlestick(candles)...)
	result.Patterns = append(result.Patterns, pd.detectChart(candles)...)
	result.Patterns = append(result.Patterns, pd.detectHarmonic(candles)...)

	result.Score, result.Bias = aggregate(result.Patterns)
	return result
}

// aggregate scores the patterns: 50 plus reliability times the category weight, capped at 100.
// One side wins the bias only when its reliability sum dominates the other side.
func aggregate(patterns []Pattern) (float64, market.Bias) {
	score := 50.0
	bull, bear := 0.0, 0.0
	for _, p := range patterns {
		weighted := float64(p.Reliability) * categoryWeight[p.Category]
		score += weighted
		switch p.Direction {
		case market.Bullish:
			bull += weighted
		case market.Bearish:
			bear += weighted
		}
	}
	if score > 100 {
		score = 100
	}

	bias := market.Neutral
	switch {
	case bull > 0 && bull >= bear*BiasDominance:
		bias = market.Bullish
	case bear > 0 && bear >= bull*BiasDominance:
		bias = market.Bearish
	}
	return market.Round(score, 2), bias
}

// Filter returns the patterns of one category
func (r *Result) Filter(category Category) []Pattern {
	var out []Pattern
	for _, p := range r.Patterns {
		if p.Category == category {
			out = append(out, p)
		}
	}
	return out
}

// Strongest returns the most reliable pattern, most recent first on ties
func (r *Result) Strongest() (Pattern, bool) {
	if len(r.Patterns) == 0 {
		return Pattern{}, false
	}
	best := r.Patterns[0]
	for _, p := range r.Patterns[1:] {
		if p.Reliability > best.Reliability || (p.Reliability == best.Reliability && p.CandleIndex > best.CandleIndex) {
			best = p
		}
	}
	return best, true
}
