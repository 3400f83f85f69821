package patterns

import "forex-signal-engine/internal/market"

// Category groups patterns by how they are recognised
type Category string

const (
	CategoryCandlestick Category = "candlestick"
	CategoryChart       Category = "chart"
	CategoryHarmonic    Category = "harmonic"
)

// PatternType names a recognised pattern
type PatternType string

const (
	// Candlestick patterns
	Doji               PatternType = "Doji"
	Hammer             PatternType = "Hammer"
	InvertedHammer     PatternType = "Inverted Hammer"
	ShootingStar       PatternType = "Shooting Star"
	HangingMan         PatternType = "Hanging Man"
	BullishMarubozu    PatternType = "Bullish Marubozu"
	BearishMarubozu    PatternType = "Bearish Marubozu"
	BullishEngulfing   PatternType = "Bullish Engulfing"
	BearishEngulfing   PatternType = "Bearish Engulfing"
	BullishHarami      PatternType = "Bullish Harami"
	BearishHarami      PatternType = "Bearish Harami"
	PiercingLine       PatternType = "Piercing Line"
	DarkCloudCover     PatternType = "Dark Cloud Cover"
	MorningStar        PatternType = "Morning Star"
	EveningStar        PatternType = "Evening Star"
	ThreeWhiteSoldiers PatternType = "Three White Soldiers"
	ThreeBlackCrows    PatternType = "Three Black Crows"

	// Chart patterns
	DoubleTop            PatternType = "Double Top"
	DoubleBottom         PatternType = "Double Bottom"
	HeadAndShoulders     PatternType = "Head and Shoulders"
	InverseHeadShoulders PatternType = "Inverse Head and Shoulders"
	AscendingTriangle    PatternType = "Ascending Triangle"
	DescendingTriangle   PatternType = "Descending Triangle"
	SymmetricalTriangle  PatternType = "Symmetrical Triangle"

	// Harmonic patterns
	Gartley   PatternType = "Gartley"
	Bat       PatternType = "Bat"
	Butterfly PatternType = "Butterfly"
)

// Pattern is one detected pattern
type Pattern struct {
	Name        PatternType `json:"name"`
	Category    Category    `json:"category"`
	Direction   market.Bias `json:"direction"`
	Reliability int         `json:"reliability"` // 1..5
	CandleIndex int         `json:"candleIndex"`
	Target      *float64    `json:"target,omitempty"`
	Neckline    *float64    `json:"neckline,omitempty"`
}

// Result is the aggregate output of the detector
type Result struct {
	Patterns []Pattern   `json:"patterns"`
	Score    float64     `json:"score"`
	Bias     market.Bias `json:"bias"`
}

// LaneScore converts the result into a confluence lane
func (r *Result) LaneScore() market.LaneScore {
	names := make([]string, 0, len(r.Patterns))
	for _, p := range r.Patterns {
		names = append(names, string(p.Name))
	}
	return market.LaneScore{
		Lane:       market.LanePattern,
		Score:      r.Score,
		Bias:       r.Bias,
		Confidence: market.ConfidenceFromScore(r.Score),
		Details:    map[string]interface{}{"patterns": names},
	}
}

func ptr(v float64) *float64 {
	return &v
}
