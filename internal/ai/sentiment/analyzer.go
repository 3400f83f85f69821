package sentiment

import (
	"fmt"
	"math"
	"time"

	"forex-signal-engine/internal/market"
)

// Scoring constants
const (
	ContrarianThreshold = 75.0 // retail share on one side that triggers the contrarian signal
	ContrarianWeight    = 0.6  // points per percent beyond 50
	NewsWeight          = 15.0 // points at news sentiment of +-1
	NewsMinAbs          = 0.1
	FearThreshold       = 25
	GreedThreshold      = 75
	ExtremeFear         = 10
	ExtremeGreed        = 90
	FearGreedPoints     = 10.0
	ExtremePoints       = 5.0
	NeutralDeviation    = 5.0
)

// RetailPositioning is the share of retail accounts long a symbol
type RetailPositioning struct {
	LongPercent float64 `json:"longPercent"`
}

// ShortPercent returns the complementary short share
func (r RetailPositioning) ShortPercent() float64 {
	return 100 - r.LongPercent
}

// NewsItem represents a news article
type NewsItem struct {
	Title       string    `json:"title"`
	Source      string    `json:"source"`
	URL         string    `json:"url"`
	Sentiment   float64   `json:"sentiment"` // -1 to +1
	PublishedAt time.Time `json:"published_at"`
}

// Data is the externally supplied sentiment input for one symbol
type Data struct {
	Retail    *RetailPositioning `json:"retail,omitempty"`
	News      []NewsItem         `json:"news,omitempty"`
	FearGreed *int               `json:"fearGreed,omitempty"` // 0-100
	AsOf      time.Time          `json:"asOf"`
}

// Analyzer performs contrarian market sentiment analysis
type Analyzer struct{}

// NewAnalyzer creates a new sentiment analyzer
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze produces the sentiment lane. Nil data yields the neutral lane.
func (a *Analyzer) Analyze(symbol string, data *Data) market.LaneScore {
	if data == nil {
		return market.NeutralLane(market.LaneSentiment)
	}

	details := map[string]interface{}{"symbol": symbol}
	var warnings []string
	deviation := 0.0

	// 1. Contrarian retail positioning
	if data.Retail != nil {
		long := market.Clamp(data.Retail.LongPercent, 0, 100)
		details["retailLongPct"] = market.Round(long, 2)
		switch {
		case long >= ContrarianThreshold:
			deviation -= (long - 50) * ContrarianWeight
			details["contrarian"] = fmt.Sprintf("%.0f%% of retail long", long)
		case 100-long >= ContrarianThreshold:
			deviation += (50 - long) * ContrarianWeight
			details["contrarian"] = fmt.Sprintf("%.0f%% of retail short", 100-long)
		}
	}

	// 2. News
	if len(data.News) > 0 {
		news := calculateNewsScore(data.News, data.AsOf)
		details["newsScore"] = market.Round(news, 3)
		if math.Abs(news) >= NewsMinAbs {
			deviation += news * NewsWeight
		}
	}

	// 3. Fear/greed proxy
	if data.FearGreed != nil {
		fg := *data.FearGreed
		details["fearGreed"] = fg
		details["fearGreedLabel"] = FearGreedLabel(fg)
		switch {
		case fg <= FearThreshold:
			deviation += FearGreedPoints
			if fg <= ExtremeFear {
				deviation += ExtremePoints
				warnings = append(warnings, "Extreme fear - market panic, high risk")
			}
		case fg >= GreedThreshold:
			deviation -= FearGreedPoints
			if fg >= ExtremeGreed {
				deviation -= ExtremePoints
				warnings = append(warnings, "Extreme greed - potential bubble, high risk")
			}
		}
	}

	bias := market.Neutral
	switch {
	case deviation >= NeutralDeviation:
		bias = market.Bullish
	case deviation <= -NeutralDeviation:
		bias = market.Bearish
	}
	score := market.Round(market.Clamp(50+math.Abs(deviation), 0, 100), 2)

	return market.LaneScore{
		Lane:       market.LaneSentiment,
		Score:      score,
		Bias:       bias,
		Confidence: market.ConfidenceFromScore(score),
		Details:    details,
		Warnings:   warnings,
	}
}

// calculateNewsScore weights recent news more heavily. A zero asOf weights every item equally.
func calculateNewsScore(news []NewsItem, asOf time.Time) float64 {
	if len(news) == 0 {
		return 0
	}

	totalWeight := 0.0
	weightedSum := 0.0

	for _, item := range news {
		weight := 1.0
		if !asOf.IsZero() && !item.PublishedAt.IsZero() {
			age := asOf.Sub(item.PublishedAt).Hours()
			if age < 1 {
				weight = 2.0
			} else if age < 6 {
				weight = 1.5
			} else if age > 24 {
				weight = 0.5
			}
		}

		weightedSum += market.Clamp(item.Sentiment, -1, 1) * weight
		totalWeight += weight
	}

	return weightedSum / totalWeight
}

// FearGreedLabel classifies a 0-100 fear/greed reading
func FearGreedLabel(v int) string {
	switch {
	case v < 25:
		return "Extreme Fear"
	case v < 45:
		return "Fear"
	case v <= 55:
		return "Neutral"
	case v < 75:
		return "Greed"
	default:
		return "Extreme Greed"
	}
}
