package analysis

import (
	"fmt"

	"forex-signal-engine/internal/indicators"
	"forex-signal-engine/internal/market"
)

// TrendClass is the five-level trend classification of the technical lane
type TrendClass string

const (
	StrongBullish TrendClass = "STRONG_BULLISH"
	TrendBullish  TrendClass = "BULLISH"
	TrendNeutral  TrendClass = "NEUTRAL"
	TrendBearish  TrendClass = "BEARISH"
	StrongBearish TrendClass = "STRONG_BEARISH"
)

// Bias maps the trend class onto a three-way bias
func (t TrendClass) Bias() market.Bias {
	switch t {
	case StrongBullish, TrendBullish:
		return market.Bullish
	case StrongBearish, TrendBearish:
		return market.Bearish
	default:
		return market.Neutral
	}
}

// IsStrong reports whether the class is one of the strong variants
func (t TrendClass) IsStrong() bool {
	return t == StrongBullish || t == StrongBearish
}

// Vote is one indicator's contribution to the trend tally
type Vote struct {
	Indicator string      `json:"indicator"`
	Bias      market.Bias `json:"bias"`
	Weight    int         `json:"weight"`
}

// TechnicalAnalysis is the result of analysing one timeframe
type TechnicalAnalysis struct {
	Timeframe    market.Timeframe    `json:"timeframe"`
	Available    bool                `json:"available"`
	Indicators   indicators.Snapshot `json:"indicators"`
	Votes        []Vote              `json:"votes"`
	BullishVotes int                 `json:"bullishVotes"`
	BearishVotes int                 `json:"bearishVotes"`
	BullishPct   float64             `json:"bullishPct"`
	Trend        TrendClass          `json:"trend"`
	Score        float64             `json:"score"`
	Signals      []string            `json:"signals"`
}

// LaneScore converts the analysis into a confluence lane
func (ta *TechnicalAnalysis) LaneScore() market.LaneScore {
	if !ta.Available {
		return market.NeutralLane(market.LaneTechnical)
	}
	return market.LaneScore{
		Lane:       market.LaneTechnical,
		Score:      ta.Score,
		Bias:       ta.Trend.Bias(),
		Confidence: market.ConfidenceFromScore(ta.Score),
		Details: map[string]interface{}{
			"trend":      ta.Trend,
			"bullishPct": ta.BullishPct,
			"rsi":        ta.Indicators.RSI.Value,
			"adx":        ta.Indicators.ADX.ADX,
		},
	}
}

// TechnicalAnalyzer classifies trend and scores one timeframe from the indicator library
type TechnicalAnalyzer struct {
	minBars int
}

// NewTechnicalAnalyzer creates a new technical analyzer
func NewTechnicalAnalyzer() *TechnicalAnalyzer {
	return &TechnicalAnalyzer{minBars: TechnicalMinBars}
}

// Analyze runs every indicator, tallies directional votes and derives trend and score
func (a *TechnicalAnalyzer) Analyze(candles market.Series, tf market.Timeframe) *TechnicalAnalysis {
	result := &TechnicalAnalysis{
		Timeframe: tf,
		Trend:     TrendNeutral,
		Score:     50,
	}
	if len(candles) < a.minBars {
		result.Indicators = indicators.Calculate(candles)
		return result
	}

	result.Available = true
	snap := indicators.Calculate(candles)
	result.Indicators = snap

	// 1. Collect votes
	result.Votes = collectVotes(snap)
	for _, v := range result.Votes {
		switch v.Bias {
		case market.Bullish:
			result.BullishVotes += v.Weight
		case market.Bearish:
			result.BearishVotes += v.Weight
		}
	}

	// 2. Classify trend from the bullish vote share
	total := result.BullishVotes + result.BearishVotes
	if total > 0 {
		result.BullishPct = market.Round(float64(result.BullishVotes)/float64(total)*100, 2)
	} else {
		result.BullishPct = 50
	}
	result.Trend = classifyTrend(result.BullishPct)

	// 3. Score
	result.Score, result.Signals = scoreTechnical(snap, result.Trend, result.BullishPct)

	return result
}

func collectVotes(s indicators.Snapshot) []Vote {
	var votes []Vote
	add := func(name string, bias market.Bias, weight int) {
		if bias != market.Neutral {
			votes = append(votes, Vote{Indicator: name, Bias: bias, Weight: weight})
		}
	}

	// EMA stack: full ordering counts double
	switch {
	case s.EMA9 > s.EMA21 && s.EMA21 > s.EMA50 && s.EMA50 > s.EMA200:
		add("ema_stack", market.Bullish, 2)
	case s.EMA9 < s.EMA21 && s.EMA21 < s.EMA50 && s.EMA50 < s.EMA200:
		add("ema_stack", market.Bearish, 2)
	case s.EMA9 > s.EMA21:
		add("ema_stack", market.Bullish, 1)
	case s.EMA9 < s.EMA21:
		add("ema_stack", market.Bearish, 1)
	}

	add("price_vs_ema200", compareBias(s.Price, s.EMA200), 1)
	add("rsi", compareBias(s.RSI.Value, 50), 1)
	add("macd_histogram", compareBias(s.MACD.Histogram, 0), 1)
	add("macd_slope", compareBias(s.MACD.Histogram, s.MACD.PrevHistogram), 1)
	add("stochastic", compareBias(s.Stochastic.K, 50), 1)
	add("adx_direction", compareBias(s.ADX.PlusDI, s.ADX.MinusDI), 1)

	switch s.Ichimoku.Position {
	case indicators.CloudAbove:
		add("ichimoku", market.Bullish, 1)
	case indicators.CloudBelow:
		add("ichimoku", market.Bearish, 1)
	}

	return votes
}

func compareBias(a, b float64) market.Bias {
	switch {
	case a > b:
		return market.Bullish
	case a < b:
		return market.Bearish
	default:
		return market.Neutral
	}
}

func classifyTrend(bullishPct float64) TrendClass {
	bearishPct := 100 - bullishPct
	switch {
	case bullishPct >= StrongTrendVotePct:
		return StrongBullish
	case bullishPct >= TrendVotePct:
		return TrendBullish
	case bearishPct >= StrongTrendVotePct:
		return StrongBearish
	case bearishPct >= TrendVotePct:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

func scoreTechnical(s indicators.Snapshot, trend TrendClass, bullishPct float64) (float64, []string) {
	score := 50.0
	var signals []string

	agreement := bullishPct
	if trend.Bias() == market.Bearish {
		agreement = 100 - bullishPct
	}
	if trend.Bias() != market.Neutral {
		score += (agreement - 50) * AgreementBonusFactor
		signals = append(signals, fmt.Sprintf("%s trend with %.0f%% vote agreement", trend, agreement))
	}

	bias := trend.Bias()
	if bias != market.Neutral && compareBias(s.MACD.Histogram, 0) == bias {
		score += ConfirmationBonus
		signals = append(signals, "MACD histogram confirms trend")
	}
	if s.ADX.ADX > ADXTrendingLevel {
		score += ConfirmationBonus
		signals = append(signals, fmt.Sprintf("ADX %.1f shows a trending market", s.ADX.ADX))
	}
	if s.ADX.ADX > ADXStrongLevel {
		score += ConfirmationBonus
	}
	if bias != market.Neutral && compareBias(s.Price, s.Bollinger.Middle) == bias {
		score += ConfirmationBonus
		signals = append(signals, "price on the trend side of the Bollinger middle band")
	}
	if s.Bollinger.Squeeze {
		signals = append(signals, "Bollinger squeeze")
	}
	if s.RSI.Signal == indicators.SignalOverbought || s.RSI.Signal == indicators.SignalOversold {
		signals = append(signals, "RSI "+s.RSI.Signal)
	}

	return market.Round(market.Clamp(score, 0, 100), 2), signals
}
