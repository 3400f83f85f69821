package analysis

import (
	"fmt"

	"forex-signal-engine/internal/market"
	"forex-signal-engine/internal/patterns"
)

// Recommendation actions of the multi-timeframe lane
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionWait = "WAIT"
)

// TimeframeAnalysis is the composed view of one timeframe
type TimeframeAnalysis struct {
	Timeframe    market.Timeframe    `json:"timeframe"`
	Weight       float64             `json:"weight"`
	Available    bool                `json:"available"`
	Technical    *TechnicalAnalysis  `json:"technical,omitempty"`
	Patterns     *patterns.Result    `json:"patterns,omitempty"`
	SmartMoney   *SmartMoneyAnalysis `json:"smartMoney,omitempty"`
	BullishVotes int                 `json:"bullishVotes"`
	BearishVotes int                 `json:"bearishVotes"`
	Bias         market.Bias         `json:"bias"`
	Strength     float64             `json:"strength"`
}

// Recommendation is the entry suggestion of the multi-timeframe lane
type Recommendation struct {
	Action         string           `json:"action"`
	EntryTimeframe market.Timeframe `json:"entryTimeframe,omitempty"`
	Reason         string           `json:"reason"`
}

// MTFAnalysis is the result of analysing all timeframes of a symbol
type MTFAnalysis struct {
	Timeframes        []TimeframeAnalysis `json:"timeframes"`
	AvailableCount    int                 `json:"availableCount"`
	Aligned           bool                `json:"aligned"`
	AlignedBias       market.Bias         `json:"alignedBias"`
	AlignedTimeframes []market.Timeframe  `json:"alignedTimeframes"`
	ConfluenceScore   float64             `json:"confluenceScore"`
	OverallBias       TrendClass          `json:"overallBias"`
	Recommendation    Recommendation      `json:"recommendation"`
}

// Get returns the analysis of one timeframe
func (m *MTFAnalysis) Get(tf market.Timeframe) (*TimeframeAnalysis, bool) {
	for i := range m.Timeframes {
		if m.Timeframes[i].Timeframe == tf {
			return &m.Timeframes[i], m.Timeframes[i].Available
		}
	}
	return nil, false
}

// LaneScore converts the analysis into a confluence lane
func (m *MTFAnalysis) LaneScore() market.LaneScore {
	if m.AvailableCount == 0 {
		return market.NeutralLane(market.LaneMultiTimeframe)
	}
	confidence := market.ConfidenceFromScore(m.ConfluenceScore)
	if !m.Aligned && confidence == market.ConfidenceHigh {
		confidence = market.ConfidenceMedium
	}
	lane := market.LaneScore{
		Lane:       market.LaneMultiTimeframe,
		Score:      m.ConfluenceScore,
		Bias:       m.OverallBias.Bias(),
		Confidence: confidence,
		Details: map[string]interface{}{
			"aligned":        m.Aligned,
			"alignedCount":   len(m.AlignedTimeframes),
			"overallBias":    m.OverallBias,
			"recommendation": m.Recommendation.Action,
		},
	}
	if m.AvailableCount < len(market.Timeframes) {
		lane.Warnings = append(lane.Warnings, fmt.Sprintf("only %d of %d timeframes available", m.AvailableCount, len(market.Timeframes)))
	}
	return lane
}

// MultiTimeframeAnalyzer composes the technical, pattern and smart money analyzers per timeframe
type MultiTimeframeAnalyzer struct {
	technical  *TechnicalAnalyzer
	patterns   *patterns.PatternDetector
	smartMoney *SmartMoneyAnalyzer
	minBars    int
}

// NewMultiTimeframeAnalyzer creates a multi-timeframe analyzer
func NewMultiTimeframeAnalyzer(technical *TechnicalAnalyzer, detector *patterns.PatternDetector, smartMoney *SmartMoneyAnalyzer) *MultiTimeframeAnalyzer {
	return &MultiTimeframeAnalyzer{
		technical:  technical,
		patterns:   detector,
		smartMoney: smartMoney,
		minBars:    TimeframeMinBars,
	}
}

// Analyze runs every available timeframe of the fixed set and derives alignment, score and bias.
// Timeframes missing from the input or shorter than the minimum are reported as unavailable.
func (a *MultiTimeframeAnalyzer) Analyze(series market.MultiTimeframeSeries) *MTFAnalysis {
	result := &MTFAnalysis{
		Timeframes:  make([]TimeframeAnalysis, 0, len(market.Timeframes)),
		AlignedBias: market.Neutral,
		OverallBias: TrendNeutral,
		Recommendation: Recommendation{
			Action: ActionWait,
			Reason: "no timeframe has enough data",
		},
	}

	// 1. Per-timeframe composition
	for _, tf := range market.Timeframes {
		result.Timeframes = append(result.Timeframes, a.analyzeTimeframe(tf, series[tf]))
	}

	var availWeight, scoreSum, bullWeight, bearWeight float64
	bullCount, bearCount := 0, 0
	for _, tfa := range result.Timeframes {
		if !tfa.Available {
			continue
		}
		result.AvailableCount++
		availWeight += tfa.Weight
		scoreSum += tfa.Weight * tfa.Strength
		switch tfa.Bias {
		case market.Bullish:
			bullWeight += tfa.Weight
			bullCount++
		case market.Bearish:
			bearWeight += tfa.Weight
			bearCount++
		}
	}
	if result.AvailableCount == 0 {
		return result
	}

	// 2. Weighted confluence score over the available timeframes
	result.ConfluenceScore = market.Round(scoreSum/availWeight, 2)

	// 3. Alignment
	switch {
	case bullCount >= AlignmentMinTimeframes:
		result.Aligned, result.AlignedBias = true, market.Bullish
	case bearCount >= AlignmentMinTimeframes:
		result.Aligned, result.AlignedBias = true, market.Bearish
	}
	if result.Aligned {
		for _, tfa := range result.Timeframes {
			if tfa.Available && tfa.Bias == result.AlignedBias {
				result.AlignedTimeframes = append(result.AlignedTimeframes, tfa.Timeframe)
			}
		}
	}

	// 4. Overall bias with margins on the normalized weight difference
	result.OverallBias = overallBias((bullWeight - bearWeight) / availWeight)

	// 5. Recommendation
	result.Recommendation = a.recommend(result)

	return result
}

func (a *MultiTimeframeAnalyzer) analyzeTimeframe(tf market.Timeframe, candles market.Series) TimeframeAnalysis {
	tfa := TimeframeAnalysis{
		Timeframe: tf,
		Weight:    tf.Weight(),
		Bias:      market.Neutral,
	}
	if len(candles) < a.minBars {
		return tfa
	}
	tfa.Available = true

	tfa.Technical = a.technical.Analyze(candles, tf)
	pr := a.patterns.Detect(candles)
	tfa.Patterns = &pr

	// Smart money needs more history than the other lanes and is skipped on short series
	if analysis, err := a.smartMoney.Analyze(candles); err == nil {
		tfa.SmartMoney = analysis
	}
	sm := tfa.SmartMoney

	// Votes
	vote := func(b market.Bias, weight int) {
		switch b {
		case market.Bullish:
			tfa.BullishVotes += weight
		case market.Bearish:
			tfa.BearishVotes += weight
		}
	}
	if tfa.Technical.Trend.IsStrong() {
		vote(tfa.Technical.Trend.Bias(), 2)
	} else {
		vote(tfa.Technical.Trend.Bias(), 1)
	}
	vote(pr.Bias, 1)
	if sm != nil {
		if sm.Confidence == market.ConfidenceHigh {
			vote(sm.Bias, 2)
		} else {
			vote(sm.Bias, 1)
		}
	}
	switch {
	case tfa.BullishVotes > tfa.BearishVotes:
		tfa.Bias = market.Bullish
	case tfa.BearishVotes > tfa.BullishVotes:
		tfa.Bias = market.Bearish
	}

	// Strength is the mean sub-score plus bonuses for strong sub-analyses
	sum, n := tfa.Technical.Score+pr.Score, 2.0
	if sm != nil {
		sum += sm.Score
		n++
	}
	strength := sum / n
	if tfa.Technical.Trend.IsStrong() {
		strength += StrongTrendBonus
	}
	if sm != nil && sm.Confidence == market.ConfidenceHigh {
		strength += HighConfidenceBonus
	}
	tfa.Strength = market.Round(market.Clamp(strength, 0, 100), 2)

	return tfa
}

func overallBias(diff float64) TrendClass {
	switch {
	case diff > StrongBiasMargin:
		return StrongBullish
	case diff > BiasMargin:
		return TrendBullish
	case diff < -StrongBiasMargin:
		return StrongBearish
	case diff < -BiasMargin:
		return TrendBearish
	default:
		return TrendNeutral
	}
}

// recommend picks the entry timeframe as the lowest-weight aligned timeframe, shortest first
func (a *MultiTimeframeAnalyzer) recommend(r *MTFAnalysis) Recommendation {
	if !r.Aligned {
		return Recommendation{
			Action: ActionWait,
			Reason: fmt.Sprintf("timeframes not aligned (%d of %d available)", r.AvailableCount, len(market.Timeframes)),
		}
	}
	if r.ConfluenceScore < MTFRecommendMinScore {
		return Recommendation{
			Action: ActionWait,
			Reason: fmt.Sprintf("confluence %.1f below %.0f", r.ConfluenceScore, MTFRecommendMinScore),
		}
	}

	entry := r.AlignedTimeframes[0]
	for _, tf := range r.AlignedTimeframes[1:] {
		if tf.Weight() < entry.Weight() {
			entry = tf
		}
	}

	action := ActionBuy
	if r.AlignedBias == market.Bearish {
		action = ActionSell
	}
	return Recommendation{
		Action:         action,
		EntryTimeframe: entry,
		Reason:         fmt.Sprintf("%d timeframes aligned %s", len(r.AlignedTimeframes), r.AlignedBias),
	}
}
