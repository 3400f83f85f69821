package analysis

import (
	"errors"
	"fmt"

	"forex-signal-engine/internal/market"
)

// ErrInsufficientData is returned when a series is too short for an analysis that cannot degrade
var ErrInsufficientData = errors.New("insufficient data")

// SmartMoneyAnalysis is the structural view of one series
type SmartMoneyAnalysis struct {
	Structure       *MarketStructure `json:"structure"`
	OrderBlocks     []OrderBlock     `json:"orderBlocks"`
	FVGs            []FVG            `json:"fvgs"`
	LiquidityZones  []LiquidityZone  `json:"liquidityZones"`
	PremiumDiscount PremiumDiscount  `json:"premiumDiscount"`
	BullishVotes    int              `json:"bullishVotes"`
	BearishVotes    int              `json:"bearishVotes"`
	Bias            market.Bias      `json:"bias"`
	Confidence      string           `json:"confidence"`
	Score           float64          `json:"score"`
	Reasons         []string         `json:"reasons"`
}

// LaneScore converts the analysis into a confluence lane
func (sm *SmartMoneyAnalysis) LaneScore() market.LaneScore {
	return market.LaneScore{
		Lane:       market.LaneSmartMoney,
		Score:      sm.Score,
		Bias:       sm.Bias,
		Confidence: sm.Confidence,
		Details: map[string]interface{}{
			"structure":       sm.Structure.Trend,
			"premiumDiscount": sm.PremiumDiscount.Zone,
			"orderBlocks":     len(sm.OrderBlocks),
			"fvgs":            len(sm.FVGs),
		},
	}
}

// SmartMoneyAnalyzer derives structure, order blocks, FVGs and liquidity from one series
type SmartMoneyAnalyzer struct {
	trend       *TrendAnalyzer
	orderBlocks *OrderBlockDetector
	fvg         *FVGDetector
	minBars     int
}

// NewSmartMoneyAnalyzer creates an analyzer with the default thresholds
func NewSmartMoneyAnalyzer() *SmartMoneyAnalyzer {
	return &SmartMoneyAnalyzer{
		trend:       NewTrendAnalyzer(SwingLookback),
		orderBlocks: NewOrderBlockDetector(),
		fvg:         NewFVGDetector(FVGMinGapMultiple),
		minBars:     SmartMoneyMinBars,
	}
}

// Analyze requires at least 100 candles and returns ErrInsufficientData otherwise
func (a *SmartMoneyAnalyzer) Analyze(candles market.Series) (*SmartMoneyAnalysis, error) {
	if len(candles) < a.minBars {
		return nil, fmt.Errorf("smart money analysis needs %d candles, got %d: %w", a.minBars, len(candles), ErrInsufficientData)
	}

	result := &SmartMoneyAnalysis{}

	// 1. Market structure
	result.Structure = a.trend.AnalyzeStructure(candles)

	// 2. Order blocks and fair value gaps
	result.OrderBlocks = a.orderBlocks.Detect(candles)
	result.FVGs = a.fvg.DetectFVGs(candles)

	// 3. Liquidity and premium/discount
	result.LiquidityZones = FindLiquidityZones(candles, result.Structure.SwingHighs, result.Structure.SwingLows)
	result.PremiumDiscount = CalculatePremiumDiscount(candles, PremiumDiscountLookback)

	// 4. Weighted vote
	a.vote(result, candles.Last().Close)

	return result, nil
}

func (a *SmartMoneyAnalyzer) vote(r *SmartMoneyAnalysis, price float64) {
	add := func(b market.Bias, weight int, reason string) {
		switch b {
		case market.Bullish:
			r.BullishVotes += weight
		case market.Bearish:
			r.BearishVotes += weight
		default:
			return
		}
		r.Reasons = append(r.Reasons, reason)
	}

	add(r.Structure.Trend, StructureVote, fmt.Sprintf("%s market structure", r.Structure.Trend))
	add(r.PremiumDiscount.Bias, PremiumDiscountVote, fmt.Sprintf("price in %s zone", r.PremiumDiscount.Zone))

	lastEvent, hasEvent := r.Structure.LastEvent()
	if hasEvent && lastEvent.Type == EventCHoCH {
		add(lastEvent.Bias, CHoCHVote, fmt.Sprintf("%s change of character at %.5f", lastEvent.Bias, lastEvent.Level))
	}

	bullOB, bearOB := 0, 0
	for _, ob := range r.OrderBlocks {
		if ob.Mitigated {
			continue
		}
		if ob.Bias == market.Bullish && ob.High <= price {
			bullOB++
		} else if ob.Bias == market.Bearish && ob.Low >= price {
			bearOB++
		}
	}
	switch {
	case bullOB > bearOB:
		add(market.Bullish, OrderBlockVote, fmt.Sprintf("%d unmitigated bullish order blocks below price", bullOB))
	case bearOB > bullOB:
		add(market.Bearish, OrderBlockVote, fmt.Sprintf("%d unmitigated bearish order blocks above price", bearOB))
	}

	winner, loser := r.BullishVotes, r.BearishVotes
	r.Bias = market.Neutral
	switch {
	case r.BullishVotes > r.BearishVotes:
		r.Bias = market.Bullish
	case r.BearishVotes > r.BullishVotes:
		r.Bias = market.Bearish
		winner, loser = r.BearishVotes, r.BullishVotes
	}

	switch {
	case winner > HighConfidenceVotes:
		r.Confidence = market.ConfidenceHigh
	case winner >= MediumConfidenceVotes:
		r.Confidence = market.ConfidenceMedium
	default:
		r.Confidence = market.ConfidenceLow
	}

	score := 50 + SmartMoneyVoteScore*float64(winner-loser)
	if r.Bias != market.Neutral {
		for i := len(r.Structure.Events) - 1; i >= 0; i-- {
			if r.Structure.Events[i].Type == EventBOS {
				if r.Structure.Events[i].Bias == r.Bias {
					score += SmartMoneyConfirmBonus
				}
				break
			}
		}
		for _, f := range r.FVGs {
			if !f.Filled && f.Bias == r.Bias {
				score += SmartMoneyConfirmBonus
				break
			}
		}
	}
	r.Score = market.Round(market.Clamp(score, 0, 100), 2)
}
