package llm

import (
	"context"
	"fmt"
	"strings"

	"forex-signal-engine/internal/market"
	"forex-signal-engine/internal/risk"
)

// StopATRMultiple places the rule-based stop this many ATRs from entry
const StopATRMultiple = 1.5

// RuleBasedPredictor derives a proposal from the confluence result alone. It is used when
// no AI provider is configured.
type RuleBasedPredictor struct{}

// NewRuleBasedPredictor creates the offline predictor
func NewRuleBasedPredictor() *RuleBasedPredictor {
	return &RuleBasedPredictor{}
}

// Predict trades in the confluence direction with an ATR stop and the standard take-profit ladder
func (r *RuleBasedPredictor) Predict(_ context.Context, payload Payload) Prediction {
	pred := Prediction{Outcome: OutcomeOK, Source: "rule-based", Attempts: 1}

	c := payload.Confluence
	if c == nil {
		pred.Proposal = NoTrade("no confluence result")
		return pred
	}
	dir, ok := market.DirectionFromBias(c.Direction)
	if !ok {
		pred.Proposal = NoTrade("confluence has no direction")
		return pred
	}
	if payload.ATR <= 0 || payload.CurrentPrice <= 0 {
		pred.Proposal = NoTrade("no volatility estimate for stop placement")
		return pred
	}

	entry := payload.CurrentPrice
	dist := payload.ATR * StopATRMultiple
	stop := entry - dist
	rec := RecommendBuy
	if dir == market.Sell {
		stop = entry + dist
		rec = RecommendSell
	}
	stop = market.Round(stop, 5)
	tps := risk.LadderTakeProfits(dir, entry, stop, [3]float64{})

	reasons := c.Reasons
	if len(reasons) == 0 {
		reasons = []string{fmt.Sprintf("confluence %.0f %s", c.TotalScore, c.Direction)}
	}
	risks := c.Warnings
	if risks == nil {
		risks = []string{}
	}

	pred.Proposal = Proposal{
		Recommendation:  rec,
		Confidence:      c.Confidence,
		Entry:           entry,
		StopLoss:        stop,
		TakeProfit1:     tps[0],
		TakeProfit2:     tps[1],
		TakeProfit3:     tps[2],
		RiskRewardRatio: risk.RiskReward(entry, stop, tps[0]),
		Reasoning:       fmt.Sprintf("Rule-based %s: %s", rec, strings.Join(reasons, "; ")),
		KeyFactors:      reasons,
		Risks:           risks,
		Invalidation:    fmt.Sprintf("close beyond %.5f", stop),
		Timeframe:       string(payload.Timeframe),
		MarketCondition: "trending",
	}
	return pred
}
