package llm

import (
	"fmt"
	"sort"
	"strings"

	"forex-signal-engine/internal/market"
)

// SystemPromptSignal asks for a single structured trade proposal
const SystemPromptSignal = `You are an expert forex and CFD trading analyst. You receive a multi-lane analysis of one instrument
(technical, pattern, smart money, multi-timeframe, fundamental, sentiment, volume) with a weighted confluence score.
Decide whether the analysis supports a trade.

Your response must be valid JSON with exactly this structure:
{
  "recommendation": "BUY" | "SELL" | "NO_TRADE",
  "confidence": 0-100,
  "entry": number,
  "stopLoss": number,
  "takeProfit1": number,
  "takeProfit2": number,
  "takeProfit3": number,
  "riskRewardRatio": number,
  "reasoning": "brief explanation",
  "keyFactors": ["string"],
  "risks": ["string"],
  "invalidation": "price action that invalidates the idea",
  "timeframe": "intraday" | "swing" | "position",
  "marketCondition": "trending" | "ranging" | "volatile"
}

Rules:
- Only recommend BUY or SELL when the confluence direction agrees and the confluence score is at least 70.
- Always provide a stop loss. The first take profit must be at least 2x the stop distance from entry.
- Use NO_TRADE when lanes conflict or a high-impact event is imminent.`

// BuildSignalPrompt formats the analysis payload for the signal request
func BuildSignalPrompt(p Payload) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Instrument: %s (%s)\n", p.Symbol, market.CategoryOf(p.Symbol))
	fmt.Fprintf(&b, "Primary timeframe: %s\n", p.Timeframe)
	fmt.Fprintf(&b, "Current price: %.5f\n", p.CurrentPrice)
	if p.ATR > 0 {
		fmt.Fprintf(&b, "ATR(14): %.5f\n", p.ATR)
	}
	b.WriteString("\n")

	if p.Confluence != nil {
		c := p.Confluence
		fmt.Fprintf(&b, "=== CONFLUENCE ===\nScore: %.0f  Grade: %s  Direction: %s  Confidence: %.0f\n",
			c.TotalScore, c.Grade, c.Direction, c.Confidence)
		for _, row := range c.Breakdown {
			fmt.Fprintf(&b, "- %-15s score %5.1f  weight %.2f  bias %s\n", row.Component, row.Score, row.Weight, row.Bias)
		}
		if len(c.Reasons) > 0 {
			fmt.Fprintf(&b, "Reasons: %s\n", strings.Join(c.Reasons, "; "))
		}
		if len(c.Warnings) > 0 {
			fmt.Fprintf(&b, "Warnings: %s\n", strings.Join(c.Warnings, "; "))
		}
		b.WriteString("\n")
	}

	if len(p.Lanes) > 0 {
		b.WriteString("=== LANE DETAILS ===\n")
		for _, lane := range market.Lanes {
			ls, ok := p.Lanes[lane]
			if !ok || len(ls.Details) == 0 {
				continue
			}
			fmt.Fprintf(&b, "%s: %s\n", lane, formatDetails(ls.Details))
		}
		b.WriteString("\n")
	}

	if len(p.Levels) > 0 {
		b.WriteString("=== KEY LEVELS ===\n")
		names := make([]string, 0, len(p.Levels))
		for name := range p.Levels {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&b, "- %s: %.5f\n", name, p.Levels[name])
		}
		b.WriteString("\n")
	}

	b.WriteString("Respond with the JSON object only.")
	return b.String()
}

// formatDetails renders a detail map with sorted keys so prompts are reproducible
func formatDetails(details map[string]interface{}) string {
	keys := make([]string, 0, len(details))
	for k := range details {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		switch v := details[k].(type) {
		case float64:
			parts = append(parts, fmt.Sprintf("%s=%.4g", k, v))
		default:
			parts = append(parts, fmt.Sprintf("%s=%v", k, v))
		}
	}
	return strings.Join(parts, ", ")
}
