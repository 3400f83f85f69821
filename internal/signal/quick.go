package signal

import (
	"fmt"
	"strings"

	"forex-signal-engine/internal/analysis"
	"forex-signal-engine/internal/confluence"
	"forex-signal-engine/internal/market"
)

// QuickResult is the lightweight three-lane score the scanner ranks symbols by
type QuickResult struct {
	Symbol     string              `json:"symbol"`
	Timeframe  market.Timeframe    `json:"timeframe"`
	Price      float64             `json:"price"`
	Change24h  float64             `json:"change24h"`
	Trend      analysis.TrendClass `json:"trend"`
	Confluence *confluence.Result  `json:"confluence"`
}

// QuickScore runs the technical, smart money and multi-timeframe lanes on the primary timeframe
// and combines them with the quick weights. No predictor or risk state is involved.
func (e *Engine) QuickScore(symbol string, series market.MultiTimeframeSeries) (*QuickResult, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	tf := e.config.PrimaryTimeframe
	if err := series.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s series: %w", symbol, err)
	}
	primary := series[tf]
	if len(primary) < analysis.SmartMoneyMinBars {
		return nil, fmt.Errorf("%s needs %d %s candles, got %d: %w", symbol, analysis.SmartMoneyMinBars, tf, len(primary), ErrInsufficientData)
	}

	technical := e.technical.Analyze(primary, tf)
	sm, err := e.smartMoney.Analyze(primary)
	if err != nil {
		return nil, fmt.Errorf("smart money analysis failed for %s: %w", symbol, err)
	}
	mtf := e.mtf.Analyze(series)

	lanes := confluence.Inputs{
		market.LaneTechnical:      technical.LaneScore(),
		market.LaneSmartMoney:     sm.LaneScore(),
		market.LaneMultiTimeframe: mtf.LaneScore(),
	}

	// 24h change reads best from the finest timeframe available
	changeSeries := primary
	for _, candidate := range market.Timeframes {
		if s := series[candidate]; len(s) > 1 {
			changeSeries = s
			break
		}
	}

	return &QuickResult{
		Symbol:     symbol,
		Timeframe:  tf,
		Price:      primary.Last().Close,
		Change24h:  changeSeries.Change24h(),
		Trend:      technical.Trend,
		Confluence: e.confluence.QuickCheck(lanes),
	}, nil
}
