package analysis

import (
	"math"
	"time"

	"forex-signal-engine/internal/market"
)

// OrderBlock is the last opposite-colour candle before a strong displacement
type OrderBlock struct {
	Bias           market.Bias `json:"bias"`
	High           float64     `json:"high"`
	Low            float64     `json:"low"`
	CandleIndex    int         `json:"candleIndex"`
	CreatedAt      time.Time   `json:"createdAt"`
	Strength       float64     `json:"strength"` // move extent in multiples of the average range
	Mitigated      bool        `json:"mitigated"`
	MitigatedIndex int         `json:"mitigatedIndex,omitempty"`
}

// OrderBlockDetector finds institutional entry zones
type OrderBlockDetector struct {
	moveBars     int
	moveMultiple float64
	rangePeriod  int
}

// NewOrderBlockDetector creates a detector with the default move window and threshold
func NewOrderBlockDetector() *OrderBlockDetector {
	return &OrderBlockDetector{
		moveBars:     OrderBlockMoveBars,
		moveMultiple: OrderBlockMoveMultiple,
		rangePeriod:  AverageRangePeriod,
	}
}

// Detect returns every order block with its mitigation flag
func (d *OrderBlockDetector) Detect(candles market.Series) []OrderBlock {
	var blocks []OrderBlock

	for i := 1; i+d.moveBars < len(candles); i++ {
		c := candles[i]
		next := candles[i+1]
		avgRange := candles.AverageRange(i, d.rangePeriod)
		if avgRange == 0 {
			continue
		}

		// Bullish block: bearish candle followed by a bullish displacement
		if c.IsBearish() && next.IsBullish() {
			extent := 0.0
			for k := 1; k <= d.moveBars; k++ {
				extent = math.Max(extent, candles[i+k].Close-c.High)
			}
			if extent > avgRange*d.moveMultiple {
				blocks = append(blocks, OrderBlock{
					Bias:        market.Bullish,
					High:        c.High,
					Low:         c.Low,
					CandleIndex: i,
					CreatedAt:   c.Time,
					Strength:    market.Round(extent/avgRange, 2),
				})
			}
		}

		// Bearish block: bullish candle followed by a bearish displacement
		if c.IsBullish() && next.IsBearish() {
			extent := 0.0
			for k := 1; k <= d.moveBars; k++ {
				extent = math.Max(extent, c.Low-candles[i+k].Close)
			}
			if extent > avgRange*d.moveMultiple {
				blocks = append(blocks, OrderBlock{
					Bias:        market.Bearish,
					High:        c.High,
					Low:         c.Low,
					CandleIndex: i,
					CreatedAt:   c.Time,
					Strength:    market.Round(extent/avgRange, 2),
				})
			}
		}
	}

	for k := range blocks {
		d.updateMitigation(&blocks[k], candles)
	}
	return blocks
}

// updateMitigation scans every candle after the displacement window for a wick back into the block
func (d *OrderBlockDetector) updateMitigation(ob *OrderBlock, candles market.Series) {
	for j := ob.CandleIndex + d.moveBars + 1; j < len(candles); j++ {
		c := candles[j]
		if (ob.Bias == market.Bullish && c.Low <= ob.High) ||
			(ob.Bias == market.Bearish && c.High >= ob.Low) {
			ob.Mitigated = true
			ob.MitigatedIndex = j
			return
		}
	}
}
