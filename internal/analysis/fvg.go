package analysis

import (
	"time"

	"forex-signal-engine/internal/market"
)

// FVG represents a Fair Value Gap in price action
type FVG struct {
	Bias        market.Bias `json:"bias"`
	TopPrice    float64     `json:"top"`
	BottomPrice float64     `json:"bottom"`
	Size        float64     `json:"size"`
	CreatedAt   time.Time   `json:"createdAt"`
	CandleIndex int         `json:"candleIndex"` // index of the third candle
	Filled      bool        `json:"filled"`
	FilledIndex int         `json:"filledIndex,omitempty"`
}

// FVGDetector detects Fair Value Gaps in candlestick data
type FVGDetector struct {
	minGapMultiple float64 // Minimum gap as a multiple of the local average range
	rangePeriod    int
}

// NewFVGDetector creates a new FVG detector
func NewFVGDetector(minGapMultiple float64) *FVGDetector {
	if minGapMultiple <= 0 {
		minGapMultiple = FVGMinGapMultiple
	}
	return &FVGDetector{
		minGapMultiple: minGapMultiple,
		rangePeriod:    AverageRangePeriod,
	}
}

// DetectFVGs identifies all Fair Value Gaps and marks the ones price has traded back into
func (fd *FVGDetector) DetectFVGs(candles market.Series) []FVG {
	if len(candles) < 3 {
		return nil
	}

	var fvgs []FVG

	for i := 2; i < len(candles); i++ {
		c1 := candles[i-2]
		c3 := candles[i]
		minGap := candles.AverageRange(i, fd.rangePeriod) * fd.minGapMultiple

		// Bullish: candle 1 high below candle 3 low
		if c1.High < c3.Low && c3.Low-c1.High > minGap {
			fvgs = append(fvgs, FVG{
				Bias:        market.Bullish,
				TopPrice:    c3.Low,
				BottomPrice: c1.High,
				Size:        c3.Low - c1.High,
				CreatedAt:   candles[i-1].Time,
				CandleIndex: i,
			})
		}

		// Bearish: candle 1 low above candle 3 high
		if c1.Low > c3.High && c1.Low-c3.High > minGap {
			fvgs = append(fvgs, FVG{
				Bias:        market.Bearish,
				TopPrice:    c1.Low,
				BottomPrice: c3.High,
				Size:        c1.Low - c3.High,
				CreatedAt:   candles[i-1].Time,
				CandleIndex: i,
			})
		}
	}

	for k := range fvgs {
		fd.UpdateFVGStatus(&fvgs[k], candles)
	}
	return fvgs
}

// UpdateFVGStatus marks the gap filled once a candle after its formation trades back into it
func (fd *FVGDetector) UpdateFVGStatus(fvg *FVG, candles market.Series) {
	if fvg.Filled {
		return
	}

	for j := fvg.CandleIndex + 1; j < len(candles); j++ {
		c := candles[j]
		if (fvg.Bias == market.Bullish && c.Low <= fvg.TopPrice) ||
			(fvg.Bias == market.Bearish && c.High >= fvg.BottomPrice) {
			fvg.Filled = true
			fvg.FilledIndex = j
			return
		}
	}
}

// IsPriceInFVG checks if price is within an FVG zone
func (fd *FVGDetector) IsPriceInFVG(price float64, fvg FVG) bool {
	return price >= fvg.BottomPrice && price <= fvg.TopPrice
}

// GetUnfilledFVGs returns only FVGs that haven't been filled yet
func (fd *FVGDetector) GetUnfilledFVGs(fvgs []FVG) []FVG {
	var unfilled []FVG
	for _, fvg := range fvgs {
		if !fvg.Filled {
			unfilled = append(unfilled, fvg)
		}
	}
	return unfilled
}
