package analysis

import (
	"forex-signal-engine/internal/market"
)

// StructureEventType is either a break of structure or a change of character
type StructureEventType string

const (
	EventBOS   StructureEventType = "BOS"
	EventCHoCH StructureEventType = "CHoCH"
)

// StructureEvent is a close beyond a prior swing level
type StructureEvent struct {
	Type        StructureEventType `json:"type"`
	Bias        market.Bias        `json:"bias"`
	Level       float64            `json:"level"`
	SwingIndex  int                `json:"swingIndex"`
	CandleIndex int                `json:"candleIndex"`
}

// MarketStructure represents swing structure and the events it produced
type MarketStructure struct {
	Trend       market.Bias         `json:"trend"`
	SwingHighs  []market.SwingPoint `json:"swingHighs"`
	SwingLows   []market.SwingPoint `json:"swingLows"`
	BOS         []StructureEvent    `json:"bos"`
	CHoCH       []StructureEvent    `json:"choch"`
	Events      []StructureEvent    `json:"events"`
	HigherHighs int                 `json:"higherHighs"`
	HigherLows  int                 `json:"higherLows"`
	LowerHighs  int                 `json:"lowerHighs"`
	LowerLows   int                 `json:"lowerLows"`
}

// LastEvent returns the most recent structure event, if any
func (ms *MarketStructure) LastEvent() (StructureEvent, bool) {
	if len(ms.Events) == 0 {
		return StructureEvent{}, false
	}
	return ms.Events[len(ms.Events)-1], true
}

// TrendAnalyzer analyzes market trend and structure
type TrendAnalyzer struct {
	swingLookback int // Candles on each side of a swing point
}

// NewTrendAnalyzer creates a new trend analyzer
func NewTrendAnalyzer(swingLookback int) *TrendAnalyzer {
	if swingLookback <= 0 {
		swingLookback = SwingLookback
	}
	return &TrendAnalyzer{
		swingLookback: swingLookback,
	}
}

// AnalyzeStructure performs market structure analysis
func (ta *TrendAnalyzer) AnalyzeStructure(candles market.Series) *MarketStructure {
	structure := &MarketStructure{Trend: market.Neutral}
	if len(candles) < ta.swingLookback*2+1 {
		return structure
	}

	// 1. Identify swing highs and lows
	structure.SwingHighs = market.FindSwingHighs(candles, ta.swingLookback)
	structure.SwingLows = market.FindSwingLows(candles, ta.swingLookback)

	// 2. Count higher highs, higher lows, etc.
	structure.HigherHighs, structure.LowerHighs = countSequence(structure.SwingHighs)
	structure.HigherLows, structure.LowerLows = countSequence(structure.SwingLows)

	// 3. Determine trend from the two most recent swings of each kind
	structure.Trend = ta.DetermineTrend(structure.SwingHighs, structure.SwingLows)

	// 4. Walk closes for BOS and CHoCH
	structure.Events = ta.DetectBreaks(candles, structure.SwingHighs, structure.SwingLows)
	for _, ev := range structure.Events {
		if ev.Type == EventCHoCH {
			structure.CHoCH = append(structure.CHoCH, ev)
		} else {
			structure.BOS = append(structure.BOS, ev)
		}
	}

	return structure
}

func countSequence(points []market.SwingPoint) (higher, lower int) {
	for i := 1; i < len(points); i++ {
		if points[i].Price > points[i-1].Price {
			higher++
		} else if points[i].Price < points[i-1].Price {
			lower++
		}
	}
	return higher, lower
}

// DetermineTrend is bullish when the last two swing highs and lows both rise,
// bearish when both fall, neutral otherwise
func (ta *TrendAnalyzer) DetermineTrend(highs, lows []market.SwingPoint) market.Bias {
	if len(highs) < 2 || len(lows) < 2 {
		return market.Neutral
	}
	h1, h2 := highs[len(highs)-2].Price, highs[len(highs)-1].Price
	l1, l2 := lows[len(lows)-2].Price, lows[len(lows)-1].Price

	switch {
	case h2 > h1 && l2 > l1:
		return market.Bullish
	case h2 < h1 && l2 < l1:
		return market.Bearish
	default:
		return market.Neutral
	}
}

// DetectBreaks walks the candles in order and records the first close beyond each swing level.
// A swing becomes breakable once it is confirmed, swingLookback bars after it formed.
// Breaking the most recent swing against the running trend is a change of character and flips
// the running trend; every other break is a break of structure.
func (ta *TrendAnalyzer) DetectBreaks(candles market.Series, highs, lows []market.SwingPoint) []StructureEvent {
	var events []StructureEvent

	brokenHigh := make([]bool, len(highs))
	brokenLow := make([]bool, len(lows))
	running := market.Neutral

	for j := range candles {
		closePrice := candles[j].Close

		// Most recent confirmed swings as of bar j
		lastHigh, lastLow := -1, -1
		for i, h := range highs {
			if h.CandleIndex+ta.swingLookback <= j {
				lastHigh = i
			}
		}
		for i, l := range lows {
			if l.CandleIndex+ta.swingLookback <= j {
				lastLow = i
			}
		}

		for i := 0; i <= lastHigh; i++ {
			if brokenHigh[i] || closePrice <= highs[i].Price || j <= highs[i].CandleIndex {
				continue
			}
			brokenHigh[i] = true
			evType := EventBOS
			if running == market.Bearish && i == lastHigh {
				evType = EventCHoCH
			}
			events = append(events, StructureEvent{
				Type:        evType,
				Bias:        market.Bullish,
				Level:       highs[i].Price,
				SwingIndex:  highs[i].CandleIndex,
				CandleIndex: j,
			})
			if evType == EventCHoCH || running == market.Neutral {
				running = market.Bullish
			}
		}

		for i := 0; i <= lastLow; i++ {
			if brokenLow[i] || closePrice >= lows[i].Price || j <= lows[i].CandleIndex {
				continue
			}
			brokenLow[i] = true
			evType := EventBOS
			if running == market.Bullish && i == lastLow {
				evType = EventCHoCH
			}
			events = append(events, StructureEvent{
				Type:        evType,
				Bias:        market.Bearish,
				Level:       lows[i].Price,
				SwingIndex:  lows[i].CandleIndex,
				CandleIndex: j,
			})
			if evType == EventCHoCH || running == market.Neutral {
				running = market.Bearish
			}
		}
	}

	return events
}
