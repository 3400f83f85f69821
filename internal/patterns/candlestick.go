package patterns

import "forex-signal-engine/internal/market"

// averageBody returns the mean body size of the candles before the last one
func averageBody(candles market.Series, period int) float64 {
	end := len(candles) - 1
	start := end - period
	if start < 0 {
		start = 0
	}
	if end <= start {
		return candles.Last().Body()
	}
	sum := 0.0
	for _, c := range candles[start:end] {
		sum += c.Body()
	}
	return sum / float64(end-start)
}

// detectCandlestick evaluates the last one to three candles
func (pd *PatternDetector) detectCandlestick(candles market.Series) []Pattern {
	n := len(candles)
	if n == 0 {
		return nil
	}

	avgBody := averageBody(candles, pd.avgBodyPeriod)
	idx := n - 1
	c := candles[idx]

	var found []PatternType
	var prev *market.Candle
	if n >= 2 {
		prev = &candles[n-2]
	}

	// Single candle patterns
	switch {
	case pd.isHammer(c, prev):
		found = append(found, Hammer)
	case pd.isHangingMan(c, prev):
		found = append(found, HangingMan)
	case pd.isShootingStar(c, prev):
		found = append(found, ShootingStar)
	case pd.isInvertedHammer(c, prev):
		found = append(found, InvertedHammer)
	case pd.isDoji(c):
		found = append(found, Doji)
	}
	if pd.isMarubozu(c, avgBody) {
		if c.IsBullish() {
			found = append(found, BullishMarubozu)
		} else {
			found = append(found, BearishMarubozu)
		}
	}

	// Two candle patterns
	if prev != nil {
		p := *prev
		switch {
		case pd.isBullishEngulfing(p, c):
			found = append(found, BullishEngulfing)
		case pd.isBearishEngulfing(p, c):
			found = append(found, BearishEngulfing)
		case pd.isBullishHarami(p, c):
			found = append(found, BullishHarami)
		case pd.isBearishHarami(p, c):
			found = append(found, BearishHarami)
		case pd.isPiercingLine(p, c, avgBody):
			found = append(found, PiercingLine)
		case pd.isDarkCloudCover(p, c, avgBody):
			found = append(found, DarkCloudCover)
		}
	}

	// Three candle patterns
	if n >= 3 {
		c1, c2, c3 := candles[n-3], candles[n-2], candles[n-1]
		switch {
		case pd.isMorningStar(c1, c2, c3):
			found = append(found, MorningStar)
		case pd.isEveningStar(c1, c2, c3):
			found = append(found, EveningStar)
		case pd.isThreeWhiteSoldiers(c1, c2, c3, avgBody):
			found = append(found, ThreeWhiteSoldiers)
		case pd.isThreeBlackCrows(c1, c2, c3, avgBody):
			found = append(found, ThreeBlackCrows)
		}
	}

	patterns := make([]Pattern, 0, len(found))
	for _, t := range found {
		patterns = append(patterns, Pattern{
			Name:        t,
			Category:    CategoryCandlestick,
			Direction:   candlestickDirection(t),
			Reliability: reliability[t],
			CandleIndex: idx,
		})
	}
	return patterns
}

func candlestickDirection(t PatternType) market.Bias {
	switch t {
	case Hammer, InvertedHammer, BullishMarubozu, BullishEngulfing, BullishHarami,
		PiercingLine, MorningStar, ThreeWhiteSoldiers:
		return market.Bullish
	case ShootingStar, HangingMan, BearishMarubozu, BearishEngulfing, BearishHarami,
		DarkCloudCover, EveningStar, ThreeBlackCrows:
		return market.Bearish
	default:
		return market.Neutral
	}
}

// isDoji checks for Doji pattern (indecision)
func (pd *PatternDetector) isDoji(c market.Candle) bool {
	rng := c.Range()
	if rng == 0 {
		return false
	}
	return c.Body()/rng < DojiBodyRatio
}

// hammerShape is a long lower wick with little or no upper wick
func hammerShape(c market.Candle) bool {
	body := c.Body()
	return body > 0 && c.LowerWick() >= body*LongWickMultiple && c.UpperWick() <= body*ShortWickRatio
}

// starShape is a long upper wick with little or no lower wick
func starShape(c market.Candle) bool {
	body := c.Body()
	return body > 0 && c.UpperWick() >= body*LongWickMultiple && c.LowerWick() <= body*ShortWickRatio
}

// isHammer checks for Hammer pattern (bullish reversal after a down candle)
func (pd *PatternDetector) isHammer(c market.Candle, prev *market.Candle) bool {
	if !hammerShape(c) {
		return false
	}
	return prev == nil || prev.IsBearish()
}

// isHangingMan checks for Hanging Man pattern (hammer shape after an up candle)
func (pd *PatternDetector) isHangingMan(c market.Candle, prev *market.Candle) bool {
	return hammerShape(c) && prev != nil && prev.IsBullish()
}

// isShootingStar checks for Shooting Star pattern (bearish reversal after an up candle)
func (pd *PatternDetector) isShootingStar(c market.Candle, prev *market.Candle) bool {
	if !starShape(c) {
		return false
	}
	return prev == nil || prev.IsBullish()
}

// isInvertedHammer checks for Inverted Hammer (star shape after a down candle)
func (pd *PatternDetector) isInvertedHammer(c market.Candle, prev *market.Candle) bool {
	return starShape(c) && prev != nil && prev.IsBearish()
}

// isMarubozu checks for a full-bodied candle well above the average body
func (pd *PatternDetector) isMarubozu(c market.Candle, avgBody float64) bool {
	rng := c.Range()
	if rng == 0 || avgBody == 0 {
		return false
	}
	return c.Body()/rng >= MarubozuBodyRatio && c.Body() >= avgBody*MarubozuAvgBody
}

// isBullishEngulfing checks for Bullish Engulfing pattern
func (pd *PatternDetector) isBullishEngulfing(c1, c2 market.Candle) bool {
	if !c1.IsBearish() || !c2.IsBullish() {
		return false
	}
	// C2 body must completely engulf C1 body
	return c2.Open <= c1.Close && c2.Close >= c1.Open && c2.Body() > c1.Body()
}

// isBearishEngulfing checks for Bearish Engulfing pattern
func (pd *PatternDetector) isBearishEngulfing(c1, c2 market.Candle) bool {
	if !c1.IsBullish() || !c2.IsBearish() {
		return false
	}
	return c2.Open >= c1.Close && c2.Close <= c1.Open && c2.Body() > c1.Body()
}

// isBullishHarami checks for a small bullish candle inside a large bearish body
func (pd *PatternDetector) isBullishHarami(c1, c2 market.Candle) bool {
	if !c1.IsBearish() || !c2.IsBullish() {
		return false
	}
	if c1.Body() < c1.Range()*LongBodyRatio {
		return false
	}
	if c2.Open < c1.Close || c2.Close > c1.Open {
		return false
	}
	return c2.Body() <= c1.Body()*HaramiBodyRatio
}

// isBearishHarami checks for a small bearish candle inside a large bullish body
func (pd *PatternDetector) isBearishHarami(c1, c2 market.Candle) bool {
	if !c1.IsBullish() || !c2.IsBearish() {
		return false
	}
	if c1.Body() < c1.Range()*LongBodyRatio {
		return false
	}
	if c2.Open > c1.Close || c2.Close < c1.Open {
		return false
	}
	return c2.Body() <= c1.Body()*HaramiBodyRatio
}

// isPiercingLine checks for a bullish candle closing above the midpoint of a long bearish body
func (pd *PatternDetector) isPiercingLine(c1, c2 market.Candle, avgBody float64) bool {
	if !c1.IsBearish() || !c2.IsBullish() || c1.Body() < avgBody {
		return false
	}
	mid := (c1.Open + c1.Close) / 2
	return c2.Open <= c1.Close && c2.Close > mid && c2.Close < c1.Open
}

// isDarkCloudCover checks for a bearish candle closing below the midpoint of a long bullish body
func (pd *PatternDetector) isDarkCloudCover(c1, c2 market.Candle, avgBody float64) bool {
	if !c1.IsBullish() || !c2.IsBearish() || c1.Body() < avgBody {
		return false
	}
	mid := (c1.Open + c1.Close) / 2
	return c2.Open >= c1.Close && c2.Close < mid && c2.Close > c1.Open
}

// isMorningStar checks for Morning Star pattern (bullish reversal)
func (pd *PatternDetector) isMorningStar(c1, c2, c3 market.Candle) bool {
	// Candle 1: Long bearish candle
	if !c1.IsBearish() || c1.Body() < c1.Range()*LongBodyRatio {
		return false
	}
	// Candle 2: Small body (indecision)
	if c2.Body() > c1.Body()*StarBodyRatio {
		return false
	}
	// Candle 3: Long bullish candle closing above the midpoint of C1
	if !c3.IsBullish() || c3.Body() < c3.Range()*LongBodyRatio {
		return false
	}
	return c3.Close >= (c1.Open+c1.Close)/2
}

// isEveningStar checks for Evening Star pattern (bearish reversal)
func (pd *PatternDetector) isEveningStar(c1, c2, c3 market.Candle) bool {
	if !c1.IsBullish() || c1.Body() < c1.Range()*LongBodyRatio {
		return false
	}
	if c2.Body() > c1.Body()*StarBodyRatio {
		return false
	}
	if !c3.IsBearish() || c3.Body() < c3.Range()*LongBodyRatio {
		return false
	}
	return c3.Close <= (c1.Open+c1.Close)/2
}

// isThreeWhiteSoldiers checks for three rising bullish candles opening inside the prior body
func (pd *PatternDetector) isThreeWhiteSoldiers(c1, c2, c3 market.Candle, avgBody float64) bool {
	cs := []market.Candle{c1, c2, c3}
	for i, c := range cs {
		if !c.IsBullish() || c.Body() < avgBody*SoldierMinAvgBody || c.UpperWick() > c.Body()*ShortWickRatio*2 {
			return false
		}
		if i > 0 {
			p := cs[i-1]
			if c.Close <= p.Close || c.Open < p.Open || c.Open > p.Close {
				return false
			}
		}
	}
	return true
}

// isThreeBlackCrows checks for three falling bearish candles opening inside the prior body
func (pd *PatternDetector) isThreeBlackCrows(c1, c2, c3 market.Candle, avgBody float64) bool {
	cs := []market.Candle{c1, c2, c3}
	for i, c := range cs {
		if !c.IsBearish() || c.Body() < avgBody*SoldierMinAvgBody || c.LowerWick() > c.Body()*ShortWickRatio*2 {
			return false
		}
		if i > 0 {
			p := cs[i-1]
			if c.Close >= p.Close || c.Open > p.Open || c.Open < p.Close {
				return false
			}
		}
	}
	return true
}
