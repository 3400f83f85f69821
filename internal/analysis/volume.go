package analysis

import (
	"fmt"
	"math"

	"forex-signal-engine/internal/indicators"
	"forex-signal-engine/internal/market"
)

// VolumeAnalyzer provides the volume profile and flow lane
type VolumeAnalyzer struct {
	avgPeriod int // Period for average volume calculation
	bins      int
}

// ProfileBin is one price bucket of the volume profile
type ProfileBin struct {
	Low    float64 `json:"low"`
	High   float64 `json:"high"`
	Volume float64 `json:"volume"`
}

// VolumeProfile is the distribution of traded volume over price
type VolumeProfile struct {
	Bins           []ProfileBin `json:"bins"`
	POC            float64      `json:"poc"`
	ValueAreaHigh  float64      `json:"valueAreaHigh"`
	ValueAreaLow   float64      `json:"valueAreaLow"`
	ValueAreaRatio float64      `json:"valueAreaRatio"`
}

// VolumeAnalysis is the full output of the volume lane
type VolumeAnalysis struct {
	Available      bool                  `json:"available"`
	CurrentVolume  float64               `json:"currentVolume"`
	AverageVolume  float64               `json:"averageVolume"`
	VolumeRatio    float64               `json:"volumeRatio"` // Current / Average
	IsHighVolume   bool                  `json:"isHighVolume"`
	Profile        VolumeProfile         `json:"profile"`
	VWAP           indicators.VWAPResult `json:"vwap"`
	OBV            float64               `json:"obv"`
	OBVDivergence  market.Bias           `json:"obvDivergence"`
	MFI            indicators.MFIResult  `json:"mfi"`
	CMF            float64               `json:"cmf"`
	PriceDirection market.Bias           `json:"priceDirection"`
	Checks         map[string]bool       `json:"checks"`
	Confirmed      bool                  `json:"confirmed"`
	Bias           market.Bias           `json:"bias"`
	Score          float64               `json:"score"`
}

// LaneScore converts the analysis into a confluence lane
func (va *VolumeAnalysis) LaneScore() market.LaneScore {
	if !va.Available {
		return market.NeutralLane(market.LaneVolume)
	}
	return market.LaneScore{
		Lane:       market.LaneVolume,
		Score:      va.Score,
		Bias:       va.Bias,
		Confidence: market.ConfidenceFromScore(va.Score),
		Details: map[string]interface{}{
			"poc":           va.Profile.POC,
			"vwap":          va.VWAP.VWAP,
			"confirmed":     va.Confirmed,
			"obvDivergence": va.OBVDivergence,
		},
	}
}

// NewVolumeAnalyzer creates a new volume analyzer
func NewVolumeAnalyzer(avgPeriod int) *VolumeAnalyzer {
	if avgPeriod <= 0 {
		avgPeriod = 20 // Default 20-period average
	}
	return &VolumeAnalyzer{
		avgPeriod: avgPeriod,
		bins:      VolumeProfileBins,
	}
}

// Analyze performs the volume analysis. Short series produce a neutral, unavailable result.
func (va *VolumeAnalyzer) Analyze(candles market.Series) *VolumeAnalysis {
	result := &VolumeAnalysis{
		Bias:          market.Neutral,
		OBVDivergence: market.Neutral,
		Score:         50,
	}
	if len(candles) < VolumeMinBars {
		return result
	}
	result.Available = true

	// 1. Relative volume
	result.CurrentVolume = candles.Last().Vol()
	result.AverageVolume = va.CalculateAverageVolume(candles)
	if result.AverageVolume > 0 {
		result.VolumeRatio = market.Round(result.CurrentVolume/result.AverageVolume, 2)
	}
	result.IsHighVolume = result.VolumeRatio > 2.0

	// 2. Profile, VWAP and flow indicators
	result.Profile = va.BuildProfile(candles)
	result.VWAP = indicators.CalculateVWAP(candles)
	result.OBV = indicators.CalculateOBV(candles)
	result.OBVDivergence = DetectOBVDivergence(candles, OBVDivergenceLookback)
	result.MFI = indicators.CalculateMFI(candles, indicators.MFIPeriod)
	result.CMF = indicators.CalculateCMF(candles, indicators.CMFPeriod)

	// 3. Confirmation checks against the recent price direction
	result.PriceDirection = priceDirection(candles, PriceDirectionLookback)
	va.confirm(result, candles)

	return result
}

// CalculateAverageVolume calculates the average volume over the analyzer period
func (va *VolumeAnalyzer) CalculateAverageVolume(candles market.Series) float64 {
	if len(candles) == 0 {
		return 0
	}

	period := va.avgPeriod
	if len(candles) < period {
		period = len(candles)
	}

	sum := 0.0
	for i := len(candles) - period; i < len(candles); i++ {
		sum += candles[i].Vol()
	}

	return sum / float64(period)
}

// BuildProfile buckets volume by typical price, finds the point of control and expands the
// value area from it toward the heavier neighbour until 70% of volume is covered
func (va *VolumeAnalyzer) BuildProfile(candles market.Series) VolumeProfile {
	hh, ll := candles[0].High, candles[0].Low
	for _, c := range candles {
		hh = math.Max(hh, c.High)
		ll = math.Min(ll, c.Low)
	}
	if hh == ll {
		p := market.Round(hh, 5)
		return VolumeProfile{POC: p, ValueAreaHigh: p, ValueAreaLow: p, ValueAreaRatio: 1}
	}

	step := (hh - ll) / float64(va.bins)
	bins := make([]ProfileBin, va.bins)
	for i := range bins {
		bins[i] = ProfileBin{Low: ll + step*float64(i), High: ll + step*float64(i+1)}
	}

	total := 0.0
	for _, c := range candles {
		idx := int((c.TypicalPrice() - ll) / step)
		if idx >= va.bins {
			idx = va.bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		bins[idx].Volume += c.Vol()
		total += c.Vol()
	}

	poc := 0
	for i := range bins {
		if bins[i].Volume > bins[poc].Volume {
			poc = i
		}
	}

	lo, hi := poc, poc
	covered := bins[poc].Volume
	for covered/total < ValueAreaPercent && (lo > 0 || hi < len(bins)-1) {
		below, above := -1.0, -1.0
		if lo > 0 {
			below = bins[lo-1].Volume
		}
		if hi < len(bins)-1 {
			above = bins[hi+1].Volume
		}
		if above >= below {
			hi++
			covered += bins[hi].Volume
		} else {
			lo--
			covered += bins[lo].Volume
		}
	}

	for i := range bins {
		bins[i].Low = market.Round(bins[i].Low, 5)
		bins[i].High = market.Round(bins[i].High, 5)
	}

	return VolumeProfile{
		Bins:           bins,
		POC:            market.Round((bins[poc].Low+bins[poc].High)/2, 5),
		ValueAreaHigh:  bins[hi].High,
		ValueAreaLow:   bins[lo].Low,
		ValueAreaRatio: market.Round(covered/total, 4),
	}
}

// DetectOBVDivergence compares the last two halves of the lookback window: price making a higher
// high while OBV makes a lower high is bearish, price making a lower low while OBV makes a higher
// low is bullish
func DetectOBVDivergence(candles market.Series, lookback int) market.Bias {
	obv := indicators.CalculateOBVSeries(candles)
	if len(obv) < lookback || lookback < 4 {
		return market.Neutral
	}

	n := len(candles)
	half := lookback / 2
	firstStart, secondStart := n-lookback, n-half

	maxPrice := func(from, to int) (float64, float64) {
		p, o := candles[from].High, obv[from]
		for i := from; i < to; i++ {
			p = math.Max(p, candles[i].High)
			o = math.Max(o, obv[i])
		}
		return p, o
	}
	minPrice := func(from, to int) (float64, float64) {
		p, o := candles[from].Low, obv[from]
		for i := from; i < to; i++ {
			p = math.Min(p, candles[i].Low)
			o = math.Min(o, obv[i])
		}
		return p, o
	}

	p1High, o1High := maxPrice(firstStart, secondStart)
	p2High, o2High := maxPrice(secondStart, n)
	if p2High > p1High && o2High < o1High {
		return market.Bearish
	}

	p1Low, o1Low := minPrice(firstStart, secondStart)
	p2Low, o2Low := minPrice(secondStart, n)
	if p2Low < p1Low && o2Low > o1Low {
		return market.Bullish
	}

	return market.Neutral
}

func priceDirection(candles market.Series, lookback int) market.Bias {
	if len(candles) <= lookback {
		return market.Neutral
	}
	now := candles.Last().Close
	past := candles[len(candles)-1-lookback].Close
	switch {
	case now > past:
		return market.Bullish
	case now < past:
		return market.Bearish
	default:
		return market.Neutral
	}
}

func (va *VolumeAnalyzer) confirm(r *VolumeAnalysis, candles market.Series) {
	obv := indicators.CalculateOBVSeries(candles)
	obvSlope := market.Neutral
	if len(obv) > PriceDirectionLookback {
		obvSlope = compareBias(obv[len(obv)-1], obv[len(obv)-1-PriceDirectionLookback])
	}

	checks := map[string]market.Bias{
		"obv_slope":     obvSlope,
		"cmf":           compareBias(r.CMF, 0),
		"price_vs_vwap": compareBias(candles.Last().Close, r.VWAP.VWAP),
		"mfi":           compareBias(r.MFI.Value, 50),
	}

	r.Checks = make(map[string]bool, len(checks))
	agree, bull, bear := 0, 0, 0
	for name, b := range checks {
		ok := r.PriceDirection != market.Neutral && b == r.PriceDirection
		r.Checks[name] = ok
		if ok {
			agree++
		}
		switch b {
		case market.Bullish:
			bull++
		case market.Bearish:
			bear++
		}
	}
	r.Confirmed = float64(agree)/float64(len(checks)) >= VolumeConfirmationRatio

	// A divergence adds one vote to the side it points to
	switch r.OBVDivergence {
	case market.Bullish:
		bull++
	case market.Bearish:
		bear++
	}

	switch {
	case bull > bear:
		r.Bias = market.Bullish
	case bear > bull:
		r.Bias = market.Bearish
	default:
		r.Bias = market.Neutral
	}

	score := 50 + VolumeVoteScore*math.Abs(float64(bull-bear))
	if r.Confirmed {
		score += VolumeConfirmedBonus
	}
	r.Score = market.Round(market.Clamp(score, 0, 100), 2)
}

// String summarises the analysis for prompts and logs
func (va *VolumeAnalysis) String() string {
	return fmt.Sprintf("POC %.5f, VA %.5f-%.5f, VWAP %.5f, MFI %.1f, CMF %.3f, confirmed=%v",
		va.Profile.POC, va.Profile.ValueAreaLow, va.Profile.ValueAreaHigh, va.VWAP.VWAP, va.MFI.Value, va.CMF, va.Confirmed)
}
