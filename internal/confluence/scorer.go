package confluence

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"forex-signal-engine/internal/market"
)

// Grade is the letter grade of a confluence result
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeNone  Grade = "NONE"
)

// Thresholds
const (
	GradeAPlusScore     = 80.0
	GradeAScore         = 70.0
	DirectionMargin     = 1.2 // winning side must exceed the other by this factor
	StrongLaneScore     = 60.0
	WeakLaneScore       = 40.0
	AgreementLanes      = 5 // lanes above StrongLaneScore needed for the agreement bonus
	AgreementBonus      = 5.0
	WeakLanePenalty     = 5.0
	WeightSumTolerance  = 0.01
	DefaultMinimumScore = GradeAScore
)

// ErrInvalidWeights is returned when lane weights do not sum to 1
var ErrInvalidWeights = errors.New("confluence weights must sum to 1.0")

// Weights maps each lane to its share of the total score
type Weights map[market.Lane]float64

// DefaultWeights returns the full seven-lane weighting
func DefaultWeights() Weights {
	return Weights{
		market.LaneTechnical:      0.25,
		market.LanePattern:        0.15,
		market.LaneSmartMoney:     0.20,
		market.LaneMultiTimeframe: 0.20,
		market.LaneFundamental:    0.10,
		market.LaneSentiment:      0.05,
		market.LaneVolume:         0.05,
	}
}

// QuickWeights returns the three-lane weighting used by the scanner
func QuickWeights() Weights {
	return Weights{
		market.LaneTechnical:      0.40,
		market.LaneSmartMoney:     0.35,
		market.LaneMultiTimeframe: 0.25,
	}
}

func (w Weights) sum() float64 {
	total := 0.0
	for _, v := range w {
		total += v
	}
	return total
}

func (w Weights) clone() Weights {
	out := make(Weights, len(w))
	for k, v := range w {
		out[k] = v
	}
	return out
}

// Inputs holds the lane scores of one analysis run. A missing lane scores as neutral 50.
type Inputs map[market.Lane]market.LaneScore

// Component is one row of the explainability breakdown
type Component struct {
	Component market.Lane `json:"component"`
	Score     float64     `json:"score"`
	Weight    float64     `json:"weight"`
	Weighted  float64     `json:"weighted"`
	Bias      market.Bias `json:"bias"`
}

// Result is the combined confluence of all lanes
type Result struct {
	TotalScore    float64     `json:"totalScore"`
	Grade         Grade       `json:"grade"`
	Valid         bool        `json:"valid"`
	Direction     market.Bias `json:"direction"`
	Confidence    float64     `json:"confidence"`
	BullishWeight float64     `json:"bullishWeight"`
	BearishWeight float64     `json:"bearishWeight"`
	Breakdown     []Component `json:"breakdown"`
	Reasons       []string    `json:"reasons"`
	Warnings      []string    `json:"warnings"`
}

// Lane returns the breakdown row of a lane
func (r *Result) Lane(lane market.Lane) (Component, bool) {
	for _, c := range r.Breakdown {
		if c.Component == lane {
			return c, true
		}
	}
	return Component{}, false
}

// Detector calculates weighted confluence across analysis lanes
type Detector struct {
	mu       sync.RWMutex
	weights  Weights
	quick    Weights
	minScore float64
}

// NewDetector creates a detector with the default weights
func NewDetector() *Detector {
	return &Detector{
		weights:  DefaultWeights(),
		quick:    QuickWeights(),
		minScore: DefaultMinimumScore,
	}
}

// Calculate combines every lane into the total score, grade, direction and confidence
func (d *Detector) Calculate(in Inputs) *Result {
	d.mu.RLock()
	weights, minScore := d.weights, d.minScore
	d.mu.RUnlock()

	r := combine(in, weights, minScore)

	// Confidence adjustments
	strong, weak := 0, 0
	for _, c := range r.Breakdown {
		if c.Score > StrongLaneScore {
			strong++
		}
		if c.Score < WeakLaneScore {
			weak++
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s lane weak (%.0f)", c.Component, c.Score))
		}
	}
	confidence := r.TotalScore
	if strong >= AgreementLanes {
		confidence += AgreementBonus
		r.Reasons = append(r.Reasons, fmt.Sprintf("%d lanes above %.0f", strong, StrongLaneScore))
	}
	confidence -= float64(weak) * WeakLanePenalty
	r.Confidence = market.Clamp(confidence, 0, 100)

	// Lane warnings surface in the combined result
	for _, lane := range market.Lanes {
		if ls, ok := in[lane]; ok {
			r.Warnings = append(r.Warnings, ls.Warnings...)
		}
	}

	return r
}

// QuickCheck scores only technical, smart money and multi-timeframe lanes
func (d *Detector) QuickCheck(in Inputs) *Result {
	d.mu.RLock()
	weights, minScore := d.quick, d.minScore
	d.mu.RUnlock()

	r := combine(in, weights, minScore)
	r.Confidence = r.TotalScore
	return r
}

func combine(in Inputs, weights Weights, minScore float64) *Result {
	r := &Result{
		Breakdown: make([]Component, 0, len(weights)),
		Reasons:   []string{},
		Warnings:  []string{},
	}

	total := 0.0
	for _, lane := range market.Lanes {
		w, ok := weights[lane]
		if !ok {
			continue
		}
		ls, ok := in[lane]
		if !ok {
			ls = market.NeutralLane(lane)
		}
		score := market.Clamp(ls.Score, 0, 100)
		weighted := score * w
		total += weighted

		r.Breakdown = append(r.Breakdown, Component{
			Component: lane,
			Score:     score,
			Weight:    w,
			Weighted:  market.Round(weighted, 2),
			Bias:      ls.Bias,
		})

		switch ls.Bias {
		case market.Bullish:
			r.BullishWeight += weighted
		case market.Bearish:
			r.BearishWeight += weighted
		}
		if score > StrongLaneScore && ls.Bias != market.Neutral {
			r.Reasons = append(r.Reasons, fmt.Sprintf("%s %s (%.0f)", lane, ls.Bias, score))
		}
	}

	r.TotalScore = market.Clamp(math.Round(total), 0, 100)
	r.BullishWeight = market.Round(r.BullishWeight, 2)
	r.BearishWeight = market.Round(r.BearishWeight, 2)
	r.Grade = gradeFor(r.TotalScore)
	r.Valid = r.TotalScore >= minScore
	r.Direction = decideDirection(r.BullishWeight, r.BearishWeight)
	if r.Direction == market.Neutral && (r.BullishWeight > 0 || r.BearishWeight > 0) {
		r.Warnings = append(r.Warnings, "no directional agreement between lanes")
	}

	sort.SliceStable(r.Breakdown, func(i, j int) bool {
		return r.Breakdown[i].Weighted > r.Breakdown[j].Weighted
	})
	return r
}

func gradeFor(score float64) Grade {
	switch {
	case score >= GradeAPlusScore:
		return GradeAPlus
	case score >= GradeAScore:
		return GradeA
	default:
		return GradeNone
	}
}

func decideDirection(bull, bear float64) market.Bias {
	switch {
	case bull > 0 && bull > bear*DirectionMargin:
		return market.Bullish
	case bear > 0 && bear > bull*DirectionMargin:
		return market.Bearish
	default:
		return market.Neutral
	}
}

// SetWeights replaces the full weighting after checking it sums to 1
func (d *Detector) SetWeights(w Weights) error {
	for lane, v := range w {
		if v < 0 {
			return fmt.Errorf("%w: negative weight for %s", ErrInvalidWeights, lane)
		}
	}
	if total := w.sum(); total < 1-WeightSumTolerance || total > 1+WeightSumTolerance {
		return fmt.Errorf("%w, got %.2f", ErrInvalidWeights, total)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.weights = w.clone()
	return nil
}

// Weights returns a copy of the active weighting
func (d *Detector) Weights() Weights {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.weights.clone()
}

// SetMinimumScore adjusts the minimum score for a valid result
func (d *Detector) SetMinimumScore(minScore float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.minScore = minScore
}

// MinimumScore returns the score a result needs to be valid
func (d *Detector) MinimumScore() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.minScore
}
