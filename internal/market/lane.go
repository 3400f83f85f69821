package market

// Lane names one of the seven independent analysis lanes
type Lane string

const (
	LaneTechnical      Lane = "technical"
	LanePattern        Lane = "pattern"
	LaneSmartMoney     Lane = "smartMoney"
	LaneMultiTimeframe Lane = "multiTimeframe"
	LaneFundamental    Lane = "fundamental"
	LaneSentiment      Lane = "sentiment"
	LaneVolume         Lane = "volume"
)

// Lanes lists every lane in scoring order
var Lanes = []Lane{
	LaneTechnical,
	LanePattern,
	LaneSmartMoney,
	LaneMultiTimeframe,
	LaneFundamental,
	LaneSentiment,
	LaneVolume,
}

// Confidence labels
const (
	ConfidenceHigh   = "HIGH"
	ConfidenceMedium = "MEDIUM"
	ConfidenceLow    = "LOW"
)

// LaneScore is the output of one analysis lane
type LaneScore struct {
	Lane       Lane                   `json:"lane"`
	Score      float64                `json:"score"`
	Bias       Bias                   `json:"bias"`
	Confidence string                 `json:"confidence"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Warnings   []string               `json:"warnings,omitempty"`
}

// NeutralLane returns the default lane used when data is unavailable
func NeutralLane(lane Lane) LaneScore {
	return LaneScore{
		Lane:       lane,
		Score:      50,
		Bias:       Neutral,
		Confidence: ConfidenceLow,
	}
}

// ConfidenceFromScore derives a confidence label from a 0-100 score
func ConfidenceFromScore(score float64) string {
	switch {
	case score >= 75:
		return ConfidenceHigh
	case score >= 60:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}
