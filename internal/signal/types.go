package signal

import (
	"time"

	"forex-signal-engine/internal/ai/llm"
	"forex-signal-engine/internal/ai/sentiment"
	"forex-signal-engine/internal/analysis"
	"forex-signal-engine/internal/confluence"
	"forex-signal-engine/internal/fundamental"
	"forex-signal-engine/internal/market"
	"forex-signal-engine/internal/patterns"
	"forex-signal-engine/internal/risk"
)

// Status is the terminal state of one pipeline run
type Status string

const (
	StatusProcessing    Status = "PROCESSING"
	StatusError         Status = "ERROR"
	StatusNoSignal      Status = "NO_SIGNAL"
	StatusAIError       Status = "AI_ERROR"
	StatusInvalidSignal Status = "INVALID_SIGNAL"
	StatusRiskBlocked   Status = "RISK_BLOCKED"
	StatusSuccess       Status = "SUCCESS"
)

// Stage names one step of the pipeline
type Stage string

const (
	StageTechnical      Stage = "TechnicalAnalysis"
	StagePatterns       Stage = "PatternDetection"
	StageSmartMoney     Stage = "SmartMoneyAnalysis"
	StageMultiTimeframe Stage = "MultiTimeframeAnalysis"
	StageFundamental    Stage = "FundamentalAnalysis"
	StageSentiment      Stage = "SentimentAnalysis"
	StageVolume         Stage = "VolumeAnalysis"
	StageConfluence     Stage = "ConfluenceScoring"
	StageAIPrediction   Stage = "AIPrediction"
	StageValidation     Stage = "RuleValidation"
	StageRiskGate       Stage = "RiskGate"
)

// Stage outcomes
const (
	StageCompleted = "completed"
	StageFailed    = "failed"
)

// StageRecord reports how one stage ended
type StageRecord struct {
	Stage    Stage         `json:"stage"`
	Outcome  string        `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Note     string        `json:"note,omitempty"`
}

// SignalStatus is the live state of an emitted signal
type SignalStatus string

const (
	SignalActive     SignalStatus = "ACTIVE"
	SignalTP1Hit     SignalStatus = "TP1_HIT"
	SignalTP2Hit     SignalStatus = "TP2_HIT"
	SignalTP3Hit     SignalStatus = "TP3_HIT"
	SignalStoppedOut SignalStatus = "STOPPED_OUT"
)

// IsTerminal reports whether no further transition is possible
func (s SignalStatus) IsTerminal() bool {
	return s == SignalStoppedOut || s == SignalTP3Hit
}

// Request is the input of one pipeline run
type Request struct {
	Symbol      string                      `json:"symbol"`
	Series      market.MultiTimeframeSeries `json:"series"`
	Timeframe   market.Timeframe            `json:"timeframe,omitempty"`
	Fundamental *fundamental.Data           `json:"fundamental,omitempty"`
	Sentiment   *sentiment.Data             `json:"sentiment,omitempty"`
	Now         time.Time                   `json:"now,omitempty"`
}

// Analysis is the full per-lane snapshot attached to every result
type Analysis struct {
	Timeframe      market.Timeframe             `json:"timeframe"`
	CurrentPrice   float64                      `json:"currentPrice"`
	ATR            float64                      `json:"atr"`
	Technical      *analysis.TechnicalAnalysis  `json:"technical,omitempty"`
	Patterns       *patterns.Result             `json:"patterns,omitempty"`
	SmartMoney     *analysis.SmartMoneyAnalysis `json:"smartMoney,omitempty"`
	MultiTimeframe *analysis.MTFAnalysis        `json:"multiTimeframe,omitempty"`
	Volume         *analysis.VolumeAnalysis     `json:"volume,omitempty"`
	Lanes          confluence.Inputs            `json:"lanes"`
	Levels         map[string]float64           `json:"levels,omitempty"`
}

// Signal is a validated, risk-admitted trade recommendation
type Signal struct {
	ID                  string                 `json:"id"`
	Symbol              string                 `json:"symbol"`
	Direction           market.Direction       `json:"direction"`
	Grade               confluence.Grade       `json:"grade"`
	Confidence          float64                `json:"confidence"`
	Entry               float64                `json:"entry"`
	StopLoss            float64                `json:"stopLoss"`
	TakeProfit1         float64                `json:"takeProfit1"`
	TakeProfit2         float64                `json:"takeProfit2"`
	TakeProfit3         float64                `json:"takeProfit3"`
	RiskReward          float64                `json:"riskReward"`
	RiskRewards         [3]float64             `json:"riskRewards"`
	Sizing              risk.Sizing            `json:"sizing"`
	ConfluenceScore     float64                `json:"confluenceScore"`
	ConfluenceBreakdown []confluence.Component `json:"confluenceBreakdown"`
	Analysis            *Analysis              `json:"analysis,omitempty"`
	Reasoning           string                 `json:"reasoning"`
	KeyFactors          []string               `json:"keyFactors"`
	Risks               []string               `json:"risks"`
	Invalidation        string                 `json:"invalidation,omitempty"`
	Timeframe           market.Timeframe       `json:"timeframe"`
	Source              string                 `json:"source"`
	Status              SignalStatus           `json:"status"`
	LastPrice           float64                `json:"lastPrice,omitempty"`
	CreatedAt           time.Time              `json:"createdAt"`
	UpdatedAt           time.Time              `json:"updatedAt"`
}

// TakeProfits returns the three take-profit levels
func (s *Signal) TakeProfits() [3]float64 {
	return [3]float64{s.TakeProfit1, s.TakeProfit2, s.TakeProfit3}
}

// Result is returned by every pipeline run. Callers branch on Status.
type Result struct {
	Status     Status             `json:"status"`
	Reason     string             `json:"reason"`
	Error      string             `json:"error,omitempty"`
	Symbol     string             `json:"symbol"`
	Confluence *confluence.Result `json:"confluence,omitempty"`
	Analysis   *Analysis          `json:"analysis,omitempty"`
	Prediction *llm.Prediction    `json:"prediction,omitempty"`
	RiskGate   *risk.Decision     `json:"riskGate,omitempty"`
	Signal     *Signal            `json:"signal,omitempty"`
	Stages     []StageRecord      `json:"stages"`
	Timestamp  time.Time          `json:"timestamp"`
	Duration   time.Duration      `json:"duration"`
}
