package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"forex-signal-engine/internal/circuit"
	"forex-signal-engine/internal/confluence"
	"forex-signal-engine/internal/logging"
	"forex-signal-engine/internal/market"
)

// Recommendation is the trade decision of a proposal
type Recommendation string

const (
	RecommendBuy     Recommendation = "BUY"
	RecommendSell    Recommendation = "SELL"
	RecommendNoTrade Recommendation = "NO_TRADE"
)

// Direction maps BUY/SELL onto a trade direction
func (r Recommendation) Direction() (market.Direction, bool) {
	switch r {
	case RecommendBuy:
		return market.Buy, true
	case RecommendSell:
		return market.Sell, true
	default:
		return "", false
	}
}

// Outcome tags the result of a prediction
type Outcome string

const (
	OutcomeOK        Outcome = "OK"
	OutcomeMalformed Outcome = "MALFORMED"
	OutcomeFailed    Outcome = "FAILED"
)

// Payload is the structured analysis handed to the predictor
type Payload struct {
	Symbol       string             `json:"symbol"`
	Timeframe    market.Timeframe   `json:"timeframe"`
	CurrentPrice float64            `json:"currentPrice"`
	ATR          float64            `json:"atr"`
	Confluence   *confluence.Result `json:"confluence"`
	Lanes        confluence.Inputs  `json:"lanes"`
	Levels       map[string]float64 `json:"levels,omitempty"`
}

// Proposal is a typed trade proposal
type Proposal struct {
	Recommendation  Recommendation `json:"recommendation"`
	Confidence      float64        `json:"confidence"`
	Entry           float64        `json:"entry"`
	StopLoss        float64        `json:"stopLoss"`
	TakeProfit1     float64        `json:"takeProfit1"`
	TakeProfit2     float64        `json:"takeProfit2"`
	TakeProfit3     float64        `json:"takeProfit3"`
	RiskRewardRatio float64        `json:"riskRewardRatio"`
	Reasoning       string         `json:"reasoning"`
	KeyFactors      []string       `json:"keyFactors"`
	Risks           []string       `json:"risks"`
	Invalidation    string         `json:"invalidation"`
	Timeframe       string         `json:"timeframe"`
	MarketCondition string         `json:"marketCondition"`
}

// TakeProfits returns the three take-profit levels
func (p Proposal) TakeProfits() [3]float64 {
	return [3]float64{p.TakeProfit1, p.TakeProfit2, p.TakeProfit3}
}

// NoTrade is the safe default proposal
func NoTrade(reason string) Proposal {
	return Proposal{
		Recommendation: RecommendNoTrade,
		Reasoning:      reason,
		KeyFactors:     []string{},
		Risks:          []string{},
	}
}

// Prediction is the tagged result of Predict. Proposal is always usable: on
// Malformed and Failed outcomes it is the NO_TRADE default and Err is set.
type Prediction struct {
	Outcome  Outcome       `json:"outcome"`
	Proposal Proposal      `json:"proposal"`
	Err      error         `json:"-"`
	Raw      string        `json:"raw,omitempty"`
	Source   string        `json:"source"`
	Attempts int           `json:"attempts"`
	Latency  time.Duration `json:"latency"`
}

// Error returns the error message, or empty for OK predictions
func (p Prediction) Error() string {
	if p.Err == nil {
		return ""
	}
	return p.Err.Error()
}

// Predictor turns an analysis payload into a trade proposal
type Predictor interface {
	Predict(ctx context.Context, payload Payload) Prediction
}

// PredictorConfig bounds the external call
type PredictorConfig struct {
	Timeout        time.Duration `json:"timeout" yaml:"timeout" default:"45s"`
	MaxRetries     uint64        `json:"max_retries" yaml:"max_retries" default:"3"`
	InitialBackoff time.Duration `json:"initial_backoff" yaml:"initial_backoff" default:"500ms"`
	MaxBackoff     time.Duration `json:"max_backoff" yaml:"max_backoff" default:"5s"`
}

// DefaultPredictorConfig returns default configuration
func DefaultPredictorConfig() PredictorConfig {
	return PredictorConfig{
		Timeout:        45 * time.Second,
		MaxRetries:     3,
		InitialBackoff: 500 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

// AIPredictor asks an external language model for a proposal
type AIPredictor struct {
	client  Completer
	config  PredictorConfig
	source  string
	breaker *circuit.Breaker
	logger  *logging.Logger
}

// NewAIPredictor creates a predictor around a completion client
func NewAIPredictor(client Completer, config PredictorConfig, source string) *AIPredictor {
	return &AIPredictor{
		client: client,
		config: config,
		source: source,
		logger: logging.WithComponent("ai-predictor"),
	}
}

// WithBreaker short-circuits calls while the provider is failing
func (p *AIPredictor) WithBreaker(b *circuit.Breaker) *AIPredictor {
	p.breaker = b
	return p
}

// Predict builds the prompt, calls the model with retries under a timeout and parses the reply
func (p *AIPredictor) Predict(ctx context.Context, payload Payload) Prediction {
	start := time.Now()
	if p.breaker != nil {
		if ok, reason := p.breaker.Allow(); !ok {
			return Prediction{
				Outcome:  OutcomeFailed,
				Err:      fmt.Errorf("%w: %s", ErrCircuitOpen, reason),
				Proposal: NoTrade("AI service unavailable"),
				Source:   p.source,
			}
		}
	}
	caller := ctx
	ctx, cancel := context.WithTimeout(ctx, p.config.Timeout)
	defer cancel()

	prompt := BuildSignalPrompt(payload)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.config.InitialBackoff
	b.MaxInterval = p.config.MaxBackoff
	b.MaxElapsedTime = p.config.Timeout

	attempts := 0
	var raw string
	op := func() error {
		attempts++
		resp, err := p.client.Complete(ctx, SystemPromptSignal, prompt)
		if err != nil {
			if IsRetryable(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		raw = resp
		return nil
	}
	notify := func(err error, wait time.Duration) {
		p.logger.Warn("AI request failed, retrying", "symbol", payload.Symbol, "error", err, "wait", wait.String())
	}

	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, p.config.MaxRetries), ctx), notify)
	pred := Prediction{Source: p.source, Attempts: attempts, Latency: time.Since(start)}
	if err != nil {
		pred.Outcome = OutcomeFailed
		pred.Err = fmt.Errorf("AI request failed after %d attempt(s): %w", attempts, err)
		pred.Proposal = NoTrade("AI service unavailable")
		p.logger.Error("AI prediction failed", "symbol", payload.Symbol, "attempts", attempts, "error", err)
		if p.breaker != nil {
			// A caller that went away says nothing about the provider
			if caller.Err() != nil || errors.Is(err, context.Canceled) {
				p.breaker.Abort()
			} else {
				p.breaker.RecordFailure(err)
			}
		}
		return pred
	}

	// A malformed reply still proves the provider is reachable
	if p.breaker != nil {
		p.breaker.RecordSuccess()
	}
	pred.Raw = raw
	proposal, perr := ParseProposal(raw)
	if perr != nil {
		pred.Outcome = OutcomeMalformed
		pred.Err = perr
		pred.Proposal = NoTrade("unparsable AI reply")
		p.logger.Warn("AI reply malformed", "symbol", payload.Symbol, "error", perr)
		return pred
	}

	pred.Outcome = OutcomeOK
	pred.Proposal = proposal
	return pred
}

// ErrCircuitOpen is returned while the provider breaker is open
var ErrCircuitOpen = errors.New("AI circuit open")

// ErrMalformedReply wraps every parse failure of a model reply
var ErrMalformedReply = errors.New("malformed AI reply")

var codeBlock = regexp.MustCompile("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?```$")

// stripMarkdownCodeBlock removes markdown code block formatting from LLM responses
func stripMarkdownCodeBlock(response string) string {
	response = strings.TrimSpace(response)
	if matches := codeBlock.FindStringSubmatch(response); len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return response
}

// number accepts JSON numbers, numeric strings and null
type number float64

func (n *number) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "null" || s == `""` {
		*n = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("invalid number %q", s)
	}
	*n = number(v)
	return nil
}

type wireProposal struct {
	Recommendation  string   `json:"recommendation"`
	Confidence      number   `json:"confidence"`
	Entry           number   `json:"entry"`
	StopLoss        number   `json:"stopLoss"`
	TakeProfit1     number   `json:"takeProfit1"`
	TakeProfit2     number   `json:"takeProfit2"`
	TakeProfit3     number   `json:"takeProfit3"`
	RiskRewardRatio number   `json:"riskRewardRatio"`
	Reasoning       string   `json:"reasoning"`
	KeyFactors      []string `json:"keyFactors"`
	Risks           []string `json:"risks"`
	Invalidation    string   `json:"invalidation"`
	Timeframe       string   `json:"timeframe"`
	MarketCondition string   `json:"marketCondition"`
}

// ParseProposal decodes a model reply into a typed proposal
func ParseProposal(raw string) (Proposal, error) {
	clean := stripMarkdownCodeBlock(raw)
	if i, j := strings.Index(clean, "{"), strings.LastIndex(clean, "}"); i >= 0 && j > i {
		clean = clean[i : j+1]
	}

	var w wireProposal
	if err := json.Unmarshal([]byte(clean), &w); err != nil {
		return Proposal{}, fmt.Errorf("%w: %v", ErrMalformedReply, err)
	}

	rec, err := normalizeRecommendation(w.Recommendation)
	if err != nil {
		return Proposal{}, err
	}

	p := Proposal{
		Recommendation:  rec,
		Confidence:      market.Clamp(float64(w.Confidence), 0, 100),
		Entry:           float64(w.Entry),
		StopLoss:        float64(w.StopLoss),
		TakeProfit1:     float64(w.TakeProfit1),
		TakeProfit2:     float64(w.TakeProfit2),
		TakeProfit3:     float64(w.TakeProfit3),
		RiskRewardRatio: float64(w.RiskRewardRatio),
		Reasoning:       w.Reasoning,
		KeyFactors:      w.KeyFactors,
		Risks:           w.Risks,
		Invalidation:    w.Invalidation,
		Timeframe:       w.Timeframe,
		MarketCondition: w.MarketCondition,
	}
	if p.KeyFactors == nil {
		p.KeyFactors = []string{}
	}
	if p.Risks == nil {
		p.Risks = []string{}
	}
	// Some models answer on a 0-1 scale
	if p.Confidence > 0 && p.Confidence <= 1 {
		p.Confidence *= 100
	}
	return p, nil
}

func normalizeRecommendation(s string) (Recommendation, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "BUY", "LONG":
		return RecommendBuy, nil
	case "SELL", "SHORT":
		return RecommendSell, nil
	case "NO_TRADE", "NO TRADE", "NONE", "WAIT", "HOLD", "NEUTRAL":
		return RecommendNoTrade, nil
	default:
		return "", fmt.Errorf("%w: unknown recommendation %q", ErrMalformedReply, s)
	}
}
