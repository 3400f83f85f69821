package signal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"forex-signal-engine/internal/ai/llm"
	"forex-signal-engine/internal/ai/sentiment"
	"forex-signal-engine/internal/analysis"
	"forex-signal-engine/internal/confluence"
	"forex-signal-engine/internal/events"
	"forex-signal-engine/internal/fundamental"
	"forex-signal-engine/internal/logging"
	"forex-signal-engine/internal/market"
	"forex-signal-engine/internal/patterns"
	"forex-signal-engine/internal/risk"
)

// ErrInsufficientData is reported when the primary series cannot support a full run
var ErrInsufficientData = errors.New("insufficient data")

// Config holds the pipeline thresholds
type Config struct {
	MinConfluence    float64          `json:"min_confluence" yaml:"min_confluence" default:"70" validate:"gte=70,lte=100"`
	MinRiskReward    float64          `json:"min_risk_reward" yaml:"min_risk_reward" default:"2" validate:"gt=0"`
	PrimaryTimeframe market.Timeframe `json:"primary_timeframe" yaml:"primary_timeframe" default:"H4"`
}

// DefaultConfig returns the default pipeline thresholds
func DefaultConfig() Config {
	return Config{
		MinConfluence:    confluence.DefaultMinimumScore,
		MinRiskReward:    2,
		PrimaryTimeframe: market.H4,
	}
}

// Engine orchestrates the analysis lanes, the confluence gate, the predictor and the risk gate
// for one symbol per call. Analysis is side-effect free; the only shared state is the risk manager.
type Engine struct {
	config      Config
	technical   *analysis.TechnicalAnalyzer
	patterns    *patterns.PatternDetector
	smartMoney  *analysis.SmartMoneyAnalyzer
	mtf         *analysis.MultiTimeframeAnalyzer
	volume      *analysis.VolumeAnalyzer
	fundamental *fundamental.Analyzer
	sentiment   *sentiment.Analyzer
	confluence  *confluence.Detector
	predictor   llm.Predictor
	risk        *risk.Manager
	events      events.Publisher
	now         func() time.Time
	logger      *logging.Logger
}

// Option customises an Engine
type Option func(*Engine)

// WithEvents publishes pipeline outcomes to the given publisher
func WithEvents(p events.Publisher) Option {
	return func(e *Engine) { e.events = p }
}

// WithConfluenceDetector replaces the default confluence detector
func WithConfluenceDetector(d *confluence.Detector) Option {
	return func(e *Engine) { e.confluence = d }
}

// WithClock sets the clock used for timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates a signal engine. A nil predictor falls back to the rule-based predictor
// and a nil risk manager to one with the default configuration.
func NewEngine(config Config, predictor llm.Predictor, riskManager *risk.Manager, opts ...Option) *Engine {
	if !config.PrimaryTimeframe.Valid() {
		config.PrimaryTimeframe = market.H4
	}
	if predictor == nil {
		predictor = llm.NewRuleBasedPredictor()
	}
	if riskManager == nil {
		riskManager = risk.NewManager(risk.DefaultConfig())
	}
	technical := analysis.NewTechnicalAnalyzer()
	detector := patterns.NewPatternDetector()
	smartMoney := analysis.NewSmartMoneyAnalyzer()

	e := &Engine{
		config:      config,
		technical:   technical,
		patterns:    detector,
		smartMoney:  smartMoney,
		mtf:         analysis.NewMultiTimeframeAnalyzer(technical, detector, smartMoney),
		volume:      analysis.NewVolumeAnalyzer(analysis.VolumeMinBars),
		fundamental: fundamental.NewAnalyzer(),
		sentiment:   sentiment.NewAnalyzer(),
		confluence:  confluence.NewDetector(),
		predictor:   predictor,
		risk:        riskManager,
		now:         time.Now,
		logger:      logging.WithComponent("signal-engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.confluence.SetMinimumScore(config.MinConfluence)
	return e
}

// Config returns the engine thresholds
func (e *Engine) Config() Config {
	return e.config
}

// Confluence exposes the detector so callers can share weights with the scanner
func (e *Engine) Confluence() *confluence.Detector {
	return e.confluence
}

// run tracks stage timings for one pipeline run
type run struct {
	result *Result
	start  time.Time
}

func (r *run) stage(s Stage, fn func() error) error {
	t := time.Now()
	err := fn()
	rec := StageRecord{Stage: s, Outcome: StageCompleted, Duration: time.Since(t)}
	if err != nil {
		rec.Outcome = StageFailed
		rec.Note = err.Error()
	}
	r.result.Stages = append(r.result.Stages, rec)
	return err
}

func (r *run) finish(status Status, reason string) *Result {
	r.result.Status = status
	r.result.Reason = reason
	r.result.Duration = time.Since(r.start)
	return r.result
}

// Analyze runs the full pipeline for one symbol. It never returns nil and never panics on bad
// input; every outcome is reported through Result.Status.
func (e *Engine) Analyze(ctx context.Context, req Request) *Result {
	now := req.Now
	if now.IsZero() {
		now = e.now()
	}
	symbol := strings.ToUpper(strings.TrimSpace(req.Symbol))
	tf := req.Timeframe
	if !tf.Valid() {
		tf = e.config.PrimaryTimeframe
	}

	r := &run{
		start: time.Now(),
		result: &Result{Status: StatusProcessing, Symbol: symbol, Timestamp: now},
	}
	log := logging.FromContext(ctx).WithComponent("signal-engine").WithField("symbol", symbol)

	res := e.analyze(ctx, r, req, symbol, tf, now, log)
	e.publish(res)
	return res
}

func (e *Engine) analyze(ctx context.Context, r *run, req Request, symbol string, tf market.Timeframe, now time.Time, log *logging.Logger) *Result {
	// 0. Input checks
	if symbol == "" {
		r.result.Error = "symbol is required"
		return r.finish(StatusError, "symbol is required")
	}
	if err := req.Series.Validate(); err != nil {
		r.result.Error = err.Error()
		return r.finish(StatusError, "invalid price series")
	}
	primary := req.Series[tf]
	if len(primary) < analysis.SmartMoneyMinBars {
		err := fmt.Errorf("%s needs %d %s candles, got %d: %w", symbol, analysis.SmartMoneyMinBars, tf, len(primary), ErrInsufficientData)
		r.result.Error = err.Error()
		log.Warn("Insufficient data", "timeframe", string(tf), "candles", len(primary))
		return r.finish(StatusError, "insufficient data")
	}

	a := &Analysis{
		Timeframe:    tf,
		CurrentPrice: primary.Last().Close,
		Lanes:        make(confluence.Inputs, len(market.Lanes)),
	}
	r.result.Analysis = a

	// 1. Analysis lanes, strictly in order
	lanes := []struct {
		stage Stage
		fn    func() error
	}{
		{StageTechnical, func() error {
			a.Technical = e.technical.Analyze(primary, tf)
			a.ATR = a.Technical.Indicators.ATR
			a.Lanes[market.LaneTechnical] = a.Technical.LaneScore()
			return nil
		}},
		{StagePatterns, func() error {
			res := e.patterns.Detect(primary)
			a.Patterns = &res
			a.Lanes[market.LanePattern] = res.LaneScore()
			return nil
		}},
		{StageSmartMoney, func() error {
			sm, err := e.smartMoney.Analyze(primary)
			if err != nil {
				return err
			}
			a.SmartMoney = sm
			a.Lanes[market.LaneSmartMoney] = sm.LaneScore()
			return nil
		}},
		{StageMultiTimeframe, func() error {
			a.MultiTimeframe = e.mtf.Analyze(req.Series)
			a.Lanes[market.LaneMultiTimeframe] = a.MultiTimeframe.LaneScore()
			return nil
		}},
		{StageFundamental, func() error {
			a.Lanes[market.LaneFundamental] = e.fundamental.Analyze(symbol, req.Fundamental, now)
			return nil
		}},
		{StageSentiment, func() error {
			a.Lanes[market.LaneSentiment] = e.sentiment.Analyze(symbol, req.Sentiment)
			return nil
		}},
		{StageVolume, func() error {
			a.Volume = e.volume.Analyze(primary)
			a.Lanes[market.LaneVolume] = a.Volume.LaneScore()
			return nil
		}},
	}
	for _, lane := range lanes {
		if err := ctx.Err(); err != nil {
			r.result.Error = err.Error()
			return r.finish(StatusError, "analysis cancelled")
		}
		if err := r.stage(lane.stage, lane.fn); err != nil {
			r.result.Error = err.Error()
			log.WithError(err).Warn("Analysis stage failed", "stage", string(lane.stage))
			return r.finish(StatusError, fmt.Sprintf("%s failed", lane.stage))
		}
	}
	a.Levels = keyLevels(a)

	// 2. Confluence gate
	var conf *confluence.Result
	_ = r.stage(StageConfluence, func() error {
		conf = e.confluence.Calculate(a.Lanes)
		return nil
	})
	r.result.Confluence = conf
	if !conf.Valid {
		return r.finish(StatusNoSignal, fmt.Sprintf("confluence %.0f below minimum %.0f", conf.TotalScore, e.config.MinConfluence))
	}

	// 3. Predictor. No risk state is touched while this call is in flight.
	var pred llm.Prediction
	_ = r.stage(StageAIPrediction, func() error {
		pred = e.predictor.Predict(ctx, llm.Payload{
			Symbol:       symbol,
			Timeframe:    tf,
			CurrentPrice: a.CurrentPrice,
			ATR:          a.ATR,
			Confluence:   conf,
			Lanes:        a.Lanes,
			Levels:       a.Levels,
		})
		return pred.Err
	})
	r.result.Prediction = &pred
	switch {
	case pred.Outcome != llm.OutcomeOK:
		r.result.Error = pred.Error()
		log.Warn("Predictor failed", "outcome", string(pred.Outcome), "error", pred.Error())
		return r.finish(StatusAIError, fmt.Sprintf("AI prediction %s", strings.ToLower(string(pred.Outcome))))
	case pred.Proposal.Recommendation == llm.RecommendNoTrade:
		reason := "AI recommends no trade"
		if pred.Proposal.Reasoning != "" {
			reason += ": " + pred.Proposal.Reasoning
		}
		return r.finish(StatusNoSignal, reason)
	}

	// 4. Hard rules
	var trade validatedTrade
	if err := r.stage(StageValidation, func() error {
		var verr error
		trade, verr = e.validate(pred.Proposal, conf, a.CurrentPrice)
		return verr
	}); err != nil {
		return r.finish(StatusInvalidSignal, err.Error())
	}

	// 5. Risk gate, strictly after the AI reply
	id := uuid.New().String()
	var decision risk.Decision
	if err := r.stage(StageRiskGate, func() error {
		decision = e.risk.Admit(risk.Request{
			ID:        id,
			Symbol:    symbol,
			Direction: trade.direction,
			Entry:     trade.entry,
			StopLoss:  trade.stop,
		})
		if !decision.Allowed {
			return errors.New(decision.Reason)
		}
		return nil
	}); err != nil {
		r.result.RiskGate = &decision
		log.Info("Signal blocked by risk gate", "gate", decision.Gate, "reason", decision.Reason)
		return r.finish(StatusRiskBlocked, decision.Reason)
	}
	r.result.RiskGate = &decision

	// 6. Signal
	sig := e.buildSignal(id, symbol, tf, now, trade, conf, a, pred, decision)
	r.result.Signal = sig
	logging.SignalContext(symbol, string(sig.Direction), conf.TotalScore).Info("Signal generated",
		"signal_id", sig.ID, "grade", string(sig.Grade), "entry", sig.Entry, "stop_loss", sig.StopLoss, "lots", sig.Sizing.Lots)
	return r.finish(StatusSuccess, fmt.Sprintf("%s %s grade %s", sig.Direction, symbol, sig.Grade))
}

type validatedTrade struct {
	direction market.Direction
	entry     float64
	stop      float64
	tps       [3]float64
	rr        [3]float64
}

// validate applies the hard rules to a BUY/SELL proposal
func (e *Engine) validate(p llm.Proposal, conf *confluence.Result, price float64) (validatedTrade, error) {
	var v validatedTrade
	dir, ok := p.Recommendation.Direction()
	if !ok {
		return v, fmt.Errorf("unsupported recommendation %q", p.Recommendation)
	}
	v.direction = dir

	var problems []string
	if conf.TotalScore < e.config.MinConfluence {
		problems = append(problems, fmt.Sprintf("confluence %.0f below %.0f", conf.TotalScore, e.config.MinConfluence))
	}
	if want, ok := market.DirectionFromBias(conf.Direction); ok && want != dir {
		problems = append(problems, fmt.Sprintf("%s contradicts %s confluence", dir, conf.Direction))
	}

	v.entry = p.Entry
	if v.entry <= 0 {
		v.entry = price
	}
	v.stop = p.StopLoss
	if v.stop <= 0 {
		problems = append(problems, "stop loss is missing")
	}
	if p.TakeProfit1 <= 0 {
		problems = append(problems, "take profit 1 is missing")
	}
	if len(problems) > 0 {
		return v, errors.New(strings.Join(problems, "; "))
	}

	sign := 1.0
	if dir == market.Sell {
		sign = -1
	}
	if (v.entry-v.stop)*sign <= 0 {
		problems = append(problems, fmt.Sprintf("stop loss %.5f is on the wrong side of entry %.5f", v.stop, v.entry))
	}
	for i, tp := range p.TakeProfits() {
		if tp > 0 && (tp-v.entry)*sign <= 0 {
			problems = append(problems, fmt.Sprintf("take profit %d %.5f is on the wrong side of entry %.5f", i+1, tp, v.entry))
		}
	}
	if len(problems) > 0 {
		return v, errors.New(strings.Join(problems, "; "))
	}

	v.tps = risk.LadderTakeProfits(dir, v.entry, v.stop, p.TakeProfits())
	for i, tp := range v.tps {
		v.rr[i] = risk.RiskReward(v.entry, v.stop, tp)
	}
	if v.rr[0] < e.config.MinRiskReward {
		return v, fmt.Errorf("risk/reward %.2f on take profit 1 is below %.2f", v.rr[0], e.config.MinRiskReward)
	}
	return v, nil
}

func (e *Engine) buildSignal(id, symbol string, tf market.Timeframe, now time.Time, t validatedTrade,
	conf *confluence.Result, a *Analysis, pred llm.Prediction, decision risk.Decision) *Signal {
	p := pred.Proposal
	confidence := p.Confidence
	if confidence <= 0 {
		confidence = conf.Confidence
	}
	return &Signal{
		ID:                  id,
		Symbol:              symbol,
		Direction:           t.direction,
		Grade:               conf.Grade,
		Confidence:          market.Round(confidence, 1),
		Entry:               t.entry,
		StopLoss:            t.stop,
		TakeProfit1:         t.tps[0],
		TakeProfit2:         t.tps[1],
		TakeProfit3:         t.tps[2],
		RiskReward:          t.rr[0],
		RiskRewards:         t.rr,
		Sizing:              decision.Sizing,
		ConfluenceScore:     conf.TotalScore,
		ConfluenceBreakdown: conf.Breakdown,
		Analysis:            a,
		Reasoning:           p.Reasoning,
		KeyFactors:          p.KeyFactors,
		Risks:               p.Risks,
		Invalidation:        p.Invalidation,
		Timeframe:           tf,
		Source:              pred.Source,
		Status:              SignalActive,
		LastPrice:           a.CurrentPrice,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

// keyLevels collects the price levels handed to the predictor
func keyLevels(a *Analysis) map[string]float64 {
	levels := make(map[string]float64)
	if t := a.Technical; t != nil && t.Available {
		levels["ema50"] = t.Indicators.EMA50
		levels["ema200"] = t.Indicators.EMA200
		levels["bollingerUpper"] = t.Indicators.Bollinger.Upper
		levels["bollingerLower"] = t.Indicators.Bollinger.Lower
	}
	if sm := a.SmartMoney; sm != nil {
		levels["equilibrium"] = sm.PremiumDiscount.Equilibrium
		levels["rangeHigh"] = sm.PremiumDiscount.RangeHigh
		levels["rangeLow"] = sm.PremiumDiscount.RangeLow
		above, below := math.Inf(1), math.Inf(-1)
		for _, z := range sm.LiquidityZones {
			if z.Level > a.CurrentPrice && z.Level < above {
				above = z.Level
			}
			if z.Level < a.CurrentPrice && z.Level > below {
				below = z.Level
			}
		}
		if !math.IsInf(above, 1) {
			levels["liquidityAbove"] = above
		}
		if !math.IsInf(below, -1) {
			levels["liquidityBelow"] = below
		}
	}
	if v := a.Volume; v != nil && v.Available {
		levels["poc"] = v.Profile.POC
		levels["vwap"] = v.VWAP.VWAP
	}
	return levels
}

func (e *Engine) publish(res *Result) {
	if e.events == nil {
		return
	}
	score := 0.0
	if res.Confluence != nil {
		score = res.Confluence.TotalScore
	}
	e.events.Publish(events.Event{
		Type:   events.EventAnalysisCompleted,
		Symbol: res.Symbol,
		Data: map[string]interface{}{
			"status":     string(res.Status),
			"reason":     res.Reason,
			"confluence": score,
		},
	})
	if s := res.Signal; s != nil {
		e.events.Publish(events.Event{
			Type:   events.EventSignalGenerated,
			Symbol: s.Symbol,
			Data: map[string]interface{}{
				"signal_id":     s.ID,
				"direction":     string(s.Direction),
				"grade":         string(s.Grade),
				"confluence":    s.ConfluenceScore,
				"entry":         s.Entry,
				"stop_loss":     s.StopLoss,
				"take_profit_1": s.TakeProfit1,
				"timeframe":     string(s.Timeframe),
			},
		})
	}
}
