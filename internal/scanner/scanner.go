package scanner

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"forex-signal-engine/internal/events"
	"forex-signal-engine/internal/logging"
	"forex-signal-engine/internal/market"
	"forex-signal-engine/internal/signal"
)

// SeriesProvider loads the multi-timeframe history of a symbol
type SeriesProvider interface {
	GetMultiTimeframe(ctx context.Context, symbol string, timeframes []market.Timeframe, limit int) (market.MultiTimeframeSeries, error)
}

// Scorer produces the quick confluence of a symbol
type Scorer interface {
	QuickScore(symbol string, series market.MultiTimeframeSeries) (*signal.QuickResult, error)
}

// DailyResetter clears daily risk accounting
type DailyResetter interface {
	ResetDaily()
}

// ResultStore keeps the latest scan outside the process, typically Redis
type ResultStore interface {
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Scanner scores the instrument universe in bounded batches and keeps the latest result
type Scanner struct {
	config   Config
	universe market.Universe
	provider SeriesProvider
	scorer   Scorer
	resetter DailyResetter
	store    ResultStore
	storeKey string
	storeTTL time.Duration
	bus      *events.EventBus
	cron     *cron.Cron
	running  atomic.Bool
	now      func() time.Time
	logger   *logging.Logger

	mu         sync.RWMutex
	lastResult *ScanResult
}

// Option customises a scanner
type Option func(*Scanner)

// WithUniverse replaces the default instrument universe
func WithUniverse(u market.Universe) Option {
	return func(s *Scanner) { s.universe = u }
}

// WithEvents publishes scan lifecycle events on the bus
func WithEvents(bus *events.EventBus) Option {
	return func(s *Scanner) { s.bus = bus }
}

// WithRiskReset schedules the daily reset of r
func WithRiskReset(r DailyResetter) Option {
	return func(s *Scanner) { s.resetter = r }
}

// WithResultStore mirrors each completed scan under key
func WithResultStore(store ResultStore, key string, ttl time.Duration) Option {
	return func(s *Scanner) {
		s.store = store
		s.storeKey = key
		s.storeTTL = ttl
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Scanner) { s.now = now }
}

// NewScanner creates a new scanner instance
func NewScanner(config Config, provider SeriesProvider, scorer Scorer, opts ...Option) *Scanner {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultConfig().BatchSize
	}
	if config.CandleLimit <= 0 {
		config.CandleLimit = DefaultConfig().CandleLimit
	}
	sc := &Scanner{
		config:   config,
		universe: market.DefaultUniverse,
		provider: provider,
		scorer:   scorer,
		now:      time.Now,
		logger:   logging.WithComponent("scanner"),
	}
	for _, opt := range opts {
		opt(sc)
	}
	return sc
}

// Symbols returns the universe in category order
func (sc *Scanner) Symbols() []string {
	var out []string
	seen := make(map[string]bool)
	for _, cat := range market.Categories {
		for _, s := range sc.universe[cat] {
			s = strings.ToUpper(s)
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	return out
}

// Start schedules the periodic scan and the daily risk reset
func (sc *Scanner) Start() error {
	if !sc.config.Enabled {
		sc.logger.Info("Market scanner is disabled")
		return nil
	}

	c := cron.New(
		cron.WithLocation(time.UTC),
		cron.WithChain(cron.Recover(cronLogger{sc.logger}), cron.SkipIfStillRunning(cronLogger{sc.logger})),
	)
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", sc.config.Interval), sc.scheduledScan); err != nil {
		return fmt.Errorf("register scan task: %w", err)
	}
	if sc.resetter != nil && sc.config.DailyResetSpec != "" {
		if _, err := c.AddFunc(sc.config.DailyResetSpec, sc.dailyReset); err != nil {
			return fmt.Errorf("register daily reset: %w", err)
		}
	}
	sc.cron = c
	c.Start()
	sc.logger.Info("Market scanner started", "interval", sc.config.Interval.String(), "symbols", len(sc.Symbols()))

	go sc.scheduledScan()
	return nil
}

// Stop halts the schedule and waits for a running job to finish
func (sc *Scanner) Stop() {
	if sc.cron == nil {
		return
	}
	<-sc.cron.Stop().Done()
	sc.logger.Info("Market scanner stopped")
}

func (sc *Scanner) scheduledScan() {
	ctx, cancel := context.WithTimeout(context.Background(), sc.config.Timeout)
	defer cancel()
	if _, err := sc.Scan(ctx); err != nil && err != ErrScanInProgress {
		sc.logger.WithError(err).Error("Scheduled scan failed")
		if sc.bus != nil {
			sc.bus.PublishError("scanner", "scheduled scan failed", err)
		}
	}
}

func (sc *Scanner) dailyReset() {
	sc.resetter.ResetDaily()
	sc.logger.Info("Daily risk counters reset")
	if sc.bus != nil {
		sc.bus.Publish(events.Event{Type: events.EventRiskReset, Data: map[string]interface{}{"at": sc.now().UTC()}})
	}
}

// Scan scores every symbol once and replaces the previous result.
// A scan requested while another runs returns ErrScanInProgress. A scan whose
// context ends before it finishes returns the context error and leaves the
// previous result in place.
func (sc *Scanner) Scan(ctx context.Context) (*ScanResult, error) {
	if !sc.running.CompareAndSwap(false, true) {
		sc.logger.Debug("Skipping scan, previous scan still running")
		return nil, ErrScanInProgress
	}
	defer sc.running.Store(false)

	start := sc.now()
	scanID := uuid.New().String()
	symbols := sc.Symbols()
	log := logging.ScanContext(scanID, len(symbols))
	log.Info("Starting market scan", "batch_size", sc.config.BatchSize)
	if sc.bus != nil {
		sc.bus.Publish(events.Event{Type: events.EventScanStarted, Data: map[string]interface{}{"scan_id": scanID, "symbols": len(symbols)}})
	}

	type outcome struct {
		quick *signal.QuickResult
		err   error
	}
	outcomes := make([]outcome, len(symbols))

	// Batches of BatchSize run concurrently; the next batch starts when the previous one is done
	for from := 0; from < len(symbols); from += sc.config.BatchSize {
		if ctx.Err() != nil {
			break
		}
		to := from + sc.config.BatchSize
		if to > len(symbols) {
			to = len(symbols)
		}

		var g errgroup.Group
		for i := from; i < to; i++ {
			i := i
			g.Go(func() error {
				outcomes[i].quick, outcomes[i].err = sc.scanSymbol(ctx, symbols[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	// A partial pass would replace a complete result with error entries
	if err := ctx.Err(); err != nil {
		log.Warn("Scan cancelled, keeping previous result", "error", err)
		return nil, fmt.Errorf("scan cancelled: %w", err)
	}

	result := &ScanResult{
		ScanID:         scanID,
		StartTime:      start,
		SymbolsScanned: len(symbols),
		Opportunities:  []Opportunity{},
		Watchlist:      []Opportunity{},
		Errors:         []ErrorEntry{},
		Heatmap:        make(Heatmap),
	}
	for i, o := range outcomes {
		symbol := symbols[i]
		if o.err != nil {
			result.Errors = append(result.Errors, ErrorEntry{Symbol: symbol, Error: o.err.Error()})
			continue
		}
		opp := sc.opportunity(o.quick, start)
		cat := opp.Category
		if result.Heatmap[cat] == nil {
			result.Heatmap[cat] = make(map[string]HeatmapCell)
		}
		result.Heatmap[cat][symbol] = HeatmapCell{
			Score:      opp.Score,
			Direction:  opp.Direction,
			Change24h:  opp.Change24h,
			ColorClass: ColorClass(opp.Score, opp.Direction, sc.config.OpportunityScore),
		}

		switch {
		case opp.Score >= sc.config.OpportunityScore:
			result.Opportunities = append(result.Opportunities, opp)
		case opp.Score >= sc.config.WatchlistScore:
			result.Watchlist = append(result.Watchlist, opp)
		}
	}
	sortByScore(result.Opportunities)
	sortByScore(result.Watchlist)

	result.EndTime = sc.now()
	result.Duration = result.EndTime.Sub(start)

	sc.mu.Lock()
	sc.lastResult = result
	sc.mu.Unlock()

	if sc.store != nil {
		if err := sc.store.SetJSON(ctx, sc.storeKey, result, sc.storeTTL); err != nil {
			log.WithError(err).Debug("Failed to mirror scan result")
		}
	}
	if sc.bus != nil {
		sc.bus.PublishScanCompleted(scanID, len(symbols), len(result.Opportunities), len(result.Watchlist), len(result.Errors), result.Duration)
	}

	log.WithDuration(result.Duration).Info("Scan completed",
		"opportunities", len(result.Opportunities),
		"watchlist", len(result.Watchlist),
		"errors", len(result.Errors))
	return result, nil
}

// scanSymbol loads history and scores one symbol
func (sc *Scanner) scanSymbol(ctx context.Context, symbol string) (*signal.QuickResult, error) {
	series, err := sc.provider.GetMultiTimeframe(ctx, symbol, nil, sc.config.CandleLimit)
	if err != nil {
		return nil, err
	}
	return sc.scorer.QuickScore(symbol, series)
}

func (sc *Scanner) opportunity(q *signal.QuickResult, at time.Time) Opportunity {
	conf := q.Confluence
	reasons := conf.Reasons
	if len(reasons) > maxReasons {
		reasons = reasons[:maxReasons]
	}
	return Opportunity{
		Symbol:       q.Symbol,
		Category:     sc.universe.CategoryOf(q.Symbol),
		Score:        conf.TotalScore,
		Grade:        conf.Grade,
		Direction:    conf.Direction,
		Confidence:   conf.Confidence,
		CurrentPrice: q.Price,
		Change24h:    q.Change24h,
		Trend:        string(q.Trend),
		Reason:       strings.Join(reasons, "; "),
		ScannedAt:    at,
	}
}

func sortByScore(opps []Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		return opps[i].Score > opps[j].Score
	})
}

// GetLastResult returns the most recent scan result, or nil before the first scan
func (sc *Scanner) GetLastResult() *ScanResult {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.lastResult
}

// IsRunning reports whether a scan is in flight
func (sc *Scanner) IsRunning() bool {
	return sc.running.Load()
}

// Config returns the scanner configuration
func (sc *Scanner) Config() Config {
	return sc.config
}

// cronLogger adapts the component logger to cron.Logger
type cronLogger struct {
	l *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debug(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.WithError(err).Error(msg, keysAndValues...)
}
