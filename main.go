package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	"forex-signal-engine/config"
	"forex-signal-engine/internal/ai/llm"
	"forex-signal-engine/internal/ai/sentiment"
	"forex-signal-engine/internal/api"
	"forex-signal-engine/internal/auth"
	"forex-signal-engine/internal/cache"
	"forex-signal-engine/internal/circuit"
	"forex-signal-engine/internal/database"
	"forex-signal-engine/internal/events"
	"forex-signal-engine/internal/fundamental"
	"forex-signal-engine/internal/logging"
	"forex-signal-engine/internal/market"
	"forex-signal-engine/internal/marketdata"
	"forex-signal-engine/internal/metrics"
	"forex-signal-engine/internal/notification"
	"forex-signal-engine/internal/risk"
	"forex-signal-engine/internal/scanner"
	"forex-signal-engine/internal/signal"
	"forex-signal-engine/internal/vault"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML configuration file")
	sample := flag.String("generate-config", "", "write a sample configuration to this path and exit")
	flag.Parse()

	if *sample != "" {
		if err := config.GenerateSampleConfig(*sample); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write sample config: %v\n", err)
			os.Exit(1)
		}
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logCfg := cfg.Logging
	logCfg.Component = "main"
	logger := logging.New(&logCfg)
	logging.SetDefault(logger)
	logger.Info("Structured logging initialized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx, cancel, cfg, logger); err != nil {
		logger.WithError(err).Error("Service stopped with error")
		os.Exit(1)
	}
}

func run(ctx context.Context, cancel context.CancelFunc, cfg *config.Config, logger *logging.Logger) error {
	eventBus := events.NewEventBus()
	logger.Info("Event bus initialized")

	var recorder *metrics.Recorder
	if cfg.Metrics.Enabled {
		recorder = metrics.New()
		recorder.Attach(eventBus)
	}

	if cfg.Kafka.Enabled {
		publisher, err := events.NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			return fmt.Errorf("failed to create kafka publisher: %w", err)
		}
		defer publisher.Close()
		publisher.Attach(eventBus, events.EventSignalGenerated, events.EventSignalStatusChanged, events.EventScanCompleted)
		logger.Info("Kafka publisher attached", "topic", cfg.Kafka.Topic, "brokers", cfg.Kafka.Brokers)
	}

	if cfg.Alerts.Enabled {
		alerts := notification.NewManager(cfg.Alerts)
		alerts.Attach(eventBus)
		logger.Info("Signal alerts enabled", "channels", alerts.Channels())
	}

	var checks []api.HealthCheck

	// Redis backs the candle cache and the last scan result
	var cacheService *cache.CacheService
	if cfg.Redis.Enabled {
		cs, err := cache.NewCacheService(cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to initialize redis cache: %w", err)
		}
		cacheService = cs
		defer cacheService.Close()
		checks = append(checks, api.HealthCheck{Name: "redis", Check: cacheService.Ping})
	}

	// Postgres holds signals and candles
	var (
		db         *database.DB
		signalRepo *database.SignalRepository
		source     marketdata.Source
	)
	if cfg.Database.Enabled {
		var err error
		db, err = database.NewDB(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer db.Close()
		if err := db.RunMigrations(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		signalRepo = database.NewSignalRepository(db)
		candles := database.NewCandleRepository(db)
		if cfg.MarketData.Demo {
			seedCandles(ctx, candles, cfg.MarketData.DemoBars, logger)
		}
		source = candles
		checks = append(checks, api.HealthCheck{Name: "database", Critical: true, Check: db.HealthCheck})
	} else {
		if !cfg.MarketData.Demo {
			return errors.New("no market data source: enable the database or market_data.demo")
		}
		source = marketdata.NewDemoSource(allSymbols(), cfg.MarketData.DemoBars, time.Now().UTC())
		logger.Warn("Database disabled, serving generated demo candles")
	}

	var provider *marketdata.Provider
	if cacheService != nil {
		provider = marketdata.NewProvider(source, cacheService)
	} else {
		provider = marketdata.NewProvider(source, nil)
	}

	vaultClient, err := vault.NewClient(cfg.Vault)
	if err != nil {
		return fmt.Errorf("failed to initialize vault client: %w", err)
	}
	if vaultClient.IsEnabled() {
		checks = append(checks, api.HealthCheck{Name: "vault", Check: vaultClient.Health})
	}

	riskManager := risk.NewManager(cfg.Risk)
	predictor, breaker := buildPredictor(ctx, cfg.AI, vaultClient, eventBus, logger)
	if breaker != nil {
		checks = append(checks, api.HealthCheck{Name: "ai", Check: func(context.Context) error {
			if s := breaker.Stats(); s.State == circuit.StateOpen {
				return fmt.Errorf("circuit open: %s", s.TripReason)
			}
			return nil
		}})
	}
	engine := signal.NewEngine(cfg.Signal, predictor, riskManager, signal.WithEvents(eventBus))

	var registry *signal.Registry
	if signalRepo != nil {
		registry = signal.NewRegistry(signalRepo, riskManager, eventBus)
		active, err := signalRepo.ActiveSignals(ctx)
		if err != nil {
			logger.WithError(err).Warn("Failed to restore active signals")
		} else {
			logger.Info("Restored active signals", "count", registry.Restore(active))
		}
	} else {
		registry = signal.NewRegistry(nil, riskManager, eventBus)
	}

	scanOpts := []scanner.Option{
		scanner.WithEvents(eventBus),
		scanner.WithRiskReset(riskManager),
	}
	if cacheService != nil {
		scanOpts = append(scanOpts, scanner.WithResultStore(cacheService, cache.KeyLastScan, cache.DefaultScanTTL))
	}
	marketScanner := scanner.NewScanner(cfg.Scanner, provider, engine, scanOpts...)

	feed := sentiment.NewFeed(&cfg.Sentiment)
	feed.Start(ctx)

	var authService *auth.Service
	if cfg.Auth.Enabled {
		authService = auth.NewService(cfg.Auth)
		logger.Info("Authentication enabled", "clients", len(cfg.Auth.Clients))
	}

	server := api.NewServer(cfg.Server, api.Deps{
		Engine:       engine,
		Registry:     registry,
		Scanner:      marketScanner,
		Provider:     provider,
		Risk:         riskManager,
		Fundamentals: fundamental.NewStore(),
		Sentiment:    feed,
		Events:       eventBus,
		Metrics:      recorder,
		Auth:         authService,
		Checks:       checks,
	})

	if err := marketScanner.Start(); err != nil {
		return fmt.Errorf("failed to start scanner: %w", err)
	}

	go pruneCandleCache(ctx, provider)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start(ctx)
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	ossignal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Shutting down", "signal", sig.String())
	case runErr = <-serverErr:
	}

	marketScanner.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Error shutting down web server")
	}
	cancel()

	logger.Info("Shutdown complete")
	return runErr
}

// buildPredictor prefers the configured key, then Vault, then the rule-based fallback.
// The breaker is nil when the rule-based predictor is used.
func buildPredictor(ctx context.Context, cfg config.AIConfig, vaultClient *vault.Client, bus *events.EventBus, logger *logging.Logger) (llm.Predictor, *circuit.Breaker) {
	if !cfg.Enabled {
		logger.Info("AI disabled, using rule-based predictor")
		return llm.NewRuleBasedPredictor(), nil
	}

	clientCfg := cfg.Client
	if clientCfg.APIKey == "" && vaultClient.IsEnabled() {
		lookupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		key, err := vaultClient.GetProviderKey(lookupCtx, string(clientCfg.Provider))
		cancel()
		if err != nil {
			logger.WithError(err).Warn("Provider key not found in vault", "provider", clientCfg.Provider)
		} else {
			clientCfg.APIKey = key.APIKey
			if key.Model != "" {
				clientCfg.Model = key.Model
			}
		}
	}

	client := llm.NewClient(&clientCfg)
	if !client.IsConfigured() {
		logger.Warn("No API key for AI provider, using rule-based predictor", "provider", clientCfg.Provider)
		return llm.NewRuleBasedPredictor(), nil
	}
	logger.Info("AI predictor configured", "provider", clientCfg.Provider, "model", clientCfg.Model)
	breaker := circuit.New(string(clientCfg.Provider), cfg.Breaker, circuit.WithEvents(bus))
	return llm.NewAIPredictor(client, cfg.Predictor, string(clientCfg.Provider)).WithBreaker(breaker), breaker
}

func allSymbols() []string {
	var out []string
	for _, cat := range market.Categories {
		out = append(out, market.DefaultUniverse[cat]...)
	}
	return out
}

// seedCandles fills the candle table with generated history for symbols that have none
func seedCandles(ctx context.Context, repo *database.CandleRepository, bars int, logger *logging.Logger) {
	demo := marketdata.NewDemoSource(allSymbols(), bars, time.Now().UTC())
	seeded := 0
	for _, symbol := range demo.Symbols() {
		for _, tf := range market.Timeframes {
			if _, err := repo.Candles(ctx, symbol, tf, 1); err == nil {
				continue
			} else if !errors.Is(err, marketdata.ErrNoData) {
				logger.WithError(err).Warn("Failed to check candle table", "symbol", symbol)
				return
			}
			series, err := demo.Candles(ctx, symbol, tf, bars)
			if err != nil {
				continue
			}
			if err := repo.UpsertCandles(ctx, symbol, tf, series); err != nil {
				logger.WithError(err).Warn("Failed to seed candles", "symbol", symbol, "timeframe", tf)
				return
			}
			seeded++
		}
	}
	if seeded > 0 {
		logger.Info("Seeded demo candles", "series", seeded)
	}
}

func pruneCandleCache(ctx context.Context, provider *marketdata.Provider) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			provider.PruneCache()
		case <-ctx.Done():
			return
		}
	}
}
