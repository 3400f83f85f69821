package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"forex-signal-engine/internal/ai/sentiment"
	"forex-signal-engine/internal/auth"
	"forex-signal-engine/internal/events"
	"forex-signal-engine/internal/fundamental"
	"forex-signal-engine/internal/logging"
	"forex-signal-engine/internal/market"
	"forex-signal-engine/internal/metrics"
	"forex-signal-engine/internal/risk"
	"forex-signal-engine/internal/scanner"
	"forex-signal-engine/internal/signal"
)

// SeriesProvider loads candles for the analyze endpoints
type SeriesProvider interface {
	GetMultiTimeframe(ctx context.Context, symbol string, timeframes []market.Timeframe, limit int) (market.MultiTimeframeSeries, error)
}

// HealthCheck is one dependency probe reported by /api/health.
// A failing critical check turns the response into 503.
type HealthCheck struct {
	Name     string
	Critical bool
	Check    func(ctx context.Context) error
}

// RateLimiter hands out one token bucket per client key
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewRateLimiter creates a limiter allowing perSecond requests with the given burst per key
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Limit(perSecond),
		burst:    burst,
	}
}

// Allow checks if a request is allowed for the given key
func (r *RateLimiter) Allow(key string) bool {
	r.mu.Lock()
	l, ok := r.limiters[key]
	if !ok {
		l = rate.NewLimiter(r.limit, r.burst)
		r.limiters[key] = l
	}
	r.mu.Unlock()
	return l.Allow()
}

// Middleware rejects requests over the limit with 429. Authenticated clients are keyed
// by client id, anonymous ones by remote address.
func (r *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := auth.GetClientID(c)
		if key == "" {
			key = c.ClientIP()
		}
		if !r.Allow(key) {
			errorResponse(c, http.StatusTooManyRequests, "rate limit exceeded")
			c.Abort()
			return
		}
		c.Next()
	}
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host             string        `yaml:"host" json:"host" default:"0.0.0.0"`
	Port             int           `yaml:"port" json:"port" default:"8090" validate:"gt=0,lte=65535"`
	ProductionMode   bool          `yaml:"production_mode" json:"productionMode"`
	AllowedOrigins   []string      `yaml:"allowed_origins" json:"allowedOrigins"`
	ReadTimeout      time.Duration `yaml:"read_timeout" json:"readTimeout" default:"15s"`
	WriteTimeout     time.Duration `yaml:"write_timeout" json:"writeTimeout" default:"90s"`
	IdleTimeout      time.Duration `yaml:"idle_timeout" json:"idleTimeout" default:"60s"`
	AnalyzeRateLimit float64       `yaml:"analyze_rate_limit" json:"analyzeRateLimit" default:"1" validate:"gt=0"`
	AnalyzeBurst     int           `yaml:"analyze_burst" json:"analyzeBurst" default:"5" validate:"gte=1"`
	CandleLimit      int           `yaml:"candle_limit" json:"candleLimit" default:"300" validate:"gte=50"`
}

// DefaultServerConfig returns the default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:             "0.0.0.0",
		Port:             8090,
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8090"},
		ReadTimeout:      15 * time.Second,
		WriteTimeout:     90 * time.Second,
		IdleTimeout:      60 * time.Second,
		AnalyzeRateLimit: 1,
		AnalyzeBurst:     5,
		CandleLimit:      300,
	}
}

// Deps are the services exposed over HTTP. Engine and Risk are required; a nil Auth disables
// authentication.
type Deps struct {
	Engine       *signal.Engine
	Registry     *signal.Registry
	Scanner      *scanner.Scanner
	Provider     SeriesProvider
	Risk         *risk.Manager
	Fundamentals *fundamental.Store
	Sentiment    *sentiment.Feed
	Events       *events.EventBus
	Metrics      *metrics.Recorder
	Auth         *auth.Service
	Checks       []HealthCheck
}

// Server represents the HTTP API server
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	config      ServerConfig
	deps        Deps
	hub         *WSHub
	rateLimiter *RateLimiter
	startedAt   time.Time
	logger      *logging.Logger
}

// NewServer creates a new API server
func NewServer(config ServerConfig, deps Deps) *Server {
	if config.ProductionMode {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}
	if deps.Fundamentals == nil {
		deps.Fundamentals = fundamental.NewStore()
	}
	if deps.Sentiment == nil {
		deps.Sentiment = sentiment.NewFeed(nil)
	}
	if config.CandleLimit <= 0 {
		config.CandleLimit = 300
	}

	router := gin.New()
	router.Use(logging.GinMiddleware())
	router.Use(gin.Recovery())
	if deps.Metrics != nil {
		router.Use(deps.Metrics.GinMiddleware())
	}

	corsConfig := cors.DefaultConfig()
	if len(config.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = config.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	corsConfig.ExposeHeaders = []string{"Content-Length"}
	router.Use(cors.New(corsConfig))

	s := &Server{
		router:      router,
		config:      config,
		deps:        deps,
		hub:         NewWSHub(),
		rateLimiter: NewRateLimiter(config.AnalyzeRateLimit, config.AnalyzeBurst),
		startedAt:   time.Now(),
		logger:      logging.WithComponent("api"),
	}
	if deps.Events != nil {
		s.hub.Attach(deps.Events)
	}
	s.setupRoutes()
	return s
}

// Router exposes the gin engine, mainly for tests
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Hub returns the websocket hub
func (s *Server) Hub() *WSHub {
	return s.hub
}

func (s *Server) setupRoutes() {
	s.router.GET("/api/health", s.handleHealth)
	s.router.GET("/ws", s.handleWebSocket)
	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	v1 := s.router.Group("/api/v1")
	write := []gin.HandlerFunc{}
	if s.deps.Auth != nil {
		v1.POST("/auth/token", auth.NewHandlers(s.deps.Auth).Token)
		v1.Use(auth.Middleware(s.deps.Auth.JWT()))
		write = append(write, auth.RequireScope(auth.ScopeWrite))
	}
	with := func(hs ...gin.HandlerFunc) []gin.HandlerFunc {
		return append(append([]gin.HandlerFunc{}, write...), hs...)
	}
	limited := s.rateLimiter.Middleware()

	v1.GET("/analyze/:symbol", limited, s.handleAnalyzeSymbol)
	v1.POST("/analyze", with(limited, s.handleAnalyze)...)

	v1.GET("/scanner/results", s.handleScanResults)
	v1.GET("/scanner/heatmap", s.handleHeatmap)
	v1.POST("/scanner/scan", with(s.handleScanNow)...)

	v1.GET("/signals", s.handleListSignals)
	v1.GET("/signals/:id", s.handleGetSignal)
	v1.POST("/signals/price", with(s.handlePriceUpdate)...)

	v1.GET("/risk/metrics", s.handleRiskMetrics)
	v1.GET("/risk/trades", s.handleOpenTrades)
	v1.GET("/risk/position-size", s.handlePositionSize)
	v1.POST("/risk/reset", with(s.handleRiskReset)...)
	v1.POST("/risk/trades/:id/close", with(s.handleCloseTrade)...)

	v1.PUT("/fundamental/:symbol", with(s.handleSetFundamental)...)
	v1.PUT("/sentiment/:symbol", with(s.handleSetSentiment)...)

	v1.GET("/confluence/weights", s.handleGetWeights)
	v1.PUT("/confluence/weights", with(s.handleSetWeights)...)
}

// Start runs the websocket hub and serves HTTP until Shutdown
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}

	go s.hub.Run(ctx)

	s.logger.Info("Starting HTTP server", "addr", addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}

// handleHealth runs every registered check
func (s *Server) handleHealth(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(s.deps.Checks))
	for _, hc := range s.deps.Checks {
		if err := hc.Check(ctx); err != nil {
			checks[hc.Name] = "unhealthy: " + err.Error()
			if hc.Critical {
				status = "unhealthy"
				code = http.StatusServiceUnavailable
			} else if status == "healthy" {
				status = "degraded"
			}
			continue
		}
		checks[hc.Name] = "healthy"
	}

	c.JSON(code, gin.H{
		"status":    status,
		"checks":    checks,
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"wsClients": s.hub.ClientCount(),
	})
}

// errorResponse is a helper to send error responses
func errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":   true,
		"message": message,
	})
}

// successResponse is a helper to send success responses
func successResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    data,
	})
}
