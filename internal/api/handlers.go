package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"forex-signal-engine/internal/ai/sentiment"
	"forex-signal-engine/internal/fundamental"
	"forex-signal-engine/internal/logging"
	"forex-signal-engine/internal/market"
	"forex-signal-engine/internal/marketdata"
	"forex-signal-engine/internal/scanner"
	"forex-signal-engine/internal/signal"
)

// AnalyzeRequest is the body of POST /api/v1/analyze. Omitted series are loaded from the
// market data provider and omitted lanes from the fundamental and sentiment stores.
type AnalyzeRequest struct {
	Symbol      string                      `json:"symbol" binding:"required"`
	Timeframe   market.Timeframe            `json:"timeframe"`
	Series      market.MultiTimeframeSeries `json:"series"`
	Fundamental *fundamental.Data           `json:"fundamental"`
	Sentiment   *sentiment.Data             `json:"sentiment"`
}

// PriceUpdate is the body of POST /api/v1/signals/price
type PriceUpdate struct {
	Symbol string  `json:"symbol" binding:"required"`
	Price  float64 `json:"price" binding:"required,gt=0"`
}

// handleAnalyzeSymbol runs the full pipeline on provider candles
// GET /api/v1/analyze/:symbol?timeframe=H4
func (s *Server) handleAnalyzeSymbol(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	tf, ok := s.timeframeParam(c, c.Query("timeframe"))
	if !ok {
		return
	}
	series, ok := s.loadSeries(c, symbol)
	if !ok {
		return
	}
	s.runAnalysis(c, signal.Request{
		Symbol:      symbol,
		Series:      series,
		Timeframe:   tf,
		Fundamental: s.deps.Fundamentals.Get(symbol),
		Sentiment:   s.deps.Sentiment.Snapshot(symbol, time.Now()),
	})
}

// handleAnalyze runs the full pipeline on caller-supplied inputs
// POST /api/v1/analyze
func (s *Server) handleAnalyze(c *gin.Context) {
	var body AnalyzeRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	symbol := strings.ToUpper(body.Symbol)
	tf, ok := s.timeframeParam(c, string(body.Timeframe))
	if !ok {
		return
	}

	series := body.Series
	if len(series) == 0 {
		if series, ok = s.loadSeries(c, symbol); !ok {
			return
		}
	}
	fd := body.Fundamental
	if fd == nil {
		fd = s.deps.Fundamentals.Get(symbol)
	}
	sd := body.Sentiment
	if sd == nil {
		sd = s.deps.Sentiment.Snapshot(symbol, time.Now())
	}

	s.runAnalysis(c, signal.Request{
		Symbol:      symbol,
		Series:      series,
		Timeframe:   tf,
		Fundamental: fd,
		Sentiment:   sd,
	})
}

func (s *Server) timeframeParam(c *gin.Context, raw string) (market.Timeframe, bool) {
	if raw == "" {
		return s.deps.Engine.Config().PrimaryTimeframe, true
	}
	tf, err := market.ParseTimeframe(strings.ToUpper(raw))
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return "", false
	}
	return tf, true
}

func (s *Server) loadSeries(c *gin.Context, symbol string) (market.MultiTimeframeSeries, bool) {
	if s.deps.Provider == nil {
		errorResponse(c, http.StatusServiceUnavailable, "market data provider not configured")
		return nil, false
	}
	series, err := s.deps.Provider.GetMultiTimeframe(c.Request.Context(), symbol, market.Timeframes, s.config.CandleLimit)
	if err != nil {
		if errors.Is(err, marketdata.ErrNoData) {
			errorResponse(c, http.StatusNotFound, "no market data for "+symbol)
			return nil, false
		}
		logging.FromContext(c.Request.Context()).WithError(err).Error("Failed to load candles", "symbol", symbol)
		errorResponse(c, http.StatusBadGateway, "failed to load market data")
		return nil, false
	}
	return series, true
}

// runAnalysis answers 422 for ERROR results and 200 for every policy outcome
func (s *Server) runAnalysis(c *gin.Context, req signal.Request) {
	ctx := c.Request.Context()
	res := s.deps.Engine.Analyze(ctx, req)

	if res.Status == signal.StatusSuccess && res.Signal != nil && s.deps.Registry != nil {
		if err := s.deps.Registry.Add(ctx, res.Signal); err != nil {
			logging.FromContext(ctx).WithError(err).Error("Failed to register signal", "signal_id", res.Signal.ID)
		}
	}

	code := http.StatusOK
	if res.Status == signal.StatusError {
		code = http.StatusUnprocessableEntity
	}
	c.JSON(code, gin.H{
		"success": res.Status != signal.StatusError,
		"data":    res,
	})
}

// GET /api/v1/scanner/results
func (s *Server) handleScanResults(c *gin.Context) {
	res, ok := s.lastScan(c)
	if !ok {
		return
	}
	successResponse(c, res)
}

// GET /api/v1/scanner/heatmap
func (s *Server) handleHeatmap(c *gin.Context) {
	res, ok := s.lastScan(c)
	if !ok {
		return
	}
	successResponse(c, gin.H{
		"scanId":    res.ScanID,
		"scannedAt": res.EndTime,
		"heatmap":   res.Heatmap,
	})
}

func (s *Server) lastScan(c *gin.Context) (*scanner.ScanResult, bool) {
	if s.deps.Scanner == nil {
		errorResponse(c, http.StatusServiceUnavailable, "scanner not configured")
		return nil, false
	}
	res := s.deps.Scanner.GetLastResult()
	if res == nil {
		errorResponse(c, http.StatusNotFound, "no scan has completed yet")
		return nil, false
	}
	return res, true
}

// handleScanNow runs a scan synchronously
// POST /api/v1/scanner/scan
func (s *Server) handleScanNow(c *gin.Context) {
	if s.deps.Scanner == nil {
		errorResponse(c, http.StatusServiceUnavailable, "scanner not configured")
		return
	}
	res, err := s.deps.Scanner.Scan(c.Request.Context())
	if err != nil {
		if errors.Is(err, scanner.ErrScanInProgress) {
			errorResponse(c, http.StatusConflict, err.Error())
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, res)
}

// GET /api/v1/signals?symbol=EURUSD&status=ACTIVE
func (s *Server) handleListSignals(c *gin.Context) {
	if !s.requireRegistry(c) {
		return
	}
	status := signal.SignalStatus(strings.ToUpper(c.Query("status")))
	signals := s.deps.Registry.List(c.Query("symbol"), status)
	successResponse(c, gin.H{
		"signals": signals,
		"count":   len(signals),
	})
}

// GET /api/v1/signals/:id
func (s *Server) handleGetSignal(c *gin.Context) {
	if !s.requireRegistry(c) {
		return
	}
	sig, err := s.deps.Registry.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, signal.ErrSignalNotFound) {
			errorResponse(c, http.StatusNotFound, err.Error())
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, sig)
}

// handlePriceUpdate drives the signal lifecycle from an external price tick
// POST /api/v1/signals/price
func (s *Server) handlePriceUpdate(c *gin.Context) {
	if !s.requireRegistry(c) {
		return
	}
	var body PriceUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	changes := s.deps.Registry.UpdatePrice(c.Request.Context(), body.Symbol, body.Price)
	successResponse(c, gin.H{
		"symbol":  strings.ToUpper(body.Symbol),
		"price":   body.Price,
		"changes": changes,
	})
}

func (s *Server) requireRegistry(c *gin.Context) bool {
	if s.deps.Registry == nil {
		errorResponse(c, http.StatusServiceUnavailable, "signal registry not configured")
		return false
	}
	return true
}
