package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"forex-signal-engine/internal/ai/sentiment"
	"forex-signal-engine/internal/auth"
	"forex-signal-engine/internal/confluence"
	"forex-signal-engine/internal/events"
	"forex-signal-engine/internal/fundamental"
	"forex-signal-engine/internal/market"
	"forex-signal-engine/internal/risk"
)

// SentimentUpdate is the body of PUT /api/v1/sentiment/:symbol. Omitted fields are left unchanged.
type SentimentUpdate struct {
	LongPercent *float64             `json:"longPercent" binding:"omitempty,gte=0,lte=100"`
	FearGreed   *int                 `json:"fearGreed" binding:"omitempty,gte=0,lte=100"`
	News        []sentiment.NewsItem `json:"news"`
}

// GET /api/v1/risk/metrics
func (s *Server) handleRiskMetrics(c *gin.Context) {
	successResponse(c, s.deps.Risk.Metrics())
}

// GET /api/v1/risk/trades
func (s *Server) handleOpenTrades(c *gin.Context) {
	trades := s.deps.Risk.OpenTrades()
	successResponse(c, gin.H{
		"trades": trades,
		"count":  len(trades),
	})
}

// GET /api/v1/risk/position-size?symbol=EURUSD&entry=1.1&stop=1.095
func (s *Server) handlePositionSize(c *gin.Context) {
	symbol := strings.ToUpper(c.Query("symbol"))
	if symbol == "" {
		errorResponse(c, http.StatusBadRequest, "symbol is required")
		return
	}
	entry, err := positiveFloat(c.Query("entry"), "entry")
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	stop, err := positiveFloat(c.Query("stop"), "stop")
	if err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if entry == stop {
		errorResponse(c, http.StatusBadRequest, "entry and stop must differ")
		return
	}
	successResponse(c, s.deps.Risk.CalculatePositionSize(symbol, entry, stop))
}

func positiveFloat(raw, name string) (float64, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%s must be a positive number", name)
	}
	return v, nil
}

// POST /api/v1/risk/reset
func (s *Server) handleRiskReset(c *gin.Context) {
	s.deps.Risk.ResetDaily()
	if s.deps.Events != nil {
		s.deps.Events.Publish(events.Event{
			Type: events.EventRiskReset,
			Data: map[string]interface{}{"trigger": "api"},
		})
	}
	successResponse(c, s.deps.Risk.Metrics())
}

// handleCloseTrade releases a risk slot and books the realised P&L
// POST /api/v1/risk/trades/:id/close
func (s *Server) handleCloseTrade(c *gin.Context) {
	var body struct {
		PnL float64 `json:"pnl"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Risk.CloseTrade(c.Param("id"), body.PnL); err != nil {
		if errors.Is(err, risk.ErrTradeNotFound) {
			errorResponse(c, http.StatusNotFound, err.Error())
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	successResponse(c, s.deps.Risk.Metrics())
}

// PUT /api/v1/fundamental/:symbol
func (s *Server) handleSetFundamental(c *gin.Context) {
	var data fundamental.Data
	if err := c.ShouldBindJSON(&data); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	symbol := strings.ToUpper(c.Param("symbol"))
	s.deps.Fundamentals.Set(symbol, &data)
	successResponse(c, gin.H{"symbol": symbol, "fundamental": data})
}

// PUT /api/v1/sentiment/:symbol
func (s *Server) handleSetSentiment(c *gin.Context) {
	var body SentimentUpdate
	if err := c.ShouldBindJSON(&body); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	symbol := strings.ToUpper(c.Param("symbol"))
	feed := s.deps.Sentiment
	if body.LongPercent != nil {
		feed.SetPositioning(symbol, *body.LongPercent)
	}
	if body.FearGreed != nil {
		feed.SetFearGreed(*body.FearGreed)
	}
	if len(body.News) > 0 {
		feed.AddNews(symbol, body.News...)
	}
	successResponse(c, gin.H{"symbol": symbol, "sentiment": feed.Snapshot(symbol, time.Now())})
}

// GET /api/v1/confluence/weights
func (s *Server) handleGetWeights(c *gin.Context) {
	d := s.deps.Engine.Confluence()
	successResponse(c, gin.H{
		"weights":      d.Weights(),
		"minimumScore": d.MinimumScore(),
	})
}

// PUT /api/v1/confluence/weights
func (s *Server) handleSetWeights(c *gin.Context) {
	var body map[market.Lane]float64
	if err := c.ShouldBindJSON(&body); err != nil {
		errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	known := make(map[market.Lane]bool, len(market.Lanes))
	for _, l := range market.Lanes {
		known[l] = true
	}
	for lane := range body {
		if !known[lane] {
			errorResponse(c, http.StatusBadRequest, fmt.Sprintf("unknown lane %q", lane))
			return
		}
	}

	d := s.deps.Engine.Confluence()
	if err := d.SetWeights(confluence.Weights(body)); err != nil {
		if errors.Is(err, confluence.ErrInvalidWeights) {
			errorResponse(c, http.StatusBadRequest, err.Error())
			return
		}
		errorResponse(c, http.StatusInternalServerError, err.Error())
		return
	}
	s.logger.Info("Confluence weights updated", "client", clientOf(c))
	successResponse(c, gin.H{
		"weights":      d.Weights(),
		"minimumScore": d.MinimumScore(),
	})
}

func clientOf(c *gin.Context) string {
	if id := auth.GetClientID(c); id != "" {
		return id
	}
	return c.ClientIP()
}
