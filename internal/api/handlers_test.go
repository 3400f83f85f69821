package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"forex-signal-engine/internal/ai/llm"
	"forex-signal-engine/internal/events"
	"forex-signal-engine/internal/market"
	"forex-signal-engine/internal/marketdata"
	"forex-signal-engine/internal/risk"
	"forex-signal-engine/internal/scanner"
	"forex-signal-engine/internal/signal"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testStart = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)

func uptrend() market.MultiTimeframeSeries {
	return market.MultiTimeframeSeries{
		market.H4: market.TrendSeries(150, 1.05, 0.0005, market.H4, testStart),
		market.H1: market.TrendSeries(150, 1.08, 0.0002, market.H1, testStart),
		market.D1: market.TrendSeries(120, 1.00, 0.0010, market.D1, testStart),
	}
}

// seriesStub serves the uptrend for EURUSD and nothing else
type seriesStub struct {
	err error
}

func (p seriesStub) GetMultiTimeframe(_ context.Context, symbol string, _ []market.Timeframe, _ int) (market.MultiTimeframeSeries, error) {
	if p.err != nil {
		return nil, p.err
	}
	if symbol != "EURUSD" {
		return nil, marketdata.ErrNoData
	}
	return uptrend(), nil
}

// trendPredictor trades with the confluence direction, 50 pip stop and 150 pip target
type trendPredictor struct{}

func (trendPredictor) Predict(_ context.Context, p llm.Payload) llm.Prediction {
	rec, sign := llm.RecommendBuy, 1.0
	if p.Confluence.Direction == market.Bearish {
		rec, sign = llm.RecommendSell, -1
	}
	return llm.Prediction{
		Outcome: llm.OutcomeOK,
		Source:  "test",
		Proposal: llm.Proposal{
			Recommendation: rec,
			Confidence:     70,
			Entry:          p.CurrentPrice,
			StopLoss:       market.Round(p.CurrentPrice-sign*0.005, 5),
			TakeProfit1:    market.Round(p.CurrentPrice+sign*0.015, 5),
			Reasoning:      "trend continuation",
		},
	}
}

type testEnv struct {
	server   *Server
	risk     *risk.Manager
	registry *signal.Registry
	bus      *events.EventBus
	scanner  *scanner.Scanner
}

func newTestEnv(t *testing.T, mutate ...func(*Deps)) *testEnv {
	t.Helper()
	cfg := signal.DefaultConfig()
	cfg.MinConfluence = 1

	bus := events.NewEventBus()
	rm := risk.NewManager(risk.DefaultConfig())
	engine := signal.NewEngine(cfg, trendPredictor{}, rm, signal.WithEvents(bus))
	registry := signal.NewRegistry(nil, rm, bus)
	provider := seriesStub{}
	sc := scanner.NewScanner(scanner.DefaultConfig(), provider, engine,
		scanner.WithUniverse(map[market.Category][]string{market.CategoryForex: {"EURUSD", "GBPUSD"}}),
		scanner.WithEvents(bus),
	)

	deps := Deps{
		Engine:   engine,
		Registry: registry,
		Scanner:  sc,
		Provider: provider,
		Risk:     rm,
		Events:   bus,
	}
	for _, m := range mutate {
		m(&deps)
	}
	srvCfg := DefaultServerConfig()
	srvCfg.AnalyzeBurst = 100
	srvCfg.AnalyzeRateLimit = 100
	return &testEnv{
		server:   NewServer(srvCfg, deps),
		risk:     rm,
		registry: registry,
		bus:      bus,
		scanner:  sc,
	}
}

type apiResponse struct {
	Success bool            `json:"success"`
	Error   bool            `json:"error"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, header ...string) (*httptest.ResponseRecorder, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	e.server.Router().ServeHTTP(w, req)

	var resp apiResponse
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &resp)
	}
	return w, resp
}

func TestAnalyzeSymbol(t *testing.T) {
	env := newTestEnv(t)

	w, resp := env.do(t, http.MethodGet, "/api/v1/analyze/eurusd", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	var res signal.Result
	if err := json.Unmarshal(resp.Data, &res); err != nil {
		t.Fatalf("decode result: %v", err)
	}
	if res.Status != signal.StatusSuccess || res.Signal == nil {
		t.Fatalf("expected SUCCESS with a signal, got %s (%s)", res.Status, res.Reason)
	}
	if res.Symbol != "EURUSD" {
		t.Errorf("symbol = %q", res.Symbol)
	}

	// The emitted signal is tracked by the registry
	if _, err := env.registry.Get(res.Signal.ID); err != nil {
		t.Errorf("signal not registered: %v", err)
	}
}

func TestAnalyzeSymbolErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		deps   func(*Deps)
		status int
	}{
		{"bad timeframe", "/api/v1/analyze/EURUSD?timeframe=H2", nil, http.StatusBadRequest},
		{"unknown symbol", "/api/v1/analyze/USDXYZ", nil, http.StatusNotFound},
		{"provider failure", "/api/v1/analyze/EURUSD", func(d *Deps) { d.Provider = seriesStub{err: errors.New("db down")} }, http.StatusBadGateway},
		{"no provider", "/api/v1/analyze/EURUSD", func(d *Deps) { d.Provider = nil }, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var env *testEnv
			if tt.deps != nil {
				env = newTestEnv(t, tt.deps)
			} else {
				env = newTestEnv(t)
			}
			w, resp := env.do(t, http.MethodGet, tt.path, nil)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if !resp.Error || resp.Message == "" {
				t.Errorf("expected error body, got %s", w.Body.String())
			}
		})
	}
}

func TestAnalyzePost(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Provider = nil })

	short := uptrend()
	short[market.H4] = short[market.H4][:40]

	tests := []struct {
		name   string
		body   AnalyzeRequest
		status int
		result signal.Status
	}{
		{"supplied series", AnalyzeRequest{Symbol: "eurusd", Series: uptrend()}, http.StatusOK, signal.StatusSuccess},
		{"short series", AnalyzeRequest{Symbol: "EURUSD", Series: short}, http.StatusUnprocessableEntity, signal.StatusError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, resp := env.do(t, http.MethodPost, "/api/v1/analyze", tt.body)
			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
			var res signal.Result
			if err := json.Unmarshal(resp.Data, &res); err != nil {
				t.Fatalf("decode result: %v", err)
			}
			if res.Status != tt.result {
				t.Errorf("result = %s (%s), want %s", res.Status, res.Reason, tt.result)
			}
		})
	}

	t.Run("missing symbol", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPost, "/api/v1/analyze", map[string]string{})
		if w.Code != http.StatusBadRequest {
			t.Errorf("status = %d", w.Code)
		}
	})
	t.Run("no series and no provider", func(t *testing.T) {
		w, _ := env.do(t, http.MethodPost, "/api/v1/analyze", AnalyzeRequest{Symbol: "EURUSD"})
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d", w.Code)
		}
	})
}

func TestScannerEndpoints(t *testing.T) {
	env := newTestEnv(t)

	if w, _ := env.do(t, http.MethodGet, "/api/v1/scanner/results", nil); w.Code != http.StatusNotFound {
		t.Fatalf("results before first scan = %d", w.Code)
	}

	w, resp := env.do(t, http.MethodPost, "/api/v1/scanner/scan", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("scan status = %d: %s", w.Code, w.Body.String())
	}
	var res scanner.ScanResult
	if err := json.Unmarshal(resp.Data, &res); err != nil {
		t.Fatalf("decode scan: %v", err)
	}
	if res.SymbolsScanned != 2 || len(res.Errors) != 1 || res.Errors[0].Symbol != "GBPUSD" {
		t.Errorf("unexpected scan %+v", res)
	}

	if w, _ := env.do(t, http.MethodGet, "/api/v1/scanner/results", nil); w.Code != http.StatusOK {
		t.Errorf("results after scan = %d", w.Code)
	}
	w, resp = env.do(t, http.MethodGet, "/api/v1/scanner/heatmap", nil)
	if w.Code != http.StatusOK || !strings.Contains(string(resp.Data), "EURUSD") {
		t.Errorf("heatmap = %d %s", w.Code, resp.Data)
	}
}

func TestScannerNotConfigured(t *testing.T) {
	env := newTestEnv(t, func(d *Deps) { d.Scanner = nil })
	for _, path := range []string{"/api/v1/scanner/results", "/api/v1/scanner/heatmap"} {
		if w, _ := env.do(t, http.MethodGet, path, nil); w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s = %d", path, w.Code)
		}
	}
}

func TestSignalEndpoints(t *testing.T) {
	env := newTestEnv(t)

	_, resp := env.do(t, http.MethodGet, "/api/v1/analyze/EURUSD", nil)
	var res signal.Result
	if err := json.Unmarshal(resp.Data, &res); err != nil || res.Signal == nil {
		t.Fatalf("setup analysis failed: %v %s", err, resp.Data)
	}
	sig := res.Signal

	w, resp := env.do(t, http.MethodGet, "/api/v1/signals?symbol=eurusd&status=active", nil)
	if w.Code != http.StatusOK || !strings.Contains(string(resp.Data), sig.ID) {
		t.Errorf("list = %d %s", w.Code, resp.Data)
	}
	if w, _ := env.do(t, http.MethodGet, "/api/v1/signals/"+sig.ID, nil); w.Code != http.StatusOK {
		t.Errorf("get = %d", w.Code)
	}
	if w, _ := env.do(t, http.MethodGet, "/api/v1/signals/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("get missing = %d", w.Code)
	}

	// A price through the stop closes the signal and frees the risk slot
	through := sig.StopLoss - 0.001
	if sig.Direction == market.Sell {
		through = sig.StopLoss + 0.001
	}
	w, resp = env.do(t, http.MethodPost, "/api/v1/signals/price", PriceUpdate{Symbol: "EURUSD", Price: through})
	if w.Code != http.StatusOK || !strings.Contains(string(resp.Data), string(signal.SignalStoppedOut)) {
		t.Fatalf("price update = %d %s", w.Code, resp.Data)
	}
	if n := len(env.risk.OpenTrades()); n != 0 {
		t.Errorf("open trades after stop = %d", n)
	}

	if w, _ := env.do(t, http.MethodPost, "/api/v1/signals/price", PriceUpdate{Symbol: "EURUSD"}); w.Code != http.StatusBadRequest {
		t.Errorf("zero price = %d", w.Code)
	}
}

func TestRiskEndpoints(t *testing.T) {
	env := newTestEnv(t)
	resets := make(chan events.Event, 1)
	env.bus.Subscribe(events.EventRiskReset, func(e events.Event) { resets <- e })

	tests := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
	}{
		{"metrics", http.MethodGet, "/api/v1/risk/metrics", nil, http.StatusOK},
		{"trades", http.MethodGet, "/api/v1/risk/trades", nil, http.StatusOK},
		{"position size", http.MethodGet, "/api/v1/risk/position-size?symbol=EURUSD&entry=1.1000&stop=1.0950", nil, http.StatusOK},
		{"position size missing symbol", http.MethodGet, "/api/v1/risk/position-size?entry=1.1&stop=1.09", nil, http.StatusBadRequest},
		{"position size bad entry", http.MethodGet, "/api/v1/risk/position-size?symbol=EURUSD&entry=abc&stop=1.09", nil, http.StatusBadRequest},
		{"position size equal levels", http.MethodGet, "/api/v1/risk/position-size?symbol=EURUSD&entry=1.1&stop=1.1", nil, http.StatusBadRequest},
		{"close unknown trade", http.MethodPost, "/api/v1/risk/trades/nope/close", map[string]float64{"pnl": -10}, http.StatusNotFound},
		{"reset", http.MethodPost, "/api/v1/risk/reset", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := env.do(t, tt.method, tt.path, tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
		})
	}

	select {
	case <-resets:
	case <-time.After(time.Second):
		t.Error("reset should publish RISK_RESET")
	}

	_, resp := env.do(t, http.MethodGet, "/api/v1/risk/position-size?symbol=EURUSD&entry=1.1000&stop=1.0950", nil)
	var sizing risk.Sizing
	if err := json.Unmarshal(resp.Data, &sizing); err != nil {
		t.Fatal(err)
	}
	if sizing.Lots != 0.2 || sizing.StopLossPips != 50 {
		t.Errorf("sizing = %+v", sizing)
	}
}

func TestCloseTrade(t *testing.T) {
	env := newTestEnv(t)
	_, resp := env.do(t, http.MethodGet, "/api/v1/analyze/EURUSD", nil)
	var res signal.Result
	if err := json.Unmarshal(resp.Data, &res); err != nil || res.Signal == nil {
		t.Fatalf("setup analysis failed: %v", err)
	}

	w, _ := env.do(t, http.MethodPost, "/api/v1/risk/trades/"+res.Signal.ID+"/close", map[string]float64{"pnl": -25})
	if w.Code != http.StatusOK {
		t.Fatalf("close = %d %s", w.Code, w.Body.String())
	}
	m := env.risk.Metrics()
	if m.OpenTrades != 0 || m.DailyPnL != -25 {
		t.Errorf("metrics after close = %+v", m)
	}
}

func TestLaneInputs(t *testing.T) {
	env := newTestEnv(t)

	w, _ := env.do(t, http.MethodPut, "/api/v1/fundamental/eurusd", map[string]interface{}{
		"interestRates": map[string]float64{"EUR": 4.0, "USD": 5.25},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("fundamental = %d", w.Code)
	}
	if d := env.server.deps.Fundamentals.Get("EURUSD"); d == nil || d.InterestRates["USD"] != 5.25 {
		t.Errorf("fundamental data not stored: %+v", d)
	}

	long, fg := 78.0, 20
	w, resp := env.do(t, http.MethodPut, "/api/v1/sentiment/eurusd", SentimentUpdate{LongPercent: &long, FearGreed: &fg})
	if w.Code != http.StatusOK || !strings.Contains(string(resp.Data), `"longPercent":78`) {
		t.Fatalf("sentiment = %d %s", w.Code, resp.Data)
	}

	bad := 140.0
	if w, _ := env.do(t, http.MethodPut, "/api/v1/sentiment/eurusd", SentimentUpdate{LongPercent: &bad}); w.Code != http.StatusBadRequest {
		t.Errorf("out of range long share = %d", w.Code)
	}
}

func TestConfluenceWeights(t *testing.T) {
	env := newTestEnv(t)

	if w, _ := env.do(t, http.MethodGet, "/api/v1/confluence/weights", nil); w.Code != http.StatusOK {
		t.Fatalf("get = %d", w.Code)
	}

	valid := map[market.Lane]float64{
		market.LaneTechnical:      0.30,
		market.LanePattern:        0.10,
		market.LaneSmartMoney:     0.20,
		market.LaneMultiTimeframe: 0.20,
		market.LaneFundamental:    0.10,
		market.LaneSentiment:      0.05,
		market.LaneVolume:         0.05,
	}
	tests := []struct {
		name   string
		body   interface{}
		status int
	}{
		{"valid", valid, http.StatusOK},
		{"does not sum to one", map[string]float64{"technical": 0.5}, http.StatusBadRequest},
		{"unknown lane", map[string]float64{"astrology": 1}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, _ := env.do(t, http.MethodPut, "/api/v1/confluence/weights", tt.body)
			if w.Code != tt.status {
				t.Errorf("status = %d, want %d: %s", w.Code, tt.status, w.Body.String())
			}
		})
	}

	if got := env.server.deps.Engine.Confluence().Weights()[market.LaneTechnical]; got != 0.30 {
		t.Errorf("technical weight = %v", got)
	}
}
