package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"forex-signal-engine/internal/events"
)

// Recorder exposes engine activity as Prometheus metrics
type Recorder struct {
	registry *prometheus.Registry

	analyses      *prometheus.CounterVec
	signals       *prometheus.CounterVec
	statusChanges *prometheus.CounterVec
	scans         prometheus.Counter
	opportunities prometheus.Gauge
	scanErrors    prometheus.Gauge
	scanDuration  prometheus.Histogram
	errorsTotal   *prometheus.CounterVec
	riskResets    prometheus.Counter
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
}

// New creates a recorder on its own registry, with Go and process collectors attached
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		analyses: f.NewCounterVec(prometheus.CounterOpts{
			Name: "forex_analyses_total",
			Help: "Completed analysis runs by terminal status",
		}, []string{"status"}),
		signals: f.NewCounterVec(prometheus.CounterOpts{
			Name: "forex_signals_generated_total",
			Help: "Signals generated by symbol, direction and grade",
		}, []string{"symbol", "direction", "grade"}),
		statusChanges: f.NewCounterVec(prometheus.CounterOpts{
			Name: "forex_signal_status_changes_total",
			Help: "Signal lifecycle transitions by target status",
		}, []string{"status"}),
		scans: f.NewCounter(prometheus.CounterOpts{
			Name: "forex_scans_total",
			Help: "Completed market scans",
		}),
		opportunities: f.NewGauge(prometheus.GaugeOpts{
			Name: "forex_scan_opportunities",
			Help: "Opportunities found by the latest scan",
		}),
		scanErrors: f.NewGauge(prometheus.GaugeOpts{
			Name: "forex_scan_errors",
			Help: "Symbols that failed in the latest scan",
		}),
		scanDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "forex_scan_duration_seconds",
			Help:    "Duration of market scans",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "forex_errors_total",
			Help: "Errors reported on the event bus by source",
		}, []string{"source"}),
		riskResets: f.NewCounter(prometheus.CounterOpts{
			Name: "forex_risk_resets_total",
			Help: "Daily risk resets",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "forex_http_requests_total",
			Help: "HTTP requests by route, method and status",
		}, []string{"route", "method", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "forex_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"route", "method"}),
	}
}

// Registry returns the underlying registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Attach subscribes the recorder to every event on the bus
func (r *Recorder) Attach(bus *events.EventBus) {
	bus.SubscribeAll(r.Observe)
}

// Observe updates metrics from one event
func (r *Recorder) Observe(ev events.Event) {
	switch ev.Type {
	case events.EventAnalysisCompleted:
		r.analyses.WithLabelValues(str(ev.Data["status"])).Inc()
	case events.EventSignalGenerated:
		r.signals.WithLabelValues(ev.Symbol, str(ev.Data["direction"]), str(ev.Data["grade"])).Inc()
	case events.EventSignalStatusChanged:
		r.statusChanges.WithLabelValues(str(ev.Data["to"])).Inc()
	case events.EventScanCompleted:
		r.scans.Inc()
		r.opportunities.Set(num(ev.Data["opportunities"]))
		r.scanErrors.Set(num(ev.Data["errors"]))
		r.scanDuration.Observe(num(ev.Data["duration_ms"]) / 1000)
	case events.EventRiskReset:
		r.riskResets.Inc()
	case events.EventError:
		r.errorsTotal.WithLabelValues(str(ev.Data["source"])).Inc()
	}
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// GinMiddleware records request counts and latency using the matched route template
func (r *Recorder) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.httpRequests.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		r.httpDuration.WithLabelValues(route, c.Request.Method).Observe(time.Since(start).Seconds())
	}
}

func str(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return "unknown"
}

func num(v interface{}) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case float64:
		return n
	default:
		return 0
	}
}
