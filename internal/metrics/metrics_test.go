package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"forex-signal-engine/internal/events"
)

func TestObserveEvents(t *testing.T) {
	r := New()

	r.Observe(events.Event{Type: events.EventAnalysisCompleted, Data: map[string]interface{}{"status": "SUCCESS"}})
	r.Observe(events.Event{Type: events.EventAnalysisCompleted, Data: map[string]interface{}{"status": "NO_SIGNAL"}})
	r.Observe(events.Event{Type: events.EventAnalysisCompleted, Data: map[string]interface{}{"status": "SUCCESS"}})
	r.Observe(events.Event{Type: events.EventSignalGenerated, Symbol: "EURUSD", Data: map[string]interface{}{"direction": "BUY", "grade": "A"}})
	r.Observe(events.Event{Type: events.EventSignalStatusChanged, Data: map[string]interface{}{"to": "TP1_HIT"}})
	r.Observe(events.Event{Type: events.EventScanCompleted, Data: map[string]interface{}{"opportunities": 4, "errors": 1, "duration_ms": int64(1500)}})
	r.Observe(events.Event{Type: events.EventError, Data: map[string]interface{}{"source": "scanner"}})
	r.Observe(events.Event{Type: events.EventRiskReset})

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"success analyses", testutil.ToFloat64(r.analyses.WithLabelValues("SUCCESS")), 2},
		{"no signal analyses", testutil.ToFloat64(r.analyses.WithLabelValues("NO_SIGNAL")), 1},
		{"signals", testutil.ToFloat64(r.signals.WithLabelValues("EURUSD", "BUY", "A")), 1},
		{"status changes", testutil.ToFloat64(r.statusChanges.WithLabelValues("TP1_HIT")), 1},
		{"scans", testutil.ToFloat64(r.scans), 1},
		{"opportunities", testutil.ToFloat64(r.opportunities), 4},
		{"scan errors", testutil.ToFloat64(r.scanErrors), 1},
		{"errors", testutil.ToFloat64(r.errorsTotal.WithLabelValues("scanner")), 1},
		{"risk resets", testutil.ToFloat64(r.riskResets), 1},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestHandlerAndMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := New()

	router := gin.New()
	router.Use(r.GinMiddleware())
	router.GET("/api/v1/signals/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/metrics", gin.WrapH(r.Handler()))

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/api/v1/signals/abc", nil))

	if got := testutil.ToFloat64(r.httpRequests.WithLabelValues("/api/v1/signals/:id", "GET", "404")); got != 1 {
		t.Errorf("requests = %v, want 1 labelled by route template", got)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(w.Body)
	if !strings.Contains(string(body), "forex_http_requests_total") {
		t.Error("exposition is missing the request counter")
	}
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("exposition is missing the Go collector")
	}
}
