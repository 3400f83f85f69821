package logging

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type contextKey string

const (
	loggerKey  contextKey = "logger"
	traceIDKey contextKey = "trace_id"
)

// TraceHeader carries the trace id across HTTP hops
const TraceHeader = "X-Trace-ID"

// GenerateTraceID generates a new trace ID
func GenerateTraceID() string {
	return uuid.New().String()
}

// FromContext retrieves the logger from context
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerKey).(*Logger); ok {
		return l
	}
	return Default()
}

// NewContext creates a new context with the logger
func NewContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// TraceIDFromContext returns the trace id stored in ctx, if any
func TraceIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(traceIDKey).(string); ok {
		return id
	}
	return ""
}

// WithTraceContext adds a trace ID to the context and returns a logger with it
func WithTraceContext(ctx context.Context) (context.Context, *Logger) {
	traceID := GenerateTraceID()
	l := FromContext(ctx).WithTraceID(traceID)
	newCtx := context.WithValue(ctx, traceIDKey, traceID)
	newCtx = context.WithValue(newCtx, loggerKey, l)
	return newCtx, l
}

// SignalContext creates a logger context for one analysis run
func SignalContext(symbol string, direction string, confluence float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":     symbol,
		"direction":  direction,
		"confluence": confluence,
	}).WithComponent("signal")
}

// ScanContext creates a logger context for a scanner cycle
func ScanContext(scanID string, symbols int) *Logger {
	return Default().WithFields(map[string]interface{}{
		"scan_id": scanID,
		"symbols": symbols,
	}).WithComponent("scanner")
}

// RiskContext creates a logger context for risk management
func RiskContext(symbol string, riskPercent, positionSize float64) *Logger {
	return Default().WithFields(map[string]interface{}{
		"symbol":        symbol,
		"risk_percent":  riskPercent,
		"position_size": positionSize,
	}).WithComponent("risk")
}

// DatabaseContext creates a logger context for database operations
func DatabaseContext(operation, table string) *Logger {
	return Default().WithFields(map[string]interface{}{
		"operation": operation,
		"table":     table,
	}).WithComponent("database")
}

// GinMiddleware attaches a request-scoped logger and logs request completion
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		traceID := c.GetHeader(TraceHeader)
		if traceID == "" {
			traceID = GenerateTraceID()
		}

		l := Default().WithTraceID(traceID).WithFields(map[string]interface{}{
			"method":      c.Request.Method,
			"path":        c.Request.URL.Path,
			"remote_addr": c.ClientIP(),
		}).WithComponent("http")

		ctx := context.WithValue(c.Request.Context(), traceIDKey, traceID)
		c.Request = c.Request.WithContext(NewContext(ctx, l))
		c.Header(TraceHeader, traceID)

		c.Next()

		l.WithDuration(time.Since(start)).WithField("status_code", c.Writer.Status()).Info("Request completed")
	}
}
