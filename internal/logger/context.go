package logger

import (
	"context"
	"time"
)

type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds run-scoped logging context
type LogContext struct {
	RunID     string    // Unique id of the GC run
	Phase     string    // Current phase (merge, expire, prune_alias, ...)
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a run
func NewLogContext(runID string) *LogContext {
	return &LogContext{
		RunID:     runID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	c := *lc
	return &c
}

// WithPhase returns a copy with the phase set
func (lc *LogContext) WithPhase(phase string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Phase = phase
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}

// PhaseContext returns ctx with a copy of its LogContext bound to phase.
// If ctx carries no LogContext a fresh one is attached.
func PhaseContext(ctx context.Context, phase string) context.Context {
	lc := FromContext(ctx)
	if lc == nil {
		lc = &LogContext{StartTime: time.Now()}
	}
	return WithContext(ctx, lc.WithPhase(phase))
}
