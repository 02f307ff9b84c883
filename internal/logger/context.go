package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context for a single engine
// operation (add_depend, satisfy, flush, revision prepare/revert, ...).
type LogContext struct {
	TraceID         string    // distributed trace ID, if tracing is enabled
	SpanID          string    // span ID for this operation
	Operation       string    // engine operation name (add_depend, satisfy, flush, ...)
	PatchgroupLabel string    // label of the patchgroup the operation is scoped to, if any
	BlockNumber     uint64    // block descriptor number the operation concerns
	StartTime       time.Time // for duration calculation
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

// NewLogContext creates a new LogContext for an engine operation.
func NewLogContext(operation string) *LogContext {
	return &LogContext{
		Operation: operation,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:         lc.TraceID,
		SpanID:          lc.SpanID,
		Operation:       lc.Operation,
		PatchgroupLabel: lc.PatchgroupLabel,
		BlockNumber:     lc.BlockNumber,
		StartTime:       lc.StartTime,
	}
}

// WithOperation returns a copy with the operation set
func (lc *LogContext) WithOperation(operation string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Operation = operation
	}
	return clone
}

// WithBlock returns a copy with the block number set
func (lc *LogContext) WithBlock(number uint64) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.BlockNumber = number
	}
	return clone
}

// WithPatchgroup returns a copy with the patchgroup label set
func (lc *LogContext) WithPatchgroup(label string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.PatchgroupLabel = label
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
