package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds per-connection logging context. Attached to a
// context.Context with WithContext, it makes every *Ctx log call on that
// context carry the same identifying fields without threading them through
// every call. The protocol handler logs through the plain (non-Ctx) calls
// and does not attach one.
type LogContext struct {
	ConnectionID string    // internal connection identifier
	ClientIP     string    // remote address of the connection, without port
	Username     string    // set once the connection authenticates
	MessageType  string    // label of the message currently being handled
	StartTime    time.Time // for duration calculation
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

// NewLogContext creates a new LogContext for a freshly accepted connection.
func NewLogContext(connectionID, clientIP string) *LogContext {
	return &LogContext{
		ConnectionID: connectionID,
		ClientIP:     clientIP,
		StartTime:    time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		ConnectionID: lc.ConnectionID,
		ClientIP:     lc.ClientIP,
		Username:     lc.Username,
		MessageType:  lc.MessageType,
		StartTime:    lc.StartTime,
	}
}

// WithUsername returns a copy with the username set, once known.
func (lc *LogContext) WithUsername(username string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Username = username
	}
	return clone
}

// WithMessageType returns a copy with the current message type label set.
func (lc *LogContext) WithMessageType(messageType string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.MessageType = messageType
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
