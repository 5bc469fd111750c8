// Package monitoring - request_logger.go logs the API request lifecycle.
//
// DESIGN: Every log line reads from the request's RequestEvent, the same
// record that telemetry writes, so request_id and context_id always agree
// between logs and the telemetry file:
//   - LogIncoming:        request received (debug)
//   - LogContextualized:  pipeline outcome (debug)
//   - LogResponse:        status and latency (info)
package monitoring

import (
	"context"
	"time"
)

type eventKey struct{}

// WithRequestEvent attaches the request's event to ctx.
func WithRequestEvent(ctx context.Context, event *RequestEvent) context.Context {
	return context.WithValue(ctx, eventKey{}, event)
}

// RequestEventFromContext returns the attached event, or a detached one
// carrying only the request ID when none was attached.
func RequestEventFromContext(ctx context.Context) *RequestEvent {
	if event, ok := ctx.Value(eventKey{}).(*RequestEvent); ok && event != nil {
		return event
	}
	return &RequestEvent{RequestID: RequestIDFromContext(ctx)}
}

// RequestLogger logs request lifecycle events.
type RequestLogger struct {
	logger *Logger
}

// NewRequestLogger creates a new request logger.
func NewRequestLogger(logger *Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// LogIncoming logs an incoming request.
func (rl *RequestLogger) LogIncoming(event *RequestEvent) {
	rl.logger.Debug().
		Str("request_id", event.RequestID).
		Str("method", event.Method).
		Str("path", event.Path).
		Str("client_ip", event.ClientIP).
		Msg("incoming")
}

// LogContextualized logs a pipeline run.
func (rl *RequestLogger) LogContextualized(event *RequestEvent) {
	rl.logger.Debug().
		Str("request_id", event.RequestID).
		Str("context_id", event.ContextID).
		Int("input", event.InputMessages).
		Int("packed", event.PackedClusters).
		Int("dropped", event.DroppedClusters).
		Int("tokens", event.PackedTokens).
		Float64("ratio", event.CompressionRatio).
		Int64("pipeline_ms", event.PipelineMs).
		Msg("contextualized")
}

// LogResponse logs the finished request.
func (rl *RequestLogger) LogResponse(event *RequestEvent, latency time.Duration) {
	e := rl.logger.Info().
		Str("request_id", event.RequestID).
		Str("method", event.Method).
		Str("path", event.Path).
		Int("status", event.StatusCode).
		Dur("latency", latency)
	if event.ContextID != "" {
		e = e.Str("context_id", event.ContextID)
	}
	if event.Error != "" {
		e = e.Str("error", event.Error)
	}
	e.Msg("request")
}
