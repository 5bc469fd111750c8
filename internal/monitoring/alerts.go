// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:     Warn when request exceeds threshold
//   - FlagPipelineFailure: Error when the contextualization pipeline fails
//   - FlagAuditFailure:    Warn when a ledger write fails or is dropped
//   - FlagInvalidRequest:  Debug on rejected request bodies
//   - FlagPanic:           Error on recovered panics
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 5 * time.Second
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when request latency exceeds threshold.
func (am *AlertManager) FlagHighLatency(requestID string, latency time.Duration, path string) {
	if latency < am.highLatencyThreshold {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Dur("latency", latency).
		Str("path", path).
		Msg("high_latency")
}

// FlagPipelineFailure logs a failed contextualization run.
func (am *AlertManager) FlagPipelineFailure(requestID string, inputMessages int, err error) {
	am.logger.Error().
		Str("request_id", requestID).
		Int("input_messages", inputMessages).
		Err(err).
		Msg("pipeline_failed")
}

// FlagAuditFailure logs a ledger write that did not land.
func (am *AlertManager) FlagAuditFailure(err error) {
	am.logger.Warn().
		Err(err).
		Msg("audit_write_failed")
}

// FlagInvalidRequest logs invalid request.
func (am *AlertManager) FlagInvalidRequest(requestID, reason string) {
	am.logger.Debug().
		Str("request_id", requestID).
		Str("reason", reason).
		Msg("invalid_request")
}

// FlagPanic logs recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Str("stack", stack).
		Msg("panic_recovered")
}
