// Package monitoring - types.go defines shared types.
//
// DESIGN: These types are used by both gateway/ and monitoring/ packages.
// Defined here ONCE to avoid duplication and circular imports.
//
// TYPES:
//   - RequestEvent:  Telemetry data for each contextualization request
//   - Config types:  TelemetryConfig, LoggerConfig, AlertConfig
package monitoring

import "time"

// =============================================================================
// EVENT TYPES - Structured data for telemetry recording
// =============================================================================

// RequestEvent captures one request through the contextualizer API.
type RequestEvent struct {
	RequestID        string    `json:"request_id"`
	ContextID        string    `json:"context_id,omitempty"` // Audit entry ID when the pipeline ran
	Timestamp        time.Time `json:"timestamp"`
	Method           string    `json:"method"`
	Path             string    `json:"path"`
	ClientIP         string    `json:"client_ip"`
	RequestBodySize  int       `json:"request_body_size"`
	StatusCode       int       `json:"status_code"`
	InputMessages    int       `json:"input_messages"`
	PackedClusters   int       `json:"packed_clusters"`
	DroppedClusters  int       `json:"dropped_clusters"`
	PackedTokens     int       `json:"packed_tokens"`
	CompressionRatio float64   `json:"compression_ratio"`
	Success          bool      `json:"success"`
	Error            string    `json:"error,omitempty"`
	PipelineMs       int64     `json:"pipeline_ms"`
	TotalLatencyMs   int64     `json:"total_latency_ms"`
}

// =============================================================================
// CONFIG TYPES
// =============================================================================

// TelemetryConfig contains telemetry configuration.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	LogPath     string `yaml:"log_path"`
	LogToStdout bool   `yaml:"log_to_stdout"`
}

// LoggerConfig contains logging configuration.
type LoggerConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console, or empty for auto
	Output string `yaml:"output"` // stdout, stderr, or file path
}

// AlertConfig contains alert thresholds.
type AlertConfig struct {
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"`
}
