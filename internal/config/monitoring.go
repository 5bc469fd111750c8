// Monitoring configuration - logging, telemetry and metrics settings.
//
// DESIGN: Separates logging (zerolog) from telemetry (JSONL files).
// Logging is for operators, telemetry is per-request analytics, and
// metrics are scraped by Prometheus.
package config

import (
	"fmt"
	"time"
)

// MonitoringConfig contains all monitoring settings.
type MonitoringConfig struct {
	// Logging settings
	LogLevel  string `yaml:"log_level"`  // debug, info, warn, error
	LogFormat string `yaml:"log_format"` // json, console, or empty to detect a terminal
	LogOutput string `yaml:"log_output"` // stdout, stderr, or file path

	// Telemetry settings
	TelemetryEnabled bool   `yaml:"telemetry_enabled"` // Enable per-request telemetry
	TelemetryPath    string `yaml:"telemetry_path"`    // Path to telemetry JSONL file
	LogToStdout      bool   `yaml:"log_to_stdout"`     // Also log telemetry to stdout

	// Metrics and alerts
	MetricsEnabled       bool          `yaml:"metrics_enabled"`        // Serve GET /metrics
	HighLatencyThreshold time.Duration `yaml:"high_latency_threshold"` // Warn above this request latency
}

// Validate checks monitoring settings.
func (m *MonitoringConfig) Validate() error {
	switch m.LogFormat {
	case "", "json", "console":
	default:
		return fmt.Errorf("invalid monitoring.log_format: %q (must be json or console)", m.LogFormat)
	}
	switch m.LogLevel {
	case "", "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		return fmt.Errorf("invalid monitoring.log_level: %q", m.LogLevel)
	}
	if m.TelemetryEnabled && m.TelemetryPath == "" {
		return fmt.Errorf("monitoring.telemetry_path is required when telemetry is enabled")
	}
	if m.HighLatencyThreshold < 0 {
		return fmt.Errorf("invalid monitoring.high_latency_threshold: %s", m.HighLatencyThreshold)
	}
	return nil
}
