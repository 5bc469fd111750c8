// Package config loads and validates the service configuration.
//
// DESIGN: Server and audit settings MUST come from YAML files; there are no
// defaults for them. The contextualizer section is the exception: it
// overlays contextualizer.DefaultConfig(), so a file only lists the
// thresholds it changes.
//
// FILES:
//   - config.go:         Root Config struct, Load(), Validate()
//   - contextualizer.go: Pipeline tuning re-exports
//   - monitoring.go:     Logging, telemetry and metrics settings
package config

import (
	"fmt"
	"net/netip"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/compresr/semantic-context/internal/audit"
	"github.com/compresr/semantic-context/internal/contextualizer"
)

// Config is the root configuration for the contextualizer service.
type Config struct {
	Server         ServerConfig         `yaml:"server"`         // HTTP server settings
	Monitoring     MonitoringConfig     `yaml:"monitoring"`     // Logging, telemetry, metrics
	Audit          AuditConfig          `yaml:"audit"`          // Audit ledger
	Contextualizer ContextualizerConfig `yaml:"contextualizer"` // Pipeline thresholds and weights
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`           // Port to listen on
	ReadTimeout  time.Duration `yaml:"read_timeout"`   // Max time to read request
	WriteTimeout time.Duration `yaml:"write_timeout"`  // Max time to write response
	RateLimit    int           `yaml:"rate_limit"`     // Requests per second per IP, 0 disables
	MaxBodyBytes int64         `yaml:"max_body_bytes"` // Request body cap, 0 uses the gateway default

	CORSOrigins    []string `yaml:"cors_origins"`    // Exact origins allowed cross-origin; "*" allows any
	TrustedProxies []string `yaml:"trusted_proxies"` // IPs or CIDRs whose X-Forwarded-For is believed
}

// ParseTrustedProxies turns addresses and CIDRs into prefixes. A bare
// address becomes a single-host prefix.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	prefixes := make([]netip.Prefix, 0, len(entries))
	for _, entry := range entries {
		entry = strings.TrimSpace(entry)
		if strings.Contains(entry, "/") {
			p, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid server.trusted_proxies entry %q: %w", entry, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid server.trusted_proxies entry %q: %w", entry, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

// AuditConfig contains audit ledger settings.
type AuditConfig struct {
	Backend       string        `yaml:"backend"`         // "jsonl" or "sqlite"
	Path          string        `yaml:"path"`            // Ledger file
	QueueSize     int           `yaml:"queue_size"`      // Pending writes before entries are dropped
	StatsRecent   int           `yaml:"stats_recent"`    // Entries returned by the stats endpoint
	StatsCacheTTL time.Duration `yaml:"stats_cache_ttl"` // How long a usage report is reused
}

// expandEnvWithDefaults expands environment variables with support for default values.
// Supports both ${VAR} and ${VAR:-default} syntax.
func expandEnvWithDefaults(s string) string {
	// Pattern matches ${VAR:-default} or ${VAR}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultValue := ""
		if len(parts) > 2 {
			defaultValue = parts[2]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		return defaultValue
	})
}

// Load reads configuration from a YAML file.
// Returns an error if the file doesn't exist or is invalid.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", path, err)
	}

	return LoadFromBytes(data)
}

// LoadFromBytes parses configuration from raw YAML bytes.
// Supports ${VAR:-default} env var expansion, env overrides, and validation.
func LoadFromBytes(data []byte) (*Config, error) {
	expanded := expandEnvWithDefaults(string(data))

	cfg := Config{Contextualizer: contextualizer.DefaultConfig()}
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Lets deployments redirect the ledger and verbosity without editing files
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func (c *Config) applyEnvOverrides() {
	if envPath := os.Getenv("CONTEXTUALIZER_AUDIT_PATH"); envPath != "" {
		c.Audit.Path = envPath
	}

	if level := os.Getenv("CONTEXTUALIZER_LOG_LEVEL"); level != "" {
		c.Monitoring.LogLevel = level
	}

	// Auto-enable telemetry if a path is provided
	if envPath := os.Getenv("CONTEXTUALIZER_TELEMETRY_LOG"); envPath != "" {
		c.Monitoring.TelemetryPath = envPath
		c.Monitoring.TelemetryEnabled = true
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	// Server validation
	if c.Server.Port == 0 {
		return fmt.Errorf("server.port is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port: %d (must be 1-65535)", c.Server.Port)
	}
	if c.Server.ReadTimeout == 0 {
		return fmt.Errorf("server.read_timeout is required")
	}
	if c.Server.WriteTimeout == 0 {
		return fmt.Errorf("server.write_timeout is required")
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("invalid server.rate_limit: %d", c.Server.RateLimit)
	}
	if c.Server.MaxBodyBytes < 0 {
		return fmt.Errorf("invalid server.max_body_bytes: %d", c.Server.MaxBodyBytes)
	}
	if _, err := ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		return err
	}
	for _, origin := range c.Server.CORSOrigins {
		if origin == "" {
			return fmt.Errorf("server.cors_origins entries must not be empty")
		}
	}

	// Audit validation
	switch c.Audit.Backend {
	case audit.BackendJSONL, audit.BackendSQLite:
	case "":
		return fmt.Errorf("audit.backend is required")
	default:
		return fmt.Errorf("invalid audit.backend: %q (must be %s or %s)", c.Audit.Backend, audit.BackendJSONL, audit.BackendSQLite)
	}
	if c.Audit.Path == "" {
		return fmt.Errorf("audit.path is required")
	}
	if c.Audit.QueueSize < 0 {
		return fmt.Errorf("invalid audit.queue_size: %d", c.Audit.QueueSize)
	}
	if c.Audit.StatsRecent < 0 {
		return fmt.Errorf("invalid audit.stats_recent: %d", c.Audit.StatsRecent)
	}
	if c.Audit.StatsCacheTTL < 0 {
		return fmt.Errorf("invalid audit.stats_cache_ttl: %s", c.Audit.StatsCacheTTL)
	}

	if err := c.Monitoring.Validate(); err != nil {
		return err
	}

	return c.Contextualizer.Validate()
}
