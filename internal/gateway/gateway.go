// Package gateway serves the contextualizer over HTTP.
//
// DESIGN: Gateway owns every long-lived collaborator of the pipeline:
//   - audit ledger (single-writer queue over the JSONL or SQLite store)
//   - usage report cache, purged each time a ledger write lands
//   - metrics, alerts, request logging and telemetry
//
// Routes:
//
//	POST /api/contextualizer/process  run the pipeline
//	GET  /api/contextualizer/config   read-only tuning snapshot
//	GET  /api/contextualizer/stats    usage report over the audit ledger
//	GET  /health                      liveness
//	GET  /metrics                     Prometheus exposition (when enabled)
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/compresr/semantic-context/internal/audit"
	"github.com/compresr/semantic-context/internal/config"
	"github.com/compresr/semantic-context/internal/contextualizer"
	"github.com/compresr/semantic-context/internal/monitoring"
	"github.com/compresr/semantic-context/internal/store"
)

// Gateway is the HTTP front of one contextualization pipeline.
type Gateway struct {
	config   *config.Config
	version  string
	pipeline *contextualizer.Pipeline
	ledger   *audit.Ledger
	stats    *store.MemoryStore[audit.Usage]

	logger        *monitoring.Logger
	metrics       *monitoring.MetricsCollector
	alerts        *monitoring.AlertManager
	requestLogger *monitoring.RequestLogger
	tracker       *monitoring.Tracker
	limiter       *clientLimiter
	proxies       []netip.Prefix

	server *http.Server
}

// Option configures a Gateway.
type Option func(*options)

type options struct {
	version      string
	logger       *monitoring.Logger
	pipelineOpts []contextualizer.Option
}

// WithVersion sets the version reported by /health.
func WithVersion(v string) Option {
	return func(o *options) { o.version = v }
}

// WithLogger overrides the logger built from the monitoring config.
func WithLogger(l *monitoring.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPipelineOptions passes extra options to contextualizer.New.
func WithPipelineOptions(opts ...contextualizer.Option) Option {
	return func(o *options) { o.pipelineOpts = append(o.pipelineOpts, opts...) }
}

// New opens the audit ledger and builds the pipeline.
func New(cfg *config.Config, opts ...Option) (*Gateway, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	proxies, err := config.ParseTrustedProxies(cfg.Server.TrustedProxies)
	if err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		logger = monitoring.New(monitoring.LoggerConfig{
			Level:  cfg.Monitoring.LogLevel,
			Format: cfg.Monitoring.LogFormat,
			Output: cfg.Monitoring.LogOutput,
		})
	}

	tracker, err := monitoring.NewTracker(monitoring.TelemetryConfig{
		Enabled:     cfg.Monitoring.TelemetryEnabled,
		LogPath:     cfg.Monitoring.TelemetryPath,
		LogToStdout: cfg.Monitoring.LogToStdout,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	g := &Gateway{
		config:        cfg,
		version:       o.version,
		stats:         store.NewMemoryStore[audit.Usage](cfg.Audit.StatsCacheTTL),
		logger:        logger,
		metrics:       monitoring.NewMetricsCollector(),
		alerts:        monitoring.NewAlertManager(logger, monitoring.AlertConfig{HighLatencyThreshold: cfg.Monitoring.HighLatencyThreshold}),
		requestLogger: monitoring.NewRequestLogger(logger),
		tracker:       tracker,
		proxies:       proxies,
	}
	if cfg.Server.RateLimit > 0 {
		g.limiter = newClientLimiter(cfg.Server.RateLimit, MaxRateLimitClients)
	}

	ledgerStore, err := audit.Open(context.Background(), cfg.Audit.Backend, cfg.Audit.Path)
	if err != nil {
		g.stats.Close()
		return nil, fmt.Errorf("open audit ledger: %w", err)
	}
	g.ledger = audit.NewLedger(ledgerStore, cfg.Audit.QueueSize,
		audit.WithErrorHook(g.onAuditError),
		audit.WithWriteHook(g.onAuditWrite),
	)

	pipelineOpts := append([]contextualizer.Option{contextualizer.WithRecorder(g.ledger)}, o.pipelineOpts...)
	g.pipeline, err = contextualizer.New(cfg.Contextualizer, pipelineOpts...)
	if err != nil {
		g.ledger.Close()
		g.stats.Close()
		return nil, err
	}

	return g, nil
}

func (g *Gateway) onAuditError(err error) {
	g.metrics.RecordAuditFailure()
	g.alerts.FlagAuditFailure(err)
}

func (g *Gateway) onAuditWrite(audit.Entry) {
	g.stats.Purge()
}

// Handler returns the routed handler wrapped in the middleware chain.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /api/contextualizer/process", g.observe(g.rateLimit(http.HandlerFunc(g.handleProcess))))
	mux.Handle("GET /api/contextualizer/config", g.observe(http.HandlerFunc(g.handleConfig)))
	mux.Handle("GET /api/contextualizer/stats", g.observe(http.HandlerFunc(g.handleStats)))
	mux.HandleFunc("GET /health", g.handleHealth)
	if g.config.Monitoring.MetricsEnabled {
		mux.Handle("GET /metrics", g.metrics.Handler())
	}

	var h http.Handler = mux
	h = g.security(h)
	h = g.requestID(h)
	h = g.panicRecovery(h)
	return h
}

// Start listens on the configured port and blocks until the server stops.
func (g *Gateway) Start() error {
	g.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", g.config.Server.Port),
		Handler:           g.Handler(),
		ReadTimeout:       g.config.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      g.config.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Int("port", g.config.Server.Port).Msg("contextualizer gateway listening")
	if err := g.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, then drains the audit queue.
func (g *Gateway) Shutdown(ctx context.Context) error {
	var errs []error
	if g.server != nil {
		if err := g.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	if err := g.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases the ledger, cache and telemetry without touching the server.
func (g *Gateway) Close() error {
	var errs []error
	if err := g.ledger.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close audit ledger: %w", err))
	}
	g.stats.Close()
	if err := g.tracker.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Pipeline exposes the underlying pipeline.
func (g *Gateway) Pipeline() *contextualizer.Pipeline { return g.pipeline }

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Debug().Err(err).Msg("write response failed")
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, msg string, status int) {
	g.writeJSON(w, status, ErrorResponse{OK: false, Error: msg})
}
