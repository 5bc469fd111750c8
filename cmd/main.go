// Package main is the entry point for the semantic contextualizer.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/compresr/semantic-context/internal/config"
	"github.com/compresr/semantic-context/internal/gateway"
	"github.com/compresr/semantic-context/internal/monitoring"
)

// Version is set at build time via ldflags
var Version = "v0.1.0"

// shutdownTimeout bounds the graceful drain of in-flight requests and audit writes.
const shutdownTimeout = 30 * time.Second

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/semantic-context/.env first
	configEnv := filepath.Join(homeDir, ".config", "semantic-context", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run dispatches a subcommand and returns the process exit code.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve", "start":
		return runServe(args, stderr)
	case "process":
		return runProcess(args, stdin, stdout, stderr)
	case "stats":
		return runStats(args, stdout, stderr)
	case "version", "-v", "--version":
		fmt.Fprintf(stdout, "%s %s\n", gateway.ServiceName, Version)
		return 0
	case "help", "-h", "--help":
		printHelp(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n\n", cmd)
		printHelp(stderr)
		return 2
	}
}

// resolveConfig resolves the config.
// Checks: user flag -> filesystem locations -> embedded config.
// Returns raw bytes and source description.
func resolveConfig(userConfig string) ([]byte, string, error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	searchPaths := []string{}
	if homeDir, _ := os.UserHomeDir(); homeDir != "" {
		searchPaths = append(searchPaths, filepath.Join(homeDir, ".config", "semantic-context", "config.yaml"))
	}
	searchPaths = append(searchPaths, "configs/config.yaml")

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	if data, err := getEmbeddedConfig("config"); err == nil {
		return data, "(embedded) config.yaml", nil
	}
	return nil, "", fmt.Errorf("no config file found. Specify --config path")
}

// loadConfig resolves and parses the config, raising the log level when debug is set.
func loadConfig(path string, debug bool) (*config.Config, string, error) {
	data, source, err := resolveConfig(path)
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.LoadFromBytes(data)
	if err != nil {
		return nil, source, fmt.Errorf("%s: %w", source, err)
	}
	if debug {
		cfg.Monitoring.LogLevel = "debug"
	}
	return cfg, source, nil
}

// =============================================================================
// SERVE
// =============================================================================

func runServe(args []string, stderr io.Writer) int {
	loadEnvFiles()

	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, source, err := loadConfig(*configPath, *debug)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	logger := monitoring.Global(monitoring.LoggerConfig{
		Level:  cfg.Monitoring.LogLevel,
		Format: cfg.Monitoring.LogFormat,
		Output: cfg.Monitoring.LogOutput,
	})
	log.Info().
		Str("version", Version).
		Str("config", source).
		Int("port", cfg.Server.Port).
		Str("audit_backend", cfg.Audit.Backend).
		Str("audit_path", cfg.Audit.Path).
		Msg("semantic contextualizer starting")

	gw, err := gateway.New(cfg, gateway.WithVersion(Version), gateway.WithLogger(logger))
	if err != nil {
		log.Error().Err(err).Msg("failed to create gateway")
		return 1
	}

	// Handle graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := gw.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("gateway shutdown error")
		}
	}()

	if err := gw.Start(); err != nil {
		log.Error().Err(err).Msg("gateway error")
		_ = gw.Close()
		return 1
	}
	<-done

	log.Info().Msg("semantic contextualizer stopped")
	return 0
}

// =============================================================================
// PROCESS / STATS
// =============================================================================

// runProcess runs one request body through the pipeline without starting a server.
// The body has the same shape as POST /api/contextualizer/process.
func runProcess(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	loadEnvFiles()

	fs := flag.NewFlagSet("process", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	input := fs.String("input", "-", "request JSON file, - for stdin")
	maxTokens := fs.Int("max-tokens", 0, "token budget, overrides the body's maxTokens")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configPath, false)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 1
	}

	body, err := readInput(*input, stdin)
	if err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return 1
	}
	req, err := gateway.ParseProcessRequest(body)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	if *maxTokens > 0 {
		req.MaxTokens = *maxTokens
	}

	gw, err := newQuietGateway(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	// Close drains the audit write for this run.
	defer func() { _ = gw.Close() }()

	res, err := gw.Pipeline().Process(req.Messages, req.MaxTokens)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}

	return writeOutput(stdout, stderr, gateway.ProcessResponse{
		OK:       true,
		Service:  gateway.ServiceName,
		Pipeline: gateway.PipelineName,
		ID:       res.ID,
		Context:  res.Context,
		Stats:    res.Stats,
		Dropped:  res.Dropped,
	})
}

// runStats prints the usage report for the configured audit ledger.
func runStats(args []string, stdout, stderr io.Writer) int {
	loadEnvFiles()

	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	recent := fs.Int("recent", 0, "recent entries to include, overrides audit.stats_recent")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, _, err := loadConfig(*configPath, false)
	if err != nil {
		fmt.Fprintf(stderr, "failed to load configuration: %v\n", err)
		return 1
	}
	if *recent > 0 {
		cfg.Audit.StatsRecent = *recent
	}

	gw, err := newQuietGateway(cfg, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "%v\n", err)
		return 1
	}
	defer func() { _ = gw.Close() }()

	return writeOutput(stdout, stderr, gateway.StatsResponse{
		OK:      true,
		Service: gateway.ServiceName,
		Usage:   gw.Usage(context.Background()),
	})
}

// newQuietGateway builds a gateway whose logs go to stderr at warn level, keeping stdout for JSON.
func newQuietGateway(cfg *config.Config, stderr io.Writer) (*gateway.Gateway, error) {
	logger := monitoring.NewWriterLogger(stderr, zerolog.WarnLevel)
	log.Logger = log.Output(stderr).Level(zerolog.WarnLevel)
	cfg.Monitoring.TelemetryEnabled = false
	return gateway.New(cfg, gateway.WithVersion(Version), gateway.WithLogger(logger))
}

func readInput(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" || path == "" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

// writeOutput prints v as JSON, indented when stdout is a terminal.
func writeOutput(stdout, stderr io.Writer, v any) int {
	enc := json.NewEncoder(stdout)
	if f, ok := stdout.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

// printHelp prints usage information
func printHelp(w io.Writer) {
	fmt.Fprintln(w, "Semantic contextualizer - packs conversation history into a token budget")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  semantic-context [command] [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the HTTP server (default)")
	fmt.Fprintln(w, "  process      Contextualize one request body and print the result")
	fmt.Fprintln(w, "  stats        Print the audit ledger usage report")
	fmt.Fprintln(w, "  version      Print version information")
	fmt.Fprintln(w, "  help         Show this help message")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  serve   [--config FILE] [--debug]")
	fmt.Fprintln(w, "  process [--config FILE] [--input FILE|-] [--max-tokens N]")
	fmt.Fprintln(w, "  stats   [--config FILE] [--recent N]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Examples:")
	fmt.Fprintln(w, "  semantic-context serve --config configs/config.yaml")
	fmt.Fprintln(w, `  echo '{"messages":["We decided to ship Friday."]}' | semantic-context process`)
}
