// Package main implements the entry point for the sparqlgate service,
// a safety gateway that fronts public SPARQL endpoints for LLM agents:
// queries are linted, cached, throttled, executed and automatically
// repaired before results are returned.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/sparqlgate/audit"
	"github.com/c360/sparqlgate/config"
	ghttp "github.com/c360/sparqlgate/gateway/http"
	"github.com/c360/sparqlgate/grounding"
	"github.com/c360/sparqlgate/health"
	"github.com/c360/sparqlgate/metric"
	"github.com/c360/sparqlgate/pipeline"
	"github.com/c360/sparqlgate/pkg/cache"
	"github.com/c360/sparqlgate/throttle"
	"github.com/c360/sparqlgate/transport"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "sparqlgate"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return err
	}
	if cliCfg.Validate {
		slog.Info("Configuration is valid")
		return nil
	}

	slog.Info("Starting sparqlgate",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"endpoints", len(cfg.Endpoints))

	ctx := context.Background()
	registry := metric.NewRegistry()
	core := registry.CoreMetrics()
	monitor := health.NewMonitor()

	// Audit publishing is best-effort: a missing broker degrades, never
	// blocks startup.
	var publisher *audit.Publisher
	var nc *nats.Conn
	if cfg.Audit.Enabled {
		nc, err = nats.Connect(cfg.Audit.URL,
			nats.Name(appName),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second))
		if err != nil {
			logger.Warn("audit broker unreachable, continuing without audit", "error", err)
			monitor.UpdateDegraded("audit", "broker unreachable")
		} else {
			defer nc.Close()
			publisher = audit.NewPublisher(nc, cfg.Audit.Subject, logger)
			monitor.UpdateHealthy("audit", "connected")
		}
	}

	searcher, err := buildGrounding(ctx, cfg, registry, logger)
	if err != nil {
		return err
	}
	monitor.UpdateHealthy("grounding", "ready")

	runners, pingClient, err := buildRunners(ctx, cfg, core, registry, publisher, logger)
	if err != nil {
		return err
	}
	monitor.UpdateHealthy("pipeline", "ready")

	var pinger ghttp.Pinger
	if pingClient != nil {
		pinger = pingClient
	}

	// HTTP API
	api := ghttp.NewServer(runners, searcher, pinger, monitor, logger)
	mux := http.NewServeMux()
	api.Routes(mux)
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	metricsSrv := metric.NewServer(cfg.Server.MetricsPort, "/metrics", registry)
	if err := metricsSrv.Start(); err != nil {
		return err
	}
	defer func() { _ = metricsSrv.Stop() }()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return err
	case <-sigCtx.Done():
		logger.Info("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, cliCfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	logger.Info("Shutdown complete")
	return nil
}

// buildGrounding wires the entity search client with its cache pools.
func buildGrounding(ctx context.Context, cfg *config.Config, registry *metric.Registry, logger *slog.Logger) (*grounding.Client, error) {
	opts := []grounding.Option{
		grounding.WithUserAgent(cfg.Grounding.UserAgent),
		grounding.WithMetrics(registry.CoreMetrics()),
		grounding.WithLogger(logger),
	}

	if cfg.Cache.Enabled {
		entities, err := cache.NewTTL[[]grounding.Match](ctx, cfg.EntityTTL(), cfg.EntityTTL(),
			cache.WithMetrics[[]grounding.Match](registry, "entity"))
		if err != nil {
			return nil, err
		}
		properties, err := cache.NewTTL[[]grounding.Match](ctx, cfg.EntityTTL(), cfg.EntityTTL(),
			cache.WithMetrics[[]grounding.Match](registry, "property"))
		if err != nil {
			return nil, err
		}
		schema, err := cache.NewTTL[string](ctx, cfg.SchemaTTL(), cfg.SchemaTTL(),
			cache.WithMetrics[string](registry, "schema"))
		if err != nil {
			return nil, err
		}
		opts = append(opts, grounding.WithCaches(entities, properties, schema))
	}

	return grounding.New(cfg.Grounding.APIURL, opts...), nil
}

// buildRunners creates one pipeline per configured endpoint class.
func buildRunners(ctx context.Context, cfg *config.Config, core *metric.Metrics, registry *metric.Registry,
	publisher *audit.Publisher, logger *slog.Logger) (map[string]*pipeline.Runner, *transport.Client, error) {

	var results cache.Cache[pipeline.CachedResult]
	if cfg.Cache.Enabled {
		var err error
		results, err = cache.NewTTL[pipeline.CachedResult](ctx, cfg.QueryTTL(), cfg.QueryTTL(),
			cache.WithMetrics[pipeline.CachedResult](registry, "query"))
		if err != nil {
			return nil, nil, err
		}
	}

	var pingClient *transport.Client
	runners := make(map[string]*pipeline.Runner, len(cfg.Endpoints))
	for class, ep := range cfg.Endpoints {
		client, err := transport.New(ep.URL,
			transport.WithUserAgent(cfg.Grounding.UserAgent),
			transport.WithLogger(logger.With("endpoint", class)))
		if err != nil {
			return nil, nil, err
		}
		if pingClient == nil || class == "wikidata" {
			pingClient = client
		}

		th := throttle.New(
			throttle.WithMinInterval(ep.MinInterval()),
			throttle.WithMetrics(core))

		opts := []pipeline.Option{
			pipeline.WithMetrics(core),
			pipeline.WithAudit(publisher),
			pipeline.WithLogger(logger.With("endpoint", class)),
			pipeline.WithLimitCap(ep.LimitCap),
			pipeline.WithDefaultTimeout(ep.Timeout()),
			pipeline.WithGrounding(ep.RequireGrounding),
		}
		if results != nil {
			opts = append(opts, pipeline.WithCache(results))
		}

		runners[class] = pipeline.New(class, client, th, opts...)
	}
	return runners, pingClient, nil
}
