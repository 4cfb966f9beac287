// Package main implements the fetchkit command line tool. It loads a client
// configuration, fetches one or more JSON endpoints concurrently, and prints
// the responses to stdout. Responses are cached, retried, and rate limited
// per the configuration.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/c360/fetchkit/client"
	"github.com/c360/fetchkit/config"
	"github.com/c360/fetchkit/health"
	"github.com/c360/fetchkit/metric"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "fetchkit"
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
		slog.Error("fetch failed", "error", err, "exit_code", 1)
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

	cfg, err := config.NewLoader().LoadFile(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cliCfg.Validate {
		slog.Info("configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, cliCfg.Timeout)
	defer cancel()

	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry, cfg.TLS.Server)

		// Start blocks until the server stops, so it runs in its own
		// goroutine; Stop below unblocks it on the way out.
		go func() {
			slog.Info("starting metrics server", "address", metricsServer.Address())
			if err := metricsServer.Start(); err != nil {
				slog.Error("metrics server error", "error", err)
			}
		}()
		defer func() { _ = metricsServer.Stop() }()

		monitor.UpdateHealthy("metrics_server", "serving "+cfg.Metrics.Path)
	}

	c, err := client.New(cfg,
		client.WithLogger(logger),
		client.WithMetricsRegistry(registry))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}
	defer func() { _ = c.Close() }()

	if metricsServer != nil {
		metricsServer.SetHealthProvider(func() health.Status {
			monitor.Update("client", c.Health())
			return monitor.Overall(appName)
		})
	}

	results, err := fetchAll(ctx, c, cliCfg.Endpoints)
	if err != nil {
		return err
	}

	if err := printResults(results, cliCfg.Pretty); err != nil {
		return err
	}

	stats := c.Stats()
	slog.Info("fetch complete",
		"endpoints", len(cliCfg.Endpoints),
		"total_requests", stats.TotalRequests,
		"cache_hits", stats.CacheHits,
		"failed", stats.FailedRequests)

	return nil
}

// fetchResult pairs an endpoint with its response body for output.
type fetchResult struct {
	Endpoint string          `json:"endpoint"`
	Data     json.RawMessage `json:"data"`
}

// fetchAll fetches every endpoint concurrently and preserves argument order
// in the result. The first failure cancels the remaining fetches.
func fetchAll(ctx context.Context, c *client.Client, endpoints []string) ([]fetchResult, error) {
	results := make([]fetchResult, len(endpoints))

	g, gctx := errgroup.WithContext(ctx)
	for i, endpoint := range endpoints {
		i, endpoint := i, endpoint
		g.Go(func() error {
			body, err := c.FetchJSON(gctx, endpoint, nil)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", endpoint, err)
			}
			results[i] = fetchResult{Endpoint: endpoint, Data: body}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func printResults(results []fetchResult, pretty bool) error {
	enc := json.NewEncoder(os.Stdout)
	if pretty {
		enc.SetIndent("", "  ")
	}
	for _, res := range results {
		if err := enc.Encode(res); err != nil {
			return fmt.Errorf("encode result for %s: %w", res.Endpoint, err)
		}
	}
	return nil
}
