// Package main implements the Quicklook acquisition service: it reads
// normalized detector events from the configured source, aggregates
// them into fixed-duration windows, and serves the live snapshot over
// REST and WebSocket for the monitoring dashboard.
package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MaigomAS/Quicklook/acquire"
	"github.com/MaigomAS/Quicklook/config"
	gateway "github.com/MaigomAS/Quicklook/gateway/http"
	"github.com/MaigomAS/Quicklook/health"
	"github.com/MaigomAS/Quicklook/metric"
	"github.com/MaigomAS/Quicklook/natsclient"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "quicklookd"
)

func main() {
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

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		slog.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	slog.Info("Starting Quicklook acquisition service",
		"version", Version,
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"mode", cfg.Acquisition.Mode)

	registry := metric.NewRegistry()

	engine := acquire.NewEngine(cfg.Acquisition, logger, registry.CoreMetrics())
	if err := engine.Initialize(); err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	monitor := health.NewMonitor()

	gw, err := gateway.NewGateway(engine, monitor, cfg.HTTP.CORSOrigins, logger)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	signalCtx, signalCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := engine.Start(signalCtx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	if err := gw.Start(signalCtx); err != nil {
		return fmt.Errorf("start gateway: %w", err)
	}

	natsClient := connectNATS(signalCtx, cfg, logger, registry.CoreMetrics())
	if natsClient != nil {
		defer natsClient.Close()
	}

	mux := http.NewServeMux()
	gw.RegisterHTTPHandlers("/api/acquisition", mux)
	apiServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	var metricsServer *metric.Server
	if cfg.Metrics.Enabled {
		metricsServer = metric.NewServer(cfg.Metrics.Port, cfg.Metrics.Path, registry)
	}

	g, ctx := errgroup.WithContext(signalCtx)

	g.Go(func() error {
		slog.Info("HTTP API listening", "port", cfg.HTTP.Port)
		if err := apiServer.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if metricsServer != nil {
		g.Go(func() error {
			slog.Info("Metrics server listening", "address", metricsServer.Address())
			if err := metricsServer.Start(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("metrics server: %w", err)
			}
			return nil
		})
	}

	if natsClient != nil {
		g.Go(func() error {
			publishSnapshots(ctx, engine, natsClient, cfg.NATS.Subject, logger)
			return nil
		})
	}

	g.Go(func() error {
		watchHealth(ctx, engine, gw, monitor)
		return nil
	})

	// Shutdown sequencing: close the listeners once the signal context
	// is cancelled, then the errgroup drains.
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("Received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cliCfg.ShutdownTimeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("HTTP server shutdown failed", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Stop(); err != nil {
				slog.Warn("Metrics server stop failed", "error", err)
			}
		}
		return nil
	})

	slog.Info("Quicklook started successfully")

	groupErr := g.Wait()

	if err := engine.Stop(cliCfg.ShutdownTimeout); err != nil {
		slog.Warn("Engine stop failed", "error", err)
	}
	if err := gw.Stop(cliCfg.ShutdownTimeout); err != nil {
		slog.Warn("Gateway stop failed", "error", err)
	}
	if groupErr != nil {
		return groupErr
	}

	slog.Info("Quicklook shutdown complete")
	return nil
}

// connectNATS dials the optional NATS sink. A broker that is down at
// startup is a warning, not a failure; snapshots simply stay local.
func connectNATS(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *metric.Metrics) *natsclient.Client {
	if !cfg.NATS.Enabled {
		return nil
	}

	client, err := natsclient.NewClient(cfg.NATS.URL,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(metrics),
	)
	if err != nil {
		slog.Warn("NATS client creation failed, continuing without NATS", "error", err)
		return nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := client.Connect(connectCtx); err != nil {
		slog.Warn("NATS unavailable, continuing without NATS", "url", cfg.NATS.URL, "error", err)
		return nil
	}
	return client
}

// watchHealth periodically folds component health into the monitor that
// backs the /health endpoint.
func watchHealth(ctx context.Context, engine *acquire.Engine, gw *gateway.Gateway, monitor *health.Monitor) {
	update := func() {
		monitor.Update("engine", health.FromComponentHealth("engine", engine.Health()))
		monitor.Update("http-gateway", health.FromComponentHealth("http-gateway", gw.Health()))
	}
	update()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			update()
		}
	}
}
