package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/jacklatrobe/MCP-Guardian/internal/adapter/inbound/adminhttp"
	"github.com/jacklatrobe/MCP-Guardian/internal/adapter/inbound/proxyhttp"
	"github.com/jacklatrobe/MCP-Guardian/internal/adapter/outbound/mcpclient"
	"github.com/jacklatrobe/MCP-Guardian/internal/adapter/outbound/sqlite"
	"github.com/jacklatrobe/MCP-Guardian/internal/config"
	"github.com/jacklatrobe/MCP-Guardian/internal/domain/registry"
	"github.com/jacklatrobe/MCP-Guardian/internal/observability"
	"github.com/jacklatrobe/MCP-Guardian/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	Long: `Start the MCP Guardian proxy server.

This wires together the SQLite repository, the in-memory route registry,
the upstream MCP client, the route poller and check scheduler, and the
proxy/admin/health/metrics HTTP surfaces described by spec.md §2, then
serves until an interrupt or termination signal arrives.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&devMode, "dev", false, "Enable development mode (verbose logging)")
	rootCmd.AddCommand(serveCmd)
}

var devMode bool

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigRaw()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if devMode {
		cfg.DevMode = true
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	logLevel := parseLogLevel(cfg.Server.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	if configFile := config.ConfigFileUsed(); configFile != "" {
		logger.Info("loaded config", "file", configFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger)
}

// run wires every component together and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.GuardianConfig, logger *slog.Logger) error {
	shutdownTracing, err := observability.SetupTracing(ctx)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	store, err := sqlite.Open(ctx, cfg.Database.URL, logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() { _ = store.Close() }()

	for _, seed := range cfg.Services {
		if _, created, err := store.UpsertServiceFromConfig(ctx, seed.Name, seed.UpstreamURL, seed.Enabled, seed.CheckFrequencyMinutes); err != nil {
			logger.Error("seed service failed", "service", seed.Name, "error", err)
		} else if created {
			logger.Info("seeded service from config", "service", seed.Name)
		}
	}

	routes := registry.New(logger)
	if err := routes.Reload(ctx, store); err != nil {
		return fmt.Errorf("initial route registry load: %w", err)
	}

	client := mcpclient.New(mcpclient.WithRequestTimeout(proxyhttp.DefaultFirstByteTimeout))
	snapshotter := service.NewSnapshotter(client)
	adminService := service.NewAdminService(store, routes, snapshotter, cfg.Polling.MinCheckFrequency, logger)

	pollInterval := time.Duration(cfg.Polling.IntervalSeconds) * time.Second
	routePoller := service.NewRoutePoller(routes, store, pollInterval, logger)
	routePoller.SetMetrics(metrics)
	routePoller.Start(ctx)
	defer routePoller.Stop()

	checkScheduler := service.NewCheckScheduler(store, routes, snapshotter, pollInterval, logger)
	checkScheduler.SetMetrics(metrics)
	checkScheduler.Start(ctx)
	defer checkScheduler.Stop()

	proxy := proxyhttp.New(routes, client, logger)
	var proxyHandler http.Handler = observability.ProxyMetricsMiddleware(metrics)(proxy)

	mux := http.NewServeMux()
	mux.Handle("/", proxyHandler)

	if !cfg.Admin.DisableUI {
		// cfg.Admin.Password is an argon2id hash (see config.AdminConfig.Password).
		adminHandler := adminhttp.New(adminService, cfg.Admin.Password, logger)
		mux.Handle("/admin/api/", adminHandler.Routes())
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	server := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: mux,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("mcp-guardian starting",
			"version", Version,
			"dev_mode", cfg.DevMode,
			"http_addr", cfg.Server.HTTPAddr,
			"route_count", routeCount(routes),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during server shutdown", "error", err)
		return err
	}

	logger.Info("mcp-guardian stopped")
	return nil
}

// routeCount reads the registry's current route table size for the
// startup log line, avoiding a second repository round-trip.
func routeCount(r *registry.Registry) int {
	return r.Size()
}

// parseLogLevel converts a string log level to slog.Level, defaulting to
// info for unrecognized values.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

