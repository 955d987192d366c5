package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SevenOfNine-ai/redditgw/internal/config"
	"github.com/SevenOfNine-ai/redditgw/internal/gateway"
	"github.com/SevenOfNine-ai/redditgw/internal/metrics"
	"github.com/SevenOfNine-ai/redditgw/internal/observability"
	"github.com/SevenOfNine-ai/redditgw/internal/server"
	"github.com/SevenOfNine-ai/redditgw/internal/server/handlers"
)

// telemetryHealthChecker fails when metrics are enabled but the exporter is gone.
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errors.New("telemetry system not initialized")
	}
	return nil
}

// gatewayHealthChecker gates readiness on a connected bridge and a clean
// parity check, reconnecting when either is missing.
type gatewayHealthChecker struct {
	gw *gateway.Gateway
}

func (c gatewayHealthChecker) CheckHealth(ctx context.Context) error {
	if ready, reason := c.gw.Reconcile(ctx); !ready {
		return errors.New(reason)
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server and the HTTP gateway",
	Long: `Start the upstream MCP server, check tool parity and serve the HTTP API.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Re-validate the config file (restart to apply)

Shutdown stops the HTTP server, then the MCP server child, then flushes logs.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")

	_ = v.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	_ = v.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	cfg := loadConfig()

	logLevel := cfg.Logging.Level
	if verbose {
		logLevel = "debug"
	}
	observability.InitServerLogger(config.AppName, logLevel)
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(config.AppName, cfg.Metrics.Port); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return fmt.Errorf("metrics initialization failed: %w", err)
		}
	}

	rt, err := openRuntime(ctx, cfg, logger)
	if err != nil {
		ExitWithCode(logger, foundry.ExitConfigInvalid, "Failed to prepare gateway", err)
	}

	logger.Info("Initializing gateway",
		zap.String("version", versionInfo.Version),
		zap.Bool("write_enabled", cfg.Write.Enabled),
		zap.String("safe_mode", cfg.SafeMode()),
		zap.String("command", rt.launch.Command),
		zap.Strings("env_keys", rt.launch.EnvKeys()),
		zap.Bool("audit", cfg.Audit.Enabled))

	if _, err := rt.gw.CheckParity(ctx); err != nil {
		_ = rt.Close()
		ExitWithCode(logger, foundry.ExitExternalServiceUnavailable, "Strict startup check failed", err)
	}

	handlers.InitHealthManager(versionInfo.Version)
	hm := handlers.GetHealthManager()
	hm.RegisterChecker("process", handlers.CheckerFunc(func(context.Context) error { return nil }))
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}
	hm.RegisterReadinessChecker("gateway", gatewayHealthChecker{gw: rt.gw})

	srv := server.New(cfg.Server, rt.gw)

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Handlers run LIFO: HTTP server, then bridge and ledger, then logger.
	signals.OnShutdown(func(ctx context.Context) error {
		if err := logger.Sync(); err != nil {
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Stopping MCP server")
		if err := rt.Close(); err != nil {
			logger.Warn("Gateway close returned error", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: validating config file")
		if err := v.ReadInConfig(); err != nil {
			logger.Error("Failed to read config file", zap.String("file", v.ConfigFileUsed()), zap.Error(err))
			return err
		}
		if _, err := config.Load(v); err != nil {
			logger.Error("Config file is invalid", zap.Error(err))
			return err
		}
		logger.Info("Config file is valid; restart to apply changes", zap.String("file", v.ConfigFileUsed()))
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	metrics.SetServerStartTime(time.Now().Unix())

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errChan <- err
		}
	}()

	go func() {
		if err := signals.Listen(ctx); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		_ = rt.Close()
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}
