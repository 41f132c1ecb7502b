// Command worker runs a fleet of layered market-making workers, each
// quoting one market on one venue connector, against a gateway that
// mediates all on-chain interaction.
//
//	main.go                  — entry point: loads config, starts supervisor, waits for SIGINT/SIGTERM
//	internal/config          — YAML + LADDER_* env configuration
//	internal/gateway         — typed HTTP façade to the trading venue, rate-limited, dry-run capable
//	internal/book            — order book normalization
//	internal/oracle          — reference-price pipeline (TICKER/MIDDLE/LAST_FILL, SAP/WAP/VWAP)
//	internal/proposal        — layered ladder construction around the reference price
//	internal/budget          — affordability filter against free balances
//	internal/reconciler      — order tracking, stale-order cancellation, placement
//	internal/tickloop        — per-worker state machine and scheduling
//	internal/supervisor      — runs and fans in events from every configured worker
//	internal/status          — optional HTTP/WebSocket observability host
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"ladder-mm/internal/config"
	"ladder-mm/internal/gateway"
	"ladder-mm/internal/status"
	"ladder-mm/internal/supervisor"
)

func main() {
	cfgPath := "configs/config.yaml"
	if p := os.Getenv("LADDER_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", cfgPath)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	gw := gateway.NewClient(cfg.Gateway, logger)
	sup := supervisor.New(cfg, gw, logger)

	var statusServer *status.Server
	if cfg.Status.Enabled {
		statusServer = status.NewServer(cfg.Status, sup.Events(), logger)
		go func() {
			if err := statusServer.Start(); err != nil {
				logger.Error("status server failed", "error", err)
			}
		}()
		logger.Info("status host started", "url", fmt.Sprintf("http://localhost:%d", cfg.Status.Port))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := sup.Start(ctx); err != nil {
		logger.Error("failed to start supervisor", "error", err)
		os.Exit(1)
	}

	if cfg.Gateway.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("ladder market maker started", "workers", len(cfg.Workers))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig.String())

	cancel()
	sup.Stop(context.Background())

	if statusServer != nil {
		if err := statusServer.Stop(); err != nil {
			logger.Error("failed to stop status host", "error", err)
		}
	}
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
