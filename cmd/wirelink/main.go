// Package main is the wirelink application entrypoint.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wirelink-dev/wirelink/internal/bridge"
	"github.com/wirelink-dev/wirelink/internal/config"
	"github.com/wirelink-dev/wirelink/internal/health"
	"github.com/wirelink-dev/wirelink/internal/queue"
	"github.com/wirelink-dev/wirelink/internal/reconnect"
	"github.com/wirelink-dev/wirelink/internal/router"
	"github.com/wirelink-dev/wirelink/internal/version"
)

// CLI command definitions.
var (
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:          "wirelink",
		Short:        "Workspace link client and loopback development host",
		Version:      version.String(),
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (built-in defaults apply when omitted)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override the configured log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		connectCmd,
		hostCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration. Without --config
// the built-in defaults apply, which point at the loopback host.
func loadConfig() (*config.ClientConfig, error) {
	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadAndValidate(configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("validate config: %w", err)
		}
	}
	return cfg, nil
}

// newLogger builds the process logger at the configured level and
// installs it as the slog default.
func newLogger(level string) *slog.Logger {
	var lv slog.Level
	switch level {
	case "debug":
		lv = slog.LevelDebug
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	default:
		lv = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: lv,
	}))
	slog.SetDefault(logger)
	return logger
}

// signalContext derives a context that is canceled on SIGINT or
// SIGTERM.
func signalContext(parent context.Context, logger *slog.Logger) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// clientConfig maps the file schema onto the client's component
// configuration.
func clientConfig(cfg *config.ClientConfig) bridge.Config {
	return bridge.Config{
		URL:            cfg.Host.URL,
		ParticipantID:  cfg.Session.ParticipantID,
		ConnectTimeout: cfg.Session.ConnectTimeout,
		WriteTimeout:   cfg.Session.WriteTimeout,
		EventBuffer:    cfg.Session.EventBuffer,
		Health: health.Config{
			Interval:       cfg.Heartbeat.Interval,
			WideInterval:   cfg.Heartbeat.WideInterval,
			NarrowInterval: cfg.Heartbeat.NarrowInterval,
			Timeout:        cfg.Heartbeat.Timeout,
			SampleWindow:   cfg.Heartbeat.SampleWindow,
		},
		Reconnect: reconnect.Config{
			MaxAttempts: cfg.Reconnect.MaxAttempts,
			BaseDelay:   cfg.Reconnect.BaseDelay,
			MaxDelay:    cfg.Reconnect.MaxDelay,
			Multiplier:  cfg.Reconnect.Multiplier,
			JitterRatio: cfg.Reconnect.JitterRatio,
			OfflinePoll: cfg.Reconnect.OfflinePoll,
		},
		Queue: queue.Config{
			LiveBound:      cfg.Queues.LiveBound,
			OfflineBound:   cfg.Queues.OfflineBound,
			FlushBatch:     cfg.Queues.FlushBatch,
			FlushSpacing:   cfg.Queues.FlushSpacing,
			RequestTimeout: cfg.Queues.RequestTimeout,
			SweepInterval:  cfg.Queues.SweepInterval,
			PendingTTL:     cfg.Queues.PendingTTL,
			StatusTTL:      cfg.Queues.StatusTTL,
			DedupTTL:       cfg.Queues.DedupTTL,
		},
		Router: router.Config{
			TypingStaleness: cfg.Typing.Staleness,
			TypingPrune:     cfg.Typing.PruneInterval,
		},
	}
}
