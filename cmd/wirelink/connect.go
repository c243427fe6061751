package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/wirelink-dev/wirelink/internal/bridge"
	"github.com/wirelink-dev/wirelink/internal/protocol"
	"github.com/wirelink-dev/wirelink/internal/version"
)

var (
	verbose bool

	connectCmd = &cobra.Command{
		Use:   "connect",
		Short: "Run a client against a host and stream its activity to the console",
		RunE:  runConnect,
	}
)

func init() {
	connectCmd.Flags().BoolVar(&verbose, "verbose", false, "print full state JSON")
}

func runConnect(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)

	logger.Info("starting wirelink client",
		"version", version.Version,
		"commit", version.Commit,
		"host", cfg.Host.URL,
	)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	console := newConsole(verbose)
	client, err := bridge.New(clientConfig(cfg),
		bridge.WithLogger(logger),
		bridge.WithStateSink(console),
		bridge.WithNotifier(console),
		bridge.WithErrorReporter(console),
	)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start client: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := client.Stop(shutdownCtx); err != nil {
			logger.Error("client shutdown", "error", err)
		}
	}()

	go printEvents(ctx, client.Events())

	if err := client.Connect(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}

	go reportLoop(ctx, client, logger)

	logger.Info("client running - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	return nil
}

// printEvents streams phase transitions to the console.
func printEvents(ctx context.Context, events <-chan bridge.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-events:
			if ev.Err != nil {
				fmt.Printf("[PHASE] %s -> %s attempt=%d error=%v\n", ev.Prev, ev.Phase, ev.Attempt, ev.Err)
				continue
			}
			fmt.Printf("[PHASE] %s -> %s\n", ev.Prev, ev.Phase)
		}
	}
}

// reportLoop sends a periodic status report to the host and logs a
// local stats line.
func reportLoop(ctx context.Context, client *bridge.Client, logger *slog.Logger) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			env, err := protocol.New(protocol.TypeStatus, protocol.StatusPayload{State: "active"})
			if err == nil {
				env.EnsureID()
				if err := client.Send(env); err != nil {
					logger.Debug("status report skipped", "error", err)
				}
			}

			snap := client.State()
			logger.Info("stats",
				"phase", snap.Phase,
				"health_score", snap.Health.Score,
				"latency_ema_ms", snap.Health.LatencyEMA,
				"pings_sent", snap.Health.PingsSent,
				"live_queue", snap.Queue.LiveDepth,
				"offline_queue", snap.Queue.OfflineDepth,
				"pending", snap.Queue.PendingCount,
				"flushed", snap.Queue.Flushed,
				"dropped_immediate", snap.DroppedImmediate,
			)
		}
	}
}
