package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wirelink-dev/wirelink/internal/host"
	"github.com/wirelink-dev/wirelink/internal/version"
)

var (
	broadcastEvery time.Duration

	hostCmd = &cobra.Command{
		Use:   "host",
		Short: "Run a loopback development host",
		RunE:  runHost,
	}
)

func init() {
	hostCmd.Flags().DurationVar(&broadcastEvery, "broadcast-interval", 15*time.Second, "spacing between synthetic state broadcasts")
}

func runHost(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log.Level)

	logger.Info("starting wirelink host",
		"version", version.Version,
		"commit", version.Commit,
		"listen_addr", cfg.Host.ListenAddr,
	)

	ctx, cancel := signalContext(cmd.Context(), logger)
	defer cancel()

	h := host.New(host.Config{
		ListenAddr:        cfg.Host.ListenAddr,
		BroadcastInterval: broadcastEvery,
		WriteTimeout:      cfg.Session.WriteTimeout,
	}, logger)

	if err := h.Start(ctx); err != nil {
		return fmt.Errorf("start host: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := h.Stop(shutdownCtx); err != nil {
			logger.Error("host shutdown", "error", err)
		}
	}()

	logger.Info("host running - press Ctrl+C to stop",
		"ws_url", fmt.Sprintf("ws://%s/ws", h.Addr()),
		"healthz_url", fmt.Sprintf("http://%s/healthz", h.Addr()),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	return nil
}
