package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wohnblick/wohnblick/internal/scheduler"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the watcher daemon",
	Long:  "Start the watch loop; blocks until SIGINT/SIGTERM.",
	RunE:  runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("config loaded",
		"interval", cfg.PollingInterval.String(),
		"sources", len(cfg.Sources),
		"filters_enabled", cfg.Filters.Enabled,
		"appliers_enabled", cfg.Appliers.Enabled,
	)

	quiet, err := scheduler.ParseQuietHours(cfg.QuietHours.Start, cfg.QuietHours.End)
	if err != nil {
		logger.Error("invalid quiet hours", "error", err)
		os.Exit(1)
	}

	listingStore, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	httpClient := &http.Client{Timeout: 30 * time.Second}
	orch := buildOrchestrator(cfg, listingStore, httpClient, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sched := scheduler.NewScheduler(orch, cfg.PollingInterval, quiet, logger)
	if err := sched.Run(ctx); err != nil {
		logger.Error("watcher error", "error", err)
		os.Exit(1)
	}

	logger.Info("goodbye")
	return nil
}
