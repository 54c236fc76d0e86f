package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/wohnblick/wohnblick/internal/model"
	"github.com/wohnblick/wohnblick/internal/store"
)

var checkOnly bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one cycle, then exit",
	Long:  "Single-shot mode: fetch all sources, process new listings, exit. With --check nothing is persisted and nothing alerts.",
	RunE:  runOnce,
}

func init() {
	runCmd.Flags().BoolVar(&checkOnly, "check", false, "fetch and print only; do not write the store or send alerts")
	rootCmd.AddCommand(runCmd)
}

func runOnce(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	var listingStore model.ListingStore
	if checkOnly {
		logger.Info("check mode: nothing will be persisted")
		listingStore = store.NewNopStore()
		cfg.Notification.Type = "log"
		cfg.Appliers.Enabled = false
	} else {
		s, closeStore, err := openStore(cfg, logger)
		if err != nil {
			logger.Error("failed to open store", "error", err)
			os.Exit(1)
		}
		defer closeStore()
		listingStore = s
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	orch := buildOrchestrator(cfg, listingStore, httpClient, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := orch.Run(ctx)
	if err != nil {
		logger.Error("cycle failed", "error", err)
		os.Exit(1)
	}

	logger.Info("run complete",
		"sources_ok", summary.SourcesOK,
		"sources_failed", summary.SourcesFailed,
		"fetched", summary.Fetched,
		"new", summary.New,
		"notified", summary.Notified,
		"baseline", summary.Baseline,
	)
	return nil
}
