package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/wohnblick/wohnblick/internal/review"
)

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Browse stored listings interactively",
	Long:  "Opens a split-pane TUI over the stored listings: everything observed on the left, filter matches on the right, application history in the detail view.",
	RunE:  runReview,
}

func init() {
	rootCmd.AddCommand(reviewCmd)
}

func runReview(cmd *cobra.Command, args []string) error {
	logger := setupLogger(debug)

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	listingStore, closeStore, err := openStore(cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	return review.Run(listingStore, buildRules(cfg))
}
