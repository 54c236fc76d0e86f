package main

import (
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/wohnblick/wohnblick/internal/apply"
	"github.com/wohnblick/wohnblick/internal/borough"
	"github.com/wohnblick/wohnblick/internal/config"
	"github.com/wohnblick/wohnblick/internal/cycle"
	"github.com/wohnblick/wohnblick/internal/filter"
	"github.com/wohnblick/wohnblick/internal/model"
	"github.com/wohnblick/wohnblick/internal/notifier"
	"github.com/wohnblick/wohnblick/internal/ratelimit"
	"github.com/wohnblick/wohnblick/internal/retry"
	"github.com/wohnblick/wohnblick/internal/source"
	"github.com/wohnblick/wohnblick/internal/store"
)

var (
	cfgPath string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "wohnblick",
	Short: "Berlin apartment watcher — alerted before the crowd",
	Long:  "Wohnblick polls Berlin landlord sites and alerts you the moment a new apartment listing appears, optionally applying automatically.",
	// Default to `start` so that `wohnblick` with no args runs the daemon.
	// This preserves compatibility with systemd unit files that invoke the binary directly.
	RunE: runStart,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (default: WOHNBLICK_CONFIG env var or ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
}

// loadConfig resolves the config path and parses it.
// Priority: explicit path arg > WOHNBLICK_CONFIG env var > "./config.yaml"
func loadConfig(path string) (*config.Config, error) {
	// Secrets like the bot token live in .env during development; the config
	// file references them as ${VAR}.
	_ = godotenv.Load()

	if path == "" {
		if env := os.Getenv("WOHNBLICK_CONFIG"); env != "" {
			path = env
		} else {
			path = "config.yaml"
		}
	}
	return config.Load(path)
}

func setupLogger(dbg bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if dbg {
		logLevel = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}))
}

func setupNotifier(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) model.Notifier {
	switch cfg.Notification.Type {
	case "telegram":
		logger.Info("using telegram notifier", "chat_id", cfg.Notification.ChatID)
		return notifier.NewTelegramNotifier(cfg.Notification.BotToken, cfg.Notification.ChatID, httpClient, logger)
	default:
		return notifier.NewLogNotifier(logger)
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (model.ListingStore, func(), error) {
	switch cfg.Store.Backend {
	case "postgres":
		logger.Info("using postgres store")
		s, err := store.NewPostgresStore(cfg.Store.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		logger.Info("using sqlite store", "path", cfg.Store.Path)
		s, err := store.NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	}
}

func buildRules(cfg *config.Config) filter.Rules {
	wbs := filter.WBSRuleNone
	switch cfg.Filters.WBS {
	case "accept-all":
		wbs = filter.WBSRuleAcceptAll
	case "reject-required":
		wbs = filter.WBSRuleRejectRequired
	}
	return filter.Rules{
		Enabled:  cfg.Filters.Enabled,
		Price:    filter.RangeRule{Min: cfg.Filters.PriceTotal.Min, Max: cfg.Filters.PriceTotal.Max},
		Sqm:      filter.RangeRule{Min: cfg.Filters.Sqm.Min, Max: cfg.Filters.Sqm.Max},
		Rooms:    filter.RangeRule{Min: cfg.Filters.Rooms.Min, Max: cfg.Filters.Rooms.Max},
		Boroughs: cfg.Filters.Boroughs,
		WBS:      wbs,
	}
}

// hostGroup keys the shared rate limiter: all wohnraumkarte landlords hit the
// same backend and must share one budget.
func hostGroup(s config.SourceConfig) string {
	if s.Kind == "wohnraumkarte" {
		return "wohnraumkarte"
	}
	return s.Name
}

func buildAdapters(cfg *config.Config, httpClient *http.Client, logger *slog.Logger) []model.SourceAdapter {
	limiter := ratelimit.NewHostRateLimiter(cfg.RateLimit.MinDelay)

	var adapters []model.SourceAdapter
	for _, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}

		var adapter model.SourceAdapter
		switch src.Kind {
		case "wohnraumkarte":
			adapter = source.NewWohnraumkarteAdapter(src.Name, src.BaseURL, src.Referer, src.Dataset, httpClient)
		case "inberlinwohnen":
			adapter = source.NewInBerlinWohnenAdapter(src.Name, httpClient)
		default:
			logger.Warn("unsupported source kind, skipping", "source", src.Name, "kind", src.Kind)
			continue
		}

		adapter = ratelimit.NewRateLimitedAdapter(adapter, limiter, hostGroup(src))
		adapter = retry.NewRetryAdapter(adapter, cfg.Retry.MaxRetries, cfg.Retry.BaseDelay, logger)
		adapters = append(adapters, adapter)
		logger.Info("registered source", "name", src.Name, "kind", src.Kind)
	}
	return adapters
}

func buildCoordinator(cfg *config.Config, s model.ListingStore, n model.Notifier, httpClient *http.Client, logger *slog.Logger) *apply.Coordinator {
	if !cfg.Appliers.Enabled {
		return nil
	}

	profile := apply.Profile{
		Salutation: cfg.Appliers.Profile.Salutation,
		FirstName:  cfg.Appliers.Profile.FirstName,
		LastName:   cfg.Appliers.Profile.LastName,
		Email:      cfg.Appliers.Profile.Email,
		Phone:      cfg.Appliers.Profile.Phone,
		Street:     cfg.Appliers.Profile.Street,
		Zip:        cfg.Appliers.Profile.Zip,
		City:       cfg.Appliers.Profile.City,
		HasWBS:     cfg.Appliers.Profile.HasWBS,
	}

	var appliers []model.Applier
	if cfg.Appliers.WBM {
		appliers = append(appliers, apply.NewWBMApplier(profile, httpClient, logger))
		logger.Info("registered applier", "provider", "wbm")
	}
	if cfg.Appliers.Berlinovo {
		appliers = append(appliers, apply.NewBerlinovoApplier(profile, logger))
		logger.Info("registered applier", "provider", "berlinovo")
	}

	return apply.NewCoordinator(appliers, s, n, cfg.Appliers.MaxAttempts, cfg.Appliers.ApplyTimeout, logger)
}

func loadResolver(cfg *config.Config, logger *slog.Logger) *borough.Resolver {
	if cfg.BoroughMap == "" {
		return nil
	}
	r, err := borough.Load(cfg.BoroughMap)
	if err != nil {
		logger.Warn("borough map not loaded, borough filtering degraded", "path", cfg.BoroughMap, "error", err)
		return nil
	}
	return r
}

func buildOrchestrator(cfg *config.Config, s model.ListingStore, httpClient *http.Client, logger *slog.Logger) *cycle.Orchestrator {
	n := setupNotifier(cfg, httpClient, logger)
	return cycle.NewOrchestrator(
		buildAdapters(cfg, httpClient, logger),
		s,
		buildRules(cfg),
		loadResolver(cfg, logger),
		n,
		buildCoordinator(cfg, s, n, httpClient, logger),
		cfg.FetchTimeout,
		cfg.Appliers.MaxAttempts,
		logger,
	)
}
