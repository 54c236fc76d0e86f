package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the watcher.
type Config struct {
	PollingInterval time.Duration
	FetchTimeout    time.Duration
	QuietHours      QuietHoursConfig
	Store           StoreConfig
	BoroughMap      string // path to the zip-to-borough JSON map, optional
	RateLimit       RateLimitConfig
	Retry           RetryConfig
	Sources         []SourceConfig
	Filters         FilterConfig
	Notification    NotificationConfig
	Appliers        AppliersConfig
}

// QuietHoursConfig is a daily no-alert window ("22:00" to "07:00").
type QuietHoursConfig struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // "sqlite" or "postgres"
	Path    string `yaml:"path"`    // sqlite database file
	DSN     string `yaml:"dsn"`     // postgres connection string
}

// RateLimitConfig controls the minimum gap between requests to one host group.
type RateLimitConfig struct {
	MinDelay time.Duration
}

// RetryConfig controls the fetch retry decorator.
type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
}

// SourceConfig describes one listing source to poll.
type SourceConfig struct {
	Name    string `yaml:"name"`
	Kind    string `yaml:"kind"` // "wohnraumkarte" or "inberlinwohnen"
	BaseURL string `yaml:"base_url"`
	Referer string `yaml:"referer"`
	Dataset string `yaml:"dataset"`
	Enabled bool   `yaml:"enabled"`
}

// RangeConfig bounds a numeric listing attribute; nil means unbounded.
type RangeConfig struct {
	Min *float64 `yaml:"min"`
	Max *float64 `yaml:"max"`
}

// FilterConfig holds the acceptance criteria.
type FilterConfig struct {
	Enabled    bool        `yaml:"enabled"`
	PriceTotal RangeConfig `yaml:"price_total"`
	Sqm        RangeConfig `yaml:"sqm"`
	Rooms      RangeConfig `yaml:"rooms"`
	Boroughs   []string    `yaml:"boroughs"`
	WBS        string      `yaml:"wbs"` // "", "accept-all" or "reject-required"
}

// NotificationConfig controls which notifier is used and its settings.
type NotificationConfig struct {
	Type     string `yaml:"type"`      // "log" or "telegram"
	BotToken string `yaml:"bot_token"` // required if type is "telegram"
	ChatID   string `yaml:"chat_id"`   // required if type is "telegram"
}

// ProfileConfig is the applicant identity used on application forms.
type ProfileConfig struct {
	Salutation string `yaml:"salutation"`
	FirstName  string `yaml:"first_name"`
	LastName   string `yaml:"last_name"`
	Email      string `yaml:"email"`
	Phone      string `yaml:"phone"`
	Street     string `yaml:"street"`
	Zip        string `yaml:"zip"`
	City       string `yaml:"city"`
	HasWBS     bool   `yaml:"has_wbs"`
}

// AppliersConfig controls the automated application providers.
type AppliersConfig struct {
	Enabled      bool
	MaxAttempts  int
	ApplyTimeout time.Duration
	Profile      ProfileConfig
	WBM          bool
	Berlinovo    bool
}

// rawConfig is used for YAML unmarshaling (snake_case fields, durations as strings).
type rawConfig struct {
	PollingInterval string             `yaml:"polling_interval"`
	FetchTimeout    string             `yaml:"fetch_timeout"`
	QuietHours      QuietHoursConfig   `yaml:"quiet_hours"`
	Store           StoreConfig        `yaml:"store"`
	BoroughMap      string             `yaml:"borough_map"`
	RateLimit       rawRateLimit       `yaml:"rate_limit"`
	Retry           rawRetry           `yaml:"retry"`
	Sources         []SourceConfig     `yaml:"sources"`
	Filters         FilterConfig       `yaml:"filters"`
	Notification    NotificationConfig `yaml:"notification"`
	Appliers        rawAppliers        `yaml:"appliers"`
}

type rawRateLimit struct {
	MinDelay string `yaml:"min_delay"`
}

type rawRetry struct {
	MaxRetries int    `yaml:"max_retries"`
	BaseDelay  string `yaml:"base_delay"`
}

type rawAppliers struct {
	Enabled      bool          `yaml:"enabled"`
	MaxAttempts  int           `yaml:"max_attempts"`
	ApplyTimeout string        `yaml:"apply_timeout"`
	Profile      ProfileConfig `yaml:"profile"`
	WBM          bool          `yaml:"wbm"`
	Berlinovo    bool          `yaml:"berlinovo"`
}

// Load reads and parses the YAML config file at path, validates it, and returns Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var raw rawConfig
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	interval, err := time.ParseDuration(raw.PollingInterval)
	if err != nil {
		return nil, fmt.Errorf("parse polling_interval %q: %w", raw.PollingInterval, err)
	}

	fetchTimeout := 30 * time.Second
	if raw.FetchTimeout != "" {
		fetchTimeout, err = time.ParseDuration(raw.FetchTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse fetch_timeout %q: %w", raw.FetchTimeout, err)
		}
	}

	minDelay := 2 * time.Second
	if raw.RateLimit.MinDelay != "" {
		minDelay, err = time.ParseDuration(raw.RateLimit.MinDelay)
		if err != nil {
			return nil, fmt.Errorf("parse rate_limit.min_delay %q: %w", raw.RateLimit.MinDelay, err)
		}
	}

	maxRetries := raw.Retry.MaxRetries
	if maxRetries == 0 {
		maxRetries = 2
	}
	baseDelay := 5 * time.Second
	if raw.Retry.BaseDelay != "" {
		baseDelay, err = time.ParseDuration(raw.Retry.BaseDelay)
		if err != nil {
			return nil, fmt.Errorf("parse retry.base_delay %q: %w", raw.Retry.BaseDelay, err)
		}
	}

	maxAttempts := raw.Appliers.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}
	applyTimeout := 2 * time.Minute
	if raw.Appliers.ApplyTimeout != "" {
		applyTimeout, err = time.ParseDuration(raw.Appliers.ApplyTimeout)
		if err != nil {
			return nil, fmt.Errorf("parse appliers.apply_timeout %q: %w", raw.Appliers.ApplyTimeout, err)
		}
	}

	backend := raw.Store.Backend
	if backend == "" {
		backend = "sqlite"
	}
	storePath := raw.Store.Path
	if storePath == "" {
		storePath = "wohnblick.db"
	}

	cfg := &Config{
		PollingInterval: interval,
		FetchTimeout:    fetchTimeout,
		QuietHours:      raw.QuietHours,
		Store:           StoreConfig{Backend: backend, Path: storePath, DSN: raw.Store.DSN},
		BoroughMap:      raw.BoroughMap,
		RateLimit:       RateLimitConfig{MinDelay: minDelay},
		Retry:           RetryConfig{MaxRetries: maxRetries, BaseDelay: baseDelay},
		Sources:         raw.Sources,
		Filters:         raw.Filters,
		Notification:    raw.Notification,
		Appliers: AppliersConfig{
			Enabled:      raw.Appliers.Enabled,
			MaxAttempts:  maxAttempts,
			ApplyTimeout: applyTimeout,
			Profile:      raw.Appliers.Profile,
			WBM:          raw.Appliers.WBM,
			Berlinovo:    raw.Appliers.Berlinovo,
		},
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.PollingInterval <= 0 {
		return fmt.Errorf("polling_interval must be positive, got %v", cfg.PollingInterval)
	}

	enabled := 0
	for _, s := range cfg.Sources {
		if !s.Enabled {
			continue
		}
		enabled++
		switch s.Kind {
		case "wohnraumkarte":
			if s.BaseURL == "" {
				return fmt.Errorf("source %q: base_url is required for kind \"wohnraumkarte\"", s.Name)
			}
		case "inberlinwohnen":
		default:
			return fmt.Errorf("source %q: unknown kind %q", s.Name, s.Kind)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one source must be enabled")
	}

	switch cfg.Store.Backend {
	case "sqlite":
	case "postgres":
		if cfg.Store.DSN == "" {
			return fmt.Errorf("store.dsn is required when backend is \"postgres\"")
		}
	default:
		return fmt.Errorf("store.backend must be \"sqlite\" or \"postgres\", got %q", cfg.Store.Backend)
	}

	switch cfg.Filters.WBS {
	case "", "accept-all", "reject-required":
	default:
		return fmt.Errorf("filters.wbs must be \"\", \"accept-all\" or \"reject-required\", got %q", cfg.Filters.WBS)
	}
	if err := validateRange("filters.price_total", cfg.Filters.PriceTotal); err != nil {
		return err
	}
	if err := validateRange("filters.sqm", cfg.Filters.Sqm); err != nil {
		return err
	}
	if err := validateRange("filters.rooms", cfg.Filters.Rooms); err != nil {
		return err
	}

	if cfg.Notification.Type == "telegram" {
		if cfg.Notification.BotToken == "" {
			return fmt.Errorf("notification.bot_token is required when type is \"telegram\"")
		}
		if cfg.Notification.ChatID == "" {
			return fmt.Errorf("notification.chat_id is required when type is \"telegram\"")
		}
	}

	if cfg.Appliers.Enabled {
		p := cfg.Appliers.Profile
		if p.FirstName == "" || p.LastName == "" || p.Email == "" {
			return fmt.Errorf("appliers.profile needs first_name, last_name and email")
		}
		if !cfg.Appliers.WBM && !cfg.Appliers.Berlinovo {
			return fmt.Errorf("appliers.enabled is true but no provider is switched on")
		}
	}

	return nil
}

func validateRange(name string, r RangeConfig) error {
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("%s: min %v exceeds max %v", name, *r.Min, *r.Max)
	}
	return nil
}
