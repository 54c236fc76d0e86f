package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

const validConfig = `
polling_interval: 5m
fetch_timeout: 20s
quiet_hours:
  start: "22:00"
  end: "07:00"
store:
  backend: sqlite
  path: /tmp/wohnblick.db
borough_map: plz_bezirk.json
rate_limit:
  min_delay: 3s
retry:
  max_retries: 3
  base_delay: 10s
sources:
  - name: deutsche-wohnen
    kind: wohnraumkarte
    base_url: https://www.deutsche-wohnen.com
    referer: https://www.deutsche-wohnen.com/
    dataset: deuwo
    enabled: true
  - name: inberlinwohnen
    kind: inberlinwohnen
    enabled: true
filters:
  enabled: true
  price_total:
    max: 1500
  sqm:
    min: 50
  rooms:
    min: 2
  boroughs: [Mitte, Wedding]
  wbs: reject-required
notification:
  type: telegram
  bot_token: "123:abc"
  chat_id: "42"
appliers:
  enabled: true
  max_attempts: 2
  apply_timeout: 90s
  profile:
    salutation: frau
    first_name: Erika
    last_name: Mustermann
    email: erika@example.com
  wbm: true
`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if cfg.PollingInterval != 5*time.Minute {
		t.Errorf("PollingInterval = %v", cfg.PollingInterval)
	}
	if cfg.FetchTimeout != 20*time.Second {
		t.Errorf("FetchTimeout = %v", cfg.FetchTimeout)
	}
	if cfg.QuietHours.Start != "22:00" || cfg.QuietHours.End != "07:00" {
		t.Errorf("QuietHours = %+v", cfg.QuietHours)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "/tmp/wohnblick.db" {
		t.Errorf("Store = %+v", cfg.Store)
	}
	if cfg.RateLimit.MinDelay != 3*time.Second {
		t.Errorf("RateLimit.MinDelay = %v", cfg.RateLimit.MinDelay)
	}
	if cfg.Retry.MaxRetries != 3 || cfg.Retry.BaseDelay != 10*time.Second {
		t.Errorf("Retry = %+v", cfg.Retry)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0].Dataset != "deuwo" {
		t.Errorf("Sources = %+v", cfg.Sources)
	}
	if !cfg.Filters.Enabled || cfg.Filters.WBS != "reject-required" {
		t.Errorf("Filters = %+v", cfg.Filters)
	}
	if cfg.Filters.PriceTotal.Max == nil || *cfg.Filters.PriceTotal.Max != 1500 {
		t.Errorf("PriceTotal.Max = %v", cfg.Filters.PriceTotal.Max)
	}
	if cfg.Filters.PriceTotal.Min != nil {
		t.Errorf("PriceTotal.Min = %v, want nil (unbounded)", cfg.Filters.PriceTotal.Min)
	}
	if cfg.Appliers.MaxAttempts != 2 || cfg.Appliers.ApplyTimeout != 90*time.Second {
		t.Errorf("Appliers = %+v", cfg.Appliers)
	}
	if cfg.Appliers.Profile.FirstName != "Erika" {
		t.Errorf("Profile = %+v", cfg.Appliers.Profile)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
polling_interval: 10m
sources:
  - name: inberlinwohnen
    kind: inberlinwohnen
    enabled: true
`))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}

	if cfg.FetchTimeout != 30*time.Second {
		t.Errorf("default FetchTimeout = %v", cfg.FetchTimeout)
	}
	if cfg.Store.Backend != "sqlite" || cfg.Store.Path != "wohnblick.db" {
		t.Errorf("default Store = %+v", cfg.Store)
	}
	if cfg.Retry.MaxRetries != 2 || cfg.Retry.BaseDelay != 5*time.Second {
		t.Errorf("default Retry = %+v", cfg.Retry)
	}
	if cfg.Appliers.MaxAttempts != 3 {
		t.Errorf("default MaxAttempts = %d", cfg.Appliers.MaxAttempts)
	}
	if cfg.Filters.Enabled {
		t.Error("filters default to disabled")
	}
}

func TestLoad_ExpandsEnvVars(t *testing.T) {
	t.Setenv("TEST_BOT_TOKEN", "999:secret")

	cfg, err := Load(writeConfig(t, `
polling_interval: 10m
sources:
  - name: inberlinwohnen
    kind: inberlinwohnen
    enabled: true
notification:
  type: telegram
  bot_token: "${TEST_BOT_TOKEN}"
  chat_id: "42"
`))
	if err != nil {
		t.Fatalf("Load() = %v", err)
	}
	if cfg.Notification.BotToken != "999:secret" {
		t.Errorf("BotToken = %q, want expanded env var", cfg.Notification.BotToken)
	}
}

func TestLoad_Invalid(t *testing.T) {
	base := `
polling_interval: 10m
sources:
  - name: inberlinwohnen
    kind: inberlinwohnen
    enabled: true
`
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing interval",
			content: `sources: [{name: a, kind: inberlinwohnen, enabled: true}]`,
			wantErr: "polling_interval",
		},
		{
			name: "no enabled source",
			content: `
polling_interval: 10m
sources:
  - name: inberlinwohnen
    kind: inberlinwohnen
    enabled: false
`,
			wantErr: "at least one source",
		},
		{
			name: "unknown source kind",
			content: `
polling_interval: 10m
sources:
  - name: weird
    kind: teleport
    enabled: true
`,
			wantErr: "unknown kind",
		},
		{
			name: "wohnraumkarte without base_url",
			content: `
polling_interval: 10m
sources:
  - name: vonovia
    kind: wohnraumkarte
    enabled: true
`,
			wantErr: "base_url",
		},
		{
			name:    "postgres without dsn",
			content: base + "store:\n  backend: postgres\n",
			wantErr: "store.dsn",
		},
		{
			name:    "unknown backend",
			content: base + "store:\n  backend: mysql\n",
			wantErr: "store.backend",
		},
		{
			name:    "bad wbs mode",
			content: base + "filters:\n  wbs: maybe\n",
			wantErr: "filters.wbs",
		},
		{
			name:    "inverted range",
			content: base + "filters:\n  sqm:\n    min: 90\n    max: 50\n",
			wantErr: "filters.sqm",
		},
		{
			name:    "telegram without token",
			content: base + "notification:\n  type: telegram\n  chat_id: \"42\"\n",
			wantErr: "bot_token",
		},
		{
			name:    "appliers without profile",
			content: base + "appliers:\n  enabled: true\n  wbm: true\n",
			wantErr: "appliers.profile",
		},
		{
			name:    "appliers without provider",
			content: base + "appliers:\n  enabled: true\n  profile:\n    first_name: E\n    last_name: M\n    email: e@x.de\n",
			wantErr: "no provider",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
