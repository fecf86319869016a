package agent

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigDefaultsAndFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scribe.yaml")
	content := `
log_level: debug
poll_interval_minutes: 5
lookback_minutes: 30
auto_submit: true
tracker:
  server: https://tracker.example
  email: bot@example.com
  api_token: token-a
  project: OPS
knowledge:
  server: https://wiki.example
  email: bot@example.com
  api_token: token-b
  space: DOCS
model:
  api_key: sk-test
  name: gpt-test
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogLevel != "debug" || !cfg.AutoSubmit {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.PollInterval() != 5*time.Minute || cfg.Lookback() != 30*time.Minute {
		t.Fatalf("durations: %v / %v", cfg.PollInterval(), cfg.Lookback())
	}
	// Untouched keys keep defaults.
	if cfg.MaxQueries != 4 || cfg.TopK != 5 || cfg.MaxAttempts != 3 {
		t.Fatalf("defaults lost: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollIntervalMinutes != 10 || cfg.LedgerPath != "scribe.db" {
		t.Fatalf("defaults: %+v", cfg)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("JIRA_API_TOKEN", "env-token")
	t.Setenv("CONFLUENCE_AUTO_SUBMIT", "true")
	t.Setenv("OPENAI_API_KEY", "env-key")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tracker.APIToken != "env-token" {
		t.Fatalf("tracker token = %q", cfg.Tracker.APIToken)
	}
	if !cfg.AutoSubmit {
		t.Fatal("auto submit override not applied")
	}
	if cfg.Model.APIKey != "env-key" {
		t.Fatalf("model key = %q", cfg.Model.APIKey)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"complete", func(c *Config) {}, false},
		{"missing model key", func(c *Config) { c.Model.APIKey = "" }, true},
		{"missing model name", func(c *Config) { c.Model.Name = "" }, true},
		{"missing tracker token", func(c *Config) { c.Tracker.APIToken = "" }, true},
		{"missing space", func(c *Config) { c.Knowledge.Space = "" }, true},
		{"lookback shorter than interval", func(c *Config) { c.LookbackMinutes = 5 }, true},
		{"static mode skips collaborators", func(c *Config) {
			c.Tracker = TrackerConfig{}
			c.Knowledge = KnowledgeConfig{}
			c.StaticTicketsPath = "tickets.json"
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
