package agent

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/scribe/confluence"
	"github.com/hazyhaar/scribe/jira"
	"github.com/hazyhaar/scribe/llm"
)

// Config is the full service configuration, loaded from YAML with env
// overrides for credentials. Durations are expressed in minutes or seconds
// in the file; accessor methods return time.Duration.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Poll loop.
	PollIntervalMinutes int  `yaml:"poll_interval_minutes"`
	LookbackMinutes     int  `yaml:"lookback_minutes"`
	Reprocess           bool `yaml:"reprocess"`

	// Pipeline tuning.
	MaxQueries   int `yaml:"max_queries"`
	TopK         int `yaml:"top_k"`
	SearchFanOut int `yaml:"search_fan_out"`
	MaxAttempts  int `yaml:"max_attempts"`

	// AutoSubmit enables writes to the knowledge base. Off means every
	// decision is logged as a proposal only.
	AutoSubmit bool `yaml:"auto_submit"`

	// Attachment extraction bounds.
	MaxAttachmentBytes int64 `yaml:"max_attachment_bytes"`
	MaxPDFPages        int   `yaml:"max_pdf_pages"`

	LedgerPath string `yaml:"ledger_path"`
	PromptDir  string `yaml:"prompt_dir"`

	// StaticTicketsPath switches the service to a single pass over tickets
	// loaded from a JSON file instead of polling the tracker. Used for
	// prompt iteration without live credentials.
	StaticTicketsPath string `yaml:"static_tickets_path"`

	HTTPAddr string `yaml:"http_addr"`
	// AdminUser/AdminPasswordHash guard the mutating API endpoints.
	// Empty hash disables auth.
	AdminUser         string `yaml:"admin_user"`
	AdminPasswordHash string `yaml:"admin_password_hash"`

	Tracker   TrackerConfig   `yaml:"tracker"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Model     ModelConfig     `yaml:"model"`
}

// TrackerConfig configures the issue tracker client.
type TrackerConfig struct {
	Server         string `yaml:"server"`
	Email          string `yaml:"email"`
	APIToken       string `yaml:"api_token"`
	Project        string `yaml:"project"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxResults     int    `yaml:"max_results"`
}

// KnowledgeConfig configures the wiki client.
type KnowledgeConfig struct {
	Server         string `yaml:"server"`
	Email          string `yaml:"email"`
	APIToken       string `yaml:"api_token"`
	Space          string `yaml:"space"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// ModelConfig configures the inference provider.
type ModelConfig struct {
	BaseURL        string `yaml:"base_url"`
	APIKey         string `yaml:"api_key"`
	Name           string `yaml:"name"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	MaxRetries     int    `yaml:"max_retries"`
}

// DefaultConfig returns a Config with every tunable at its default.
func DefaultConfig() Config {
	return Config{
		LogLevel:            "info",
		PollIntervalMinutes: 10,
		LookbackMinutes:     60,
		MaxQueries:          4,
		TopK:                5,
		SearchFanOut:        3,
		MaxAttempts:         3,
		MaxAttachmentBytes:  10 << 20,
		MaxPDFPages:         20,
		LedgerPath:          "scribe.db",
		PromptDir:           "prompts",
		HTTPAddr:            ":8092",
	}
}

// LoadConfig reads a YAML config file merged over defaults, then applies
// env overrides for credentials. A missing file is not an error: defaults
// plus env vars make a complete configuration.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("agent: parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall back to defaults + env
		default:
			return cfg, fmt.Errorf("agent: read config %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	for _, ov := range []struct {
		env string
		dst *string
	}{
		{"JIRA_SERVER", &c.Tracker.Server},
		{"JIRA_EMAIL", &c.Tracker.Email},
		{"JIRA_API_TOKEN", &c.Tracker.APIToken},
		{"JIRA_PROJECT", &c.Tracker.Project},
		{"CONFLUENCE_SERVER", &c.Knowledge.Server},
		{"CONFLUENCE_EMAIL", &c.Knowledge.Email},
		{"CONFLUENCE_API_TOKEN", &c.Knowledge.APIToken},
		{"CONFLUENCE_SPACE", &c.Knowledge.Space},
		{"OPENAI_BASE_URL", &c.Model.BaseURL},
		{"OPENAI_API_KEY", &c.Model.APIKey},
		{"OPENAI_MODEL", &c.Model.Name},
		{"SCRIBE_ADMIN_USER", &c.AdminUser},
		{"SCRIBE_ADMIN_PASSWORD_HASH", &c.AdminPasswordHash},
	} {
		if v := os.Getenv(ov.env); v != "" {
			*ov.dst = v
		}
	}
	if v := os.Getenv("CONFLUENCE_AUTO_SUBMIT"); v == "true" || v == "1" {
		c.AutoSubmit = true
	}
	if v := os.Getenv("SCRIBE_STATIC_TICKETS"); v != "" {
		c.StaticTicketsPath = v
	}
}

// Validate fails fast on configurations the service cannot run with.
// Static mode only needs the model credentials; live mode needs all three
// collaborators.
func (c *Config) Validate() error {
	if c.Model.APIKey == "" {
		return errors.New("agent: model api key required")
	}
	if c.Model.Name == "" {
		return errors.New("agent: model name required")
	}
	if c.PollIntervalMinutes <= 0 {
		return errors.New("agent: poll interval must be positive")
	}
	if c.LookbackMinutes < c.PollIntervalMinutes {
		return errors.New("agent: lookback shorter than poll interval leaves coverage gaps")
	}
	if c.StaticTicketsPath != "" {
		return nil
	}
	if c.Tracker.Server == "" || c.Tracker.Email == "" || c.Tracker.APIToken == "" {
		return errors.New("agent: tracker server, email and api token required")
	}
	if c.Tracker.Project == "" {
		return errors.New("agent: tracker project required")
	}
	if c.Knowledge.Server == "" || c.Knowledge.Email == "" || c.Knowledge.APIToken == "" {
		return errors.New("agent: knowledge server, email and api token required")
	}
	if c.Knowledge.Space == "" {
		return errors.New("agent: knowledge space required")
	}
	return nil
}

// PollInterval returns the poll period.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMinutes) * time.Minute
}

// Lookback returns the window length each cycle looks back over. It is
// longer than the poll interval so cycles overlap; the ledger deduplicates.
func (c *Config) Lookback() time.Duration {
	return time.Duration(c.LookbackMinutes) * time.Minute
}

// JiraConfig maps the tracker section onto the jira client config.
func (c *Config) JiraConfig() jira.Config {
	return jira.Config{
		Server:     c.Tracker.Server,
		Email:      c.Tracker.Email,
		APIToken:   c.Tracker.APIToken,
		Project:    c.Tracker.Project,
		Timeout:    time.Duration(c.Tracker.TimeoutSeconds) * time.Second,
		MaxResults: c.Tracker.MaxResults,
	}
}

// ConfluenceConfig maps the knowledge section onto the confluence client config.
func (c *Config) ConfluenceConfig() confluence.Config {
	return confluence.Config{
		Server:   c.Knowledge.Server,
		Email:    c.Knowledge.Email,
		APIToken: c.Knowledge.APIToken,
		Space:    c.Knowledge.Space,
		Timeout:  time.Duration(c.Knowledge.TimeoutSeconds) * time.Second,
	}
}

// LLMConfig maps the model section onto the llm client config.
func (c *Config) LLMConfig() llm.Config {
	return llm.Config{
		BaseURL:    c.Model.BaseURL,
		APIKey:     c.Model.APIKey,
		Model:      c.Model.Name,
		Timeout:    time.Duration(c.Model.TimeoutSeconds) * time.Second,
		MaxRetries: c.Model.MaxRetries,
	}
}
