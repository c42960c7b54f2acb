// Package config loads jiralens.yaml, applies environment overrides for
// secrets, and derives the fetch-scope fingerprint that guards the cache.
package config

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/jiralens/jiralens/internal/domain/tracker"
)

// DefaultPath is used when neither --config nor JIRALENS_CONFIG is set.
const DefaultPath = "jiralens.yaml"

type JiraConfig struct {
	BaseURL      string   `yaml:"base_url"`
	Email        string   `yaml:"email"`
	APIToken     string   `yaml:"api_token"`
	ProjectKeys  []string `yaml:"project_keys"`
	JQLOverride  string   `yaml:"jql_override"`
	Type         string   `yaml:"type"`
	BackfillFrom string   `yaml:"backfill_from"`
	PageSize     int      `yaml:"page_size"`
	MaxRetries   int      `yaml:"max_retries"`
	RetryBackoff float64  `yaml:"retry_backoff"`
}

type StatusConfig struct {
	InProgress []string `yaml:"in_progress"`
	Done       []string `yaml:"done"`
	Milestone  string   `yaml:"milestone"`
	Recognized []string `yaml:"recognized"`
}

type TeamConfig struct {
	Field     string `yaml:"field"`
	FieldName string `yaml:"field_name"`
}

type AgingConfig struct {
	ExcludeSubstrings []string `yaml:"exclude_substrings"`
	Tiers             []int    `yaml:"tiers"`
}

type GoogleConfig struct {
	SheetID            string `yaml:"sheet_id"`
	ServiceAccountFile string `yaml:"service_account_file"`
}

type CacheConfig struct {
	Dir string `yaml:"dir"`
}

type DashboardConfig struct {
	Output string `yaml:"output"`
}

// AdapterConfig configures one notification adapter.
type AdapterConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	URL     string `yaml:"url"`
	Secret  string `yaml:"secret"`
	Enabled bool   `yaml:"enabled"`
}

type NotifyConfig struct {
	Adapters []AdapterConfig `yaml:"adapters"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type Config struct {
	Jira      JiraConfig      `yaml:"jira"`
	Statuses  StatusConfig    `yaml:"statuses"`
	Team      TeamConfig      `yaml:"team"`
	Aging     AgingConfig     `yaml:"aging"`
	Google    GoogleConfig    `yaml:"google"`
	Cache     CacheConfig     `yaml:"cache"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Notify    NotifyConfig    `yaml:"notify"`
	Log       LogConfig       `yaml:"log"`
}

// Load reads the yaml file at path, applies env overrides and defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("JIRALENS_CONFIG")
	}
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path) // #nosec G304 -- operator-supplied config path
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Secrets stay out of the yaml file; the environment wins when set.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("JIRA_BASE_URL"); v != "" {
		c.Jira.BaseURL = v
	}
	if v := os.Getenv("JIRA_EMAIL"); v != "" {
		c.Jira.Email = v
	}
	if v := os.Getenv("JIRA_API_TOKEN"); v != "" {
		c.Jira.APIToken = v
	}
	if v := os.Getenv("GOOGLE_SHEET_ID"); v != "" {
		c.Google.SheetID = v
	}
	if v := os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"); v != "" {
		c.Google.ServiceAccountFile = v
	}
}

func (c *Config) applyDefaults() {
	c.Jira.BaseURL = strings.TrimRight(c.Jira.BaseURL, "/")
	if c.Jira.Type == "" {
		c.Jira.Type = "software"
	}
	if c.Jira.PageSize == 0 {
		c.Jira.PageSize = 100
	}
	if c.Jira.MaxRetries == 0 {
		c.Jira.MaxRetries = 5
	}
	if c.Jira.RetryBackoff == 0 {
		c.Jira.RetryBackoff = 1.5
	}
	if c.Statuses.Milestone == "" {
		c.Statuses.Milestone = "SUBMITTED FOR SIGNATURE"
	}
	if len(c.Statuses.Recognized) == 0 {
		c.Statuses.Recognized = tracker.DefaultRecognizedStatuses
	}
	if c.Team.Field == "" {
		c.Team.Field = "component"
	}
	if c.Team.FieldName == "" {
		c.Team.FieldName = "Team"
	}
	if len(c.Aging.ExcludeSubstrings) == 0 {
		c.Aging.ExcludeSubstrings = []string{"due"}
	}
	if len(c.Aging.Tiers) == 0 {
		c.Aging.Tiers = []int{7, 14, 30}
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = ".cache"
	}
	if c.Dashboard.Output == "" {
		c.Dashboard.Output = "dashboard/index.html"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks the settings every run needs. Credentials are checked
// separately by RequireJira/RequireGoogle so dry runs against a warm cache
// can proceed without them.
func (c *Config) Validate() error {
	if c.Jira.JQLOverride == "" && len(c.Jira.ProjectKeys) == 0 {
		return fmt.Errorf("config: jira.project_keys is required when jira.jql_override is empty")
	}
	prev := 0
	for _, tier := range c.Aging.Tiers {
		if tier <= prev {
			return fmt.Errorf("config: aging.tiers must be ascending positive, got %v", c.Aging.Tiers)
		}
		prev = tier
	}
	return nil
}

// RequireJira validates that Jira credentials are present.
func (c *Config) RequireJira() error {
	if c.Jira.BaseURL == "" || c.Jira.Email == "" || c.Jira.APIToken == "" {
		return fmt.Errorf("config: jira.base_url, jira.email and jira.api_token are required (env: JIRA_BASE_URL, JIRA_EMAIL, JIRA_API_TOKEN)")
	}
	return nil
}

// RequireGoogle validates that Sheets credentials are present.
func (c *Config) RequireGoogle() error {
	if c.Google.SheetID == "" || c.Google.ServiceAccountFile == "" {
		return fmt.Errorf("config: google.sheet_id and google.service_account_file are required (env: GOOGLE_SHEET_ID, GOOGLE_SERVICE_ACCOUNT_FILE)")
	}
	return nil
}

// Rules derives the status-classification view the aggregators consume.
func (c *Config) Rules() tracker.Rules {
	tiers := make([]tracker.AgingTier, len(c.Aging.Tiers))
	for i, d := range c.Aging.Tiers {
		tiers[i] = tracker.AgingTier{Days: d, Label: fmt.Sprintf(">%dd", d)}
	}
	return tracker.Rules{
		InProgress:             tracker.NewStatusSet(c.Statuses.InProgress...),
		Done:                   tracker.NewStatusSet(c.Statuses.Done...),
		Milestone:              c.Statuses.Milestone,
		Recognized:             c.Statuses.Recognized,
		AgingExcludeSubstrings: c.Aging.ExcludeSubstrings,
		AgingTiers:             tiers,
	}
}

// Fingerprint hashes the settings that determine what gets fetched. A cache
// written under a different fingerprint covers a different corpus and must
// be discarded, never merged.
func (c *Config) Fingerprint() string {
	key := c.Jira.BaseURL + "|" +
		strings.Join(c.Jira.ProjectKeys, ",") + "|" +
		c.Jira.BackfillFrom + "|" +
		c.Jira.JQLOverride
	h := sha256.Sum256([]byte(key))
	return hex.EncodeToString(h[:])[:8]
}
