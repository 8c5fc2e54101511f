// Package config loads the tap's run configuration from a JSON file and
// the debug toggles from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/helmsync/shipstation-tap/pkg/client"
	"github.com/helmsync/shipstation-tap/pkg/state"
	"github.com/helmsync/shipstation-tap/pkg/sync"
)

// Environment toggles. They flip debug behavior without touching the
// config file, which is often managed by an orchestrator.
const (
	EnvOneDayHorizon   = "SHIPSTATION_TEST_ONE_DAY"
	EnvDebugSample     = "SHIPSTATION_DEBUG_SAMPLE"
	EnvBypassTransform = "SHIPSTATION_BYPASS_TRANSFORM"
)

// Redis holds the optional redis state-backend settings.
type Redis struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Prefix   string `json:"prefix"`
}

// Config is the on-disk run configuration.
type Config struct {
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	BaseURL   string `json:"base_url"`
	UserAgent string `json:"user_agent"`

	StartDate    string `json:"start_date"`
	LookbackDays int    `json:"lookback_days"`
	Timezone     string `json:"timezone"`

	PageSize       int `json:"page_size"`
	RequestTimeout int `json:"request_timeout_seconds"`

	// BookmarkKey and LegacyBookmarkKeys override the bookmark-key
	// policy for deployments carrying state from older tap versions.
	BookmarkKey        string   `json:"bookmark_key"`
	LegacyBookmarkKeys []string `json:"legacy_bookmark_keys"`

	// Redis, when set, stores bookmarks in redis instead of the state
	// file.
	Redis *Redis `json:"redis"`
}

// Load reads and validates a config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the required fields.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("config: api_key is required")
	}
	if c.LookbackDays < 0 {
		return fmt.Errorf("config: lookback_days must not be negative")
	}
	if c.PageSize < 0 {
		return fmt.Errorf("config: page_size must not be negative")
	}
	return nil
}

// ClientConfig builds the HTTP client configuration.
func (c *Config) ClientConfig() client.Config {
	cc := client.DefaultConfig(c.APIKey, c.APISecret)
	if c.BaseURL != "" {
		cc.BaseURL = c.BaseURL
	}
	if c.UserAgent != "" {
		cc.UserAgent = c.UserAgent
	}
	if c.PageSize > 0 {
		cc.PageSize = c.PageSize
	}
	if c.RequestTimeout > 0 {
		cc.Timeout = time.Duration(c.RequestTimeout) * time.Second
	}
	return cc
}

// SyncConfig builds the window-loop configuration, folding in the
// environment toggles.
func (c *Config) SyncConfig() sync.Config {
	sc := sync.DefaultConfig()
	sc.StartDate = c.StartDate
	if c.LookbackDays > 0 {
		sc.LookbackDays = c.LookbackDays
	}
	if c.Timezone != "" {
		sc.Timezone = c.Timezone
	}
	sc.OneDayHorizon = envBool(EnvOneDayHorizon)
	sc.DebugSample = envBool(EnvDebugSample)
	sc.BypassTransform = envBool(EnvBypassTransform)
	return sc
}

// StatePolicy builds the bookmark-key policy.
func (c *Config) StatePolicy() state.Policy {
	p := state.DefaultPolicy()
	if c.BookmarkKey != "" {
		p.BookmarkKey = c.BookmarkKey
	}
	if len(c.LegacyBookmarkKeys) > 0 {
		p.LegacyKeys = c.LegacyBookmarkKeys
	}
	return p
}

// envBool reads a boolean environment toggle. Unparseable values count as
// set; exporting the variable at all signals intent.
func envBool(name string) bool {
	v, ok := os.LookupEnv(name)
	if !ok || v == "" {
		return false
	}
	if parsed, err := strconv.ParseBool(v); err == nil {
		return parsed
	}
	return true
}
