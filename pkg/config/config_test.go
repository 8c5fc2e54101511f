package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, doc string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `{
		"api_key": "key-123",
		"api_secret": "secret-456",
		"start_date": "2024-01-01",
		"lookback_days": 14,
		"page_size": 50,
		"request_timeout_seconds": 10
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.APIKey != "key-123" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.LookbackDays != 14 {
		t.Errorf("LookbackDays = %d, want 14", cfg.LookbackDays)
	}

	cc := cfg.ClientConfig()
	if cc.PageSize != 50 {
		t.Errorf("client PageSize = %d, want 50", cc.PageSize)
	}
	if cc.Timeout != 10*time.Second {
		t.Errorf("client Timeout = %v, want 10s", cc.Timeout)
	}
	if cc.APISecret != "secret-456" {
		t.Errorf("client APISecret = %q", cc.APISecret)
	}

	sc := cfg.SyncConfig()
	if sc.StartDate != "2024-01-01" {
		t.Errorf("sync StartDate = %q", sc.StartDate)
	}
	if sc.LookbackDays != 14 {
		t.Errorf("sync LookbackDays = %d, want 14", sc.LookbackDays)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing api key", `{"api_secret": "s"}`},
		{"negative lookback", `{"api_key": "k", "lookback_days": -1}`},
		{"negative page size", `{"api_key": "k", "page_size": -5}`},
		{"malformed json", `{api_key}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.doc)
			if _, err := Load(path); err == nil {
				t.Error("Load() succeeded, want error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("Load() succeeded for missing file, want error")
	}
}

func TestConfig_Defaults(t *testing.T) {
	path := writeConfig(t, `{"api_key": "k"}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	cc := cfg.ClientConfig()
	if cc.PageSize != 100 {
		t.Errorf("default PageSize = %d, want 100", cc.PageSize)
	}
	if cc.BaseURL == "" {
		t.Error("default BaseURL missing")
	}

	sc := cfg.SyncConfig()
	if sc.LookbackDays != 30 {
		t.Errorf("default LookbackDays = %d, want 30", sc.LookbackDays)
	}
	if sc.Timezone != "America/Los_Angeles" {
		t.Errorf("default Timezone = %q", sc.Timezone)
	}

	policy := cfg.StatePolicy()
	if policy.BookmarkKey != "created_at" {
		t.Errorf("default BookmarkKey = %q", policy.BookmarkKey)
	}
}

func TestConfig_StatePolicyOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"api_key": "k",
		"bookmark_key": "updated_at",
		"legacy_bookmark_keys": ["created_at", "modifyDate"]
	}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	policy := cfg.StatePolicy()
	if policy.BookmarkKey != "updated_at" {
		t.Errorf("BookmarkKey = %q, want updated_at", policy.BookmarkKey)
	}
	if len(policy.LegacyKeys) != 2 || policy.LegacyKeys[0] != "created_at" {
		t.Errorf("LegacyKeys = %v", policy.LegacyKeys)
	}
}

func TestEnvToggles(t *testing.T) {
	path := writeConfig(t, `{"api_key": "k"}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"1", true},
		{"true", true},
		{"false", false},
		{"0", false},
		{"yes", true},
	}

	for _, tt := range tests {
		t.Run("value "+tt.value, func(t *testing.T) {
			if tt.value == "" {
				os.Unsetenv(EnvOneDayHorizon)
			} else {
				t.Setenv(EnvOneDayHorizon, tt.value)
			}
			sc := cfg.SyncConfig()
			if sc.OneDayHorizon != tt.want {
				t.Errorf("OneDayHorizon = %v, want %v for %q", sc.OneDayHorizon, tt.want, tt.value)
			}
		})
	}
}
