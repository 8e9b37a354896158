package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Retry.MaxRetries != 3 {
		t.Errorf("Expected default max retries to be 3, got %d", config.Retry.MaxRetries)
	}

	if config.Retry.BackoffFactor != 2.0 {
		t.Errorf("Expected default backoff factor to be 2, got %v", config.Retry.BackoffFactor)
	}

	if config.Retry.RequestTimeout != 15*time.Second {
		t.Errorf("Expected default request timeout to be 15s, got %v", config.Retry.RequestTimeout)
	}

	if config.Token.PageTimeout != 60*time.Second {
		t.Errorf("Expected default page timeout to be 60s, got %v", config.Token.PageTimeout)
	}

	if config.API.APIDomain != "api09.horseracing.software" {
		t.Errorf("Unexpected default api domain %s", config.API.APIDomain)
	}

	if config.Pipeline.PerPage != 250 {
		t.Errorf("Expected default per page to be 250, got %d", config.Pipeline.PerPage)
	}

	if err := config.Validate(); err != nil {
		t.Errorf("Expected default config to be valid, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("BHASCRAPER_BASE_URL", "http://localhost:9999/bha/v1")
	t.Setenv("BHASCRAPER_API_DOMAIN", "localhost")
	t.Setenv("BHASCRAPER_CACHE_DIR", "/tmp/bha-cache")
	t.Setenv("BHASCRAPER_CACHE_ENABLED", "false")
	t.Setenv("BHASCRAPER_MAX_RETRIES", "5")
	t.Setenv("BHASCRAPER_REQUEST_TIMEOUT", "3s")
	t.Setenv("BHASCRAPER_REQUESTS_PER_MINUTE", "30")
	t.Setenv("BHASCRAPER_HEADLESS", "false")
	t.Setenv("BHASCRAPER_LOG_LEVEL", "debug")

	config := DefaultConfig()
	if err := config.LoadFromEnv(); err != nil {
		t.Fatalf("Failed to load from environment: %v", err)
	}

	if config.API.BaseURL != "http://localhost:9999/bha/v1" {
		t.Errorf("Expected base URL from env, got %s", config.API.BaseURL)
	}
	if config.API.APIDomain != "localhost" {
		t.Errorf("Expected api domain localhost, got %s", config.API.APIDomain)
	}
	if config.Cache.Directory != "/tmp/bha-cache" {
		t.Errorf("Expected cache dir /tmp/bha-cache, got %s", config.Cache.Directory)
	}
	if config.Cache.Enabled {
		t.Error("Expected cache to be disabled")
	}
	if config.Retry.MaxRetries != 5 {
		t.Errorf("Expected max retries 5, got %d", config.Retry.MaxRetries)
	}
	if config.Retry.RequestTimeout != 3*time.Second {
		t.Errorf("Expected request timeout 3s, got %v", config.Retry.RequestTimeout)
	}
	if config.RateLimit.RequestsPerMinute != 30 {
		t.Errorf("Expected requests per minute 30, got %d", config.RateLimit.RequestsPerMinute)
	}
	if config.Token.Headless {
		t.Error("Expected headless to be disabled")
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected log level debug, got %s", config.Logging.Level)
	}
}

func TestLoadFromEnvInvalidValues(t *testing.T) {
	t.Setenv("BHASCRAPER_MAX_RETRIES", "many")
	t.Setenv("BHASCRAPER_REQUEST_TIMEOUT", "soon")

	config := DefaultConfig()
	err := config.LoadFromEnv()
	if err == nil {
		t.Fatal("Expected error for invalid env values")
	}
	if !strings.Contains(err.Error(), "BHASCRAPER_MAX_RETRIES") || !strings.Contains(err.Error(), "BHASCRAPER_REQUEST_TIMEOUT") {
		t.Errorf("Expected both variables to be reported, got %v", err)
	}
	if config.Retry.MaxRetries != 3 {
		t.Errorf("Expected max retries to keep default, got %d", config.Retry.MaxRetries)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(c *Config)
		wantError bool
	}{
		{
			name:      "valid config",
			mutate:    func(c *Config) {},
			wantError: false,
		},
		{
			name:      "missing api domain",
			mutate:    func(c *Config) { c.API.APIDomain = "" },
			wantError: true,
		},
		{
			name:      "zero max retries",
			mutate:    func(c *Config) { c.Retry.MaxRetries = 0 },
			wantError: true,
		},
		{
			name:      "backoff factor below one",
			mutate:    func(c *Config) { c.Retry.BackoffFactor = 0.5 },
			wantError: true,
		},
		{
			name:      "jitter out of range",
			mutate:    func(c *Config) { c.Retry.Jitter = 1.5 },
			wantError: true,
		},
		{
			name:      "cache enabled without directory",
			mutate:    func(c *Config) { c.Cache.Directory = "" },
			wantError: true,
		},
		{
			name: "cache disabled without directory",
			mutate: func(c *Config) {
				c.Cache.Enabled = false
				c.Cache.Directory = ""
			},
			wantError: false,
		},
		{
			name:      "concurrency too high",
			mutate:    func(c *Config) { c.Pipeline.Concurrency = 32 },
			wantError: true,
		},
		{
			name:      "unknown token store",
			mutate:    func(c *Config) { c.Token.Store = "vault" },
			wantError: true,
		},
		{
			name:      "unknown rate limit strategy",
			mutate:    func(c *Config) { c.RateLimit.Strategy = "leaky" },
			wantError: true,
		},
		{
			name:      "invalid log level",
			mutate:    func(c *Config) { c.Logging.Level = "invalid" },
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			err := config.Validate()
			if (err != nil) != tt.wantError {
				t.Errorf("Validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestMergeCommandLineFlags(t *testing.T) {
	config := DefaultConfig()

	flags := map[string]interface{}{
		"cache-dir":      "/flag/cache",
		"concurrency":    7,
		"include-horses": true,
		"max-retries":    6,
		"token-store":    "keyring",
		"headless":       false,
		"log-level":      "error",
	}

	config.MergeCommandLineFlags(flags)

	if config.Cache.Directory != "/flag/cache" {
		t.Errorf("Expected cache dir /flag/cache, got %s", config.Cache.Directory)
	}
	if config.Pipeline.Concurrency != 7 {
		t.Errorf("Expected concurrency 7, got %d", config.Pipeline.Concurrency)
	}
	if !config.Pipeline.IncludeHorses {
		t.Error("Expected include horses to be enabled")
	}
	if config.Retry.MaxRetries != 6 {
		t.Errorf("Expected max retries 6, got %d", config.Retry.MaxRetries)
	}
	if config.Token.Store != "keyring" {
		t.Errorf("Expected token store keyring, got %s", config.Token.Store)
	}
	if config.Token.Headless {
		t.Error("Expected headless to be disabled")
	}
	if config.Logging.Level != "error" {
		t.Errorf("Expected log level error, got %s", config.Logging.Level)
	}

	config.MergeCommandLineFlags(map[string]interface{}{"no-cache": true})
	if config.Cache.Enabled {
		t.Error("Expected no-cache flag to disable caching")
	}
}

func TestSaveAndLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "nested", "config.yaml")

	config := DefaultConfig()
	config.Retry.MaxRetries = 8
	config.Retry.BaseDelay = 250 * time.Millisecond
	config.Pipeline.IncludeHorses = true

	if err := config.Save(configPath); err != nil {
		t.Fatalf("Failed to save config: %v", err)
	}

	loaded := DefaultConfig()
	if err := loaded.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if loaded.Retry.MaxRetries != 8 {
		t.Errorf("Expected loaded max retries 8, got %d", loaded.Retry.MaxRetries)
	}
	if loaded.Retry.BaseDelay != 250*time.Millisecond {
		t.Errorf("Expected loaded base delay 250ms, got %v", loaded.Retry.BaseDelay)
	}
	if !loaded.Pipeline.IncludeHorses {
		t.Error("Expected loaded include horses to be true")
	}
}

func TestLoadFromFileDurations(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	content := `
retry:
  max_retries: 4
  base_delay: 500ms
  request_timeout: 20s
token:
  observation_timeout: 45s
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	config := DefaultConfig()
	if err := config.LoadFromFile(configPath); err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if config.Retry.BaseDelay != 500*time.Millisecond {
		t.Errorf("Expected base delay 500ms, got %v", config.Retry.BaseDelay)
	}
	if config.Retry.RequestTimeout != 20*time.Second {
		t.Errorf("Expected request timeout 20s, got %v", config.Retry.RequestTimeout)
	}
	if config.Token.ObservationTimeout != 45*time.Second {
		t.Errorf("Expected observation timeout 45s, got %v", config.Token.ObservationTimeout)
	}
	// Untouched sections keep their defaults
	if config.Pipeline.PerPage != 250 {
		t.Errorf("Expected per page to keep default, got %d", config.Pipeline.PerPage)
	}
}

func TestLoadFromFileInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "broken.yaml")
	if err := os.WriteFile(configPath, []byte("retry: [unclosed"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	config := DefaultConfig()
	if err := config.LoadFromFile(configPath); err == nil {
		t.Error("Expected error for invalid YAML")
	}
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("pipeline:\n  concurrency: 2\nlogging:\n  level: warn\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	t.Setenv("BHASCRAPER_CONCURRENCY", "3")

	config, err := Load(configPath, map[string]interface{}{"log-level": "debug"})
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	// env beats file, flags beat file
	if config.Pipeline.Concurrency != 3 {
		t.Errorf("Expected env concurrency 3, got %d", config.Pipeline.Concurrency)
	}
	if config.Logging.Level != "debug" {
		t.Errorf("Expected flag log level debug, got %s", config.Logging.Level)
	}
}

func TestLoadValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("retry:\n  max_retries: 0\n"), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}

	if _, err := Load(configPath, nil); err == nil {
		t.Error("Expected validation error")
	}
}
