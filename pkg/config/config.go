package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const appName = "bhascraper"

// Config holds all configuration options for the scraper
type Config struct {
	// Vendor endpoints and request identity
	API APIConfig `yaml:"api" json:"api"`

	// Browser token capture
	Token TokenConfig `yaml:"token" json:"token"`

	// Retry and backoff for API requests
	Retry RetryConfig `yaml:"retry" json:"retry"`

	// Response cache
	Cache CacheConfig `yaml:"cache" json:"cache"`

	// Rate limiting configuration
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Orchestration settings
	Pipeline PipelineConfig `yaml:"pipeline" json:"pipeline"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// APIConfig holds vendor API configuration
type APIConfig struct {
	BaseURL   string `yaml:"base_url" json:"base_url"`
	TokenURL  string `yaml:"token_url" json:"token_url"`
	APIDomain string `yaml:"api_domain" json:"api_domain"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
	Origin    string `yaml:"origin" json:"origin"`
	Referer   string `yaml:"referer" json:"referer"`
}

// TokenConfig holds bearer token capture configuration
type TokenConfig struct {
	PageTimeout        time.Duration `yaml:"page_timeout" json:"page_timeout"`
	ObservationTimeout time.Duration `yaml:"observation_timeout" json:"observation_timeout"`
	CaptureAttempts    int           `yaml:"capture_attempts" json:"capture_attempts"`
	CaptureBackoff     time.Duration `yaml:"capture_backoff" json:"capture_backoff"`
	Headless           bool          `yaml:"headless" json:"headless"`
	ChromePath         string        `yaml:"chrome_path" json:"chrome_path"`
	// Store selects token persistence: none, keyring, file or auto
	Store  string        `yaml:"store" json:"store"`
	MaxAge time.Duration `yaml:"max_age" json:"max_age"`
}

// RetryConfig holds retry/backoff configuration for the fetcher.
// MaxRetries is the total number of attempts per request.
type RetryConfig struct {
	MaxRetries     int           `yaml:"max_retries" json:"max_retries"`
	BaseDelay      time.Duration `yaml:"base_delay" json:"base_delay"`
	BackoffFactor  float64       `yaml:"backoff_factor" json:"backoff_factor"`
	MaxDelay       time.Duration `yaml:"max_delay" json:"max_delay"`
	Jitter         float64       `yaml:"jitter" json:"jitter"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// CacheConfig holds response cache configuration
type CacheConfig struct {
	Enabled       bool   `yaml:"enabled" json:"enabled"`
	Directory     string `yaml:"directory" json:"directory"`
	MemoryEntries int    `yaml:"memory_entries" json:"memory_entries"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	// Strategy is sliding_window or token_bucket
	Strategy string `yaml:"strategy" json:"strategy"`
}

// PipelineConfig holds orchestrator configuration
type PipelineConfig struct {
	Concurrency        int    `yaml:"concurrency" json:"concurrency"`
	IncludeHorses      bool   `yaml:"include_horses" json:"include_horses"`
	IncludeRacecourses bool   `yaml:"include_racecourses" json:"include_racecourses"`
	SkipFailedUnits    bool   `yaml:"skip_failed_units" json:"skip_failed_units"`
	PerPage            int    `yaml:"per_page" json:"per_page"`
	ListField          string `yaml:"list_field" json:"list_field"`
	FixtureIDField     string `yaml:"fixture_id_field" json:"fixture_id_field"`
	FixtureDateField   string `yaml:"fixture_date_field" json:"fixture_date_field"`
	RaceIDField        string `yaml:"race_id_field" json:"race_id_field"`
	AnimalIDField      string `yaml:"animal_id_field" json:"animal_id_field"`
	RefreshAttempts    int    `yaml:"refresh_attempts" json:"refresh_attempts"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:   "https://api09.horseracing.software/bha/v1",
			TokenURL:  "https://www.britishhorseracing.com/racing/results/",
			APIDomain: "api09.horseracing.software",
			UserAgent: "Mozilla/5.0",
			Origin:    "https://www.britishhorseracing.com",
			Referer:   "https://www.britishhorseracing.com/",
		},
		Token: TokenConfig{
			PageTimeout:        60 * time.Second,
			ObservationTimeout: 15 * time.Second,
			CaptureAttempts:    3,
			CaptureBackoff:     5 * time.Second,
			Headless:           true,
			Store:              "none",
			MaxAge:             30 * time.Minute,
		},
		Retry: RetryConfig{
			MaxRetries:     3,
			BaseDelay:      1 * time.Second,
			BackoffFactor:  2.0,
			MaxDelay:       30 * time.Second,
			Jitter:         0.1,
			RequestTimeout: 15 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:       true,
			Directory:     filepath.Join(xdg.CacheHome, appName, "responses"),
			MemoryEntries: 256,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 120,
			Strategy:          "sliding_window",
		},
		Pipeline: PipelineConfig{
			Concurrency:      4,
			IncludeHorses:    false,
			SkipFailedUnits:  true,
			PerPage:          250,
			ListField:        "data",
			FixtureIDField:   "fixtureId",
			FixtureDateField: "fixtureDate",
			RaceIDField:      "raceId",
			AnimalIDField:    "animalId",
			RefreshAttempts:  2,
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	if v := os.Getenv("BHASCRAPER_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("BHASCRAPER_TOKEN_URL"); v != "" {
		c.API.TokenURL = v
	}
	if v := os.Getenv("BHASCRAPER_API_DOMAIN"); v != "" {
		c.API.APIDomain = v
	}
	if v := os.Getenv("BHASCRAPER_USER_AGENT"); v != "" {
		c.API.UserAgent = v
	}
	if v := os.Getenv("BHASCRAPER_CHROME_PATH"); v != "" {
		c.Token.ChromePath = v
	}
	if v := os.Getenv("BHASCRAPER_TOKEN_STORE"); v != "" {
		c.Token.Store = v
	}
	if v := os.Getenv("BHASCRAPER_HEADLESS"); v != "" {
		c.Token.Headless = strings.ToLower(v) != "false"
	}
	if v := os.Getenv("BHASCRAPER_CACHE_DIR"); v != "" {
		c.Cache.Directory = v
	}
	if v := os.Getenv("BHASCRAPER_CACHE_ENABLED"); v != "" {
		c.Cache.Enabled = strings.ToLower(v) == "true"
	}
	if v := os.Getenv("BHASCRAPER_MAX_RETRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BHASCRAPER_MAX_RETRIES: %w", err))
		} else {
			c.Retry.MaxRetries = n
		}
	}
	if v := os.Getenv("BHASCRAPER_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BHASCRAPER_REQUEST_TIMEOUT: %w", err))
		} else {
			c.Retry.RequestTimeout = d
		}
	}
	if v := os.Getenv("BHASCRAPER_REQUESTS_PER_MINUTE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BHASCRAPER_REQUESTS_PER_MINUTE: %w", err))
		} else if n > 0 {
			c.RateLimit.RequestsPerMinute = n
		}
	}
	if v := os.Getenv("BHASCRAPER_RATE_LIMIT_STRATEGY"); v != "" {
		c.RateLimit.Strategy = v
	}
	if v := os.Getenv("BHASCRAPER_CONCURRENCY"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BHASCRAPER_CONCURRENCY: %w", err))
		} else if n > 0 {
			c.Pipeline.Concurrency = n
		}
	}
	if v := os.Getenv("BHASCRAPER_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("BHASCRAPER_LOG_FILE"); v != "" {
		c.Logging.File = v
	}

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	// If path is empty, try default locations
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	locations := []string{
		".bhascraper.yaml",
		".bhascraper.yml",
	}
	if p, err := xdg.SearchConfigFile(filepath.Join(appName, "config.yaml")); err == nil {
		locations = append(locations, p)
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api base URL is required"))
	}
	if c.API.TokenURL == "" {
		errs = append(errs, errors.New("token URL is required"))
	}
	if c.API.APIDomain == "" {
		errs = append(errs, errors.New("api domain is required"))
	}

	if c.Token.PageTimeout <= 0 {
		errs = append(errs, errors.New("page timeout must be positive"))
	}
	if c.Token.ObservationTimeout <= 0 {
		errs = append(errs, errors.New("observation timeout must be positive"))
	}
	if c.Token.CaptureAttempts <= 0 {
		errs = append(errs, errors.New("capture attempts must be positive"))
	}
	validStores := map[string]bool{"none": true, "keyring": true, "file": true, "auto": true}
	if !validStores[strings.ToLower(c.Token.Store)] {
		errs = append(errs, fmt.Errorf("invalid token store %q", c.Token.Store))
	}

	if c.Retry.MaxRetries <= 0 {
		errs = append(errs, errors.New("max retries must be positive"))
	}
	if c.Retry.BaseDelay < 0 {
		errs = append(errs, errors.New("base delay cannot be negative"))
	}
	if c.Retry.BackoffFactor < 1 {
		errs = append(errs, errors.New("backoff factor must be at least 1"))
	}
	if c.Retry.Jitter < 0 || c.Retry.Jitter > 1 {
		errs = append(errs, errors.New("jitter must be between 0 and 1"))
	}
	if c.Retry.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	if c.Cache.Enabled && c.Cache.Directory == "" {
		errs = append(errs, errors.New("cache directory is required when caching is enabled"))
	}
	if c.Cache.MemoryEntries < 0 {
		errs = append(errs, errors.New("memory entries cannot be negative"))
	}

	if c.RateLimit.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("requests per minute must be positive"))
	}
	switch c.RateLimit.Strategy {
	case "sliding_window", "token_bucket":
	default:
		errs = append(errs, fmt.Errorf("invalid rate limit strategy %q", c.RateLimit.Strategy))
	}

	if c.Pipeline.Concurrency <= 0 {
		errs = append(errs, errors.New("concurrency must be positive"))
	}
	if c.Pipeline.Concurrency > 16 {
		errs = append(errs, errors.New("concurrency should not exceed 16"))
	}
	if c.Pipeline.PerPage <= 0 {
		errs = append(errs, errors.New("per page must be positive"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	return errors.Join(errs...)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["cache-dir"].(string); ok && v != "" {
		c.Cache.Directory = v
	}
	if v, ok := flags["no-cache"].(bool); ok && v {
		c.Cache.Enabled = false
	}
	if v, ok := flags["concurrency"].(int); ok && v > 0 {
		c.Pipeline.Concurrency = v
	}
	if v, ok := flags["include-horses"].(bool); ok && v {
		c.Pipeline.IncludeHorses = true
	}
	if v, ok := flags["include-racecourses"].(bool); ok && v {
		c.Pipeline.IncludeRacecourses = true
	}
	if v, ok := flags["max-retries"].(int); ok && v > 0 {
		c.Retry.MaxRetries = v
	}
	if v, ok := flags["requests-per-minute"].(int); ok && v > 0 {
		c.RateLimit.RequestsPerMinute = v
	}
	if v, ok := flags["token-store"].(string); ok && v != "" {
		c.Token.Store = v
	}
	if v, ok := flags["headless"].(bool); ok {
		c.Token.Headless = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// .env files are optional
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(xdg.ConfigHome, appName, ".env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// DataDir returns the per-user data directory for checkpoints and token files
func DataDir() (string, error) {
	dir := filepath.Join(xdg.DataHome, appName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}
