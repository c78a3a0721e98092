package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the scraper
type Config struct {
	// Scrape targets (one entry per site/search)
	Targets []TargetConfig `yaml:"targets" json:"targets"`

	// General scraping behaviour
	Scraping ScrapingConfig `yaml:"scraping" json:"scraping"`

	// Adaptive pacing / backoff configuration
	Pacing PacingConfig `yaml:"pacing" json:"pacing"`

	// CAPTCHA / challenge handling configuration
	Challenge ChallengeConfig `yaml:"challenge" json:"challenge"`

	// Failure limits and run policy
	Limits LimitsConfig `yaml:"limits" json:"limits"`

	// Export settings
	Export ExportConfig `yaml:"export" json:"export"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// TargetConfig describes a single scrape target
type TargetConfig struct {
	Name       string         `yaml:"name" json:"name"`
	URL        string         `yaml:"url" json:"url"`
	Keywords   []string       `yaml:"keywords" json:"keywords"`
	Categories []string       `yaml:"categories" json:"categories"`
	Selectors  SelectorConfig `yaml:"selectors" json:"selectors"`
}

// SelectorConfig holds the CSS selectors used to extract records from a page
type SelectorConfig struct {
	Record   string `yaml:"record" json:"record"`
	Title    string `yaml:"title" json:"title"`
	Price    string `yaml:"price" json:"price"`
	Location string `yaml:"location" json:"location"`
}

// ScrapingConfig holds general scraping behaviour
type ScrapingConfig struct {
	MaxPages       int           `yaml:"max_pages" json:"max_pages"`
	Workers        int           `yaml:"workers" json:"workers"`
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	UserAgent      string        `yaml:"user_agent" json:"user_agent"`
}

// PacingConfig holds adaptive delay and backoff configuration
type PacingConfig struct {
	// BaseInterval is the delay before a request at backoff level zero
	BaseInterval time.Duration `yaml:"base_interval" json:"base_interval"`
	// MinInterval is the floor applied to every computed delay
	MinInterval time.Duration `yaml:"min_interval" json:"min_interval"`
	// MaxDelay caps the exponential growth
	MaxDelay time.Duration `yaml:"max_delay" json:"max_delay"`
	// MaxBackoffLevel caps the exponent; a Blocked outcome at this level
	// exhausts the target
	MaxBackoffLevel int `yaml:"max_backoff_level" json:"max_backoff_level"`
	// JitterFraction randomises each delay by +/- this fraction (0.0 to 1.0)
	JitterFraction float64 `yaml:"jitter_fraction" json:"jitter_fraction"`
	// SuccessResetThreshold is the consecutive-success streak that resets
	// the backoff level to zero
	SuccessResetThreshold int `yaml:"success_reset_threshold" json:"success_reset_threshold"`
	// RequestsPerSecond is the global per-host politeness floor
	RequestsPerSecond float64 `yaml:"requests_per_second" json:"requests_per_second"`
	Burst             int     `yaml:"burst" json:"burst"`
}

// ChallengeConfig holds CAPTCHA detection and resolution configuration
type ChallengeConfig struct {
	// Markers are body signatures that confirm a CAPTCHA page
	Markers []string `yaml:"markers" json:"markers"`
	// ThrottleIndicators are body signatures for rate-limit pages
	ThrottleIndicators []string `yaml:"throttle_indicators" json:"throttle_indicators"`
	// ResolutionDeadline bounds a single solve attempt
	ResolutionDeadline time.Duration `yaml:"resolution_deadline" json:"resolution_deadline"`
	// MaxResolutionRetries is the number of failed solve attempts before a
	// target is aborted
	MaxResolutionRetries int `yaml:"max_resolution_retries" json:"max_resolution_retries"`
	// MaxEncounters is the total CAPTCHA budget for a run
	MaxEncounters int `yaml:"max_encounters" json:"max_encounters"`
	// SolverMode selects the resolver: "manual" or "service"
	SolverMode string `yaml:"solver_mode" json:"solver_mode"`
	// ServiceURL is the solving-service endpoint (service mode only)
	ServiceURL string `yaml:"service_url" json:"service_url"`
	// CooldownBase is the extra wait applied after a resolved challenge
	CooldownBase time.Duration `yaml:"cooldown_base" json:"cooldown_base"`
	// CooldownSpread is the random addition on top of CooldownBase
	CooldownSpread time.Duration `yaml:"cooldown_spread" json:"cooldown_spread"`
}

// LimitsConfig holds failure limits and run policy
type LimitsConfig struct {
	MaxNetworkRetries int  `yaml:"max_network_retries" json:"max_network_retries"`
	AbortOnFailure    bool `yaml:"abort_on_failure" json:"abort_on_failure"`
}

// ExportConfig holds export settings
type ExportConfig struct {
	OutputDirectory string   `yaml:"output_directory" json:"output_directory"`
	BaseName        string   `yaml:"base_name" json:"base_name"`
	Formats         []string `yaml:"formats" json:"formats"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Scraping: ScrapingConfig{
			MaxPages:       5,
			Workers:        3,
			RequestTimeout: 30 * time.Second,
			UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36",
		},
		Pacing: PacingConfig{
			BaseInterval:          1 * time.Second,
			MinInterval:           500 * time.Millisecond,
			MaxDelay:              2 * time.Minute,
			MaxBackoffLevel:       6,
			JitterFraction:        0.2,
			SuccessResetThreshold: 3,
			RequestsPerSecond:     2.0,
			Burst:                 4,
		},
		Challenge: ChallengeConfig{
			Markers:              DefaultChallengeMarkers(),
			ThrottleIndicators:   DefaultThrottleIndicators(),
			ResolutionDeadline:   5 * time.Minute,
			MaxResolutionRetries: 3,
			MaxEncounters:        5,
			SolverMode:           "manual",
			CooldownBase:         30 * time.Second,
			CooldownSpread:       20 * time.Second,
		},
		Limits: LimitsConfig{
			MaxNetworkRetries: 3,
			AbortOnFailure:    false,
		},
		Export: ExportConfig{
			OutputDirectory: "./results",
			BaseName:        "scraping_results",
			Formats:         []string{"json", "csv", "xlsx"},
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  "",
		},
	}
}

// DefaultChallengeMarkers returns the body signatures that confirm a
// CAPTCHA page. Matching any of these classifies the response as Blocked.
func DefaultChallengeMarkers() []string {
	return []string{
		"recaptcha",
		"hcaptcha",
		"cf-browser-verification",
		"cf-challenge",
		"challenge-form",
		"data-testid=\"captcha\"",
		"geo.captcha-delivery.com",
	}
}

// DefaultThrottleIndicators returns the body signatures for rate-limit pages
func DefaultThrottleIndicators() []string {
	return []string{
		"too many requests",
		"rate limit",
		"temporarily unavailable",
		"service unavailable",
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if workers := os.Getenv("ADSCRAPER_WORKERS"); workers != "" {
		var val int
		fmt.Sscanf(workers, "%d", &val)
		if val > 0 {
			c.Scraping.Workers = val
		}
	}
	if maxPages := os.Getenv("ADSCRAPER_MAX_PAGES"); maxPages != "" {
		var val int
		fmt.Sscanf(maxPages, "%d", &val)
		if val > 0 {
			c.Scraping.MaxPages = val
		}
	}
	if outputDir := os.Getenv("ADSCRAPER_OUTPUT_DIR"); outputDir != "" {
		c.Export.OutputDirectory = outputDir
	}
	if solverMode := os.Getenv("ADSCRAPER_SOLVER_MODE"); solverMode != "" {
		c.Challenge.SolverMode = solverMode
	}
	if serviceURL := os.Getenv("ADSCRAPER_SOLVER_URL"); serviceURL != "" {
		c.Challenge.ServiceURL = serviceURL
	}
	if userAgent := os.Getenv("ADSCRAPER_USER_AGENT"); userAgent != "" {
		c.Scraping.UserAgent = userAgent
	}
	if logLevel := os.Getenv("ADSCRAPER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}
	return nil
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
		"config.yaml",
		"config.yml",
		".adscraper.yaml",
		".adscraper.yml",
		filepath.Join(os.Getenv("HOME"), ".config", "adscraper", "config.yaml"),
		filepath.Join(os.Getenv("HOME"), ".config", "adscraper", "config.yml"),
		filepath.Join(os.Getenv("HOME"), ".adscraper.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. All violations are fatal
// at startup, before any fetch begins.
func (c *Config) Validate() error {
	var errs []error

	if len(c.Targets) == 0 {
		errs = append(errs, errors.New("at least one target is required"))
	}
	for i, t := range c.Targets {
		if t.Name == "" {
			errs = append(errs, fmt.Errorf("target %d: name is required", i+1))
		}
		if t.URL == "" {
			errs = append(errs, fmt.Errorf("target %q: url is required", t.Name))
		}
	}

	// Scraping
	if c.Scraping.MaxPages <= 0 {
		errs = append(errs, errors.New("max pages must be positive"))
	}
	if c.Scraping.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Scraping.Workers > 16 {
		errs = append(errs, errors.New("workers should not exceed 16"))
	}
	if c.Scraping.RequestTimeout <= 0 {
		errs = append(errs, errors.New("request timeout must be positive"))
	}

	// Pacing
	if c.Pacing.BaseInterval <= 0 {
		errs = append(errs, errors.New("base interval must be positive"))
	}
	if c.Pacing.MinInterval < 0 {
		errs = append(errs, errors.New("min interval cannot be negative"))
	}
	if c.Pacing.MaxDelay < c.Pacing.BaseInterval {
		errs = append(errs, errors.New("max delay must be at least the base interval"))
	}
	if c.Pacing.MaxBackoffLevel < 0 {
		errs = append(errs, errors.New("max backoff level cannot be negative"))
	}
	if c.Pacing.JitterFraction < 0 || c.Pacing.JitterFraction >= 1 {
		errs = append(errs, errors.New("jitter fraction must be in [0, 1)"))
	}
	if c.Pacing.SuccessResetThreshold <= 0 {
		errs = append(errs, errors.New("success reset threshold must be positive"))
	}

	// Challenge
	if c.Challenge.ResolutionDeadline <= 0 {
		errs = append(errs, errors.New("resolution deadline must be positive"))
	}
	if c.Challenge.MaxResolutionRetries <= 0 {
		errs = append(errs, errors.New("max resolution retries must be positive"))
	}
	switch strings.ToLower(c.Challenge.SolverMode) {
	case "manual":
	case "service":
		if c.Challenge.ServiceURL == "" {
			errs = append(errs, errors.New("service solver mode requires a service url"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid solver mode %q (want manual or service)", c.Challenge.SolverMode))
	}

	// Limits
	if c.Limits.MaxNetworkRetries < 0 {
		errs = append(errs, errors.New("max network retries cannot be negative"))
	}

	// Export
	if c.Export.OutputDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	validFormats := map[string]bool{"json": true, "csv": true, "xlsx": true}
	for _, f := range c.Export.Formats {
		if !validFormats[strings.ToLower(f)] {
			errs = append(errs, fmt.Errorf("invalid export format %q", f))
		}
	}

	// Logging
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
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
	if workers, ok := flags["workers"].(int); ok && workers > 0 {
		c.Scraping.Workers = workers
	}
	if maxPages, ok := flags["max-pages"].(int); ok && maxPages > 0 {
		c.Scraping.MaxPages = maxPages
	}
	if outputDir, ok := flags["output"].(string); ok && outputDir != "" {
		c.Export.OutputDirectory = outputDir
	}
	if solverMode, ok := flags["solver"].(string); ok && solverMode != "" {
		c.Challenge.SolverMode = solverMode
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	// Try to load .env files (don't fail if they don't exist)
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".adscraper.env"))

	// Start with defaults
	config := DefaultConfig()

	// Load from config file
	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	// Override with environment variables (includes values from .env)
	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Override with command line flags
	config.MergeCommandLineFlags(flags)

	// Validate final configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
