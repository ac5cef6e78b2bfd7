// Package config loads the vizopt configuration: an optional .env file,
// an optional YAML file, environment overrides, then defaults.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/vizopt/advisor"
	"github.com/hazyhaar/vizopt/publish"
	"github.com/hazyhaar/vizopt/shield"
)

// Config is the top-level vizopt configuration. It is built once per
// process and read-only afterwards.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Paths    PathsConfig    `yaml:"paths"`
	Capture  CaptureConfig  `yaml:"capture"`
	Browser  BrowserConfig  `yaml:"browser"`
	Advisor  advisor.Config `yaml:"advisor"`
	Timeouts TimeoutsConfig `yaml:"timeouts"`
	Limits   LimitsConfig   `yaml:"limits"`
	History  HistoryConfig  `yaml:"history"`
	Publish  PublishConfig  `yaml:"publish"`
	LogLevel string         `yaml:"log_level"`
}

// ServerConfig controls the HTTP surface.
type ServerConfig struct {
	Addr        string   `yaml:"addr"`
	MCP         bool     `yaml:"mcp"`
	CORSOrigins []string `yaml:"cors_origins"`
	// MaxBodyBytes limits JSON request bodies.
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
	// RatePerMinute limits POST /process-urls per client IP. 0 disables.
	RatePerMinute int `yaml:"rate_per_minute"`
	// TrustedProxies lists the reverse proxies (addresses or CIDR
	// prefixes) whose X-Forwarded-For header names the client.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// PathsConfig names the three filesystem roots.
type PathsConfig struct {
	// InputRoot holds request-scoped transient captures.
	InputRoot string `yaml:"input_root"`
	// DatasetRoot holds <section>/ reference image directories.
	DatasetRoot string `yaml:"dataset_root"`
	// BestRoot receives best_<section>.jpg.
	BestRoot string `yaml:"best_root"`
}

// CaptureConfig controls cropping and capture fan-out.
type CaptureConfig struct {
	BandHeight  int `yaml:"band_height"`
	JPEGQuality int `yaml:"jpeg_quality"`
	Concurrency int `yaml:"concurrency"`
	// AllowPrivateTargets lets analyses capture loopback and private
	// network hosts, for local development.
	AllowPrivateTargets bool `yaml:"allow_private_targets"`
}

// BrowserConfig controls Chrome lifecycle.
type BrowserConfig struct {
	Remote           string        `yaml:"remote"`
	RecycleInterval  time.Duration `yaml:"recycle_interval"`
	NavigateTimeout  time.Duration `yaml:"navigate_timeout"`
	ViewportWidth    int           `yaml:"viewport_width"`
	ViewportHeight   int           `yaml:"viewport_height"`
	ResourceBlocking []string      `yaml:"resource_blocking"`
	DisableStealth   bool          `yaml:"disable_stealth"`
}

// TimeoutsConfig bounds pipeline stages.
type TimeoutsConfig struct {
	Capture time.Duration `yaml:"capture"`
}

// LimitsConfig bounds concurrent work.
type LimitsConfig struct {
	MaxConcurrentRuns int `yaml:"max_concurrent_runs"`
}

// HistoryConfig locates the run history database. An empty path disables
// history and stage metrics.
type HistoryConfig struct {
	Path             string        `yaml:"path"`
	MetricsRetention time.Duration `yaml:"metrics_retention"`
}

// PublishConfig configures optional mirroring of best images.
type PublishConfig struct {
	S3 publish.Config `yaml:"s3"`
}

// Default returns the built-in configuration.
func Default() Config {
	c := Config{
		Advisor: advisor.Config{MaxRetries: 2},
		History: HistoryConfig{Path: "data/history.db"},
	}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":5000"
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Server.MaxBodyBytes <= 0 {
		c.Server.MaxBodyBytes = 64 * 1024
	}
	if c.Paths.InputRoot == "" {
		c.Paths.InputRoot = "data/input"
	}
	if c.Paths.DatasetRoot == "" {
		c.Paths.DatasetRoot = "data/dataset"
	}
	if c.Paths.BestRoot == "" {
		c.Paths.BestRoot = "data/best_images"
	}
	if c.Capture.BandHeight <= 0 {
		c.Capture.BandHeight = 100
	}
	if c.Capture.JPEGQuality <= 0 {
		c.Capture.JPEGQuality = 75
	}
	if c.Capture.Concurrency <= 0 {
		c.Capture.Concurrency = 3
	}
	if c.Browser.RecycleInterval <= 0 {
		c.Browser.RecycleInterval = 4 * time.Hour
	}
	if c.Browser.NavigateTimeout <= 0 {
		c.Browser.NavigateTimeout = 30 * time.Second
	}
	if c.Advisor.Provider == "" {
		c.Advisor.Provider = advisor.ProviderGemini
	}
	if c.Advisor.Timeout <= 0 {
		c.Advisor.Timeout = 60 * time.Second
	}
	if c.Timeouts.Capture <= 0 {
		c.Timeouts.Capture = 2 * time.Minute
	}
	if c.History.MetricsRetention <= 0 {
		c.History.MetricsRetention = 7 * 24 * time.Hour
	}
	if c.Limits.MaxConcurrentRuns <= 0 {
		c.Limits.MaxConcurrentRuns = 2
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Load builds the configuration. A .env file in the working directory is
// loaded first without overriding the real environment. path may be empty;
// a named file that does not exist is an error.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config: .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	set("VIZOPT_ADDR", &c.Server.Addr)
	set("VIZOPT_INPUT_ROOT", &c.Paths.InputRoot)
	set("VIZOPT_DATASET_ROOT", &c.Paths.DatasetRoot)
	set("VIZOPT_BEST_ROOT", &c.Paths.BestRoot)
	set("VIZOPT_ADVISOR_PROVIDER", &c.Advisor.Provider)
	set("VIZOPT_ADVISOR_MODEL", &c.Advisor.Model)
	set("VIZOPT_ADVISOR_ENDPOINT", &c.Advisor.Endpoint)
	set("VIZOPT_HISTORY_DB", &c.History.Path)
	set("VIZOPT_S3_BUCKET", &c.Publish.S3.Bucket)
	set("CHROME_REMOTE_URL", &c.Browser.Remote)
	set("LOG_LEVEL", &c.LogLevel)
	if v, ok := lookup("VIZOPT_TRUSTED_PROXIES"); ok && strings.TrimSpace(v) != "" {
		c.Server.TrustedProxies = strings.Split(v, ",")
	}
	if v, ok := lookup("VIZOPT_ALLOW_PRIVATE_TARGETS"); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			c.Capture.AllowPrivateTargets = b
		}
	}

	c.Advisor.Provider = strings.ToLower(c.Advisor.Provider)
	if c.Advisor.Provider == advisor.ProviderOpenAI {
		set("OPENAI_API_KEY", &c.Advisor.APIKey)
	} else {
		set("GEMINI_API_KEY", &c.Advisor.APIKey)
	}
}

// Validate checks values that defaults cannot repair.
func (c *Config) Validate() error {
	var errs []error
	if c.Capture.JPEGQuality < 1 || c.Capture.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("capture.jpeg_quality must be in 1..100, got %d", c.Capture.JPEGQuality))
	}
	switch c.Advisor.Provider {
	case advisor.ProviderGemini, advisor.ProviderOpenAI:
	default:
		errs = append(errs, fmt.Errorf("advisor.provider must be gemini or openai, got %q", c.Advisor.Provider))
	}
	if c.Advisor.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("advisor.max_retries must be >= 0"))
	}
	if _, err := shield.ParseTrustedProxies(c.Server.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("server.trusted_proxies: %w", err))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level must be debug, info, warn or error, got %q", c.LogLevel))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// Redacted returns a copy safe to log.
func (c Config) Redacted() Config {
	if c.Advisor.APIKey != "" {
		c.Advisor.APIKey = "***"
	}
	c.Server.CORSOrigins = append([]string(nil), c.Server.CORSOrigins...)
	return c
}
