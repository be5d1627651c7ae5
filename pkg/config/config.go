// Package config provides environment-based configuration for the ETL monitor.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment names accepted by MONITOR_ENV.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds all configuration for the monitor.
type Config struct {
	// Environment selects how the stream endpoint is resolved.
	Environment string `yaml:"environment"`

	// APIURL is the base URL of the SaaS backend. In production the stream
	// address is derived from its host and scheme.
	APIURL string `yaml:"api_url"`

	// Token is the bearer token of the operator session.
	Token string `yaml:"token"`

	// Stream configuration
	Stream StreamConfig `yaml:"stream"`

	// Usage poller configuration
	Usage UsageConfig `yaml:"usage"`

	// Display configuration
	Locale string `yaml:"locale"`

	// Headless HTTP view server
	HTTPAddr string `yaml:"http_addr"`

	// Logging
	LogLevel string `yaml:"log_level"`
	LogJSON  bool   `yaml:"log_json"`
	LogFile  string `yaml:"log_file"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// StreamConfig holds event stream connector configuration.
type StreamConfig struct {
	// DevURL is the fixed endpoint used in development.
	DevURL string `yaml:"dev_url"`
	// Path is appended to the API host in production.
	Path string `yaml:"path"`
	// ReconnectDelay is the fixed wait between a close and the next attempt.
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	// ReconnectJitter spreads reconnects by up to this fraction of the delay.
	ReconnectJitter float64 `yaml:"reconnect_jitter"`
}

// UsageConfig holds subscription usage poller configuration.
type UsageConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// Load reads configuration from an optional YAML file named by MONITOR_CONFIG,
// then applies environment variables on top.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("MONITOR_CONFIG"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadWithDefaults loads configuration with defaults for development.
// It does not read a file or validate, useful for testing.
func LoadWithDefaults() *Config {
	cfg := defaults()
	cfg.applyEnv()
	return cfg
}

func defaults() *Config {
	return &Config{
		Environment: EnvProduction,
		APIURL:      "http://localhost:8000",
		Stream: StreamConfig{
			DevURL:         "ws://localhost:8000/ws/monitor",
			Path:           "/ws/monitor",
			ReconnectDelay: 5 * time.Second,
		},
		Usage: UsageConfig{
			Interval: 10 * time.Second,
		},
		Locale:          "pt-BR",
		HTTPAddr:        "127.0.0.1:8090",
		LogLevel:        "info",
		ShutdownTimeout: 10 * time.Second,
	}
}

// loadFile overlays values from a YAML file. Missing keys keep their defaults.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config file %s not found", path)
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return nil
}

func (c *Config) applyEnv() {
	c.Environment = getEnv("MONITOR_ENV", c.Environment)
	c.APIURL = getEnv("MONITOR_API_URL", c.APIURL)
	c.Token = getEnv("MONITOR_TOKEN", c.Token)
	c.Stream.DevURL = getEnv("MONITOR_DEV_STREAM_URL", c.Stream.DevURL)
	c.Stream.Path = getEnv("MONITOR_STREAM_PATH", c.Stream.Path)
	c.Stream.ReconnectDelay = getDurationEnv("MONITOR_RECONNECT_DELAY", c.Stream.ReconnectDelay)
	c.Stream.ReconnectJitter = getFloatEnv("MONITOR_RECONNECT_JITTER", c.Stream.ReconnectJitter)
	c.Usage.Interval = getDurationEnv("MONITOR_USAGE_INTERVAL", c.Usage.Interval)
	c.Locale = getEnv("MONITOR_LOCALE", c.Locale)
	c.HTTPAddr = getEnv("MONITOR_HTTP_ADDR", c.HTTPAddr)
	c.LogLevel = getEnv("MONITOR_LOG_LEVEL", c.LogLevel)
	c.LogJSON = getBoolEnv("MONITOR_LOG_JSON", c.LogJSON)
	c.LogFile = getEnv("MONITOR_LOG_FILE", c.LogFile)
	c.ShutdownTimeout = getDurationEnv("MONITOR_SHUTDOWN_TIMEOUT", c.ShutdownTimeout)
}

// Validate checks that configuration values are usable.
func (c *Config) Validate() error {
	switch c.Environment {
	case EnvDevelopment, EnvProduction:
	default:
		return fmt.Errorf("MONITOR_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Environment)
	}
	if c.APIURL == "" {
		return fmt.Errorf("MONITOR_API_URL is required")
	}
	if c.Stream.ReconnectDelay <= 0 {
		return fmt.Errorf("MONITOR_RECONNECT_DELAY must be positive")
	}
	if c.Stream.ReconnectJitter < 0 || c.Stream.ReconnectJitter > 1 {
		return fmt.Errorf("MONITOR_RECONNECT_JITTER must be between 0 and 1")
	}
	if c.Usage.Interval <= 0 {
		return fmt.Errorf("MONITOR_USAGE_INTERVAL must be positive")
	}
	return nil
}

// IsDevelopment reports whether the monitor runs against a local backend.
func (c *Config) IsDevelopment() bool {
	return c.Environment == EnvDevelopment
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
