// Package config provides process-scoped configuration for the monthly
// candle pipeline. Settings come from defaults overridden by MONTHLY_*
// environment variables; there is no configuration file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds every tunable the pipeline accepts. It is passed explicitly
// into the fetcher and collector rather than read from ambient state, so
// tests can substitute deterministic values.
type Config struct {
	// BaseURL is the archive host root for spot monthly klines.
	BaseURL string

	// UserAgent is sent on every archive request.
	UserAgent string

	// Workers bounds the number of months fetched concurrently.
	Workers int

	// MaxRetries bounds retry attempts for one transient archive fetch.
	MaxRetries int

	// InitialRetryDelay is the first backoff interval.
	InitialRetryDelay time.Duration

	// MaxRetryDelay caps the backoff interval.
	MaxRetryDelay time.Duration

	// RequestTimeout bounds a single archive request.
	RequestTimeout time.Duration

	// RequestsPerSecond limits request rate toward the archive host.
	RequestsPerSecond float64

	// Burst is the rate limiter's burst allowance.
	Burst int

	// Logging configures structured log output.
	Logging LoggingConfig
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level      string // debug, info, warn, error
	Format     string // json, text
	Output     string // stdout, stderr, file
	FilePath   string // log file path when Output is "file"
	MaxSizeMB  int    // maximum log file size before rotation
	MaxBackups int    // rotated files to keep
	MaxAgeDays int    // maximum age of rotated files
	Compress   bool   // gzip rotated files
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		BaseURL:           "https://data.binance.vision/data/spot/monthly/klines",
		UserAgent:         "go-monthly-candles/1.0",
		Workers:           4,
		MaxRetries:        3,
		InitialRetryDelay: 500 * time.Millisecond,
		MaxRetryDelay:     30 * time.Second,
		RequestTimeout:    60 * time.Second,
		RequestsPerSecond: 10,
		Burst:             2,
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// FromEnv returns the default configuration with MONTHLY_* environment
// overrides applied.
func FromEnv() *Config {
	cfg := Default()

	cfg.BaseURL = getEnvString("MONTHLY_BASE_URL", cfg.BaseURL)
	cfg.UserAgent = getEnvString("MONTHLY_USER_AGENT", cfg.UserAgent)
	cfg.Workers = getEnvInt("MONTHLY_WORKERS", cfg.Workers)
	cfg.MaxRetries = getEnvInt("MONTHLY_MAX_RETRIES", cfg.MaxRetries)
	cfg.InitialRetryDelay = getEnvDuration("MONTHLY_INITIAL_RETRY_DELAY", cfg.InitialRetryDelay)
	cfg.MaxRetryDelay = getEnvDuration("MONTHLY_MAX_RETRY_DELAY", cfg.MaxRetryDelay)
	cfg.RequestTimeout = getEnvDuration("MONTHLY_REQUEST_TIMEOUT", cfg.RequestTimeout)
	cfg.RequestsPerSecond = getEnvFloat("MONTHLY_REQUESTS_PER_SECOND", cfg.RequestsPerSecond)
	cfg.Burst = getEnvInt("MONTHLY_BURST", cfg.Burst)

	cfg.Logging.Level = getEnvString("MONTHLY_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = getEnvString("MONTHLY_LOG_FORMAT", cfg.Logging.Format)
	cfg.Logging.Output = getEnvString("MONTHLY_LOG_OUTPUT", cfg.Logging.Output)
	cfg.Logging.FilePath = getEnvString("MONTHLY_LOG_FILE_PATH", cfg.Logging.FilePath)
	cfg.Logging.MaxSizeMB = getEnvInt("MONTHLY_LOG_MAX_SIZE", cfg.Logging.MaxSizeMB)
	cfg.Logging.MaxBackups = getEnvInt("MONTHLY_LOG_MAX_BACKUPS", cfg.Logging.MaxBackups)
	cfg.Logging.MaxAgeDays = getEnvInt("MONTHLY_LOG_MAX_AGE", cfg.Logging.MaxAgeDays)
	cfg.Logging.Compress = getEnvBool("MONTHLY_LOG_COMPRESS", cfg.Logging.Compress)

	return cfg
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base URL cannot be empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got %d", c.MaxRetries)
	}
	if c.InitialRetryDelay <= 0 {
		return fmt.Errorf("initial retry delay must be positive, got %s", c.InitialRetryDelay)
	}
	if c.MaxRetryDelay < c.InitialRetryDelay {
		return fmt.Errorf("max retry delay %s is below initial delay %s", c.MaxRetryDelay, c.InitialRetryDelay)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if c.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive, got %f", c.RequestsPerSecond)
	}
	if c.Burst < 1 {
		return fmt.Errorf("burst must be at least 1, got %d", c.Burst)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format %q", c.Logging.Format)
	}
	switch c.Logging.Output {
	case "stdout", "stderr":
	case "file":
		if c.Logging.FilePath == "" {
			return fmt.Errorf("log file path is required when output is file")
		}
	default:
		return fmt.Errorf("invalid log output %q", c.Logging.Output)
	}
	return nil
}

func getEnvString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
