package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	darshttp "github.com/ligustah/dars/internal/http"
)

// ErrNoBaseURL is returned by RequireBaseURL when no catalog URL is set.
var ErrNoBaseURL = errors.New("config: base_url is required")

// Config defines configuration for the dars CLI.
type Config struct {
	BaseURL           string                 `yaml:"base_url"`
	Substitutions     darshttp.Substitutions `yaml:"url_prefix_substitution"`
	DownloadDir       string                 `yaml:"download_dir"`
	Bucket            string                 `yaml:"bucket"`
	ObjectStorePrefix string                 `yaml:"object_store_prefix"`
	Workers           int                    `yaml:"workers"`
	RequestTimeout    time.Duration          `yaml:"request_timeout"`
	RequestTemplate   string                 `yaml:"request_template"`
	Filter            string                 `yaml:"filter"`
	Progress          bool                   `yaml:"progress"`
	Retry             RetryConfig            `yaml:"retry"`
}

// RetryConfig defines retry behavior.
type RetryConfig struct {
	Attempts int           `yaml:"attempts"`
	Delay    time.Duration `yaml:"delay"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		DownloadDir:    "downloads",
		Workers:        1,
		RequestTimeout: 60 * time.Second,
		Retry: RetryConfig{
			Attempts: 5,
			Delay:    5 * time.Second,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations.
type yamlConfig struct {
	BaseURL           string                 `yaml:"base_url"`
	Substitutions     darshttp.Substitutions `yaml:"url_prefix_substitution"`
	DownloadDir       string                 `yaml:"download_dir"`
	Bucket            string                 `yaml:"bucket"`
	ObjectStorePrefix string                 `yaml:"object_store_prefix"`
	Workers           int                    `yaml:"workers"`
	RequestTimeout    string                 `yaml:"request_timeout"`
	RequestTemplate   string                 `yaml:"request_template"`
	Filter            string                 `yaml:"filter"`
	Progress          bool                   `yaml:"progress"`
	Retry             yamlRetryConfig        `yaml:"retry"`
}

type yamlRetryConfig struct {
	Attempts int    `yaml:"attempts"`
	Delay    string `yaml:"delay"`
}

// LoadFromFile loads configuration from a YAML file on top of Default().
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal(data, &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()

	if yc.BaseURL != "" {
		cfg.BaseURL = yc.BaseURL
	}
	if len(yc.Substitutions) > 0 {
		cfg.Substitutions = yc.Substitutions
	}
	if yc.DownloadDir != "" {
		cfg.DownloadDir = yc.DownloadDir
	}
	if yc.Bucket != "" {
		cfg.Bucket = yc.Bucket
	}
	if yc.ObjectStorePrefix != "" {
		cfg.ObjectStorePrefix = yc.ObjectStorePrefix
	}
	if yc.Workers != 0 {
		cfg.Workers = yc.Workers
	}
	if yc.RequestTimeout != "" {
		d, err := time.ParseDuration(yc.RequestTimeout)
		if err != nil {
			return Config{}, fmt.Errorf("parse request_timeout: %w", err)
		}
		cfg.RequestTimeout = d
	}
	if yc.RequestTemplate != "" {
		cfg.RequestTemplate = yc.RequestTemplate
	}
	if yc.Filter != "" {
		cfg.Filter = yc.Filter
	}
	cfg.Progress = yc.Progress
	if yc.Retry.Attempts != 0 {
		cfg.Retry.Attempts = yc.Retry.Attempts
	}
	if yc.Retry.Delay != "" {
		d, err := time.ParseDuration(yc.Retry.Delay)
		if err != nil {
			return Config{}, fmt.Errorf("parse retry.delay: %w", err)
		}
		cfg.Retry.Delay = d
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the DARS_ prefix.
func (c *Config) LoadFromEnv() error {
	if v := os.Getenv("DARS_BASE_URL"); v != "" {
		c.BaseURL = v
	}
	if v := os.Getenv("DARS_URL_PREFIX_SUBSTITUTION"); v != "" {
		subs, err := ParseSubstitutions(v)
		if err != nil {
			return fmt.Errorf("parse DARS_URL_PREFIX_SUBSTITUTION: %w", err)
		}
		c.Substitutions = subs
	}
	if v := os.Getenv("DARS_DOWNLOAD_DIR"); v != "" {
		c.DownloadDir = v
	}
	if v := os.Getenv("DARS_BUCKET"); v != "" {
		c.Bucket = v
	}
	if v := os.Getenv("DARS_OBJECT_STORE_PREFIX"); v != "" {
		c.ObjectStorePrefix = v
	}
	if v := os.Getenv("DARS_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse DARS_WORKERS: %w", err)
		}
		c.Workers = n
	}
	if v := os.Getenv("DARS_REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse DARS_REQUEST_TIMEOUT: %w", err)
		}
		c.RequestTimeout = d
	}
	if v := os.Getenv("DARS_REQUEST_TEMPLATE"); v != "" {
		c.RequestTemplate = v
	}
	if v := os.Getenv("DARS_FILTER"); v != "" {
		c.Filter = v
	}
	if v := os.Getenv("DARS_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}
	if v := os.Getenv("DARS_RETRY_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse DARS_RETRY_ATTEMPTS: %w", err)
		}
		c.Retry.Attempts = n
	}
	if v := os.Getenv("DARS_RETRY_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse DARS_RETRY_DELAY: %w", err)
		}
		c.Retry.Delay = d
	}

	return nil
}

// ParseSubstitutions parses "from=to" pairs separated by commas.
func ParseSubstitutions(s string) (darshttp.Substitutions, error) {
	var subs darshttp.Substitutions
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		from, to, ok := strings.Cut(pair, "=")
		if !ok || from == "" {
			return nil, fmt.Errorf("invalid substitution %q, want from=to", pair)
		}
		subs = append(subs, darshttp.Substitution{From: from, To: to})
	}
	return subs, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.DownloadDir == "" {
		return errors.New("config: download_dir is required")
	}
	if c.Workers <= 0 {
		return errors.New("config: workers must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("config: request_timeout must be positive")
	}
	if c.Retry.Attempts <= 0 {
		return errors.New("config: retry.attempts must be positive")
	}
	if c.Retry.Delay < 0 {
		return errors.New("config: retry.delay must not be negative")
	}
	for i, sub := range c.Substitutions {
		if sub.From == "" {
			return fmt.Errorf("config: url_prefix_substitution[%d]: from is required", i)
		}
	}
	if c.Filter != "" {
		if _, err := regexp.Compile(c.Filter); err != nil {
			return fmt.Errorf("config: filter: %w", err)
		}
	}
	return nil
}

// RequireBaseURL reports ErrNoBaseURL when no catalog URL is configured.
func (c *Config) RequireBaseURL() error {
	if c.BaseURL == "" {
		return ErrNoBaseURL
	}
	return nil
}

// HTTPOptions returns the HTTP client options for this configuration.
func (c *Config) HTTPOptions() darshttp.Options {
	opts := darshttp.DefaultOptions()
	opts.Timeout = c.RequestTimeout
	opts.Attempts = c.Retry.Attempts
	opts.Delay = c.Retry.Delay
	opts.Substitutions = c.Substitutions
	if c.Workers*2 > opts.MaxIdleConnsPerHost {
		opts.MaxIdleConnsPerHost = c.Workers * 2
	}
	return opts
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	if override.BaseURL != "" {
		c.BaseURL = override.BaseURL
	}
	if len(override.Substitutions) > 0 {
		c.Substitutions = override.Substitutions
	}
	if override.DownloadDir != "" {
		c.DownloadDir = override.DownloadDir
	}
	if override.Bucket != "" {
		c.Bucket = override.Bucket
	}
	if override.ObjectStorePrefix != "" {
		c.ObjectStorePrefix = override.ObjectStorePrefix
	}
	if override.Workers != 0 {
		c.Workers = override.Workers
	}
	if override.RequestTimeout != 0 {
		c.RequestTimeout = override.RequestTimeout
	}
	if override.RequestTemplate != "" {
		c.RequestTemplate = override.RequestTemplate
	}
	if override.Filter != "" {
		c.Filter = override.Filter
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Retry.Attempts != 0 {
		c.Retry.Attempts = override.Retry.Attempts
	}
	if override.Retry.Delay != 0 {
		c.Retry.Delay = override.Retry.Delay
	}
	return c
}
