// Package config loads the service configuration: defaults, overlaid by
// an optional YAML file, overlaid by HNPIPE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	DataDir  string `yaml:"data_dir"`
	LogLevel string `yaml:"log_level"`

	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`

	// Schedule is the cron expression for the daily batch in serve mode.
	Schedule string `yaml:"schedule"`

	HN struct {
		BaseURL     string        `yaml:"base_url"`
		MaxRetries  int           `yaml:"max_retries"`
		Timeout     time.Duration `yaml:"timeout"`
		MinInterval time.Duration `yaml:"min_interval"`
	} `yaml:"hn"`

	Pipeline struct {
		TopStories   int `yaml:"top_stories"`
		TrackingDays int `yaml:"tracking_days"`
	} `yaml:"pipeline"`

	Fetch struct {
		Workers          int `yaml:"workers"`
		CheckpointEvery  int `yaml:"checkpoint_every"`
		MaxStoryAttempts int `yaml:"max_story_attempts"`
	} `yaml:"fetch"`
}

// Default returns the configuration defaults.
func Default() *Config {
	cfg := &Config{
		DataDir:  "./data",
		LogLevel: "info",
		Schedule: "0 3 * * *",
	}
	cfg.HTTP.Addr = ":8080"
	cfg.HN.MaxRetries = 3
	cfg.HN.Timeout = 10 * time.Second
	cfg.HN.MinInterval = 100 * time.Millisecond
	cfg.Pipeline.TopStories = 30
	cfg.Pipeline.TrackingDays = 7
	cfg.Fetch.Workers = 4
	cfg.Fetch.CheckpointEvery = 25
	cfg.Fetch.MaxStoryAttempts = 5
	return cfg
}

// Load builds the configuration from defaults, the YAML file at path
// (skipped when path is empty or the file does not exist), and the
// environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Defaults plus environment only.
		case err != nil:
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.DataDir, "HNPIPE_DATA_DIR")
	setString(&cfg.LogLevel, "HNPIPE_LOG_LEVEL")
	setString(&cfg.HTTP.Addr, "HNPIPE_HTTP_ADDR")
	setString(&cfg.Schedule, "HNPIPE_SCHEDULE")
	setString(&cfg.HN.BaseURL, "HNPIPE_HN_BASE_URL")
	setInt(&cfg.HN.MaxRetries, "HNPIPE_HN_MAX_RETRIES")
	setDuration(&cfg.HN.Timeout, "HNPIPE_HN_TIMEOUT")
	setDuration(&cfg.HN.MinInterval, "HNPIPE_HN_MIN_INTERVAL")
	setInt(&cfg.Pipeline.TopStories, "HNPIPE_TOP_STORIES")
	setInt(&cfg.Pipeline.TrackingDays, "HNPIPE_TRACKING_DAYS")
	setInt(&cfg.Fetch.Workers, "HNPIPE_FETCH_WORKERS")
	setInt(&cfg.Fetch.CheckpointEvery, "HNPIPE_FETCH_CHECKPOINT_EVERY")
	setInt(&cfg.Fetch.MaxStoryAttempts, "HNPIPE_FETCH_MAX_STORY_ATTEMPTS")
}

func (c *Config) validate() error {
	if c.DataDir == "" {
		return errors.New("config: data_dir must not be empty")
	}
	if c.Pipeline.TopStories <= 0 {
		return fmt.Errorf("config: top_stories must be positive, got %d", c.Pipeline.TopStories)
	}
	if c.Pipeline.TrackingDays <= 0 {
		return fmt.Errorf("config: tracking_days must be positive, got %d", c.Pipeline.TrackingDays)
	}
	if c.Fetch.Workers <= 0 {
		return fmt.Errorf("config: fetch workers must be positive, got %d", c.Fetch.Workers)
	}
	return nil
}

// LakeDir is the root of the partitioned layer storage.
func (c *Config) LakeDir() string { return filepath.Join(c.DataDir, "lake") }

// ReportsDir is where the per-date report sets land.
func (c *Config) ReportsDir() string {
	return filepath.Join(c.LakeDir(), "output", "reports")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
