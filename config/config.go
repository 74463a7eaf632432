// Package config loads mvstore settings from a YAML file and MVSTORE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dot5enko/mvstore/aggregate"
	"github.com/dot5enko/mvstore/freshness"
	"github.com/dot5enko/mvstore/paged"
)

const EnvPrefix = "MVSTORE_"

type StorageConfig struct {
	Path       string `yaml:"path"`
	SpillPath  string `yaml:"spill_path,omitempty"`
	PageRows   int    `yaml:"page_rows"`
	CachePages int    `yaml:"cache_pages"`
}

type AggregateConfig struct {
	ThresholdRows  int   `yaml:"threshold_rows"`
	ThresholdBytes int64 `yaml:"threshold_bytes"`
}

type MVConfig struct {
	// both are milliseconds or ISO-8601 durations, empty disables the check
	Freshness string `yaml:"freshness,omitempty"`
	MaxAge    string `yaml:"maxAge,omitempty"`

	SweepSchedule    string `yaml:"sweep_schedule"`
	SweepConcurrency int    `yaml:"sweep_concurrency"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Aggregate AggregateConfig `yaml:"aggregate"`
	MV        MVConfig        `yaml:"mv"`
	Log       LogConfig       `yaml:"log"`

	// Warnings collects non-fatal problems found while loading. They are
	// logged by the caller once the logger exists.
	Warnings []string `yaml:"-"`

	policy freshness.Policy
}

func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Path:       "data",
			PageRows:   paged.DefaultPageRows,
			CachePages: paged.DefaultCachePages,
		},
		Aggregate: AggregateConfig{
			ThresholdRows: 100_000,
		},
		MV: MVConfig{
			SweepSchedule:    freshness.DefaultSchedule,
			SweepConcurrency: freshness.DefaultConcurrency,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads path on top of the defaults, then applies the environment. An
// empty path or a missing file only uses defaults and environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("config file %s not found, using defaults", path))
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	return cfg, nil
}

func (c *Config) applyEnv() {
	setString := func(key string, dst *string) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				c.Warnings = append(c.Warnings, fmt.Sprintf("%s%s: %q is not an integer, ignored", EnvPrefix, key, v))
				return
			}
			*dst = n
		}
	}

	setString("STORAGE_PATH", &c.Storage.Path)
	setString("SPILL_PATH", &c.Storage.SpillPath)
	setInt("PAGE_ROWS", &c.Storage.PageRows)
	setInt("CACHE_PAGES", &c.Storage.CachePages)
	setInt("THRESHOLD_ROWS", &c.Aggregate.ThresholdRows)
	setString("MV_FRESHNESS", &c.MV.Freshness)
	setString("MV_MAX_AGE", &c.MV.MaxAge)
	setString("SWEEP_SCHEDULE", &c.MV.SweepSchedule)
	setInt("SWEEP_CONCURRENCY", &c.MV.SweepConcurrency)
	setString("LOG_LEVEL", &c.Log.Level)

	if v, ok := os.LookupEnv(EnvPrefix + "THRESHOLD_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			c.Warnings = append(c.Warnings, fmt.Sprintf("%sTHRESHOLD_BYTES: %q is not an integer, ignored", EnvPrefix, v))
		} else {
			c.Aggregate.ThresholdBytes = n
		}
	}
}

func (c *Config) normalize() {
	defaults := Default()

	if c.Storage.Path == "" {
		c.Warnings = append(c.Warnings, "storage.path is empty, using "+defaults.Storage.Path)
		c.Storage.Path = defaults.Storage.Path
	}
	if c.Storage.PageRows <= 0 {
		c.Warnings = append(c.Warnings, fmt.Sprintf("storage.page_rows %d is not positive, using %d", c.Storage.PageRows, defaults.Storage.PageRows))
		c.Storage.PageRows = defaults.Storage.PageRows
	}
	if c.Storage.CachePages <= 0 {
		c.Storage.CachePages = defaults.Storage.CachePages
	}
	if c.Aggregate.ThresholdRows < 0 {
		c.Warnings = append(c.Warnings, "aggregate.threshold_rows is negative, row limit disabled")
		c.Aggregate.ThresholdRows = 0
	}
	if c.Aggregate.ThresholdBytes < 0 {
		c.Warnings = append(c.Warnings, "aggregate.threshold_bytes is negative, byte limit disabled")
		c.Aggregate.ThresholdBytes = 0
	}
	if c.MV.SweepSchedule == "" {
		c.MV.SweepSchedule = defaults.MV.SweepSchedule
	}
	if c.MV.SweepConcurrency <= 0 {
		c.MV.SweepConcurrency = defaults.MV.SweepConcurrency
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		c.Warnings = append(c.Warnings, fmt.Sprintf("log.level %q is unknown, using info", c.Log.Level))
	}

	policy, warnings := freshness.PolicyFromSettings(c.MV.Freshness, c.MV.MaxAge)
	c.policy = policy
	c.Warnings = append(c.Warnings, warnings...)
}

// Policy is the freshness policy parsed from mv.freshness and mv.maxAge.
func (c *Config) Policy() freshness.Policy {
	return c.policy
}

func (c *Config) Threshold() aggregate.Threshold {
	return aggregate.Threshold{
		Rows:  c.Aggregate.ThresholdRows,
		Bytes: c.Aggregate.ThresholdBytes,
	}
}

// SpillDir defaults to <storage.path>/spill.
func (c *Config) SpillDir() string {
	if c.Storage.SpillPath != "" {
		return c.Storage.SpillPath
	}
	return filepath.Join(c.Storage.Path, "spill")
}

// CatalogDir is where materialized views live.
func (c *Config) CatalogDir() string {
	return filepath.Join(c.Storage.Path, "mv")
}

// SlogLevel maps the log level string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.Log.Level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Marshal renders the effective configuration as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}
