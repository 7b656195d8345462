// Package config loads the optional yaml configuration file that supplies
// run defaults. Precedence, lowest to highest: built-in defaults, config
// file, PYSERINI_* environment variables, command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment variable overrides.
const (
	EnvLogLevel     = "PYSERINI_LOG_LEVEL"
	EnvLogFormat    = "PYSERINI_LOG_FORMAT"
	EnvCacheDir     = "PYSERINI_CACHE_DIR"
	EnvTopicsDir    = "PYSERINI_TOPICS_DIR"
	EnvOutputFormat = "PYSERINI_OUTPUT_FORMAT"
)

// Config holds all file-configurable settings.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Output  OutputConfig  `yaml:"output"`
	Topics  TopicsConfig  `yaml:"topics"`
	Cache   CacheConfig   `yaml:"cache"`
}

// LoggingConfig configures the zerolog setup.
type LoggingConfig struct {
	// Level is the minimum log level (trace, debug, info, warn, error).
	Level string `yaml:"level"`

	// Format is "console" or "json".
	Format string `yaml:"format"`

	// File, when set, duplicates logs to this path.
	File string `yaml:"file"`
}

// OutputConfig configures run-file defaults.
type OutputConfig struct {
	// Format is the default run-file format (trec, msmarco, jsonl).
	Format string `yaml:"format"`
}

// TopicsConfig configures topic-set resolution.
type TopicsConfig struct {
	// Dir is where named topic sets are looked up.
	Dir string `yaml:"dir"`
}

// CacheConfig configures the local artifact cache.
type CacheConfig struct {
	// Dir is the root of the cache; prebuilt indexes land under it.
	Dir string `yaml:"dir"`
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "pyserini", "config.yaml")
}

// New returns a Config populated with built-in defaults.
func New() *Config {
	cacheDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		cacheDir = filepath.Join(home, ".cache", "pyserini")
	}
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "console"},
		Output:  OutputConfig{Format: "trec"},
		Topics:  TopicsConfig{Dir: filepath.Join(cacheDir, "topics")},
		Cache:   CacheConfig{Dir: cacheDir},
	}
}

// Load reads the config file at path on top of the defaults and applies
// environment overrides. A missing file is not an error; a malformed one is.
// An empty path means DefaultPath.
func Load(path string) (*Config, error) {
	cfg := New()

	if path == "" {
		path = DefaultPath()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
			// Defaults only.
		case err != nil:
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overlays PYSERINI_* environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(EnvLogFormat); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(EnvCacheDir); v != "" {
		c.Cache.Dir = v
	}
	if v := os.Getenv(EnvTopicsDir); v != "" {
		c.Topics.Dir = v
	}
	if v := os.Getenv(EnvOutputFormat); v != "" {
		c.Output.Format = v
	}
}

// IndexDir returns the cache subdirectory holding extracted prebuilt indexes.
func (c *Config) IndexDir() string {
	return filepath.Join(c.Cache.Dir, "indexes")
}
