// Package config loads project configuration from a .medlink.toml file at
// the workspace root. Every field has a working default; a missing file is
// the common case, not an error.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	naverrors "github.com/standardbeagle/medlink/internal/errors"
)

// DefaultFileName is the config file looked for at the workspace root.
const DefaultFileName = ".medlink.toml"

// Config is the full project configuration.
type Config struct {
	// Root is the workspace root. Relative paths resolve against the
	// directory the config file was loaded from.
	Root string `toml:"root"`

	// Include and Exclude are doublestar globs over root-relative paths.
	Include []string `toml:"include"`
	Exclude []string `toml:"exclude"`

	// MaxFileSize skips source files above this many bytes. Zero means the
	// scanner default.
	MaxFileSize int64 `toml:"max_file_size"`

	// Workers bounds scan parallelism. Zero means one worker per CPU.
	Workers int `toml:"workers"`

	Cache     CacheConfig     `toml:"cache"`
	Framework FrameworkConfig `toml:"framework"`
}

// CacheConfig controls the persisted result cache.
type CacheConfig struct {
	// Path of the cache file. Relative paths resolve against the root.
	Path string `toml:"path"`

	// Disabled turns result caching off entirely.
	Disabled bool `toml:"disabled"`

	// Durations are TOML strings in time.ParseDuration syntax.
	SweepInterval     string `toml:"sweep_interval"`
	ValidateThreshold string `toml:"validate_threshold"`
	RecentWindow      string `toml:"recent_window"`
}

// FrameworkConfig names the mediator framework being indexed.
type FrameworkConfig struct {
	// Namespace the framework interfaces are declared in.
	Namespace string `toml:"namespace"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Root: ".",
		Cache: CacheConfig{
			Path: ".medlink-cache.json",
		},
		Framework: FrameworkConfig{
			Namespace: "MediatR",
		},
	}
}

// Load reads configuration from path. A missing file yields the defaults; a
// present but unparsable file is an error, since silently ignoring a typo'd
// config is worse than failing.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, naverrors.Workspace("config", path, err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, naverrors.Workspace("config", path, err)
	}

	base := filepath.Dir(path)
	if cfg.Root == "" {
		cfg.Root = "."
	}
	if !filepath.IsAbs(cfg.Root) {
		cfg.Root = filepath.Join(base, cfg.Root)
	}
	if cfg.Cache.Path != "" && !filepath.IsAbs(cfg.Cache.Path) {
		cfg.Cache.Path = filepath.Join(cfg.Root, cfg.Cache.Path)
	}
	return cfg, nil
}

// LoadFromDir loads DefaultFileName from dir, falling back to defaults
// rooted at dir.
func LoadFromDir(dir string) (*Config, error) {
	cfg, err := Load(filepath.Join(dir, DefaultFileName))
	if err != nil {
		return nil, err
	}
	if cfg.Root == "" || cfg.Root == "." {
		cfg.Root = dir
	}
	if cfg.Cache.Path != "" && !filepath.IsAbs(cfg.Cache.Path) {
		cfg.Cache.Path = filepath.Join(cfg.Root, cfg.Cache.Path)
	}
	return cfg, nil
}

// SweepIntervalDuration parses the configured sweep interval, zero when
// unset or malformed.
func (c CacheConfig) SweepIntervalDuration() time.Duration {
	return parseDuration(c.SweepInterval)
}

// ValidateThresholdDuration parses the configured validation threshold.
func (c CacheConfig) ValidateThresholdDuration() time.Duration {
	return parseDuration(c.ValidateThreshold)
}

// RecentWindowDuration parses the configured recent-use window.
func (c CacheConfig) RecentWindowDuration() time.Duration {
	return parseDuration(c.RecentWindow)
}

func parseDuration(s string) time.Duration {
	if s == "" {
		return 0
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}
	return d
}
