package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, ".", cfg.Root)
	assert.Equal(t, ".medlink-cache.json", cfg.Cache.Path)
	assert.Equal(t, "MediatR", cfg.Framework.Namespace)
	assert.False(t, cfg.Cache.Disabled)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte(`
root = "src"
include = ["**/*.cs"]
exclude = ["**/*.g.cs"]
max_file_size = 1048576
workers = 4

[cache]
path = "tmp/cache.json"
sweep_interval = "5m"
validate_threshold = "90s"
recent_window = "30m"

[framework]
namespace = "MediatR"
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "src"), cfg.Root)
	assert.Equal(t, []string{"**/*.cs"}, cfg.Include)
	assert.Equal(t, []string{"**/*.g.cs"}, cfg.Exclude)
	assert.Equal(t, int64(1048576), cfg.MaxFileSize)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, filepath.Join(dir, "src", "tmp", "cache.json"), cfg.Cache.Path)
	assert.Equal(t, 5*time.Minute, cfg.Cache.SweepIntervalDuration())
	assert.Equal(t, 90*time.Second, cfg.Cache.ValidateThresholdDuration())
	assert.Equal(t, 30*time.Minute, cfg.Cache.RecentWindowDuration())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), DefaultFileName))
	require.NoError(t, err)
	assert.Equal(t, "MediatR", cfg.Framework.Namespace)
}

func TestLoadMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFileName)
	require.NoError(t, os.WriteFile(path, []byte("root = [unclosed"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestDurationDefaults(t *testing.T) {
	var c CacheConfig
	assert.Equal(t, time.Duration(0), c.SweepIntervalDuration())

	c.SweepInterval = "not-a-duration"
	assert.Equal(t, time.Duration(0), c.SweepIntervalDuration())
}

func TestLoadFromDir(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadFromDir(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.Root)
	assert.Equal(t, filepath.Join(dir, ".medlink-cache.json"), cfg.Cache.Path)
}
