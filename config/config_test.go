package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dot5enko/mvstore/aggregate"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mvstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Empty(t, cfg.Warnings)
	assert.Equal(t, "data", cfg.Storage.Path)
	assert.Equal(t, filepath.Join("data", "spill"), cfg.SpillDir())
	assert.Equal(t, filepath.Join("data", "mv"), cfg.CatalogDir())
	assert.Equal(t, "@every 5m", cfg.MV.SweepSchedule)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.False(t, cfg.Policy().ExpirationEnabled())
	assert.False(t, cfg.Policy().StalenessEnabled())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: /var/lib/mvstore
  spill_path: /tmp/spill
  page_rows: 256
aggregate:
  threshold_rows: 5000
  threshold_bytes: 67108864
mv:
  freshness: PT10M
  maxAge: "86400000"
  sweep_schedule: "*/10 * * * *"
log:
  level: debug
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Empty(t, cfg.Warnings)
	assert.Equal(t, "/tmp/spill", cfg.SpillDir())
	assert.Equal(t, 256, cfg.Storage.PageRows)
	assert.Equal(t, aggregate.Threshold{Rows: 5000, Bytes: 64 << 20}, cfg.Threshold())
	assert.Equal(t, "*/10 * * * *", cfg.MV.SweepSchedule)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())

	assert.Equal(t, 10*time.Minute, cfg.Policy().Freshness)
	assert.Equal(t, 24*time.Hour, cfg.Policy().MaxAge)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, `
storage:
  path: /from/file
mv:
  maxAge: PT1H
`)

	t.Setenv("MVSTORE_STORAGE_PATH", "/from/env")
	t.Setenv("MVSTORE_MV_MAX_AGE", "PT2H")
	t.Setenv("MVSTORE_THRESHOLD_BYTES", "1024")
	t.Setenv("MVSTORE_LOG_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/from/env", cfg.Storage.Path)
	assert.Equal(t, 2*time.Hour, cfg.Policy().MaxAge)
	assert.Equal(t, int64(1024), cfg.Threshold().Bytes)
	assert.Equal(t, slog.LevelWarn, cfg.SlogLevel())
}

func TestBadValuesBecomeWarnings(t *testing.T) {
	path := writeConfig(t, `
storage:
  page_rows: -3
aggregate:
  threshold_rows: -1
mv:
  freshness: tomorrow
  maxAge: P1Y
log:
  level: loud
`)
	t.Setenv("MVSTORE_CACHE_PAGES", "many")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Len(t, cfg.Warnings, 6)
	assert.Equal(t, 1024, cfg.Storage.PageRows)
	assert.Zero(t, cfg.Threshold().Rows)
	assert.False(t, cfg.Policy().StalenessEnabled(), "a bad freshness disables the check")
	assert.False(t, cfg.Policy().ExpirationEnabled(), "a bad max age disables the check")
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadErrors(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	require.Len(t, cfg.Warnings, 1)
	assert.Contains(t, cfg.Warnings[0], "not found")

	_, err = Load(writeConfig(t, "storage: [not, a, map"))
	assert.ErrorContains(t, err, "parse config")
}

func TestMarshalRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.MV.MaxAge = "PT6H"

	data, err := cfg.Marshal()
	require.NoError(t, err)
	assert.Contains(t, string(data), "maxAge: PT6H")

	path := writeConfig(t, string(data))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, loaded.Policy().MaxAge)
}
