package manager

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkmire/steamtrade/tradeoffer"
)

const sampleTOML = `
api_key = "abc123"
interval_ms = 30000
cancel_time_ms = 1800000
get_descriptions = true
language = "english"
enable_quota_trim = true
item_cache_capacity = 500
item_cache_ttl_seconds = 3600
identity_secret = "deadbeef"

[log]
level = "DEBUG"
format = "json"
add_source = true
`

func TestLoadConfigDecodesAllFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleTOML), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, tradeoffer.APIKey("abc123"), cfg.APIKey)
	assert.Equal(t, int64(30000), cfg.IntervalMs)
	assert.Equal(t, int64(1800000), cfg.CancelTimeMs)
	assert.True(t, cfg.GetDescriptions)
	assert.Equal(t, "english", cfg.Language)
	assert.True(t, cfg.EnableQuotaTrim)
	assert.Equal(t, 500, cfg.ItemCacheCapacity)
	assert.Equal(t, int64(3600), cfg.ItemCacheTTLSeconds)
	assert.Equal(t, "deadbeef", cfg.IdentitySecret)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.True(t, cfg.Log.AddSource)
}

func TestLoadConfigMissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestLoadConfigMalformedTOMLErrors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o644))

	_, err := LoadConfig(path)
	assert.Error(t, err)
}
