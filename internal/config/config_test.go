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
	assert.Equal(t, "https://api.ror.org", cfg.Registry.BaseURL)
	assert.Equal(t, 50, cfg.Registry.Concurrency)
	assert.False(t, cfg.Registry.BroadFallback)
	assert.Equal(t, 30*time.Second, cfg.Registry.RequestTimeout())
	assert.Positive(t, cfg.Extract.Workers)
	assert.Equal(t, 5000, cfg.Extract.BatchSize)
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rorlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
registry:
  base_url: http://localhost:9292
  timeout: 5s
  concurrency: 8
  broad_fallback: true
extract:
  workers: 2
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9292", cfg.Registry.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Registry.RequestTimeout())
	assert.Equal(t, 8, cfg.Registry.Concurrency)
	assert.True(t, cfg.Registry.BroadFallback)
	assert.Equal(t, 2, cfg.Extract.Workers)
	// Untouched sections keep their defaults.
	assert.Equal(t, 5000, cfg.Extract.BatchSize)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad timeout":      "registry:\n  timeout: soon\n",
		"zero concurrency": "registry:\n  concurrency: 0\n",
		"empty base url":   "registry:\n  base_url: \"\"\n",
	}
	for name, content := range cases {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		_, err := Load(path)
		assert.Error(t, err, name)
	}
}

func TestLoad_MissingFileIsAnError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRequestTimeout_FallsBack(t *testing.T) {
	assert.Equal(t, 30*time.Second, RegistryConfig{}.RequestTimeout())
	assert.Equal(t, 30*time.Second, RegistryConfig{Timeout: "garbage"}.RequestTimeout())
	assert.Equal(t, time.Minute, RegistryConfig{Timeout: "1m"}.RequestTimeout())
}
