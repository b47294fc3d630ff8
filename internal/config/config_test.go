package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 3, cfg.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.RetryBackoff)
	assert.Equal(t, 100, cfg.JobHistoryLimit)
	assert.False(t, cfg.MockMode())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("MAX_ATTEMPTS", "5")
	t.Setenv("LLM_TIMEOUT_MS", "1500")
	t.Setenv("GOGO_MODE", "mock")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.HTTPPort)
	assert.Equal(t, 5, cfg.MaxAttempts)
	assert.Equal(t, 1500*time.Millisecond, cfg.LLMTimeout)
	assert.True(t, cfg.MockMode())
}

func TestLoadConfigFileUnderEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planner.yaml")
	require.NoError(t, os.WriteFile(path, []byte("PLACES_URL: http://places.test\nMAX_ATTEMPTS: 4\n"), 0o600))
	t.Setenv(EnvConfigFile, path)
	t.Setenv("MAX_ATTEMPTS", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://places.test", cfg.PlacesURL)
	assert.Equal(t, 2, cfg.MaxAttempts)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	t.Setenv("MAX_ATTEMPTS", "0")
	t.Setenv("HTTP_PORT", "-1")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_ATTEMPTS")
	assert.Contains(t, err.Error(), "HTTP_PORT")
}

func TestLoadMissingConfigFile(t *testing.T) {
	t.Setenv(EnvConfigFile, filepath.Join(t.TempDir(), "missing.yaml"))
	_, err := Load()
	assert.Error(t, err)
}
