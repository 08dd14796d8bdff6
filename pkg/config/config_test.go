package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.NotEmpty(t, cfg.Categories)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
retry:
  max_attempts: 5
  initial_interval: 10s
scheduler:
  interval: 1m
appointment_categories:
  - category: laser
    keywords: [ipl, laser]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Retry.InitialInterval)
	assert.Equal(t, 2.0, cfg.Retry.Multiplier)
	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, 100, cfg.Scheduler.BatchSize)
	require.Len(t, cfg.Categories, 1)
	assert.Equal(t, "laser", cfg.Categories[0].Category)
}

func TestLoad_Invalid(t *testing.T) {
	path := writeConfig(t, `
retry:
  max_attempts: 0
scheduler:
  concurrency: 0
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry.max_attempts")
	assert.Contains(t, err.Error(), "scheduler.concurrency")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "retry: [not, a, map]"))
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default().Scheduler, cfg.Scheduler)
}
