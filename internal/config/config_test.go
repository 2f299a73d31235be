package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FANGUARD_LOG_LEVEL", "debug")
	t.Setenv("FANGUARD_WATCH_PATHS", "/srv,/home")
	t.Setenv("FANGUARD_POLL_TIMEOUT", "2s")
	t.Setenv("FANGUARD_PERMISSION", "false")
	t.Setenv("FANGUARD_METRICS_ADDR", ":9100")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"/srv", "/home"}, cfg.WatchPaths)
	assert.Equal(t, 2*time.Second, cfg.PollTimeout)
	assert.False(t, cfg.Permission)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
}

func TestLoadRejectsInvalid(t *testing.T) {
	t.Setenv("FANGUARD_QUEUE_SIZE", "many")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadLeavesValidationToCaller(t *testing.T) {
	t.Setenv("FANGUARD_QUEUE_SIZE", "0")
	cfg, err := Load()
	require.NoError(t, err)
	assert.ErrorContains(t, cfg.Validate(), "queue size")

	cfg.QueueSize = 10
	assert.NoError(t, cfg.Validate())
}
