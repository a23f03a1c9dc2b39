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

	assert.Equal(t, "http://127.0.0.1:3030", cfg.Server.URL)
	assert.Equal(t, 10000, cfg.Server.HandshakeTimeoutMs)
	assert.Equal(t, 2000, cfg.Server.HealthTimeoutMs)
	assert.Equal(t, 1000, cfg.Events.ReconnectDelayMs)
	assert.True(t, cfg.Events.AutoReconnect)
	assert.Equal(t, 4, cfg.Attach.ResizePerSecond)
	assert.Equal(t, "info", cfg.Logging.Level)

	require.NoError(t, cfg.Validate())

	co := cfg.ConsoleOptions()
	assert.Equal(t, cfg.Server.URL, co.BaseURL)
	assert.Equal(t, 10*time.Second, co.HandshakeTimeout)

	eo := cfg.EventsOptions()
	assert.Equal(t, time.Second, eo.ReconnectDelay)
	assert.False(t, eo.DisableReconnect)
}

func TestLoadMissing(t *testing.T) {
	t.Setenv("CLAUDERON_STATE_DIR", t.TempDir())
	t.Setenv("CLAUDERON_CONFIG_PATH", "")

	_, err := Load()
	assert.ErrorIs(t, err, ErrConfigNotFound)

	cfg, err := LoadOrDefault()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLAUDERON_STATE_DIR", dir)
	t.Setenv("CLAUDERON_CONFIG_PATH", "")

	content := `{
  "server": {"url": "http://build-box:3030"},
  "events": {"autoReconnect": false, "reconnectDelayMs": 250},
  "logging": {"level": "debug"}
}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clauderon.json"), []byte(content), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://build-box:3030", cfg.Server.URL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	// Unset sections keep their defaults.
	assert.Equal(t, 2000, cfg.Server.HealthTimeoutMs)

	eo := cfg.EventsOptions()
	assert.True(t, eo.DisableReconnect)
	assert.Equal(t, 250*time.Millisecond, eo.ReconnectDelay)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLAUDERON_STATE_DIR", dir)
	t.Setenv("CLAUDERON_CONFIG_PATH", "")
	require.NoError(t, os.WriteFile(
		filepath.Join(dir, "clauderon.json"),
		[]byte(`{"server": {"url": "http://from-file:3030"}}`), 0644))

	t.Setenv("CLAUDERON_SERVER_URL", "http://from-env:3030")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://from-env:3030", cfg.Server.URL)
}

func TestValidateRejects(t *testing.T) {
	cfg := Default()
	cfg.Server.URL = "not a url"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Attach.ResizePerSecond = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Logging.Level = "loud"
	assert.Error(t, cfg.Validate())
}

func TestConfigPath(t *testing.T) {
	t.Setenv("CLAUDERON_STATE_DIR", "/srv/clauderon")
	t.Setenv("CLAUDERON_CONFIG_PATH", "")

	assert.Equal(t, "/srv/clauderon/clauderon.json", ConfigPath())
	assert.Equal(t, "/srv/clauderon/recent.json", RecentSessionsPath())

	t.Setenv("CLAUDERON_CONFIG_PATH", "/etc/clauderon.json")
	assert.Equal(t, "/etc/clauderon.json", ConfigPath())
}

func TestSaveRoundTrip(t *testing.T) {
	t.Setenv("CLAUDERON_STATE_DIR", t.TempDir())
	t.Setenv("CLAUDERON_CONFIG_PATH", "")

	cfg := Default()
	cfg.Server.URL = "http://saved:3030"
	require.NoError(t, Save(cfg))

	loaded, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "http://saved:3030", loaded.Server.URL)
	assert.True(t, loaded.Events.AutoReconnect)
}