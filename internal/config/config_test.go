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
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080", cfg.APIBase)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 700*time.Millisecond, cfg.ValidateDebounce)
	assert.Equal(t, 5*time.Second, cfg.AgentPollEvery)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.StatePath)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
api_base: https://console.example.com
request_timeout_ms: 10000
validate_debounce_ms: 300
agent_poll_ms: 2000
state_path: /tmp/console-state.db
log_level: debug
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://console.example.com", cfg.APIBase)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 300*time.Millisecond, cfg.ValidateDebounce)
	assert.Equal(t, 2*time.Second, cfg.AgentPollEvery)
	assert.Equal(t, "/tmp/console-state.db", cfg.StatePath)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_base: https://file.example.com\n"), 0o600))

	t.Setenv("YARAGENT_API_BASE", "https://env.example.com")
	t.Setenv("YARAGENT_VALIDATE_DEBOUNCE_MS", "150")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.example.com", cfg.APIBase)
	assert.Equal(t, 150*time.Millisecond, cfg.ValidateDebounce)
}

func TestMalformedFileFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("api_base: [unclosed\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestBadDurationEnvIgnored(t *testing.T) {
	t.Setenv("YARAGENT_AGENT_POLL_MS", "not-a-number")
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.AgentPollEvery)
}
