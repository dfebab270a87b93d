package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Server config
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9229, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:9229", cfg.Server.Addr())
	assert.Equal(t, int64(1<<20), cfg.Server.BodyLimit)
	assert.NotEmpty(t, cfg.Server.DiscoveryDir)

	// Bridge timeouts
	assert.Equal(t, 30*time.Second, cfg.Bridge.EvalTimeout)
	assert.Equal(t, 5*time.Second, cfg.Bridge.ActionTimeout)
	assert.Equal(t, "main", cfg.Bridge.DefaultWindow)

	// Relay config
	assert.Equal(t, 256, cfg.Relay.Buffer)

	// Host config
	assert.Equal(t, ModeHeadless, cfg.Host.Mode)
	assert.Equal(t, "**/*.html", cfg.Host.Headless.Pages)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit and mirror are off
	assert.False(t, cfg.RateLimit.Enabled)
	assert.False(t, cfg.NATS.Enabled())

	require.NoError(t, cfg.Validate())
}

func TestLoadOrDefault(t *testing.T) {
	// Should return default when no env vars set
	cfg := LoadOrDefault()

	assert.NotNil(t, cfg)
	assert.Equal(t, 9229, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, []string{"console", "events", "logs"}, cfg.NATS.Streams)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"BRIDGE_SERVER_ADDR":                  "0.0.0.0",
		"BRIDGE_SERVER_PORT":                  "9300",
		"BRIDGE_SERVER_APP_ID":                "notes",
		"BRIDGE_SERVER_DISCOVERY_DIR":         "/tmp/bridge-apps",
		"BRIDGE_CALL_EVAL_TIMEOUT":            "45s",
		"BRIDGE_RELAY_BUFFER":                 "64",
		"BRIDGE_HOST_MODE":                    "remote",
		"BRIDGE_HOST_HEADLESS_SCRIPT_TIMEOUT": "2s",
		"BRIDGE_AUTH_TOKEN":                   "fixed-token",
		"BRIDGE_LOG_LEVEL":                    "debug",
		"BRIDGE_LOG_DEV":                      "true",
		"BRIDGE_RATE_LIMIT_ENABLED":           "true",
		"BRIDGE_RATE_LIMIT_RPS":               "5",
		"BRIDGE_NATS_URL":                     "nats://127.0.0.1:4222",
		"BRIDGE_NATS_STREAMS":                 "console",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9300", cfg.Server.Addr())
	assert.Equal(t, "notes", cfg.Server.AppID)
	assert.Equal(t, "/tmp/bridge-apps", cfg.Server.DiscoveryDir)
	assert.Equal(t, 45*time.Second, cfg.Bridge.EvalTimeout)
	assert.Equal(t, 5*time.Second, cfg.Bridge.ActionTimeout)
	assert.Equal(t, 64, cfg.Relay.Buffer)
	assert.Equal(t, ModeRemote, cfg.Host.Mode)
	assert.Equal(t, 2*time.Second, cfg.Host.Headless.ScriptTimeout)
	assert.Equal(t, "fixed-token", cfg.Auth.Token)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 5, cfg.RateLimit.RequestsPerSecond)
	assert.True(t, cfg.NATS.Enabled())
	assert.Equal(t, []string{"console"}, cfg.NATS.Streams)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "unknown mode", key: "BRIDGE_HOST_MODE", val: "electron"},
		{name: "port out of range", key: "BRIDGE_SERVER_PORT", val: "70000"},
		{name: "bad duration", key: "BRIDGE_CALL_MAX_TIMEOUT", val: "soon"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.val)
			_, err := Load()
			assert.Error(t, err)

			// LoadOrDefault falls back instead of failing
			assert.Equal(t, ModeHeadless, LoadOrDefault().Host.Mode)
		})
	}
}
