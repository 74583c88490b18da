// File: internal/config/config_test.go
package config

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "scalpel-inspector", cfg.Logger().ServiceName)
	assert.Equal(t, "green", cfg.Logger().Colors.Info)
	assert.True(t, cfg.Browser().Headless)
	assert.Empty(t, cfg.Browser().RemoteURL)
	assert.Equal(t, 30*time.Second, cfg.Browser().CommandTimeout)
	assert.Equal(t, 1280, cfg.Browser().Viewport.Width)
	assert.Equal(t, 500*time.Millisecond, cfg.Inspector().SettleInterval)
	require.NoError(t, cfg.Validate())
}

func TestConfigSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.SetBrowserHeadless(false)
	cfg.SetBrowserRemoteURL("ws://127.0.0.1:9222/devtools/browser/abc")

	assert.False(t, cfg.Browser().Headless)
	assert.Equal(t, "ws://127.0.0.1:9222/devtools/browser/abc", cfg.Browser().RemoteURL)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Negative Command Timeout", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BrowserCfg.CommandTimeout = -time.Second
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.command_timeout must not be negative")
	})

	t.Run("Negative Settle Interval", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.InspectorCfg.SettleInterval = -time.Millisecond
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "inspector.settle_interval must not be negative")
	})

	t.Run("Rate Limit", func(t *testing.T) {
		cfg := NewDefaultConfig()
		assert.Zero(t, cfg.Browser().CommandsPerSecond, "unlimited by default")
		assert.Equal(t, 1, cfg.Browser().CommandBurst)

		cfg.BrowserCfg.CommandsPerSecond = -1
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.commands_per_second")

		cfg.BrowserCfg.CommandsPerSecond = 5
		cfg.BrowserCfg.CommandBurst = 0
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.command_burst")
	})

	t.Run("Viewport", func(t *testing.T) {
		assert.NoError(t, (&ViewportConfig{}).Validate(), "zero viewport keeps the browser default")
		assert.NoError(t, (&ViewportConfig{Width: 800, Height: 600}).Validate())

		cfg := NewDefaultConfig()
		cfg.BrowserCfg.Viewport = ViewportConfig{Width: 800, Height: 0}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.viewport configuration invalid")
	})
}

// -- Factory Function Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("Successful Load from YAML", func(t *testing.T) {
		yamlBytes := []byte(`
browser:
  headless: false
  remote_url: "ws://localhost:9222/devtools/browser/xyz"
  args: ["--lang=en-US", "mute-audio"]
inspector:
  settle_interval: 250ms
`)
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlBytes)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)

		assert.False(t, cfg.Browser().Headless)
		assert.Equal(t, "ws://localhost:9222/devtools/browser/xyz", cfg.Browser().RemoteURL)
		assert.Equal(t, []string{"--lang=en-US", "mute-audio"}, cfg.Browser().Args)
		assert.Equal(t, 250*time.Millisecond, cfg.Inspector().SettleInterval)
		// Defaults survive alongside file values.
		assert.Equal(t, "info", cfg.Logger().Level)
	})

	t.Run("Validation Failure", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("inspector.settle_interval", "-1s")

		cfg, err := NewConfigFromViper(v)
		assert.Error(t, err)
		assert.Nil(t, cfg)
		assert.Contains(t, err.Error(), "invalid configuration")
	})

	t.Run("Environment Variable Override", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetEnvPrefix("INSPECTOR")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		t.Setenv("INSPECTOR_LOGGER_LEVEL", "debug")
		t.Setenv("INSPECTOR_BROWSER_COMMAND_TIMEOUT", "5s")

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "debug", cfg.Logger().Level)
		assert.Equal(t, 5*time.Second, cfg.Browser().CommandTimeout)
	})
}
