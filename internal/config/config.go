// File: internal/config/config.go
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Inspector() InspectorConfig

	// Browser Setters
	SetBrowserHeadless(bool)
	SetBrowserRemoteURL(string)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	BrowserCfg   BrowserConfig   `mapstructure:"browser" yaml:"browser"`
	InspectorCfg InspectorConfig `mapstructure:"inspector" yaml:"inspector"`
}

var _ Interface = (*Config)(nil)

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig       { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig     { return c.BrowserCfg }
func (c *Config) Inspector() InspectorConfig { return c.InspectorCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetBrowserHeadless(b bool)     { c.BrowserCfg.Headless = b }
func (c *Config) SetBrowserRemoteURL(u string) { c.BrowserCfg.RemoteURL = u }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the browser backing the inspected session.
type BrowserConfig struct {
	Headless   bool     `mapstructure:"headless" yaml:"headless"`
	DisableGPU bool     `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	Args       []string `mapstructure:"args" yaml:"args"`
	// RemoteURL attaches to an already running browser (DevTools websocket URL)
	// instead of launching one.
	RemoteURL string `mapstructure:"remote_url" yaml:"remote_url"`
	// CommandTimeout bounds each driver call. Zero means no timeout.
	CommandTimeout time.Duration  `mapstructure:"command_timeout" yaml:"command_timeout"`
	Viewport       ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	// CommandsPerSecond caps the rate of CDP commands. Zero disables the limit.
	CommandsPerSecond float64 `mapstructure:"commands_per_second" yaml:"commands_per_second"`
	CommandBurst      int     `mapstructure:"command_burst" yaml:"command_burst"`
}

// ViewportConfig is the initial window size of the session.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// InspectorConfig tunes the method handler.
type InspectorConfig struct {
	// SettleInterval is the pause between a command and the snapshot that follows it.
	SettleInterval time.Duration `mapstructure:"settle_interval" yaml:"settle_interval"`
	// StartURL, if set, is opened when a session starts.
	StartURL string `mapstructure:"start_url" yaml:"start_url"`
	// ListenAddr switches the session from stdin/stdout to a websocket server
	// (plus /metrics) on this address.
	ListenAddr     string   `mapstructure:"listen_addr" yaml:"listen_addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scalpel-inspector")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.remote_url", "")
	v.SetDefault("browser.command_timeout", "30s")
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 800)
	v.SetDefault("browser.commands_per_second", 0)
	v.SetDefault("browser.command_burst", 1)

	// -- Inspector --
	v.SetDefault("inspector.settle_interval", "500ms")
	v.SetDefault("inspector.start_url", "")
	v.SetDefault("inspector.listen_addr", "")
	v.SetDefault("inspector.allowed_origins", []string{})
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.BrowserCfg.CommandTimeout < 0 {
		return fmt.Errorf("browser.command_timeout must not be negative")
	}
	if c.BrowserCfg.CommandsPerSecond < 0 {
		return fmt.Errorf("browser.commands_per_second must not be negative")
	}
	if c.BrowserCfg.CommandsPerSecond > 0 && c.BrowserCfg.CommandBurst < 1 {
		return fmt.Errorf("browser.command_burst must be at least 1 when a rate limit is set")
	}
	if c.InspectorCfg.SettleInterval < 0 {
		return fmt.Errorf("inspector.settle_interval must not be negative")
	}
	if err := c.BrowserCfg.Viewport.Validate(); err != nil {
		return fmt.Errorf("browser.viewport configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the viewport dimensions. A zero viewport keeps the browser default.
func (v *ViewportConfig) Validate() error {
	if v.Width == 0 && v.Height == 0 {
		return nil
	}
	if v.Width <= 0 || v.Height <= 0 {
		return fmt.Errorf("width and height must both be positive")
	}
	return nil
}
