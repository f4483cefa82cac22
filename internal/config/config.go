// Package config provides configuration management for dashdemux using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultHTTPTimeout           = 30 * time.Second
	defaultRetryAttempts         = 3
	defaultRetryDelay            = 1 * time.Second
	defaultRetryMaxDelay         = 30 * time.Second
	defaultCircuitBreakerThresh  = 5
	defaultCircuitBreakerTimeout = 30 * time.Second
	defaultMaxManifestSize       = 50 * 1024       // 50 KiB, spec.md §4.1 manifest size limit
	defaultMaxInitSectionSize    = 1 * 1024 * 1024 // 1 MiB, spec.md §4.4 init section cap
	defaultManifestRefreshWindow = 2 * time.Second
	defaultSegmentWaitTimeout    = 15 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Dash       DashConfig       `mapstructure:"dash"`
	HTTPClient HTTPClientConfig `mapstructure:"http_client"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// DashConfig holds MPEG-DASH manifest and segment handling configuration.
// Field names and defaults follow spec.md §6 "Configuration options".
// These values are loaded and validated only: the dashdemux commands do not
// pass them to the dash or fetch packages, which use their own fixed
// settings (both timeline toggles on, 50 KiB manifest and 1 MiB init
// section caps, no file-scheme client).
type DashConfig struct {
	// AllowedExtensions is the whitelist checked for file-scheme URLs.
	// A single entry of "ALL" disables the check entirely.
	AllowedExtensions []string `mapstructure:"allowed_extensions"`

	// UseTimelineSegmentOffsetCorrection biases timeline segment numbers
	// by first_seq_no. Defaults to true.
	UseTimelineSegmentOffsetCorrection bool `mapstructure:"use_timeline_segment_offset_correction"`

	// FetchCompletedSegmentsOnly biases the live edge back one segment
	// when the time-shift buffer/delay parameters are zero. Defaults to true.
	FetchCompletedSegmentsOnly bool `mapstructure:"fetch_completed_segments_only"`

	// MaxManifestSize is the buffered manifest size limit.
	MaxManifestSize ByteSize `mapstructure:"max_manifest_size"`

	// MaxInitSectionSize is the cap on a cached initialization section.
	MaxInitSectionSize ByteSize `mapstructure:"max_init_section_size"`

	// ManifestRefreshWindow is a floor on how often a live Representation
	// may trigger a manifest refresh, independent of MinimumUpdatePeriod.
	ManifestRefreshWindow time.Duration `mapstructure:"manifest_refresh_window"`

	// SegmentWaitTimeout bounds how long callers wait for segments to
	// become available before giving up.
	SegmentWaitTimeout time.Duration `mapstructure:"segment_wait_timeout"`
}

// HTTPClientConfig configures the resilient HTTP transport used to fetch
// manifests and segments.
type HTTPClientConfig struct {
	Timeout             time.Duration `mapstructure:"timeout"`
	RetryAttempts       int           `mapstructure:"retry_attempts"`
	RetryDelay          time.Duration `mapstructure:"retry_delay"`
	RetryMaxDelay       time.Duration `mapstructure:"retry_max_delay"`
	CircuitThreshold    int           `mapstructure:"circuit_threshold"`
	CircuitTimeout      time.Duration `mapstructure:"circuit_timeout"`
	UserAgent           string        `mapstructure:"user_agent"`
	EnableDecompression bool          `mapstructure:"enable_decompression"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with DASHDEMUX_ and use underscores
// for nesting. Example: DASHDEMUX_DASH_MAX_MANIFEST_SIZE=100KB.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/dashdemux")
		v.AddConfigPath("$HOME/.dashdemux")
	}

	v.SetEnvPrefix("DASHDEMUX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Dash defaults
	v.SetDefault("dash.allowed_extensions", []string{"aac", "m4a", "m4s", "m4v", "mov", "mp4", "webm", "ts"})
	v.SetDefault("dash.use_timeline_segment_offset_correction", true)
	v.SetDefault("dash.fetch_completed_segments_only", true)
	v.SetDefault("dash.max_manifest_size", defaultMaxManifestSize)
	v.SetDefault("dash.max_init_section_size", defaultMaxInitSectionSize)
	v.SetDefault("dash.manifest_refresh_window", defaultManifestRefreshWindow)
	v.SetDefault("dash.segment_wait_timeout", defaultSegmentWaitTimeout)

	// HTTP client defaults
	v.SetDefault("http_client.timeout", defaultHTTPTimeout)
	v.SetDefault("http_client.retry_attempts", defaultRetryAttempts)
	v.SetDefault("http_client.retry_delay", defaultRetryDelay)
	v.SetDefault("http_client.retry_max_delay", defaultRetryMaxDelay)
	v.SetDefault("http_client.circuit_threshold", defaultCircuitBreakerThresh)
	v.SetDefault("http_client.circuit_timeout", defaultCircuitBreakerTimeout)
	v.SetDefault("http_client.user_agent", "dashdemux/1.0")
	v.SetDefault("http_client.enable_decompression", true)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true, "trace": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: trace, debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	if len(c.Dash.AllowedExtensions) == 0 {
		return fmt.Errorf("dash.allowed_extensions must not be empty (use [\"ALL\"] to disable the check)")
	}

	if c.HTTPClient.RetryAttempts < 0 {
		return fmt.Errorf("http_client.retry_attempts must be non-negative")
	}

	return nil
}

// AllowsAllExtensions reports whether the file-scheme extension allowlist
// has been disabled via the literal "ALL" sentinel.
func (c *DashConfig) AllowsAllExtensions() bool {
	return len(c.AllowedExtensions) == 1 && strings.EqualFold(c.AllowedExtensions[0], "ALL")
}
