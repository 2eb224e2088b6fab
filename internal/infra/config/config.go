// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/lookahead/internal/domain/track"
)

// Removal behaviours applied when a queued track is removed.
const (
	RemovalRoundRobin = "roundrobin" // Keep round-robin selection
	RemovalSame       = "same"       // Pull the next track from the removed track's playlist
)

// Config represents the application configuration.
type Config struct {
	Server   ServerConfig            `yaml:"server"`
	Queue    QueueConfig             `yaml:"queue"`
	Backfill BackfillConfig          `yaml:"backfill"`
	Samplers []SamplerConfig         `yaml:"samplers" validate:"required,min=1,dive"`
	Filters  map[string]FilterConfig `yaml:"filters"`
	Log      LogConfig               `yaml:"log"`
}

// ServerConfig represents the music server connection.
type ServerConfig struct {
	URL        string `yaml:"url" validate:"required,url"`
	Token      string `yaml:"token" validate:"required"`
	TimeoutSec int    `yaml:"timeout_sec" default:"30" validate:"gte=1,lte=600"`
}

// QueueConfig represents the initial playback queue settings.
type QueueConfig struct {
	Size             int             `yaml:"size" default:"5" validate:"gte=1,lte=100"`
	HistorySize      int             `yaml:"history_size" default:"10" validate:"gte=0,lte=1000"`
	RemovalBehaviour string          `yaml:"removal_behaviour" default:"roundrobin" validate:"oneof=roundrobin same"`
	Quality          string          `yaml:"quality" default:"high" validate:"oneof=high low verylow"`
	Playlists        []string        `yaml:"playlists"`
	TagFilter        track.TagFilter `yaml:"tag_filter"`
	MaxSearchResults int             `yaml:"max_search_results" default:"25" validate:"gte=1,lte=1000"`
}

// BackfillConfig represents the retry policy of the backfill loop.
type BackfillConfig struct {
	UnavailableDelayMs int `yaml:"unavailable_delay_ms" default:"500" validate:"gte=10,lte=60000"`
	ErrorDelayMs       int `yaml:"error_delay_ms" default:"5000" validate:"gte=10,lte=600000"`
	EmptyQueueRetryMs  int `yaml:"empty_queue_retry_ms" default:"1000" validate:"gte=10,lte=60000"`
}

// SamplerConfig represents a single track sampler configuration.
type SamplerConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=remote local"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// FilterConfig represents a filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// LogConfig represents log file rotation settings.
type LogConfig struct {
	Level      string `yaml:"level" default:"info" validate:"oneof=trace debug info warn error"`
	MaxSizeMB  int    `yaml:"max_size_mb" default:"10" validate:"gte=1"`
	MaxBackups int    `yaml:"max_backups" default:"3" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" default:"28" validate:"gte=0"`
	Compress   bool   `yaml:"compress"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML data.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	// Set defaults using creasty/defaults
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("MUSIC_SERVER_URL"); v != "" {
		c.Server.URL = v
	}
	if v := os.Getenv("MUSIC_SERVER_TOKEN"); v != "" {
		c.Server.Token = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if _, err := track.ParseQuality(c.Queue.Quality); err != nil {
		return err
	}

	return nil
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// Timeout returns the music server request timeout.
func (s ServerConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

// QualityTier returns the configured quality tier.
func (q QueueConfig) QualityTier() track.Quality {
	quality, err := track.ParseQuality(q.Quality)
	if err != nil {
		return track.QualityHigh
	}
	return quality
}

// UnavailableDelay returns the re-check delay when no playlist is enabled.
func (b BackfillConfig) UnavailableDelay() time.Duration {
	return time.Duration(b.UnavailableDelayMs) * time.Millisecond
}

// ErrorDelay returns the retry delay after a failed fill.
func (b BackfillConfig) ErrorDelay() time.Duration {
	return time.Duration(b.ErrorDelayMs) * time.Millisecond
}

// EmptyQueueRetry returns the retry delay when a track ends with an empty queue.
func (b BackfillConfig) EmptyQueueRetry() time.Duration {
	return time.Duration(b.EmptyQueueRetryMs) * time.Millisecond
}
