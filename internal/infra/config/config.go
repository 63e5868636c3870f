// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Playback  PlaybackConfig   `yaml:"playback"`
	Resolver  ResolverConfig   `yaml:"resolver"`
	Enrich    EnrichConfig     `yaml:"enrich"`
	Platforms []PlatformConfig `yaml:"platforms" validate:"required,min=1"`
	Spotify   SpotifyConfig    `yaml:"spotify"`
}

// PlaybackConfig represents playback and prefetch timing configuration.
type PlaybackConfig struct {
	// PrefetchDelayMs is the delay between a track starting and the
	// background enrichment of the next track being kicked off, so prefetch
	// does not compete with the just-started track's own startup I/O.
	PrefetchDelayMs int `yaml:"prefetch_delay_ms" default:"5000" validate:"gte=0,lte=60000"`
	// PrefetchGraceWaitMs bounds how long the controller waits on a
	// still-running prefetch before falling back to synchronous enrichment.
	PrefetchGraceWaitMs int `yaml:"prefetch_grace_wait_ms" default:"2000" validate:"gte=0,lte=30000"`
	// MaxConsecutiveFailures is the run of unplayable tracks after which
	// playback stops and the queue is reported as degraded.
	MaxConsecutiveFailures int `yaml:"max_consecutive_failures" default:"3" validate:"gte=1,lte=10"`
}

// ResolverConfig represents playlist resolution configuration.
type ResolverConfig struct {
	// MaxStubsPerPlaylist caps how many entries are taken from a single
	// playlist or album to bound memory and resolution time.
	MaxStubsPerPlaylist int `yaml:"max_stubs_per_playlist" default:"200" validate:"gte=1,lte=1000"`
}

// EnrichConfig represents track enrichment configuration.
type EnrichConfig struct {
	PerPlatformTimeoutMs int `yaml:"per_platform_timeout_ms" default:"10000" validate:"gte=500,lte=60000"`
	// MaxPlatformAttempts is the total number of attempts on one platform
	// before falling through to the next (1 = no retry).
	MaxPlatformAttempts int `yaml:"max_platform_attempts" default:"2" validate:"gte=1,lte=5"`
	SideFetchTimeoutMs  int `yaml:"side_fetch_timeout_ms" default:"3000" validate:"gte=100,lte=30000"`
	RetryBackoffMs      int `yaml:"retry_backoff_ms" default:"250" validate:"gte=0,lte=10000"`
}

// PlatformConfig represents a single enrichment platform configuration.
// Platforms are tried in list order when the stub's platform of origin
// cannot provide a stream.
type PlatformConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// SpotifyConfig represents Spotify API configuration. Credentials are
// optional; without them the Spotify resolver is not registered.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RefreshToken string `yaml:"refresh_token"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for credentials.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_CLIENT_SECRET"); v != "" {
		c.Spotify.ClientSecret = v
	}
	if v := os.Getenv("SPOTIFY_REFRESH_TOKEN"); v != "" {
		c.Spotify.RefreshToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// HasSpotify reports whether Spotify credentials are fully configured.
func (c *Config) HasSpotify() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != "" && c.Spotify.RefreshToken != ""
}

// PrefetchDelay returns the prefetch delay as a duration.
func (c *Config) PrefetchDelay() time.Duration {
	return time.Duration(c.Playback.PrefetchDelayMs) * time.Millisecond
}

// PrefetchGraceWait returns the grace wait as a duration.
func (c *Config) PrefetchGraceWait() time.Duration {
	return time.Duration(c.Playback.PrefetchGraceWaitMs) * time.Millisecond
}

// PerPlatformTimeout returns the per-attempt timeout as a duration.
func (c *Config) PerPlatformTimeout() time.Duration {
	return time.Duration(c.Enrich.PerPlatformTimeoutMs) * time.Millisecond
}

// SideFetchTimeout returns the side-fetch timeout as a duration.
func (c *Config) SideFetchTimeout() time.Duration {
	return time.Duration(c.Enrich.SideFetchTimeoutMs) * time.Millisecond
}

// RetryBackoff returns the transient retry backoff as a duration.
func (c *Config) RetryBackoff() time.Duration {
	return time.Duration(c.Enrich.RetryBackoffMs) * time.Millisecond
}
