// Package config provides fetchq configuration loaded from the environment
// and an optional fetchq.toml file.
package config

import (
	"time"

	"github.com/solvik/fetchq/errors"
)

// Config represents the core fetchq configuration
type Config struct {
	API    APIConfig    `mapstructure:"api"`
	Jobs   JobsConfig   `mapstructure:"jobs"`
	Output OutputConfig `mapstructure:"output"`
}

// APIConfig configures the upstream API client and its rate/retry behavior
type APIConfig struct {
	Key     string `mapstructure:"key"`      // API key, env only (FETCHQ_API_KEY)
	BaseURL string `mapstructure:"base_url"` // Upstream API base URL

	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"` // Per-request timeout (default: 30)

	RateLimitRPM          int `mapstructure:"rate_limit_rpm"`           // Max requests per rate window (default: 300)
	RateWindowSeconds     int `mapstructure:"rate_window_seconds"`      // Sliding window length (default: 60)
	MaxAcquireWaitSeconds int `mapstructure:"max_acquire_wait_seconds"` // Upper bound any caller is willing to wait for rate capacity (default: 120)

	MaxRetries           int     `mapstructure:"max_retries"`             // Retry attempts after the first (default: 3)
	RetryBaseDelayMS     int     `mapstructure:"retry_base_delay_ms"`     // Backoff base delay in ms (default: 1000)
	RetryJitter          float64 `mapstructure:"retry_jitter"`            // Fractional jitter on backoff, 0..1 (default: 0.25)
	RetryMaxDelaySeconds int     `mapstructure:"retry_max_delay_seconds"` // Backoff cap (default: 30)
}

// JobsConfig configures the durable job store and runner
type JobsConfig struct {
	Dir              string `mapstructure:"dir"`               // Directory for job records
	MaxConcurrent    int    `mapstructure:"max_concurrent"`    // Max concurrently running jobs (default: 5)
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`   // Per-job execution deadline (default: 3600)
	RetentionSeconds int    `mapstructure:"retention_seconds"` // Terminal job retention before cleanup (default: 86400)
}

// OutputConfig configures result routing
type OutputConfig struct {
	Dir              string `mapstructure:"dir"`                // Directory for routed result files
	InlineTokenLimit int    `mapstructure:"inline_token_limit"` // Size threshold for inline responses (default: 75000)
}

// RequestTimeout returns the per-request timeout as a duration.
func (c APIConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}

// RateWindow returns the sliding-window length as a duration.
func (c APIConfig) RateWindow() time.Duration {
	return time.Duration(c.RateWindowSeconds) * time.Second
}

// RetryBaseDelay returns the backoff base delay as a duration.
func (c APIConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// RetryMaxDelay returns the backoff cap as a duration.
func (c APIConfig) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelaySeconds) * time.Second
}

// JobTimeout returns the per-job execution deadline as a duration.
func (c JobsConfig) JobTimeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Retention returns the terminal job retention period as a duration.
func (c JobsConfig) Retention() time.Duration {
	return time.Duration(c.RetentionSeconds) * time.Second
}

// Validate checks the configuration for values that would fail at call time
// rather than startup. Rate-limiter misconfiguration in particular must
// surface here: acquisition never errors, so a window nobody is willing to
// wait out would otherwise appear as a hang.
func (c *Config) Validate() error {
	if c.API.Key == "" {
		return errors.Wrap(errors.ErrInvalidConfig, "api.key is required (set FETCHQ_API_KEY)")
	}
	if c.API.BaseURL == "" {
		return errors.Wrap(errors.ErrInvalidConfig, "api.base_url is required")
	}
	if c.API.RateLimitRPM < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "api.rate_limit_rpm must be >= 1, got %d", c.API.RateLimitRPM)
	}
	if c.API.RateWindowSeconds < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "api.rate_window_seconds must be >= 1, got %d", c.API.RateWindowSeconds)
	}
	if c.API.RateWindowSeconds > c.API.MaxAcquireWaitSeconds {
		err := errors.Wrapf(errors.ErrInvalidConfig,
			"api.rate_window_seconds (%d) exceeds api.max_acquire_wait_seconds (%d)",
			c.API.RateWindowSeconds, c.API.MaxAcquireWaitSeconds)
		return errors.WithHint(err, "a saturated window can delay callers for up to one full window; raise max_acquire_wait_seconds or shrink the window")
	}
	if c.API.MaxRetries < 0 {
		return errors.Wrapf(errors.ErrInvalidConfig, "api.max_retries must be >= 0, got %d", c.API.MaxRetries)
	}
	if c.API.RetryJitter < 0 || c.API.RetryJitter > 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "api.retry_jitter must be in [0, 1], got %g", c.API.RetryJitter)
	}
	if c.API.RequestTimeoutSeconds < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "api.request_timeout_seconds must be >= 1, got %d", c.API.RequestTimeoutSeconds)
	}
	if c.Jobs.Dir == "" {
		return errors.Wrap(errors.ErrInvalidConfig, "jobs.dir is required")
	}
	if c.Jobs.MaxConcurrent < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "jobs.max_concurrent must be >= 1, got %d", c.Jobs.MaxConcurrent)
	}
	if c.Jobs.TimeoutSeconds < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "jobs.timeout_seconds must be >= 1, got %d", c.Jobs.TimeoutSeconds)
	}
	if c.Jobs.RetentionSeconds < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "jobs.retention_seconds must be >= 1, got %d", c.Jobs.RetentionSeconds)
	}
	if c.Output.Dir == "" {
		return errors.Wrap(errors.ErrInvalidConfig, "output.dir is required")
	}
	if c.Output.InlineTokenLimit < 1 {
		return errors.Wrapf(errors.ErrInvalidConfig, "output.inline_token_limit must be >= 1, got %d", c.Output.InlineTokenLimit)
	}
	return nil
}
