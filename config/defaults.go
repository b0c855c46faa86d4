package config

import "github.com/spf13/viper"

// SetDefaults registers default configuration values on the given Viper
// instance. Defaults mirror the upstream API's documented limits for a
// premium key; free-tier deployments should lower api.rate_limit_rpm.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("api.base_url", "https://finnhub.io/api/v1")
	v.SetDefault("api.request_timeout_seconds", 30)
	v.SetDefault("api.rate_limit_rpm", 300)
	v.SetDefault("api.rate_window_seconds", 60)
	v.SetDefault("api.max_acquire_wait_seconds", 120)
	v.SetDefault("api.max_retries", 3)
	v.SetDefault("api.retry_base_delay_ms", 1000)
	v.SetDefault("api.retry_jitter", 0.25)
	v.SetDefault("api.retry_max_delay_seconds", 30)

	v.SetDefault("jobs.dir", "data/jobs")
	v.SetDefault("jobs.max_concurrent", 5)
	v.SetDefault("jobs.timeout_seconds", 3600)
	v.SetDefault("jobs.retention_seconds", 86400)

	v.SetDefault("output.dir", "data/results")
	v.SetDefault("output.inline_token_limit", 75000)
}
