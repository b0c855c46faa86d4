package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/solvik/fetchq/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the fetchq configuration using Viper. The result is cached;
// call Reset() to force a reload (tests).
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}

	globalConfig = &config
	return globalConfig, nil
}

// LoadWithViper loads configuration using a provided Viper instance.
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrapf(err, "failed to unmarshal config from %s", configPath)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	// Environment variables take precedence over the config file:
	// FETCHQ_API_KEY -> api.key, FETCHQ_JOBS_MAX_CONCURRENT -> jobs.max_concurrent
	v.SetEnvPrefix("FETCHQ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// The API key is never read from the config file
	v.BindEnv("api.key", "FETCHQ_API_KEY")

	SetDefaults(v)

	v.SetConfigName("fetchq")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("$HOME/.config/fetchq")

	// Config file is optional; defaults plus env are a complete configuration
	_ = v.ReadInConfig()

	viperInstance = v
	return v
}
