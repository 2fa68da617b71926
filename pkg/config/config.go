// Package config provides a reusable loader for paykit configuration files
// and environment variables. It is versioned so that applications can depend
// on a stable API contract.
//
// Version: v0.1.0
package config

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/paykit-io/paykit-go/pkg/utils"
)

// Version is the semantic version of this configuration package.
const Version = "v0.1.0"

// Config represents the unified configuration for a paykit node. It mirrors
// the structure of the YAML files that Load reads from cmd/config or config.
type Config struct {
	Identity struct {
		DeviceID   string `mapstructure:"device_id" json:"device_id"`
		SeedFile   string `mapstructure:"seed_file" json:"seed_file"`
		KeyEpoch   int64  `mapstructure:"key_epoch" json:"key_epoch"`
	} `mapstructure:"identity" json:"identity"`

	Directory struct {
		Endpoint    string `mapstructure:"endpoint" json:"endpoint"`
		AuthToken   string `mapstructure:"auth_token" json:"auth_token"`
		PollSeconds int    `mapstructure:"poll_seconds" json:"poll_seconds"`
	} `mapstructure:"directory" json:"directory"`

	Noise struct {
		HandshakeTimeoutMS int `mapstructure:"handshake_timeout_ms" json:"handshake_timeout_ms"`
		ListenAddr         string `mapstructure:"listen_addr" json:"listen_addr"`
	} `mapstructure:"noise" json:"noise"`

	RateLimit struct {
		HandshakesPerWindow int `mapstructure:"handshakes_per_window" json:"handshakes_per_window"`
		WindowSeconds       int `mapstructure:"window_seconds" json:"window_seconds"`
		MaxPerIP            int `mapstructure:"max_per_ip" json:"max_per_ip"`
		MaxPerSubnet        int `mapstructure:"max_per_subnet" json:"max_per_subnet"`
	} `mapstructure:"rate_limit" json:"rate_limit"`

	Rotation struct {
		DefaultUseCount   int `mapstructure:"default_use_count" json:"default_use_count"`
		DefaultAgeSeconds int `mapstructure:"default_age_seconds" json:"default_age_seconds"`
	} `mapstructure:"rotation" json:"rotation"`

	Logging struct {
		Level string `mapstructure:"level" json:"level"`
		File  string `mapstructure:"file" json:"file"`
	} `mapstructure:"logging" json:"logging"`
}

// AppConfig holds the configuration loaded via Load or LoadFromEnv.
var AppConfig Config

// Load reads configuration files and merges any environment specific
// overrides. The resulting configuration is stored in AppConfig and returned.
//
// The function uses the provided environment name to merge additional config
// files. If env is empty, only the default configuration is loaded.
func Load(env string) (*Config, error) {
	viper.SetConfigName("default")
	viper.AddConfigPath("cmd/config")
	viper.AddConfigPath("config")
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		return nil, utils.Wrap(err, "load config")
	}

	if env != "" {
		viper.SetConfigName(env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, utils.Wrap(err, fmt.Sprintf("merge %s config", env))
		}
	}

	viper.AutomaticEnv() // picks up process environment variables

	if err := viper.Unmarshal(&AppConfig); err != nil {
		return nil, utils.Wrap(err, "unmarshal config")
	}
	return &AppConfig, nil
}

// LoadFromEnv loads configuration using the PAYKIT_ENV environment variable.
func LoadFromEnv() (*Config, error) {
	return Load(utils.EnvOrDefault("PAYKIT_ENV", ""))
}
