// Package config loads service configuration from an optional file and
// the environment, with working defaults for a bare `sheet-service
// server` invocation.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultPort is used when no positional port argument is given.
const DefaultPort = 2000

// Explicit port arguments must fall inside this range.
const (
	MinPort = 2112
	MaxPort = 2120
)

type ListenConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

type Config struct {
	Listen ListenConfig `mapstructure:"listen"`

	// HTTPAddr enables the /ws, /healthz and /stats surface when
	// non-empty.
	HTTPAddr string `mapstructure:"http_addr"`

	SpreadsheetsDir  string `mapstructure:"spreadsheets_dir"`
	UsersFile        string `mapstructure:"users_file"`
	ClientQueueDepth int    `mapstructure:"client_queue_depth"`
	LogLevel         string `mapstructure:"log_level"`
}

// LoadConfig reads the optional config file at path, layering environment
// variables (prefix SHEET_) over it and defaults under both.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("listen.host", "")
	v.SetDefault("listen.port", DefaultPort)
	v.SetDefault("http_addr", "")
	v.SetDefault("spreadsheets_dir", "spreadsheets")
	v.SetDefault("users_file", "users")
	v.SetDefault("client_queue_depth", 256)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix("SHEET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}
