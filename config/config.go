// Package config loads server settings from flags, environment, and an
// optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultEnvPrefix = "COLLECTION_SERVER"

	DefaultHost           = "0.0.0.0"
	DefaultPort           = 3000
	DefaultDataDir        = "./data"
	DefaultStoreBackend   = "json"
	DefaultDefaultPerPage = 10
	DefaultMaxPerPage     = 100
	DefaultMaxBodyBytes   = 1 << 20
	DefaultLogLevel       = "info"
)

var DefaultConfig = Config{
	Host:           DefaultHost,
	Port:           DefaultPort,
	DataDir:        DefaultDataDir,
	StoreBackend:   DefaultStoreBackend,
	AllowedOrigins: []string{"*"},
	DefaultPerPage: DefaultDefaultPerPage,
	MaxPerPage:     DefaultMaxPerPage,
	MaxBodyBytes:   DefaultMaxBodyBytes,
	LogLevel:       DefaultLogLevel,
}

type Config struct {
	Host           string   `json:"host,omitempty"             mapstructure:"host"`
	Port           int      `json:"port,omitempty"             mapstructure:"port"`
	DataDir        string   `json:"data_dir,omitempty"         mapstructure:"data_dir"`
	StoreBackend   string   `json:"store_backend,omitempty"    mapstructure:"store_backend"`
	AllowedOrigins []string `json:"allowed_origins,omitempty"  mapstructure:"allowed_origins"`
	DefaultPerPage int      `json:"default_per_page,omitempty" mapstructure:"default_per_page"`
	MaxPerPage     int      `json:"max_per_page,omitempty"     mapstructure:"max_per_page"`
	MaxBodyBytes   int64    `json:"max_body_bytes,omitempty"   mapstructure:"max_body_bytes"`
	LogLevel       string   `json:"log_level,omitempty"        mapstructure:"log_level"`
	LogJSON        bool     `json:"log_json,omitempty"         mapstructure:"log_json"`
}

// flagKeys maps config keys to the cobra flag names that override them.
var flagKeys = map[string]string{
	"host":             "host",
	"port":             "port",
	"data_dir":         "data-dir",
	"store_backend":    "store-backend",
	"allowed_origins":  "allowed-origins",
	"default_per_page": "default-per-page",
	"max_per_page":     "max-per-page",
	"max_body_bytes":   "max-body-bytes",
	"log_level":        "log-level",
	"log_json":         "log-json",
}

// Load resolves the configuration. Precedence, highest first: flags that
// were set explicitly, COLLECTION_SERVER_* environment variables, the YAML
// file at configFile (if non-empty), defaults. flags may be nil.
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.NewWithOptions(
		viper.KeyDelimiter("."),
		viper.EnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_")),
	)

	v.SetEnvPrefix(DefaultEnvPrefix)
	v.AllowEmptyEnv(true)
	v.AutomaticEnv()

	_ = v.BindEnv("host")
	v.SetDefault("host", DefaultConfig.Host)

	_ = v.BindEnv("port")
	v.SetDefault("port", DefaultConfig.Port)

	_ = v.BindEnv("data_dir")
	v.SetDefault("data_dir", DefaultConfig.DataDir)

	_ = v.BindEnv("store_backend")
	v.SetDefault("store_backend", DefaultConfig.StoreBackend)

	_ = v.BindEnv("allowed_origins")
	v.SetDefault("allowed_origins", DefaultConfig.AllowedOrigins)

	// Pagination
	_ = v.BindEnv("default_per_page")
	v.SetDefault("default_per_page", DefaultConfig.DefaultPerPage)

	_ = v.BindEnv("max_per_page")
	v.SetDefault("max_per_page", DefaultConfig.MaxPerPage)

	_ = v.BindEnv("max_body_bytes")
	v.SetDefault("max_body_bytes", DefaultConfig.MaxBodyBytes)

	// Logging
	_ = v.BindEnv("log_level")
	v.SetDefault("log_level", DefaultConfig.LogLevel)

	_ = v.BindEnv("log_json")
	v.SetDefault("log_json", DefaultConfig.LogJSON)

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %q: %w", name, err)
				}
			}
		}
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	decodeHooks := mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	)

	config := &Config{}
	if err := v.Unmarshal(config, viper.DecodeHook(decodeHooks)); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	for i, o := range config.AllowedOrigins {
		config.AllowedOrigins[i] = strings.TrimSpace(o)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks value ranges that the server relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.DefaultPerPage < 1 {
		errs = append(errs, fmt.Errorf("default_per_page must be at least 1, got %d", c.DefaultPerPage))
	}
	if c.MaxPerPage < c.DefaultPerPage {
		errs = append(errs, fmt.Errorf("max_per_page (%d) must not be below default_per_page (%d)",
			c.MaxPerPage, c.DefaultPerPage))
	}
	if c.MaxBodyBytes < 1 {
		errs = append(errs, fmt.Errorf("max_body_bytes must be at least 1, got %d", c.MaxBodyBytes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// Addr is the listen address.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
