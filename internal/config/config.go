// Package config loads the configuration of the shadows server and CLI.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of environment variables that override
// configuration keys, for example SHADOWS_SERVER_ADDRESS.
const EnvPrefix = "SHADOWS"

// Config is the complete configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Storage StorageConfig `mapstructure:"storage"`
	CORS    CORSConfig    `mapstructure:"cors"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Address            string        `mapstructure:"address"`
	MaxConcurrentLoads int           `mapstructure:"max_concurrent_loads"`
	ReadTimeout        time.Duration `mapstructure:"read_timeout"`
	WriteTimeout       time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	LoadWait           time.Duration `mapstructure:"load_wait"`
}

// StorageConfig locates the heightmap artifacts and map images.
type StorageConfig struct {
	HeightmapsDir string `mapstructure:"heightmaps_dir"`
	MapImagesDir  string `mapstructure:"map_images_dir"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// SetDefaults sets the default values of all keys on v and binds them to
// environment variables.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.address", "127.0.0.1:8888")
	v.SetDefault("server.max_concurrent_loads", 8)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 5*time.Second)
	v.SetDefault("server.load_wait", 2*time.Second)

	v.SetDefault("storage.heightmaps_dir", "assets/heightmaps")
	v.SetDefault("storage.map_images_dir", "assets/map_images")

	v.SetDefault("cors.allowed_origins", []string{"*"})

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load returns the validated configuration held by v.
func Load(v *viper.Viper) (*Config, error) {
	SetDefaults(v)

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate returns an error describing every invalid value in c.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Address == "" {
		errs = append(errs, errors.New("server.address: must not be empty"))
	}
	if c.Server.MaxConcurrentLoads <= 0 {
		errs = append(errs, fmt.Errorf("server.max_concurrent_loads: %d: must be positive", c.Server.MaxConcurrentLoads))
	}
	for key, timeout := range map[string]time.Duration{
		"server.read_timeout":     c.Server.ReadTimeout,
		"server.write_timeout":    c.Server.WriteTimeout,
		"server.shutdown_timeout": c.Server.ShutdownTimeout,
		"server.load_wait":        c.Server.LoadWait,
	} {
		if timeout <= 0 {
			errs = append(errs, fmt.Errorf("%s: %s: must be positive", key, timeout))
		}
	}
	if c.Storage.HeightmapsDir == "" {
		errs = append(errs, errors.New("storage.heightmaps_dir: must not be empty"))
	}
	if !slices.Contains(logLevels, c.Logging.Level) {
		errs = append(errs, fmt.Errorf("logging.level: %q: must be one of %s", c.Logging.Level, strings.Join(logLevels, ", ")))
	}
	if !slices.Contains(logFormats, c.Logging.Format) {
		errs = append(errs, fmt.Errorf("logging.format: %q: must be one of %s", c.Logging.Format, strings.Join(logFormats, ", ")))
	}
	return errors.Join(errs...)
}
