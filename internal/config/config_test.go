package config_test

import (
	"testing"
	"time"

	"github.com/alecthomas/assert/v2"
	"github.com/spf13/viper"

	"github.com/twpayne/go-shadows/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	actual, err := config.Load(viper.New())
	assert.NoError(t, err)
	assert.Equal(t, &config.Config{
		Server: config.ServerConfig{
			Address:            "127.0.0.1:8888",
			MaxConcurrentLoads: 8,
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       30 * time.Second,
			ShutdownTimeout:    5 * time.Second,
			LoadWait:           2 * time.Second,
		},
		Storage: config.StorageConfig{
			HeightmapsDir: "assets/heightmaps",
			MapImagesDir:  "assets/map_images",
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
		},
		Logging: config.LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}, actual)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("SHADOWS_SERVER_ADDRESS", "0.0.0.0:9000")
	t.Setenv("SHADOWS_SERVER_READ_TIMEOUT", "1m")

	v := viper.New()
	v.Set("logging.format", "json")
	v.Set("cors.allowed_origins", []string{"https://example.com"})

	actual, err := config.Load(v)
	assert.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9000", actual.Server.Address)
	assert.Equal(t, time.Minute, actual.Server.ReadTimeout)
	assert.Equal(t, "json", actual.Logging.Format)
	assert.Equal(t, []string{"https://example.com"}, actual.CORS.AllowedOrigins)
}

func TestLoad_Invalid(t *testing.T) {
	for _, tc := range []struct {
		name  string
		key   string
		value any
	}{
		{name: "empty_address", key: "server.address", value: ""},
		{name: "zero_loads", key: "server.max_concurrent_loads", value: 0},
		{name: "negative_timeout", key: "server.write_timeout", value: -time.Second},
		{name: "empty_heightmaps_dir", key: "storage.heightmaps_dir", value: ""},
		{name: "unknown_level", key: "logging.level", value: "verbose"},
		{name: "unknown_format", key: "logging.format", value: "xml"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			v := viper.New()
			v.Set(tc.key, tc.value)
			_, err := config.Load(v)
			assert.Error(t, err)
			assert.Contains(t, err.Error(), tc.key)
		})
	}
}
