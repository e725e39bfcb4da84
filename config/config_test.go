package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stevemurr/collection-server/config"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, config.DefaultConfig, *cfg)
	assert.Equal(t, "0.0.0.0:3000", cfg.Addr())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("COLLECTION_SERVER_PORT", "8081")
	t.Setenv("COLLECTION_SERVER_DATA_DIR", "/var/lib/collections")
	t.Setenv("COLLECTION_SERVER_STORE_BACKEND", "sqlite")
	t.Setenv("COLLECTION_SERVER_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("COLLECTION_SERVER_LOG_JSON", "true")
	t.Setenv("COLLECTION_SERVER_MAX_BODY_BYTES", "4096")

	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Port)
	assert.Equal(t, "/var/lib/collections", cfg.DataDir)
	assert.Equal(t, "sqlite", cfg.StoreBackend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, int64(4096), cfg.MaxBodyBytes)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"port: 9000\nmax_per_page: 50\nlog_level: debug\n"), 0o644))

	cfg, err := config.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 50, cfg.MaxPerPage)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, config.DefaultDataDir, cfg.DataDir)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	assert.Error(t, err)
}

func TestFlagsOverrideEnv(t *testing.T) {
	t.Setenv("COLLECTION_SERVER_PORT", "8081")
	t.Setenv("COLLECTION_SERVER_HOST", "127.0.0.1")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("port", config.DefaultPort, "")
	flags.String("host", config.DefaultHost, "")
	require.NoError(t, flags.Parse([]string{"--port", "7000"}))

	cfg, err := config.Load("", flags)
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host, "unset flag must not shadow env")
}

func TestValidate(t *testing.T) {
	cfg := config.DefaultConfig
	require.NoError(t, cfg.Validate())

	bad := config.DefaultConfig
	bad.Port = 70000
	bad.DefaultPerPage = 0
	err := bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "port 70000")
	assert.Contains(t, err.Error(), "default_per_page")

	bad = config.DefaultConfig
	bad.MaxPerPage = 5
	assert.Error(t, bad.Validate())

	bad = config.DefaultConfig
	bad.MaxBodyBytes = 0
	assert.ErrorContains(t, bad.Validate(), "max_body_bytes")
}
