package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Clear any env vars that might interfere with defaults.
	os.Unsetenv("DATABASE_URL")
	os.Unsetenv("HTTP_LISTEN_ADDR")
	os.Unsetenv("METRICS_LISTEN_ADDR")
	os.Unsetenv("LOG_LEVEL")
	os.Unsetenv("ENGINE_COMMAND")
	os.Unsetenv("RELOAD_TIMEOUT")
	os.Unsetenv("RETENTION_MAX_AGE")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.HTTPListenAddr)
	assert.Equal(t, ":9100", cfg.MetricsListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, []string{"docker", "exec", "waf-nginx"}, cfg.EngineCommand)
	assert.Equal(t, 30*time.Second, cfg.ReloadTimeout)
	assert.Equal(t, 30*24*time.Hour, cfg.RetentionMaxAge)
}

func TestLoad_AllEnvVars(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/wafgate")
	t.Setenv("HTTP_LISTEN_ADDR", ":7071")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("NGINX_CONFIG_DIR", "/srv/nginx/conf.d")
	t.Setenv("ENGINE_COMMAND", "docker exec edge-nginx")
	t.Setenv("RELOAD_TIMEOUT", "10s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost:5432/wafgate", cfg.DatabaseURL)
	assert.Equal(t, ":7071", cfg.HTTPListenAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/srv/nginx/conf.d", cfg.NginxConfigDir)
	assert.Equal(t, []string{"docker", "exec", "edge-nginx"}, cfg.EngineCommand)
	assert.Equal(t, 10*time.Second, cfg.ReloadTimeout)
}

func TestLoad_DurationAsSeconds(t *testing.T) {
	t.Setenv("RELOAD_TIMEOUT", "45")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.ReloadTimeout)
}

func TestValidate_MissingFields(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "HTTP_LISTEN_ADDR")
	assert.Contains(t, err.Error(), "ENGINE_COMMAND")
}

func TestValidate_S3PartialConfig(t *testing.T) {
	cfg := &Config{
		DatabaseURL:    "postgres://localhost/wafgate",
		HTTPListenAddr: ":8090",
		EngineCommand:  []string{"true"},
		S3Bucket:       "waf-logs",
	}
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "S3_BUCKET requires")
}

func TestValidate_AllPresent(t *testing.T) {
	cfg := &Config{
		DatabaseURL:    "postgres://localhost/wafgate",
		HTTPListenAddr: ":8090",
		EngineCommand:  []string{"docker", "exec", "waf-nginx"},
	}
	assert.NoError(t, cfg.Validate())
}
