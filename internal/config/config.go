package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL       string
	HTTPListenAddr    string
	MetricsListenAddr string
	LogLevel          string
	ServiceName       string

	// Engine artifact directories and reload command.
	NginxConfigDir        string
	ModsecRulesDir        string
	ModsecRulesIncludeDir string
	WAFListenPort         string
	EngineCommand         []string
	ReloadTimeout         time.Duration

	// Log retention pruner.
	RetentionMaxAge   time.Duration
	RetentionInterval time.Duration

	// Raw payload archival; disabled when the bucket is empty.
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

func Load() (*Config, error) {
	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		HTTPListenAddr:    getEnv("HTTP_LISTEN_ADDR", ":8090"),
		MetricsListenAddr: getEnv("METRICS_LISTEN_ADDR", ":9100"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		ServiceName:       getEnv("SERVICE_NAME", "wafgate-api"),
		NginxConfigDir:        getEnv("NGINX_CONFIG_DIR", "/etc/nginx/conf.d"),
		ModsecRulesDir:        getEnv("MODSEC_RULES_DIR", "/etc/nginx/modsec"),
		ModsecRulesIncludeDir: getEnv("MODSEC_RULES_INCLUDE_DIR", "/etc/nginx/modsec"),
		WAFListenPort:         getEnv("WAF_LISTEN_PORT", "8080"),
		EngineCommand:     getEnvList("ENGINE_COMMAND", []string{"docker", "exec", "waf-nginx"}),
		ReloadTimeout:     getEnvDuration("RELOAD_TIMEOUT", 30*time.Second),
		RetentionMaxAge:   getEnvDuration("RETENTION_MAX_AGE", 30*24*time.Hour),
		RetentionInterval: getEnvDuration("RETENTION_INTERVAL", time.Hour),
		S3Endpoint:        getEnv("S3_ENDPOINT", ""),
		S3Region:          getEnv("S3_REGION", ""),
		S3Bucket:          getEnv("S3_BUCKET", ""),
		S3AccessKey:       getEnv("S3_ACCESS_KEY", ""),
		S3SecretKey:       getEnv("S3_SECRET_KEY", ""),
	}

	return cfg, nil
}

// Validate checks that the settings without a usable default are present.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.HTTPListenAddr == "" {
		missing = append(missing, "HTTP_LISTEN_ADDR")
	}
	if len(c.EngineCommand) == 0 {
		missing = append(missing, "ENGINE_COMMAND")
	}
	if c.S3Bucket != "" && (c.S3Endpoint == "" || c.S3AccessKey == "" || c.S3SecretKey == "") {
		return errors.New("S3_BUCKET requires S3_ENDPOINT, S3_ACCESS_KEY and S3_SECRET_KEY")
	}
	if len(missing) > 0 {
		return errors.New("missing required configuration: " + strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Fields(v)
		if len(parts) > 0 {
			return parts
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Plain integers are read as seconds.
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
