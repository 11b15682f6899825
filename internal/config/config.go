// Package config loads service configuration from the environment and keeps
// the sampling overrides file hot-reloadable in development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the full service configuration.
type Config struct {
	AppName     string
	Version     string
	Environment string

	Host string `validate:"required"`
	Port int    `validate:"gte=1,lte=65535"`

	SlowThreshold  time.Duration `validate:"gt=0"`
	RequestTimeout time.Duration `validate:"gt=0"`

	External ExternalConfig
	Tracing  TracingConfig
}

// ExternalConfig configures the demo outbound dependency.
type ExternalConfig struct {
	URL     string        `validate:"omitempty,url"`
	Timeout time.Duration `validate:"gt=0"`
}

// TracingConfig selects the exporter and sampling behavior.
type TracingConfig struct {
	Enabled       bool
	ServiceName   string `validate:"required"`
	Exporter      string `validate:"oneof=otlp stdout log none"`
	Endpoint      string
	SamplingRatio float64 `validate:"gte=0,lte=1"`

	// RouteRatios overrides the global ratio per route pattern, matched
	// exactly first and then by longest prefix.
	RouteRatios map[string]float64

	// OverridesFile, when set, is watched for sampling changes.
	OverridesFile string
}

// Load reads configuration from environment variables, applying development
// defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		AppName:        getEnv("APP_NAME", "pulse"),
		Version:        getEnv("SERVICE_VERSION", "0.1.0"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		Host:           getEnv("HOST", "0.0.0.0"),
		Port:           getEnvInt("PORT", 8000),
		SlowThreshold:  getEnvDuration("SLOW_THRESHOLD", 4*time.Second),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		External: ExternalConfig{
			URL:     getEnv("EXTERNAL_URL", "https://httpbin.org/get"),
			Timeout: getEnvDuration("EXTERNAL_TIMEOUT", 10*time.Second),
		},
		Tracing: TracingConfig{
			Enabled:       getEnvBool("OTEL_TRACES_ENABLED", false),
			ServiceName:   getEnv("SERVICE_NAME", "pulse-api"),
			Exporter:      getEnv("OTEL_TRACES_EXPORTER", "otlp"),
			Endpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			SamplingRatio: getEnvFloat("OTEL_SAMPLING_RATIO", 1.0),
			OverridesFile: getEnv("SAMPLING_OVERRIDES_FILE", ""),
		},
	}

	if cfg.Tracing.OverridesFile != "" {
		overrides, err := loadOverridesFile(cfg.Tracing.OverridesFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load sampling overrides: %w", err)
		}
		if overrides.Default != nil {
			cfg.Tracing.SamplingRatio = *overrides.Default
		}
		cfg.Tracing.RouteRatios = overrides.Routes
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Addr returns the host:port listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	switch value {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}
