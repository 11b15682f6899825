package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "pulse", cfg.AppName)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "0.0.0.0:8000", cfg.Addr())
	assert.Equal(t, 4*time.Second, cfg.SlowThreshold)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.External.Timeout)
	assert.False(t, cfg.Tracing.Enabled)
	assert.Equal(t, "otlp", cfg.Tracing.Exporter)
	assert.Equal(t, 1.0, cfg.Tracing.SamplingRatio)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("OTEL_TRACES_ENABLED", "true")
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	t.Setenv("OTEL_SAMPLING_RATIO", "0.25")
	t.Setenv("SLOW_THRESHOLD", "2s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "production", cfg.Environment)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, "stdout", cfg.Tracing.Exporter)
	assert.Equal(t, 0.25, cfg.Tracing.SamplingRatio)
	assert.Equal(t, 2*time.Second, cfg.SlowThreshold)
}

func TestLoad_RejectsInvalidValues(t *testing.T) {
	t.Setenv("PORT", "70000")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownExporter(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "carrier-pigeon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_SamplingOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sampling.yaml")
	require.NoError(t, os.WriteFile(path, []byte("default: 0.5\nroutes:\n  /api/demo/slow: 0.1\n"), 0o644))
	t.Setenv("SAMPLING_OVERRIDES_FILE", path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 0.5, cfg.Tracing.SamplingRatio)
	assert.Equal(t, map[string]float64{"/api/demo/slow": 0.1}, cfg.Tracing.RouteRatios)
}

func TestLoad_MissingOverridesFileFails(t *testing.T) {
	t.Setenv("SAMPLING_OVERRIDES_FILE", "/nonexistent/sampling.yaml")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadOverridesFile_OmittedDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sampling.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes:\n  /api/demo/fast: 0.9\n"), 0o644))

	overrides, err := loadOverridesFile(path)
	require.NoError(t, err)

	assert.Nil(t, overrides.Default)
	assert.Equal(t, 0.9, overrides.Routes["/api/demo/fast"])
}

func TestLoadOverridesFile_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sampling.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes: [not a map"), 0o644))

	_, err := loadOverridesFile(path)
	assert.Error(t, err)
}
