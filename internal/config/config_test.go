package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dunamismax/cropper/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, int64(20<<20), cfg.API.MaxUploadBytes)
	assert.Equal(t, 30*time.Minute, cfg.API.SessionTTL)
	assert.Equal(t, 800, cfg.Normalizer.MaxWidth)
	assert.InDelta(t, 0.85, cfg.Normalizer.Quality, 1e-9)
	assert.Equal(t, "jpeg", cfg.Normalizer.Format)
	assert.InDelta(t, 0.5, cfg.Cropper.MinZoom, 1e-9)
	assert.InDelta(t, 3.0, cfg.Cropper.MaxZoom, 1e-9)
	assert.Equal(t, "4:3", cfg.Cropper.AspectRatio)
	assert.Equal(t, 400, cfg.Cropper.Width)
	assert.Equal(t, 300, cfg.Cropper.Height)
	assert.False(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
	assert.Equal(t, "json", cfg.Log.Format)

	opts := cfg.Normalizer.Options()
	assert.Equal(t, 800, opts.MaxWidth)
	assert.Equal(t, 0.5, cfg.Cropper.Limits().Min)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("CROPPER_API_ADDR", ":9090")
	t.Setenv("CROPPER_MAX_WIDTH", "1024")
	t.Setenv("CROPPER_QUALITY", "0.6")
	t.Setenv("CROPPER_FORMAT", "PNG")
	t.Setenv("CROPPER_SESSION_TTL", "90s")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("CROPPER_RATE_LIMIT_ENABLED", "true")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.API.Addr)
	assert.Equal(t, 1024, cfg.Normalizer.MaxWidth)
	assert.InDelta(t, 0.6, cfg.Normalizer.Quality, 1e-9)
	assert.Equal(t, "png", cfg.Normalizer.Format)
	assert.Equal(t, 90*time.Second, cfg.API.SessionTTL)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, "console", cfg.Log.Format)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "zero max width", env: map[string]string{"CROPPER_MAX_WIDTH": "0"}},
		{name: "quality above one", env: map[string]string{"CROPPER_QUALITY": "1.5"}},
		{name: "zero quality", env: map[string]string{"CROPPER_QUALITY": "0"}},
		{name: "unknown format", env: map[string]string{"CROPPER_FORMAT": "bmp"}},
		{name: "inverted zoom limits", env: map[string]string{"CROPPER_MIN_ZOOM": "2", "CROPPER_MAX_ZOOM": "1"}},
		{name: "bad aspect ratio", env: map[string]string{"CROPPER_ASPECT_RATIO": "wide"}},
		{name: "rate limit without redis", env: map[string]string{"CROPPER_RATE_LIMIT_ENABLED": "true"}},
		{name: "otlp without endpoint", env: map[string]string{"TRACE_EXPORTER": "otlp"}},
		{name: "bad webhook url", env: map[string]string{"WEBHOOK_URL": "not a url"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cropper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("normalizer:\n  max_width: 640\ncropper:\n  aspect_ratio: \"16:9\"\n"), 0o600))
	t.Setenv("CROPPER_CONFIG", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 640, cfg.Normalizer.MaxWidth)
	assert.Equal(t, "16:9", cfg.Cropper.AspectRatio)
}

func TestEnvironmentOverridesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cropper.yaml")
	require.NoError(t, os.WriteFile(path, []byte("normalizer:\n  max_width: 640\n"), 0o600))
	t.Setenv("CROPPER_CONFIG", path)
	t.Setenv("CROPPER_MAX_WIDTH", "320")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 320, cfg.Normalizer.MaxWidth)
}

func TestParseAspectRatio(t *testing.T) {
	tests := []struct {
		raw  string
		want float64
	}{
		{raw: "4:3", want: 4.0 / 3.0},
		{raw: "16/9", want: 16.0 / 9.0},
		{raw: " 1 : 1 ", want: 1},
		{raw: "1.5", want: 1.5},
	}
	for _, tc := range tests {
		got, err := ParseAspectRatio(tc.raw)
		require.NoError(t, err, tc.raw)
		assert.InDelta(t, tc.want, got, 1e-9, tc.raw)
	}

	for _, raw := range []string{"", "0:3", "4:", "-1", "a:b", "NaN", "Inf", "-Inf", "NaN:1", "4:Inf", "+Inf/3"} {
		_, err := ParseAspectRatio(raw)
		assert.Error(t, err, raw)
	}
}

func TestLoadRejectsWebpWithoutGovips(t *testing.T) {
	t.Setenv("CROPPER_FORMAT", "webp")

	_, err := Load()
	if pipeline.Backend() == "govips" {
		assert.NoError(t, err)
		return
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "webp output needs the govips backend")
}
