package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv(FileEnv, "")
	t.Setenv("GRAYBLUR_API_ADDR", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, 15*time.Minute, cfg.API.PresignTTL)
	assert.GreaterOrEqual(t, cfg.Worker.MaxActiveJobs, 1)
	assert.Equal(t, 1<<20, cfg.RateLimit.PixelsPerToken)
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "grayblur.toml")
	contents := `
[api]
addr = ":9000"
presign_ttl = "5m"

[worker]
raster_workers = 4

[rate_limit]
enabled = true
capacity = 10
pixels_per_token = 4096
`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	t.Setenv(FileEnv, path)
	t.Setenv("RATE_LIMIT_CAPACITY", "25")
	t.Setenv("WEBHOOK_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.API.Addr)
	assert.Equal(t, 5*time.Minute, cfg.API.PresignTTL)
	assert.Equal(t, 4, cfg.Worker.RasterWorkers)
	assert.True(t, cfg.RateLimit.Enabled)
	assert.Equal(t, 25, cfg.RateLimit.Capacity)
	assert.Equal(t, 3*time.Second, cfg.Webhook.Timeout)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 4096, cfg.RateLimit.PixelsPerToken)
}

func TestLoadRejectsBrokenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.toml")
	require.NoError(t, os.WriteFile(path, []byte("[api\naddr = "), 0o644))
	t.Setenv(FileEnv, path)

	_, err := Load()
	assert.Error(t, err)
}

func TestEnvFallbacks(t *testing.T) {
	t.Setenv("GRAYBLUR_TEST_INT", "nope")
	t.Setenv("GRAYBLUR_TEST_BOOL", "maybe")
	t.Setenv("GRAYBLUR_TEST_DURATION", "soon")

	assert.Equal(t, 7, envInt("GRAYBLUR_TEST_INT", 7))
	assert.True(t, envBool("GRAYBLUR_TEST_BOOL", true))
	assert.Equal(t, time.Second, envDuration("GRAYBLUR_TEST_DURATION", time.Second))
}
