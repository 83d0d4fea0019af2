// backendYT/config/config_test.go
package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Rib4ko/backendYT/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	t.Run("loads default values correctly", func(t *testing.T) {
		t.Chdir(t.TempDir())

		cfg, err := config.Load("")
		require.NoError(t, err)

		assert.Equal(t, "8080", cfg.Port)
		assert.Equal(t, 2, cfg.MaxConcurrency)
		assert.Equal(t, 100, cfg.QueueSize)
		assert.Equal(t, "yt-dlp", cfg.YtDlpBin)
		assert.Equal(t, "ffmpeg", cfg.FFBin)
		assert.Equal(t, 10*time.Minute, cfg.FFTimeout)
		assert.Equal(t, 25*time.Second, cfg.DownloadGrace)
		assert.Equal(t, time.Hour, cfg.OutputLocalLifetime)
		assert.Equal(t, int64(2*1024*1024*1024), cfg.MaxInputSize)
		assert.Equal(t, int64(500*1024*1024), cfg.ThrottleFreeDisk)
		assert.Equal(t, []string{"*"}, cfg.Origins())
	})

	t.Run("overrides defaults with environment variables", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("BACKENDYT_PORT", "9999")
		t.Setenv("BACKENDYT_MAX_CONCURRENCY", "10")
		t.Setenv("BACKENDYT_DOWNLOAD_GRACE", "3s")
		t.Setenv("BACKENDYT_MAX_INPUT_SIZE", "50MB")
		t.Setenv("BACKENDYT_CORS_ORIGINS", "https://a.example, https://b.example")

		cfg, err := config.Load("")
		require.NoError(t, err)

		assert.Equal(t, "9999", cfg.Port)
		assert.Equal(t, 10, cfg.MaxConcurrency)
		assert.Equal(t, 3*time.Second, cfg.DownloadGrace)
		assert.Equal(t, int64(50*1024*1024), cfg.MaxInputSize)
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Origins())
	})

	t.Run("reads an explicit yaml file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "custom.yaml")
		body := "PORT: \"7000\"\nFF_TIMEOUT: 90s\nSTORAGE_DIR: /var/clips\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0644))

		cfg, err := config.Load(path)
		require.NoError(t, err)

		assert.Equal(t, "7000", cfg.Port)
		assert.Equal(t, 90*time.Second, cfg.FFTimeout)
		assert.Equal(t, "/var/clips", cfg.StorageDir)
	})

	t.Run("missing explicit file is an error", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}
