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
	cfg := &Config{}
	cfg.LoadDefaults()

	assert.Equal(t, ":3000", cfg.EndpointAddr)
	assert.Equal(t, "fs", cfg.StorageBackend)
	assert.Equal(t, "", cfg.DatabaseDSN)
	assert.Equal(t, int64(512*1024*1024), cfg.MaxUploadSize)
	assert.Equal(t, 30*24*time.Hour, cfg.MaxExpiry)
	assert.Equal(t, 15*time.Minute, cfg.CleanupInterval)
	assert.Equal(t, time.Hour, cfg.SessionTimeout)
}

func TestParseEnv(t *testing.T) {
	t.Setenv("ENDPOINT_ADDR", ":9999")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("S3_BUCKET", "shared-files")
	t.Setenv("MAX_UPLOAD_SIZE", "1048576")
	t.Setenv("CLEANUP_INTERVAL", "30s")
	t.Setenv("MAX_DOWNLOAD_LIMIT", "42")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, ":9999", cfg.EndpointAddr)
	assert.Equal(t, "s3", cfg.StorageBackend)
	assert.Equal(t, "shared-files", cfg.S3Bucket)
	assert.Equal(t, int64(1048576), cfg.MaxUploadSize)
	assert.Equal(t, 30*time.Second, cfg.CleanupInterval)
	assert.Equal(t, int32(42), cfg.MaxDownloadLimit)
}

func TestParseEnv_InvalidValuesIgnored(t *testing.T) {
	t.Setenv("MAX_UPLOAD_SIZE", "a lot")
	t.Setenv("CLEANUP_INTERVAL", "soon")

	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)

	assert.Equal(t, int64(512*1024*1024), cfg.MaxUploadSize)
	assert.Equal(t, 15*time.Minute, cfg.CleanupInterval)
}

func TestParseJson(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"endpoint_addr": ":8081",
		"storage_dir": "/var/lib/hibana",
		"session_timeout": "45m",
		"max_expiry": 3600000000000
	}`), 0o600))

	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = []string{"test", "-c", path}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)

	assert.Equal(t, ":8081", cfg.EndpointAddr)
	assert.Equal(t, "/var/lib/hibana", cfg.StorageDir)
	assert.Equal(t, 45*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, time.Hour, cfg.MaxExpiry)
	// untouched fields keep defaults
	assert.Equal(t, "fs", cfg.StorageBackend)
}

func TestParseFlags(t *testing.T) {
	origArgs := os.Args
	defer func() { os.Args = origArgs }()
	os.Args = []string{"test", "-a", ":7070", "-s", "s3", "-i", "5m"}

	cfg := &Config{}
	cfg.LoadDefaults()
	parseFlags(cfg)

	assert.Equal(t, ":7070", cfg.EndpointAddr)
	assert.Equal(t, "s3", cfg.StorageBackend)
	assert.Equal(t, 5*time.Minute, cfg.CleanupInterval)
}
