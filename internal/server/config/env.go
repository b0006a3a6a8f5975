package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays values from environment variables. Durations use
// time.ParseDuration syntax ("15m", "720h"); sizes are plain byte counts.
// Invalid values are ignored and the previous value kept.
func parseEnv(config *Config) {
	setString(&config.EndpointAddr, "ENDPOINT_ADDR")
	setString(&config.BaseURL, "BASE_URL")
	setString(&config.DatabaseDSN, "DATABASE_DSN")
	setString(&config.StorageBackend, "STORAGE_BACKEND")
	setString(&config.StorageDir, "STORAGE_DIR")
	setString(&config.S3Bucket, "S3_BUCKET")
	setString(&config.S3Region, "S3_REGION")
	setString(&config.S3AccessKey, "S3_ACCESS_KEY")
	setString(&config.S3SecretKey, "S3_SECRET_KEY")
	setString(&config.S3BaseEndpoint, "S3_BASE_ENDPOINT")
	setInt64(&config.MaxUploadSize, "MAX_UPLOAD_SIZE")
	setDuration(&config.MaxExpiry, "MAX_EXPIRY")
	setInt32(&config.MaxDownloadLimit, "MAX_DOWNLOAD_LIMIT")
	setDuration(&config.CleanupInterval, "CLEANUP_INTERVAL")
	setDuration(&config.SessionTimeout, "SESSION_TIMEOUT")
	setInt32(&config.DefaultChunkSize, "DEFAULT_CHUNK_SIZE")
	setInt32(&config.MaxChunkSize, "MAX_CHUNK_SIZE")
}

func setString(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok {
		*dst = v
	}
}

func setInt64(dst *int64, name string) {
	if v, ok := os.LookupEnv(name); ok {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = parsed
		}
	}
}

func setInt32(dst *int32, name string) {
	if v, ok := os.LookupEnv(name); ok {
		if parsed, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(parsed)
		}
	}
}

func setDuration(dst *time.Duration, name string) {
	if v, ok := os.LookupEnv(name); ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			*dst = parsed
		}
	}
}
