// Package config handles configuration for the server component,
// including defaults, environment variables, JSON overlay, and
// command-line flags.
package config

import "time"

// Config holds runtime settings for the hibana server.
//
// Fields:
//   - EndpointAddr: bind address for the public HTTP endpoint.
//   - BaseURL: external URL prefix used when building share links.
//   - DatabaseDSN: PostgreSQL DSN (pgx); empty selects the in-memory
//     metadata store (single-node dev only).
//   - StorageBackend: "fs" or "s3".
//   - StorageDir: blob + chunk root for the fs backend.
//   - S3*: object storage settings for the s3 backend.
//   - MaxUploadSize: hard cap on plaintext size, bytes.
//   - MaxExpiry: longest validity window a client may request.
//   - MaxDownloadLimit: largest download budget a client may request.
//   - CleanupInterval: period of the reaper loop.
//   - SessionTimeout: how long a chunked upload may stay incomplete.
//   - DefaultChunkSize / MaxChunkSize: chunk sizing bounds.
type Config struct {
	EndpointAddr     string
	BaseURL          string
	DatabaseDSN      string
	StorageBackend   string
	StorageDir       string
	S3Bucket         string
	S3Region         string
	S3AccessKey      string
	S3SecretKey      string
	S3BaseEndpoint   string
	MaxUploadSize    int64
	MaxExpiry        time.Duration
	MaxDownloadLimit int32
	CleanupInterval  time.Duration
	SessionTimeout   time.Duration
	DefaultChunkSize int32
	MaxChunkSize     int32
}

// LoadDefaults populates Config with sensible development defaults.
// NOTE: These values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.EndpointAddr = ":3000"
	c.BaseURL = "http://localhost:3000"
	c.DatabaseDSN = ""
	c.StorageBackend = "fs"
	c.StorageDir = "./storage"
	c.S3Bucket = "hibana"
	c.S3Region = "us-east-1"
	c.S3AccessKey = "admin"
	c.S3SecretKey = "secretpassword"
	c.S3BaseEndpoint = ""
	c.MaxUploadSize = 512 * 1024 * 1024
	c.MaxExpiry = 30 * 24 * time.Hour
	c.MaxDownloadLimit = 1000
	c.CleanupInterval = 15 * time.Minute
	c.SessionTimeout = time.Hour
	c.DefaultChunkSize = 5 * 1024 * 1024
	c.MaxChunkSize = 50 * 1024 * 1024
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from the environment, an optional JSON file and finally command-line
// flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseEnv(cfg)
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
