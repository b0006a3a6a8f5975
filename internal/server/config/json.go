package config

import (
	"encoding/json"
	"os"

	"github.com/hibana-share/hibana/internal/flagx"
	"github.com/hibana-share/hibana/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "15m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files; after unmarshalling, set fields are copied into the
// runtime Config.
type JsonConfig struct {
	EndpointAddr     *string         `json:"endpoint_addr"`
	BaseURL          *string         `json:"base_url"`
	DatabaseDSN      *string         `json:"database_dsn"`
	StorageBackend   *string         `json:"storage_backend"`
	StorageDir       *string         `json:"storage_dir"`
	S3Bucket         *string         `json:"s3_bucket"`
	S3Region         *string         `json:"s3_region"`
	S3AccessKey      *string         `json:"s3_access_key"`
	S3SecretKey      *string         `json:"s3_secret_key"`
	S3BaseEndpoint   *string         `json:"s3_base_endpoint"`
	MaxUploadSize    *int64          `json:"max_upload_size"`
	MaxExpiry        *timex.Duration `json:"max_expiry"`
	MaxDownloadLimit *int32          `json:"max_download_limit"`
	CleanupInterval  *timex.Duration `json:"cleanup_interval"`
	SessionTimeout   *timex.Duration `json:"session_timeout"`
	DefaultChunkSize *int32          `json:"default_chunk_size"`
	MaxChunkSize     *int32          `json:"max_chunk_size"`
}

// parseJson loads configuration values from the JSON file named by the
// -c/-config flags into the provided Config. Absent file means nothing to
// load; an unreadable or invalid file panics, matching the flag parser.
func parseJson(config *Config) {

	jsonConfigFile := flagx.JsonConfigFlags()

	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	if c.EndpointAddr != nil {
		config.EndpointAddr = *c.EndpointAddr
	}
	if c.BaseURL != nil {
		config.BaseURL = *c.BaseURL
	}
	if c.DatabaseDSN != nil {
		config.DatabaseDSN = *c.DatabaseDSN
	}
	if c.StorageBackend != nil {
		config.StorageBackend = *c.StorageBackend
	}
	if c.StorageDir != nil {
		config.StorageDir = *c.StorageDir
	}
	if c.S3Bucket != nil {
		config.S3Bucket = *c.S3Bucket
	}
	if c.S3Region != nil {
		config.S3Region = *c.S3Region
	}
	if c.S3AccessKey != nil {
		config.S3AccessKey = *c.S3AccessKey
	}
	if c.S3SecretKey != nil {
		config.S3SecretKey = *c.S3SecretKey
	}
	if c.S3BaseEndpoint != nil {
		config.S3BaseEndpoint = *c.S3BaseEndpoint
	}
	if c.MaxUploadSize != nil {
		config.MaxUploadSize = *c.MaxUploadSize
	}
	if c.MaxExpiry != nil {
		config.MaxExpiry = c.MaxExpiry.Duration
	}
	if c.MaxDownloadLimit != nil {
		config.MaxDownloadLimit = *c.MaxDownloadLimit
	}
	if c.CleanupInterval != nil {
		config.CleanupInterval = c.CleanupInterval.Duration
	}
	if c.SessionTimeout != nil {
		config.SessionTimeout = c.SessionTimeout.Duration
	}
	if c.DefaultChunkSize != nil {
		config.DefaultChunkSize = *c.DefaultChunkSize
	}
	if c.MaxChunkSize != nil {
		config.MaxChunkSize = *c.MaxChunkSize
	}
}
