package config

import (
	"flag"
	"os"
	"time"

	"github.com/hibana-share/hibana/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":3000")
//	-u string   external base URL for share links
//	-d string   PostgreSQL DSN (empty = in-memory metadata)
//	-s string   storage backend: fs | s3
//	-o string   storage directory (fs backend)
//	-m int      max upload size, bytes
//	-i string   cleanup interval (duration, e.g. "15m")
//	-t string   upload session timeout (duration)
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-u", "-d", "-s", "-o", "-m", "-i", "-t"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.BaseURL, "u", config.BaseURL, "external base URL for share links")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.StorageBackend, "s", config.StorageBackend, "storage backend (fs|s3)")
	fs.StringVar(&config.StorageDir, "o", config.StorageDir, "storage directory")
	fs.Int64Var(&config.MaxUploadSize, "m", config.MaxUploadSize, "max upload size in bytes")

	cleanupInterval := fs.String("i", config.CleanupInterval.String(), "cleanup interval")
	sessionTimeout := fs.String("t", config.SessionTimeout.String(), "upload session timeout")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if d, err := time.ParseDuration(*cleanupInterval); err == nil {
		config.CleanupInterval = d
	}
	if d, err := time.ParseDuration(*sessionTimeout); err == nil {
		config.SessionTimeout = d
	}
}
