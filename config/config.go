// Package config loads runtime configuration from the environment and an
// optional .env file, and carries the build-time application identity.
package config

import (
	"fmt"

	"github.com/spf13/viper"
)

// injected configurations
var (
	APP_NAME    string = "sentrydb"
	APP_VERSION string = "0.43.0-alpha.2"
)

// Config holds the runtime settings for the persistence layer.
type Config struct {
	// DataDir is the directory containing the live database and its
	// VERSION marker.
	DataDir string

	// BackupDir is the directory holding backup snapshots and its own
	// VERSION marker, kept in lockstep with DataDir.
	BackupDir string

	// SyncWrites enables per-write fsync on the store.
	SyncWrites bool

	// CacheSize is the store's block-cache capacity in bytes.
	CacheSize int64
}

// Load reads configuration from a .env file in the working directory (if
// present) and from the environment. Environment variables take precedence.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()

	v.SetDefault("SENTRYDB_DATA_DIR", "data")
	v.SetDefault("SENTRYDB_BACKUP_DIR", "backup")
	v.SetDefault("SENTRYDB_SYNC_WRITES", false)
	v.SetDefault("SENTRYDB_CACHE_SIZE", int64(256<<20))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: failed to read config file: %w", err)
		}
	}

	return &Config{
		DataDir:    v.GetString("SENTRYDB_DATA_DIR"),
		BackupDir:  v.GetString("SENTRYDB_BACKUP_DIR"),
		SyncWrites: v.GetBool("SENTRYDB_SYNC_WRITES"),
		CacheSize:  v.GetInt64("SENTRYDB_CACHE_SIZE"),
	}, nil
}
