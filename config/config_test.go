package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, "backup", cfg.BackupDir)
	assert.False(t, cfg.SyncWrites)
	assert.Equal(t, int64(256<<20), cfg.CacheSize)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("SENTRYDB_DATA_DIR", "/var/lib/sentrydb")
	t.Setenv("SENTRYDB_SYNC_WRITES", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/sentrydb", cfg.DataDir)
	assert.True(t, cfg.SyncWrites)
	assert.Equal(t, "backup", cfg.BackupDir)
}
